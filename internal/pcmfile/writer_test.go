package pcmfile

import (
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWriterBasic(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "mixed_audio.wav")

	w, err := New(fp, Format{SampleRate: 48000, NumberOfChannels: 1}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// 10 frames of 480 samples of silence, as in the happy-path scenario.
	frame := make([]byte, 480*2)
	for i := 0; i < 10; i++ {
		if err := w.Write(frame); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(fp)
	if err != nil {
		t.Fatalf("reading container: %v", err)
	}

	wantSize := headerSize + 10*480*2
	if len(data) != wantSize {
		t.Fatalf("file size = %d, want %d", len(data), wantSize)
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		t.Fatal("malformed wav header markers")
	}

	dataLen := binary.LittleEndian.Uint32(data[40:44])
	if int(dataLen) != len(data)-headerSize {
		t.Errorf("header dataLen = %d, want %d", dataLen, len(data)-headerSize)
	}

	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	if sampleRate != 48000 {
		t.Errorf("sampleRate = %d, want 48000", sampleRate)
	}
}

func TestWriterCloseBeforeAnyWrite(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "empty.wav")

	w, err := New(fp, Format{SampleRate: 16000, NumberOfChannels: 1}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(fp)
	if err != nil {
		t.Fatalf("reading container: %v", err)
	}
	if len(data) != headerSize {
		t.Fatalf("file size = %d, want %d", len(data), headerSize)
	}
	if binary.LittleEndian.Uint32(data[40:44]) != 0 {
		t.Error("expected dataLen 0 for zero-data container")
	}
}

func TestWriterCloseIdempotent(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "idempotent.wav")

	w, err := New(fp, Format{SampleRate: 8000, NumberOfChannels: 1}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	before, _ := os.ReadFile(fp)

	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	after, _ := os.ReadFile(fp)

	if string(before) != string(after) {
		t.Error("second close mutated the on-disk file")
	}
}

func TestWriterClampsInvalidFormat(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "clamped.wav")

	w, err := New(fp, Format{SampleRate: 0, NumberOfChannels: 0}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(fp)
	if err != nil {
		t.Fatalf("reading container: %v", err)
	}
	if binary.LittleEndian.Uint32(data[24:28]) != 1 {
		t.Error("expected sample rate clamped to 1")
	}
	if binary.LittleEndian.Uint16(data[22:24]) != 1 {
		t.Error("expected channels clamped to 1")
	}
}
