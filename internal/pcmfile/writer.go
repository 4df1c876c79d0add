// Package pcmfile streams 16-bit little-endian PCM samples to a WAV
// container file whose header is rewritten with the final data length on
// close.
package pcmfile

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// headerSize is the size of the WAV header written ahead of the PCM data.
const headerSize = 44

// Format describes the PCM stream a Writer encodes into its WAV header.
// NumberOfChannels defaults to 1 when zero; SampleRate is clamped to a
// minimum of 1 so a malformed AudioFormat update never produces an
// unplayable (zero-rate) container.
type Format struct {
	SampleRate       int
	NumberOfChannels int
}

func (f Format) channels() int {
	if f.NumberOfChannels < 1 {
		return 1
	}
	return f.NumberOfChannels
}

func (f Format) sampleRate() int {
	if f.SampleRate < 1 {
		return 1
	}
	return f.SampleRate
}

// Writer streams successive buffers of little-endian signed 16-bit PCM
// samples to a file, prefixed by a fixed-size placeholder header that is
// rewritten with the final byte counts on Close.
//
// The session that owns a Writer is its only writer, running on a single
// goroutine. Write, BytesWritten and Close take an internal mutex, so a
// Close from another goroutine is safe; Writes after Close are ignored.
type Writer struct {
	mu       sync.Mutex
	file     *os.File
	filePath string
	format   Format
	dataSize uint32
	closed   bool
	logger   *slog.Logger
}

// New creates the container file, writes a 44-byte placeholder header, and
// returns a Writer ready for Write calls. Parent directories are created if
// needed.
func New(path string, format Format, logger *slog.Logger) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating pcm container directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating pcm container file: %w", err)
	}

	if err := writeHeader(f, format, 0); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("writing wav header: %w", err)
	}

	return &Writer{
		file:     f,
		filePath: path,
		format:   format,
		logger:   logger.With("file", path),
	}, nil
}

// Write appends buf verbatim to the container. buf must already be
// little-endian signed 16-bit PCM. The returned error, if non-nil, should be
// logged by the caller; other writers in the same session are unaffected.
func (w *Writer) Write(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	n, err := w.file.Write(buf)
	w.dataSize += uint32(n)
	if err != nil {
		w.logger.Error("pcm container write failed", "error", err)
		return fmt.Errorf("writing pcm samples: %w", err)
	}
	return nil
}

// BytesWritten returns the number of data bytes written so far (excludes
// the header).
func (w *Writer) BytesWritten() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dataSize
}

// FilePath returns the path to the container file.
func (w *Writer) FilePath() string {
	return w.filePath
}

// Close is idempotent. It flushes and closes the stream, then reopens the
// file for an in-place rewrite of the first 44 bytes with the finalised
// header. A close that cannot rewrite the header still closes the file; the
// error is returned but must not prevent other writers from finalising.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	dataSize := w.dataSize
	file := w.file
	w.mu.Unlock()

	if err := file.Close(); err != nil {
		w.logger.Error("failed to close pcm container before header rewrite", "error", err)
		return fmt.Errorf("closing pcm container: %w", err)
	}

	f, err := os.OpenFile(w.filePath, os.O_RDWR, 0o644)
	if err != nil {
		w.logger.Error("failed to reopen pcm container for header rewrite", "error", err)
		return fmt.Errorf("reopening pcm container: %w", err)
	}
	defer f.Close()

	if err := writeHeader(f, w.format, dataSize); err != nil {
		w.logger.Error("failed to rewrite wav header", "error", err)
		return fmt.Errorf("rewriting wav header: %w", err)
	}

	return nil
}

// writeHeader seeks to the start of the file and writes the bit-exact
// 44-byte PCM/WAVE header there: RIFF/WAVE/fmt (PCM, format code 1)/data, 16-bit samples.
func writeHeader(f *os.File, format Format, dataSize uint32) error {
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}

	var hdr [headerSize]byte

	channels := format.channels()
	sampleRate := format.sampleRate()
	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2

	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], headerSize-8+dataSize)
	copy(hdr[8:12], "WAVE")

	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16) // fmt subchunk size
	binary.LittleEndian.PutUint16(hdr[20:22], 1)  // PCM format code
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], 16) // bits per sample

	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataSize)

	_, err := f.Write(hdr[:])
	return err
}
