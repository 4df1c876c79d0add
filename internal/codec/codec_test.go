package codec

import (
	"encoding/binary"
	"math"
	"testing"
)

func encodeFloat32LE(vals ...float32) []byte {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func TestDecodeEnvelopeShortFrame(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3} {
		if _, err := DecodeEnvelope(make([]byte, n)); err != ErrShortFrame {
			t.Errorf("len %d: err = %v, want ErrShortFrame", n, err)
		}
	}
}

func TestDecodeEnvelopeType(t *testing.T) {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint32(raw[0:4], 3)
	copy(raw[4:], []byte{1, 2, 3, 4})

	f, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if f.Type != FrameTypeMixedAudio {
		t.Errorf("Type = %v, want FrameTypeMixedAudio", f.Type)
	}
	if len(f.Payload) != 4 {
		t.Errorf("Payload len = %d, want 4", len(f.Payload))
	}
}

func TestDecodeParticipantAudio(t *testing.T) {
	payload := append([]byte{3}, []byte("abc")...)
	payload = append(payload, encodeFloat32LE(1, -1)...)

	pa, err := DecodeParticipantAudio(payload)
	if err != nil {
		t.Fatalf("DecodeParticipantAudio: %v", err)
	}
	if pa.ParticipantID != "abc" {
		t.Errorf("ParticipantID = %q, want abc", pa.ParticipantID)
	}
	if len(pa.Audio) != 8 {
		t.Errorf("Audio len = %d, want 8", len(pa.Audio))
	}
}

func TestDecodeParticipantAudioEmptyID(t *testing.T) {
	payload := append([]byte{0}, encodeFloat32LE(0.5)...)
	pa, err := DecodeParticipantAudio(payload)
	if err != nil {
		t.Fatalf("DecodeParticipantAudio: %v", err)
	}
	if pa.ParticipantID != "" {
		t.Errorf("ParticipantID = %q, want empty string", pa.ParticipantID)
	}
}

func TestDecodeParticipantAudioTooShort(t *testing.T) {
	if _, err := DecodeParticipantAudio(nil); err != ErrShortParticipantEnvelope {
		t.Errorf("empty payload: err = %v, want ErrShortParticipantEnvelope", err)
	}
	if _, err := DecodeParticipantAudio([]byte{5, 'a', 'b'}); err != ErrShortParticipantEnvelope {
		t.Errorf("truncated id: err = %v, want ErrShortParticipantEnvelope", err)
	}
}

func TestFloat32LEToInt16LEClamping(t *testing.T) {
	buf := encodeFloat32LE(1.0, -1.0, 0.0, 2.5, -2.5, float32(math.NaN()), float32(math.Inf(1)))
	out := Float32LEToInt16LE(buf)

	want := []int16{32767, -32767, 0, 32767, -32767, 0, 0}
	if len(out) != len(want)*2 {
		t.Fatalf("output len = %d, want %d", len(out), len(want)*2)
	}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
		if got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestSampleCount(t *testing.T) {
	n, exact := SampleCount(8)
	if n != 2 || !exact {
		t.Errorf("SampleCount(8) = (%d, %v), want (2, true)", n, exact)
	}
	n, exact = SampleCount(7)
	if n != 1 || exact {
		t.Errorf("SampleCount(7) = (%d, %v), want (1, false)", n, exact)
	}
}
