// Package codec decodes the mixed binary WebSocket protocol used by the
// in-browser recording agent: a 4-byte-tagged envelope carrying JSON
// telemetry, raw video, or float32 PCM audio, plus the per-participant
// audio sub-envelope.
package codec

import (
	"encoding/binary"
	"errors"
	"math"
)

// FrameType identifies the kind of payload carried by a WebSocket message.
type FrameType int32

const (
	FrameTypeJSON             FrameType = 1
	FrameTypeVideo            FrameType = 2
	FrameTypeMixedAudio       FrameType = 3
	FrameTypeEncodedVideo     FrameType = 4
	FrameTypeParticipantAudio FrameType = 5
)

// envelopeHeaderSize is the 4-byte little-endian signed frame type prefix.
const envelopeHeaderSize = 4

// ErrShortFrame is returned when a message is too short to contain the
// frame type header.
var ErrShortFrame = errors.New("codec: frame shorter than envelope header")

// ErrShortParticipantEnvelope is returned when a ParticipantAudio payload
// cannot hold its own idLen-prefixed participant id.
var ErrShortParticipantEnvelope = errors.New("codec: participant audio payload too short")

// Frame is a decoded top-level envelope: a type tag plus the payload bytes
// that follow the 4-byte header.
type Frame struct {
	Type    FrameType
	Payload []byte
}

// DecodeEnvelope reads the 4-byte little-endian frame type and returns the
// remaining bytes as the payload. raw is not copied; callers that need to
// retain the payload past the lifetime of the inbound buffer must copy it
// themselves.
func DecodeEnvelope(raw []byte) (Frame, error) {
	if len(raw) < envelopeHeaderSize {
		return Frame{}, ErrShortFrame
	}
	t := int32(binary.LittleEndian.Uint32(raw[0:envelopeHeaderSize]))
	return Frame{Type: FrameType(t), Payload: raw[envelopeHeaderSize:]}, nil
}

// ParticipantAudio is the decoded sub-envelope carried by a
// FrameTypeParticipantAudio payload: an 8-bit length-prefixed participant id
// followed by float32 little-endian PCM samples.
type ParticipantAudio struct {
	ParticipantID string
	Audio         []byte
}

// DecodeParticipantAudio parses the idLen-prefixed participant id from a
// ParticipantAudio payload. A payload of length 0 is rejected outright; a
// payload that cannot hold idLen bytes of id is rejected as well. Trailing
// audio of zero length is valid — it yields an empty Audio slice and the
// caller silently drops it.
func DecodeParticipantAudio(payload []byte) (ParticipantAudio, error) {
	if len(payload) < 1 {
		return ParticipantAudio{}, ErrShortParticipantEnvelope
	}
	idLen := int(payload[0])
	if len(payload) < 1+idLen {
		return ParticipantAudio{}, ErrShortParticipantEnvelope
	}
	return ParticipantAudio{
		ParticipantID: string(payload[1 : 1+idLen]),
		Audio:         payload[1+idLen:],
	}, nil
}

// Float32LEToInt16LE converts a buffer of 32-bit little-endian IEEE-754
// floats (one sample per float, mono) to little-endian signed 16-bit PCM.
// Non-finite samples (NaN, +/-Inf) are treated as silence. Samples are
// clamped to [-1, 1] before scaling. Payloads with trailing bytes that don't
// form a complete 4-byte float are rejected by the session via SampleCount
// before they reach this function, which itself only processes whole samples.
func Float32LEToInt16LE(buf []byte) []byte {
	n := len(buf) / 4
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
		f := math.Float32frombits(bits)
		out[i*2], out[i*2+1] = encodeSample(f)
	}
	return out
}

// encodeSample clamps f to [-1, 1], treats non-finite values as 0, and
// returns the little-endian bytes of round(f * 32767) as a signed int16.
func encodeSample(f float32) (lo, hi byte) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	sample := int16(math.Round(v * 32767))
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(sample))
	return b[0], b[1]
}

// SampleCount reports how many complete 4-byte float samples a payload of
// the given length holds, and whether the payload has a trailing partial
// sample (a logic error the caller must account as an unknown frame).
func SampleCount(payloadLen int) (samples int, exact bool) {
	return payloadLen / 4, payloadLen%4 == 0
}
