package session

import "github.com/flowpbx-labs/ingestd/internal/pcmfile"

// Stats counts frames accepted by a session, one counter incremented per
// accepted frame. Their sum equals the total number of frames received,
// since frames too short to carry a header are counted in UnknownFrames
// (§3 invariants).
type Stats struct {
	JSONMessages           uint64 `json:"jsonMessages"`
	MixedAudioFrames       uint64 `json:"mixedAudioFrames"`
	ParticipantAudioFrames uint64 `json:"participantAudioFrames"`
	VideoFrames            uint64 `json:"videoFrames"`
	EncodedVideoChunks     uint64 `json:"encodedVideoChunks"`
	UnknownFrames          uint64 `json:"unknownFrames"`
}

// ParticipantInfo is the roster entry for one meeting participant, written
// on UsersUpdate events and read back when a label must be derived.
type ParticipantInfo struct {
	DeviceID      string `json:"deviceId"`
	DisplayName   string `json:"displayName,omitempty"`
	FullName      string `json:"fullName,omitempty"`
	IsCurrentUser bool   `json:"isCurrentUser,omitempty"`
}

// AudioFormat describes the PCM stream declared by the first valid
// AudioFormatUpdate event. A format is valid iff SampleRate > 0.
type AudioFormat struct {
	SampleRate       int    `json:"sampleRate"`
	NumberOfChannels int    `json:"numberOfChannels"`
	NumberOfFrames   int    `json:"numberOfFrames,omitempty"`
	FormatTag        string `json:"format,omitempty"`
}

// Valid reports whether the format carries a usable sample rate.
func (f AudioFormat) Valid() bool {
	return f.SampleRate > 0
}

func (f AudioFormat) toPCMFormat() pcmfile.Format {
	channels := f.NumberOfChannels
	if channels < 1 {
		channels = 1
	}
	return pcmfile.Format{SampleRate: f.SampleRate, NumberOfChannels: channels}
}

// participantWriter lazily backs one speaker's audio container. It is
// created only once the session has observed a valid AudioFormat.
type participantWriter struct {
	label         string
	writer        *pcmfile.Writer
	relativeFiles []string
}

// AudioFiles records the relative (to the session directory) paths of the
// containers a session produced.
type AudioFiles struct {
	Mixed        string            `json:"mixed,omitempty"`
	Participants map[string]string `json:"participants,omitempty"`
}

// Summary is the frozen, once-written record of a finished session. It is
// serialised to session-summary.json at close, then re-written in place
// with ArchivePath/ManifestPath once the session has been archived.
type Summary struct {
	SessionID         string             `json:"sessionId"`
	Reason            string             `json:"reason"`
	DurationMs        int64              `json:"durationMs"`
	IdleMsBeforeClose int64              `json:"idleMsBeforeClose"`
	Stats             Stats              `json:"stats"`
	MeetingURL        string             `json:"meetingUrl,omitempty"`
	BotName           string             `json:"botName,omitempty"`
	StartedAt         string             `json:"startedAt"`
	AudioFormat       *AudioFormat       `json:"audioFormat,omitempty"`
	AudioFiles        AudioFiles         `json:"audioFiles"`
	Participants      []ParticipantInfo  `json:"participants,omitempty"`
	Error             string             `json:"error,omitempty"`
	ArchivePath       string             `json:"archivePath,omitempty"`
	ManifestPath      string             `json:"manifestPath,omitempty"`
}

// Archiver moves a closed session's live directory to its sealed,
// completed-side location and writes the archive manifest. Implemented by
// package archive; declared here so the session package never imports it.
type Archiver interface {
	Archive(summary *Summary, baseDir string) error
}
