package pipeline

import "context"

// TranscriptionResult is what a provider returns for one audio file. It is
// serialised verbatim as `<name>.transcript.json` (§4.7).
type TranscriptionResult struct {
	Text            string  `json:"text"`
	Confidence      float64 `json:"confidence"`
	DurationSeconds float64 `json:"duration"`
	Language        string  `json:"language"`
	ProviderSummary string  `json:"providerSummary,omitempty"`
}

// SummaryResult is what a provider returns for a body of text. It is
// serialised as `<name>.summary.json` next to the audio it summarises.
type SummaryResult struct {
	Source      string   `json:"source"`
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"keyPoints,omitempty"`
	ActionItems []string `json:"actionItems,omitempty"`
	Decisions   []string `json:"decisions,omitempty"`
	Topics      []string `json:"topics,omitempty"`
}

// SummaryHints carries signals discovered during transcription that the
// selection logic in auto mode uses to decide whether Deepgram is eligible
// (§4.7: "only if the transcript provider already returned a short summary
// AND the language is English").
type SummaryHints struct {
	HasProviderSummary bool
	Language           string
}

// Provider is the single small capability set DESIGN NOTES §9 calls for:
// transcribe an audio file, or summarise a body of text. Real providers
// (openai, deepgram, pho-whisper) implement both over HTTP; the custom
// fallback implements only Summarise.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, path, language string) (TranscriptionResult, error)
	Summarise(ctx context.Context, text, language string, hints SummaryHints) (SummaryResult, error)
}

// errTranscriptionUnsupported is returned by providers (namely custom) that
// only implement the summarisation half of the capability set.
type errTranscriptionUnsupported struct{ provider string }

func (e errTranscriptionUnsupported) Error() string {
	return e.provider + ": transcription not supported"
}
