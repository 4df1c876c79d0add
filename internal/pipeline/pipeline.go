// Package pipeline implements the post-archive transcription and
// summarisation stage (§4.7): once a session's recordings are sealed into
// an archive directory, walk its audio files, transcribe each, and derive
// a meeting-level and per-participant summary via a provider fallback
// chain.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// audioExtensions are the file types walked for transcription (§4.7).
var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".m4a":  true,
	".flac": true,
	".ogg":  true,
}

// participantIDPatterns are tried in order; the first matching group is the
// participant id (§4.7).
var participantIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:participant|user)_(\w+)`),
	regexp.MustCompile(`combined_([^_]+_\d+_\d+)`),
}

// mixedAudioBaseName is the well-known meeting-wide recording (§6 filesystem
// layout); its transcript, if present, is the whole meeting text.
const mixedAudioBaseName = "mixed_audio.wav"

// Config configures one pipeline run.
type Config struct {
	Language              string
	SummarisationProvider string // openai|deepgram|pho-whisper|auto|custom
	TranscriptionAPIKey   string
	SummarisationAPIKey   string
	Logger                *slog.Logger

	// TranscriptionChain overrides the chain built from the fields above.
	// Left nil in production; tests use it to exercise the rest of Run
	// without making a real network call.
	TranscriptionChain *Chain
}

// fileResult tracks one audio file's outcome through the run.
type fileResult struct {
	path          string
	relPath       string
	participantID string
	transcript    TranscriptionResult
	transcribed   bool
}

// Run walks archiveDir for audio files, transcribes and summarises them,
// and writes the transcript/summary artifacts named in §6's filesystem
// layout. It never returns an error that should abort the caller: file-
// level failures are logged and skipped (§7), matching "post-archive
// provider failure ... never raise to the Session or block shutdown".
func Run(ctx context.Context, archiveDir string, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("subsystem", "pipeline", "archive_dir", archiveDir)

	files, err := discoverAudioFiles(archiveDir)
	if err != nil {
		return fmt.Errorf("discovering audio files: %w", err)
	}
	if len(files) == 0 {
		logger.Info("no audio files found, nothing to transcribe")
		return nil
	}

	transcribeChain := cfg.TranscriptionChain
	if transcribeChain == nil {
		transcribeChain = ResolveTranscriptionChain(logger, cfg.SummarisationProvider, cfg.TranscriptionAPIKey)
	}

	results := make([]*fileResult, 0, len(files))
	for _, rel := range files {
		fr := &fileResult{
			path:          filepath.Join(archiveDir, rel),
			relPath:       rel,
			participantID: extractParticipantID(filepath.Base(rel)),
		}
		results = append(results, fr)

		res, providerName, err := transcribeChain.Transcribe(ctx, fr.path, cfg.Language)
		if err != nil {
			logger.Warn("transcription unavailable for file", "file", rel, "error", err)
			continue
		}
		fr.transcript = res
		fr.transcribed = true
		if err := writeTranscript(fr.path, res); err != nil {
			logger.Error("failed to write transcript", "file", rel, "error", err)
		}
		logger.Info("transcribed audio file", "file", rel, "provider", providerName)
	}

	meetingText, deepgramEligible := composeMeetingText(results, cfg.Language)
	summariseChain := ResolveChain(logger, cfg.SummarisationProvider, cfg.SummarisationAPIKey, deepgramEligible)

	if meetingText != "" {
		summariseAndWrite(ctx, summariseChain, logger, meetingText, cfg.Language,
			SummaryHints{HasProviderSummary: deepgramEligible, Language: cfg.Language},
			filepath.Join(archiveDir, mixedAudioBaseName))
	}

	for _, fr := range results {
		if !fr.transcribed || fr.relPath == mixedAudioBaseName {
			continue
		}
		hints := SummaryHints{HasProviderSummary: fr.transcript.ProviderSummary != "", Language: cfg.Language}
		summariseAndWrite(ctx, summariseChain, logger, fr.transcript.Text, cfg.Language, hints, fr.path)
	}

	return nil
}

// discoverAudioFiles returns audio file paths relative to root, sorted for
// deterministic discovery order.
func discoverAudioFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !audioExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	sort.Strings(files)
	return files, err
}

// extractParticipantID matches the filename against the recognised
// patterns in order; the first match's first group is the participant id.
// Non-matching files yield no per-participant attribution (§4.7).
func extractParticipantID(base string) string {
	for _, p := range participantIDPatterns {
		if m := p.FindStringSubmatch(base); m != nil {
			return m[1]
		}
	}
	return ""
}

// composeMeetingText builds the meeting-wide text (§4.7): the mixed
// recording's transcript if present, else participant transcripts
// concatenated in discovery order. It also reports whether a transcript it
// used carried a provider-supplied short summary and the language is
// English, the Deepgram eligibility signal for auto-mode selection (§4.7).
func composeMeetingText(results []*fileResult, language string) (text string, hadProviderSummary bool) {
	for _, fr := range results {
		if fr.relPath == mixedAudioBaseName && fr.transcribed {
			return fr.transcript.Text, fr.transcript.ProviderSummary != "" && strings.EqualFold(language, "en")
		}
	}

	var parts []string
	for _, fr := range results {
		if fr.transcribed && fr.participantID != "" {
			parts = append(parts, fr.transcript.Text)
			if fr.transcript.ProviderSummary != "" {
				hadProviderSummary = true
			}
		}
	}
	return strings.Join(parts, " "), hadProviderSummary && strings.EqualFold(language, "en")
}

func summariseAndWrite(ctx context.Context, chain *Chain, logger *slog.Logger, text, language string, hints SummaryHints, audioPath string) {
	res, err := chain.Summarise(ctx, text, language, hints)
	if err != nil {
		logger.Error("summarisation chain exhausted", "audio_path", audioPath, "error", err)
		return
	}
	if err := writeSummary(audioPath, res); err != nil {
		logger.Error("failed to write summary", "audio_path", audioPath, "error", err)
	}
}

func writeTranscript(audioPath string, res TranscriptionResult) error {
	return writeJSON(audioPath+".transcript.json", res)
}

func writeSummary(audioPath string, res SummaryResult) error {
	return writeJSON(audioPath+".summary.json", res)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}
