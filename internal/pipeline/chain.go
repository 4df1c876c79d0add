package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// Chain tries a configured sequence of providers in order, downgrading to
// the next on failure without aborting (§4.7, §7: "post-archive provider
// failure ... attempt next provider in fallback order"). It plays the same
// dispatch-by-name role pushgw's MultiSender plays for push platforms, but
// ordered with fallback rather than keyed by a single exact match.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain builds a fallback chain. Order matters: providers are tried
// left to right.
func NewChain(logger *slog.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{providers: providers, logger: logger.With("subsystem", "pipeline_chain")}
}

// Transcribe tries each provider in order, returning the first success.
func (c *Chain) Transcribe(ctx context.Context, path, language string) (TranscriptionResult, string, error) {
	if len(c.providers) == 0 {
		return TranscriptionResult{}, "", fmt.Errorf("no transcription provider configured")
	}
	var lastErr error
	for _, p := range c.providers {
		res, err := p.Transcribe(ctx, path, language)
		if err == nil {
			return res, p.Name(), nil
		}
		c.logger.Warn("transcription provider failed, trying next", "provider", p.Name(), "error", err)
		lastErr = err
	}
	return TranscriptionResult{}, "", lastErr
}

// Summarise tries each provider in order, returning the first success. The
// custom provider never errors, so a non-empty chain built by ResolveChain
// always produces a result here (§7: "a summary is always produced").
func (c *Chain) Summarise(ctx context.Context, text, language string, hints SummaryHints) (SummaryResult, error) {
	if len(c.providers) == 0 {
		return SummaryResult{}, fmt.Errorf("no summarisation provider configured")
	}
	var lastErr error
	for _, p := range c.providers {
		res, err := p.Summarise(ctx, text, language, hints)
		if err == nil {
			return res, nil
		}
		c.logger.Warn("summarisation provider failed, trying next", "provider", p.Name(), "error", err)
		lastErr = err
	}
	return SummaryResult{}, lastErr
}

// ResolveChain builds the provider fallback order named in §4.7 from the
// configured summarisationProvider value. "auto" is the dynamic case:
// openai first if a summarisation key is configured, deepgram next only
// when eligible (hints set by the caller once transcription has run),
// custom always last. A fixed provider name (openai|deepgram|pho-whisper)
// tries just that provider, then custom; "custom" alone never calls out to
// the network.
func ResolveChain(logger *slog.Logger, providerName, summarisationAPIKey string, deepgramEligible bool) *Chain {
	custom := newCustomProvider()

	switch providerName {
	case "openai":
		return NewChain(logger, newOpenAIProvider(summarisationAPIKey), custom)
	case "deepgram":
		return NewChain(logger, newDeepgramProvider(summarisationAPIKey), custom)
	case "pho-whisper":
		return NewChain(logger, newPhoWhisperProvider(summarisationAPIKey), custom)
	case "custom":
		return NewChain(logger, custom)
	case "auto":
		fallthrough
	default:
		var providers []Provider
		if summarisationAPIKey != "" {
			providers = append(providers, newOpenAIProvider(summarisationAPIKey))
		}
		if deepgramEligible {
			providers = append(providers, newDeepgramProvider(summarisationAPIKey))
		}
		providers = append(providers, custom)
		return NewChain(logger, providers...)
	}
}

// ResolveTranscriptionChain builds the fallback order used to transcribe
// audio files. Unlike summarisation, custom has no transcription
// capability, so in "custom" mode (or when no remote provider is
// configured) transcription is simply unavailable.
func ResolveTranscriptionChain(logger *slog.Logger, providerName, apiKey string) *Chain {
	switch providerName {
	case "openai":
		return NewChain(logger, newOpenAIProvider(apiKey))
	case "deepgram":
		return NewChain(logger, newDeepgramProvider(apiKey))
	case "pho-whisper":
		return NewChain(logger, newPhoWhisperProvider(apiKey))
	case "custom":
		return NewChain(logger)
	case "auto":
		fallthrough
	default:
		if apiKey == "" {
			return NewChain(logger)
		}
		return NewChain(logger, newOpenAIProvider(apiKey))
	}
}
