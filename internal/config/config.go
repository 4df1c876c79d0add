// Package config loads runtime configuration for the ingestion service.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the ingestion service.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	Env       string // development|production|test
	Port      int
	LogLevel  string
	LogFormat string // "text" or "json"

	RecordingsRoot string

	EnableMixedAudio          bool
	EnablePerParticipantAudio bool
	EnableVideoCapture        bool

	SummarisationProvider string // openai|deepgram|pho-whisper|auto|custom
	SummarisationLanguage string
	TranscriptionAPIKey   string
	SummarisationAPIKey   string
}

// defaults
const (
	defaultEnv                   = "development"
	defaultPort                  = 8765
	defaultRecordingsRoot        = "./recordings"
	defaultLogLevel              = "info"
	defaultLogFormat             = "text"
	defaultSummarisationProvider = "auto"
	defaultSummarisationLanguage = "en"
)

// envPrefix is the prefix for all ingestd environment variables.
const envPrefix = "INGESTD_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("ingestd", flag.ContinueOnError)

	fs.StringVar(&cfg.Env, "env", defaultEnv, "runtime environment (development, production, test)")
	fs.IntVar(&cfg.Port, "port", defaultPort, "inbound WebSocket listener port")
	fs.StringVar(&cfg.RecordingsRoot, "recordings-root", defaultRecordingsRoot, "parent directory for live/ and completed/ session directories")
	fs.BoolVar(&cfg.EnableMixedAudio, "enable-mixed-audio", true, "write the mixed-channel audio container")
	fs.BoolVar(&cfg.EnablePerParticipantAudio, "enable-per-participant-audio", true, "write one audio container per speaker")
	fs.BoolVar(&cfg.EnableVideoCapture, "enable-video-capture", false, "reserved; video frames are always counted and discarded")
	fs.StringVar(&cfg.SummarisationProvider, "summarisation-provider", defaultSummarisationProvider, "summarisation provider (openai, deepgram, pho-whisper, auto, custom)")
	fs.StringVar(&cfg.SummarisationLanguage, "summarisation-language", defaultSummarisationLanguage, "language tag passed to transcription/summarisation providers")
	fs.StringVar(&cfg.TranscriptionAPIKey, "transcription-api-key", "", "credential for the transcription provider")
	fs.StringVar(&cfg.SummarisationAPIKey, "summarisation-api-key", "", "credential for the summarisation provider")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	envMap := map[string]string{
		"env":                          envPrefix + "ENV",
		"port":                         envPrefix + "PORT",
		"recordings-root":              envPrefix + "RECORDINGS_ROOT",
		"enable-mixed-audio":           envPrefix + "ENABLE_MIXED_AUDIO",
		"enable-per-participant-audio": envPrefix + "ENABLE_PER_PARTICIPANT_AUDIO",
		"enable-video-capture":         envPrefix + "ENABLE_VIDEO_CAPTURE",
		"summarisation-provider":       envPrefix + "SUMMARISATION_PROVIDER",
		"summarisation-language":       envPrefix + "SUMMARISATION_LANGUAGE",
		"transcription-api-key":        envPrefix + "TRANSCRIPTION_API_KEY",
		"summarisation-api-key":        envPrefix + "SUMMARISATION_API_KEY",
		"log-level":                    envPrefix + "LOG_LEVEL",
		"log-format":                   envPrefix + "LOG_FORMAT",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "env":
			cfg.Env = val
		case "port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.Port = v
			}
		case "recordings-root":
			cfg.RecordingsRoot = val
		case "enable-mixed-audio":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.EnableMixedAudio = v
			}
		case "enable-per-participant-audio":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.EnablePerParticipantAudio = v
			}
		case "enable-video-capture":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.EnableVideoCapture = v
			}
		case "summarisation-provider":
			cfg.SummarisationProvider = val
		case "summarisation-language":
			cfg.SummarisationLanguage = val
		case "transcription-api-key":
			cfg.TranscriptionAPIKey = val
		case "summarisation-api-key":
			cfg.SummarisationAPIKey = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	validEnvs := map[string]bool{"development": true, "production": true, "test": true}
	if !validEnvs[strings.ToLower(c.Env)] {
		return fmt.Errorf("env must be one of development, production, test; got %q", c.Env)
	}
	c.Env = strings.ToLower(c.Env)

	if c.RecordingsRoot == "" {
		return fmt.Errorf("recordings-root must not be empty")
	}

	validProviders := map[string]bool{"openai": true, "deepgram": true, "pho-whisper": true, "auto": true, "custom": true}
	if !validProviders[strings.ToLower(c.SummarisationProvider)] {
		return fmt.Errorf("summarisation-provider must be one of openai, deepgram, pho-whisper, auto, custom; got %q", c.SummarisationProvider)
	}
	c.SummarisationProvider = strings.ToLower(c.SummarisationProvider)

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
