package config

import (
	"log/slog"
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	for _, env := range []string{
		"INGESTD_PORT", "INGESTD_RECORDINGS_ROOT", "INGESTD_LOG_LEVEL",
		"INGESTD_SUMMARISATION_PROVIDER",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}

	os.Args = []string{"ingestd"}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != defaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, defaultPort)
	}
	if cfg.RecordingsRoot != defaultRecordingsRoot {
		t.Errorf("RecordingsRoot = %q, want %q", cfg.RecordingsRoot, defaultRecordingsRoot)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
	if cfg.SummarisationProvider != defaultSummarisationProvider {
		t.Errorf("SummarisationProvider = %q, want %q", cfg.SummarisationProvider, defaultSummarisationProvider)
	}
	if !cfg.EnableMixedAudio || !cfg.EnablePerParticipantAudio {
		t.Error("expected mixed audio and per-participant audio enabled by default")
	}
}

func TestEnvVarOverride(t *testing.T) {
	os.Args = []string{"ingestd"}
	t.Setenv("INGESTD_PORT", "9090")
	t.Setenv("INGESTD_RECORDINGS_ROOT", "/tmp/ingestd-test")
	t.Setenv("INGESTD_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.RecordingsRoot != "/tmp/ingestd-test" {
		t.Errorf("RecordingsRoot = %q, want /tmp/ingestd-test", cfg.RecordingsRoot)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	// CLI flags should override env vars.
	os.Args = []string{"ingestd", "--port", "3000", "--log-level", "warn"}
	t.Setenv("INGESTD_PORT", "9090")
	t.Setenv("INGESTD_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000 (CLI should override env)", cfg.Port)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestValidateInvalidPort(t *testing.T) {
	os.Args = []string{"ingestd", "--port", "99999"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	os.Args = []string{"ingestd", "--log-level", "verbose"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidateInvalidSummarisationProvider(t *testing.T) {
	os.Args = []string{"ingestd", "--summarisation-provider", "bogus"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid summarisation provider, got nil")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
