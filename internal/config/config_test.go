// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Covers defaults, YAML overrides, and rejection of bad values
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aria-audio/aria-go/pkg/audio"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	if cfg.Backend != "malgo" {
		t.Errorf("expected default backend malgo, got %s", cfg.Backend)
	}
	if cfg.Volume != 1.0 {
		t.Errorf("expected default volume 1.0, got %f", cfg.Volume)
	}
	if cfg.DecoderBinary != "ffmpeg" {
		t.Errorf("expected default decoder ffmpeg, got %s", cfg.DecoderBinary)
	}
	if cfg.Network.MaxRetries != 5 {
		t.Errorf("expected 5 retries, got %d", cfg.Network.MaxRetries)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aria.yaml")

	content := `
backend: oto
volume: 0.5
crossfade:
  enabled: true
  duration_seconds: 1.5
  curve: logarithmic
network:
  buffer_size_bytes: 1024
  max_retries: 2
  backoff_base_ms: 100
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Backend != "oto" {
		t.Errorf("expected backend oto, got %s", cfg.Backend)
	}
	if cfg.Volume != 0.5 {
		t.Errorf("expected volume 0.5, got %f", cfg.Volume)
	}
	if !cfg.Crossfade.Enabled || cfg.Crossfade.Curve != "logarithmic" {
		t.Errorf("crossfade not applied: %+v", cfg.Crossfade)
	}
	if cfg.Network.MaxRetries != 2 {
		t.Errorf("expected 2 retries, got %d", cfg.Network.MaxRetries)
	}

	// Untouched fields keep their defaults.
	if cfg.DecoderBinary != "ffmpeg" {
		t.Errorf("expected default decoder, got %s", cfg.DecoderBinary)
	}
	if cfg.FramesPerBuffer != 1024 {
		t.Errorf("expected default frames per buffer, got %d", cfg.FramesPerBuffer)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/aria.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"volume above 1", func(c *Config) { c.Volume = 1.5 }},
		{"negative volume", func(c *Config) { c.Volume = -0.1 }},
		{"zero frames", func(c *Config) { c.FramesPerBuffer = 0 }},
		{"unknown backend", func(c *Config) { c.Backend = "jack" }},
		{"negative crossfade", func(c *Config) { c.Crossfade.DurationSeconds = -1 }},
		{"bogus crossfade curve", func(c *Config) { c.Crossfade.Curve = "sine" }},
		{"negative retries", func(c *Config) { c.Network.MaxRetries = -1 }},
		{"zero backoff", func(c *Config) { c.Network.BackoffBaseMs = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, audio.ErrInvalidParameter) {
				t.Errorf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}
