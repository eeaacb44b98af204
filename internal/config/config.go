// ABOUTME: Player configuration with YAML file support
// ABOUTME: Defines defaults, loading, and validation for all pipeline settings
package config

import (
	"fmt"
	"os"

	"github.com/aria-audio/aria-go/internal/effects"
	"github.com/aria-audio/aria-go/pkg/audio"
	"github.com/goccy/go-yaml"
)

// Config holds all tunable playback pipeline settings.
type Config struct {
	// Output device and stream settings.
	DeviceIndex     int    `yaml:"device_index"`
	Backend         string `yaml:"backend"` // "malgo", "oto", or "portaudio"
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
	QueueChunks     int    `yaml:"queue_chunks"`

	// Effects.
	Volume     float64         `yaml:"volume"`
	BitPerfect bool            `yaml:"bit_perfect"`
	Crossfade  CrossfadeConfig `yaml:"crossfade"`
	Gapless    GaplessConfig   `yaml:"gapless"`

	// Network ingestion.
	Network NetworkConfig `yaml:"network"`

	// External tool names, overridable for unusual installs.
	DecoderBinary string `yaml:"decoder_binary"`
	ProbeBinary   string `yaml:"probe_binary"`
}

// CrossfadeConfig controls crossfade mixing between tracks.
type CrossfadeConfig struct {
	Enabled         bool    `yaml:"enabled"`
	DurationSeconds float64 `yaml:"duration_seconds"`
	Curve           string  `yaml:"curve"` // linear, logarithmic, exponential
}

// GaplessConfig controls next-track prebuffering.
type GaplessConfig struct {
	Enabled     bool    `yaml:"enabled"`
	LeadSeconds float64 `yaml:"lead_seconds"`
	TimeoutMs   int     `yaml:"timeout_ms"`
}

// NetworkConfig controls HTTP stream ingestion and reconnection.
type NetworkConfig struct {
	BufferSizeBytes int `yaml:"buffer_size_bytes"`
	MaxRetries      int `yaml:"max_retries"`
	BackoffBaseMs   int `yaml:"backoff_base_ms"`
}

// Default returns a config with conservative defaults.
func Default() Config {
	return Config{
		DeviceIndex:     -1, // system default
		Backend:         "malgo",
		FramesPerBuffer: 1024,
		QueueChunks:     64,
		Volume:          1.0,
		Crossfade: CrossfadeConfig{
			DurationSeconds: 3.0,
			Curve:           "linear",
		},
		Gapless: GaplessConfig{
			Enabled:     true,
			LeadSeconds: 10.0,
			TimeoutMs:   5000,
		},
		Network: NetworkConfig{
			BufferSizeBytes: 256 * 1024,
			MaxRetries:      5,
			BackoffBaseMs:   500,
		},
		DecoderBinary: "ffmpeg",
		ProbeBinary:   "ffprobe",
	}
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate rejects out-of-range settings before any component sees them.
func (c Config) Validate() error {
	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("%w: volume %.2f outside [0,1]", audio.ErrInvalidParameter, c.Volume)
	}
	if c.FramesPerBuffer <= 0 {
		return fmt.Errorf("%w: frames_per_buffer must be positive", audio.ErrInvalidParameter)
	}
	if c.QueueChunks <= 0 {
		return fmt.Errorf("%w: queue_chunks must be positive", audio.ErrInvalidParameter)
	}
	if c.Crossfade.DurationSeconds < 0 {
		return fmt.Errorf("%w: crossfade duration must not be negative", audio.ErrInvalidParameter)
	}
	if _, err := effects.ParseCurve(c.Crossfade.Curve); err != nil {
		return err
	}
	switch c.Backend {
	case "malgo", "oto", "portaudio":
	default:
		return fmt.Errorf("%w: unknown backend %q", audio.ErrInvalidParameter, c.Backend)
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative", audio.ErrInvalidParameter)
	}
	if c.Network.BackoffBaseMs <= 0 {
		return fmt.Errorf("%w: backoff_base_ms must be positive", audio.ErrInvalidParameter)
	}
	if c.Network.BufferSizeBytes <= 0 {
		return fmt.Errorf("%w: buffer_size_bytes must be positive", audio.ErrInvalidParameter)
	}
	return nil
}
