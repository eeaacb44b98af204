//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"fmt"

	"github.com/aria-audio/aria-go/pkg/audio"
)

// PortAudio output implementation (stub)
type PortAudio struct{}

// NewPortAudio creates a new PortAudio output
func NewPortAudio() Output {
	return &PortAudio{}
}

// Open initializes PortAudio
func (p *PortAudio) Open(cfg StreamConfig, fill FillFunc) error {
	return fmt.Errorf("%w: PortAudio support not enabled (build with -tags portaudio)", audio.ErrDeviceUnavailable)
}

// Pause stops the stream
func (p *PortAudio) Pause() error {
	return fmt.Errorf("%w: PortAudio support not enabled (build with -tags portaudio)", audio.ErrDeviceUnavailable)
}

// Resume restarts the stream
func (p *PortAudio) Resume() error {
	return fmt.Errorf("%w: PortAudio support not enabled (build with -tags portaudio)", audio.ErrDeviceUnavailable)
}

// Close releases resources
func (p *PortAudio) Close() error {
	return nil
}
