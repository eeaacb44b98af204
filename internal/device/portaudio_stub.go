//go:build !portaudio

// ABOUTME: PortAudio provider stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package device

import "fmt"

// PortAudioProvider stub used when building without the portaudio tag.
type PortAudioProvider struct{}

// NewPortAudioProvider reports that PortAudio support is not compiled in.
func NewPortAudioProvider() (*PortAudioProvider, error) {
	return nil, fmt.Errorf("PortAudio support not enabled (build with -tags portaudio)")
}

// ListDevices always fails on the stub.
func (p *PortAudioProvider) ListDevices() ([]Capabilities, error) {
	return nil, fmt.Errorf("PortAudio support not enabled (build with -tags portaudio)")
}

// IsFormatSupported always fails on the stub.
func (p *PortAudioProvider) IsFormatSupported(dev Capabilities, sampleRate, channels, bitDepth int) bool {
	return false
}

// Close is a no-op on the stub.
func (p *PortAudioProvider) Close() error {
	return nil
}
