// ABOUTME: Malgo-backed capability provider
// ABOUTME: Enumerates playback devices through miniaudio's device registry
package device

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// Standard rate/depth matrices miniaudio accepts on every backend. The
// library converts internally, so a playback device never rejects these.
var (
	malgoSampleRates   = []int{8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000, 176400, 192000}
	malgoChannelCounts = []int{1, 2, 4, 6, 8}
	malgoBitDepths     = []int{16, 24, 32}
)

// MalgoProvider enumerates output devices via a malgo context.
type MalgoProvider struct {
	ctx *malgo.AllocatedContext
}

// NewMalgoProvider initializes a malgo context for device enumeration.
func NewMalgoProvider() (*MalgoProvider, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	return &MalgoProvider{ctx: ctx}, nil
}

// ListDevices returns capability snapshots for all playback devices.
func (p *MalgoProvider) ListDevices() ([]Capabilities, error) {
	infos, err := p.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate playback devices: %w", err)
	}

	devices := make([]Capabilities, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, Capabilities{
			Index:             i,
			Name:              info.Name(),
			SampleRates:       malgoSampleRates,
			ChannelCounts:     malgoChannelCounts,
			BitDepths:         malgoBitDepths,
			DefaultSampleRate: 44100,
			MaxOutputChannels: 8,
			IsDefault:         info.IsDefault != 0,
		})
	}
	return devices, nil
}

// IsFormatSupported reports whether miniaudio can drive the device with the
// triple. miniaudio resamples and remixes internally, so anything within its
// conversion range passes.
func (p *MalgoProvider) IsFormatSupported(dev Capabilities, sampleRate, channels, bitDepth int) bool {
	if sampleRate < 8000 || sampleRate > 384000 {
		return false
	}
	if channels < 1 || channels > dev.MaxOutputChannels {
		return false
	}
	switch bitDepth {
	case 16, 24, 32:
		return true
	}
	return false
}

// Close frees the malgo context.
func (p *MalgoProvider) Close() error {
	if p.ctx == nil {
		return nil
	}
	err := p.ctx.Uninit()
	p.ctx.Free()
	p.ctx = nil
	return err
}
