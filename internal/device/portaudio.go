//go:build portaudio

// ABOUTME: PortAudio-backed capability provider
// ABOUTME: Queries real device capabilities via Pa_GetDeviceInfo semantics
package device

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

var probeRates = []int{22050, 32000, 44100, 48000, 88200, 96000, 176400, 192000}

// PortAudioProvider enumerates output devices through PortAudio.
type PortAudioProvider struct {
	devices []*portaudio.DeviceInfo
}

// NewPortAudioProvider initializes PortAudio for the life of the provider.
func NewPortAudioProvider() (*PortAudioProvider, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return &PortAudioProvider{}, nil
}

// ListDevices returns capability snapshots for all output-capable devices.
// Supported sample rates are probed device by device.
func (p *PortAudioProvider) ListDevices() ([]Capabilities, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	defaultDev, _ := portaudio.DefaultOutputDevice()

	p.devices = nil
	var out []Capabilities
	for _, info := range infos {
		if info.MaxOutputChannels < 1 {
			continue
		}

		index := len(p.devices)
		p.devices = append(p.devices, info)

		caps := Capabilities{
			Index:             index,
			Name:              info.Name,
			SampleRates:       p.supportedRates(info),
			ChannelCounts:     channelRange(info.MaxOutputChannels),
			BitDepths:         []int{16, 24, 32},
			DefaultSampleRate: int(info.DefaultSampleRate),
			MaxOutputChannels: info.MaxOutputChannels,
			IsDefault:         defaultDev != nil && info == defaultDev,
		}
		out = append(out, caps)
	}
	return out, nil
}

// IsFormatSupported asks PortAudio whether the triple opens on the device.
func (p *PortAudioProvider) IsFormatSupported(dev Capabilities, sampleRate, channels, bitDepth int) bool {
	if dev.Index < 0 || dev.Index >= len(p.devices) {
		return false
	}
	switch bitDepth {
	case 16, 24, 32:
	default:
		return false
	}

	info := p.devices[dev.Index]
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: channels,
			Latency:  info.DefaultLowOutputLatency,
		},
		SampleRate: float64(sampleRate),
	}
	return portaudio.IsFormatSupported(params, []float32{}) == nil
}

// Close terminates PortAudio.
func (p *PortAudioProvider) Close() error {
	p.devices = nil
	return portaudio.Terminate()
}

func (p *PortAudioProvider) supportedRates(info *portaudio.DeviceInfo) []int {
	var rates []int
	for _, rate := range probeRates {
		params := portaudio.StreamParameters{
			Output: portaudio.StreamDeviceParameters{
				Device:   info,
				Channels: min(2, info.MaxOutputChannels),
				Latency:  info.DefaultLowOutputLatency,
			},
			SampleRate: float64(rate),
		}
		if portaudio.IsFormatSupported(params, []float32{}) == nil {
			rates = append(rates, rate)
		}
	}
	if len(rates) == 0 {
		rates = []int{int(info.DefaultSampleRate)}
	}
	return rates
}

func channelRange(max int) []int {
	counts := make([]int, 0, max)
	for c := 1; c <= max; c++ {
		counts = append(counts, c)
	}
	return counts
}
