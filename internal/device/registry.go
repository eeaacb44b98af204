// ABOUTME: Output device registry with capability queries
// ABOUTME: Wraps a capability provider behind an explicit init/teardown lifecycle
package device

import (
	"fmt"
	"sync"

	"github.com/aria-audio/aria-go/pkg/audio"
	"github.com/rs/zerolog"
)

// Capabilities is a read-only snapshot of what an output device supports.
type Capabilities struct {
	Index             int
	Name              string
	SampleRates       []int
	ChannelCounts     []int
	BitDepths         []int
	DefaultSampleRate int
	MaxOutputChannels int
	IsDefault         bool
}

// Provider answers device enumeration and format support queries. The
// registry owns exactly one provider, chosen at construction time.
type Provider interface {
	ListDevices() ([]Capabilities, error)
	IsFormatSupported(dev Capabilities, sampleRate, channels, bitDepth int) bool
	Close() error
}

// Registry is the process-scoped device service. It is injected into the
// components that need it; nothing reaches for it through a global.
type Registry struct {
	provider Provider
	logger   zerolog.Logger

	mu       sync.Mutex
	devices  []Capabilities
	selected int
	inited   bool
}

// NewRegistry creates a registry over the given provider.
func NewRegistry(provider Provider, logger zerolog.Logger) *Registry {
	return &Registry{
		provider: provider,
		logger:   logger.With().Str("component", "device").Logger(),
		selected: -1,
	}
}

// Init enumerates devices once. Must be called before any query.
func (r *Registry) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inited {
		return nil
	}

	devices, err := r.provider.ListDevices()
	if err != nil {
		return fmt.Errorf("%w: enumeration failed: %v", audio.ErrDeviceUnavailable, err)
	}
	if len(devices) == 0 {
		return fmt.Errorf("%w: no output devices found", audio.ErrDeviceUnavailable)
	}

	r.devices = devices
	r.inited = true

	for _, d := range devices {
		r.logger.Debug().
			Int("index", d.Index).
			Str("name", d.Name).
			Int("default_rate", d.DefaultSampleRate).
			Int("max_channels", d.MaxOutputChannels).
			Bool("default", d.IsDefault).
			Msg("found output device")
	}

	return nil
}

// Devices returns the enumerated capability snapshots.
func (r *Registry) Devices() ([]Capabilities, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.inited {
		return nil, fmt.Errorf("%w: registry not initialized", audio.ErrDeviceUnavailable)
	}
	out := make([]Capabilities, len(r.devices))
	copy(out, r.devices)
	return out, nil
}

// Select picks a device by index, or the default device when index is
// negative. The selection sticks until the next Select call.
func (r *Registry) Select(index int) (Capabilities, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.inited {
		return Capabilities{}, fmt.Errorf("%w: registry not initialized", audio.ErrDeviceUnavailable)
	}

	if index < 0 {
		for _, d := range r.devices {
			if d.IsDefault {
				r.selected = d.Index
				return d, nil
			}
		}
		// No device flagged default, take the first.
		r.selected = r.devices[0].Index
		return r.devices[0], nil
	}

	for _, d := range r.devices {
		if d.Index == index {
			r.selected = index
			return d, nil
		}
	}

	return Capabilities{}, fmt.Errorf("%w: no device with index %d", audio.ErrDeviceUnavailable, index)
}

// Selected returns the currently selected device.
func (r *Registry) Selected() (Capabilities, error) {
	r.mu.Lock()
	sel := r.selected
	r.mu.Unlock()

	if sel < 0 {
		return r.Select(-1)
	}
	return r.Select(sel)
}

// IsFormatSupported asks the provider whether the triple actually works on
// the device, beyond what the capability snapshot claims.
func (r *Registry) IsFormatSupported(dev Capabilities, sampleRate, channels, bitDepth int) bool {
	return r.provider.IsFormatSupported(dev, sampleRate, channels, bitDepth)
}

// Close tears the provider down. Safe to call more than once.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.inited {
		return nil
	}
	r.inited = false
	r.devices = nil
	return r.provider.Close()
}
