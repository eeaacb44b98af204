// ABOUTME: Static capability provider for tests and capability overrides
// ABOUTME: Serves a fixed device list without touching real hardware
package device

// StaticProvider serves a fixed set of capability snapshots. Used by tests
// and by configurations that pin device capabilities explicitly.
type StaticProvider struct {
	devices []Capabilities
}

// NewStaticProvider creates a provider over the given device list.
func NewStaticProvider(devices []Capabilities) *StaticProvider {
	return &StaticProvider{devices: devices}
}

// ListDevices returns the configured device list.
func (p *StaticProvider) ListDevices() ([]Capabilities, error) {
	return p.devices, nil
}

// IsFormatSupported checks the triple against the snapshot's sets.
func (p *StaticProvider) IsFormatSupported(dev Capabilities, sampleRate, channels, bitDepth int) bool {
	return contains(dev.SampleRates, sampleRate) &&
		contains(dev.ChannelCounts, channels) &&
		contains(dev.BitDepths, bitDepth)
}

// Close is a no-op; there is nothing to release.
func (p *StaticProvider) Close() error {
	return nil
}

func contains(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
