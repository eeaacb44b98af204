// ABOUTME: Malgo-based audio output with 16/24-bit and float passthrough
// ABOUTME: Uses miniaudio via malgo for callback-driven hi-res playback
package output

import (
	"fmt"
	"sync"

	"github.com/aria-audio/aria-go/pkg/audio"
	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"
)

// Malgo output implementation using the malgo/miniaudio library.
type Malgo struct {
	logger   zerolog.Logger
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	cfg      StreamConfig
	fill     FillFunc
	scratch  []float32
	paused   bool
	mu       sync.Mutex
}

// NewMalgo creates a new Malgo output.
func NewMalgo() Output {
	return &Malgo{logger: zerolog.Nop()}
}

// NewMalgoWithLogger creates a Malgo output that logs device lifecycle.
func NewMalgoWithLogger(logger zerolog.Logger) Output {
	return &Malgo{logger: logger}
}

// Open initializes the playback device and starts the callback stream.
func (m *Malgo) Open(cfg StreamConfig, fill FillFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return fmt.Errorf("%w: device already open", audio.ErrDeviceUnavailable)
	}

	var format malgo.FormatType
	switch cfg.BitDepth {
	case 16:
		format = malgo.FormatS16
	case 24:
		format = malgo.FormatS24
	case 32:
		format = malgo.FormatF32
	default:
		return fmt.Errorf("%w: bit depth %d", audio.ErrUnsupportedFormat, cfg.BitDepth)
	}

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("%w: init context: %v", audio.ErrDeviceUnavailable, err)
		}
		m.malgoCtx = ctx
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = format
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.FramesPerBuffer)
	deviceConfig.Alsa.NoMMap = 1

	m.cfg = cfg
	m.fill = fill

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			m.dataCallback(pOutput, frameCount)
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("%w: init device: %v", audio.ErrDeviceUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("%w: start device: %v", audio.ErrDeviceUnavailable, err)
	}

	m.device = device

	m.logger.Info().
		Int("sample_rate", cfg.SampleRate).
		Int("channels", cfg.Channels).
		Int("bit_depth", cfg.BitDepth).
		Msg("audio output opened (malgo)")

	return nil
}

// dataCallback pulls samples from the engine and converts them to the
// device's wire format.
func (m *Malgo) dataCallback(pOutput []byte, frameCount uint32) {
	total := int(frameCount) * m.cfg.Channels
	if cap(m.scratch) < total {
		m.scratch = make([]float32, total)
	}
	buf := m.scratch[:total]

	m.fill(buf)

	switch m.cfg.BitDepth {
	case 16:
		writeS16(pOutput, buf)
	case 24:
		writeS24(pOutput, buf)
	case 32:
		writeF32(pOutput, buf)
	}
}

// writeS16 converts float samples to 16-bit little-endian output.
func writeS16(output []byte, samples []float32) {
	for i, s := range samples {
		v := audio.Float32ToInt16(s)
		output[i*2] = byte(v)
		output[i*2+1] = byte(v >> 8)
	}
}

// writeS24 converts float samples to packed 24-bit little-endian output.
func writeS24(output []byte, samples []float32) {
	for i, s := range samples {
		b := audio.Float32ToInt24(s)
		output[i*3] = b[0]
		output[i*3+1] = b[1]
		output[i*3+2] = b[2]
	}
}

// writeF32 passes float samples straight through as little-endian bytes.
func writeF32(output []byte, samples []float32) {
	copy(output, audio.Float32ToBytes(samples))
}

// Pause stops the device without releasing it.
func (m *Malgo) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return fmt.Errorf("%w: not open", audio.ErrDeviceUnavailable)
	}
	if m.paused {
		return nil
	}
	if err := m.device.Stop(); err != nil {
		return fmt.Errorf("%w: stop: %v", audio.ErrDeviceUnavailable, err)
	}
	m.paused = true
	return nil
}

// Resume restarts a paused device.
func (m *Malgo) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return fmt.Errorf("%w: not open", audio.ErrDeviceUnavailable)
	}
	if !m.paused {
		return nil
	}
	if err := m.device.Start(); err != nil {
		return fmt.Errorf("%w: start: %v", audio.ErrDeviceUnavailable, err)
	}
	m.paused = false
	return nil
}

// Close stops the device and releases the malgo context.
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			m.logger.Warn().Err(err).Msg("device stop error")
		}
		m.device.Uninit()
		m.device = nil
	}

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			m.logger.Warn().Err(err).Msg("malgo context uninit error")
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}

	return nil
}
