//go:build portaudio

// ABOUTME: PortAudio output implementation
// ABOUTME: Cross-platform callback output using PortAudio
package output

import (
	"fmt"
	"sync"

	"github.com/aria-audio/aria-go/pkg/audio"
	"github.com/gordonklaus/portaudio"
)

// PortAudio output implementation. The PortAudio stream callback
// delivers a float buffer directly, so the FillFunc plugs straight in.
type PortAudio struct {
	stream *portaudio.Stream
	paused bool
	mu     sync.Mutex
}

// NewPortAudio creates a new PortAudio output.
func NewPortAudio() Output {
	return &PortAudio{}
}

// Open initializes PortAudio and opens the default output stream.
func (p *PortAudio) Open(cfg StreamConfig, fill FillFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return fmt.Errorf("%w: device already open", audio.ErrDeviceUnavailable)
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: initialize portaudio: %v", audio.ErrDeviceUnavailable, err)
	}

	stream, err := portaudio.OpenDefaultStream(0, cfg.Channels, float64(cfg.SampleRate), cfg.FramesPerBuffer, func(out []float32) {
		fill(out)
	})
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: open stream: %v", audio.ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("%w: start stream: %v", audio.ErrDeviceUnavailable, err)
	}

	p.stream = stream
	return nil
}

// Pause stops the stream without closing it.
func (p *PortAudio) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return fmt.Errorf("%w: not open", audio.ErrDeviceUnavailable)
	}
	if p.paused {
		return nil
	}
	if err := p.stream.Stop(); err != nil {
		return fmt.Errorf("%w: stop: %v", audio.ErrDeviceUnavailable, err)
	}
	p.paused = true
	return nil
}

// Resume restarts a paused stream.
func (p *PortAudio) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return fmt.Errorf("%w: not open", audio.ErrDeviceUnavailable)
	}
	if !p.paused {
		return nil
	}
	if err := p.stream.Start(); err != nil {
		return fmt.Errorf("%w: start: %v", audio.ErrDeviceUnavailable, err)
	}
	p.paused = false
	return nil
}

// Close stops the stream and terminates PortAudio.
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		if err := p.stream.Stop(); err != nil {
			return err
		}
		if err := p.stream.Close(); err != nil {
			return err
		}
		p.stream = nil
	}
	return portaudio.Terminate()
}
