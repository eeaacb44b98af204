// ABOUTME: Audio output interface definition
// ABOUTME: Common pull-based interface for audio playback backends
package output

import "fmt"

// FillFunc is invoked from the backend's realtime thread to request
// samples. The callee must fill the entire slice, zero-filling any
// portion it cannot satisfy, and must not block.
type FillFunc func(out []float32)

// StreamConfig describes the format of an output stream.
type StreamConfig struct {
	SampleRate      int
	Channels        int
	BitDepth        int
	FramesPerBuffer int
}

// Output represents an audio playback backend. Samples are pulled from
// the engine through the FillFunc supplied at Open time.
type Output interface {
	// Open initializes the device and starts pulling samples
	Open(cfg StreamConfig, fill FillFunc) error

	// Pause stops pulling samples without releasing the device
	Pause() error

	// Resume restarts a paused stream
	Resume() error

	// Close releases device resources
	Close() error
}

// New returns the backend for the given name.
func New(backend string) (Output, error) {
	switch backend {
	case "malgo", "":
		return NewMalgo(), nil
	case "oto":
		return NewOto(), nil
	case "portaudio":
		return NewPortAudio(), nil
	default:
		return nil, fmt.Errorf("unknown output backend: %s", backend)
	}
}
