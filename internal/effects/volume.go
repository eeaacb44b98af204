// ABOUTME: Volume scaling applied to output buffers
// ABOUTME: In-place scalar gain with a fast path at unity
package effects

import (
	"fmt"

	"github.com/aria-audio/aria-go/pkg/audio"
)

// ValidateGain rejects gains outside [0,1].
func ValidateGain(gain float64) error {
	if gain < 0 || gain > 1 {
		return fmt.Errorf("%w: volume %.3f outside [0,1]", audio.ErrInvalidParameter, gain)
	}
	return nil
}

// ApplyGain scales samples in place. The buffer must be owned by the caller
// (the audio callback's output buffer); shared input buffers are never
// mutated by the pipeline. Unity gain is a no-op.
func ApplyGain(buf []float32, gain float64) {
	if gain == 1.0 {
		return
	}
	g := float32(gain)
	for i := range buf {
		buf[i] *= g
	}
}
