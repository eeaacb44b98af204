// ABOUTME: Crossfade mixing between outgoing and incoming PCM
// ABOUTME: Linear, logarithmic, and exponential fade curves
package effects

import (
	"fmt"
	"math"
	"strings"

	"github.com/aria-audio/aria-go/pkg/audio"
)

// Curve selects the fade progression function.
type Curve int

const (
	CurveLinear Curve = iota
	CurveLogarithmic
	CurveExponential
)

// String returns the canonical curve name.
func (c Curve) String() string {
	switch c {
	case CurveLinear:
		return "linear"
	case CurveLogarithmic:
		return "logarithmic"
	case CurveExponential:
		return "exponential"
	default:
		return "unknown"
	}
}

// ParseCurve normalizes a curve name. Matching is case-insensitive and
// prefix-based: anything starting with "log" is logarithmic, "exp" is
// exponential. Other values are rejected, not coerced.
func ParseCurve(name string) (Curve, error) {
	switch n := strings.ToLower(strings.TrimSpace(name)); {
	case n == "linear":
		return CurveLinear, nil
	case strings.HasPrefix(n, "log"):
		return CurveLogarithmic, nil
	case strings.HasPrefix(n, "exp"):
		return CurveExponential, nil
	default:
		return CurveLinear, fmt.Errorf("%w: unknown crossfade curve %q", audio.ErrInvalidParameter, name)
	}
}

// apply evaluates the fade-in weight f(t) for t in [0,1].
func (c Curve) apply(t float64) float64 {
	switch c {
	case CurveLogarithmic:
		return math.Log10(9*t + 1)
	case CurveExponential:
		if t == 0 {
			return 0
		}
		return math.Pow(2, 10*(t-1))
	default:
		return t
	}
}

// Mix blends the fade window of two PCM streams: for sample i in [0,n),
// out[i] = outgoing[i]*(1-f(t)) + incoming[i]*f(t) with t = i/n. Buffers
// shorter than n are treated as silence past their end, so a short tail or
// head never panics, it just fades through silence.
func Mix(outgoing, incoming []float32, n int, curve Curve) []float32 {
	if n <= 0 {
		return nil
	}

	mixed := make([]float32, n)
	for i := 0; i < n; i++ {
		f := curve.apply(float64(i) / float64(n))

		var out, in float64
		if i < len(outgoing) {
			out = float64(outgoing[i])
		}
		if i < len(incoming) {
			in = float64(incoming[i])
		}
		mixed[i] = float32(out*(1-f) + in*f)
	}
	return mixed
}
