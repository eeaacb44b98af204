// ABOUTME: Audio type definitions shared across the pipeline
// ABOUTME: Defines formats, track info, and PCM sample conversions
package audio

import (
	"encoding/binary"
	"math"
	"strings"
)

// Conservative defaults used when a probe fails or reports nonsense.
const (
	DefaultSampleRate = 44100
	DefaultChannels   = 2
	DefaultBitDepth   = 16
)

// Format describes a PCM stream format.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Valid reports whether all format fields are positive.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0 && f.BitDepth > 0
}

// DefaultFormat returns the conservative fallback format.
func DefaultFormat() Format {
	return Format{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		BitDepth:   DefaultBitDepth,
	}
}

// TrackInfo describes a playable track. Path may be a local file or an
// HTTP(S) URL. DurationSeconds stays zero until probed.
type TrackInfo struct {
	Path            string
	Format          Format
	DurationSeconds float64
}

// IsRemote reports whether the track is fetched over the network.
func (t TrackInfo) IsRemote() bool {
	return strings.HasPrefix(t.Path, "http://") || strings.HasPrefix(t.Path, "https://")
}

// BytesToFloat32 decodes little-endian float32 PCM bytes into samples.
// Trailing bytes that do not form a full sample are dropped.
func BytesToFloat32(data []byte) []float32 {
	n := len(data) / 4
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}

// Float32ToBytes encodes samples as little-endian float32 PCM bytes.
func Float32ToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// Float32ToInt16 converts a float sample in [-1,1] to a clamped int16.
func Float32ToInt16(s float32) int16 {
	v := int32(s * 32767)
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// Float32ToInt24 converts a float sample in [-1,1] to packed
// little-endian 24-bit bytes with clamping.
func Float32ToInt24(s float32) [3]byte {
	v := int32(s * 8388607)
	if v > 8388607 {
		v = 8388607
	} else if v < -8388608 {
		v = -8388608
	}
	return [3]byte{byte(v), byte(v >> 8), byte(v >> 16)}
}

// Float32ToInt32 converts a float sample in [-1,1] to a clamped int32.
func Float32ToInt32(s float32) int32 {
	f := float64(s) * 2147483647
	if f > 2147483647 {
		f = 2147483647
	} else if f < -2147483648 {
		f = -2147483648
	}
	return int32(f)
}
