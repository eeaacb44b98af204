// ABOUTME: Format negotiation between track format and device capabilities
// ABOUTME: Deterministic per-dimension resolution with conservative fallbacks
package device

import (
	"fmt"
	"sort"

	"github.com/aria-audio/aria-go/pkg/audio"
)

// NegotiatedFormat is the concrete output format resolved for a track on a
// device. It is derived state, never mutated after creation.
type NegotiatedFormat struct {
	SampleRate              int
	Channels                int
	BitDepth                int
	NeedsResampling         bool
	NeedsRemixing           bool
	NeedsBitDepthConversion bool
	Supported               bool
}

// Format returns the negotiated triple as an audio.Format.
func (n NegotiatedFormat) Format() audio.Format {
	return audio.Format{SampleRate: n.SampleRate, Channels: n.Channels, BitDepth: n.BitDepth}
}

// Negotiate resolves a track format against device capabilities. Each
// dimension resolves independently: exact match wins, otherwise the greatest
// supported value below the track's, otherwise the lowest supported value.
// Missing or invalid track values fall back to 44100/2/16 when supported.
// The registry is consulted once to confirm the resolved triple; if the
// device rejects it, Supported is false and the caller decides on a retry.
func Negotiate(track audio.Format, dev Capabilities, reg *Registry) NegotiatedFormat {
	out := NegotiatedFormat{
		SampleRate: resolveDimension(track.SampleRate, dev.SampleRates, audio.DefaultSampleRate),
		Channels:   resolveDimension(track.Channels, dev.ChannelCounts, audio.DefaultChannels),
		BitDepth:   resolveDimension(track.BitDepth, dev.BitDepths, audio.DefaultBitDepth),
	}

	out.NeedsResampling = track.SampleRate > 0 && out.SampleRate != track.SampleRate
	out.NeedsRemixing = track.Channels > 0 && out.Channels != track.Channels
	out.NeedsBitDepthConversion = track.BitDepth > 0 && out.BitDepth != track.BitDepth

	out.Supported = reg.IsFormatSupported(dev, out.SampleRate, out.Channels, out.BitDepth)
	return out
}

// NegotiateWithFallback retries a rejected negotiation once against the
// device's default rate and max channel count. The fallback is a single
// retry, never a loop.
func NegotiateWithFallback(track audio.Format, dev Capabilities, reg *Registry) (NegotiatedFormat, error) {
	nf := Negotiate(track, dev, reg)
	if nf.Supported {
		return nf, nil
	}

	fallback := audio.Format{
		SampleRate: dev.DefaultSampleRate,
		Channels:   dev.MaxOutputChannels,
		BitDepth:   audio.DefaultBitDepth,
	}
	nf = Negotiate(fallback, dev, reg)
	if !nf.Supported {
		return nf, fmt.Errorf("%w: device %q rejected %dHz/%dch/%dbit and its own default",
			audio.ErrUnsupportedFormat, dev.Name, nf.SampleRate, nf.Channels, nf.BitDepth)
	}

	// Conversion flags must reflect the original track, not the fallback.
	nf.NeedsResampling = track.SampleRate > 0 && nf.SampleRate != track.SampleRate
	nf.NeedsRemixing = track.Channels > 0 && nf.Channels != track.Channels
	nf.NeedsBitDepthConversion = track.BitDepth > 0 && nf.BitDepth != track.BitDepth
	return nf, nil
}

// resolveDimension picks a supported value for one format dimension.
func resolveDimension(trackValue int, supported []int, conservative int) int {
	if len(supported) == 0 {
		// No capability data: trust the track, else the conservative default.
		if trackValue > 0 {
			return trackValue
		}
		return conservative
	}

	sorted := make([]int, len(supported))
	copy(sorted, supported)
	sort.Ints(sorted)

	if trackValue <= 0 {
		for _, v := range sorted {
			if v == conservative {
				return conservative
			}
		}
		return sorted[0]
	}

	// Exact match always wins.
	for _, v := range sorted {
		if v == trackValue {
			return trackValue
		}
	}

	// Greatest supported value below the track's, avoiding upconversion.
	best := -1
	for _, v := range sorted {
		if v < trackValue {
			best = v
		}
	}
	if best > 0 {
		return best
	}

	// Track value below everything supported: take the lowest.
	return sorted[0]
}
