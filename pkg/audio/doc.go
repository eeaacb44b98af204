// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, TrackInfo, sample conversion, and the error taxonomy
// Package audio provides fundamental audio types and utilities for the
// playback pipeline.
//
// This package defines the core types used throughout aria:
//   - Format: Describes a PCM stream (sample rate, channels, bit depth)
//   - TrackInfo: A playable item, local file or remote URL
//
// It also provides utilities for converting between sample formats:
//   - float32 ↔ little-endian byte conversions for the decoder pipe
//   - float32 → clamped int16/int24/int32 conversions for device output
//
// Example:
//
//	format := audio.Format{
//	    SampleRate: 192000,
//	    Channels:   2,
//	    BitDepth:   24,
//	}
//
//	// Convert a float sample to device range
//	sample16 := audio.Float32ToInt16(sample)
package audio
