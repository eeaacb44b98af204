// ABOUTME: Error taxonomy for the playback pipeline
// ABOUTME: Sentinel errors matched with errors.Is across package boundaries
package audio

import "errors"

var (
	// ErrUnsupportedFormat means format negotiation could not produce a
	// format the device accepts and no fallback policy applies.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrDecodeFailed means the decoder process exited non-zero before
	// clean completion.
	ErrDecodeFailed = errors.New("decode failed")

	// ErrDeviceUnavailable means no output device could be opened or the
	// capability query is unavailable.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrNetwork is a retryable network failure during stream ingestion.
	ErrNetwork = errors.New("network error")

	// ErrReconnectExhausted is terminal: the retry budget ran out.
	ErrReconnectExhausted = errors.New("reconnection attempts exhausted")

	// ErrEffectUnavailable means the requested effect conflicts with
	// bit-perfect mode.
	ErrEffectUnavailable = errors.New("effect unavailable in bit-perfect mode")

	// ErrInvalidParameter means caller input failed validation. Reported
	// synchronously, never retried.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// IsRetryable reports whether an error may be retried automatically.
// Only transient network failures qualify; everything else is either
// terminal or user-correctable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) && !errors.Is(err, ErrReconnectExhausted)
}
