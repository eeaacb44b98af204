// ABOUTME: Playback engine event and state definitions
// ABOUTME: Events are delivered on a non-blocking channel for observers
package engine

import (
	"github.com/aria-audio/aria-go/internal/netstream"
	"github.com/aria-audio/aria-go/pkg/audio"
)

// State is the engine's playback state.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// EventType categorizes engine events.
type EventType int

const (
	// EventStateChanged reports a playback state transition.
	EventStateChanged EventType = iota
	// EventTrackStarted reports the start of a track.
	EventTrackStarted
	// EventTrackEnded reports a natural track end.
	EventTrackEnded
	// EventPlaylistEnded reports the natural end of the playlist.
	// Emitted exactly once per playthrough.
	EventPlaylistEnded
	// EventUnderrun reports a callback that was partially zero-filled.
	EventUnderrun
	// EventDecodeError reports a decoder failure.
	EventDecodeError
	// EventDeviceError reports an output device failure.
	EventDeviceError
	// EventNetwork wraps a network stream event.
	EventNetwork
)

func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state_changed"
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventPlaylistEnded:
		return "playlist_ended"
	case EventUnderrun:
		return "underrun"
	case EventDecodeError:
		return "decode_error"
	case EventDeviceError:
		return "device_error"
	case EventNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Event is a single engine notification. Fields beyond Type are set
// only where they apply.
type Event struct {
	Type      EventType
	SessionID string
	State     State
	Track     audio.TrackInfo
	Err       error
	Net       netstream.Event
}
