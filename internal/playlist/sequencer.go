// ABOUTME: Playlist ordering and navigation state
// ABOUTME: Shuffle permutations, repeat modes, and wraparound rules
package playlist

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/aria-audio/aria-go/pkg/audio"
	"github.com/rs/zerolog"
)

// RepeatMode controls navigation at track and playlist boundaries.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatOne
	RepeatAll
)

// String returns the repeat mode name.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParseRepeatMode converts a mode name, rejecting anything unknown.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return RepeatOff, nil
	case "one":
		return RepeatOne, nil
	case "all":
		return RepeatAll, nil
	default:
		return RepeatOff, fmt.Errorf("%w: unknown repeat mode %q", audio.ErrInvalidParameter, s)
	}
}

// Snapshot is a read-only view of sequencer state.
type Snapshot struct {
	Tracks       []audio.TrackInfo
	Order        []int
	CurrentIndex int
	Shuffle      bool
	Repeat       RepeatMode
}

// Sequencer tracks playlist order and position. Tracks keep their insertion
// order; navigation walks a permutation that is the identity until shuffle
// is enabled.
type Sequencer struct {
	logger zerolog.Logger
	rng    *rand.Rand

	mu      sync.Mutex
	tracks  []audio.TrackInfo
	order   []int
	pos     int // position within order; -1 when empty
	shuffle bool
	repeat  RepeatMode
}

// NewSequencer creates an empty sequencer.
func NewSequencer(logger zerolog.Logger) *Sequencer {
	return &Sequencer{
		logger: logger.With().Str("component", "playlist").Logger(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		pos:    -1,
	}
}

// Load replaces the playlist, preserving the given order. Shuffle and
// repeat settings survive a reload; position resets to the first track.
func (s *Sequencer) Load(tracks []audio.TrackInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tracks = make([]audio.TrackInfo, len(tracks))
	copy(s.tracks, tracks)
	s.order = identity(len(tracks))
	if s.shuffle {
		s.reshuffleLocked()
	}
	if len(tracks) == 0 {
		s.pos = -1
	} else {
		s.pos = 0
	}

	s.logger.Debug().Int("tracks", len(tracks)).Msg("playlist loaded")
}

// Len returns the number of loaded tracks.
func (s *Sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

// Current returns the track at the current position.
func (s *Sequencer) Current() (audio.TrackInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *Sequencer) currentLocked() (audio.TrackInfo, bool) {
	if s.pos < 0 || s.pos >= len(s.order) {
		return audio.TrackInfo{}, false
	}
	return s.tracks[s.order[s.pos]], true
}

// Peek returns the track Next would yield without advancing. It does
// not account for the reshuffle a repeat-all wraparound performs, so
// the caller must re-check after actually advancing.
func (s *Sequencer) Peek() (audio.TrackInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tracks) == 0 {
		return audio.TrackInfo{}, false
	}
	if s.repeat == RepeatOne {
		return s.currentLocked()
	}
	if s.pos+1 < len(s.order) {
		return s.tracks[s.order[s.pos+1]], true
	}
	if s.repeat == RepeatAll {
		return s.tracks[s.order[0]], true
	}
	return audio.TrackInfo{}, false
}

// Next advances to the next track. Repeat-one re-offers the current track;
// repeat-all wraps at the end, reshuffling the permutation when shuffle is
// active. At the natural end with repeat off there is no next track.
func (s *Sequencer) Next() (audio.TrackInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tracks) == 0 {
		return audio.TrackInfo{}, false
	}
	if s.repeat == RepeatOne {
		return s.currentLocked()
	}

	if s.pos+1 < len(s.order) {
		s.pos++
		return s.currentLocked()
	}

	if s.repeat == RepeatAll {
		if s.shuffle {
			s.reshuffleLocked()
		}
		s.pos = 0
		return s.currentLocked()
	}

	return audio.TrackInfo{}, false
}

// Previous retreats to the previous track. Repeat-one re-offers the current
// track; repeat-all wraps from the first track to the last.
func (s *Sequencer) Previous() (audio.TrackInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tracks) == 0 {
		return audio.TrackInfo{}, false
	}
	if s.repeat == RepeatOne {
		return s.currentLocked()
	}

	if s.pos > 0 {
		s.pos--
		return s.currentLocked()
	}

	if s.repeat == RepeatAll {
		s.pos = len(s.order) - 1
		return s.currentLocked()
	}

	return audio.TrackInfo{}, false
}

// JumpTo moves to the track at the given insertion-order index.
func (s *Sequencer) JumpTo(index int) (audio.TrackInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.tracks) {
		return audio.TrackInfo{}, fmt.Errorf("%w: playlist index %d out of range [0,%d)",
			audio.ErrInvalidParameter, index, len(s.tracks))
	}

	for p, trackIdx := range s.order {
		if trackIdx == index {
			s.pos = p
			break
		}
	}
	track, _ := s.currentLocked()
	return track, nil
}

// SetShuffle toggles shuffle. Enabling regenerates the permutation with the
// current track moved to the front so playback continuity is preserved;
// disabling restores insertion order at the current track's position.
func (s *Sequencer) SetShuffle(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuffle == enabled {
		return
	}

	currentTrack := -1
	if s.pos >= 0 && s.pos < len(s.order) {
		currentTrack = s.order[s.pos]
	}

	s.shuffle = enabled
	if enabled {
		s.reshuffleLocked()
		if currentTrack >= 0 {
			for p, trackIdx := range s.order {
				if trackIdx == currentTrack {
					s.order[0], s.order[p] = s.order[p], s.order[0]
					break
				}
			}
			s.pos = 0
		}
	} else {
		s.order = identity(len(s.tracks))
		if currentTrack >= 0 {
			s.pos = currentTrack
		}
	}

	s.logger.Debug().Bool("shuffle", enabled).Msg("shuffle changed")
}

// SetRepeat sets the repeat mode.
func (s *Sequencer) SetRepeat(mode RepeatMode) error {
	switch mode {
	case RepeatOff, RepeatOne, RepeatAll:
	default:
		return fmt.Errorf("%w: repeat mode %d", audio.ErrInvalidParameter, mode)
	}

	s.mu.Lock()
	s.repeat = mode
	s.mu.Unlock()

	s.logger.Debug().Str("repeat", mode.String()).Msg("repeat changed")
	return nil
}

// SetRepeatString parses and sets a repeat mode by name. On a bad name the
// mode is left unchanged.
func (s *Sequencer) SetRepeatString(name string) error {
	mode, err := ParseRepeatMode(name)
	if err != nil {
		return err
	}
	return s.SetRepeat(mode)
}

// Repeat returns the current repeat mode.
func (s *Sequencer) Repeat() RepeatMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repeat
}

// Snapshot returns a copy of the full sequencer state.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Tracks:       make([]audio.TrackInfo, len(s.tracks)),
		Order:        make([]int, len(s.order)),
		CurrentIndex: -1,
		Shuffle:      s.shuffle,
		Repeat:       s.repeat,
	}
	copy(snap.Tracks, s.tracks)
	copy(snap.Order, s.order)
	if s.pos >= 0 && s.pos < len(s.order) {
		snap.CurrentIndex = s.order[s.pos]
	}
	return snap
}

// reshuffleLocked regenerates the permutation. Caller holds the lock.
func (s *Sequencer) reshuffleLocked() {
	s.order = identity(len(s.tracks))
	s.rng.Shuffle(len(s.order), func(i, j int) {
		s.order[i], s.order[j] = s.order[j], s.order[i]
	})
}

func identity(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}
