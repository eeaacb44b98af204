// ABOUTME: HTTP(S) stream ingestion with buffering, resume, and reconnection backoff
// ABOUTME: Feeds the decoder's stdin through a pipe, surviving connection drops
package netstream

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aria-audio/aria-go/pkg/audio"
	"github.com/rs/zerolog"
)

// State of one connection attempt.
type State int

const (
	StateConnecting State = iota
	StateBuffering
	StateStreaming
	StateEnded
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateBuffering:
		return "buffering"
	case StateStreaming:
		return "streaming"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// EventType labels stream lifecycle events.
type EventType int

const (
	EventConnecting EventType = iota
	EventBuffering
	EventStreaming
	EventRetry
	EventPartialRestart
	EventEnded
	EventExhausted
)

// Event is an out-of-band stream notification.
type Event struct {
	Type    EventType
	Attempt int
	Offset  int64
	Delay   time.Duration
	Err     error
}

// Config tunes ingestion buffering and the reconnection protocol.
type Config struct {
	URL             string
	BufferSizeBytes int
	MaxRetries      int
	BackoffBase     time.Duration
	Client          *http.Client // optional override
}

// Source ingests an HTTP(S) audio stream. Bytes buffer up to the prebuffer
// threshold before the first flush, then pass straight through to the pipe
// the decoder reads from.
type Source struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger

	pr     *io.PipeReader
	pw     *io.PipeWriter
	events chan Event

	offset   atomic.Int64
	attempts atomic.Int64

	cancel  context.CancelFunc
	stopped sync.Once
}

// New creates a stream source for cfg.URL.
func New(cfg Config, logger zerolog.Logger) *Source {
	client := cfg.Client
	if client == nil {
		// Long-lived stream: no overall timeout, but bounded dial and
		// header waits so a dead server fails fast.
		client = &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 15 * time.Second,
				IdleConnTimeout:       90 * time.Second,
				DisableCompression:    true,
			},
		}
	}

	pr, pw := io.Pipe()
	return &Source{
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("component", "netstream").Str("url", cfg.URL).Logger(),
		pr:     pr,
		pw:     pw,
		events: make(chan Event, 32),
	}
}

// Reader is the decoder-facing end of the stream.
func (s *Source) Reader() io.ReadCloser {
	return s.pr
}

// Events returns the out-of-band notification channel.
func (s *Source) Events() <-chan Event {
	return s.events
}

// Offset returns the last successfully delivered byte offset.
func (s *Source) Offset() int64 {
	return s.offset.Load()
}

// Attempts returns the number of connection attempts made so far.
func (s *Source) Attempts() int {
	return int(s.attempts.Load())
}

// Start begins ingestion. It returns immediately; bytes flow on a
// background goroutine until the stream ends, retries are exhausted, or
// Stop is called.
func (s *Source) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

// Stop abandons any in-flight request and closes the pipe. Idempotent and
// safe to invoke from error handlers.
func (s *Source) Stop() {
	s.stopped.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.pr.Close()
		s.pw.CloseWithError(io.ErrClosedPipe)
	})
}

// run drives the per-attempt state machine:
// Connecting -> Buffering -> Streaming -> (Ended | Error).
func (s *Source) run(ctx context.Context) {
	defer close(s.events)

	failures := 0

	for {
		s.attempts.Add(1)
		attempt := int(s.attempts.Load())
		s.emit(Event{Type: EventConnecting, Attempt: attempt, Offset: s.offset.Load()})

		err := s.streamOnce(ctx, attempt)
		if err == nil {
			s.emit(Event{Type: EventEnded, Offset: s.offset.Load()})
			s.pw.Close()
			return
		}
		if ctx.Err() != nil {
			// Stopped or cancelled; not an error condition.
			return
		}

		failures++
		if failures > s.cfg.MaxRetries {
			s.logger.Error().Err(err).Int("attempts", attempt).Msg("reconnection attempts exhausted")
			exhausted := fmt.Errorf("%w: gave up after %d attempts: %v", audio.ErrReconnectExhausted, attempt, err)
			s.emit(Event{Type: EventExhausted, Attempt: attempt, Err: exhausted})
			s.pw.CloseWithError(exhausted)
			return
		}

		delay := BackoffDelay(s.cfg.BackoffBase, failures)
		s.logger.Warn().Err(err).
			Int("retry", failures).
			Dur("delay", delay).
			Int64("offset", s.offset.Load()).
			Msg("stream error, scheduling reconnect")
		s.emit(Event{Type: EventRetry, Attempt: attempt, Offset: s.offset.Load(), Delay: delay, Err: err})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// streamOnce performs a single connection attempt, resuming from the last
// delivered byte offset when possible. Returns nil on clean stream end.
func (s *Source) streamOnce(ctx context.Context, attempt int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", audio.ErrNetwork, err)
	}

	offset := s.offset.Load()
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", audio.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if offset > 0 {
			// Server ignored the Range request: restart from zero and say
			// so, rather than splicing mismatched byte ranges.
			s.logger.Warn().Int64("lost_offset", offset).Msg("server did not honor resume, restarting from start")
			s.offset.Store(0)
			s.emit(Event{Type: EventPartialRestart, Attempt: attempt, Offset: offset})
		}
	case http.StatusPartialContent:
		// Resume honored, keep the carried offset.
	default:
		return fmt.Errorf("%w: unexpected status %d", audio.ErrNetwork, resp.StatusCode)
	}

	s.emit(Event{Type: EventBuffering, Attempt: attempt, Offset: s.offset.Load()})
	return s.pump(resp.Body, attempt)
}

// pump copies body bytes to the decoder pipe. The first BufferSizeBytes
// accumulate before flushing so request-level jitter cannot stutter the
// decoder; after that threshold bytes pass straight through.
func (s *Source) pump(body io.Reader, attempt int) error {
	buf := make([]byte, 32*1024)
	var pending []byte
	streaming := false

	flush := func(data []byte) error {
		if len(data) == 0 {
			return nil
		}
		if _, err := s.pw.Write(data); err != nil {
			return err
		}
		s.offset.Add(int64(len(data)))
		return nil
	}

	for {
		n, err := body.Read(buf)
		if n > 0 {
			if streaming {
				if werr := flush(buf[:n]); werr != nil {
					return werr
				}
			} else {
				pending = append(pending, buf[:n]...)
				if len(pending) >= s.cfg.BufferSizeBytes {
					if werr := flush(pending); werr != nil {
						return werr
					}
					pending = nil
					streaming = true
					s.emit(Event{Type: EventStreaming, Attempt: attempt, Offset: s.offset.Load()})
				}
			}
		}
		if err == io.EOF {
			// Stream shorter than the prebuffer still plays in full.
			return flush(pending)
		}
		if err != nil {
			if werr := flush(pending); werr != nil {
				return werr
			}
			return fmt.Errorf("%w: %v", audio.ErrNetwork, err)
		}
	}
}

// emit delivers an event without ever blocking ingestion on a slow observer.
func (s *Source) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Debug().Int("type", int(ev.Type)).Msg("event dropped, observer lagging")
	}
}

// BackoffDelay returns the delay before retry k (1-based):
// base * 2^(k-1), capped at 30 seconds.
func BackoffDelay(base time.Duration, k int) time.Duration {
	if k < 1 {
		k = 1
	}
	delay := base << uint(k-1)
	if delay > 30*time.Second || delay <= 0 {
		return 30 * time.Second
	}
	return delay
}
