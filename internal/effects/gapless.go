// ABOUTME: Gapless prebuffering of the next track's PCM
// ABOUTME: Owns the second decoder handle and its side buffer exclusively
package effects

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const readyPollInterval = 10 * time.Millisecond

// Source is the slice of a decoder the prebuffer needs: ordered chunks, a
// final status, and forced termination.
type Source interface {
	Chunks() <-chan []float32
	Done() <-chan error
	Terminate()
}

// Prebuffer accumulates the next track's decoded PCM ahead of the current
// track's end. It owns its decode handle; the only state it ever shares
// with the session is the final chunk handoff.
type Prebuffer struct {
	src    Source
	logger zerolog.Logger

	mu        sync.Mutex
	chunks    [][]float32
	samples   int
	minReady  int
	decodeEnd bool
	err       error
	cleaned   bool
}

// NewPrebuffer starts collecting from src. The prebuffer reports ready once
// minReadySamples have accumulated or the decoder finished cleanly.
func NewPrebuffer(src Source, minReadySamples int, logger zerolog.Logger) *Prebuffer {
	g := &Prebuffer{
		src:      src,
		minReady: minReadySamples,
		logger:   logger.With().Str("component", "gapless").Logger(),
	}
	go g.collect()
	return g
}

func (g *Prebuffer) collect() {
	// Always drain to channel close so the source's reader never wedges
	// on a send after Cleanup; post-cleanup chunks are dropped.
	for chunk := range g.src.Chunks() {
		g.mu.Lock()
		if !g.cleaned {
			g.chunks = append(g.chunks, chunk)
			g.samples += len(chunk)
		}
		g.mu.Unlock()
	}

	err := <-g.src.Done()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.decodeEnd = true
	if err != nil && !g.cleaned {
		g.err = err
		g.logger.Warn().Err(err).Msg("gapless prebuffer decode failed")
	}
}

// Ready reports whether enough PCM is buffered for a seamless handoff.
func (g *Prebuffer) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.readyLocked()
}

func (g *Prebuffer) readyLocked() bool {
	if g.err != nil || g.cleaned {
		return false
	}
	if g.samples >= g.minReady {
		return true
	}
	// A short track can finish before hitting the threshold.
	return g.decodeEnd && g.samples > 0
}

// Err returns the prebuffer decode error, if any.
func (g *Prebuffer) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Wait polls until the prebuffer is ready or the timeout passes. Returns
// false on timeout or failure; it never blocks indefinitely and never
// panics. A timed-out transition is abandoned by the caller, not retried.
func (g *Prebuffer) Wait(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		g.mu.Lock()
		ready := g.readyLocked()
		failed := g.err != nil || g.cleaned
		g.mu.Unlock()

		if ready {
			return true
		}
		if failed || !time.Now().Before(deadline) {
			return false
		}
		<-ticker.C
	}
}

// TakeChunks hands the buffered PCM to the caller and empties the side
// buffer. The decode handle stays alive for the remaining stream.
func (g *Prebuffer) TakeChunks() [][]float32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	chunks := g.chunks
	g.chunks = nil
	g.samples = 0
	return chunks
}

// Handle returns the underlying source so the session can adopt the decode
// process after the transition.
func (g *Prebuffer) Handle() Source {
	return g.src
}

// Cleanup forcibly terminates the prebuffering decoder and releases the
// side buffer. Idempotent; called on track change, explicit cleanup, or
// session stop.
func (g *Prebuffer) Cleanup() {
	g.mu.Lock()
	if g.cleaned {
		g.mu.Unlock()
		return
	}
	g.cleaned = true
	g.chunks = nil
	g.samples = 0
	g.mu.Unlock()

	g.src.Terminate()
}
