// ABOUTME: Tests for gapless prebuffering
// ABOUTME: Uses a fake decode source to cover readiness, timeout, and cleanup
package effects

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeSource simulates a decoder feeding the prebuffer.
type fakeSource struct {
	chunks     chan []float32
	done       chan error
	terminated atomic.Bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		chunks: make(chan []float32, 16),
		done:   make(chan error, 1),
	}
}

func (f *fakeSource) Chunks() <-chan []float32 { return f.chunks }
func (f *fakeSource) Done() <-chan error       { return f.done }
func (f *fakeSource) Terminate()               { f.terminated.Store(true) }

func (f *fakeSource) finish(err error) {
	close(f.chunks)
	f.done <- err
}

func TestPrebufferBecomesReadyAtThreshold(t *testing.T) {
	src := newFakeSource()
	g := NewPrebuffer(src, 8, zerolog.Nop())

	if g.Ready() {
		t.Error("prebuffer should not be ready before any data")
	}

	src.chunks <- make([]float32, 4)
	src.chunks <- make([]float32, 4)

	if !g.Wait(time.Second) {
		t.Fatal("expected ready after threshold samples")
	}

	chunks := g.TakeChunks()
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total != 8 {
		t.Errorf("expected 8 buffered samples, got %d", total)
	}
}

func TestPrebufferReadyOnShortTrack(t *testing.T) {
	// A track shorter than the threshold is ready once decoding completes.
	src := newFakeSource()
	g := NewPrebuffer(src, 1000, zerolog.Nop())

	src.chunks <- make([]float32, 10)
	src.finish(nil)

	if !g.Wait(time.Second) {
		t.Fatal("expected ready after clean decode completion")
	}
}

func TestPrebufferWaitTimesOut(t *testing.T) {
	// A decoder that never produces anything: the wait must return false
	// within roughly the timeout, per the bounded-wait contract.
	src := newFakeSource()
	g := NewPrebuffer(src, 8, zerolog.Nop())

	start := time.Now()
	ready := g.Wait(100 * time.Millisecond)
	elapsed := time.Since(start)

	if ready {
		t.Error("expected timeout, got ready")
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("wait exceeded its bound: %v", elapsed)
	}

	g.Cleanup()
	if !src.terminated.Load() {
		t.Error("cleanup should terminate the decode source")
	}
}

func TestPrebufferDecodeFailure(t *testing.T) {
	src := newFakeSource()
	g := NewPrebuffer(src, 1000, zerolog.Nop())

	src.chunks <- make([]float32, 10)
	src.finish(errors.New("decoder crashed"))

	if g.Wait(time.Second) {
		t.Error("failed prebuffer should never report ready")
	}
	if g.Err() == nil {
		t.Error("expected recorded error")
	}
}

func TestPrebufferCleanupIdempotent(t *testing.T) {
	src := newFakeSource()
	g := NewPrebuffer(src, 8, zerolog.Nop())

	src.chunks <- make([]float32, 16)

	g.Cleanup()
	g.Cleanup()

	if g.Ready() {
		t.Error("cleaned prebuffer should not report ready")
	}
	if chunks := g.TakeChunks(); len(chunks) != 0 {
		t.Errorf("cleanup should release buffers, got %d chunks", len(chunks))
	}
}

func TestPrebufferDrainsSourceAfterCleanup(t *testing.T) {
	// A source whose reader is still mid-stream at cleanup time must not
	// wedge on its chunk sends; the collector drains to channel close.
	src := newFakeSource()
	src.chunks = make(chan []float32) // unbuffered: sends need a live reader
	g := NewPrebuffer(src, 8, zerolog.Nop())

	g.Cleanup()

	sent := make(chan struct{})
	go func() {
		for i := 0; i < 4; i++ {
			src.chunks <- make([]float32, 32)
		}
		src.finish(nil)
		close(sent)
	}()

	select {
	case <-sent:
	case <-time.After(5 * time.Second):
		t.Fatal("source blocked sending chunks after cleanup")
	}

	if chunks := g.TakeChunks(); len(chunks) != 0 {
		t.Errorf("post-cleanup chunks should be dropped, got %d", len(chunks))
	}
}
