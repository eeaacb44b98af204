// ABOUTME: Bounded PCM chunk queue between decoder and audio callback
// ABOUTME: Blocking producer side, non-blocking zero-filling consumer side
package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// ChunkQueue buffers decoded PCM chunks between the decode pump and the
// realtime audio callback. Push blocks when the queue is full, which
// throttles the decoder to playback speed. ReadInto never blocks; when
// the queue runs dry it zero-fills the remainder and counts an underrun.
type ChunkQueue struct {
	ch        chan []float32
	mu        sync.Mutex
	pending   []float32
	queued    atomic.Int64
	underruns atomic.Uint64
}

// NewChunkQueue creates a queue holding up to capacity chunks.
func NewChunkQueue(capacity int) *ChunkQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &ChunkQueue{ch: make(chan []float32, capacity)}
}

// Push enqueues a chunk, blocking until space is available or the
// context is cancelled. Empty chunks are dropped.
func (q *ChunkQueue) Push(ctx context.Context, chunk []float32) error {
	if len(chunk) == 0 {
		return nil
	}
	select {
	case q.ch <- chunk:
		q.queued.Add(int64(len(chunk)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadInto fills out from queued samples, splitting chunks as needed.
// Any shortfall is zero-filled and counted as one underrun. It returns
// the number of real samples written.
func (q *ChunkQueue) ReadInto(out []float32) int {
	q.mu.Lock()

	n := 0
	for n < len(out) {
		if len(q.pending) == 0 {
			select {
			case chunk := <-q.ch:
				q.pending = chunk
			default:
			}
			if len(q.pending) == 0 {
				break
			}
		}
		c := copy(out[n:], q.pending)
		q.pending = q.pending[c:]
		n += c
	}
	if n > 0 {
		q.queued.Add(int64(-n))
	}
	q.mu.Unlock()

	if n < len(out) {
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
		q.underruns.Add(1)
	}
	return n
}

// DrainAll removes and returns every buffered sample. Used for
// crossfade mixing, where the remaining tail is blended by hand.
func (q *ChunkQueue) DrainAll() []float32 {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := append([]float32(nil), q.pending...)
	q.pending = nil
	for {
		select {
		case chunk := <-q.ch:
			out = append(out, chunk...)
		default:
			q.queued.Store(0)
			return out
		}
	}
}

// Clear drops all buffered samples. Used on stop and seek.
func (q *ChunkQueue) Clear() {
	q.mu.Lock()
	q.pending = nil
	for {
		select {
		case <-q.ch:
		default:
			q.queued.Store(0)
			q.mu.Unlock()
			return
		}
	}
}

// SamplesQueued returns the number of buffered samples.
func (q *ChunkQueue) SamplesQueued() int64 {
	return q.queued.Load()
}

// Empty reports whether no samples are buffered.
func (q *ChunkQueue) Empty() bool {
	return q.queued.Load() == 0
}

// Underruns returns the number of callback invocations that could not
// be fully satisfied.
func (q *ChunkQueue) Underruns() uint64 {
	return q.underruns.Load()
}
