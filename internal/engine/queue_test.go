// ABOUTME: Tests for the PCM chunk queue
// ABOUTME: Covers chunk splitting, underrun zero-fill, and producer blocking
package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReadIntoSplitsChunks(t *testing.T) {
	q := NewChunkQueue(4)
	ctx := context.Background()

	if err := q.Push(ctx, []float32{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := q.Push(ctx, []float32{4, 5}); err != nil {
		t.Fatal(err)
	}

	out := make([]float32, 2)
	if n := q.ReadInto(out); n != 2 {
		t.Fatalf("expected 2 samples, got %d", n)
	}
	if out[0] != 1 || out[1] != 2 {
		t.Errorf("unexpected samples: %v", out)
	}

	// Remainder of the first chunk plus the second chunk.
	out = make([]float32, 3)
	if n := q.ReadInto(out); n != 3 {
		t.Fatalf("expected 3 samples, got %d", n)
	}
	if out[0] != 3 || out[1] != 4 || out[2] != 5 {
		t.Errorf("unexpected samples: %v", out)
	}

	if !q.Empty() {
		t.Errorf("expected empty queue, %d samples left", q.SamplesQueued())
	}
}

func TestReadIntoUnderrunZeroFills(t *testing.T) {
	q := NewChunkQueue(4)
	if err := q.Push(context.Background(), []float32{0.5, 0.5}); err != nil {
		t.Fatal(err)
	}

	out := []float32{9, 9, 9, 9}
	n := q.ReadInto(out)
	if n != 2 {
		t.Fatalf("expected 2 real samples, got %d", n)
	}
	if out[0] != 0.5 || out[1] != 0.5 {
		t.Errorf("real samples corrupted: %v", out)
	}
	if out[2] != 0 || out[3] != 0 {
		t.Errorf("shortfall not zero-filled: %v", out)
	}
	if q.Underruns() != 1 {
		t.Errorf("expected 1 underrun, got %d", q.Underruns())
	}

	// A fully dry read is also one underrun.
	q.ReadInto(out)
	if q.Underruns() != 2 {
		t.Errorf("expected 2 underruns, got %d", q.Underruns())
	}
}

func TestPushBlocksWhenFull(t *testing.T) {
	q := NewChunkQueue(1)
	ctx := context.Background()

	if err := q.Push(ctx, []float32{1}); err != nil {
		t.Fatal(err)
	}

	blocked, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Push(blocked, []float32{2})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// Draining makes room again.
	out := make([]float32, 1)
	q.ReadInto(out)
	if err := q.Push(ctx, []float32{2}); err != nil {
		t.Fatalf("push after drain failed: %v", err)
	}
}

func TestClearDropsEverything(t *testing.T) {
	q := NewChunkQueue(4)
	ctx := context.Background()
	q.Push(ctx, []float32{1, 2, 3, 4})
	q.Push(ctx, []float32{5, 6})

	// Pull one sample so a partial chunk is pending.
	out := make([]float32, 1)
	q.ReadInto(out)

	q.Clear()
	if !q.Empty() {
		t.Errorf("expected empty queue after clear, %d samples left", q.SamplesQueued())
	}

	out = []float32{7}
	q.ReadInto(out)
	if out[0] != 0 {
		t.Errorf("expected silence after clear, got %v", out[0])
	}
}

func TestEmptyChunksDropped(t *testing.T) {
	q := NewChunkQueue(1)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := q.Push(ctx, nil); err != nil {
			t.Fatalf("empty push %d blocked: %v", i, err)
		}
	}
	if !q.Empty() {
		t.Error("empty chunks should not occupy the queue")
	}
}
