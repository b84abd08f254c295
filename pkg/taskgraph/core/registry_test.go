package core

import (
	"context"
	"testing"
	"time"

	"github.com/jabolina/go-taskgraph/pkg/taskgraph/types"
)

// TestRegistryIdlePoolAtMostOnce checks that a worker may appear in the
// idle pool at most once even if Put is called for it repeatedly without
// an intervening Take.
func TestRegistryIdlePoolAtMostOnce(t *testing.T) {
	r := NewRegistry()
	r.Put("w1")
	r.Put("w1")
	r.Put("w1")

	if got := r.IdleCount(); got != 1 {
		t.Fatalf("IdleCount = %d, want 1", got)
	}

	peer, ok := r.TryTake()
	if !ok || peer != "w1" {
		t.Fatalf("TryTake = (%q, %v), want (w1, true)", peer, ok)
	}
	if _, ok := r.TryTake(); ok {
		t.Fatalf("TryTake should report empty pool after the only worker was taken")
	}
}

// TestRegistryTakeIsFIFO checks that Take hands out idle workers in the
// order they became idle.
func TestRegistryTakeIsFIFO(t *testing.T) {
	r := NewRegistry()
	r.Put("w1")
	r.Put("w2")
	r.Put("w3")

	ctx := context.Background()
	for _, want := range []types.PeerID{"w1", "w2", "w3"} {
		got, err := r.Take(ctx)
		if err != nil {
			t.Fatalf("Take: %v", err)
		}
		if got != want {
			t.Fatalf("Take = %q, want %q", got, want)
		}
	}
}

// TestRegistryTakeBlocksUntilPut confirms Take suspends a caller instead of
// failing when the pool is momentarily empty.
func TestRegistryTakeBlocksUntilPut(t *testing.T) {
	r := NewRegistry()

	result := make(chan types.PeerID, 1)
	go func() {
		peer, err := r.Take(context.Background())
		if err != nil {
			t.Errorf("Take: %v", err)
			return
		}
		result <- peer
	}()

	select {
	case <-result:
		t.Fatalf("Take returned before any worker was put")
	case <-time.After(50 * time.Millisecond):
	}

	r.Put("late-worker")

	select {
	case peer := <-result:
		if peer != "late-worker" {
			t.Fatalf("Take = %q, want late-worker", peer)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Take never returned after Put")
	}
}

// TestRegistryTakeRespectsContext ensures a cancelled caller is released
// rather than left blocked forever.
func TestRegistryTakeRespectsContext(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Take(ctx); err == nil {
		t.Fatalf("Take with a cancelled context should return an error")
	}
}
