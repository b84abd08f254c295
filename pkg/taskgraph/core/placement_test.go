package core

import (
	"testing"

	"github.com/jabolina/go-taskgraph/pkg/taskgraph/types"
)

// assertBidirectional checks the placement invariant w ∈ holders[k] ⇔
// k ∈ held[w].
func assertBidirectional(t *testing.T, p *Placement, key types.Key, worker types.PeerID, want bool) {
	t.Helper()
	holders := p.HoldersOf(key)
	holds := false
	for _, h := range holders {
		if h == worker {
			holds = true
			break
		}
	}
	if holds != want {
		t.Fatalf("worker %q in holders[%q] = %v, want %v", worker, key, holds, want)
	}
	p.mutex.Lock()
	_, inHeld := p.held[worker][key]
	p.mutex.Unlock()
	if inHeld != want {
		t.Fatalf("key %q in held[%q] = %v, want %v", key, worker, inHeld, want)
	}
}

func TestPlacementBidirectionalInvariant(t *testing.T) {
	p := NewPlacement()
	p.Record("x", "w1")
	p.Record("x", "w2")
	p.Record("y", "w1")

	assertBidirectional(t, p, "x", "w1", true)
	assertBidirectional(t, p, "x", "w2", true)
	assertBidirectional(t, p, "y", "w2", false)

	p.Forget("x", "w1")
	assertBidirectional(t, p, "x", "w1", false)
	assertBidirectional(t, p, "x", "w2", true)
	// w1 should still hold y.
	assertBidirectional(t, p, "y", "w1", true)
}

// TestPlacementReleaseIsIdempotent checks that applying Forget twice is
// equivalent to applying it once.
func TestPlacementReleaseIsIdempotent(t *testing.T) {
	p := NewPlacement()
	p.Record("x", "w1")

	p.Forget("x", "w1")
	p.Forget("x", "w1")

	if holders := p.HoldersOf("x"); len(holders) != 0 {
		t.Fatalf("HoldersOf(x) = %v, want empty after two Forgets", holders)
	}
	if _, ok := p.PickHolder("x"); ok {
		t.Fatalf("PickHolder(x) should report no holder after Forget")
	}
}

// TestPlacementHoldersOfIsASnapshot checks that mutating the index while a
// caller holds a HoldersOf result does not corrupt or resize the caller's
// slice.
func TestPlacementHoldersOfIsASnapshot(t *testing.T) {
	p := NewPlacement()
	p.Record("x", "w1")
	p.Record("x", "w2")
	p.Record("x", "w3")

	snapshot := p.HoldersOf("x")
	if len(snapshot) != 3 {
		t.Fatalf("snapshot len = %d, want 3", len(snapshot))
	}

	for _, w := range snapshot {
		p.Forget("x", w)
	}

	if len(snapshot) != 3 {
		t.Fatalf("iterating Forget over the snapshot mutated it: len = %d", len(snapshot))
	}
	if holders := p.HoldersOf("x"); len(holders) != 0 {
		t.Fatalf("HoldersOf(x) = %v, want empty after releasing every snapshotted holder", holders)
	}
}
