package core

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/jabolina/go-taskgraph/pkg/taskgraph/types"
)

// Registry tracks known workers and exposes a FIFO idle-worker pool. A
// worker is added to the pool on register and on finishing a task, and
// taken from the pool when the scheduler fires a new task onto it.
type Registry struct {
	mutex sync.Mutex
	peers map[types.PeerID]types.WorkerInfo

	idleOrder []types.PeerID
	idleSet   map[types.PeerID]struct{}
	idleCh    chan struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		peers:   make(map[types.PeerID]types.WorkerInfo),
		idleSet: make(map[types.PeerID]struct{}),
		idleCh:  make(chan struct{}, 1),
	}
}

// Add registers peer, creating it if unseen. Re-registering an already
// known peer just refreshes its metadata; workers are never removed.
func (r *Registry) Add(peer types.PeerID, info types.WorkerInfo) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.peers[peer] = info
}

func (r *Registry) Contains(peer types.PeerID) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, ok := r.peers[peer]
	return ok
}

// Snapshot returns every known worker id in registration-map iteration
// order (unspecified, per map semantics — callers needing determinism must
// sort).
func (r *Registry) Snapshot() []types.PeerID {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make([]types.PeerID, 0, len(r.peers))
	for id := range r.peers {
		out = append(out, id)
	}
	return out
}

// RandomPeer picks one known worker uniformly at random.
func (r *Registry) RandomPeer() (types.PeerID, bool) {
	ids := r.Snapshot()
	if len(ids) == 0 {
		return "", false
	}
	return ids[rand.IntN(len(ids))], true
}

// Put returns peer to the idle pool if it is not already in it. A worker
// may appear in the pool at most once.
func (r *Registry) Put(peer types.PeerID) {
	r.mutex.Lock()
	if _, already := r.idleSet[peer]; already {
		r.mutex.Unlock()
		return
	}
	r.idleSet[peer] = struct{}{}
	r.idleOrder = append(r.idleOrder, peer)
	r.mutex.Unlock()

	select {
	case r.idleCh <- struct{}{}:
	default:
	}
}

// Take blocks until a worker is available, then removes and returns the
// longest-idle one (strict FIFO).
func (r *Registry) Take(ctx context.Context) (types.PeerID, error) {
	for {
		r.mutex.Lock()
		if len(r.idleOrder) > 0 {
			peer := r.idleOrder[0]
			r.idleOrder = r.idleOrder[1:]
			delete(r.idleSet, peer)
			more := len(r.idleOrder) > 0
			r.mutex.Unlock()
			if more {
				// Put's wake-up signal holds at most one pending token, so
				// pass it on to the next waiter while workers remain idle.
				select {
				case r.idleCh <- struct{}{}:
				default:
				}
			}
			return peer, nil
		}
		r.mutex.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-r.idleCh:
		}
	}
}

// IdleCount reports how many workers are currently idle, used by the
// scheduler's seed loop to decide how many ready tasks it can fire without
// blocking.
func (r *Registry) IdleCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.idleOrder)
}

// TryTake is a non-blocking variant of Take: it returns ok=false instead of
// waiting when no worker is idle.
func (r *Registry) TryTake() (types.PeerID, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if len(r.idleOrder) == 0 {
		return "", false
	}
	peer := r.idleOrder[0]
	r.idleOrder = r.idleOrder[1:]
	delete(r.idleSet, peer)
	return peer, true
}
