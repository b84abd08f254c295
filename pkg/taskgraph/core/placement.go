package core

import (
	"math/rand/v2"
	"sync"

	"github.com/jabolina/go-taskgraph/pkg/taskgraph/types"
)

// Placement is the bidirectional data-location index: holders[key] and
// held[worker] are kept jointly consistent under a single mutex, never
// mutated independently.
type Placement struct {
	mutex   sync.Mutex
	holders map[types.Key]map[types.PeerID]struct{}
	held    map[types.PeerID]map[types.Key]struct{}
}

func NewPlacement() *Placement {
	return &Placement{
		holders: make(map[types.Key]map[types.PeerID]struct{}),
		held:    make(map[types.PeerID]map[types.Key]struct{}),
	}
}

// Record marks worker as holding key. Idempotent.
func (p *Placement) Record(key types.Key, worker types.PeerID) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.holders[key] == nil {
		p.holders[key] = make(map[types.PeerID]struct{})
	}
	p.holders[key][worker] = struct{}{}
	if p.held[worker] == nil {
		p.held[worker] = make(map[types.Key]struct{})
	}
	p.held[worker][key] = struct{}{}
}

// Forget removes the (key, worker) pair from both mappings. Idempotent:
// applying it twice is equivalent to applying it once.
func (p *Placement) Forget(key types.Key, worker types.PeerID) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if set, ok := p.holders[key]; ok {
		delete(set, worker)
		if len(set) == 0 {
			delete(p.holders, key)
		}
	}
	if set, ok := p.held[worker]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(p.held, worker)
		}
	}
}

// HoldersOf returns a defensive snapshot of the workers known to hold key.
// Always a copy, so a caller that iterates the result while concurrently
// releasing holders (as the scheduler's releaseKey does) never races the
// live map.
func (p *Placement) HoldersOf(key types.Key) []types.PeerID {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	set := p.holders[key]
	out := make([]types.PeerID, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	return out
}

// PickHolder returns a random worker known to hold key.
func (p *Placement) PickHolder(key types.Key) (types.PeerID, bool) {
	holders := p.HoldersOf(key)
	if len(holders) == 0 {
		return "", false
	}
	return holders[rand.IntN(len(holders))], true
}
