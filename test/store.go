package test

import (
	"sync"

	"github.com/jabolina/go-taskgraph/pkg/taskgraph/types"
)

// sharedStore backs every stub worker in a single test. Real workers each
// hold their own disjoint memory and would fetch missing dependencies from
// whichever peer a compute's locations name, which means a real
// worker-to-worker data-fetch path; this repository only ships the
// coordinator, not that worker runtime. Sharing one store across stub
// workers sidesteps building a second transport just for tests while still
// exercising the coordinator's own placement bookkeeping for real:
// WorkerFinishedTask still records the reporting peer as the holder of
// every key it declares, exactly as it would against distinct workers.
type sharedStore struct {
	mu     sync.Mutex
	values map[types.Key][]byte
}

func newSharedStore() *sharedStore {
	return &sharedStore{values: make(map[types.Key][]byte)}
}

func (s *sharedStore) set(key types.Key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *sharedStore) get(key types.Key) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *sharedStore) delete(key types.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}
