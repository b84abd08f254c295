package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jabolina/go-taskgraph/pkg/taskgraph/types"
)

// Correlator holds named one-shot/multi-shot rendezvous channels keyed by
// UUID, used by Scatter/Gather/Schedule to await worker acks without
// blocking the dispatcher.
type Correlator struct {
	mutex   sync.Mutex
	queues  map[string]chan interface{}
	timeout time.Duration
	log     types.Logger
}

func NewCorrelator(timeout time.Duration, log types.Logger) *Correlator {
	return &Correlator{
		queues:  make(map[string]chan interface{}),
		timeout: timeout,
		log:     log,
	}
}

// Open allocates a fresh UUID-named rendezvous with the given buffer size
// (the expected reply count, or 1 for a single-reply rendezvous).
func (c *Correlator) Open(capacity int) (string, <-chan interface{}) {
	name := uuid.New().String()
	ch := make(chan interface{}, capacity)
	c.mutex.Lock()
	c.queues[name] = ch
	c.mutex.Unlock()
	return name, ch
}

// Post pushes item onto the named rendezvous. Posting to an unknown or
// already-closed name, or to one whose reader never drains in time,
// returns an error instead of blocking or panicking; Post itself also logs
// both cases so a caller that chooses to ignore the error still leaves a
// trace.
func (c *Correlator) Post(name string, item interface{}) error {
	c.mutex.Lock()
	ch, ok := c.queues[name]
	c.mutex.Unlock()
	if !ok {
		c.log.Warnf("post to unknown rendezvous %q: %v", name, types.ErrUnknownRendezvous)
		return types.ErrUnknownRendezvous
	}

	select {
	case ch <- item:
		return nil
	case <-time.After(c.timeout):
		c.log.Warnf("rendezvous %q did not drain within %s, dropping reply", name, c.timeout)
		return fmt.Errorf("taskgraph: rendezvous %q did not drain within %s", name, c.timeout)
	}
}

// Close removes name from the registry. Safe to call even if name is
// already gone.
func (c *Correlator) Close(name string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.queues, name)
}
