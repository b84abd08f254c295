package core

import (
	"context"
	"sync"

	"github.com/jabolina/go-taskgraph/pkg/taskgraph/types"
	"golang.org/x/sync/semaphore"
)

// Dispatcher demultiplexes frames off one Endpoint by header.Function into
// handler routines run in a bounded pool, so a slow handler never stalls
// the receive loop.
type Dispatcher struct {
	endpoint *Endpoint
	handlers map[string]types.Handler
	sem      *semaphore.Weighted
	log      types.Logger
	inFlight sync.WaitGroup
}

func NewDispatcher(endpoint *Endpoint, poolSize int64, log types.Logger) *Dispatcher {
	return &Dispatcher{
		endpoint: endpoint,
		handlers: make(map[string]types.Handler),
		sem:      semaphore.NewWeighted(poolSize),
		log:      log,
	}
}

// Register installs the handler for function. Intended to be called once
// per function before Run starts; not safe to call concurrently with Run.
func (d *Dispatcher) Register(function string, handler types.Handler) {
	d.handlers[function] = handler
}

// Run is the receive loop: it blocks on the endpoint's frame channel and
// the shutdown context, exiting as soon as ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-d.endpoint.Frames():
			if !ok {
				return
			}
			d.dispatch(ctx, frame)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, frame types.Frame) {
	handler, ok := d.handlers[frame.Header.Function]
	if !ok {
		d.log.Warnf("transport drop: unknown function %q from %s", frame.Header.Function, frame.Peer)
		return
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		// Context cancelled while waiting for a pool slot: shutting down.
		return
	}
	d.inFlight.Add(1)
	go func() {
		defer d.inFlight.Done()
		defer d.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				d.log.Errorf("internal invariant violation: handler for %q panicked: %v", frame.Header.Function, r)
			}
		}()
		handler(frame)
	}()
}

// Wait blocks until every dispatched handler has returned. Coordinator.Close
// cancels Run's context before calling Wait and closes the endpoint after.
func (d *Dispatcher) Wait() {
	d.inFlight.Wait()
}
