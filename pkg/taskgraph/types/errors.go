package types

import (
	"errors"
	"fmt"
)

// Sentinel errors. ErrMissingData and TaskFailure are fatal to a single
// Schedule call; malformed or unroutable frames are logged and dropped by
// the dispatcher rather than returned anywhere.
var (
	// ErrUnreachableTasks is returned when a graph has a non-empty waiting
	// set but no ready tasks to seed the schedule with.
	ErrUnreachableTasks = errors.New("taskgraph: graph has waiting tasks but no ready tasks")

	// ErrMissingData is returned when gather or trigger_task finds an
	// empty holder set for a key it needs.
	ErrMissingData = errors.New("taskgraph: no known holder for key")

	// ErrUnknownRendezvous is returned by the reply correlator when a
	// post targets a name that was never opened or was already closed.
	ErrUnknownRendezvous = errors.New("taskgraph: unknown rendezvous queue")

	// ErrUnknownCodec is returned when a header names a codec outside the
	// closed set taskgraph knows how to decode.
	ErrUnknownCodec = errors.New("taskgraph: unknown codec")

	// ErrNoWorkers is returned when an operation needs at least one known
	// worker and the registry is empty.
	ErrNoWorkers = errors.New("taskgraph: no workers registered")

	ErrClosed = errors.New("taskgraph: endpoint closed")
)

// TaskFailure wraps the error value a worker reported for a computed key.
type TaskFailure struct {
	Key   Key
	Cause error
}

func (e *TaskFailure) Error() string {
	return fmt.Sprintf("taskgraph: task %q failed: %v", e.Key, e.Cause)
}

func (e *TaskFailure) Unwrap() error {
	return e.Cause
}
