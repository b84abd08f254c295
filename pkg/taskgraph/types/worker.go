package types

import "time"

// WorkerInfo is everything the coordinator knows about a registered worker.
type WorkerInfo struct {
	ID PeerID

	// Metadata is opaque, announced by the worker at register time. The
	// coordinator never interprets it.
	Metadata []byte

	// RegisteredAt is ambient bookkeeping; nothing in this implementation
	// makes a scheduling decision based on it yet.
	RegisteredAt time.Time
}
