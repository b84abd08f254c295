package types

import "time"

// Config bundles the coordinator's tunables. There is no flag/env/file
// loading here; callers build one directly or start from DefaultConfig and
// override individual fields.
type Config struct {
	// WorkerAddress and ClientAddress are bind addresses for the two
	// endpoints. Empty or ":0" auto-allocates a port on all interfaces.
	WorkerAddress string
	ClientAddress string

	// DispatchPoolSize bounds the number of concurrently running RPC
	// handlers per endpoint.
	DispatchPoolSize int64

	// PostTimeout bounds how long Post to a rendezvous waits for a slow
	// reader before giving up and logging instead of blocking forever.
	PostTimeout time.Duration

	Logger Logger
}

func DefaultConfig() *Config {
	return &Config{
		WorkerAddress:    ":0",
		ClientAddress:    ":0",
		DispatchPoolSize: 100,
		PostTimeout:      150 * time.Millisecond,
	}
}
