package types

// DAGState is the mutable state a single schedule run threads through the
// DAG state helper. Every key in the owning graph appears in exactly one of
// Waiting, Ready, Running, Released at any point in the run.
type DAGState struct {
	Waiting map[Key]struct{}
	Ready   []Key
	ReadySet map[Key]struct{}
	Running map[Key]struct{}
	Released map[Key]struct{}

	// WaitingData maps an intermediate key to the set of dependent keys
	// still waiting on it; once empty the key is a release candidate.
	WaitingData map[Key]map[Key]struct{}
}

// ReleaseFunc is invoked by FinishTask for every intermediate key that is
// no longer needed by any pending dependent and was not requested by the
// caller of Schedule.
type ReleaseFunc func(key Key, state *DAGState)

// DAGStateHelper owns the bookkeeping rules for moving keys between the
// waiting/ready/running/released sets as a run progresses. It is kept as a
// pluggable collaborator rather than inlined into Scheduler so an embedder
// can swap in a different readiness policy; package definition provides the
// default implementation the scheduler runs against.
type DAGStateHelper interface {
	// InitialState partitions graph's keys into waiting/ready/running/
	// released and populates waiting_data. Literal keys are extracted into
	// cache and placed in Released (they need no computation, only
	// scattering).
	InitialState(graph Graph, cache map[Key][]byte) (*DAGState, error)

	// FinishTask applies the completion rule for key: moves it out of
	// Running, promotes any dependent whose waiting set just drained to
	// Ready, and calls release for every intermediate key that has no
	// remaining dependents and is not in requested.
	FinishTask(graph Graph, key Key, state *DAGState, requested map[Key]struct{}, release ReleaseFunc)
}
