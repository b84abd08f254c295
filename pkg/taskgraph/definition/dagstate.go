package definition

import "github.com/jabolina/go-taskgraph/pkg/taskgraph/types"

// SimpleDAGState is the default DAGStateHelper: a key is ready once every
// key it depends on is released, and releasing a dependency is safe once no
// remaining waiting task still needs it and the caller didn't ask for it.
type SimpleDAGState struct{}

func NewSimpleDAGState() *SimpleDAGState { return &SimpleDAGState{} }

func (SimpleDAGState) InitialState(graph types.Graph, cache map[types.Key][]byte) (*types.DAGState, error) {
	state := &types.DAGState{
		Waiting:     make(map[types.Key]struct{}),
		ReadySet:    make(map[types.Key]struct{}),
		Running:     make(map[types.Key]struct{}),
		Released:    make(map[types.Key]struct{}),
		WaitingData: make(map[types.Key]map[types.Key]struct{}),
	}

	dependents := make(map[types.Key]map[types.Key]struct{})
	for key, task := range graph {
		if task.IsLiteral() {
			cache[key] = task.Literal
			state.Released[key] = struct{}{}
			continue
		}
		state.Waiting[key] = struct{}{}
		for _, dep := range task.Compute.Args {
			if dependents[dep] == nil {
				dependents[dep] = make(map[types.Key]struct{})
			}
			dependents[dep][key] = struct{}{}
		}
	}
	for dep, waiters := range dependents {
		state.WaitingData[dep] = waiters
	}

	for key := range state.Waiting {
		if allReleased(graph[key], state) {
			promote(state, key)
		}
	}

	return state, nil
}

func (SimpleDAGState) FinishTask(graph types.Graph, key types.Key, state *types.DAGState, requested map[types.Key]struct{}, release types.ReleaseFunc) {
	delete(state.Running, key)
	state.Released[key] = struct{}{}

	for _, dep := range graph[key].Dependencies() {
		waiters, ok := state.WaitingData[dep]
		if !ok {
			continue
		}
		delete(waiters, key)
		if len(waiters) == 0 {
			delete(state.WaitingData, dep)
			if _, isRequested := requested[dep]; !isRequested {
				release(dep, state)
			}
		}
	}

	for waitingKey := range state.Waiting {
		if allReleased(graph[waitingKey], state) {
			promote(state, waitingKey)
		}
	}
}

func allReleased(task types.Task, state *types.DAGState) bool {
	for _, dep := range task.Dependencies() {
		if _, done := state.Released[dep]; !done {
			return false
		}
	}
	return true
}

func promote(state *types.DAGState, key types.Key) {
	delete(state.Waiting, key)
	state.Ready = append(state.Ready, key)
	state.ReadySet[key] = struct{}{}
}
