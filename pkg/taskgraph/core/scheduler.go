package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jabolina/go-taskgraph/pkg/taskgraph/types"
)

// Scheduler is the centerpiece of the coordinator: it walks a graph's
// readiness, fires ready tasks at idle workers, and reassembles the
// requested result shape once every task the result depends on has
// completed.
type Scheduler struct {
	endpoint      *Endpoint
	registry      *Registry
	placement     *Placement
	correlator    *Correlator
	scatterGather *ScatterGather
	dagHelper     types.DAGStateHelper
	log           types.Logger

	taskMu        sync.Mutex
	activeTasks   map[types.Key]struct{}
	taskDuration  map[types.Key]time.Duration
}

func NewScheduler(endpoint *Endpoint, registry *Registry, placement *Placement, correlator *Correlator, scatterGather *ScatterGather, dagHelper types.DAGStateHelper, log types.Logger) *Scheduler {
	return &Scheduler{
		endpoint:      endpoint,
		registry:      registry,
		placement:     placement,
		correlator:    correlator,
		scatterGather: scatterGather,
		dagHelper:     dagHelper,
		log:           log,
		activeTasks:   make(map[types.Key]struct{}),
		taskDuration:  make(map[types.Key]time.Duration),
	}
}

// Schedule runs graph to completion and returns requested's values in
// requested's own nested shape: seed literals, fire every initially-ready
// task onto an idle worker, then loop draining completions and promoting
// newly-ready tasks until nothing is left waiting, running, or ready.
func (s *Scheduler) Schedule(ctx context.Context, graph types.Graph, requested types.KeyShape) (interface{}, error) {
	cache := make(map[types.Key][]byte)
	state, err := s.dagHelper.InitialState(graph, cache)
	if err != nil {
		return nil, fmt.Errorf("taskgraph: initial state: %w", err)
	}

	if len(state.Waiting) > 0 && len(state.Ready) == 0 {
		return nil, types.ErrUnreachableTasks
	}

	if err := s.scatterGather.Scatter(ctx, cache, true); err != nil {
		return nil, fmt.Errorf("taskgraph: seeding literals: %w", err)
	}

	// eventQueueCapacity is generous rather than exact: FinishedTask posts
	// from dispatcher-pool goroutines must never block behind a Schedule
	// caller that is momentarily busy firing new tasks.
	const eventQueueCapacity = 4096
	eventQueue, events := s.correlator.Open(eventQueueCapacity)
	defer s.correlator.Close(eventQueue)

	requestedSet, err := keySet(requested)
	if err != nil {
		return nil, err
	}

	fire := func(key types.Key) error {
		worker, err := s.registry.Take(ctx)
		if err != nil {
			return err
		}
		if err := s.triggerTask(ctx, graph, key, worker, eventQueue); err != nil {
			s.registry.Put(worker)
			return err
		}
		return nil
	}

	// Step 5: seed phase.
	if err := seedWhileIdle(state, s.registry, fire); err != nil {
		return nil, err
	}

	// Step 6: main loop.
	for len(state.Waiting) > 0 || len(state.Ready) > 0 || len(state.Running) > 0 {
		var payload types.FinishedTaskPayload
		select {
		case item := <-events:
			p, ok := item.(types.FinishedTaskPayload)
			if !ok {
				return nil, fmt.Errorf("taskgraph: schedule: unexpected event type %T", item)
			}
			payload = p
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if payload.Status != types.StatusOK {
			return nil, &types.TaskFailure{Key: payload.Key, Cause: fmt.Errorf("%s", payload.Error)}
		}

		s.dagHelper.FinishTask(graph, payload.Key, state, requestedSet, func(k types.Key, st *types.DAGState) {
			s.releaseKey(k)
		})

		if err := seedWhileIdle(state, s.registry, fire); err != nil {
			return nil, err
		}
	}

	return s.scatterGather.Gather(ctx, requested)
}

// seedWhileIdle fires ready tasks for as long as both a ready key and an
// idle worker exist.
func seedWhileIdle(state *types.DAGState, registry *Registry, fire func(types.Key) error) error {
	for len(state.Ready) > 0 && registry.IdleCount() > 0 {
		key := popReady(state)
		if err := fire(key); err != nil {
			return err
		}
	}
	return nil
}

func popReady(state *types.DAGState) types.Key {
	key := state.Ready[len(state.Ready)-1]
	state.Ready = state.Ready[:len(state.Ready)-1]
	delete(state.ReadySet, key)
	state.Running[key] = struct{}{}
	return key
}

func keySet(shape types.KeyShape) (map[types.Key]struct{}, error) {
	keys, err := types.FlattenKeys(shape)
	if err != nil {
		return nil, err
	}
	set := make(map[types.Key]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}

// triggerTask computes key's dependency locations and sends compute to
// worker, recording key as active.
func (s *Scheduler) triggerTask(ctx context.Context, graph types.Graph, key types.Key, worker types.PeerID, eventQueue string) error {
	task := graph[key]
	deps := task.Dependencies()
	locations := make(map[types.Key][]types.PeerID, len(deps))
	for _, dep := range deps {
		holders := s.placement.HoldersOf(dep)
		if len(holders) == 0 {
			return fmt.Errorf("taskgraph: trigger_task %s: dependency %s: %w", key, dep, types.ErrMissingData)
		}
		locations[dep] = holders
	}

	payload := types.ComputePayload{Key: key, Task: task, Locations: locations, Queue: eventQueue}
	header := types.Header{
		Function: "compute",
		JobID:    string(key),
		Dumps:    types.CodecGob,
		Loads:    types.CodecGob,
	}
	if err := s.endpoint.Send(worker, header, payload); err != nil {
		return fmt.Errorf("taskgraph: trigger_task %s: %w", key, err)
	}

	s.taskMu.Lock()
	s.activeTasks[key] = struct{}{}
	s.taskMu.Unlock()
	return nil
}

// WorkerFinishedTask ingests a finished-task frame: removes key from
// activeTasks, records its duration, updates placement to reflect that the
// reporting worker now holds both the produced key and every dependency it
// fetched to execute, returns the worker to the idle pool, and routes the
// payload onto its run's event queue.
func (s *Scheduler) WorkerFinishedTask(frame types.Frame) {
	var payload types.FinishedTaskPayload
	if err := s.endpoint.DecodePayload(frame, &payload); err != nil {
		s.log.Warnf("transport drop: bad finished-task payload from %s: %v", frame.Peer, err)
		return
	}

	s.taskMu.Lock()
	delete(s.activeTasks, payload.Key)
	s.taskDuration[payload.Key] = time.Duration(payload.DurationMS) * time.Millisecond
	s.taskMu.Unlock()

	if payload.Status == types.StatusOK {
		s.placement.Record(payload.Key, frame.Peer)
		for _, dep := range payload.Dependencies {
			s.placement.Record(dep, frame.Peer)
		}
	}

	s.registry.Put(frame.Peer)

	if payload.Queue != "" {
		if err := s.correlator.Post(payload.Queue, payload); err != nil {
			s.log.Debugf("finished-task %s from %s: %v", payload.Key, frame.Peer, err)
		}
	}
}

// releaseKey snapshots key's holders, then fires a fire-and-forget delitem
// at each and drops the (key, worker) pair locally. Snapshotting first is
// required because the placement index would otherwise be mutated while
// being iterated.
func (s *Scheduler) releaseKey(key types.Key) {
	holders := s.placement.HoldersOf(key)
	header := types.Header{Function: "delitem", JobID: string(key), Dumps: types.CodecJSON}
	payload := types.DelItemPayload{Key: key}
	for _, worker := range holders {
		if err := s.endpoint.Send(worker, header, payload); err != nil {
			s.log.Debugf("release_key %s: send delitem to %s: %v", key, worker, err)
		}
		s.placement.Forget(key, worker)
	}
}
