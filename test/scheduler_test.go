package test

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jabolina/go-taskgraph/pkg/taskgraph"
	"github.com/jabolina/go-taskgraph/pkg/taskgraph/definition"
	"github.com/jabolina/go-taskgraph/pkg/taskgraph/types"
	"go.uber.org/goleak"
)

// TestMain verifies every coordinator this package starts tears its
// goroutines down cleanly on Close.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestCoordinator(t *testing.T) *taskgraph.Coordinator {
	t.Helper()
	cfg := types.DefaultConfig()
	cfg.Logger = definition.NewDefaultLogger()
	coord, err := taskgraph.NewCoordinator(cfg, definition.NewSimpleDAGState())
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	t.Cleanup(coord.Close)
	return coord
}

func intArg(raw []byte) (int, error) {
	var v int
	err := json.Unmarshal(raw, &v)
	return v, err
}

var computeFns = map[string]ComputeFn{
	"add": func(args [][]byte) ([]byte, error) {
		sum := 0
		for _, a := range args {
			v, err := intArg(a)
			if err != nil {
				return nil, err
			}
			sum += v
		}
		return json.Marshal(sum)
	},
	"mul": func(args [][]byte) ([]byte, error) {
		product := 1
		for _, a := range args {
			v, err := intArg(a)
			if err != nil {
				return nil, err
			}
			product *= v
		}
		return json.Marshal(product)
	},
	"fail": func(args [][]byte) ([]byte, error) {
		return nil, fmt.Errorf("root task always fails")
	},
}

// waitForWorker gives a just-dialed stub worker's register frame time to
// reach the coordinator's registry before a schedule call needs it. There
// is no synchronous register handshake in the protocol — register is
// fire-and-forget — so a short sleep is the honest way to wait.
func waitForWorker(t *testing.T, workerAddr string, want int) {
	t.Helper()
	// The registry has no public read-count RPC exposed to tests; a short
	// fixed sleep is enough for a loopback register round trip in practice.
	time.Sleep(100 * time.Millisecond)
	_ = workerAddr
	_ = want
}

// A single chain on one worker: y depends on two literals and sums them.
func TestScheduleSingleChainOneWorker(t *testing.T) {
	coord := newTestCoordinator(t)
	store := newSharedStore()
	DialStubWorker(t, coord.WorkerAddr(), store, computeFns)
	waitForWorker(t, coord.WorkerAddr(), 1)

	graph := types.Graph{
		"x":    {Literal: EncodeLiteral(1)},
		"lit2": {Literal: EncodeLiteral(2)},
		"y":    {Compute: &types.ComputeTask{FnName: "add", Args: []types.Key{"x", "lit2"}}},
	}

	result, err := SubmitSchedule(coord.ClientAddr(), graph, types.Key("y"))
	if err != nil {
		t.Fatalf("SubmitSchedule: %v", err)
	}
	if result.Status != types.StatusOK {
		t.Fatalf("status = %v, want OK (result=%v)", result.Status, result.Result)
	}
	got, err := DecodeResultInt(result.Result)
	if err != nil {
		t.Fatalf("DecodeResultInt: %v", err)
	}
	if got != 3 {
		t.Fatalf("y = %d, want 3", got)
	}
}

// A diamond graph across two workers: c depends on two literals, d depends
// on c and a third literal.
func TestScheduleDiamondTwoWorkers(t *testing.T) {
	coord := newTestCoordinator(t)
	store := newSharedStore()
	DialStubWorker(t, coord.WorkerAddr(), store, computeFns)
	DialStubWorker(t, coord.WorkerAddr(), store, computeFns)
	waitForWorker(t, coord.WorkerAddr(), 2)

	graph := types.Graph{
		"a":   {Literal: EncodeLiteral(1)},
		"b":   {Literal: EncodeLiteral(2)},
		"ten": {Literal: EncodeLiteral(10)},
		"c":   {Compute: &types.ComputeTask{FnName: "add", Args: []types.Key{"a", "b"}}},
		"d":   {Compute: &types.ComputeTask{FnName: "mul", Args: []types.Key{"c", "ten"}}},
	}

	result, err := SubmitSchedule(coord.ClientAddr(), graph, []types.Key{"c", "d"})
	if err != nil {
		t.Fatalf("SubmitSchedule: %v", err)
	}
	if result.Status != types.StatusOK {
		t.Fatalf("status = %v, want OK (result=%v)", result.Status, result.Result)
	}
	got, err := DecodeResultInts(result.Result)
	if err != nil {
		t.Fatalf("DecodeResultInts: %v", err)
	}
	if len(got) != 2 || got[0] != 3 || got[1] != 30 {
		t.Fatalf("[c,d] = %v, want [3 30]", got)
	}
}

// A root task that fails surfaces as an Error schedule-ack carrying the
// failure message.
func TestScheduleRootFailureSurfacesAsError(t *testing.T) {
	coord := newTestCoordinator(t)
	store := newSharedStore()
	DialStubWorker(t, coord.WorkerAddr(), store, computeFns)
	waitForWorker(t, coord.WorkerAddr(), 1)

	graph := types.Graph{
		"lit": {Literal: EncodeLiteral(1)},
		"r":   {Compute: &types.ComputeTask{FnName: "fail", Args: []types.Key{"lit"}}},
	}

	result, err := SubmitSchedule(coord.ClientAddr(), graph, types.Key("r"))
	if err != nil {
		t.Fatalf("SubmitSchedule: %v", err)
	}
	if result.Status != types.StatusError {
		t.Fatalf("status = %v, want Error", result.Status)
	}
	msg, ok := result.Result.(string)
	if !ok || !strings.Contains(msg, "always fails") {
		t.Fatalf("result = %v, want a message mentioning the failure", result.Result)
	}
}

// A graph with a dependency cycle has a non-empty waiting set and no ready
// tasks, which is fatal to the run.
func TestScheduleCycleIsUnreachable(t *testing.T) {
	coord := newTestCoordinator(t)
	store := newSharedStore()
	DialStubWorker(t, coord.WorkerAddr(), store, computeFns)
	waitForWorker(t, coord.WorkerAddr(), 1)

	graph := types.Graph{
		"a": {Compute: &types.ComputeTask{FnName: "add", Args: []types.Key{"b"}}},
		"b": {Compute: &types.ComputeTask{FnName: "add", Args: []types.Key{"a"}}},
	}

	result, err := SubmitSchedule(coord.ClientAddr(), graph, types.Key("a"))
	if err != nil {
		t.Fatalf("SubmitSchedule: %v", err)
	}
	if result.Status != types.StatusError {
		t.Fatalf("status = %v, want Error", result.Status)
	}
	msg, _ := result.Result.(string)
	if !strings.Contains(msg, "waiting tasks but no ready tasks") {
		t.Fatalf("result = %q, want the UnreachableTasks message", msg)
	}
}

// Two concurrent schedule calls on disjoint graphs complete independently,
// each receiving only its own events.
func TestConcurrentSchedulesAreIndependent(t *testing.T) {
	coord := newTestCoordinator(t)
	store := newSharedStore()
	DialStubWorker(t, coord.WorkerAddr(), store, computeFns)
	DialStubWorker(t, coord.WorkerAddr(), store, computeFns)
	waitForWorker(t, coord.WorkerAddr(), 2)

	run := func(litKey, sumKey types.Key, value int, want int, wg *sync.WaitGroup, failures chan<- error) {
		defer wg.Done()
		graph := types.Graph{
			litKey: {Literal: EncodeLiteral(value)},
			sumKey: {Compute: &types.ComputeTask{FnName: "add", Args: []types.Key{litKey, litKey}}},
		}
		result, err := SubmitSchedule(coord.ClientAddr(), graph, sumKey)
		if err != nil {
			failures <- err
			return
		}
		if result.Status != types.StatusOK {
			failures <- fmt.Errorf("run %s: status %v", sumKey, result.Status)
			return
		}
		got, err := DecodeResultInt(result.Result)
		if err != nil {
			failures <- err
			return
		}
		if got != want {
			failures <- fmt.Errorf("run %s: got %d, want %d", sumKey, got, want)
		}
	}

	var wg sync.WaitGroup
	failures := make(chan error, 2)
	wg.Add(2)
	go run("lit-1", "sum-1", 5, 10, &wg, failures)
	go run("lit-2", "sum-2", 100, 200, &wg, failures)
	wg.Wait()
	close(failures)

	for err := range failures {
		t.Error(err)
	}
}
