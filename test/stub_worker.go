package test

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/jabolina/go-taskgraph/pkg/taskgraph/types"
)

// ComputeFn is a stub worker's registered implementation of a ComputeTask's
// FnName: it receives each dependency's raw value, in argument order, and
// returns the computed raw value.
type ComputeFn func(args [][]byte) ([]byte, error)

// StubWorker dials a coordinator's worker endpoint and answers the
// register/setitem/getitem/delitem/compute/status RPCs a real worker would.
type StubWorker struct {
	t      *testing.T
	conn   net.Conn
	codecs *types.CodecRegistry
	store  *sharedStore
	funcs  map[string]ComputeFn
	done   chan struct{}
}

// DialStubWorker connects to workerAddr, registers, and starts answering
// RPCs in the background. The worker is torn down automatically when t's
// test finishes.
func DialStubWorker(t *testing.T, workerAddr string, store *sharedStore, funcs map[string]ComputeFn) *StubWorker {
	t.Helper()
	conn, err := dial(workerAddr, 2*time.Second)
	if err != nil {
		t.Fatalf("stub worker: dial %s: %v", workerAddr, err)
	}

	w := &StubWorker{
		t:      t,
		conn:   conn,
		codecs: types.NewCodecRegistry(),
		store:  store,
		funcs:  funcs,
		done:   make(chan struct{}),
	}

	if err := w.send(types.Header{Function: "register", Dumps: types.CodecJSON}, types.RegisterPayload{Metadata: []byte("stub-worker")}); err != nil {
		t.Fatalf("stub worker: register: %v", err)
	}

	go w.loop()
	t.Cleanup(w.close)
	return w
}

func (w *StubWorker) send(header types.Header, payload interface{}) error {
	return sendFrame(w.conn, header, payload, w.codecs)
}

func (w *StubWorker) close() {
	close(w.done)
	_ = w.conn.Close()
}

func (w *StubWorker) loop() {
	for {
		header, payload, err := readFrame(w.conn)
		if err != nil {
			select {
			case <-w.done:
			default:
				w.t.Logf("stub worker: read loop stopped: %v", err)
			}
			return
		}
		w.dispatch(header, payload)
	}
}

func (w *StubWorker) dispatch(header types.Header, payload []byte) {
	switch header.Function {
	case "setitem":
		w.handleSetItem(header, payload)
	case "getitem":
		w.handleGetItem(header, payload)
	case "delitem":
		w.handleDelItem(header, payload)
	case "compute":
		w.handleCompute(header, payload)
	case "status":
		_ = w.send(types.Header{Function: "status-ack", JobID: header.JobID, Status: types.StatusOK, Dumps: types.CodecJSON}, struct{}{})
	default:
		w.t.Logf("stub worker: unexpected function %q", header.Function)
	}
}

func (w *StubWorker) handleSetItem(header types.Header, payload []byte) {
	var item types.SetItemPayload
	if err := decodePayload(header, payload, &item, w.codecs); err != nil {
		w.t.Logf("stub worker: decode setitem: %v", err)
		return
	}
	w.store.set(item.Key, item.Value)
	if item.Queue != "" {
		_ = w.send(types.Header{Function: "setitem-ack", JobID: header.JobID, Dumps: types.CodecJSON}, types.SetItemAckPayload{Key: item.Key, Queue: item.Queue})
	}
}

func (w *StubWorker) handleGetItem(header types.Header, payload []byte) {
	var item types.GetItemPayload
	if err := decodePayload(header, payload, &item, w.codecs); err != nil {
		w.t.Logf("stub worker: decode getitem: %v", err)
		return
	}
	value, _ := w.store.get(item.Key)
	_ = w.send(types.Header{Function: "getitem-ack", JobID: header.JobID, Dumps: types.CodecJSON}, types.GetItemAckPayload{Key: item.Key, Value: value, Queue: item.Queue})
}

func (w *StubWorker) handleDelItem(header types.Header, payload []byte) {
	var item types.DelItemPayload
	if err := decodePayload(header, payload, &item, w.codecs); err != nil {
		w.t.Logf("stub worker: decode delitem: %v", err)
		return
	}
	w.store.delete(item.Key)
}

func (w *StubWorker) handleCompute(header types.Header, payload []byte) {
	var compute types.ComputePayload
	if err := decodePayload(header, payload, &compute, w.codecs); err != nil {
		w.t.Logf("stub worker: decode compute: %v", err)
		return
	}

	start := time.Now()
	value, execErr := w.execute(compute.Task)
	duration := time.Since(start)

	finished := types.FinishedTaskPayload{
		Key:          compute.Key,
		DurationMS:   duration.Milliseconds(),
		Dependencies: compute.Task.Dependencies(),
		Queue:        compute.Queue,
	}
	if execErr != nil {
		finished.Status = types.StatusError
		finished.Error = execErr.Error()
	} else {
		finished.Status = types.StatusOK
		w.store.set(compute.Key, value)
	}

	if err := w.send(types.Header{Function: "finished-task", JobID: header.JobID, Dumps: types.CodecJSON}, finished); err != nil {
		w.t.Logf("stub worker: send finished-task: %v", err)
	}
}

func (w *StubWorker) execute(task types.Task) ([]byte, error) {
	if task.IsLiteral() {
		return task.Literal, nil
	}
	args := make([][]byte, len(task.Compute.Args))
	for i, dep := range task.Compute.Args {
		value, ok := w.store.get(dep)
		if !ok {
			return nil, fmt.Errorf("stub worker: missing dependency %s", dep)
		}
		args[i] = value
	}
	fn, ok := w.funcs[task.Compute.FnName]
	if !ok {
		return nil, fmt.Errorf("stub worker: unknown function %q", task.Compute.FnName)
	}
	return fn(args)
}
