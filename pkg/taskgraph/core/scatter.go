package core

import (
	"context"
	"fmt"

	"github.com/jabolina/go-taskgraph/pkg/taskgraph/types"
)

// ScatterGather provides block-and-wait primitives for bulk upload and
// download to/from workers, built on top of the registry, placement index,
// and reply correlator.
type ScatterGather struct {
	endpoint   *Endpoint
	registry   *Registry
	placement  *Placement
	correlator *Correlator
	log        types.Logger
}

func NewScatterGather(endpoint *Endpoint, registry *Registry, placement *Placement, correlator *Correlator, log types.Logger) *ScatterGather {
	return &ScatterGather{
		endpoint:   endpoint,
		registry:   registry,
		placement:  placement,
		correlator: correlator,
		log:        log,
	}
}

// SendData uploads a single literal value. If address is empty, a random
// known worker is chosen. If reply, SendData blocks for the setitem-ack.
func (sg *ScatterGather) SendData(ctx context.Context, key types.Key, value []byte, address types.PeerID, reply bool) error {
	worker := address
	if worker == "" {
		w, ok := sg.registry.RandomPeer()
		if !ok {
			return types.ErrNoWorkers
		}
		worker = w
	}

	payload := types.SetItemPayload{Key: key, Value: value}
	var name string
	var ch <-chan interface{}
	if reply {
		name, ch = sg.correlator.Open(1)
		payload.Queue = name
		defer sg.correlator.Close(name)
	}

	header := types.Header{Function: "setitem", JobID: string(key), Dumps: types.CodecJSON, Loads: types.CodecJSON}
	if err := sg.endpoint.Send(worker, header, payload); err != nil {
		sg.log.Warnf("send_data %s to %s: %v", key, worker, err)
		return fmt.Errorf("taskgraph: send_data %s: %w", key, err)
	}

	if !reply {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scatter round-robins pairs across every currently known worker. If block,
// it waits for exactly len(pairs) setitem-acks before returning. Placement
// is updated by the setitem-ack handler, not here.
func (sg *ScatterGather) Scatter(ctx context.Context, pairs map[types.Key][]byte, block bool) error {
	if len(pairs) == 0 {
		return nil
	}
	workers := sg.registry.Snapshot()
	if len(workers) == 0 {
		return types.ErrNoWorkers
	}

	var name string
	var ch <-chan interface{}
	if block {
		name, ch = sg.correlator.Open(len(pairs))
		defer sg.correlator.Close(name)
	}

	keys := make([]types.Key, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}

	i := 0
	for _, key := range keys {
		worker := workers[i%len(workers)]
		i++
		payload := types.SetItemPayload{Key: key, Value: pairs[key]}
		if block {
			payload.Queue = name
		}
		header := types.Header{Function: "setitem", JobID: string(key), Dumps: types.CodecJSON, Loads: types.CodecJSON}
		if err := sg.endpoint.Send(worker, header, payload); err != nil {
			sg.log.Warnf("scatter %s to %s: %v", key, worker, err)
			return fmt.Errorf("taskgraph: scatter %s: %w", key, err)
		}
	}
	sg.log.Debugf("scatter: sent %d pairs across %d workers", len(pairs), len(workers))

	if !block {
		return nil
	}
	for i := 0; i < len(pairs); i++ {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Gather flattens shape into leaf keys, fetches each from a random known
// holder, waits for every getitem-ack, and reshapes the results back into
// shape's nesting. An empty holder set for any leaf at send time is a fatal
// MissingData error.
func (sg *ScatterGather) Gather(ctx context.Context, shape types.KeyShape) (interface{}, error) {
	leaves, err := types.FlattenKeys(shape)
	if err != nil {
		return nil, err
	}
	if len(leaves) == 0 {
		return types.ReshapeKeys(shape, nil)
	}

	name, ch := sg.correlator.Open(len(leaves))
	defer sg.correlator.Close(name)

	for _, key := range leaves {
		holder, ok := sg.placement.PickHolder(key)
		if !ok {
			sg.log.Warnf("gather %s: no known holder", key)
			return nil, fmt.Errorf("taskgraph: gather %s: %w", key, types.ErrMissingData)
		}
		payload := types.GetItemPayload{Key: key, Queue: name}
		header := types.Header{Function: "getitem", JobID: string(key), Dumps: types.CodecJSON, Loads: types.CodecJSON}
		if err := sg.endpoint.Send(holder, header, payload); err != nil {
			sg.log.Warnf("gather %s from %s: %v", key, holder, err)
			return nil, fmt.Errorf("taskgraph: gather %s: %w", key, err)
		}
	}

	cache := make(map[types.Key][]byte, len(leaves))
	for i := 0; i < len(leaves); i++ {
		select {
		case item := <-ch:
			ack, ok := item.(types.GetItemAckPayload)
			if !ok {
				return nil, fmt.Errorf("taskgraph: gather: unexpected reply type %T", item)
			}
			cache[ack.Key] = ack.Value
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return types.ReshapeKeys(shape, cache)
}
