// Package taskgraph wires the components in core and types together into
// a runnable coordinator, the Go analogue of the original source's
// Scheduler class.
package taskgraph

import (
	"context"
	"fmt"
	"time"

	"github.com/jabolina/go-taskgraph/pkg/taskgraph/core"
	"github.com/jabolina/go-taskgraph/pkg/taskgraph/types"
)

// Coordinator binds both transport endpoints, wires the registry,
// placement index, correlator, scatter/gather, and scheduler against them,
// and runs one dispatcher per endpoint until Close.
type Coordinator struct {
	cfg *types.Config
	log types.Logger

	workerEndpoint *core.Endpoint
	clientEndpoint *core.Endpoint

	registry      *core.Registry
	placement     *core.Placement
	correlator    *core.Correlator
	scatterGather *core.ScatterGather
	scheduler     *core.Scheduler

	workerDispatch *core.Dispatcher
	clientDispatch *core.Dispatcher

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCoordinator binds both endpoints named in cfg and starts both receive
// loops. dagHelper supplies the readiness/release rules for scheduled runs;
// pass definition.NewSimpleDAGState() for the shipped default.
func NewCoordinator(cfg *types.Config, dagHelper types.DAGStateHelper) (*Coordinator, error) {
	if cfg == nil {
		cfg = types.DefaultConfig()
	}
	log := cfg.Logger
	if log == nil {
		return nil, fmt.Errorf("taskgraph: NewCoordinator: cfg.Logger is required")
	}

	codecs := types.NewCodecRegistry()

	workerEndpoint, err := core.Bind(cfg.WorkerAddress, codecs, log)
	if err != nil {
		return nil, fmt.Errorf("taskgraph: bind worker endpoint: %w", err)
	}
	clientEndpoint, err := core.Bind(cfg.ClientAddress, codecs, log)
	if err != nil {
		workerEndpoint.Close()
		return nil, fmt.Errorf("taskgraph: bind client endpoint: %w", err)
	}

	registry := core.NewRegistry()
	placement := core.NewPlacement()
	correlator := core.NewCorrelator(cfg.PostTimeout, log)
	scatterGather := core.NewScatterGather(workerEndpoint, registry, placement, correlator, log)
	scheduler := core.NewScheduler(workerEndpoint, registry, placement, correlator, scatterGather, dagHelper, log)

	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		cfg:            cfg,
		log:            log,
		workerEndpoint: workerEndpoint,
		clientEndpoint: clientEndpoint,
		registry:       registry,
		placement:      placement,
		correlator:     correlator,
		scatterGather:  scatterGather,
		scheduler:      scheduler,
		workerDispatch: core.NewDispatcher(workerEndpoint, cfg.DispatchPoolSize, log),
		clientDispatch: core.NewDispatcher(clientEndpoint, cfg.DispatchPoolSize, log),
		ctx:            ctx,
		cancel:         cancel,
	}

	c.registerWorkerHandlers()
	c.registerClientHandlers()

	go c.workerDispatch.Run(ctx)
	go c.clientDispatch.Run(ctx)

	return c, nil
}

// WorkerAddr is the address workers should dial to register.
func (c *Coordinator) WorkerAddr() string { return c.workerEndpoint.LocalAddr() }

// ClientAddr is the address clients should dial to submit a schedule.
func (c *Coordinator) ClientAddr() string { return c.clientEndpoint.LocalAddr() }

func (c *Coordinator) registerWorkerHandlers() {
	c.workerDispatch.Register("register", c.handleRegister)
	c.workerDispatch.Register("status", c.handleWorkerStatus)
	c.workerDispatch.Register("finished-task", c.scheduler.WorkerFinishedTask)
	c.workerDispatch.Register("setitem-ack", c.handleSetItemAck)
	c.workerDispatch.Register("getitem-ack", c.handleGetItemAck)
}

func (c *Coordinator) registerClientHandlers() {
	c.clientDispatch.Register("status", c.handleClientStatus)
	c.clientDispatch.Register("schedule", c.handleSchedule)
}

func (c *Coordinator) handleRegister(frame types.Frame) {
	var payload types.RegisterPayload
	if err := c.workerEndpoint.DecodePayload(frame, &payload); err != nil {
		c.log.Warnf("transport drop: bad register payload from %s: %v", frame.Peer, err)
		return
	}
	c.registry.Add(frame.Peer, types.WorkerInfo{
		ID:           frame.Peer,
		Metadata:     payload.Metadata,
		RegisteredAt: time.Now().UTC(),
	})
	c.registry.Put(frame.Peer)
	c.log.Infof("worker %s registered", frame.Peer)
}

func (c *Coordinator) handleWorkerStatus(frame types.Frame) {
	c.replyStatusOK(c.workerEndpoint, frame)
}

func (c *Coordinator) handleClientStatus(frame types.Frame) {
	c.replyStatusOK(c.clientEndpoint, frame)
}

func (c *Coordinator) replyStatusOK(endpoint *core.Endpoint, frame types.Frame) {
	header := types.Header{Function: "status-ack", JobID: frame.Header.JobID, Status: types.StatusOK, Dumps: types.CodecJSON}
	if err := endpoint.Send(frame.Peer, header, struct{}{}); err != nil {
		c.log.Debugf("status-ack to %s: %v", frame.Peer, err)
	}
}

func (c *Coordinator) handleSetItemAck(frame types.Frame) {
	var payload types.SetItemAckPayload
	if err := c.workerEndpoint.DecodePayload(frame, &payload); err != nil {
		c.log.Warnf("transport drop: bad setitem-ack payload from %s: %v", frame.Peer, err)
		return
	}
	c.placement.Record(payload.Key, frame.Peer)
	if payload.Queue != "" {
		if err := c.correlator.Post(payload.Queue, payload); err != nil {
			c.log.Debugf("setitem-ack from %s: %v", frame.Peer, err)
		}
	}
}

func (c *Coordinator) handleGetItemAck(frame types.Frame) {
	var payload types.GetItemAckPayload
	if err := c.workerEndpoint.DecodePayload(frame, &payload); err != nil {
		c.log.Warnf("transport drop: bad getitem-ack payload from %s: %v", frame.Peer, err)
		return
	}
	if payload.Queue != "" {
		if err := c.correlator.Post(payload.Queue, payload); err != nil {
			c.log.Debugf("getitem-ack from %s: %v", frame.Peer, err)
		}
	}
}

// handleSchedule runs a client's graph to completion on the dispatch-pool
// goroutine it was handed and always replies with a schedule-ack, success
// or failure.
func (c *Coordinator) handleSchedule(frame types.Frame) {
	var payload types.SchedulePayload
	if err := c.clientEndpoint.DecodePayload(frame, &payload); err != nil {
		c.log.Warnf("transport drop: bad schedule payload from %s: %v", frame.Peer, err)
		return
	}

	result, err := c.scheduler.Schedule(c.ctx, payload.Graph, payload.Keys)

	header := types.Header{Function: "schedule-ack", JobID: frame.Header.JobID, Dumps: types.CodecJSON, Loads: types.CodecJSON}
	ack := types.ScheduleAckPayload{Keys: payload.Keys}
	if err != nil {
		header.Status = types.StatusError
		ack.Result = err.Error()
		c.log.Warnf("schedule %s failed: %v", frame.Header.JobID, err)
	} else {
		header.Status = types.StatusOK
		ack.Result = result
	}

	if sendErr := c.clientEndpoint.Send(frame.Peer, header, ack); sendErr != nil {
		c.log.Warnf("schedule-ack to %s: %v", frame.Peer, sendErr)
	}
}

// Close cancels both receive loops, waits for in-flight handlers to
// return, and closes both endpoints.
func (c *Coordinator) Close() {
	c.cancel()
	c.workerDispatch.Wait()
	c.clientDispatch.Wait()
	c.workerEndpoint.Close()
	c.clientEndpoint.Close()
}
