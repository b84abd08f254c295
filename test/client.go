package test

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jabolina/go-taskgraph/pkg/taskgraph/types"
)

// ScheduleResult is the decoded shape of a schedule-ack.
type ScheduleResult struct {
	Status string
	Result interface{}
}

// SubmitSchedule dials clientAddr, sends a schedule RPC for graph/keys, and
// waits for its schedule-ack.
func SubmitSchedule(clientAddr string, graph types.Graph, keys types.KeyShape) (*ScheduleResult, error) {
	conn, err := dial(clientAddr, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("test: dial %s: %w", clientAddr, err)
	}
	defer conn.Close()

	codecs := types.NewCodecRegistry()
	header := types.Header{Function: "schedule", Dumps: types.CodecJSON, Loads: types.CodecJSON}
	payload := types.SchedulePayload{Graph: graph, Keys: keys}
	if err := sendFrame(conn, header, payload, codecs); err != nil {
		return nil, fmt.Errorf("test: send schedule: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	replyHeader, replyPayload, err := readFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("test: read schedule-ack: %w", err)
	}

	var ack types.ScheduleAckPayload
	if err := decodePayload(replyHeader, replyPayload, &ack, codecs); err != nil {
		return nil, fmt.Errorf("test: decode schedule-ack: %w", err)
	}

	return &ScheduleResult{Status: replyHeader.Status, Result: ack.Result}, nil
}

// DecodeResultInt unwraps a single gathered leaf that schedule-ack carried
// as a JSON-marshaled []byte (base64 text on the wire) back into the int a
// test's literal/compute functions encoded.
func DecodeResultInt(leaf interface{}) (int, error) {
	s, ok := leaf.(string)
	if !ok {
		return 0, fmt.Errorf("test: expected string leaf, got %T", leaf)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return 0, err
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// DecodeResultInts unwraps a nested []interface{} of leaves, in order.
func DecodeResultInts(shape interface{}) ([]int, error) {
	list, ok := shape.([]interface{})
	if !ok {
		return nil, fmt.Errorf("test: expected []interface{}, got %T", shape)
	}
	out := make([]int, len(list))
	for i, leaf := range list {
		v, err := DecodeResultInt(leaf)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// EncodeLiteral is the test-side convention for encoding a literal int
// value into the opaque bytes a Task.Literal carries.
func EncodeLiteral(v int) []byte {
	b, _ := json.Marshal(v)
	return b
}
