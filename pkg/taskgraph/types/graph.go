package types

import "fmt"

// ComputeTask names a registered function and the keys whose values become
// its arguments. The coordinator never looks inside FnName or Args beyond
// using Args to compute dependencies — it forwards the task verbatim to
// whichever worker it fires onto.
type ComputeTask struct {
	FnName string `json:"fn"`
	Args   []Key  `json:"args"`
}

// Task is either a literal value uploaded via scatter, or a computation to
// run on a worker. Exactly one of Literal/Compute is set.
type Task struct {
	Literal []byte       `json:"literal,omitempty"`
	Compute *ComputeTask `json:"compute,omitempty"`
}

func (t Task) IsLiteral() bool { return t.Compute == nil }

// Dependencies returns the keys t depends on, or nil for a literal.
func (t Task) Dependencies() []Key {
	if t.Compute == nil {
		return nil
	}
	return t.Compute.Args
}

// Graph maps every key in a run to its task description.
type Graph map[Key]Task

// KeyShape is a key, or an arbitrarily nested list of keys, describing the
// shape gather/schedule results should come back in.
type KeyShape interface{}

func toKey(v interface{}) (Key, bool) {
	switch k := v.(type) {
	case Key:
		return k, true
	case string:
		return Key(k), true
	default:
		return "", false
	}
}

// FlattenKeys walks a KeyShape and returns every leaf key in traversal
// order, duplicates included.
func FlattenKeys(shape KeyShape) ([]Key, error) {
	var out []Key
	var walk func(s KeyShape) error
	walk = func(s KeyShape) error {
		switch v := s.(type) {
		case []KeyShape:
			for _, e := range v {
				if err := walk(e); err != nil {
					return err
				}
			}
			return nil
		case []interface{}:
			for _, e := range v {
				if err := walk(e); err != nil {
					return err
				}
			}
			return nil
		case []Key:
			out = append(out, v...)
			return nil
		default:
			k, ok := toKey(v)
			if !ok {
				return fmt.Errorf("taskgraph: invalid key shape element %#v", v)
			}
			out = append(out, k)
			return nil
		}
	}
	if err := walk(shape); err != nil {
		return nil, err
	}
	return out, nil
}

// ReshapeKeys rebuilds shape from a flat key→value cache, preserving the
// input nesting exactly.
func ReshapeKeys(shape KeyShape, cache map[Key][]byte) (interface{}, error) {
	switch v := shape.(type) {
	case []KeyShape:
		out := make([]interface{}, len(v))
		for i, e := range v {
			r, err := ReshapeKeys(e, cache)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, e := range v {
			r, err := ReshapeKeys(e, cache)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case []Key:
		out := make([]interface{}, len(v))
		for i, e := range v {
			r, err := ReshapeKeys(e, cache)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		k, ok := toKey(v)
		if !ok {
			return nil, fmt.Errorf("taskgraph: invalid key shape element %#v", v)
		}
		value, ok := cache[k]
		if !ok {
			return nil, fmt.Errorf("taskgraph: %w: %s", ErrMissingData, k)
		}
		return value, nil
	}
}
