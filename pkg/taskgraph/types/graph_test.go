package types

import (
	"errors"
	"reflect"
	"testing"
)

func TestFlattenAndReshapeKeysRoundTrip(t *testing.T) {
	shape := []KeyShape{[]KeyShape{Key("x"), Key("y")}, []KeyShape{Key("z")}}

	flat, err := FlattenKeys(shape)
	if err != nil {
		t.Fatalf("FlattenKeys: %v", err)
	}
	want := []Key{"x", "y", "z"}
	if !reflect.DeepEqual(flat, want) {
		t.Fatalf("FlattenKeys = %v, want %v", flat, want)
	}

	cache := map[Key][]byte{"x": []byte("1"), "y": []byte("2"), "z": []byte("3")}
	reshaped, err := ReshapeKeys(shape, cache)
	if err != nil {
		t.Fatalf("ReshapeKeys: %v", err)
	}

	outer, ok := reshaped.([]interface{})
	if !ok || len(outer) != 2 {
		t.Fatalf("reshaped = %#v, want a 2-element outer slice", reshaped)
	}
	group1 := outer[0].([]interface{})
	if string(group1[0].([]byte)) != "1" || string(group1[1].([]byte)) != "2" {
		t.Fatalf("group1 = %#v", group1)
	}
	group2 := outer[1].([]interface{})
	if string(group2[0].([]byte)) != "3" {
		t.Fatalf("group2 = %#v", group2)
	}
}

func TestReshapeKeysMissingLeafIsMissingData(t *testing.T) {
	_, err := ReshapeKeys(Key("missing"), map[Key][]byte{})
	if !errors.Is(err, ErrMissingData) {
		t.Fatalf("err = %v, want ErrMissingData", err)
	}
}

func TestTaskDependencies(t *testing.T) {
	literal := Task{Literal: []byte("1")}
	if !literal.IsLiteral() || literal.Dependencies() != nil {
		t.Fatalf("literal task should have no dependencies")
	}

	computed := Task{Compute: &ComputeTask{FnName: "add", Args: []Key{"a", "b"}}}
	if computed.IsLiteral() {
		t.Fatalf("computed task should not report IsLiteral")
	}
	want := []Key{"a", "b"}
	if !reflect.DeepEqual(computed.Dependencies(), want) {
		t.Fatalf("Dependencies = %v, want %v", computed.Dependencies(), want)
	}
}
