package types

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
)

// CodecName is the closed set of codecs a header may name for its payload.
// Headers themselves are always encoded with CodecJSON; CodecName only ever
// appears as a value inside a header, selecting how the payload next to it
// is encoded.
type CodecName string

const (
	// CodecJSON is the default payload codec: encoding/json.
	CodecJSON CodecName = "json"

	// CodecGob is the "rich" codec named in compute headers, used where a
	// payload carries []byte blobs the coordinator never introspects and a
	// binary encoding saves a base64 round trip over JSON.
	CodecGob CodecName = "gob"
)

// Codec encodes and decodes payload bytes for one CodecName.
type Codec interface {
	Name() CodecName
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

type jsonCodec struct{}

func (jsonCodec) Name() CodecName { return CodecJSON }

func (jsonCodec) Encode(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Decode(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

type gobCodec struct{}

func (gobCodec) Name() CodecName { return CodecGob }

func (gobCodec) Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Decode(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// CodecRegistry resolves a CodecName to the Codec that implements it.
// Built closed over {json, gob}; receiving any other name on the wire is a
// transport-level drop, never a panic.
type CodecRegistry struct {
	codecs map[CodecName]Codec
}

func NewCodecRegistry() *CodecRegistry {
	return &CodecRegistry{
		codecs: map[CodecName]Codec{
			CodecJSON: jsonCodec{},
			CodecGob:  gobCodec{},
		},
	}
}

func (r *CodecRegistry) Resolve(name CodecName) (Codec, bool) {
	if name == "" {
		return r.codecs[CodecJSON], true
	}
	c, ok := r.codecs[name]
	return c, ok
}
