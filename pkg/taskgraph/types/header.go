package types

import "time"

// PeerID is the opaque return address of a remote party as surfaced by the
// transport. For this implementation it is the TCP remote address of the
// connection the peer dialed in on.
type PeerID string

// Key is a client-chosen opaque data identifier.
type Key string

const (
	StatusOK    = "OK"
	StatusError = "Error"
)

// Header carries routing and correlation metadata for a frame. It is always
// encoded with CodecJSON; Dumps/Loads only ever describe the payload that
// rides alongside it.
type Header struct {
	Function  string    `json:"function"`
	JobID     string    `json:"jobid,omitempty"`
	Status    string    `json:"status,omitempty"`
	Address   string    `json:"address,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Dumps     CodecName `json:"dumps,omitempty"`
	Loads     CodecName `json:"loads,omitempty"`
}

// Frame is a decoded inbound message: the sender's address, a header, and
// an opaque payload the header's codec names how to decode.
type Frame struct {
	Peer    PeerID
	Header  Header
	Payload []byte
}

// Handler processes one inbound frame. It runs inside the dispatcher's
// bounded pool, never on the receive loop goroutine.
type Handler func(frame Frame)
