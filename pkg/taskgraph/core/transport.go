package core

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/jabolina/go-taskgraph/pkg/taskgraph/types"
)

// maxFrameSize guards against a corrupt length prefix turning into an
// attempt to allocate gigabytes for a single frame part.
const maxFrameSize = 64 << 20

// Endpoint is a router-style socket: it accepts many connections and frames
// every message as peer|header|payload. One Endpoint is bound worker-facing,
// a second client-facing.
//
// The ZMQ ROUTER socket the original scheduler used aggregates every peer
// onto one poll()-able file descriptor; a plain net.Listener does not give
// us that, so each accepted connection gets its own reader goroutine and
// all of them funnel into a single frames channel. Closing the listener (or
// the endpoint) unblocks Accept and every blocked Read immediately, which
// satisfies "receive loop observes shutdown promptly" without an actual
// poll loop.
type Endpoint struct {
	listener net.Listener
	localAddr string

	connMu sync.Mutex
	conns  map[types.PeerID]*wireConn

	frames chan types.Frame

	closeOnce sync.Once
	closeCh   chan struct{}

	codecs *types.CodecRegistry
	log    types.Logger
}

// wireConn pairs a connection with the mutex that serializes its three-part
// writes. Scoping the mutex per connection rather than per endpoint lets unrelated
// peers be written to concurrently while still forbidding interleaved
// frames on any single connection.
type wireConn struct {
	conn    net.Conn
	sendMu  sync.Mutex
}

// Bind starts listening on addr ("" or ":0" auto-allocates a port on all
// interfaces) and returns a running Endpoint. Accept and read loops are
// spawned immediately.
func Bind(addr string, codecs *types.CodecRegistry, log types.Logger) (*Endpoint, error) {
	if addr == "" {
		addr = ":0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("taskgraph: bind %s: %w", addr, err)
	}

	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	port := ln.Addr().(*net.TCPAddr).Port

	e := &Endpoint{
		listener:  ln,
		localAddr: fmt.Sprintf("tcp://%s:%d", host, port),
		conns:     make(map[types.PeerID]*wireConn),
		frames:    make(chan types.Frame, 256),
		closeCh:   make(chan struct{}),
		codecs:    codecs,
		log:       log,
	}
	go e.acceptLoop()
	return e, nil
}

// LocalAddr is the address to advertise to peers.
func (e *Endpoint) LocalAddr() string { return e.localAddr }

// Frames is the stream of inbound frames. The dispatcher's receive loop
// selects on this alongside its shutdown context.
func (e *Endpoint) Frames() <-chan types.Frame { return e.frames }

func (e *Endpoint) acceptLoop() {
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			return
		}
		peer := types.PeerID(conn.RemoteAddr().String())
		wc := &wireConn{conn: conn}
		e.connMu.Lock()
		e.conns[peer] = wc
		e.connMu.Unlock()
		go e.readLoop(peer, wc)
	}
}

func (e *Endpoint) readLoop(peer types.PeerID, wc *wireConn) {
	defer e.removeConn(peer)
	for {
		header, payload, err := readFrame(wc.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.log.Debugf("transport: read from %s failed: %v", peer, err)
			}
			return
		}
		frame := types.Frame{Peer: peer, Header: header, Payload: payload}
		select {
		case e.frames <- frame:
		case <-e.closeCh:
			return
		}
	}
}

func (e *Endpoint) removeConn(peer types.PeerID) {
	e.connMu.Lock()
	wc, ok := e.conns[peer]
	delete(e.conns, peer)
	e.connMu.Unlock()
	if ok {
		_ = wc.conn.Close()
	}
}

// Dial opens an outbound connection to addr and tracks it under peer, so a
// coordinator-initiated connection (rare — workers normally dial in) can
// still be addressed by Send like any accepted peer.
func (e *Endpoint) Dial(addr string) (types.PeerID, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return "", err
	}
	peer := types.PeerID(conn.RemoteAddr().String())
	wc := &wireConn{conn: conn}
	e.connMu.Lock()
	e.conns[peer] = wc
	e.connMu.Unlock()
	go e.readLoop(peer, wc)
	return peer, nil
}

// Send encodes header with CodecJSON, encodes payload with the codec named
// in header.Dumps (defaulting to CodecJSON), stamps header.Address and
// header.Timestamp, and writes the three-part frame under peer's send
// mutex.
func (e *Endpoint) Send(peer types.PeerID, header types.Header, payload interface{}) error {
	e.connMu.Lock()
	wc, ok := e.conns[peer]
	e.connMu.Unlock()
	if !ok {
		return fmt.Errorf("taskgraph: unknown peer %s", peer)
	}

	codec, ok := e.codecs.Resolve(header.Dumps)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownCodec, header.Dumps)
	}
	payloadBytes, err := codec.Encode(payload)
	if err != nil {
		return fmt.Errorf("taskgraph: encode payload: %w", err)
	}

	header.Address = e.localAddr
	header.Timestamp = time.Now().UTC()
	headerCodec, _ := e.codecs.Resolve(types.CodecJSON)
	headerBytes, err := headerCodec.Encode(header)
	if err != nil {
		return fmt.Errorf("taskgraph: encode header: %w", err)
	}

	wc.sendMu.Lock()
	defer wc.sendMu.Unlock()
	return writeFrame(wc.conn, []byte(peer), headerBytes, payloadBytes)
}

// DecodePayload decodes frame.Payload using the codec named in
// frame.Header.Loads, falling back to Dumps, falling back to CodecJSON.
// An unrecognized codec name is a TransportDrop at the caller's
// discretion — DecodePayload only reports the error.
func (e *Endpoint) DecodePayload(frame types.Frame, v interface{}) error {
	name := frame.Header.Loads
	if name == "" {
		name = frame.Header.Dumps
	}
	codec, ok := e.codecs.Resolve(name)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownCodec, name)
	}
	return codec.Decode(frame.Payload, v)
}

// Close shuts the endpoint down: the listener and every tracked connection
// are closed, unblocking Accept and every blocked Read.
func (e *Endpoint) Close() {
	e.closeOnce.Do(func() {
		close(e.closeCh)
		_ = e.listener.Close()
		e.connMu.Lock()
		for _, wc := range e.conns {
			_ = wc.conn.Close()
		}
		e.connMu.Unlock()
	})
}

func writeFrame(w io.Writer, parts ...[]byte) error {
	for _, part := range parts {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(part)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return err
		}
		if len(part) > 0 {
			if _, err := w.Write(part); err != nil {
				return err
			}
		}
	}
	return nil
}

func readPart(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("taskgraph: frame part too large: %d bytes", n)
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readFrame(r io.Reader) (types.Header, []byte, error) {
	// The peer part is read and discarded: the transport layer treats the
	// connection identity, not whatever the sender claims, as the
	// authoritative peer id.
	if _, err := readPart(r); err != nil {
		return types.Header{}, nil, err
	}
	headerBytes, err := readPart(r)
	if err != nil {
		return types.Header{}, nil, err
	}
	payload, err := readPart(r)
	if err != nil {
		return types.Header{}, nil, err
	}
	var header types.Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return types.Header{}, nil, fmt.Errorf("taskgraph: decode header: %w", err)
	}
	return header, payload, nil
}
