// Package test is an end-to-end harness for the taskgraph coordinator. It
// speaks the wire protocol directly over real net.Conns rather than through
// package core, the way a real worker or client process would — the
// coordinator ships without a worker or client binary of its own, so the
// stub worker and client helpers here exist only to drive it through real
// sockets in tests.
package test

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/jabolina/go-taskgraph/pkg/taskgraph/types"
)

// dialTarget turns a coordinator-advertised "tcp://host:port" address into
// something net.Dial can reach from inside the test process, bypassing
// whatever hostname os.Hostname() returned at bind time.
func dialTarget(advertised string) string {
	addr := strings.TrimPrefix(advertised, "tcp://")
	idx := strings.LastIndex(addr, ":")
	return "127.0.0.1" + addr[idx:]
}

func dial(advertised string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", dialTarget(advertised), timeout)
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
		return types.Header{}, nil, fmt.Errorf("test: decode header: %w", err)
	}
	return header, payload, nil
}

func sendFrame(conn net.Conn, header types.Header, payload interface{}, codecs *types.CodecRegistry) error {
	codec, ok := codecs.Resolve(header.Dumps)
	if !ok {
		return fmt.Errorf("test: unknown codec %s", header.Dumps)
	}
	payloadBytes, err := codec.Encode(payload)
	if err != nil {
		return err
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return err
	}
	return writeFrame(conn, []byte("test-peer"), headerBytes, payloadBytes)
}

func decodePayload(header types.Header, payload []byte, v interface{}, codecs *types.CodecRegistry) error {
	name := header.Loads
	if name == "" {
		name = header.Dumps
	}
	codec, ok := codecs.Resolve(name)
	if !ok {
		return fmt.Errorf("test: unknown codec %s", name)
	}
	return codec.Decode(payload, v)
}
