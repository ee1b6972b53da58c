// Package transport implements the byte-level send/recv channel that
// carries GVCP control frames and GVSP stream packets (spec.md §4.1).
// The core protocol and reassembly packages never assume which kind of
// transport they are given; they depend only on this contract.
package transport

import (
	"errors"
	"time"
)

// Kind distinguishes the two transport shapes described in spec.md §4.1.
type Kind int

const (
	// KindDatagram is an unreliable, possibly-reordering bounded-frame
	// transport: a UDP socket pair for GigE control and streaming.
	KindDatagram Kind = iota
	// KindBulk is an ordered, reliable byte stream partitioned into
	// transfers of a declared maximum size: a USB bulk endpoint pair
	// for U3V.
	KindBulk
)

// ErrIO reports a transport-level failure (socket error, endpoint
// stall, broken pipe) distinct from a timeout.
var ErrIO = errors.New("transport: io error")

// ErrTimeout reports that Recv returned no data within the requested
// deadline.
var ErrTimeout = errors.New("transport: timeout")

// ErrClosed reports an operation attempted on a transport that has
// already been closed.
var ErrClosed = errors.New("transport: closed")

// Transport is the contract both gvcp and gvsp build on: send a frame,
// receive a frame (or time out), close. Implementations are not
// required to be safe for concurrent Send and Recv from multiple
// goroutines beyond one reader and one writer at a time; device and
// stream each hold their own transport instance and serialize access
// internally (spec.md §5).
type Transport interface {
	Kind() Kind

	// Send transmits b in full or returns ErrIO. For a datagram
	// transport, b must not exceed the path MTU accepted by the
	// implementation; larger payloads are the caller's responsibility
	// to fragment (gvcp memory reads/writes do this explicitly).
	Send(b []byte) error

	// Recv blocks until a frame arrives, the deadline elapses, or the
	// transport is closed, writing into buf and returning the number
	// of bytes received. Returns ErrTimeout if no frame arrived before
	// deadline, ErrClosed if the transport was closed concurrently.
	Recv(buf []byte, deadline time.Duration) (int, error)

	Close() error
}
