package stream

import (
	"bufio"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Kind distinguishes plain streams from TLS-wrapped streams.
type Kind int

const (
	// KindPlain is a raw byte stream through the circuit.
	KindPlain Kind = iota

	// KindTLS is a stream wrapped in a TLS client session.
	KindTLS
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	if k == KindTLS {
		return "tls"
	}
	return "plain"
}

// State is the lifecycle state of a stream.
// Transitions are monotonic: Connecting -> Open -> HalfClosed -> Closed.
type State int32

const (
	// StateConnecting means the stream is being established.
	StateConnecting State = iota

	// StateOpen means the stream is readable and writable.
	StateOpen

	// StateHalfClosed means the peer has closed its half; the stream is
	// still writable but further reads report a clean zero-byte close.
	StateHalfClosed

	// StateClosed means the stream is torn down.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateHalfClosed:
		return "half-closed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// writeBufferSize is the size of each stream's buffered write path.
// Tor cells carry ~498 payload bytes; 4KB batches several cells per
// flush without holding much memory per stream.
const writeBufferSize = 4096

// closeNotifyTimeout bounds the graceful half of stream teardown
// (final flush, TLS close-notify). Teardown must be prompt even when
// the peer is gone.
const closeNotifyTimeout = 5 * time.Second

// Stream is one live stream resource.
//
// The write path is serialized by wmu (the bufio.Writer is not
// concurrency-safe), the read path by rmu. A read and a write on the
// same handle may run in parallel; two reads or two writes may not.
// Close interrupts a blocked read or write by closing the underlying
// connection, which fails the pending I/O promptly.
type Stream struct {
	id        string
	circuitID string
	host      string
	port      int
	kind      Kind

	// state holds a State value.
	state atomic.Int32

	// raw is the connection obtained from the circuit. Deadlines are
	// always set here; for TLS streams they propagate through tlsConn.
	raw net.Conn

	// tlsConn wraps raw for KindTLS streams, nil otherwise.
	tlsConn *tls.Conn

	// rw is what reads and writes go through: raw for plain streams,
	// tlsConn for TLS streams.
	rw io.ReadWriter

	wmu sync.Mutex
	w   *bufio.Writer

	rmu sync.Mutex
}

// newStream wraps an established connection. For TLS streams tlsConn
// must already have completed its handshake.
func newStream(id, circuitID, host string, port int, kind Kind, raw net.Conn, tlsConn *tls.Conn) *Stream {
	s := &Stream{
		id:        id,
		circuitID: circuitID,
		host:      host,
		port:      port,
		kind:      kind,
		raw:       raw,
		tlsConn:   tlsConn,
	}
	if kind == KindTLS {
		s.rw = tlsConn
	} else {
		s.rw = raw
	}
	s.w = bufio.NewWriterSize(s.rw, writeBufferSize)
	s.state.Store(int32(StateOpen))
	return s
}

// ID returns the stream handle.
func (s *Stream) ID() string { return s.id }

// CircuitID returns the parent circuit handle.
func (s *Stream) CircuitID() string { return s.circuitID }

// Kind returns the stream kind.
func (s *Stream) Kind() Kind { return s.kind }

// State returns the current lifecycle state.
func (s *Stream) State() State {
	return State(s.state.Load())
}

// writable reports whether the stream accepts writes. HalfClosed only
// means the peer stopped sending; our half is still open.
func (s *Stream) writable() bool {
	st := s.State()
	return st == StateOpen || st == StateHalfClosed
}

// Write appends p to the stream's write path. Buffered bytes are handed
// to the network when the buffer fills or Flush is called. The deadline
// bounds any flush forced by a full buffer.
func (s *Stream) Write(p []byte, timeout time.Duration) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if !s.writable() {
		return ErrStreamNotWritable
	}

	if err := s.raw.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if _, err := s.w.Write(p); err != nil {
		return err
	}
	return nil
}

// Flush blocks until all buffered bytes have been handed to the
// network layer.
func (s *Stream) Flush(timeout time.Duration) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if !s.writable() {
		return ErrStreamNotWritable
	}

	if err := s.raw.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return s.w.Flush()
}

// Read blocks until at least one byte is available, the peer closes
// cleanly, the timeout fires, or the stream is closed underneath us.
//
// A clean peer close returns (0, nil) and moves the stream to
// HalfClosed; every later read reports the same. Any other failure --
// including a fatal TLS record error -- is returned to the caller, who
// is expected to tear the stream down rather than retry: the connection
// state after such an error is undefined.
func (s *Stream) Read(p []byte, timeout time.Duration) (int, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()

	switch s.State() {
	case StateHalfClosed:
		return 0, nil
	case StateClosed, StateConnecting:
		return 0, ErrStreamNotFound
	case StateOpen:
		// Proceed.
	}

	if len(p) == 0 {
		// A zero-length buffer cannot observe anything about the peer;
		// answering (0, nil) here must not be confused with a close.
		return 0, nil
	}

	if err := s.raw.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}

	n, err := s.rw.Read(p)
	if n > 0 {
		// Bytes first; a terminal condition will surface on the next read.
		return n, nil
	}
	if errors.Is(err, io.EOF) {
		s.state.CompareAndSwap(int32(StateOpen), int32(StateHalfClosed))
		return 0, nil
	}
	return 0, err
}

// Close tears the stream down. The graceful half (final flush and, for
// TLS, the close-notify alert) is attempted only when the write path is
// free and the stream still writable; a blocked writer is interrupted
// by the connection close instead of waited for.
func (s *Stream) Close() {
	wasWritable := s.writable()
	s.state.Store(int32(StateClosed))

	if wasWritable && s.wmu.TryLock() {
		_ = s.raw.SetWriteDeadline(time.Now().Add(closeNotifyTimeout)) //nolint:errcheck // best effort
		_ = s.w.Flush()                                                //nolint:errcheck // best effort
		if s.tlsConn != nil {
			// Send close-notify so the peer sees an orderly TLS shutdown.
			_ = s.tlsConn.CloseWrite() //nolint:errcheck // best effort, peer may be gone
		}
		s.wmu.Unlock()
	}

	// Closing the raw connection interrupts any blocked read or write
	// on this stream.
	_ = s.raw.Close() //nolint:errcheck // teardown
}
