package torgate

import (
	"context"
	"log/slog"

	"github.com/torgate/torgate/internal/httpreq"
)

// Status codes returned by the boundary surface. Foreign callers get a
// bare code; the cause is in the log and the lifecycle journal.
const (
	// Success indicates the operation completed.
	Success = 1

	// Failure indicates the operation did not complete. All failure
	// causes collapse into this one code.
	Failure = 0
)

// defaultGateway backs the package-level boundary functions. Foreign
// runtimes hold no session object, so the package itself is the
// session.
var defaultGateway = NewGateway()

// fail logs the cause and returns Failure. The boundary code carries no
// detail, so this log line is often the only trace of what went wrong.
func fail(op string, err error) int {
	defaultGateway.logFailure(op, err)
	return Failure
}

// logFailure reports a boundary failure through the session logger,
// silently dropping it when the gateway was never initialized and has
// no logger yet.
func (g *Gateway) logFailure(op string, err error) {
	g.mu.Lock()
	logger := g.logger
	g.mu.Unlock()
	if logger == nil {
		return
	}
	logger.Warn("boundary operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()))
}

// copyHandle writes id into dst as a NUL-terminated string. A handle
// that does not fit, terminator included, is an error: a truncated
// handle would silently address nothing.
func copyHandle(dst []byte, id string) error {
	if dst == nil {
		return ErrNilBuffer
	}
	if len(id)+1 > len(dst) {
		return ErrBufferTooSmall
	}
	copy(dst, id)
	dst[len(id)] = 0
	return nil
}

// Init initializes the session with default configuration.
// A second Init fails.
func Init() int {
	if err := defaultGateway.Init(); err != nil {
		return fail("init", err)
	}
	return Success
}

// InitWithConfig initializes the session from a YAML or TOML
// configuration file.
func InitWithConfig(path string) int {
	if err := defaultGateway.InitWithConfig(path); err != nil {
		return fail("init_with_config", err)
	}
	return Success
}

// Connect establishes Tor connectivity for the session.
func Connect() int {
	if err := defaultGateway.Connect(context.Background()); err != nil {
		return fail("connect", err)
	}
	return Success
}

// Disconnect tears down every circuit and stream and releases the
// session's Tor connectivity.
func Disconnect() int {
	if err := defaultGateway.Disconnect(); err != nil {
		return fail("disconnect", err)
	}
	return Success
}

// IsConnected reports whether the session is connected.
func IsConnected() int {
	if defaultGateway.IsConnected() {
		return Success
	}
	return Failure
}

// CreateCircuit builds a circuit under the caller-chosen id. Creating
// an id that is already live fails.
func CreateCircuit(id string) int {
	if err := defaultGateway.CreateCircuit(context.Background(), id); err != nil {
		return fail("create_circuit", err)
	}
	return Success
}

// DestroyCircuit tears down the circuit and every stream it owns.
// Destroying an unknown or already-destroyed id fails.
func DestroyCircuit(id string) int {
	if err := defaultGateway.DestroyCircuit(id); err != nil {
		return fail("destroy_circuit", err)
	}
	return Success
}

// ConnectStream opens a plain stream to host:port through the circuit
// and writes the generated NUL-terminated stream handle into idBuf.
// If the handle does not fit, the stream is closed again and the call
// fails; no stream is leaked behind an unknown handle.
func ConnectStream(circuitID, host string, port int, idBuf []byte) int {
	ctx := context.Background()
	id, err := defaultGateway.ConnectStream(ctx, circuitID, host, port)
	if err != nil {
		return fail("connect_stream", err)
	}
	if err := copyHandle(idBuf, id); err != nil {
		_ = defaultGateway.CloseStream(ctx, id) //nolint:errcheck // already failing
		return fail("connect_stream", err)
	}
	return Success
}

// WriteStream appends data to the plain stream's write buffer.
func WriteStream(id string, data []byte) int {
	if err := defaultGateway.WriteStream(context.Background(), id, data); err != nil {
		return fail("write_stream", err)
	}
	return Success
}

// FlushStream pushes the plain stream's buffered bytes to the network.
func FlushStream(id string) int {
	if err := defaultGateway.FlushStream(context.Background(), id); err != nil {
		return fail("flush_stream", err)
	}
	return Success
}

// ReadStream blocks until the plain stream yields data, then stores the
// byte count in bytesRead. A clean peer close succeeds with zero bytes.
func ReadStream(id string, buf []byte, bytesRead *int) int {
	if buf == nil || bytesRead == nil {
		return fail("read_stream", ErrNilBuffer)
	}
	n, err := defaultGateway.ReadStream(context.Background(), id, buf)
	if err != nil {
		return fail("read_stream", err)
	}
	*bytesRead = n
	return Success
}

// CloseStream tears down the plain stream. A second close of the same
// handle fails.
func CloseStream(id string) int {
	if err := defaultGateway.CloseStream(context.Background(), id); err != nil {
		return fail("close_stream", err)
	}
	return Success
}

// ConnectTLSStream opens a TLS stream to host:port through the circuit,
// registered under the caller-supplied id. An id colliding with any
// live stream fails.
func ConnectTLSStream(circuitID, host string, port int, id string) int {
	if err := defaultGateway.ConnectTLSStream(context.Background(), circuitID, id, host, port); err != nil {
		return fail("connect_tls_stream", err)
	}
	return Success
}

// WriteTLSStream appends data to the TLS stream's write buffer.
func WriteTLSStream(id string, data []byte) int {
	if err := defaultGateway.WriteTLSStream(context.Background(), id, data); err != nil {
		return fail("write_tls_stream", err)
	}
	return Success
}

// FlushTLSStream pushes the TLS stream's buffered bytes to the network.
func FlushTLSStream(id string) int {
	if err := defaultGateway.FlushTLSStream(context.Background(), id); err != nil {
		return fail("flush_tls_stream", err)
	}
	return Success
}

// ReadTLSStream blocks until the TLS stream yields data, then stores
// the byte count in bytesRead. A clean peer close succeeds with zero
// bytes.
func ReadTLSStream(id string, buf []byte, bytesRead *int) int {
	if buf == nil || bytesRead == nil {
		return fail("read_tls_stream", ErrNilBuffer)
	}
	n, err := defaultGateway.ReadTLSStream(context.Background(), id, buf)
	if err != nil {
		return fail("read_tls_stream", err)
	}
	*bytesRead = n
	return Success
}

// CloseTLSStream tears down the TLS stream. A second close of the same
// handle fails.
func CloseTLSStream(id string) int {
	if err := defaultGateway.CloseTLSStream(context.Background(), id); err != nil {
		return fail("close_tls_stream", err)
	}
	return Success
}

// HTTPRequest performs a one-shot HTTP request through the circuit and
// copies the raw response into respBuf, storing its length in
// bytesRead. A response that does not fit fails; it is never truncated.
func HTTPRequest(circuitID, method, url string, headers map[string]string, body []byte, respBuf []byte, bytesRead *int) int {
	if respBuf == nil || bytesRead == nil {
		return fail("http_request", ErrNilBuffer)
	}
	resp, err := defaultGateway.HTTPRequest(context.Background(), circuitID, httpreq.Request{
		Method:  method,
		URL:     url,
		Headers: headers,
		Body:    body,
	}, len(respBuf))
	if err != nil {
		return fail("http_request", err)
	}
	copy(respBuf, resp)
	*bytesRead = len(resp)
	return Success
}
