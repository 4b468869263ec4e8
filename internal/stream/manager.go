package stream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/torgate/torgate/internal/bridge"
	"github.com/torgate/torgate/internal/circuit"
	"github.com/torgate/torgate/internal/journal"
	"github.com/torgate/torgate/internal/registry"
)

// Manager owns every live stream and runs their lifecycle.
//
// Plain streams get a generated handle derived from the parent circuit;
// TLS streams use a caller-supplied handle. Both live in the same table,
// so a TLS handle cannot collide with a plain one either.
type Manager struct {
	circuits *circuit.Manager
	pool     *bridge.Pool
	table    *registry.Table[*Stream]
	logger   *slog.Logger
	journal  *journal.Journal

	handshakeTimeout time.Duration
	ioTimeout        time.Duration

	// tlsBase, when set, seeds the per-stream TLS configuration. Tests
	// inject a config carrying their own root pool through it.
	tlsBase *tls.Config
}

// Option configures a Manager.
type Option func(*Manager)

// WithTLSConfig sets a base TLS configuration cloned for every TLS
// stream before the per-stream fields (ServerName and onion-address
// verification mode) are applied.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(m *Manager) {
		m.tlsBase = cfg
	}
}

// NewManager creates a stream manager. handshakeTimeout bounds TLS
// handshakes, ioTimeout bounds each read, write, and flush.
func NewManager(circuits *circuit.Manager, pool *bridge.Pool, logger *slog.Logger, jrnl *journal.Journal, handshakeTimeout, ioTimeout time.Duration, opts ...Option) *Manager {
	m := &Manager{
		circuits:         circuits,
		pool:             pool,
		table:            registry.New[*Stream](),
		logger:           logger,
		journal:          jrnl,
		handshakeTimeout: handshakeTimeout,
		ioTimeout:        ioTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect opens a plain stream to host:port through the given circuit
// and returns the generated stream handle.
//
// The handle embeds the circuit id, so a log line carrying only the
// stream handle still identifies the circuit it rides on.
func (m *Manager) Connect(ctx context.Context, circuitID, host string, port int) (string, error) {
	conn, err := m.circuits.Dial(ctx, circuitID, host, port)
	if err != nil {
		return "", err
	}

	id := fmt.Sprintf("%s-stream-%s", circuitID, uuid.NewString())
	s := newStream(id, circuitID, host, port, KindPlain, conn, nil)

	if err := m.register(s); err != nil {
		_ = conn.Close() //nolint:errcheck // teardown of a stream that never registered
		return "", err
	}

	m.logger.Debug("stream opened",
		slog.String("stream_id", id),
		slog.String("circuit_id", circuitID),
		slog.Int("port", port))
	_ = m.journal.Record(ctx, journal.KindStreamOpen, id, "plain") //nolint:errcheck // journal is advisory

	return id, nil
}

// ConnectTLS opens a stream to host:port through the given circuit,
// runs a TLS client handshake over it, and registers it under the
// caller-supplied id.
func (m *Manager) ConnectTLS(ctx context.Context, circuitID, id, host string, port int) error {
	if id == "" {
		return ErrEmptyStreamID
	}
	// Fast rejection; the registry Put below is the authoritative check.
	if _, ok := m.table.Get(id); ok {
		return ErrHandleInUse
	}

	conn, err := m.circuits.Dial(ctx, circuitID, host, port)
	if err != nil {
		return err
	}

	tlsConn := tls.Client(conn, m.tlsConfig(host))
	err = m.pool.Call(ctx, m.handshakeTimeout, func(opCtx context.Context) error {
		return tlsConn.HandshakeContext(opCtx)
	})
	if err != nil {
		_ = conn.Close() //nolint:errcheck // handshake failed, connection unusable
		return fmt.Errorf("tls handshake with %s: %w", host, err)
	}

	s := newStream(id, circuitID, host, port, KindTLS, conn, tlsConn)
	if err := m.register(s); err != nil {
		_ = tlsConn.Close() //nolint:errcheck // teardown of a stream that never registered
		return err
	}

	m.logger.Debug("tls stream opened",
		slog.String("stream_id", id),
		slog.String("circuit_id", circuitID),
		slog.Int("port", port))
	_ = m.journal.Record(ctx, journal.KindStreamOpen, id, "tls") //nolint:errcheck // journal is advisory

	return nil
}

// register puts the stream in the table and attaches it to its parent
// circuit, undoing the registration if the circuit vanished in between.
func (m *Manager) register(s *Stream) error {
	if err := m.table.Put(s.id, s); err != nil {
		if errors.Is(err, registry.ErrHandleExists) {
			return ErrHandleInUse
		}
		return err
	}
	if err := m.circuits.AttachStream(s.circuitID, s.id); err != nil {
		_, _ = m.table.Remove(s.id) //nolint:errcheck // undoing our own Put
		return err
	}
	return nil
}

// tlsConfig builds the per-stream TLS client configuration.
//
// Onion services authenticate through their address (the public key is
// the hostname), so certificate chains behind .onion hosts are usually
// self-signed and chain verification is skipped for them. Clearnet
// hosts are verified normally.
func (m *Manager) tlsConfig(host string) *tls.Config {
	var cfg *tls.Config
	if m.tlsBase != nil {
		cfg = m.tlsBase.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	cfg.ServerName = host
	if strings.HasSuffix(host, ".onion") {
		cfg.InsecureSkipVerify = true
	}
	return cfg
}

// Write appends p to the stream's buffered write path.
func (m *Manager) Write(ctx context.Context, id string, p []byte) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := s.Write(p, m.ioTimeout); err != nil {
		return m.fail(ctx, s, "write", err)
	}
	return nil
}

// Flush blocks until the stream's buffered bytes have been handed to
// the network layer.
func (m *Manager) Flush(ctx context.Context, id string) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := s.Flush(m.ioTimeout); err != nil {
		return m.fail(ctx, s, "flush", err)
	}
	return nil
}

// Read blocks until at least one byte arrives, the peer closes cleanly,
// or the stream fails. A clean peer close reports (0, nil); the caller
// distinguishes it from "no data yet" because Read never returns zero
// bytes otherwise.
func (m *Manager) Read(ctx context.Context, id string, p []byte) (int, error) {
	s, err := m.lookup(id)
	if err != nil {
		return 0, err
	}
	n, err := s.Read(p, m.ioTimeout)
	if err != nil && !errors.Is(err, ErrStreamNotFound) {
		return 0, m.fail(ctx, s, "read", err)
	}
	return n, err
}

// fail tears down a stream whose I/O hit a non-clean error. The
// connection state after such an error is undefined, so the handle is
// removed rather than left for the caller to retry on.
func (m *Manager) fail(ctx context.Context, s *Stream, op string, err error) error {
	if _, rmErr := m.table.Remove(s.id); rmErr == nil {
		s.Close()
		m.circuits.DetachStream(s.circuitID, s.id)
	}
	m.logger.Warn("stream failed",
		slog.String("stream_id", s.id),
		slog.String("op", op),
		slog.String("error", err.Error()))
	_ = m.journal.Record(ctx, journal.KindFailure, s.id, op+": "+err.Error()) //nolint:errcheck // journal is advisory
	return fmt.Errorf("stream %s: %w", op, err)
}

// Close tears down the stream and releases its handle. The first close
// wins; a second close of the same handle fails with ErrStreamNotFound.
func (m *Manager) Close(ctx context.Context, id string) error {
	s, err := m.table.Remove(id)
	if err != nil {
		return ErrStreamNotFound
	}
	s.Close()
	m.circuits.DetachStream(s.circuitID, s.id)

	m.logger.Debug("stream closed", slog.String("stream_id", id))
	_ = m.journal.Record(ctx, journal.KindStreamClose, id, s.kind.String()) //nolint:errcheck // journal is advisory
	return nil
}

// CloseOwned tears down a stream on behalf of its parent circuit during
// cascade teardown. The circuit is already dropping its child set, so
// no detach happens here; a handle already gone is not an error.
func (m *Manager) CloseOwned(id string) {
	s, err := m.table.Remove(id)
	if err != nil {
		return
	}
	s.Close()
	m.logger.Debug("stream closed by circuit teardown", slog.String("stream_id", id))
}

// CloseAll tears down every live stream. Used during session teardown
// after the circuits have already been destroyed.
func (m *Manager) CloseAll() {
	for _, s := range m.table.Drain() {
		s.Close()
	}
}

// Get returns the live stream for id.
func (m *Manager) Get(id string) (*Stream, error) {
	return m.lookup(id)
}

// Len returns the number of live streams.
func (m *Manager) Len() int {
	return m.table.Len()
}

func (m *Manager) lookup(id string) (*Stream, error) {
	s, ok := m.table.Get(id)
	if !ok {
		return nil, ErrStreamNotFound
	}
	return s, nil
}
