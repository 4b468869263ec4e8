package circuit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/torgate/torgate/internal/bridge"
	"github.com/torgate/torgate/internal/journal"
	"github.com/torgate/torgate/internal/registry"
	"github.com/torgate/torgate/internal/tor"
)

// StreamCloser is the callback the stream layer registers so circuit
// destruction can cascade to child streams without the circuit package
// importing the stream package.
type StreamCloser interface {
	// CloseOwned closes a stream during parent-circuit teardown.
	// Best effort: errors are the closer's to log, not to return.
	CloseOwned(streamID string)
}

// Manager owns the set of live circuits.
type Manager struct {
	client  *tor.Client
	pool    *bridge.Pool
	table   *registry.Table[*Circuit]
	logger  *slog.Logger
	journal *journal.Journal

	// buildTimeout bounds circuit creation, including the proxy probe.
	buildTimeout time.Duration

	// streamCloser receives cascade callbacks; set after the stream
	// manager exists because the two layers reference each other.
	streamCloser StreamCloser
}

// NewManager creates a circuit manager.
func NewManager(client *tor.Client, pool *bridge.Pool, logger *slog.Logger, jrnl *journal.Journal, buildTimeout time.Duration) *Manager {
	return &Manager{
		client:       client,
		pool:         pool,
		table:        registry.New[*Circuit](),
		logger:       logger,
		journal:      jrnl,
		buildTimeout: buildTimeout,
	}
}

// SetStreamCloser wires the stream-layer cascade callback.
func (m *Manager) SetStreamCloser(sc StreamCloser) {
	m.streamCloser = sc
}

// Create builds a new circuit and registers it under id.
//
// "Build" here means constructing the circuit's isolated dialer and
// probing the proxy with a SOCKS5 handshake: Tor builds the actual relay
// path lazily on the first stream, but a dead or wrong proxy fails here,
// bounded by the build timeout. Registration is atomic with build
// success; a failed build leaves no registry entry behind.
func (m *Manager) Create(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyCircuitID
	}

	// Fast path: reject duplicates before paying for the probe. The
	// authoritative check is the registry insert below.
	if _, ok := m.table.Get(id); ok {
		return ErrCircuitExists
	}

	dialer, err := m.client.IsolatedDialer(id)
	if err != nil {
		return fmt.Errorf("failed to create circuit dialer: %w", err)
	}

	err = m.pool.Call(ctx, m.buildTimeout, func(ctx context.Context) error {
		if status := m.client.CheckConnection(ctx); status != tor.ProxyStatusOK {
			return fmt.Errorf("circuit build probe: %w", status.Error())
		}
		return nil
	})
	if err != nil {
		m.logger.Warn("circuit build failed", "circuit", id, "error", err)
		return err
	}

	c := newCircuit(id, dialer)
	c.markOpen()

	if err := m.table.Put(id, c); err != nil {
		if errors.Is(err, registry.ErrHandleExists) {
			return ErrCircuitExists
		}
		return err
	}

	m.logger.Debug("circuit created", "circuit", id)
	if err := m.journal.Record(ctx, journal.KindCircuitCreate, id, ""); err != nil {
		m.logger.Warn("journal write failed", "error", err)
	}
	return nil
}

// Destroy tears down the circuit registered under id.
//
// The registry removal is first-wins, so a second destroy of the same id
// fails with ErrCircuitNotFound instead of silently succeeding. Child
// streams are closed best-effort before the circuit is released;
// closing interrupts any in-flight reads or writes on them.
func (m *Manager) Destroy(id string) error {
	c, err := m.table.Remove(id)
	if err != nil {
		return ErrCircuitNotFound
	}

	c.markDestroyed()

	for _, streamID := range c.drainStreams() {
		if m.streamCloser != nil {
			m.streamCloser.CloseOwned(streamID)
		}
	}

	m.logger.Debug("circuit destroyed", "circuit", id)
	if err := m.journal.Record(context.Background(), journal.KindCircuitDestroy, id, ""); err != nil {
		m.logger.Warn("journal write failed", "error", err)
	}
	return nil
}

// DestroyAll tears down every live circuit. Used by session disconnect;
// best effort and concurrent since circuits are independent.
func (m *Manager) DestroyAll() {
	circuits := m.table.Drain()

	var g errgroup.Group
	for _, c := range circuits {
		g.Go(func() error {
			c.markDestroyed()
			for _, streamID := range c.drainStreams() {
				if m.streamCloser != nil {
					m.streamCloser.CloseOwned(streamID)
				}
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	if len(circuits) > 0 {
		m.logger.Debug("all circuits destroyed", "count", len(circuits))
	}
}

// Dial opens a connection to host:port through the circuit's isolation
// domain, blocking up to the connect timeout. The circuit must be Open
// and onion hosts must carry a valid v3 address.
func (m *Manager) Dial(ctx context.Context, id, host string, port int) (net.Conn, error) {
	c, ok := m.table.Get(id)
	if !ok {
		return nil, ErrCircuitNotFound
	}
	if c.State() != StateOpen {
		return nil, ErrCircuitNotOpen
	}

	if port < 1 || port > 65535 {
		return nil, ErrInvalidPort
	}
	if err := tor.ValidateTargetHost(host); err != nil {
		return nil, err
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))

	var conn net.Conn
	err := m.pool.Call(ctx, m.buildTimeout, func(ctx context.Context) error {
		var dialErr error
		conn, dialErr = c.dialer.DialContext(ctx, "tcp", address)
		return dialErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s through circuit %s: %w", address, id, err)
	}
	return conn, nil
}

// AttachStream records streamID as owned by the circuit, so destroy can
// cascade to it. Fails if the circuit is gone, in which case the caller
// must close the stream itself.
func (m *Manager) AttachStream(id, streamID string) error {
	c, ok := m.table.Get(id)
	if !ok {
		return ErrCircuitNotFound
	}
	// addStream rechecks the state under the circuit's stream-set lock:
	// a destroy that wins the race between the lookup above and the
	// insert would otherwise leave the stream orphaned outside the
	// drained set.
	if !c.addStream(streamID) {
		return ErrCircuitNotOpen
	}
	return nil
}

// DetachStream drops the ownership record for streamID. Safe to call
// after the circuit is already gone.
func (m *Manager) DetachStream(id, streamID string) {
	if c, ok := m.table.Get(id); ok {
		c.removeStream(streamID)
	}
}

// Get returns the circuit registered under id.
func (m *Manager) Get(id string) (*Circuit, error) {
	c, ok := m.table.Get(id)
	if !ok {
		return nil, ErrCircuitNotFound
	}
	return c, nil
}

// Len returns the number of live circuits.
func (m *Manager) Len() int {
	return m.table.Len()
}
