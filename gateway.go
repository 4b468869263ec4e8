package torgate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/torgate/torgate/internal/bridge"
	"github.com/torgate/torgate/internal/circuit"
	"github.com/torgate/torgate/internal/config"
	"github.com/torgate/torgate/internal/httpreq"
	"github.com/torgate/torgate/internal/journal"
	"github.com/torgate/torgate/internal/log"
	"github.com/torgate/torgate/internal/stream"
	"github.com/torgate/torgate/internal/tor"
)

// Gateway is one session: configuration, the Tor connection, and the
// circuit and stream managers living on top of it.
//
// The lifecycle is Init (or InitWithConfig), Connect, work, Disconnect.
// Connect after Disconnect starts a fresh session on the same
// configuration; Init after Init fails.
type Gateway struct {
	// mu guards the lifecycle fields below. Resource operations only
	// hold it long enough to snapshot the managers; the managers do
	// their own finer-grained locking.
	mu          sync.Mutex
	initialized bool
	connected   bool

	cfg    config.Config
	logger *slog.Logger

	// logW receives log output; tests redirect it.
	logW io.Writer

	torClient *tor.Client
	embedded  *tor.EmbeddedTor
	pool      *bridge.Pool
	journal   *journal.Journal
	circuits  *circuit.Manager
	streams   *stream.Manager
	http      *httpreq.Client

	// streamOpts is extra stream-manager configuration; tests inject
	// TLS trust roots through it.
	streamOpts []stream.Option

	// forceVerbose overrides the configuration's Verbose field, for
	// callers carrying their own verbosity flag (the CLI).
	forceVerbose bool
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithLogWriter redirects the gateway's log output.
func WithLogWriter(w io.Writer) GatewayOption {
	return func(g *Gateway) {
		g.logW = w
	}
}

// WithVerboseLogging forces debug-level logging regardless of the
// configuration's Verbose field.
func WithVerboseLogging() GatewayOption {
	return func(g *Gateway) {
		g.forceVerbose = true
	}
}

// WithStreamOptions passes options through to the stream manager
// created on Connect.
func WithStreamOptions(opts ...stream.Option) GatewayOption {
	return func(g *Gateway) {
		g.streamOpts = append(g.streamOpts, opts...)
	}
}

// NewGateway creates an uninitialized Gateway.
func NewGateway(opts ...GatewayOption) *Gateway {
	g := &Gateway{
		logW: os.Stderr,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Init initializes the gateway with default configuration.
//
// Initializing twice fails with ErrAlreadyInitialized: a second Init
// would swap configuration underneath live resources, which is always
// a caller bug.
func (g *Gateway) Init() error {
	return g.initWith(config.Default())
}

// InitWithConfig initializes the gateway from a configuration file.
// YAML and TOML files are supported, chosen by extension.
func (g *Gateway) InitWithConfig(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	return g.initWith(cfg)
}

func (g *Gateway) initWith(cfg config.Config) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.initialized {
		return ErrAlreadyInitialized
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if g.forceVerbose {
		cfg.Verbose = true
	}

	g.cfg = cfg
	g.logger = log.NewSecureLogger(g.logW, cfg.Verbose)
	g.initialized = true

	g.logger.Debug("gateway initialized",
		slog.Bool("embedded_tor", cfg.UseEmbeddedTor),
		slog.Bool("journal", cfg.JournalEnabled))
	return nil
}

// Connect establishes the session's Tor connectivity: it starts the
// embedded daemon or verifies the external proxy, then builds the
// circuit and stream managers. Blocks until connectivity is confirmed
// or the bounded timeout fires.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.initialized {
		return ErrNotInitialized
	}
	if g.connected {
		return ErrAlreadyConnected
	}

	client, embedded, err := g.establishTor(ctx)
	if err != nil {
		return err
	}

	var jrnl *journal.Journal
	if g.cfg.JournalEnabled {
		jrnl, err = journal.Open(g.cfg.JournalDir)
		if err != nil {
			// The journal is a diagnostic aid, never a reason to refuse
			// a session.
			g.logger.Warn("journal unavailable", slog.String("error", err.Error()))
			jrnl = nil
		}
	}

	pool := bridge.NewPool(int64(g.cfg.MaxBridgeCalls), g.cfg.ConnectTimeout)
	circuits := circuit.NewManager(client, pool, g.logger, jrnl, g.cfg.ConnectTimeout)
	streams := stream.NewManager(circuits, pool, g.logger, jrnl,
		g.cfg.HandshakeTimeout, g.cfg.IOTimeout, g.streamOpts...)
	circuits.SetStreamCloser(streams)

	g.torClient = client
	g.embedded = embedded
	g.pool = pool
	g.journal = jrnl
	g.circuits = circuits
	g.streams = streams
	g.http = httpreq.New(streams, g.logger, jrnl)
	g.connected = true

	g.logger.Info("session connected", slog.String("proxy", client.ProxyAddress()))
	_ = jrnl.Record(ctx, journal.KindSessionConnect, "", client.ProxyAddress()) //nolint:errcheck // journal is advisory
	return nil
}

// establishTor yields a verified Tor client, starting the embedded
// daemon when configured to.
func (g *Gateway) establishTor(ctx context.Context) (*tor.Client, *tor.EmbeddedTor, error) {
	if g.cfg.UseEmbeddedTor {
		embedded := tor.NewEmbeddedTor(tor.WithStartupTimeout(g.cfg.TorStartupTimeout))
		if err := embedded.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to start embedded tor: %w", err)
		}
		client, err := embedded.NewClient(g.cfg.ConnectTimeout)
		if err != nil {
			_ = embedded.Stop() //nolint:errcheck // already failing
			return nil, nil, err
		}
		return client, embedded, nil
	}

	client, err := tor.NewClient(g.cfg.ProxyAddress, g.cfg.ConnectTimeout)
	if err != nil {
		return nil, nil, err
	}
	if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
		return nil, nil, status.Error()
	}
	return client, nil, nil
}

// Disconnect tears the session down: every circuit and stream is
// closed, the bridge pool drained, and the embedded daemon (if any)
// stopped. The gateway stays initialized; Connect starts a new session.
func (g *Gateway) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.connected {
		return ErrNotConnected
	}

	g.circuits.DestroyAll()
	g.streams.CloseAll()
	g.pool.Close()

	if g.embedded != nil {
		if err := g.embedded.Stop(); err != nil {
			g.logger.Warn("embedded tor stop failed", slog.String("error", err.Error()))
		}
	}

	_ = g.journal.Record(context.Background(), journal.KindSessionDisconnect, "", "") //nolint:errcheck // journal is advisory
	if err := g.journal.Close(); err != nil {
		g.logger.Warn("journal close failed", slog.String("error", err.Error()))
	}

	g.torClient = nil
	g.embedded = nil
	g.pool = nil
	g.journal = nil
	g.circuits = nil
	g.streams = nil
	g.http = nil
	g.connected = false

	g.logger.Info("session disconnected")
	return nil
}

// IsConnected reports whether the session is connected.
func (g *Gateway) IsConnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// session snapshots the live managers, failing when the lifecycle is
// not in the connected state.
func (g *Gateway) session() (*circuit.Manager, *stream.Manager, *httpreq.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.initialized {
		return nil, nil, nil, ErrNotInitialized
	}
	if !g.connected {
		return nil, nil, nil, ErrNotConnected
	}
	return g.circuits, g.streams, g.http, nil
}

// CreateCircuit builds a new circuit under the caller-chosen id.
func (g *Gateway) CreateCircuit(ctx context.Context, id string) error {
	circuits, _, _, err := g.session()
	if err != nil {
		return err
	}
	return circuits.Create(ctx, id)
}

// DestroyCircuit tears down the circuit and every stream it owns.
func (g *Gateway) DestroyCircuit(id string) error {
	circuits, _, _, err := g.session()
	if err != nil {
		return err
	}
	return circuits.Destroy(id)
}

// ConnectStream opens a plain stream to host:port through the circuit
// and returns the generated stream handle.
func (g *Gateway) ConnectStream(ctx context.Context, circuitID, host string, port int) (string, error) {
	_, streams, _, err := g.session()
	if err != nil {
		return "", err
	}
	return streams.Connect(ctx, circuitID, host, port)
}

// ConnectTLSStream opens a TLS stream to host:port through the circuit,
// registered under the caller-supplied id.
func (g *Gateway) ConnectTLSStream(ctx context.Context, circuitID, id, host string, port int) error {
	_, streams, _, err := g.session()
	if err != nil {
		return err
	}
	return streams.ConnectTLS(ctx, circuitID, id, host, port)
}

// streamOfKind resolves a handle and checks it denotes the expected
// stream kind. Plain operations do not see TLS handles and vice versa;
// the two surfaces behave as separate namespaces even though the
// handles share one table.
func (g *Gateway) streamOfKind(id string, kind stream.Kind) (*stream.Manager, error) {
	_, streams, _, err := g.session()
	if err != nil {
		return nil, err
	}
	s, err := streams.Get(id)
	if err != nil {
		return nil, err
	}
	if s.Kind() != kind {
		return nil, stream.ErrStreamNotFound
	}
	return streams, nil
}

// WriteStream appends data to the plain stream's write buffer.
func (g *Gateway) WriteStream(ctx context.Context, id string, data []byte) error {
	streams, err := g.streamOfKind(id, stream.KindPlain)
	if err != nil {
		return err
	}
	return streams.Write(ctx, id, data)
}

// FlushStream pushes the plain stream's buffered bytes to the network.
func (g *Gateway) FlushStream(ctx context.Context, id string) error {
	streams, err := g.streamOfKind(id, stream.KindPlain)
	if err != nil {
		return err
	}
	return streams.Flush(ctx, id)
}

// ReadStream blocks until the plain stream yields at least one byte or
// the peer closes cleanly, which reads as (0, nil).
func (g *Gateway) ReadStream(ctx context.Context, id string, buf []byte) (int, error) {
	streams, err := g.streamOfKind(id, stream.KindPlain)
	if err != nil {
		return 0, err
	}
	return streams.Read(ctx, id, buf)
}

// CloseStream tears down the plain stream. Double close fails.
func (g *Gateway) CloseStream(ctx context.Context, id string) error {
	streams, err := g.streamOfKind(id, stream.KindPlain)
	if err != nil {
		return err
	}
	return streams.Close(ctx, id)
}

// WriteTLSStream appends data to the TLS stream's write buffer.
func (g *Gateway) WriteTLSStream(ctx context.Context, id string, data []byte) error {
	streams, err := g.streamOfKind(id, stream.KindTLS)
	if err != nil {
		return err
	}
	return streams.Write(ctx, id, data)
}

// FlushTLSStream pushes the TLS stream's buffered bytes to the network.
func (g *Gateway) FlushTLSStream(ctx context.Context, id string) error {
	streams, err := g.streamOfKind(id, stream.KindTLS)
	if err != nil {
		return err
	}
	return streams.Flush(ctx, id)
}

// ReadTLSStream blocks until the TLS stream yields at least one byte or
// the peer closes cleanly, which reads as (0, nil).
func (g *Gateway) ReadTLSStream(ctx context.Context, id string, buf []byte) (int, error) {
	streams, err := g.streamOfKind(id, stream.KindTLS)
	if err != nil {
		return 0, err
	}
	return streams.Read(ctx, id, buf)
}

// CloseTLSStream tears down the TLS stream, sending a close-notify
// when the stream is still writable. Double close fails.
func (g *Gateway) CloseTLSStream(ctx context.Context, id string) error {
	streams, err := g.streamOfKind(id, stream.KindTLS)
	if err != nil {
		return err
	}
	return streams.Close(ctx, id)
}

// HTTPRequest performs a one-shot HTTP request through the circuit and
// returns the raw response. The internal stream never escapes.
func (g *Gateway) HTTPRequest(ctx context.Context, circuitID string, req httpreq.Request, limit int) ([]byte, error) {
	_, _, http, err := g.session()
	if err != nil {
		return nil, err
	}
	return http.Do(ctx, circuitID, req, limit)
}
