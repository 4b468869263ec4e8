package httpreq

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/torgate/torgate/internal/journal"
	"github.com/torgate/torgate/internal/stream"
)

// readChunkSize is how much each blocking read asks for while draining
// a response.
const readChunkSize = 8192

// Request describes one HTTP request. Method defaults to GET and the
// Host header is always derived from the URL; Headers may add or
// override anything else.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Client performs HTTP requests over circuit streams.
type Client struct {
	streams *stream.Manager
	logger  *slog.Logger
	journal *journal.Journal
}

// New creates an HTTP client on top of the given stream manager.
func New(streams *stream.Manager, logger *slog.Logger, jrnl *journal.Journal) *Client {
	return &Client{
		streams: streams,
		logger:  logger,
		journal: jrnl,
	}
}

// Do performs the request through the given circuit and returns the raw
// response, status line and headers included, read until the server
// closes the connection.
//
// limit caps the response size. A response that would exceed it fails
// with ErrResponseTooLarge rather than being cut short: the caller
// cannot tell a truncated response from a complete one, so we never
// hand one out.
func (c *Client) Do(ctx context.Context, circuitID string, req Request, limit int) ([]byte, error) {
	host, port, useTLS, err := splitTarget(req.URL)
	if err != nil {
		return nil, err
	}

	id, err := c.open(ctx, circuitID, host, port, useTLS)
	if err != nil {
		return nil, err
	}
	// The handle may already be gone if an I/O error tore it down
	// mid-request; the close error is irrelevant either way.
	defer c.streams.Close(ctx, id) //nolint:errcheck // best-effort teardown

	if err := c.streams.Write(ctx, id, buildRequest(req, host)); err != nil {
		return nil, err
	}
	if err := c.streams.Flush(ctx, id); err != nil {
		return nil, err
	}

	resp, err := c.drain(ctx, id, limit)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("http request completed",
		slog.String("circuit_id", circuitID),
		slog.String("host", host),
		slog.Int("response_bytes", len(resp)))
	_ = c.journal.Record(ctx, journal.KindHTTPRequest, circuitID, req.URL) //nolint:errcheck // journal is advisory

	return resp, nil
}

// open establishes the transport stream for the request.
func (c *Client) open(ctx context.Context, circuitID, host string, port int, useTLS bool) (string, error) {
	if !useTLS {
		return c.streams.Connect(ctx, circuitID, host, port)
	}
	id := fmt.Sprintf("%s-https-%s", circuitID, uuid.NewString())
	if err := c.streams.ConnectTLS(ctx, circuitID, id, host, port); err != nil {
		return "", err
	}
	return id, nil
}

// drain reads the whole response. The request carried Connection: close,
// so a clean peer close marks the end of the body.
func (c *Client) drain(ctx context.Context, id string, limit int) ([]byte, error) {
	var resp []byte
	chunk := make([]byte, readChunkSize)
	for {
		n, err := c.streams.Read(ctx, id, chunk)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return resp, nil
		}
		if len(resp)+n > limit {
			return nil, ErrResponseTooLarge
		}
		resp = append(resp, chunk[:n]...)
	}
}

// splitTarget extracts host, port, and transport kind from the URL.
func splitTarget(rawURL string) (host string, port int, useTLS bool, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, false, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Hostname() == "" {
		return "", 0, false, ErrInvalidURL
	}

	switch u.Scheme {
	case "http":
		port = 80
	case "https":
		port = 443
		useTLS = true
	default:
		return "", 0, false, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, false, fmt.Errorf("%w: bad port %q", ErrInvalidURL, p)
		}
	}
	return u.Hostname(), port, useTLS, nil
}

// buildRequest serializes the HTTP/1.1 request. Connection: close is
// always sent because the response framing relies on the peer closing.
func buildRequest(req Request, host string) []byte {
	method := req.Method
	if method == "" {
		method = "GET"
	}

	target := "/"
	if u, err := url.Parse(req.URL); err == nil {
		if u.Path != "" {
			target = u.Path
		}
		if u.RawQuery != "" {
			target += "?" + u.RawQuery
		}
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, target)
	fmt.Fprintf(&b, "Host: %s\r\n", host)
	fmt.Fprintf(&b, "Connection: close\r\n")
	if len(req.Body) > 0 {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(req.Body))
	}
	for k, v := range req.Headers {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("\r\n")
	b.Write(req.Body)
	return b.Bytes()
}
