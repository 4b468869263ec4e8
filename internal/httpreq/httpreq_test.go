package httpreq

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/torgate/torgate/internal/bridge"
	"github.com/torgate/torgate/internal/circuit"
	"github.com/torgate/torgate/internal/stream"
	"github.com/torgate/torgate/internal/testutil"
	"github.com/torgate/torgate/internal/tor"
)

// newTestClient builds an HTTP client whose circuits route through an
// in-process SOCKS proxy that resolves every target to addr.
func newTestClient(t *testing.T, addr string, opts ...stream.Option) (*Client, *stream.Manager) {
	t.Helper()

	proxy, err := testutil.StartSocksProxy(func(string) (string, error) {
		return addr, nil
	})
	if err != nil {
		t.Fatalf("failed to start socks proxy: %v", err)
	}
	t.Cleanup(proxy.Close)

	client, err := tor.NewClient(proxy.Addr(), 5*time.Second)
	if err != nil {
		t.Fatalf("failed to create tor client: %v", err)
	}

	pool := bridge.NewPool(16, 5*time.Second)
	t.Cleanup(pool.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	circuits := circuit.NewManager(client, pool, logger, nil, 5*time.Second)
	streams := stream.NewManager(circuits, pool, logger, nil, 5*time.Second, 10*time.Second, opts...)
	circuits.SetStreamCloser(streams)

	if err := circuits.Create(context.Background(), "c1"); err != nil {
		t.Fatalf("failed to create circuit: %v", err)
	}
	return New(streams, logger, nil), streams
}

func hostOf(t *testing.T, serverURL string) string {
	t.Helper()
	u, err := url.Parse(serverURL)
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}
	return u.Host
}

func TestClientDo(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("all systems nominal"))
	}))
	t.Cleanup(server.Close)

	client, streams := newTestClient(t, hostOf(t, server.URL))

	resp, err := client.Do(context.Background(), "c1", Request{URL: "http://service.test/status"}, 1<<20)
	if err != nil {
		t.Fatalf("failed to perform request: %v", err)
	}

	if !strings.HasPrefix(string(resp), "HTTP/1.1 200") {
		t.Errorf("response does not start with a 200 status line: %q", firstLine(resp))
	}
	if !bytes.Contains(resp, []byte("all systems nominal")) {
		t.Error("response body missing")
	}
	if streams.Len() != 0 {
		t.Errorf("request leaked %d streams", streams.Len())
	}
}

func TestClientDoPostBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(server.Close)

	client, _ := newTestClient(t, hostOf(t, server.URL))

	resp, err := client.Do(context.Background(), "c1", Request{
		Method:  http.MethodPost,
		URL:     "http://service.test/echo",
		Headers: map[string]string{"Content-Type": "text/plain"},
		Body:    []byte("request payload"),
	}, 1<<20)
	if err != nil {
		t.Fatalf("failed to perform request: %v", err)
	}
	if !bytes.Contains(resp, []byte("request payload")) {
		t.Error("echoed body missing from response")
	}
}

func TestClientDoTLS(t *testing.T) {
	t.Parallel()

	serverCfg, roots, err := testutil.SelfSignedCert("service.test")
	if err != nil {
		t.Fatalf("failed to generate certificate: %v", err)
	}

	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("over tls"))
	}))
	server.TLS = serverCfg
	server.StartTLS()
	t.Cleanup(server.Close)

	client, streams := newTestClient(t, hostOf(t, server.URL),
		stream.WithTLSConfig(&tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12}))

	resp, err := client.Do(context.Background(), "c1", Request{URL: "https://service.test/"}, 1<<20)
	if err != nil {
		t.Fatalf("failed to perform https request: %v", err)
	}
	if !bytes.Contains(resp, []byte("over tls")) {
		t.Error("response body missing")
	}
	if streams.Len() != 0 {
		t.Errorf("request leaked %d streams", streams.Len())
	}
}

func TestClientDoResponseTooLarge(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 4096))
	}))
	t.Cleanup(server.Close)

	client, streams := newTestClient(t, hostOf(t, server.URL))

	_, err := client.Do(context.Background(), "c1", Request{URL: "http://service.test/big"}, 256)
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("error = %v, want ErrResponseTooLarge", err)
	}
	if streams.Len() != 0 {
		t.Errorf("failed request leaked %d streams", streams.Len())
	}
}

func TestClientDoRejectsBadURLs(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, "127.0.0.1:1")
	ctx := context.Background()

	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{name: "no host", url: "http://", wantErr: ErrInvalidURL},
		{name: "bad scheme", url: "ftp://service.test/file", wantErr: ErrUnsupportedScheme},
		{name: "garbage", url: "://nope", wantErr: ErrInvalidURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := client.Do(ctx, "c1", Request{URL: tt.url}, 1<<20); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func firstLine(b []byte) string {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
