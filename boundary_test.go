package torgate

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/torgate/torgate/internal/testutil"
)

// resetBoundary swaps in a fresh default gateway for the duration of
// one test. Boundary tests share the package-level session and
// therefore never run in parallel.
func resetBoundary(t *testing.T, opts ...GatewayOption) {
	t.Helper()
	opts = append([]GatewayOption{WithLogWriter(io.Discard)}, opts...)
	defaultGateway = NewGateway(opts...)
	t.Cleanup(func() {
		if defaultGateway.IsConnected() {
			_ = defaultGateway.Disconnect() //nolint:errcheck // test cleanup
		}
		defaultGateway = NewGateway()
	})
}

// connectBoundary initializes and connects the default gateway through
// an in-process SOCKS proxy resolving every target to addr.
func connectBoundary(t *testing.T, addr string, opts ...GatewayOption) {
	t.Helper()
	resetBoundary(t, opts...)

	proxy, err := testutil.StartSocksProxy(func(string) (string, error) {
		return addr, nil
	})
	if err != nil {
		t.Fatalf("failed to start socks proxy: %v", err)
	}
	t.Cleanup(proxy.Close)

	if rc := InitWithConfig(writeConfigFile(t, proxy.Addr())); rc != Success {
		t.Fatal("init failed")
	}
	if rc := Connect(); rc != Success {
		t.Fatal("connect failed")
	}
}

// handleFrom extracts the NUL-terminated handle from a boundary buffer.
func handleFrom(t *testing.T, buf []byte) string {
	t.Helper()
	i := bytes.IndexByte(buf, 0)
	if i < 0 {
		t.Fatal("handle buffer is not NUL-terminated")
	}
	return string(buf[:i])
}

func TestBoundaryOperationsBeforeInit(t *testing.T) {
	resetBoundary(t)

	if rc := CreateCircuit("c1"); rc != Failure {
		t.Error("create circuit before init succeeded")
	}
	if rc := Connect(); rc != Failure {
		t.Error("connect before init succeeded")
	}
	if rc := IsConnected(); rc != Failure {
		t.Error("uninitialized session reports connected")
	}
	if rc := WriteStream("s1", []byte("x")); rc != Failure {
		t.Error("write before init succeeded")
	}
}

func TestBoundaryInitTwice(t *testing.T) {
	resetBoundary(t)

	if rc := Init(); rc != Success {
		t.Fatal("first init failed")
	}
	if rc := Init(); rc != Failure {
		t.Error("second init succeeded")
	}
}

func TestBoundaryScenario(t *testing.T) {
	echo, err := testutil.StartEchoServer(nil)
	if err != nil {
		t.Fatalf("failed to start echo server: %v", err)
	}
	t.Cleanup(echo.Close)

	connectBoundary(t, echo.Addr())

	if rc := IsConnected(); rc != Success {
		t.Fatal("session not connected")
	}
	if rc := CreateCircuit("c1"); rc != Success {
		t.Fatal("create circuit failed")
	}

	idBuf := make([]byte, 128)
	if rc := ConnectStream("c1", "example.test", 80, idBuf); rc != Success {
		t.Fatal("connect stream failed")
	}
	id := handleFrom(t, idBuf)

	payload := []byte("boundary round trip")
	if rc := WriteStream(id, payload); rc != Success {
		t.Fatal("write failed")
	}
	if rc := FlushStream(id); rc != Success {
		t.Fatal("flush failed")
	}

	got := make([]byte, 0, len(payload))
	buf := make([]byte, len(payload))
	for len(got) < len(payload) {
		var n int
		if rc := ReadStream(id, buf, &n); rc != Success {
			t.Fatal("read failed")
		}
		if n == 0 {
			break
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("round trip mismatch: got %q, want %q", got, payload)
	}

	if rc := CloseStream(id); rc != Success {
		t.Fatal("close stream failed")
	}
	if rc := DestroyCircuit("c1"); rc != Success {
		t.Fatal("destroy circuit failed")
	}
	if rc := Disconnect(); rc != Success {
		t.Fatal("disconnect failed")
	}
	if rc := IsConnected(); rc != Failure {
		t.Error("session reports connected after disconnect")
	}
}

func TestBoundaryDuplicateCircuit(t *testing.T) {
	echo, err := testutil.StartEchoServer(nil)
	if err != nil {
		t.Fatalf("failed to start echo server: %v", err)
	}
	t.Cleanup(echo.Close)

	connectBoundary(t, echo.Addr())

	if rc := CreateCircuit("c1"); rc != Success {
		t.Fatal("create circuit failed")
	}
	if rc := CreateCircuit("c1"); rc != Failure {
		t.Error("duplicate create circuit succeeded")
	}
}

func TestBoundaryDoubleClose(t *testing.T) {
	echo, err := testutil.StartEchoServer(nil)
	if err != nil {
		t.Fatalf("failed to start echo server: %v", err)
	}
	t.Cleanup(echo.Close)

	connectBoundary(t, echo.Addr())

	if rc := CreateCircuit("c1"); rc != Success {
		t.Fatal("create circuit failed")
	}
	idBuf := make([]byte, 128)
	if rc := ConnectStream("c1", "example.test", 80, idBuf); rc != Success {
		t.Fatal("connect stream failed")
	}
	id := handleFrom(t, idBuf)

	if rc := CloseStream(id); rc != Success {
		t.Fatal("first close failed")
	}
	if rc := CloseStream(id); rc != Failure {
		t.Error("second close succeeded")
	}

	if rc := DestroyCircuit("c1"); rc != Success {
		t.Fatal("destroy circuit failed")
	}
	if rc := DestroyCircuit("c1"); rc != Failure {
		t.Error("second destroy succeeded")
	}
}

func TestBoundaryHandleBufferTooSmall(t *testing.T) {
	echo, err := testutil.StartEchoServer(nil)
	if err != nil {
		t.Fatalf("failed to start echo server: %v", err)
	}
	t.Cleanup(echo.Close)

	connectBoundary(t, echo.Addr())

	if rc := CreateCircuit("c1"); rc != Success {
		t.Fatal("create circuit failed")
	}

	// Generated handles have a fixed length for a given circuit id;
	// measure one, then offer a buffer exactly one byte too small for
	// the next.
	idBuf := make([]byte, 128)
	if rc := ConnectStream("c1", "example.test", 80, idBuf); rc != Success {
		t.Fatal("connect stream failed")
	}
	id := handleFrom(t, idBuf)
	if rc := CloseStream(id); rc != Success {
		t.Fatal("close stream failed")
	}

	short := make([]byte, len(id)) // one short: no room for the terminator
	if rc := ConnectStream("c1", "example.test", 80, short); rc != Failure {
		t.Error("connect stream with short buffer succeeded")
	}

	if rc := ConnectStream("c1", "example.test", 80, nil); rc != Failure {
		t.Error("connect stream with nil buffer succeeded")
	}
}

func TestBoundaryCascadingDestroy(t *testing.T) {
	echo, err := testutil.StartEchoServer(nil)
	if err != nil {
		t.Fatalf("failed to start echo server: %v", err)
	}
	t.Cleanup(echo.Close)

	connectBoundary(t, echo.Addr())

	if rc := CreateCircuit("c1"); rc != Success {
		t.Fatal("create circuit failed")
	}
	idBuf := make([]byte, 128)
	if rc := ConnectStream("c1", "example.test", 80, idBuf); rc != Success {
		t.Fatal("connect stream failed")
	}
	id := handleFrom(t, idBuf)

	if rc := DestroyCircuit("c1"); rc != Success {
		t.Fatal("destroy circuit failed")
	}

	// The stream went down with its circuit.
	if rc := WriteStream(id, []byte("x")); rc != Failure {
		t.Error("write on cascaded stream succeeded")
	}
	if rc := CloseStream(id); rc != Failure {
		t.Error("close on cascaded stream succeeded")
	}
}

func TestBoundaryReadCleanPeerClose(t *testing.T) {
	// The target closes every connection immediately after accepting:
	// the reader must see a clean zero-byte success.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	connectBoundary(t, listener.Addr().String())

	if rc := CreateCircuit("c1"); rc != Success {
		t.Fatal("create circuit failed")
	}
	idBuf := make([]byte, 128)
	if rc := ConnectStream("c1", "example.test", 80, idBuf); rc != Success {
		t.Fatal("connect stream failed")
	}
	id := handleFrom(t, idBuf)

	buf := make([]byte, 16)
	n := -1
	if rc := ReadStream(id, buf, &n); rc != Success {
		t.Fatal("read after peer close failed")
	}
	if n != 0 {
		t.Errorf("read after peer close returned %d bytes, want 0", n)
	}
}

func TestBoundaryReadZeroLengthBuffer(t *testing.T) {
	echo, err := testutil.StartEchoServer(nil)
	if err != nil {
		t.Fatalf("failed to start echo server: %v", err)
	}
	t.Cleanup(echo.Close)

	connectBoundary(t, echo.Addr())

	if rc := CreateCircuit("c1"); rc != Success {
		t.Fatal("create circuit failed")
	}
	idBuf := make([]byte, 128)
	if rc := ConnectStream("c1", "example.test", 80, idBuf); rc != Success {
		t.Fatal("connect stream failed")
	}
	id := handleFrom(t, idBuf)

	payload := []byte("still pending")
	if rc := WriteStream(id, payload); rc != Success {
		t.Fatal("write failed")
	}
	if rc := FlushStream(id); rc != Success {
		t.Fatal("flush failed")
	}

	// An empty buffer is valid input; it reads nothing and must leave
	// the pending data reachable.
	n := -1
	if rc := ReadStream(id, []byte{}, &n); rc != Success {
		t.Fatal("zero-length read failed")
	}
	if n != 0 {
		t.Fatalf("zero-length read reported %d bytes", n)
	}

	buf := make([]byte, len(payload))
	if rc := ReadStream(id, buf, &n); rc != Success {
		t.Fatal("read after zero-length read failed")
	}
	if n == 0 {
		t.Fatal("pending data lost after zero-length read")
	}
	if !bytes.Equal(buf[:n], payload[:n]) {
		t.Errorf("read after zero-length read: got %q, want prefix of %q", buf[:n], payload)
	}
}

func TestBoundaryHTTPRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("response body"))
	}))
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}
	connectBoundary(t, u.Host)

	if rc := CreateCircuit("c1"); rc != Success {
		t.Fatal("create circuit failed")
	}

	respBuf := make([]byte, 1<<16)
	n := 0
	rc := HTTPRequest("c1", http.MethodGet, "http://service.test/", nil, nil, respBuf, &n)
	if rc != Success {
		t.Fatal("http request failed")
	}
	if !bytes.Contains(respBuf[:n], []byte("response body")) {
		t.Error("response body missing")
	}

	// The same response into a too-small buffer fails outright.
	small := make([]byte, 8)
	if rc := HTTPRequest("c1", http.MethodGet, "http://service.test/", nil, nil, small, &n); rc != Failure {
		t.Error("http request with short buffer succeeded")
	}
}
