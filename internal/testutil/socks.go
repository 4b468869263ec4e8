package testutil

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
)

// SOCKS5 wire constants, duplicated here so the fake proxy does not
// depend on the code it is used to test.
const (
	socksVersion      = 0x05
	authVersion       = 0x01
	methodNoAuth      = 0x00
	methodPassword    = 0x02
	methodNoAccept    = 0xFF
	cmdConnect        = 0x01
	addrTypeIPv4      = 0x01
	addrTypeDomain    = 0x03
	addrTypeIPv6      = 0x04
	replySucceeded    = 0x00
	replyHostUnreach  = 0x04
	replyCmdUnsupport = 0x07
)

// Resolver maps a CONNECT target ("host:port") to a dialable address.
// Returning an error makes the proxy answer "host unreachable", which
// is what Tor does for targets it cannot reach.
type Resolver func(target string) (string, error)

// SocksProxy is a minimal in-process SOCKS5 server for tests.
type SocksProxy struct {
	listener net.Listener
	resolve  Resolver

	mu    sync.Mutex
	creds []string // "user:pass" per authenticated connection, "" for no-auth
	conns []net.Conn
}

// StartSocksProxy starts a SOCKS5 proxy on a random loopback port.
// If resolve is nil, targets are dialed as-is.
func StartSocksProxy(resolve Resolver) (*SocksProxy, error) {
	if resolve == nil {
		resolve = func(target string) (string, error) { return target, nil }
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	p := &SocksProxy{
		listener: listener,
		resolve:  resolve,
	}
	go p.acceptLoop()
	return p, nil
}

// Addr returns the proxy's listen address in "host:port" format.
func (p *SocksProxy) Addr() string {
	return p.listener.Addr().String()
}

// Credentials returns the "user:pass" pairs presented so far, one entry
// per proxied connection, in accept order. No-auth connections record
// an empty string.
func (p *SocksProxy) Credentials() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.creds))
	copy(out, p.creds)
	return out
}

// Close shuts the proxy down and closes all proxied connections.
func (p *SocksProxy) Close() {
	_ = p.listener.Close() //nolint:errcheck // test cleanup
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		_ = c.Close() //nolint:errcheck // test cleanup
	}
	p.conns = nil
}

func (p *SocksProxy) acceptLoop() {
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.conns = append(p.conns, conn)
		p.mu.Unlock()
		go p.handle(conn)
	}
}

// handle runs the SOCKS5 handshake and, on success, pipes bytes between
// the client and the resolved target.
func (p *SocksProxy) handle(conn net.Conn) {
	defer conn.Close()

	cred, ok := p.negotiate(conn)
	if !ok {
		return
	}
	p.mu.Lock()
	p.creds = append(p.creds, cred)
	p.mu.Unlock()

	target, ok := p.readConnect(conn)
	if !ok {
		return
	}

	addr, err := p.resolve(target)
	if err != nil {
		p.reply(conn, replyHostUnreach)
		return
	}

	upstream, err := net.Dial("tcp", addr) //nolint:noctx // test code
	if err != nil {
		p.reply(conn, replyHostUnreach)
		return
	}
	defer upstream.Close()

	p.reply(conn, replySucceeded)

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(upstream, conn) //nolint:errcheck // pipe until error
		if cw, ok := upstream.(*net.TCPConn); ok {
			_ = cw.CloseWrite() //nolint:errcheck // half close
		}
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(conn, upstream) //nolint:errcheck // pipe until error
		if cw, ok := conn.(*net.TCPConn); ok {
			_ = cw.CloseWrite() //nolint:errcheck // half close
		}
		done <- struct{}{}
	}()
	<-done
	<-done
}

// negotiate performs method selection and, if offered, username/password
// authentication. It returns the credential string and whether the
// handshake succeeded.
func (p *SocksProxy) negotiate(conn net.Conn) (string, bool) {
	header := make([]byte, 2)
	if _, err := io.ReadFull(conn, header); err != nil {
		return "", false
	}
	if header[0] != socksVersion {
		return "", false
	}

	methods := make([]byte, int(header[1]))
	if _, err := io.ReadFull(conn, methods); err != nil {
		return "", false
	}

	usePassword := false
	useNoAuth := false
	for _, m := range methods {
		switch m {
		case methodPassword:
			usePassword = true
		case methodNoAuth:
			useNoAuth = true
		}
	}

	switch {
	case usePassword:
		if _, err := conn.Write([]byte{socksVersion, methodPassword}); err != nil {
			return "", false
		}
		return p.readPasswordAuth(conn)
	case useNoAuth:
		if _, err := conn.Write([]byte{socksVersion, methodNoAuth}); err != nil {
			return "", false
		}
		return "", true
	default:
		_, _ = conn.Write([]byte{socksVersion, methodNoAccept}) //nolint:errcheck // rejecting anyway
		return "", false
	}
}

// readPasswordAuth consumes an RFC 1929 auth exchange.
func (p *SocksProxy) readPasswordAuth(conn net.Conn) (string, bool) {
	header := make([]byte, 2)
	if _, err := io.ReadFull(conn, header); err != nil {
		return "", false
	}
	if header[0] != authVersion {
		return "", false
	}

	user := make([]byte, int(header[1]))
	if _, err := io.ReadFull(conn, user); err != nil {
		return "", false
	}

	plen := make([]byte, 1)
	if _, err := io.ReadFull(conn, plen); err != nil {
		return "", false
	}
	pass := make([]byte, int(plen[0]))
	if _, err := io.ReadFull(conn, pass); err != nil {
		return "", false
	}

	// Accept anything; record what was presented.
	if _, err := conn.Write([]byte{authVersion, 0x00}); err != nil {
		return "", false
	}
	return string(user) + ":" + string(pass), true
}

// readConnect parses a CONNECT request and returns the target address.
func (p *SocksProxy) readConnect(conn net.Conn) (string, bool) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return "", false
	}
	if header[0] != socksVersion || header[1] != cmdConnect {
		p.reply(conn, replyCmdUnsupport)
		return "", false
	}

	var host string
	switch header[3] {
	case addrTypeIPv4:
		addr := make([]byte, 4)
		if _, err := io.ReadFull(conn, addr); err != nil {
			return "", false
		}
		host = net.IP(addr).String()
	case addrTypeIPv6:
		addr := make([]byte, 16)
		if _, err := io.ReadFull(conn, addr); err != nil {
			return "", false
		}
		host = net.IP(addr).String()
	case addrTypeDomain:
		hlen := make([]byte, 1)
		if _, err := io.ReadFull(conn, hlen); err != nil {
			return "", false
		}
		name := make([]byte, int(hlen[0]))
		if _, err := io.ReadFull(conn, name); err != nil {
			return "", false
		}
		host = string(name)
	default:
		p.reply(conn, replyCmdUnsupport)
		return "", false
	}

	portBytes := make([]byte, 2)
	if _, err := io.ReadFull(conn, portBytes); err != nil {
		return "", false
	}
	port := binary.BigEndian.Uint16(portBytes)

	return net.JoinHostPort(host, fmt.Sprintf("%d", port)), true
}

// reply sends a minimal CONNECT reply with the given code.
func (p *SocksProxy) reply(conn net.Conn, code byte) {
	// version + reply + reserved + IPv4 + 0.0.0.0 + port 0
	_, _ = conn.Write([]byte{socksVersion, code, 0x00, addrTypeIPv4, 0, 0, 0, 0, 0, 0}) //nolint:errcheck // best effort
}
