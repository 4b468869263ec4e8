package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"math/big"
	"net"
	"time"
)

// EchoServer is a loopback TCP server that writes back whatever it reads.
type EchoServer struct {
	listener net.Listener
}

// StartEchoServer starts an echo server on a random loopback port.
// If tlsConfig is non-nil the listener speaks TLS.
func StartEchoServer(tlsConfig *tls.Config) (*EchoServer, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	if tlsConfig != nil {
		listener = tls.NewListener(listener, tlsConfig)
	}

	s := &EchoServer{listener: listener}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the server's listen address in "host:port" format.
func (s *EchoServer) Addr() string {
	return s.listener.Addr().String()
}

// Close stops the server.
func (s *EchoServer) Close() {
	_ = s.listener.Close() //nolint:errcheck // test cleanup
}

func (s *EchoServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			_, _ = io.Copy(conn, conn) //nolint:errcheck // echo until close
		}()
	}
}

// SelfSignedCert generates an ephemeral self-signed certificate for the
// given hostname, returning the server TLS config and a cert pool that
// trusts it. Tests use the pool as the client's RootCAs so handshakes
// validate the same way they would against a real chain.
func SelfSignedCert(host string) (*tls.Config, *x509.CertPool, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: host},
		DNSNames:              []string{host},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(cert)

	serverCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{der},
			PrivateKey:  key,
		}},
	}
	return serverCfg, pool, nil
}
