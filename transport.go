package courier

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/synqronlabs/courier/mx"
)

// Transport is the byte stream a Session speaks SMTP over.
type Transport interface {
	io.ReadWriteCloser

	// Secure reports whether the stream is encrypted.
	Secure() bool

	// UpgradeTLS performs a client TLS handshake over the existing stream
	// and returns the encrypted transport. The receiver must not be used
	// afterwards.
	UpgradeTLS(ctx context.Context, config *tls.Config) (Transport, error)
}

// DialFunc opens a Transport. With SecurityTLS the returned transport must
// already be encrypted.
type DialFunc func(ctx context.Context, host string, port int, security Security, config *tls.Config) (Transport, error)

// connTransport adapts a net.Conn.
type connTransport struct {
	conn       net.Conn
	serverName string
}

// NewConnTransport wraps an established connection. serverName is used for
// certificate verification on upgrade when the TLS config does not set one.
func NewConnTransport(conn net.Conn, serverName string) Transport {
	return &connTransport{conn: conn, serverName: serverName}
}

func (t *connTransport) Read(p []byte) (int, error)  { return t.conn.Read(p) }
func (t *connTransport) Write(p []byte) (int, error) { return t.conn.Write(p) }
func (t *connTransport) Close() error                { return t.conn.Close() }

func (t *connTransport) Secure() bool {
	_, ok := t.conn.(*tls.Conn)
	return ok
}

func (t *connTransport) UpgradeTLS(ctx context.Context, config *tls.Config) (Transport, error) {
	if t.Secure() {
		return nil, errors.New("smtp: TLS already active")
	}
	tlsConn := tls.Client(t.conn, tlsConfigFor(config, t.serverName))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("TLS handshake failed: %w", err)
	}
	return &connTransport{conn: tlsConn, serverName: t.serverName}, nil
}

func tlsConfigFor(config *tls.Config, serverName string) *tls.Config {
	if config == nil {
		config = &tls.Config{}
	}
	if config.ServerName == "" {
		config = config.Clone()
		config.ServerName = serverName
	}
	return config
}

// DialNet is the default DialFunc: plain TCP, or implicit TLS with SecurityTLS.
func DialNet(ctx context.Context, host string, port int, security Security, config *tls.Config) (Transport, error) {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	netDialer := &net.Dialer{}

	if security == SecurityTLS {
		dialer := &tls.Dialer{
			NetDialer: netDialer,
			Config:    tlsConfigFor(config, host),
		}
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, fmt.Errorf("dial TLS failed: %w", err)
		}
		return NewConnTransport(conn, host), nil
	}

	conn, err := netDialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return NewConnTransport(conn, host), nil
}

// dialResult carries the outcome of an asynchronous dial.
type dialResult struct {
	transport Transport
	host      string
	err       error
}

// dial opens the session transport, racing it against cfg.ConnectTimeout.
// A dial that completes after the timeout is closed.
func dial(ctx context.Context, cfg *Config) (Transport, string, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	done := make(chan dialResult, 1)
	go func() {
		t, host, err := dialCandidates(ctx, cfg)
		done <- dialResult{transport: t, host: host, err: err}
	}()

	timer := time.NewTimer(cfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return nil, "", fmt.Errorf("%w: connect: %w", ErrTimeout, res.err)
		}
		return res.transport, res.host, res.err
	case <-timer.C:
		go func() {
			if res := <-done; res.transport != nil {
				res.transport.Close()
			}
		}()
		return nil, "", fmt.Errorf("%w: connect to %s not established within %s", ErrTimeout, cfg.Host, cfg.ConnectTimeout)
	}
}

// dialCandidates tries each candidate host in order and returns the first
// transport that opens.
func dialCandidates(ctx context.Context, cfg *Config) (Transport, string, error) {
	hosts := []string{cfg.Host}
	if cfg.LookupMX {
		var err error
		hosts, err = mx.Hosts(ctx, cfg.Resolver, cfg.Host)
		if err != nil {
			return nil, "", fmt.Errorf("mx lookup for %s: %w", cfg.Host, err)
		}
	}

	dialFn := cfg.Dial
	if dialFn == nil {
		dialFn = DialNet
	}

	var errs []error
	for _, host := range hosts {
		t, err := dialFn(ctx, host, cfg.Port, cfg.Security, cfg.TLSConfig)
		if err == nil {
			return t, host, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", host, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", errors.Join(errs...)
}
