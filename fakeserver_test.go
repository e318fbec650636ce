package courier

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// cramChallenge is the RFC 2195 example challenge.
const cramChallenge = "<1896.697170952@postoffice.example.net>"

// fakeServer is a scripted SMTP server on a loopback port. It accepts any
// number of connections and records every line the client sends.
type fakeServer struct {
	t  *testing.T
	ln net.Listener

	// greeting replaces the default 220 greeting; "-" sends nothing.
	greeting string
	// extensions are advertised after the domain line of the EHLO reply.
	extensions []string
	// ehloReply, when set, is sent instead of the capability list.
	ehloReply string
	// tlsConfig enables STARTTLS, or implicit TLS with implicitTLS.
	tlsConfig   *tls.Config
	implicitTLS bool
	// username and password are checked by AUTH.
	username string
	password string
	// dataReply replaces the reply to the end of message data.
	dataReply string
	// hook sees each command line first. Returning handled with an empty
	// reply leaves the command unanswered.
	hook func(line string) (reply string, handled bool)

	mu       sync.Mutex
	commands []string
	messages []string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	return &fakeServer{t: t, extensions: []string{"8BITMIME", "SIZE 10240000"}}
}

// start begins accepting connections. Configure the server before calling it.
func (s *fakeServer) start() *fakeServer {
	s.t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		s.t.Fatalf("Failed to listen: %v", err)
	}
	if s.implicitTLS {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	s.ln = ln
	s.t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()
	return s
}

func (s *fakeServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// config returns a client configuration pointed at the server.
func (s *fakeServer) config() Config {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = s.port()
	cfg.Security = SecurityOff
	cfg.LocalName = "client.example.com"
	cfg.ConnectTimeout = 5 * time.Second
	cfg.ResponseTimeout = 5 * time.Second
	cfg.Logger = discardLogger()
	return cfg
}

func (s *fakeServer) record(line string) {
	s.mu.Lock()
	s.commands = append(s.commands, line)
	s.mu.Unlock()
}

// Commands returns the lines received so far.
func (s *fakeServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Messages returns the message data received so far, dot-unstuffed
// and without the terminator.
func (s *fakeServer) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

func (s *fakeServer) hasCommand(prefix string) bool {
	for _, c := range s.Commands() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// waitFor polls until a command with the prefix has been received.
func (s *fakeServer) waitFor(prefix string) {
	s.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.hasCommand(prefix) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.t.Fatalf("Timed out waiting for %q, got %v", prefix, s.Commands())
}

type fakeConn struct {
	conn   net.Conn
	reader *bufio.Reader
	secure bool
}

func (c *fakeConn) reply(lines ...string) {
	for _, l := range lines {
		if _, err := c.conn.Write([]byte(l + "\r\n")); err != nil {
			return
		}
	}
}

func (c *fakeConn) readLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *fakeServer) serve(conn net.Conn) {
	c := &fakeConn{conn: conn, reader: bufio.NewReader(conn), secure: s.implicitTLS}
	defer func() { c.conn.Close() }()

	switch s.greeting {
	case "":
		c.reply("220 fake.example.com ESMTP ready")
	case "-":
	default:
		c.reply(s.greeting)
	}

	for {
		line, err := c.readLine()
		if err != nil {
			return
		}
		s.record(line)

		if s.hook != nil {
			if reply, handled := s.hook(line); handled {
				if reply != "" {
					c.reply(strings.Split(reply, "\r\n")...)
				}
				continue
			}
		}

		verb, args, _ := strings.Cut(line, " ")
		switch strings.ToUpper(verb) {
		case "EHLO":
			if s.ehloReply != "" {
				c.reply(s.ehloReply)
				continue
			}
			exts := append([]string(nil), s.extensions...)
			if s.tlsConfig != nil && !c.secure {
				exts = append(exts, "STARTTLS")
			}
			lines := []string{"fake.example.com greets " + args}
			lines = append(lines, exts...)
			for i, l := range lines {
				if i == len(lines)-1 {
					c.reply("250 " + l)
				} else {
					c.reply("250-" + l)
				}
			}
		case "HELO":
			c.reply("250 fake.example.com")
		case "STARTTLS":
			if s.tlsConfig == nil || c.secure {
				c.reply("454 4.7.0 TLS not available")
				continue
			}
			c.reply("220 2.0.0 Ready to start TLS")
			tlsConn := tls.Server(c.conn, s.tlsConfig)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			c.conn = tlsConn
			c.reader = bufio.NewReader(tlsConn)
			c.secure = true
		case "AUTH":
			if !s.authenticate(c, args) {
				return
			}
		case "MAIL", "RCPT", "RSET", "NOOP":
			c.reply("250 2.0.0 OK")
		case "DATA":
			c.reply("354 End data with <CR><LF>.<CR><LF>")
			var data []string
			for {
				l, err := c.readLine()
				if err != nil {
					return
				}
				if l == "." {
					break
				}
				data = append(data, strings.TrimPrefix(l, "."))
			}
			s.mu.Lock()
			s.messages = append(s.messages, strings.Join(data, "\r\n"))
			s.mu.Unlock()
			if s.dataReply != "" {
				c.reply(s.dataReply)
			} else {
				c.reply("250 2.0.0 Ok: queued as 12345")
			}
		case "QUIT":
			c.reply("221 2.0.0 Bye")
			return
		default:
			c.reply("502 5.5.2 Command not recognized")
		}
	}
}

// authenticate runs the server side of AUTH. It returns false when the
// connection dropped.
func (s *fakeServer) authenticate(c *fakeConn, args string) bool {
	mech, initial, _ := strings.Cut(args, " ")

	next := func(challenge string) (string, bool) {
		c.reply("334 " + challenge)
		line, err := c.readLine()
		if err != nil {
			return "", false
		}
		s.record(line)
		if line == "*" {
			c.reply("501 5.0.0 Authentication cancelled")
			return "", false
		}
		return line, true
	}
	decode := func(s string) string {
		b, _ := base64.StdEncoding.DecodeString(s)
		return string(b)
	}

	ok := false
	switch strings.ToUpper(mech) {
	case "PLAIN":
		resp := initial
		if resp == "" {
			var alive bool
			if resp, alive = next(""); !alive {
				return true
			}
		}
		ok = decode(resp) == "\x00"+s.username+"\x00"+s.password
	case "LOGIN":
		user, alive := next("VXNlcm5hbWU6")
		if !alive {
			return true
		}
		pass, alive := next("UGFzc3dvcmQ6")
		if !alive {
			return true
		}
		ok = decode(user) == s.username && decode(pass) == s.password
	case "CRAM-MD5":
		resp, alive := next(base64.StdEncoding.EncodeToString([]byte(cramChallenge)))
		if !alive {
			return true
		}
		mac := hmac.New(md5.New, []byte(s.password))
		mac.Write([]byte(cramChallenge))
		ok = decode(resp) == s.username+" "+hex.EncodeToString(mac.Sum(nil))
	default:
		c.reply("504 5.5.4 Unrecognized authentication type")
		return true
	}

	if ok {
		c.reply("235 2.7.0 Authentication successful")
	} else {
		c.reply("535 5.7.8 Authentication credentials invalid")
	}
	return true
}

// generateTestCert creates a self-signed certificate for 127.0.0.1.
func generateTestCert(t *testing.T) (tls.Certificate, *x509.CertPool) {
	t.Helper()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate private key: %v", err)
	}

	serialNumber, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Test"},
			CommonName:   "fake.example.com",
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"fake.example.com", "localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	keyDER, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		t.Fatalf("failed to marshal private key: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}

	certPool := x509.NewCertPool()
	certPool.AppendCertsFromPEM(certPEM)
	return cert, certPool
}

// testMessage returns minimal valid options.
func testMessage(subject string) MessageOptions {
	return MessageOptions{
		From:    Address{Addr: "sender@example.com"},
		To:      []Address{{Addr: "rcpt@example.com"}},
		Subject: subject,
		Text:    "Hello from the test suite.",
	}
}
