package courier

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/synqronlabs/courier/mx"
	"github.com/synqronlabs/courier/sasl"
)

// Security selects how the connection is protected.
type Security int

const (
	// SecurityOff uses plain TCP and never upgrades.
	SecurityOff Security = iota
	// SecurityTLS dials with implicit TLS (typically port 465).
	SecurityTLS
	// SecurityStartTLS dials plain TCP and upgrades with STARTTLS when the
	// server advertises it (typically port 587).
	SecurityStartTLS
)

func (s Security) String() string {
	switch s {
	case SecurityOff:
		return "off"
	case SecurityTLS:
		return "tls"
	case SecurityStartTLS:
		return "starttls"
	default:
		return fmt.Sprintf("Security(%d)", int(s))
	}
}

// ParseSecurity parses "off", "tls" or "starttls".
func ParseSecurity(s string) (Security, error) {
	switch s {
	case "off", "none", "":
		return SecurityOff, nil
	case "tls", "on", "ssl":
		return SecurityTLS, nil
	case "starttls":
		return SecurityStartTLS, nil
	}
	return SecurityOff, fmt.Errorf("%w: unknown security mode %q", ErrInvalidConfig, s)
}

// Credentials holds authentication credentials.
type Credentials struct {
	Username string
	Password string
}

// AuthMechanism names a SASL mechanism.
type AuthMechanism string

const (
	AuthPlain   AuthMechanism = sasl.MechanismPlain
	AuthLogin   AuthMechanism = sasl.MechanismLogin
	AuthCRAMMD5 AuthMechanism = sasl.MechanismCRAMMD5
)

// Config holds the connection configuration. It is copied by Connect and
// not consulted again after the session starts.
type Config struct {
	// Host is the server (or, with LookupMX, the mail domain) to connect to.
	Host string
	// Port defaults to 587 for SecurityStartTLS, 465 for SecurityTLS and 25 otherwise.
	Port int

	// LocalName is the identity sent with EHLO/HELO (default: "localhost").
	LocalName string

	Security  Security
	TLSConfig *tls.Config
	// RequireTLS fails Connect with ErrTLSNotSupported when SecurityStartTLS
	// is set but the server does not advertise STARTTLS.
	RequireTLS bool

	// Credentials enables AUTH when the server advertises it.
	Credentials *Credentials
	// AuthMechanisms is the preference order (default: PLAIN, LOGIN, CRAM-MD5).
	AuthMechanisms []AuthMechanism

	// DSN holds the session-wide DSN request defaults.
	DSN *DSN

	// ConnectTimeout bounds dialing, including the implicit TLS handshake.
	ConnectTimeout time.Duration
	// ResponseTimeout bounds every wait for a server reply.
	ResponseTimeout time.Duration

	// Dial replaces the default network transport.
	Dial DialFunc

	// LookupMX treats Host as a mail domain and dials its exchangers in
	// preference order using Resolver.
	LookupMX bool
	Resolver mx.Resolver

	// Logger is the structured logger for the session.
	// Default: slog.Default()
	Logger *slog.Logger

	// Observer receives session events; nil disables reporting.
	Observer Observer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LocalName:       "localhost",
		Security:        SecurityStartTLS,
		AuthMechanisms:  []AuthMechanism{AuthPlain, AuthLogin, AuthCRAMMD5},
		ConnectTimeout:  30 * time.Second,
		ResponseTimeout: 5 * time.Minute,
		Logger:          slog.Default(),
	}
}

// Validate reports configuration errors that would make Connect fail.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.Security < SecurityOff || c.Security > SecurityStartTLS {
		return fmt.Errorf("%w: unknown security mode %d", ErrInvalidConfig, int(c.Security))
	}
	if c.RequireTLS && c.Security == SecurityOff {
		return fmt.Errorf("%w: RequireTLS needs a TLS security mode", ErrInvalidConfig)
	}
	if c.Credentials != nil && c.Credentials.Username == "" {
		return fmt.Errorf("%w: credentials without username", ErrInvalidConfig)
	}
	for _, m := range c.AuthMechanisms {
		switch m {
		case AuthPlain, AuthLogin, AuthCRAMMD5:
		default:
			return fmt.Errorf("%w: unsupported auth mechanism %q", ErrInvalidConfig, m)
		}
	}
	if c.ConnectTimeout < 0 || c.ResponseTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	return nil
}

// withDefaults returns a copy with zero values replaced by defaults.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.LocalName == "" {
		c.LocalName = def.LocalName
	}
	if c.Port == 0 {
		switch c.Security {
		case SecurityTLS:
			c.Port = 465
		case SecurityStartTLS:
			c.Port = 587
		default:
			c.Port = 25
		}
	}
	if len(c.AuthMechanisms) == 0 {
		c.AuthMechanisms = def.AuthMechanisms
	} else {
		c.AuthMechanisms = append([]AuthMechanism(nil), c.AuthMechanisms...)
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = def.ResponseTimeout
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	if c.Credentials != nil {
		creds := *c.Credentials
		c.Credentials = &creds
	}
	c.DSN = c.DSN.clone()
	if c.TLSConfig != nil {
		c.TLSConfig = c.TLSConfig.Clone()
	}
	if c.LookupMX && c.Resolver == nil {
		c.Resolver = mx.NewResolver(mx.ResolverConfig{})
	}
	return c
}
