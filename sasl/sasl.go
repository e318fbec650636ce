// Package sasl implements the client side of the SASL mechanisms used for
// SMTP authentication (RFC 4954): PLAIN, LOGIN and CRAM-MD5.
package sasl

import (
	"errors"
)

var (
	// ErrUnexpectedChallenge is returned when the server sends a challenge
	// the mechanism has no answer for.
	ErrUnexpectedChallenge = errors.New("sasl: unexpected server challenge")

	// ErrMissingCredentials is returned when a mechanism is built without a username.
	ErrMissingCredentials = errors.New("sasl: missing credentials")
)

// Credentials holds the identity presented to the server.
type Credentials struct {
	Username string
	Password string
}

// Mechanism is a client-side SASL exchange.
//
// Start returns the initial response to send alongside the AUTH command, or
// nil when the mechanism waits for the first challenge. Next is called with
// each decoded server challenge and returns the raw (not yet base64-encoded)
// response. Done reports whether the mechanism has sent everything it needs
// to; a final 235 before Done is true is treated as a failure by the caller.
type Mechanism interface {
	Name() string
	Start() ([]byte, error)
	Next(challenge []byte) ([]byte, error)
	Done() bool
}

// New returns the mechanism registered under name (case-sensitive, upper case).
func New(name string, creds Credentials) (Mechanism, error) {
	if creds.Username == "" {
		return nil, ErrMissingCredentials
	}
	switch name {
	case MechanismPlain:
		return NewPlain(creds.Username, creds.Password), nil
	case MechanismLogin:
		return NewLogin(creds.Username, creds.Password), nil
	case MechanismCRAMMD5:
		return NewCRAMMD5(creds.Username, creds.Password), nil
	}
	return nil, errors.New("sasl: unknown mechanism " + name)
}

// Mechanism names as advertised in the EHLO AUTH keyword.
const (
	MechanismPlain   = "PLAIN"
	MechanismLogin   = "LOGIN"
	MechanismCRAMMD5 = "CRAM-MD5"
)
