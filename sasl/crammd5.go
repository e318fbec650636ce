package sasl

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
)

// CRAMMD5 implements the CRAM-MD5 SASL mechanism (RFC 2195).
// The server sends a single challenge; the response is the username, a
// space, and the lowercase hex HMAC-MD5 of the challenge keyed by the password.
type CRAMMD5 struct {
	username string
	password string
	done     bool
}

// NewCRAMMD5 creates a new CRAM-MD5 mechanism.
func NewCRAMMD5(username, password string) *CRAMMD5 {
	return &CRAMMD5{username: username, password: password}
}

// Name returns "CRAM-MD5".
func (c *CRAMMD5) Name() string {
	return MechanismCRAMMD5
}

// Start returns no initial response.
func (c *CRAMMD5) Start() ([]byte, error) {
	return nil, nil
}

// Next computes the digest response for the server challenge.
func (c *CRAMMD5) Next(challenge []byte) ([]byte, error) {
	if c.done {
		return nil, ErrUnexpectedChallenge
	}
	mac := hmac.New(md5.New, []byte(c.password))
	mac.Write(challenge)
	c.done = true
	return []byte(c.username + " " + hex.EncodeToString(mac.Sum(nil))), nil
}

// Done reports whether the digest has been sent.
func (c *CRAMMD5) Done() bool {
	return c.done
}
