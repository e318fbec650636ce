package sasl

// Plain implements the PLAIN SASL mechanism (RFC 4616).
// Use only over TLS - passwords are transmitted in clear text.
type Plain struct {
	username string
	password string
	done     bool
}

// NewPlain creates a PLAIN mechanism with an empty authorization identity.
func NewPlain(username, password string) *Plain {
	return &Plain{username: username, password: password}
}

// Name returns "PLAIN".
func (p *Plain) Name() string {
	return MechanismPlain
}

// Start returns the initial response: authzid NUL authcid NUL passwd.
func (p *Plain) Start() ([]byte, error) {
	p.done = true
	return p.response(), nil
}

// Next answers an empty challenge with the credentials for servers that do
// not accept an initial response.
func (p *Plain) Next(challenge []byte) ([]byte, error) {
	if len(challenge) > 0 {
		return nil, ErrUnexpectedChallenge
	}
	p.done = true
	return p.response(), nil
}

// Done reports whether the credentials have been sent.
func (p *Plain) Done() bool {
	return p.done
}

func (p *Plain) response() []byte {
	resp := make([]byte, 0, len(p.username)+len(p.password)+2)
	resp = append(resp, 0)
	resp = append(resp, p.username...)
	resp = append(resp, 0)
	resp = append(resp, p.password...)
	return resp
}
