package courier

import (
	"context"
)

// ProbeResult describes a server as seen by an unauthenticated client.
type ProbeResult struct {
	Host         string
	Secure       bool
	Capabilities Capabilities
}

// Probe connects without credentials, records the capabilities advertised
// after any STARTTLS upgrade, and disconnects with QUIT.
func Probe(ctx context.Context, cfg Config) (*ProbeResult, error) {
	cfg.Credentials = nil

	s, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer s.Close(nil)

	return &ProbeResult{
		Host:         s.Host(),
		Secure:       s.Secure(),
		Capabilities: s.Capabilities(),
	}, nil
}
