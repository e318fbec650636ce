package mx

import (
	"context"
	"net"
	"slices"
)

// MockResolver is a Resolver used for testing.
// MX maps FQDNs (with trailing dot) to records.
type MockResolver struct {
	MX map[string][]*net.MX

	// Fail lists FQDNs whose lookup returns ErrDNSServFail.
	Fail []string
}

var _ Resolver = MockResolver{}

// ensureFQDN ensures the name ends with a dot.
func ensureFQDN(name string) string {
	if len(name) == 0 || name[len(name)-1] != '.' {
		return name + "."
	}
	return name
}

// LookupMX returns MX records for the given domain.
func (r MockResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = ensureFQDN(name)
	if slices.Contains(r.Fail, name) {
		return nil, ErrDNSServFail
	}

	records, ok := r.MX[name]
	if !ok || len(records) == 0 {
		return nil, ErrDNSNotFound
	}
	return records, nil
}
