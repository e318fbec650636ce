// Package mx resolves the mail exchangers of a domain so a client can be
// pointed at a domain instead of a submission host.
package mx

import (
	"context"
	"errors"
	"net"
	"sort"
	"strings"
)

var (
	// ErrDNSNotFound is returned when the name has no MX records (NXDOMAIN or NODATA).
	ErrDNSNotFound = errors.New("dns: record not found")
	// ErrDNSTimeout is returned when no nameserver answered in time.
	ErrDNSTimeout = errors.New("dns: query timeout")
	// ErrDNSServFail is returned for a SERVFAIL answer.
	ErrDNSServFail = errors.New("dns: server failure")
	// ErrDNSRefused is returned for a REFUSED answer.
	ErrDNSRefused = errors.New("dns: query refused")

	// ErrNullMX is returned for domains publishing a null MX (RFC 7505),
	// which explicitly accept no mail.
	ErrNullMX = errors.New("dns: domain does not accept mail (null MX)")
)

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDNSNotFound)
}

// IsTemporary reports whether err is a transient DNS failure worth retrying.
func IsTemporary(err error) bool {
	return errors.Is(err, ErrDNSTimeout) || errors.Is(err, ErrDNSServFail)
}

// Resolver looks up MX records.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// Hosts returns the exchange host names for domain in preference order,
// without trailing dots. Records with equal preference keep the order the
// resolver returned them in. A domain without MX records yields the domain
// itself (implicit MX, RFC 5321 Section 5.1).
func Hosts(ctx context.Context, r Resolver, domain string) ([]string, error) {
	domain = strings.TrimSuffix(domain, ".")
	records, err := r.LookupMX(ctx, domain)
	if err != nil {
		if IsNotFound(err) {
			return []string{domain}, nil
		}
		return nil, err
	}

	if len(records) == 1 && (records[0].Host == "." || records[0].Host == "") {
		return nil, ErrNullMX
	}

	sorted := make([]*net.MX, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Pref < sorted[j].Pref
	})

	hosts := make([]string, 0, len(sorted))
	for _, rec := range sorted {
		host := strings.TrimSuffix(rec.Host, ".")
		if host == "" {
			continue
		}
		hosts = append(hosts, host)
	}
	if len(hosts) == 0 {
		return nil, ErrNullMX
	}
	return hosts, nil
}
