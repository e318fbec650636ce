package courier

import (
	"slices"
	"sort"
	"strings"

	"github.com/synqronlabs/courier/wire"
)

// Capabilities is the server feature set discovered from an EHLO reply.
// The zero value means nothing is supported, which is also what a HELO
// fallback leaves behind.
type Capabilities struct {
	// Auth is true when the server advertised AUTH.
	Auth bool
	// Mechanisms lists the advertised mechanisms this client implements,
	// in the order first seen.
	Mechanisms []AuthMechanism
	StartTLS   bool
	DSN        bool
	// Extensions maps every advertised keyword (upper case) to its
	// parameters, including keywords the client does not use.
	Extensions map[string]string
}

// ParseCapabilities parses the full text of an EHLO reply. Every line is
// scanned; the keyword is the first token delimited by a space or '='.
// Both "AUTH PLAIN LOGIN" and the legacy "AUTH=PLAIN LOGIN" forms are
// accepted. Unknown keywords are recorded in Extensions and otherwise
// ignored.
func ParseCapabilities(text string) Capabilities {
	caps := Capabilities{Extensions: make(map[string]string)}

	for _, line := range wire.SplitLines(text) {
		if len(line) < 4 {
			continue
		}
		body := strings.TrimSpace(line[4:])
		if body == "" {
			continue
		}

		keyword, params := body, ""
		if i := strings.IndexAny(body, " ="); i >= 0 {
			keyword, params = body[:i], strings.TrimSpace(body[i+1:])
		}
		keyword = strings.ToUpper(keyword)

		if !isKeyword(keyword) {
			// Typically the greeting line ("250-mail.example.com Hello").
			continue
		}
		if _, seen := caps.Extensions[keyword]; !seen || params != "" {
			caps.Extensions[keyword] = params
		}

		switch keyword {
		case "AUTH":
			caps.Auth = true
			for _, tok := range strings.FieldsFunc(params, func(r rune) bool { return r == ' ' || r == '=' }) {
				mech := AuthMechanism(strings.ToUpper(tok))
				switch mech {
				case AuthPlain, AuthLogin, AuthCRAMMD5:
					if !slices.Contains(caps.Mechanisms, mech) {
						caps.Mechanisms = append(caps.Mechanisms, mech)
					}
				}
			}
		case "STARTTLS":
			caps.StartTLS = true
		case "DSN":
			caps.DSN = true
		}
	}

	return caps
}

// isKeyword reports whether s is an RFC 5321 ehlo-keyword:
// ALPHA / DIGIT followed by ALPHA / DIGIT / "-".
func isKeyword(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}

// Supports reports whether the server advertised the mechanism.
func (c Capabilities) Supports(m AuthMechanism) bool {
	return slices.Contains(c.Mechanisms, m)
}

// Has reports whether the server advertised the extension keyword.
func (c Capabilities) Has(keyword string) bool {
	_, ok := c.Extensions[strings.ToUpper(keyword)]
	return ok
}

// String returns a short summary such as "AUTH(PLAIN,LOGIN) STARTTLS SIZE".
func (c Capabilities) String() string {
	keys := make([]string, 0, len(c.Extensions))
	for k := range c.Extensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "AUTH" {
			mechs := make([]string, len(c.Mechanisms))
			for i, m := range c.Mechanisms {
				mechs[i] = string(m)
			}
			parts = append(parts, "AUTH("+strings.Join(mechs, ",")+")")
			continue
		}
		parts = append(parts, k)
	}
	return strings.Join(parts, " ")
}

func (c Capabilities) clone() Capabilities {
	out := c
	out.Mechanisms = slices.Clone(c.Mechanisms)
	if c.Extensions != nil {
		out.Extensions = make(map[string]string, len(c.Extensions))
		for k, v := range c.Extensions {
			out.Extensions[k] = v
		}
	}
	return out
}
