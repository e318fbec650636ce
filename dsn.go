package courier

import (
	"strings"
)

// DSNRet selects how much of the message a DSN should return (RFC 3461 Section 4.3).
type DSNRet struct {
	Headers bool // HDRS
	Full    bool // FULL
}

// DSNNotify selects which events trigger a DSN (RFC 3461 Section 4.1).
// With no flags set, or no DSNNotify at all, NOTIFY=NEVER is requested.
type DSNNotify struct {
	Success bool
	Failure bool
	Delay   bool
}

// DSN is a Delivery Status Notification request. On a Config it sets the
// session defaults; on MessageOptions it overrides them field by field: a
// nil Ret or Notify falls back to the session default for that field only.
// EnvelopeID is only taken from the per-message request.
type DSN struct {
	Ret        *DSNRet
	Notify     *DSNNotify
	EnvelopeID string
}

func (d *DSN) clone() *DSN {
	if d == nil {
		return nil
	}
	out := &DSN{EnvelopeID: d.EnvelopeID}
	if d.Ret != nil {
		ret := *d.Ret
		out.Ret = &ret
	}
	if d.Notify != nil {
		notify := *d.Notify
		out.Notify = &notify
	}
	return out
}

// dsnParams holds the rendered ESMTP parameters for one transaction.
type dsnParams struct {
	ret    string // MAIL FROM RET= value
	envID  string // MAIL FROM ENVID= value, xtext-encoded
	notify string // RCPT TO NOTIFY= value
}

// resolveDSN merges the session default with a per-message override.
func resolveDSN(def, override *DSN) dsnParams {
	var ret *DSNRet
	var notify *DSNNotify
	if def != nil {
		ret, notify = def.Ret, def.Notify
	}

	var p dsnParams
	if override != nil {
		if override.Ret != nil {
			ret = override.Ret
		}
		if override.Notify != nil {
			notify = override.Notify
		}
		if override.EnvelopeID != "" {
			p.envID = xtext(override.EnvelopeID)
		}
	}

	if ret != nil {
		var flags []string
		if ret.Headers {
			flags = append(flags, "HDRS")
		}
		if ret.Full {
			flags = append(flags, "FULL")
		}
		p.ret = strings.Join(flags, ",")
	}

	var flags []string
	if notify != nil {
		if notify.Success {
			flags = append(flags, "SUCCESS")
		}
		if notify.Failure {
			flags = append(flags, "FAILURE")
		}
		if notify.Delay {
			flags = append(flags, "DELAY")
		}
	}
	if len(flags) == 0 {
		p.notify = "NEVER"
	} else {
		p.notify = strings.Join(flags, ",")
	}

	return p
}

// mailParams returns the MAIL FROM parameters, empty unless the server supports DSN.
func (p dsnParams) mailParams(supported bool) string {
	if !supported {
		return ""
	}
	var b strings.Builder
	if p.ret != "" {
		b.WriteString(" RET=")
		b.WriteString(p.ret)
	}
	if p.envID != "" {
		b.WriteString(" ENVID=")
		b.WriteString(p.envID)
	}
	return b.String()
}

// rcptParams returns the RCPT TO parameters, empty unless the server supports DSN.
func (p dsnParams) rcptParams(supported bool) string {
	if !supported {
		return ""
	}
	return " NOTIFY=" + p.notify
}

// xtext encodes s per RFC 3461 Section 4: '+', '=' and characters outside
// "!" through "~" become "+XX".
func xtext(s string) string {
	const upperHex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '!' || c > '~' || c == '+' || c == '=' {
			b.WriteByte('+')
			b.WriteByte(upperHex[c>>4])
			b.WriteByte(upperHex[c&0x0f])
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
