package courier

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/synqronlabs/courier/wire"
)

// ReplyCode is an SMTP reply code (RFC 5321 Section 4.2).
// 2yz: Success, 3yz: Continue, 4yz: Transient failure, 5yz: Permanent failure.
type ReplyCode int

const (
	CodeServiceReady   ReplyCode = 220
	CodeServiceClosing ReplyCode = 221
	CodeAuthSuccess    ReplyCode = 235
	CodeOK             ReplyCode = 250

	CodeAuthContinue   ReplyCode = 334
	CodeStartMailInput ReplyCode = 354

	CodeServiceUnavailable ReplyCode = 421
)

// Reply is a parsed SMTP server reply.
type Reply struct {
	Code ReplyCode
	// Lines holds the text of each line with the code and separator removed.
	Lines []string
	// Raw is the reply block exactly as received.
	Raw string
}

// IsSuccess returns true if the reply indicates success (2xx).
func (r *Reply) IsSuccess() bool {
	return r.Code >= 200 && r.Code < 300
}

// IsIntermediate returns true if the reply is intermediate (3xx).
func (r *Reply) IsIntermediate() bool {
	return r.Code >= 300 && r.Code < 400
}

// IsTransient returns true if the reply indicates a transient error (4xx).
func (r *Reply) IsTransient() bool {
	return r.Code >= 400 && r.Code < 500
}

// IsPermanent returns true if the reply indicates a permanent error (5xx).
func (r *Reply) IsPermanent() bool {
	return r.Code >= 500 && r.Code < 600
}

// Message returns the reply text with lines joined by newlines.
func (r *Reply) Message() string {
	return strings.Join(r.Lines, "\n")
}

// EnhancedCode returns the RFC 2034 status code prefix of the first line, if any.
func (r *Reply) EnhancedCode() string {
	if len(r.Lines) == 0 {
		return ""
	}
	return parseEnhancedCode(r.Lines[0])
}

// Err returns the reply as an *SMTPError for 4xx and 5xx codes, nil otherwise.
func (r *Reply) Err() error {
	if r.IsSuccess() || r.IsIntermediate() {
		return nil
	}
	return &SMTPError{
		Code:         int(r.Code),
		EnhancedCode: r.EnhancedCode(),
		Message:      r.Message(),
	}
}

func (r *Reply) String() string {
	return fmt.Sprintf("%d %s", r.Code, strings.Join(r.Lines, " / "))
}

// SMTPError represents a negative server reply.
type SMTPError struct {
	Code         int
	EnhancedCode string
	Message      string
}

func (e *SMTPError) Error() string {
	if e.EnhancedCode != "" {
		return fmt.Sprintf("SMTP %d %s: %s", e.Code, e.EnhancedCode, e.Message)
	}
	return fmt.Sprintf("SMTP %d: %s", e.Code, e.Message)
}

// IsPermanent returns true if this is a permanent failure (5xx).
func (e *SMTPError) IsPermanent() bool {
	return e.Code >= 500 && e.Code < 600
}

// IsTransient returns true if this is a transient failure (4xx).
func (e *SMTPError) IsTransient() bool {
	return e.Code >= 400 && e.Code < 500
}

// parseReply parses a complete reply block as returned by the reply reader.
// The reply code is taken from the final line.
func parseReply(text string) (*Reply, error) {
	lines := wire.SplitLines(text)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty reply", ErrUnexpectedResponse)
	}

	reply := &Reply{Raw: text, Lines: make([]string, 0, len(lines))}
	for i, line := range lines {
		if len(line) < 3 {
			return nil, fmt.Errorf("%w: line too short: %q", ErrUnexpectedResponse, line)
		}
		code, err := strconv.Atoi(line[:3])
		if err != nil || code < 100 || code > 599 {
			return nil, fmt.Errorf("%w: invalid code: %q", ErrUnexpectedResponse, line)
		}
		if len(line) > 3 && line[3] != ' ' && line[3] != '-' {
			return nil, fmt.Errorf("%w: invalid separator: %q", ErrUnexpectedResponse, line)
		}
		if i == len(lines)-1 {
			reply.Code = ReplyCode(code)
		}

		message := ""
		if len(line) > 4 {
			message = line[4:]
		}
		reply.Lines = append(reply.Lines, message)
	}

	return reply, nil
}

// parseEnhancedCode extracts an enhanced status code from a reply line.
func parseEnhancedCode(msg string) string {
	if len(msg) < 5 {
		return ""
	}

	// Check pattern X.Y.Z
	code, _, _ := strings.Cut(msg, " ")
	subparts := strings.Split(code, ".")
	if len(subparts) != 3 {
		return ""
	}

	// Validate each part is a number
	for _, p := range subparts {
		if _, err := strconv.Atoi(p); err != nil {
			return ""
		}
	}

	return code
}
