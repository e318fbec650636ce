// Package wire holds the byte-level rules of the SMTP wire format that the
// client needs: recognizing complete reply blocks and DATA transparency.
package wire

import (
	"bytes"
	"errors"
	"strings"
)

// CRLF is the SMTP line terminator.
const CRLF = "\r\n"

// DataTerminator ends the DATA section (RFC 5321 Section 4.1.1.4).
// It follows the last line of the stuffed body and is not itself stuffed.
const DataTerminator = "\r\n.\r\n"

var ErrBadLineEnding = errors.New("smtp: line not terminated by CRLF")

// IsContinuation reports whether line is a non-final line of a multi-line
// reply: three digits immediately followed by '-', e.g. "250-PIPELINING".
func IsContinuation(line string) bool {
	if len(line) < 4 {
		return false
	}
	return isDigit(line[0]) && isDigit(line[1]) && isDigit(line[2]) && line[3] == '-'
}

// ReplyComplete reports whether buf holds a complete reply block: it ends
// with a newline and its last physical line is not a continuation line.
func ReplyComplete(buf string) bool {
	if !strings.HasSuffix(buf, "\n") {
		return false
	}
	body := strings.TrimSuffix(buf, "\n")
	body = strings.TrimSuffix(body, "\r")
	last := body
	if i := strings.LastIndexByte(body, '\n'); i >= 0 {
		last = body[i+1:]
	}
	return !IsContinuation(strings.TrimSuffix(last, "\r"))
}

// SplitLines splits a reply block into physical lines, dropping CR/LF
// terminators and a trailing empty line.
func SplitLines(block string) []string {
	block = strings.TrimRight(block, "\r\n")
	if block == "" {
		return nil
	}
	lines := strings.Split(block, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// DotStuff applies SMTP transparency (RFC 5321 Section 4.5.2): every line
// beginning with '.' gets a second '.' prepended. The start of data counts
// as the start of a line.
func DotStuff(data []byte) []byte {
	count := 0
	atLineStart := true
	for _, b := range data {
		if atLineStart && b == '.' {
			count++
		}
		atLineStart = b == '\n'
	}

	if count == 0 {
		return data
	}

	result := make([]byte, 0, len(data)+count)
	atLineStart = true
	for _, b := range data {
		if atLineStart && b == '.' {
			result = append(result, '.')
		}
		result = append(result, b)
		atLineStart = b == '\n'
	}
	return result
}

// DotUnstuff reverses DotStuff the way a receiving server does: one leading
// '.' is removed from every line that starts with one.
func DotUnstuff(data []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(data))
	atLineStart := true
	for i, b := range data {
		if atLineStart && b == '.' && i+1 < len(data) && data[i+1] == '.' {
			atLineStart = false
			continue
		}
		out.WriteByte(b)
		atLineStart = b == '\n'
	}
	return out.Bytes()
}

// CheckCRLF returns ErrBadLineEnding if data contains a bare LF or CR.
func CheckCRLF(data []byte) error {
	for i, b := range data {
		switch b {
		case '\n':
			if i == 0 || data[i-1] != '\r' {
				return ErrBadLineEnding
			}
		case '\r':
			if i+1 >= len(data) || data[i+1] != '\n' {
				return ErrBadLineEnding
			}
		}
	}
	return nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
