package mime

import (
	"strings"
	"unicode/utf8"

	"github.com/synqronlabs/courier/utils"
)

const (
	// MaxLineLength is the RFC 2045 limit for encoded body lines.
	MaxLineLength = 76

	// qpSafetyMargin keeps room for a worst-case "=XX" escape so a line never
	// crosses MaxLineLength once the soft break "=" is added.
	qpSafetyMargin = 3

	// Base64LineLength is the wrap width used for attachment bodies.
	Base64LineLength = 72

	// MaxHeaderLineLength is the RFC 5322 recommended header line length.
	MaxHeaderLineLength = 78

	// EncodedWordLength caps one RFC 2047 encoded word. RFC 2047 allows 75;
	// the lower cap keeps "Subject: " plus the first word within
	// MaxHeaderLineLength.
	EncodedWordLength = 64

	// BoundaryRandomBytes is the amount of entropy in a generated boundary.
	BoundaryRandomBytes = 28
)

const upperHex = "0123456789ABCDEF"

// EncodeQuotedPrintable encodes s per RFC 2045 Section 6.7.
//
// LF and CRLF line breaks are emitted as CRLF. A CR not followed by LF is
// escaped as =0D, '=' is always escaped, bytes outside printable ASCII are
// escaped, and a space or tab directly before a line break or the end of
// input is escaped. Lines are soft-wrapped before they would exceed
// MaxLineLength minus a 3 character safety margin.
func EncodeQuotedPrintable(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/8)

	lineLen := 0
	writeToken := func(tok string) {
		if lineLen+len(tok) > MaxLineLength-qpSafetyMargin {
			b.WriteString("=\r\n")
			lineLen = 0
		}
		b.WriteString(tok)
		lineLen += len(tok)
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\r' && i+1 < len(s) && s[i+1] == '\n':
			b.WriteString("\r\n")
			lineLen = 0
			i++
		case c == '\n':
			b.WriteString("\r\n")
			lineLen = 0
		case c == ' ' || c == '\t':
			if atLineEnd(s, i+1) {
				writeToken(escapeByte(c))
			} else {
				writeToken(s[i : i+1])
			}
		case c == '=' || c < 32 || c > 126:
			writeToken(escapeByte(c))
		default:
			writeToken(s[i : i+1])
		}
	}
	return b.String()
}

// atLineEnd reports whether position i in s is the end of input or the start
// of a line break.
func atLineEnd(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	if s[i] == '\n' {
		return true
	}
	return s[i] == '\r' && i+1 < len(s) && s[i+1] == '\n'
}

func escapeByte(c byte) string {
	return string([]byte{'=', upperHex[c>>4], upperHex[c&0x0f]})
}

// EncodeWord returns s as RFC 2047 Q-encoded words when it contains any
// non-ASCII byte, and s unchanged otherwise. Words are split on UTF-8 rune
// boundaries, are at most EncodedWordLength characters long and are joined
// by a single space, which decoders drop between adjacent encoded words.
func EncodeWord(s string) string {
	if !utils.ContainsNonASCII(s) {
		return s
	}

	const prefix, suffix = "=?UTF-8?Q?", "?="
	var words []string
	var cur strings.Builder
	cur.WriteString(prefix)
	for i := 0; i < len(s); {
		_, size := utf8.DecodeRuneInString(s[i:])
		tok := qEncode(s[i : i+size])
		i += size
		if cur.Len() > len(prefix) && cur.Len()+len(tok)+len(suffix) > EncodedWordLength {
			cur.WriteString(suffix)
			words = append(words, cur.String())
			cur.Reset()
			cur.WriteString(prefix)
		}
		cur.WriteString(tok)
	}
	cur.WriteString(suffix)
	return strings.Join(append(words, cur.String()), " ")
}

// qEncode applies the RFC 2047 Q encoding to s, keeping only the characters
// allowed in an encoded word inside a phrase (Section 5) so the result is
// safe in display names as well as unstructured fields.
func qEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ':
			b.WriteByte('_')
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9',
			c == '!', c == '*', c == '+', c == '-', c == '/':
			b.WriteByte(c)
		default:
			b.WriteString(escapeByte(c))
		}
	}
	return b.String()
}

var boundaryReplacer = strings.NewReplacer(
	"<", "_", ">", "_", "@", "_", ",", "_", ";", "_", ":", "_",
	`\`, "_", "/", "_", "[", "_", "]", "_", "?", "_", "=", "_",
	`"`, "_", " ", "_",
)

// Boundary returns prefix followed by 28 random bytes in hex, with any
// character that is unsafe in a boundary token replaced by '_'.
// A 56 character random part keeps even long prefixes under the RFC 2046
// limit of 70 characters.
func Boundary(prefix string) (string, error) {
	random, err := utils.RandomHex(BoundaryRandomBytes)
	if err != nil {
		return "", err
	}
	return SanitizeBoundary(prefix + random), nil
}

// SanitizeBoundary replaces the characters <>@,;:\/[]?=" and space with '_'.
func SanitizeBoundary(s string) string {
	return boundaryReplacer.Replace(s)
}

// WrapBase64 strips any existing line breaks or whitespace from an encoded
// base64 string and re-wraps it to lines of at most width characters joined
// by CRLF. A width of zero or less uses Base64LineLength.
func WrapBase64(encoded string, width int) string {
	if width <= 0 {
		width = Base64LineLength
	}
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', ' ', '\t':
			return -1
		}
		return r
	}, encoded)

	var b strings.Builder
	b.Grow(len(clean) + 2*(len(clean)/width+1))
	for len(clean) > width {
		b.WriteString(clean[:width])
		b.WriteString("\r\n")
		clean = clean[width:]
	}
	b.WriteString(clean)
	return b.String()
}

// FoldHeader renders "name: value", folding at whitespace so that lines stay
// within MaxHeaderLineLength where the value allows it. Words longer than the
// limit are never split, and runs of spaces survive unfolding.
func FoldHeader(name, value string) string {
	line := name + ": " + value
	if len(line) <= MaxHeaderLineLength {
		return line
	}

	words := strings.Split(value, " ")
	var b strings.Builder
	b.Grow(len(line) + len(line)/MaxHeaderLineLength*3)

	cur := name + ":"
	curHasWord := false
	for _, w := range words {
		// Folds only happen before a non-empty word so no line is blank.
		if w != "" && curHasWord && len(cur)+1+len(w) > MaxHeaderLineLength {
			b.WriteString(cur)
			b.WriteString("\r\n")
			cur = " " + w
			continue
		}
		cur += " " + w
		if w != "" {
			curHasWord = true
		}
	}
	b.WriteString(cur)
	return b.String()
}
