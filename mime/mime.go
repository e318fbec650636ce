// Package mime builds the MIME structure of outbound messages: multipart
// bodies, quoted-printable and base64 transfer encodings, RFC 2047 header
// words and header folding.
package mime

import (
	"bytes"
	"errors"
	"mime"
	"sort"
	"strings"
)

// ContentTransferEncoding represents the encoding used for the MIME part's body.
type ContentTransferEncoding string

const (
	// Encoding7Bit is for 7-bit ASCII data (RFC 2045 default).
	Encoding7Bit ContentTransferEncoding = "7bit"
	// Encoding8Bit is for 8-bit data (requires 8BITMIME).
	Encoding8Bit ContentTransferEncoding = "8bit"
	// EncodingBinary is for binary data (requires BINARYMIME/CHUNKING).
	EncodingBinary ContentTransferEncoding = "binary"
	// EncodingQuotedPrintable is for quoted-printable encoding.
	EncodingQuotedPrintable ContentTransferEncoding = "quoted-printable"
	// EncodingBase64 is for base64 encoding.
	EncodingBase64 ContentTransferEncoding = "base64"
)

// ValidCompositeEncodings lists valid encodings for composite types (RFC 2045).
var ValidCompositeEncodings = map[ContentTransferEncoding]bool{
	Encoding7Bit:   true,
	Encoding8Bit:   true,
	EncodingBinary: true,
}

var (
	// ErrInvalidCompositeEncoding is returned for invalid composite type encodings (RFC 2045).
	ErrInvalidCompositeEncoding = errors.New("composite types (multipart, message) can only use 7bit, 8bit, or binary encoding")

	// ErrMissingBoundary is returned when a multipart part has no boundary.
	ErrMissingBoundary = errors.New("multipart part missing boundary")

	// ErrEmptyMultipart is returned when a multipart part has no children.
	ErrEmptyMultipart = errors.New("multipart part contains no parts")
)

// IsCompositeType returns true if the media type is a composite type (multipart or message).
func IsCompositeType(mediaType string) bool {
	return strings.HasPrefix(mediaType, "multipart/") || strings.HasPrefix(mediaType, "message/")
}

// ValidateCompositeEncoding validates composite type encodings (RFC 2045).
func ValidateCompositeEncoding(mediaType string, encoding ContentTransferEncoding) error {
	if !IsCompositeType(mediaType) {
		return nil // Non-composite types can use any encoding
	}
	if encoding == "" {
		return nil // Will default to 7bit
	}
	if !ValidCompositeEncodings[encoding] {
		return ErrInvalidCompositeEncoding
	}
	return nil
}

// Header represents a MIME header field.
type Header struct {
	Name  string
	Value string
}

// Part is one node of an outbound MIME tree (RFC 2045, RFC 2046).
// Leaf parts carry an already transfer-encoded Body; multipart parts carry
// a Boundary and child Parts.
type Part struct {
	ContentType             string
	Params                  map[string]string
	ContentTransferEncoding ContentTransferEncoding
	Disposition             string
	DispositionParams       map[string]string
	Boundary                string
	Headers                 []Header
	Body                    []byte
	Parts                   []*Part
}

// IsMultipart returns true if this part is a multipart container.
func (p *Part) IsMultipart() bool {
	return strings.HasPrefix(p.ContentType, "multipart/")
}

// Header returns the part's header fields in output order: Content-Type,
// Content-Transfer-Encoding, Content-Disposition, then any extra Headers.
func (p *Part) Header() []Header {
	headers := make([]Header, 0, 3+len(p.Headers))
	if p.ContentType != "" {
		headers = append(headers, Header{Name: "Content-Type", Value: p.contentTypeValue()})
	}
	if p.ContentTransferEncoding != "" {
		headers = append(headers, Header{Name: "Content-Transfer-Encoding", Value: string(p.ContentTransferEncoding)})
	}
	if p.Disposition != "" {
		headers = append(headers, Header{Name: "Content-Disposition", Value: formatMediaType(p.Disposition, p.DispositionParams)})
	}
	return append(headers, p.Headers...)
}

func (p *Part) contentTypeValue() string {
	if p.IsMultipart() {
		// Boundaries are always quoted so the value is stable regardless of
		// which characters the boundary ends up with.
		return p.ContentType + `; boundary="` + p.Boundary + `"`
	}
	return formatMediaType(p.ContentType, p.Params)
}

// ToBytes serializes the part body. For multipart parts every child is
// written with its own header block between delimiter lines, and the output
// ends with the closing delimiter without a trailing line break.
func (p *Part) ToBytes() ([]byte, error) {
	if !p.IsMultipart() {
		return p.Body, nil
	}
	if err := ValidateCompositeEncoding(p.ContentType, p.ContentTransferEncoding); err != nil {
		return nil, err
	}
	if p.Boundary == "" {
		return nil, ErrMissingBoundary
	}
	if len(p.Parts) == 0 {
		return nil, ErrEmptyMultipart
	}

	estimatedSize := 0
	for _, part := range p.Parts {
		estimatedSize += len(part.Body) + 256 // 256 for headers overhead
	}
	buf := bytes.NewBuffer(make([]byte, 0, estimatedSize))

	for _, part := range p.Parts {
		buf.WriteString("--")
		buf.WriteString(p.Boundary)
		buf.WriteString("\r\n")

		writePartHeaders(buf, part)
		buf.WriteString("\r\n")

		partBody, err := part.ToBytes()
		if err != nil {
			return nil, err
		}
		buf.Write(partBody)
		buf.WriteString("\r\n")
	}

	buf.WriteString("--")
	buf.WriteString(p.Boundary)
	buf.WriteString("--")

	return buf.Bytes(), nil
}

// writePartHeaders writes the headers for a MIME part. The Content-* fields
// are written unfolded like the top-level ones; extra Headers are folded.
func writePartHeaders(buf *bytes.Buffer, part *Part) {
	headers := part.Header()
	structural := len(headers) - len(part.Headers)
	for i, h := range headers {
		if i < structural {
			buf.WriteString(h.Name)
			buf.WriteString(": ")
			buf.WriteString(h.Value)
		} else {
			buf.WriteString(FoldHeader(h.Name, h.Value))
		}
		buf.WriteString("\r\n")
	}
}

// formatMediaType renders a media type with parameters in sorted order.
// mime.FormatMediaType handles quoting and RFC 2231 encoding of non-ASCII
// values; when it refuses the input the parameters are quoted by hand.
func formatMediaType(mediaType string, params map[string]string) string {
	if len(params) == 0 {
		return mediaType
	}
	if v := mime.FormatMediaType(mediaType, params); v != "" {
		return v
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(mediaType)
	for _, k := range keys {
		b.WriteString("; ")
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(params[k]))
		b.WriteString(`"`)
	}
	return b.String()
}
