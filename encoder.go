package courier

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/idna"

	"github.com/synqronlabs/courier/mime"
	"github.com/synqronlabs/courier/utils"
	"github.com/synqronlabs/courier/wire"
)

const (
	mixedPrefix       = "mixed_"
	alternativePrefix = "alternative_"
)

// structuralHeaders are produced by the encoder itself and cannot be overridden.
var structuralHeaders = []string{"MIME-Version", "Content-Type", "Content-Transfer-Encoding"}

// resolvedMessage is everything about the rendered message that involves
// the clock or randomness, computed once per Message.
type resolvedMessage struct {
	headers []mime.Header
	root    *mime.Part
}

// Encode renders the message as RFC 5322 bytes: MIME-Version, the resolved
// headers, and a multipart/mixed body wrapping a multipart/alternative part
// plus any attachments. Header values, boundaries and dates are fixed on the
// first call, so repeated calls return identical bytes.
func (m *Message) Encode() ([]byte, error) {
	r, err := m.prepare()
	if err != nil {
		return nil, err
	}

	body, err := r.root.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + 1024)
	buf.WriteString("MIME-Version: 1.0\r\n")
	for _, h := range r.headers {
		buf.WriteString(mime.FoldHeader(h.Name, h.Value))
		buf.WriteString("\r\n")
	}
	for _, h := range r.root.Header() {
		buf.WriteString(h.Name)
		buf.WriteString(": ")
		buf.WriteString(h.Value)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// Header returns the resolved top-level header fields in output order,
// excluding MIME-Version and Content-Type.
func (m *Message) Header() ([]mime.Header, error) {
	r, err := m.prepare()
	if err != nil {
		return nil, err
	}
	return append([]mime.Header(nil), r.headers...), nil
}

// encodeData returns the DATA payload: the dot-stuffed message followed by
// the end-of-data terminator.
func (m *Message) encodeData() ([]byte, error) {
	raw, err := m.Encode()
	if err != nil {
		return nil, err
	}
	if err := wire.CheckCRLF(raw); err != nil {
		return nil, err
	}
	stuffed := wire.DotStuff(raw)
	out := make([]byte, 0, len(stuffed)+len(wire.DataTerminator))
	out = append(out, stuffed...)
	out = append(out, wire.DataTerminator...)
	return out, nil
}

func (m *Message) prepare() (*resolvedMessage, error) {
	m.prepareOnce.Do(func() {
		m.prepared, m.prepareErr = buildMessage(m.opts, m.created)
	})
	return m.prepared, m.prepareErr
}

func buildMessage(opts MessageOptions, now time.Time) (*resolvedMessage, error) {
	mixed, err := mime.Boundary(mixedPrefix)
	if err != nil {
		return nil, fmt.Errorf("generate boundary: %w", err)
	}
	alternative, err := mime.Boundary(alternativePrefix)
	if err != nil {
		return nil, fmt.Errorf("generate boundary: %w", err)
	}

	alt := &mime.Part{ContentType: "multipart/alternative", Boundary: alternative}
	if opts.Text != "" {
		alt.Parts = append(alt.Parts, textPart("text/plain", opts.Text))
	}
	if opts.HTML != "" {
		alt.Parts = append(alt.Parts, textPart("text/html", opts.HTML))
	}

	root := &mime.Part{
		ContentType: "multipart/mixed",
		Boundary:    mixed,
		Parts:       []*mime.Part{alt},
	}
	created := now.Format(time.RFC1123Z)
	for _, att := range opts.Attachments {
		root.Parts = append(root.Parts, attachmentPart(att, created))
	}

	return &resolvedMessage{
		headers: resolveHeaders(opts, now),
		root:    root,
	}, nil
}

func textPart(mediaType, body string) *mime.Part {
	return &mime.Part{
		ContentType:             mediaType,
		Params:                  map[string]string{"charset": "UTF-8"},
		ContentTransferEncoding: mime.EncodingQuotedPrintable,
		Body:                    []byte(mime.EncodeQuotedPrintable(body)),
	}
}

func attachmentPart(att Attachment, created string) *mime.Part {
	contentType := att.ContentType
	if contentType == "" {
		contentType = mime.TypeByFilename(att.Filename)
	}
	return &mime.Part{
		ContentType:             contentType,
		Params:                  map[string]string{"name": att.Filename},
		ContentTransferEncoding: mime.EncodingBase64,
		Disposition:             "attachment",
		DispositionParams: map[string]string{
			"filename":      att.Filename,
			"creation-date": created,
		},
		Body: []byte(mime.WrapBase64(att.Content, mime.Base64LineLength)),
	}
}

// resolveHeaders returns the generated headers in a fixed order with custom
// headers substituted case-insensitively, followed by the remaining custom
// headers sorted by name.
func resolveHeaders(opts MessageOptions, now time.Time) []mime.Header {
	custom := make(map[string]mime.Header, len(opts.Headers))
	for name, value := range opts.Headers {
		custom[strings.ToLower(name)] = mime.Header{Name: name, Value: value}
	}
	for _, name := range structuralHeaders {
		delete(custom, strings.ToLower(name))
	}

	type generated struct {
		name  string
		value func() string
		skip  bool
	}
	defaults := []generated{
		{name: "From", value: func() string { return opts.From.String() }},
		{name: "To", value: func() string { return formatAddressList(opts.To) }, skip: len(opts.To) == 0},
		{name: "Cc", value: func() string { return formatAddressList(opts.Cc) }, skip: len(opts.Cc) == 0},
		{name: "Bcc", value: func() string { return formatAddressList(opts.Bcc) }, skip: len(opts.Bcc) == 0},
		{name: "Reply-To", value: func() string { return formatAddressList(opts.ReplyTo) }, skip: len(opts.ReplyTo) == 0},
		{name: "Subject", value: func() string { return mime.EncodeWord(opts.Subject) }},
		{name: "Date", value: func() string { return now.Format(time.RFC1123Z) }},
		{name: "Message-ID", value: func() string { return messageID(opts.From) }},
	}

	headers := make([]mime.Header, 0, len(defaults)+len(custom))
	for _, d := range defaults {
		key := strings.ToLower(d.name)
		if h, ok := custom[key]; ok {
			headers = append(headers, h)
			delete(custom, key)
			continue
		}
		if d.skip {
			continue
		}
		headers = append(headers, mime.Header{Name: d.name, Value: d.value()})
	}

	rest := make([]mime.Header, 0, len(custom))
	for _, h := range custom {
		rest = append(rest, h)
	}
	sort.Slice(rest, func(i, j int) bool {
		return strings.ToLower(rest[i].Name) < strings.ToLower(rest[j].Name)
	})
	return append(headers, rest...)
}

func formatAddressList(list []Address) string {
	parts := make([]string, len(list))
	for i, a := range list {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

func messageID(from Address) string {
	domain := from.Domain()
	if ascii, err := idna.ToASCII(domain); err == nil && ascii != "" {
		domain = ascii
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}

// envelopeAddress returns addr for use in MAIL FROM / RCPT TO, with a
// non-ASCII domain converted to its IDNA A-label form.
func envelopeAddress(addr string) (string, error) {
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return addr, nil
	}
	domain := addr[at+1:]
	if !utils.ContainsNonASCII(domain) {
		return addr, nil
	}
	ascii, err := idna.ToASCII(domain)
	if err != nil {
		return "", fmt.Errorf("%w %q: %w", ErrInvalidAddress, addr, err)
	}
	return addr[:at+1] + ascii, nil
}
