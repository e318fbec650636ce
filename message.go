package courier

import (
	"context"
	"encoding/base64"
	"fmt"
	stdmime "mime"
	"strings"
	"sync"
	"time"

	gomail "github.com/emersion/go-message/mail"

	"github.com/synqronlabs/courier/mime"
	"github.com/synqronlabs/courier/utils"
)

// Address is a mailbox with an optional display name.
type Address struct {
	Name string
	Addr string
}

// ParseAddress parses "user@example.com" or "Name <user@example.com>",
// including RFC 2047 encoded display names.
func ParseAddress(s string) (Address, error) {
	a, err := gomail.ParseAddress(strings.TrimSpace(s))
	if err != nil {
		return Address{}, fmt.Errorf("%w %q: %w", ErrInvalidAddress, s, err)
	}
	return Address{Name: a.Name, Addr: a.Address}, nil
}

// ParseAddressList parses a comma-separated list of addresses. An empty
// string yields an empty list.
func ParseAddressList(s string) ([]Address, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	list, err := gomail.ParseAddressList(s)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidAddress, s, err)
	}
	out := make([]Address, len(list))
	for i, a := range list {
		out[i] = Address{Name: a.Name, Addr: a.Address}
	}
	return out, nil
}

// Domain returns the part of the address after the last '@'.
func (a Address) Domain() string {
	return utils.DomainOf(a.Addr)
}

// String formats the address for a header field. Non-ASCII display names
// are RFC 2047 encoded; ASCII names containing specials are quoted.
func (a Address) String() string {
	if a.Name == "" {
		return a.Addr
	}
	name := mime.EncodeWord(a.Name)
	if name == a.Name && strings.ContainsAny(a.Name, "()<>[]:;@\\,.\"") {
		name = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(a.Name) + `"`
	}
	return name + " <" + a.Addr + ">"
}

func (a Address) valid() bool {
	at := strings.LastIndexByte(a.Addr, '@')
	return at > 0 && at < len(a.Addr)-1 && !strings.ContainsAny(a.Addr, " \t\r\n<>") &&
		!strings.ContainsAny(a.Name, "\r\n")
}

// Attachment is a file attached at the multipart/mixed level.
type Attachment struct {
	Filename string
	// Content is the base64-encoded file content. Existing line breaks are
	// ignored; the encoder re-wraps it.
	Content string
	// ContentType is inferred from Filename when empty.
	ContentType string
}

// NewAttachment builds an Attachment from raw bytes.
func NewAttachment(filename string, data []byte) Attachment {
	return Attachment{
		Filename: filename,
		Content:  base64.StdEncoding.EncodeToString(data),
	}
}

// MessageOptions describes one email.
type MessageOptions struct {
	From    Address
	To      []Address
	Cc      []Address
	Bcc     []Address
	ReplyTo []Address
	Subject string
	Text    string
	HTML    string
	// Headers override generated headers, matched case-insensitively.
	Headers     map[string]string
	Attachments []Attachment
	// DSN overrides the session DSN defaults for this message.
	DSN *DSN
}

// Message is a validated, immutable message together with its delivery
// outcome. The outcome is set exactly once: either sent, with the server's
// final reply, or failed with the error that stopped delivery.
type Message struct {
	opts    MessageOptions
	created time.Time

	prepareOnce sync.Once
	prepared    *resolvedMessage
	prepareErr  error

	outcomeOnce sync.Once
	done        chan struct{}
	err         error
	reply       *Reply
}

// NewMessage validates opts and returns a Message. It performs no I/O.
func NewMessage(opts MessageOptions) (*Message, error) {
	if opts.Text == "" && opts.HTML == "" {
		return nil, ErrNoBody
	}
	if opts.From.Addr == "" {
		return nil, ErrNoSender
	}
	if !opts.From.valid() {
		return nil, fmt.Errorf("%w: sender %q", ErrInvalidAddress, opts.From.Addr)
	}
	if len(opts.To)+len(opts.Cc)+len(opts.Bcc) == 0 {
		return nil, ErrNoRecipients
	}
	for _, list := range [][]Address{opts.To, opts.Cc, opts.Bcc, opts.ReplyTo} {
		for _, a := range list {
			if !a.valid() {
				return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, a.Addr)
			}
		}
	}
	if err := validateHeaders(opts); err != nil {
		return nil, err
	}
	for _, att := range opts.Attachments {
		if err := validateAttachment(att); err != nil {
			return nil, err
		}
	}

	return &Message{
		opts:    copyOptions(opts),
		created: time.Now(),
		done:    make(chan struct{}),
	}, nil
}

// validateHeaders rejects line breaks in the Subject and custom header
// values, malformed field names (RFC 5322 Section 2.2) and names that only
// differ in case.
func validateHeaders(opts MessageOptions) error {
	if strings.ContainsAny(opts.Subject, "\r\n") {
		return fmt.Errorf("%w: Subject contains a line break", ErrInvalidHeader)
	}
	names := make([]string, 0, len(opts.Headers))
	for name, value := range opts.Headers {
		if !validFieldName(name) {
			return fmt.Errorf("%w: field name %q", ErrInvalidHeader, name)
		}
		if strings.ContainsAny(value, "\r\n") {
			return fmt.Errorf("%w: %s contains a line break", ErrInvalidHeader, name)
		}
		for _, seen := range names {
			if utils.EqualFoldASCII(seen, name) {
				return fmt.Errorf("%w: %q and %q name the same field", ErrInvalidHeader, seen, name)
			}
		}
		names = append(names, name)
	}
	return nil
}

func validFieldName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if c := name[i]; c < 33 || c > 126 || c == ':' {
			return false
		}
	}
	return true
}

func validateAttachment(att Attachment) error {
	if att.Filename == "" {
		return fmt.Errorf("%w: missing filename", ErrInvalidAttachment)
	}
	clean := strings.NewReplacer("\r", "", "\n", "", " ", "", "\t", "").Replace(att.Content)
	if _, err := base64.StdEncoding.DecodeString(clean); err != nil {
		return fmt.Errorf("%w %s: content is not base64: %w", ErrInvalidAttachment, att.Filename, err)
	}
	if att.ContentType != "" {
		if _, _, err := stdmime.ParseMediaType(att.ContentType); err != nil {
			return fmt.Errorf("%w %s: %w", ErrInvalidAttachment, att.Filename, err)
		}
	}
	return nil
}

func copyOptions(opts MessageOptions) MessageOptions {
	out := opts
	out.To = append([]Address(nil), opts.To...)
	out.Cc = append([]Address(nil), opts.Cc...)
	out.Bcc = append([]Address(nil), opts.Bcc...)
	out.ReplyTo = append([]Address(nil), opts.ReplyTo...)
	out.Attachments = append([]Attachment(nil), opts.Attachments...)
	if opts.Headers != nil {
		out.Headers = make(map[string]string, len(opts.Headers))
		for k, v := range opts.Headers {
			out.Headers[k] = v
		}
	}
	out.DSN = opts.DSN.clone()
	return out
}

// Options returns a copy of the options the message was built from.
func (m *Message) Options() MessageOptions {
	return copyOptions(m.opts)
}

// Recipients returns the envelope recipients: To, then Cc, then Bcc.
func (m *Message) Recipients() []Address {
	rcpts := make([]Address, 0, len(m.opts.To)+len(m.opts.Cc)+len(m.opts.Bcc))
	rcpts = append(rcpts, m.opts.To...)
	rcpts = append(rcpts, m.opts.Cc...)
	return append(rcpts, m.opts.Bcc...)
}

// resolve records the outcome; only the first call has any effect.
func (m *Message) resolve(reply *Reply, err error) bool {
	first := false
	m.outcomeOnce.Do(func() {
		m.reply = reply
		m.err = err
		close(m.done)
		first = true
	})
	return first
}

// Done is closed once the message has been sent or has failed.
func (m *Message) Done() <-chan struct{} {
	return m.done
}

// Err returns the failure reason once Done is closed, or nil if the
// message was sent or is still pending.
func (m *Message) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

// Reply returns the server's reply to the message body once sent.
func (m *Message) Reply() *Reply {
	select {
	case <-m.done:
		return m.reply
	default:
		return nil
	}
}

// Wait blocks until the message is resolved or ctx is done. It returns the
// delivery error, or ctx.Err() if the wait was abandoned; abandoning the
// wait does not cancel delivery.
func (m *Message) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
