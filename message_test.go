package courier

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewMessageValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MessageOptions)
		want   error
	}{
		{"no body", func(o *MessageOptions) { o.Text = "" }, ErrNoBody},
		{"no body checked before sender", func(o *MessageOptions) { o.Text = ""; o.From = Address{} }, ErrNoBody},
		{"html only", func(o *MessageOptions) { o.Text = ""; o.HTML = "<p>hi</p>" }, nil},
		{"no sender", func(o *MessageOptions) { o.From = Address{} }, ErrNoSender},
		{"invalid sender", func(o *MessageOptions) { o.From = Address{Addr: "nobody"} }, ErrInvalidAddress},
		{"no recipients", func(o *MessageOptions) { o.To = nil }, ErrNoRecipients},
		{"bcc only", func(o *MessageOptions) { o.To = nil; o.Bcc = []Address{{Addr: "b@example.com"}} }, nil},
		{"invalid recipient", func(o *MessageOptions) { o.Cc = []Address{{Addr: "a b@example.com"}} }, ErrInvalidAddress},
		{"invalid reply-to", func(o *MessageOptions) { o.ReplyTo = []Address{{Addr: "@example.com"}} }, ErrInvalidAddress},
		{
			"attachment without filename",
			func(o *MessageOptions) { o.Attachments = []Attachment{{Content: "aGVsbG8="}} },
			ErrInvalidAttachment,
		},
		{
			"attachment not base64",
			func(o *MessageOptions) { o.Attachments = []Attachment{{Filename: "a.txt", Content: "not base64!"}} },
			ErrInvalidAttachment,
		},
		{
			"attachment bad content type",
			func(o *MessageOptions) {
				o.Attachments = []Attachment{{Filename: "a.txt", Content: "aGVs\r\nbG8=", ContentType: "text/"}}
			},
			ErrInvalidAttachment,
		},
		{"subject with CRLF", func(o *MessageOptions) { o.Subject = "Hi\r\nBcc: victim@evil.example" }, ErrInvalidHeader},
		{"subject with bare LF", func(o *MessageOptions) { o.Subject = "Hi\nthere" }, ErrInvalidHeader},
		{
			"header value with line break",
			func(o *MessageOptions) { o.Headers = map[string]string{"X-Tag": "a\r\n\r\nbody"} },
			ErrInvalidHeader,
		},
		{"header name with colon", func(o *MessageOptions) { o.Headers = map[string]string{"X-Tag:": "a"} }, ErrInvalidHeader},
		{"header name with space", func(o *MessageOptions) { o.Headers = map[string]string{"X Tag": "a"} }, ErrInvalidHeader},
		{"empty header name", func(o *MessageOptions) { o.Headers = map[string]string{"": "a"} }, ErrInvalidHeader},
		{
			"header names differing in case",
			func(o *MessageOptions) { o.Headers = map[string]string{"X-Tag": "a", "x-tag": "b"} },
			ErrInvalidHeader,
		},
		{"custom header accepted", func(o *MessageOptions) { o.Headers = map[string]string{"X-Tag": "a b"} }, nil},
		{
			"display name with line break",
			func(o *MessageOptions) { o.To = []Address{{Name: "Eve\r\nBcc: x@example.com", Addr: "eve@example.com"}} },
			ErrInvalidAddress,
		},
		{
			"wrapped base64 accepted",
			func(o *MessageOptions) { o.Attachments = []Attachment{{Filename: "a.txt", Content: "aGVs\r\nbG8="}} },
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testMessage("Validation")
			tt.mutate(&opts)
			_, err := NewMessage(opts)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestMessageCopiesOptions(t *testing.T) {
	opts := testMessage("Copy")
	opts.Headers = map[string]string{"X-Test": "1"}
	msg := mustMessage(t, opts)

	opts.To[0].Addr = "changed@example.com"
	opts.Headers["X-Test"] = "2"

	got := msg.Options()
	if got.To[0].Addr != "rcpt@example.com" || got.Headers["X-Test"] != "1" {
		t.Error("message shares state with the caller's options")
	}
}

func TestMessageRecipients(t *testing.T) {
	opts := testMessage("Recipients")
	opts.Cc = []Address{{Addr: "cc@example.com"}}
	opts.Bcc = []Address{{Addr: "bcc@example.com"}}

	rcpts := mustMessage(t, opts).Recipients()
	want := []string{"rcpt@example.com", "cc@example.com", "bcc@example.com"}
	if len(rcpts) != len(want) {
		t.Fatalf("got %d recipients", len(rcpts))
	}
	for i, a := range rcpts {
		if a.Addr != want[i] {
			t.Errorf("recipient %d = %q, want %q", i, a.Addr, want[i])
		}
	}
}

func TestMessageOutcomeSetOnce(t *testing.T) {
	msg := mustMessage(t, testMessage("Outcome"))

	if msg.Err() != nil || msg.Reply() != nil {
		t.Error("pending message should have no outcome")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := msg.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait on pending message: %v", err)
	}

	reply := &Reply{Code: CodeOK, Lines: []string{"queued"}}
	if !msg.resolve(reply, nil) {
		t.Fatal("first resolve should win")
	}
	if msg.resolve(nil, ErrSessionClosed) {
		t.Fatal("second resolve should have no effect")
	}

	if err := msg.Wait(context.Background()); err != nil {
		t.Errorf("Wait = %v", err)
	}
	if msg.Reply() != reply || msg.Err() != nil {
		t.Error("outcome changed after the first resolve")
	}
}

func TestAddressString(t *testing.T) {
	tests := []struct {
		addr Address
		want string
	}{
		{Address{Addr: "a@example.com"}, "a@example.com"},
		{Address{Name: "Alice", Addr: "a@example.com"}, "Alice <a@example.com>"},
		{Address{Name: "Doe, John", Addr: "j@example.com"}, `"Doe, John" <j@example.com>`},
		{Address{Name: `Say "hi"`, Addr: "s@example.com"}, `"Say \"hi\"" <s@example.com>`},
		{Address{Name: "Jörg", Addr: "j@example.com"}, "=?UTF-8?Q?J=C3=B6rg?= <j@example.com>"},
	}
	for _, tt := range tests {
		if got := tt.addr.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress(" Alice Example <alice@example.com> ")
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	if a.Name != "Alice Example" || a.Addr != "alice@example.com" || a.Domain() != "example.com" {
		t.Errorf("got %+v", a)
	}

	if _, err := ParseAddress("not an address"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}

	list, err := ParseAddressList("a@example.com, B <b@example.org>")
	if err != nil || len(list) != 2 || list[1].Name != "B" {
		t.Errorf("ParseAddressList = %v, %v", list, err)
	}
	if list, err := ParseAddressList("  "); err != nil || list != nil {
		t.Errorf("empty list = %v, %v", list, err)
	}
}

func TestNewAttachment(t *testing.T) {
	att := NewAttachment("hello.txt", []byte("hello"))
	if att.Filename != "hello.txt" || att.Content != "aGVsbG8=" || att.ContentType != "" {
		t.Errorf("got %+v", att)
	}
}
