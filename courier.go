// Package courier is an SMTP submission client (RFC 5321).
//
// A Session connects to a server, negotiates capabilities, optionally
// upgrades with STARTTLS, authenticates, and then delivers queued messages
// one transaction at a time:
//
//	cfg := courier.DefaultConfig()
//	cfg.Host = "smtp.example.com"
//	cfg.Port = 587
//	cfg.Credentials = &courier.Credentials{Username: "user", Password: "secret"}
//
//	session, err := courier.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer session.Close(nil)
//
//	msg, err := session.Send(courier.MessageOptions{
//		From:    courier.Address{Addr: "me@example.com"},
//		To:      []courier.Address{{Addr: "you@example.org"}},
//		Subject: "Hello",
//		Text:    "Hi there",
//	})
//	if err != nil {
//		return err
//	}
//	return msg.Wait(ctx)
package courier

import (
	"errors"
)

var (
	// ErrTimeout is wrapped when a connection or a reply did not complete in time.
	ErrTimeout = errors.New("smtp: timeout")
	// ErrSessionClosed fails messages sent to, or still queued on, a closed session.
	ErrSessionClosed = errors.New("smtp: session closed")
	// ErrGreeting is returned when the server greeting is not 220.
	ErrGreeting = errors.New("smtp: unexpected greeting")
	// ErrEhlo is returned when EHLO gets 421 or no reply, so HELO is not tried.
	ErrEhlo = errors.New("smtp: EHLO rejected")
	// ErrHelo is returned when the HELO fallback is rejected.
	ErrHelo = errors.New("smtp: HELO rejected")
	// ErrStartTLS is returned when STARTTLS or the TLS handshake fails.
	ErrStartTLS = errors.New("smtp: STARTTLS failed")
	// ErrTLSNotSupported is returned when TLS is required but not advertised.
	ErrTLSNotSupported = errors.New("smtp: STARTTLS not supported by server")
	// ErrAuthFailed is returned when the server rejects the credentials.
	ErrAuthFailed = errors.New("smtp: authentication failed")
	// ErrNoAuthMechanism is returned when no configured mechanism is advertised.
	ErrNoAuthMechanism = errors.New("smtp: no supported auth method")
	// ErrMailFrom fails a message whose MAIL FROM was rejected.
	ErrMailFrom = errors.New("smtp: MAIL FROM rejected")
	// ErrInvalidRcpt fails a message with a rejected recipient.
	ErrInvalidRcpt = errors.New("smtp: Invalid RCPT")
	// ErrData fails a message when DATA is not answered with 354.
	ErrData = errors.New("smtp: DATA rejected")
	// ErrMessageRejected fails a message refused after the end of data.
	ErrMessageRejected = errors.New("smtp: message rejected")
	// ErrReset is wrapped in the close reason when RSET after a failure is rejected.
	ErrReset = errors.New("smtp: RSET failed")
	// ErrUnexpectedResponse is wrapped for a malformed reply or a connection
	// closed while a reply was awaited.
	ErrUnexpectedResponse = errors.New("smtp: unexpected server response")

	// ErrNoBody is returned by NewMessage when both Text and HTML are empty.
	ErrNoBody = errors.New("smtp: message has neither text nor HTML body")
	// ErrNoSender is returned by NewMessage without a From address.
	ErrNoSender = errors.New("smtp: message has no sender")
	// ErrNoRecipients is returned by NewMessage when To, Cc and Bcc are all empty.
	ErrNoRecipients = errors.New("smtp: message has no recipients")
	// ErrInvalidAddress is returned for a malformed mailbox or display name.
	ErrInvalidAddress = errors.New("smtp: invalid address")
	// ErrInvalidHeader is returned for a Subject or custom header that would
	// break the header block.
	ErrInvalidHeader = errors.New("smtp: invalid header")
	// ErrInvalidAttachment is returned for an attachment that cannot be encoded.
	ErrInvalidAttachment = errors.New("smtp: invalid attachment")
	// ErrEncode fails a message whose body could not be rendered.
	ErrEncode = errors.New("smtp: message encoding failed")
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("smtp: invalid configuration")
)
