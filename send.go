package courier

import (
	"context"
)

// SendMail connects, delivers a single message and closes the session.
// The message is validated before any connection is made. It returns the
// server's reply to the message data.
func SendMail(ctx context.Context, cfg Config, opts MessageOptions) (*Reply, error) {
	msg, err := NewMessage(opts)
	if err != nil {
		return nil, err
	}

	s, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer s.Close(nil)

	s.enqueue(msg)
	if err := msg.Wait(ctx); err != nil {
		return nil, err
	}
	return msg.Reply(), nil
}
