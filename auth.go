package courier

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/synqronlabs/courier/sasl"
)

// maxAuthRounds bounds the number of 334 challenges in one exchange.
const maxAuthRounds = 8

// selectAuthMechanism returns the first preferred mechanism the server
// advertised, or "" if there is no overlap.
func selectAuthMechanism(preferred []AuthMechanism, caps Capabilities) AuthMechanism {
	for _, m := range preferred {
		if caps.Supports(m) {
			return m
		}
	}
	return ""
}

// authenticate runs AUTH when credentials are configured and the server
// advertises it. Without either it is a no-op.
func (s *Session) authenticate(ctx context.Context) error {
	if s.cfg.Credentials == nil {
		return nil
	}
	if !s.caps.Auth {
		s.logger.Debug("server does not advertise AUTH, continuing unauthenticated")
		return nil
	}

	name := selectAuthMechanism(s.cfg.AuthMechanisms, s.caps)
	if name == "" {
		return fmt.Errorf("%w (server offers %v)", ErrNoAuthMechanism, s.caps.Mechanisms)
	}

	mech, err := sasl.New(string(name), sasl.Credentials{
		Username: s.cfg.Credentials.Username,
		Password: s.cfg.Credentials.Password,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	err = s.runAuth(ctx, mech)
	s.observer.AuthAttempted(name, err)
	if err != nil {
		return err
	}
	s.logger.Info("authenticated", slog.String("mechanism", string(name)))
	return nil
}

// runAuth drives a SASL exchange: AUTH with an optional initial response,
// then one base64 line per 334 challenge until a final reply. Success
// requires a 2xx reply after the mechanism has sent all its responses.
func (s *Session) runAuth(ctx context.Context, mech sasl.Mechanism) error {
	ir, err := mech.Start()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	line := "AUTH " + mech.Name()
	logged := line
	if ir != nil {
		line += " " + encodeAuthResponse(ir)
		logged += " <redacted>"
	}

	reply, err := s.exchange(ctx, line, logged)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	for rounds := 0; reply.IsIntermediate(); rounds++ {
		if rounds >= maxAuthRounds {
			return fmt.Errorf("%w: too many challenges", ErrAuthFailed)
		}

		challenge, err := decodeChallenge(reply)
		if err != nil {
			s.cancelAuth(ctx)
			return fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}

		resp, err := mech.Next(challenge)
		if err != nil {
			s.cancelAuth(ctx)
			return fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}

		reply, err = s.exchange(ctx, encodeAuthResponse(resp), "<redacted>")
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
	}

	if !reply.IsSuccess() {
		return fmt.Errorf("%w: %w", ErrAuthFailed, replyError(reply))
	}
	if !mech.Done() {
		return fmt.Errorf("%w: server accepted %s before the exchange completed", ErrAuthFailed, mech.Name())
	}
	return nil
}

// cancelAuth aborts an exchange with "*" (RFC 4954 Section 4); the reply
// is read and discarded.
func (s *Session) cancelAuth(ctx context.Context) {
	if _, err := s.exchange(ctx, "*", "*"); err != nil {
		s.logger.Debug("AUTH cancel failed", slog.Any("error", err))
	}
}

// encodeAuthResponse base64-encodes a SASL response; an empty response is "=".
func encodeAuthResponse(b []byte) string {
	if len(b) == 0 {
		return "="
	}
	return base64.StdEncoding.EncodeToString(b)
}

// decodeChallenge decodes the base64 token at the start of a 334 reply.
func decodeChallenge(reply *Reply) ([]byte, error) {
	if len(reply.Lines) == 0 {
		return nil, nil
	}
	token, _, _ := strings.Cut(strings.TrimSpace(reply.Lines[0]), " ")
	if token == "" || token == "=" {
		return nil, nil
	}
	challenge, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid challenge %q: %w", token, err)
	}
	return challenge, nil
}
