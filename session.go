package courier

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// quitTimeout caps the wait for the QUIT reply during Close.
const quitTimeout = 10 * time.Second

// channel is the current transport and the handles bound to it. STARTTLS
// replaces the whole channel in one step.
type channel struct {
	transport Transport
	reader    *replyReader
	writer    *bufio.Writer
}

func newChannel(t Transport) *channel {
	return &channel{
		transport: t,
		reader:    newReplyReader(t),
		writer:    bufio.NewWriter(t),
	}
}

// Session is a live SMTP connection that delivers queued messages one
// transaction at a time, in the order they were sent.
type Session struct {
	cfg      Config
	id       string
	logger   *slog.Logger
	observer Observer

	// host is the server actually dialed (an MX host with LookupMX).
	host string

	// ioMu is held for every command/reply exchange. The channel and the
	// capabilities are only written during Connect.
	ioMu sync.Mutex
	ch   *channel
	caps Capabilities

	queue   *queue
	current atomic.Pointer[Message]
	active  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce   sync.Once
	closeReason atomic.Pointer[error]
	done        chan struct{}
}

// Connect dials the server and runs greeting, EHLO, optional STARTTLS and
// AUTH. On success the session is ready and its delivery loop is running;
// on failure the transport is closed and no session is returned.
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	s := newSession(cfg)
	s.logger.Debug("connecting",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("security", cfg.Security.String()),
	)

	err := s.establish(ctx)
	s.observer.ConnectAttempted(err)
	if err != nil {
		s.cancel()
		s.logger.Warn("connect failed", slog.String("host", cfg.Host), slog.Any("error", err))
		return nil, err
	}

	s.active.Store(true)
	go s.run()

	s.logger.Info("session ready",
		slog.String("host", s.host),
		slog.Bool("tls", s.ch.transport.Secure()),
		slog.String("capabilities", s.caps.String()),
	)
	return s, nil
}

func newSession(cfg Config) *Session {
	id := ulid.Make().String()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:      cfg,
		id:       id,
		logger:   cfg.Logger.With(slog.String("session", id)),
		observer: cfg.Observer,
		queue:    newQueue(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// establish runs the Connecting through Authenticated states.
func (s *Session) establish(ctx context.Context) error {
	t, host, err := dial(ctx, &s.cfg)
	if err != nil {
		return err
	}
	s.host = host
	s.ch = newChannel(t)

	if err := s.handshake(ctx); err != nil {
		s.ch.transport.Close()
		return err
	}
	return nil
}

func (s *Session) handshake(ctx context.Context) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	greeting, err := s.readReply(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGreeting, err)
	}
	if greeting.Code != CodeServiceReady {
		return fmt.Errorf("%w: %w", ErrGreeting, replyError(greeting))
	}

	if err := s.hello(ctx); err != nil {
		return err
	}

	if s.cfg.Security == SecurityStartTLS && !s.ch.transport.Secure() {
		switch {
		case s.caps.StartTLS:
			if err := s.startTLS(ctx); err != nil {
				return err
			}
			if err := s.hello(ctx); err != nil {
				return err
			}
		case s.cfg.RequireTLS:
			return ErrTLSNotSupported
		default:
			s.logger.Warn("server does not offer STARTTLS, continuing without TLS", slog.String("host", s.host))
		}
	}

	return s.authenticate(ctx)
}

// hello sends EHLO and falls back to HELO on any negative reply except 421.
func (s *Session) hello(ctx context.Context) error {
	reply, err := s.command(ctx, "EHLO "+s.cfg.LocalName)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEhlo, err)
	}
	if reply.IsSuccess() {
		s.caps = ParseCapabilities(reply.Raw)
		return nil
	}
	if reply.Code == CodeServiceUnavailable {
		return fmt.Errorf("%w: %w", ErrEhlo, replyError(reply))
	}

	s.logger.Debug("EHLO rejected, falling back to HELO", slog.Int("code", int(reply.Code)))
	reply, err = s.command(ctx, "HELO "+s.cfg.LocalName)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHelo, err)
	}
	if !reply.IsSuccess() {
		return fmt.Errorf("%w: %w", ErrHelo, replyError(reply))
	}
	s.caps = Capabilities{}
	return nil
}

// startTLS upgrades the connection and swaps in a channel bound to the
// encrypted transport. Capabilities are cleared until the next EHLO.
func (s *Session) startTLS(ctx context.Context) error {
	reply, err := s.command(ctx, "STARTTLS")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartTLS, err)
	}
	if reply.Code != CodeServiceReady {
		return fmt.Errorf("%w: %w", ErrStartTLS, replyError(reply))
	}

	hsCtx, cancel := context.WithTimeout(ctx, s.cfg.ResponseTimeout)
	defer cancel()

	upgraded, err := s.ch.transport.UpgradeTLS(hsCtx, s.cfg.TLSConfig)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartTLS, err)
	}
	s.ch = newChannel(upgraded)
	s.caps = Capabilities{}
	s.logger.Debug("TLS established")
	return nil
}

// run is the delivery loop and the only consumer of the queue.
func (s *Session) run() {
	for {
		msg, ok := s.queue.pop()
		if !ok {
			return
		}
		s.current.Store(msg)
		fatal := s.deliver(msg)
		s.current.Store(nil)
		if fatal != nil {
			s.Close(fatal)
			return
		}
	}
}

// deliver runs one transaction and resolves msg. It returns an error when
// the session can not continue and must be closed.
func (s *Session) deliver(msg *Message) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if !s.active.Load() {
		s.fail(msg, s.closedError())
		return nil
	}

	start := time.Now()
	reply, size, err := s.transact(s.ctx, msg)
	if err == nil {
		if msg.resolve(reply, nil) {
			s.observer.MessageSent(time.Since(start), size)
			s.logger.Info("message sent",
				slog.String("from", msg.opts.From.Addr),
				slog.Int("recipients", len(msg.Recipients())),
				slog.Int("size", size),
				slog.String("reply", reply.Message()),
			)
		}
		return nil
	}

	s.fail(msg, err)

	if !s.active.Load() {
		return err
	}
	if !recoverable(err) {
		// The command/reply pairing is unknown after an I/O failure, so
		// the connection is dropped without QUIT.
		s.Close(err)
		return nil
	}
	return s.reset(s.ctx)
}

// transact runs MAIL, RCPT for each recipient, DATA and the message body.
// It returns the final reply and the size of the transmitted data.
func (s *Session) transact(ctx context.Context, msg *Message) (*Reply, int, error) {
	data, err := msg.encodeData()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	from, err := envelopeAddress(msg.opts.From.Addr)
	if err != nil {
		return nil, 0, err
	}

	params := resolveDSN(s.cfg.DSN, msg.opts.DSN)

	reply, err := s.command(ctx, "MAIL FROM:<"+from+">"+params.mailParams(s.caps.DSN))
	if err != nil {
		return nil, 0, err
	}
	if !reply.IsSuccess() {
		return nil, 0, fmt.Errorf("%w: %w", ErrMailFrom, replyError(reply))
	}

	for _, rcpt := range msg.Recipients() {
		to, err := envelopeAddress(rcpt.Addr)
		if err != nil {
			return nil, 0, err
		}
		reply, err := s.command(ctx, "RCPT TO:<"+to+">"+params.rcptParams(s.caps.DSN))
		if err != nil {
			return nil, 0, err
		}
		if !reply.IsSuccess() {
			return nil, 0, fmt.Errorf("%w %s: %w", ErrInvalidRcpt, rcpt.Addr, replyError(reply))
		}
	}

	reply, err = s.command(ctx, "DATA")
	if err != nil {
		return nil, 0, err
	}
	if !reply.IsIntermediate() {
		return nil, 0, fmt.Errorf("%w: %w", ErrData, replyError(reply))
	}

	s.logger.Debug("C: <message data>", slog.Int("size", len(data)))
	if err := s.write(data); err != nil {
		return nil, 0, err
	}
	reply, err = s.readReply(ctx)
	if err != nil {
		return nil, 0, err
	}
	if !reply.IsSuccess() {
		return nil, 0, fmt.Errorf("%w: %w", ErrMessageRejected, replyError(reply))
	}
	return reply, len(data), nil
}

func (s *Session) reset(ctx context.Context) error {
	reply, err := s.command(ctx, "RSET")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReset, err)
	}
	if !reply.IsSuccess() {
		return fmt.Errorf("%w: %w", ErrReset, replyError(reply))
	}
	return nil
}

// Send validates opts, queues the message and returns it without waiting.
// Validation errors are returned before anything is queued. On a closed
// session the returned message is already failed with ErrSessionClosed.
//
// A rejected command fails only its message and is followed by RSET. A
// response timeout or I/O error during a transaction fails the message and
// closes the session, since the reply stream can no longer be trusted.
func (s *Session) Send(opts MessageOptions) (*Message, error) {
	msg, err := NewMessage(opts)
	if err != nil {
		return nil, err
	}
	s.enqueue(msg)
	return msg, nil
}

func (s *Session) enqueue(msg *Message) {
	if !s.active.Load() || !s.queue.push(msg) {
		s.fail(msg, s.closedError())
	}
}

// Close shuts the session down. Messages still queued or in flight fail
// with ErrSessionClosed wrapping reason. QUIT is sent when no transaction
// is using the connection. Close is idempotent and never fails.
//
// The session also closes itself after a response timeout or I/O error
// inside a transaction, and when RSET after a failed transaction is
// rejected; reason then wraps that error.
func (s *Session) Close(reason error) {
	s.closeOnce.Do(func() {
		if reason != nil {
			s.closeReason.Store(&reason)
		}
		s.active.Store(false)

		cause := s.closedError()
		if msg := s.current.Load(); msg != nil {
			s.fail(msg, cause)
		}
		for _, msg := range s.queue.close() {
			s.fail(msg, cause)
		}

		if s.ioMu.TryLock() {
			s.quit()
			s.ioMu.Unlock()
		}
		s.cancel()
		if err := s.ch.transport.Close(); err != nil {
			s.logger.Debug("transport close failed", slog.Any("error", err))
		}

		s.observer.SessionClosed()
		if reason != nil {
			s.logger.Warn("session closed", slog.Any("reason", reason))
		} else {
			s.logger.Info("session closed")
		}
		close(s.done)
	})
}

// quit sends QUIT and waits briefly for the reply; errors are ignored.
func (s *Session) quit() {
	timeout := min(s.cfg.ResponseTimeout, quitTimeout)
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	if _, err := s.command(ctx, "QUIT"); err != nil {
		s.logger.Debug("QUIT failed", slog.Any("error", err))
	}
}

func (s *Session) closedError() error {
	if reason := s.closeReason.Load(); reason != nil {
		return fmt.Errorf("%w: %w", ErrSessionClosed, *reason)
	}
	return ErrSessionClosed
}

func (s *Session) fail(msg *Message, err error) {
	if msg.resolve(nil, err) {
		s.observer.MessageFailed(err)
		s.logger.Warn("message failed",
			slog.String("from", msg.opts.From.Addr),
			slog.Any("error", err),
		)
	}
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Active reports whether the session is accepting messages.
func (s *Session) Active() bool {
	return s.active.Load()
}

// Capabilities returns the capabilities from the last EHLO.
func (s *Session) Capabilities() Capabilities {
	return s.caps.clone()
}

// Secure reports whether the connection is encrypted.
func (s *Session) Secure() bool {
	return s.ch.transport.Secure()
}

// ID returns the session identifier used in log records.
func (s *Session) ID() string {
	return s.id
}

// Host returns the host that was dialed.
func (s *Session) Host() string {
	return s.host
}

// Pending returns the number of messages waiting to be delivered.
func (s *Session) Pending() int {
	return s.queue.len()
}

// command writes one command line and reads its reply.
func (s *Session) command(ctx context.Context, line string) (*Reply, error) {
	return s.exchange(ctx, line, line)
}

// exchange is command with a separate log form of the line, so that
// credentials never reach the log.
func (s *Session) exchange(ctx context.Context, line, logged string) (*Reply, error) {
	s.logger.Debug("C: " + logged)
	if err := s.write([]byte(line + "\r\n")); err != nil {
		return nil, err
	}
	return s.readReply(ctx)
}

func (s *Session) write(b []byte) error {
	if _, err := s.ch.writer.Write(b); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := s.ch.writer.Flush(); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (s *Session) readReply(ctx context.Context) (*Reply, error) {
	text, err := s.ch.reader.ReadReply(ctx, s.cfg.ResponseTimeout)
	if err != nil {
		return nil, err
	}
	reply, err := parseReply(text)
	if err != nil {
		return nil, err
	}
	if s.logger.Enabled(ctx, slog.LevelDebug) {
		for _, l := range reply.Lines {
			s.logger.Debug(fmt.Sprintf("S: %d %s", reply.Code, l))
		}
	}
	return reply, nil
}

// replyError converts any reply, including 2xx and 3xx replies received out
// of turn, into an *SMTPError.
func replyError(r *Reply) error {
	return &SMTPError{
		Code:         int(r.Code),
		EnhancedCode: r.EnhancedCode(),
		Message:      r.Message(),
	}
}

// recoverable reports whether the session can continue after a failed
// transaction: the failure came from a server reply or from local message
// preparation, not from the connection itself.
func recoverable(err error) bool {
	var smtpErr *SMTPError
	if errors.As(err, &smtpErr) {
		return true
	}
	return errors.Is(err, ErrInvalidAddress) || errors.Is(err, ErrEncode)
}
