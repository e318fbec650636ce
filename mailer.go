package courier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the Mailer refuses to reconnect after
// repeated connection failures.
var ErrCircuitOpen = errors.New("smtp: too many connection failures, not reconnecting")

// MailerConfig configures reconnect behaviour.
type MailerConfig struct {
	// Name identifies the circuit breaker in logs (default: the host).
	Name string
	// FailureThreshold is the number of consecutive failed connects that
	// opens the circuit (default: 3).
	FailureThreshold uint32
	// OpenTimeout is how long the circuit stays open before one trial
	// connect is allowed (default: 30s).
	OpenTimeout time.Duration
	// OnStateChange is called on every circuit state transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// Mailer keeps one Session open and reconnects on demand when the session
// has been closed, for example by the server or by a failed RSET.
// Connection attempts go through a circuit breaker so a dead server is not
// hammered.
type Mailer struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger

	mu      sync.Mutex
	session *Session
	closed  bool
}

// NewMailer validates cfg and returns a Mailer. No connection is made
// until the first Send.
func NewMailer(cfg Config, mc MailerConfig) (*Mailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if mc.Name == "" {
		mc.Name = cfg.Host
	}
	if mc.FailureThreshold == 0 {
		mc.FailureThreshold = 3
	}
	if mc.OpenTimeout == 0 {
		mc.OpenTimeout = 30 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Mailer{cfg: cfg, logger: logger}
	threshold := mc.FailureThreshold
	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        mc.Name,
		MaxRequests: 1,
		Timeout:     mc.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.logger.Warn("mailer circuit state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			if mc.OnStateChange != nil {
				mc.OnStateChange(name, from, to)
			}
		},
	})
	return m, nil
}

// Send validates opts and queues the message on the current session,
// connecting first if there is none.
func (m *Mailer) Send(ctx context.Context, opts MessageOptions) (*Message, error) {
	msg, err := NewMessage(opts)
	if err != nil {
		return nil, err
	}

	s, err := m.activeSession(ctx)
	if err != nil {
		return nil, err
	}
	s.enqueue(msg)
	return msg, nil
}

// SendAndWait is Send followed by Wait on the returned message.
func (m *Mailer) SendAndWait(ctx context.Context, opts MessageOptions) (*Reply, error) {
	msg, err := m.Send(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := msg.Wait(ctx); err != nil {
		return nil, err
	}
	return msg.Reply(), nil
}

func (m *Mailer) activeSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrSessionClosed
	}
	if m.session != nil && m.session.Active() {
		return m.session, nil
	}

	res, err := m.breaker.Execute(func() (interface{}, error) {
		return Connect(ctx, m.cfg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
		}
		return nil, err
	}

	m.session = res.(*Session)
	return m.session, nil
}

// State returns the circuit breaker state.
func (m *Mailer) State() gobreaker.State {
	return m.breaker.State()
}

// Close closes the current session, if any. Later sends fail with
// ErrSessionClosed.
func (m *Mailer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.session != nil {
		m.session.Close(nil)
		m.session = nil
	}
}
