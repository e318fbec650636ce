package courier

import "time"

// Observer receives session events, typically to export metrics.
// Methods are called synchronously from the session and must not block.
type Observer interface {
	// ConnectAttempted is called once per Connect with its result.
	ConnectAttempted(err error)
	// AuthAttempted is called after an AUTH exchange.
	AuthAttempted(mechanism AuthMechanism, err error)
	// MessageSent is called when the server accepts a message.
	MessageSent(duration time.Duration, size int)
	// MessageFailed is called when a message fails, including messages
	// failed by session shutdown.
	MessageFailed(err error)
	// SessionClosed is called once when a session is torn down.
	SessionClosed()
}

type nopObserver struct{}

func (nopObserver) ConnectAttempted(error)             {}
func (nopObserver) AuthAttempted(AuthMechanism, error) {}
func (nopObserver) MessageSent(time.Duration, int)     {}
func (nopObserver) MessageFailed(error)                {}
func (nopObserver) SessionClosed()                     {}
