package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/hermod-chat/hermod/retrycache"
)

// Dialer creates a fresh Transport for one connection attempt. The creds
// blob is whatever the driver previously surfaced through an
// EventCredsChanged event; nil means no prior pairing exists and the driver
// is expected to begin a QR/pairing-code handshake.
type Dialer interface {
	Dial(ctx context.Context, creds []byte) (Transport, error)
}

// Transport is one live protocol connection. Implementations MUST be safe
// for concurrent use and MUST close the Events channel when the connection
// is torn down, after emitting a final EventConnectionDown when the close
// reason is known.
type Transport interface {
	// Events yields the connection's tagged event stream in emission order.
	Events() <-chan Event

	// Send delivers a text message and returns the assigned message key.
	Send(ctx context.Context, to string, text string) (MessageKey, error)

	// PairPhone requests a numeric pairing code for the given phone number.
	PairPhone(ctx context.Context, number string) (string, error)

	// Logout invalidates the session's credentials with the remote service.
	Logout(ctx context.Context) error

	// Close releases the connection without logging out. Idempotent.
	Close() error
}

// RetryCacheConsumer is implemented by dialers whose drivers use the shared
// message-retry counter cache for decryption-retry loop prevention. The
// daemon feature-detects it after resolving the configured driver.
type RetryCacheConsumer interface {
	UseRetryCache(cache retrycache.Cache)
}

// MessageKey identifies a message within a conversation.
type MessageKey struct {
	ID        string `json:"id"`
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
}

// Message is one inbound message as surfaced by the driver.
type Message struct {
	Key       MessageKey `json:"key"`
	Text      string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
	PushName  string     `json:"pushName"`
}

// StatusUpdate reports a delivery-state change for a previously sent or
// received message. Status values are driver-defined and forwarded verbatim.
type StatusUpdate struct {
	Key    MessageKey `json:"key"`
	Status string     `json:"status"`
}

// SendError wraps a driver failure surfaced to the caller of a send
// operation. Failures on the event path never use this type; the controller
// consumes those internally.
type SendError struct {
	SessionID string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("transport send for session %s: %v", e.SessionID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
