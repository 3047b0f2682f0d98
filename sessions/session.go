package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hermod-chat/hermod/transport"
)

// DefaultSessionID is the id of the singleton session the daemon creates at
// startup for the legacy single-session endpoints.
const DefaultSessionID = "default"

// Status is a session's connection state.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Errors surfaced by registry and session operations.
var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosing  = errors.New("session is closing")
	ErrNotConnected    = errors.New("session not connected")
	ErrRegistryClosed  = errors.New("registry closed")
)

// Session is one registry record. The lifecycle controller is the sole
// writer of status, qrCode, and the transport handle; everything else reads
// a consistent copy via Snapshot.
type Session struct {
	id        string
	createdAt time.Time

	mu      sync.Mutex
	status  Status
	qrCode  string
	tr      transport.Transport
	closing bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Snapshot is a point-in-time copy of the mutable session state.
type Snapshot struct {
	ID        string    `json:"sessionId"`
	Status    Status    `json:"status"`
	QRCode    string    `json:"qr,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Done is closed when the session's controller goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{ID: s.id, Status: s.status, QRCode: s.qrCode, CreatedAt: s.createdAt}
}

// Send delivers a text message through the session's live transport.
// Returns ErrNotConnected unless the session has completed its connect
// handshake. Transport failures are wrapped in *transport.SendError.
func (s *Session) Send(ctx context.Context, to, text string) (transport.MessageKey, error) {
	s.mu.Lock()
	status, tr, closing := s.status, s.tr, s.closing
	s.mu.Unlock()

	if closing {
		return transport.MessageKey{}, ErrSessionClosing
	}
	if status != StatusConnected || tr == nil {
		return transport.MessageKey{}, ErrNotConnected
	}
	key, err := tr.Send(ctx, to, text)
	if err != nil {
		return transport.MessageKey{}, &transport.SendError{SessionID: s.id, Err: err}
	}
	return key, nil
}

// PairPhone requests a numeric pairing code from the live transport. Unlike
// Send this is legal while still Connecting, since pairing is how a fresh
// session becomes authenticated in the first place.
func (s *Session) PairPhone(ctx context.Context, number string) (string, error) {
	s.mu.Lock()
	tr, closing := s.tr, s.closing
	s.mu.Unlock()

	if closing {
		return "", ErrSessionClosing
	}
	if tr == nil {
		return "", ErrNotConnected
	}
	code, err := tr.PairPhone(ctx, number)
	if err != nil {
		return "", &transport.SendError{SessionID: s.id, Err: err}
	}
	return code, nil
}

// --- controller-side mutations ---

// beginConnecting enters the Connecting state with a fresh transport handle
// and no stale pairing artifact.
func (s *Session) beginConnecting() {
	s.mu.Lock()
	s.status = StatusConnecting
	s.qrCode = ""
	s.tr = nil
	s.mu.Unlock()
}

func (s *Session) setTransport(tr transport.Transport) {
	s.mu.Lock()
	s.tr = tr
	s.mu.Unlock()
}

func (s *Session) setArtifact(code string) {
	s.mu.Lock()
	s.qrCode = code
	s.mu.Unlock()
}

// setConnected marks the handshake complete. Clearing the pairing artifact
// here maintains the invariant that qrCode is empty whenever the session is
// Connected.
func (s *Session) setConnected() {
	s.mu.Lock()
	s.status = StatusConnected
	s.qrCode = ""
	s.mu.Unlock()
}

// setDisconnected drops the transport handle so sends fail fast while the
// controller waits out the reconnect delay.
func (s *Session) setDisconnected() {
	s.mu.Lock()
	s.status = StatusDisconnected
	s.tr = nil
	s.mu.Unlock()
}

// markClosing flags the record so a reconnect attempt racing with deletion
// observes the flag and aborts instead of resurrecting the session.
func (s *Session) markClosing() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
}

func (s *Session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Session) currentTransport() transport.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tr
}
