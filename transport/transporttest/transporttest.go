// Package transporttest provides an in-memory, scriptable transport for
// exercising the session lifecycle without a real protocol connection.
// Tests emit events through Fake handles obtained from a Dialer and assert
// on the calls the gateway made against them.
package transporttest

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/hermod-chat/hermod/transport"
)

// Dialer hands out Fake transports and records every dial. Each successful
// Dial pushes the new Fake onto Dials so tests can await (re)connections.
type Dialer struct {
	// Dials receives each Fake as it is created. Buffered so the gateway
	// never blocks on an inattentive test.
	Dials chan *Fake

	mu      sync.Mutex
	dialErr error
	creds   [][]byte
}

// NewDialer returns a Dialer ready for use.
func NewDialer() *Dialer {
	return &Dialer{Dials: make(chan *Fake, 16)}
}

// FailDials makes subsequent Dial calls return err. Pass nil to heal.
func (d *Dialer) FailDials(err error) {
	d.mu.Lock()
	d.dialErr = err
	d.mu.Unlock()
}

// DialCreds returns the credential blobs passed to each dial, in order.
func (d *Dialer) DialCreds() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.creds))
	copy(out, d.creds)
	return out
}

func (d *Dialer) Dial(ctx context.Context, creds []byte) (transport.Transport, error) {
	d.mu.Lock()
	err := d.dialErr
	d.creds = append(d.creds, append([]byte(nil), creds...))
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	f := NewFake()
	select {
	case d.Dials <- f:
	default:
	}
	return f, nil
}

var _ transport.Dialer = (*Dialer)(nil)

// SendCall records one Send invocation against a Fake.
type SendCall struct {
	To   string
	Text string
}

// Fake is a scriptable transport handle. Emit pushes events into the stream
// the gateway consumes; CloseEvents ends the stream (as a driver does when
// the underlying socket dies).
type Fake struct {
	events chan transport.Event

	mu          sync.Mutex
	sends       []SendCall
	sendErr     error
	pairingCode string
	pairErr     error
	loggedOut   bool
	closed      bool
}

func NewFake() *Fake {
	return &Fake{events: make(chan transport.Event, 64)}
}

// Emit appends an event to the stream. Panics if called after CloseEvents,
// which is a test bug.
func (f *Fake) Emit(ev transport.Event) {
	f.events <- ev
}

// CloseEvents terminates the event stream.
func (f *Fake) CloseEvents() {
	close(f.events)
}

func (f *Fake) Events() <-chan transport.Event { return f.events }

// FailSends makes subsequent Send calls return err. Pass nil to heal.
func (f *Fake) FailSends(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

// Sends returns the recorded Send calls.
func (f *Fake) Sends() []SendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SendCall, len(f.sends))
	copy(out, f.sends)
	return out
}

func (f *Fake) Send(ctx context.Context, to string, text string) (transport.MessageKey, error) {
	f.mu.Lock()
	err := f.sendErr
	if err == nil {
		f.sends = append(f.sends, SendCall{To: to, Text: text})
	}
	n := len(f.sends)
	f.mu.Unlock()
	if err != nil {
		return transport.MessageKey{}, err
	}
	return transport.MessageKey{ID: "fake-" + strconv.Itoa(n), RemoteJID: to, FromMe: true}, nil
}

// SetPairingCode scripts the result of the next PairPhone call.
func (f *Fake) SetPairingCode(code string, err error) {
	f.mu.Lock()
	f.pairingCode, f.pairErr = code, err
	f.mu.Unlock()
}

func (f *Fake) PairPhone(ctx context.Context, number string) (string, error) {
	f.mu.Lock()
	code, err := f.pairingCode, f.pairErr
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	if code == "" {
		return "", errors.New("transporttest: no pairing code scripted")
	}
	return code, nil
}

// LoggedOut reports whether Logout was called.
func (f *Fake) LoggedOut() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedOut
}

func (f *Fake) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.loggedOut = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

var _ transport.Transport = (*Fake)(nil)
