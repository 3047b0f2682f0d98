package sessions_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hermod-chat/hermod/credstore/memorystore"
	"github.com/hermod-chat/hermod/sessions"
	"github.com/hermod-chat/hermod/transport"
	"github.com/hermod-chat/hermod/transport/transporttest"
	"github.com/hermod-chat/hermod/webhook"
)

const testSecret = "test-secret"

// hookRecorder is an httptest consumer that decodes and verifies every
// webhook delivery.
type hookRecorder struct {
	srv *httptest.Server

	mu        sync.Mutex
	envelopes []webhook.Envelope
	badSigs   int
}

func newHookRecorder(t *testing.T) *hookRecorder {
	t.Helper()
	rec := &hookRecorder{}
	rec.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read webhook body: %v", err)
			return
		}
		var env webhook.Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			t.Errorf("decode webhook body: %v", err)
			return
		}
		rec.mu.Lock()
		if !webhook.Verify(testSecret, body, r.Header.Get(webhook.SignatureHeader)) {
			rec.badSigs++
		}
		rec.envelopes = append(rec.envelopes, env)
		rec.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(rec.srv.Close)
	return rec
}

// count returns how many deliveries of kind arrived for sessionID.
func (r *hookRecorder) count(sessionID string, kind webhook.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, env := range r.envelopes {
		if env.SessionID == sessionID && env.Event == kind {
			n++
		}
	}
	return n
}

// last returns the most recent delivery of kind for sessionID.
func (r *hookRecorder) last(sessionID string, kind webhook.Kind) (webhook.Envelope, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.envelopes) - 1; i >= 0; i-- {
		if r.envelopes[i].SessionID == sessionID && r.envelopes[i].Event == kind {
			return r.envelopes[i], true
		}
	}
	return webhook.Envelope{}, false
}

func (r *hookRecorder) badSignatures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.badSigs
}

// gateway bundles the fixtures most lifecycle tests need.
type gateway struct {
	reg    *sessions.Registry
	dialer *transporttest.Dialer
	creds  *memorystore.Store
	hooks  *hookRecorder
}

func newGateway(t *testing.T, opts ...sessions.Option) *gateway {
	t.Helper()
	g := &gateway{
		dialer: transporttest.NewDialer(),
		creds:  memorystore.New(),
		hooks:  newHookRecorder(t),
	}
	dispatcher := webhook.New()
	dispatcher.SetEndpoint(g.hooks.srv.URL, testSecret)

	opts = append([]sessions.Option{sessions.WithReconnectDelay(20 * time.Millisecond)}, opts...)
	g.reg = sessions.NewRegistry(g.dialer, g.creds, dispatcher, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = g.reg.Close(ctx)
	})
	return g
}

// awaitDial returns the next transport handed out by the fake dialer.
func (g *gateway) awaitDial(t *testing.T) *transporttest.Fake {
	t.Helper()
	select {
	case f := <-g.dialer.Dials:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport dial")
		return nil
	}
}

// connect creates a session and walks its first transport to Connected.
func (g *gateway) connect(t *testing.T, id string) (*sessions.Session, *transporttest.Fake) {
	t.Helper()
	s, err := g.reg.Create(context.Background(), id)
	if err != nil {
		t.Fatalf("create session %s: %v", id, err)
	}
	f := g.awaitDial(t)
	f.Emit(transport.Event{Kind: transport.EventConnectionUp})
	waitStatus(t, s, sessions.StatusConnected)
	return s, f
}

func waitStatus(t *testing.T, s *sessions.Session, want sessions.Status) {
	t.Helper()
	waitFor(t, func() bool { return s.Snapshot().Status == want })
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}
