package sessions_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hermod-chat/hermod/sessions"
	"github.com/hermod-chat/hermod/transport"
	"github.com/hermod-chat/hermod/webhook"
)

func TestQRLifecycle(t *testing.T) {
	g := newGateway(t)
	s, err := g.reg.Create(context.Background(), "s1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f := g.awaitDial(t)

	f.Emit(transport.Event{Kind: transport.EventQR, QR: "2@ABC..."})
	waitFor(t, func() bool { return s.Snapshot().QRCode == "2@ABC..." })
	if got := s.Snapshot().Status; got != sessions.StatusConnecting {
		t.Fatalf("status during pairing = %q, want connecting", got)
	}
	waitFor(t, func() bool { return g.hooks.count("s1", webhook.KindQR) == 1 })
	env, _ := g.hooks.last("s1", webhook.KindQR)
	data, ok := env.Data.(map[string]any)
	if !ok || data["qr"] != "2@ABC..." {
		t.Fatalf("qr webhook data = %#v, want qr=2@ABC...", env.Data)
	}

	f.Emit(transport.Event{Kind: transport.EventConnectionUp})
	waitStatus(t, s, sessions.StatusConnected)
	if qr := s.Snapshot().QRCode; qr != "" {
		t.Fatalf("qr not cleared on connect: %q", qr)
	}
	waitFor(t, func() bool { return g.hooks.count("s1", webhook.KindConnected) == 1 })

	// Give any stray duplicate a chance to arrive before asserting "exactly once".
	time.Sleep(50 * time.Millisecond)
	if n := g.hooks.count("s1", webhook.KindConnected); n != 1 {
		t.Fatalf("connected webhook dispatched %d times, want exactly 1", n)
	}
	if n := g.hooks.badSignatures(); n != 0 {
		t.Fatalf("%d webhook deliveries carried bad signatures", n)
	}
}

func TestPairingCodeEvent(t *testing.T) {
	g := newGateway(t)
	s, err := g.reg.Create(context.Background(), "pair")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f := g.awaitDial(t)

	f.Emit(transport.Event{Kind: transport.EventPairingCode, PairingCode: "ABCD-1234"})
	waitFor(t, func() bool { return s.Snapshot().QRCode == "ABCD-1234" })
	waitFor(t, func() bool { return g.hooks.count("pair", webhook.KindQR) == 1 })
	env, _ := g.hooks.last("pair", webhook.KindQR)
	data, ok := env.Data.(map[string]any)
	if !ok || data["pairingCode"] != "ABCD-1234" {
		t.Fatalf("pairing webhook data = %#v, want pairingCode=ABCD-1234", env.Data)
	}
}

func TestTransientCloseReconnects(t *testing.T) {
	g := newGateway(t)
	s, err := g.reg.Create(context.Background(), "flappy")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f1 := g.awaitDial(t)
	f1.Emit(transport.Event{Kind: transport.EventConnectionDown, Reason: transport.ReasonConnectionClosed})

	// The controller must dial again on its own after the fixed delay.
	f2 := g.awaitDial(t)
	if f2 == f1 {
		t.Fatal("reconnect reused the dead transport")
	}
	waitFor(t, func() bool { return f1.Closed() })

	waitFor(t, func() bool { return g.hooks.count("flappy", webhook.KindDisconnected) == 1 })
	env, _ := g.hooks.last("flappy", webhook.KindDisconnected)
	data, ok := env.Data.(map[string]any)
	if !ok || data["reason"] != float64(transport.ReasonConnectionClosed) {
		t.Fatalf("disconnected webhook data = %#v, want reason=%d", env.Data, transport.ReasonConnectionClosed)
	}

	f2.Emit(transport.Event{Kind: transport.EventConnectionUp})
	waitStatus(t, s, sessions.StatusConnected)
	if _, err := g.reg.Get("flappy"); err != nil {
		t.Fatalf("session vanished across a transient close: %v", err)
	}
}

func TestClosedEventStreamReconnects(t *testing.T) {
	g := newGateway(t)
	if _, err := g.reg.Create(context.Background(), "eof"); err != nil {
		t.Fatalf("create: %v", err)
	}
	f1 := g.awaitDial(t)
	f1.CloseEvents()

	g.awaitDial(t)
	waitFor(t, func() bool { return g.hooks.count("eof", webhook.KindDisconnected) == 1 })
}

func TestTerminalLogoutRemovesSession(t *testing.T) {
	g := newGateway(t)
	_, err := g.reg.Create(context.Background(), "doomed")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f := g.awaitDial(t)
	f.Emit(transport.Event{Kind: transport.EventCredsChanged, Creds: []byte("creds")})
	waitFor(t, func() bool {
		_, err := g.creds.Load(context.Background(), "doomed")
		return err == nil
	})

	f.Emit(transport.Event{Kind: transport.EventConnectionDown, Reason: transport.ReasonLoggedOut})

	waitFor(t, func() bool {
		_, err := g.reg.Get("doomed")
		return errors.Is(err, sessions.ErrSessionNotFound)
	})
	waitFor(t, func() bool { return g.hooks.count("doomed", webhook.KindDisconnected) == 1 })
	env, _ := g.hooks.last("doomed", webhook.KindDisconnected)
	data, ok := env.Data.(map[string]any)
	if !ok || data["reason"] != float64(transport.ReasonLoggedOut) {
		t.Fatalf("terminal webhook data = %#v, want reason=%d", env.Data, transport.ReasonLoggedOut)
	}

	// Terminal means terminal: no reconnect, and the invalid credentials
	// are purged so a future create starts a fresh pairing.
	select {
	case <-g.dialer.Dials:
		t.Fatal("terminally logged-out session dialed again")
	case <-time.After(150 * time.Millisecond):
	}
	if _, err := g.creds.Load(context.Background(), "doomed"); err == nil {
		t.Fatal("credentials survived terminal logout")
	}
}

func TestCredsChangedPersisted(t *testing.T) {
	g := newGateway(t)
	_, f := g.connect(t, "saver")

	blob := []byte(`{"noise_key":"abc"}`)
	f.Emit(transport.Event{Kind: transport.EventCredsChanged, Creds: blob})
	waitFor(t, func() bool {
		got, err := g.creds.Load(context.Background(), "saver")
		return err == nil && bytes.Equal(got, blob)
	})
	// Not a state transition: the session stays connected.
	if got := func() sessions.Status { s, _ := g.reg.Get("saver"); return s.Snapshot().Status }(); got != sessions.StatusConnected {
		t.Fatalf("status after creds update = %q, want connected", got)
	}
}

func TestReconnectDialsWithPersistedCreds(t *testing.T) {
	g := newGateway(t)
	_, f1 := g.connect(t, "resume")
	blob := []byte("persisted")
	f1.Emit(transport.Event{Kind: transport.EventCredsChanged, Creds: blob})
	waitFor(t, func() bool {
		_, err := g.creds.Load(context.Background(), "resume")
		return err == nil
	})

	f1.Emit(transport.Event{Kind: transport.EventConnectionDown, Reason: transport.ReasonRestartRequired})
	g.awaitDial(t)

	creds := g.dialer.DialCreds()
	if len(creds) < 2 {
		t.Fatalf("expected 2 dials, saw %d", len(creds))
	}
	if len(creds[0]) != 0 {
		t.Fatalf("first dial should carry no creds, got %q", creds[0])
	}
	if !bytes.Equal(creds[1], blob) {
		t.Fatalf("reconnect dialed with %q, want persisted %q", creds[1], blob)
	}
}

func TestOwnMessagesNotRepublished(t *testing.T) {
	g := newGateway(t)
	_, f := g.connect(t, "inbox")

	f.Emit(transport.Event{Kind: transport.EventMessages, Messages: []transport.Message{
		{Key: transport.MessageKey{ID: "m1", RemoteJID: "peer", FromMe: true}, Text: "mine"},
		{Key: transport.MessageKey{ID: "m2", RemoteJID: "peer"}, Text: "theirs", PushName: "Peer"},
	}})

	waitFor(t, func() bool { return g.hooks.count("inbox", webhook.KindMessage) == 1 })
	env, _ := g.hooks.last("inbox", webhook.KindMessage)
	data, ok := env.Data.(map[string]any)
	if !ok || data["message"] != "theirs" || data["pushName"] != "Peer" {
		t.Fatalf("message webhook data = %#v, want the inbound message only", env.Data)
	}

	time.Sleep(50 * time.Millisecond)
	if n := g.hooks.count("inbox", webhook.KindMessage); n != 1 {
		t.Fatalf("message webhooks = %d, want 1 (own message must be filtered)", n)
	}
}

func TestStatusUpdatesForwarded(t *testing.T) {
	g := newGateway(t)
	_, f := g.connect(t, "acks")

	f.Emit(transport.Event{Kind: transport.EventStatusUpdates, Updates: []transport.StatusUpdate{
		{Key: transport.MessageKey{ID: "m1", RemoteJID: "peer"}, Status: "delivered"},
		{Key: transport.MessageKey{ID: "m1", RemoteJID: "peer"}, Status: "read"},
	}})

	// One webhook per update, forwarded verbatim.
	waitFor(t, func() bool { return g.hooks.count("acks", webhook.KindStatus) == 2 })
	env, _ := g.hooks.last("acks", webhook.KindStatus)
	data, ok := env.Data.(map[string]any)
	if !ok || data["status"] != "read" {
		t.Fatalf("status webhook data = %#v, want status=read", env.Data)
	}
}

func TestSessionsFailIndependently(t *testing.T) {
	g := newGateway(t)

	// Await each session's dial before creating the next so the fake
	// transports map unambiguously to their sessions.
	a, err := g.reg.Create(context.Background(), "a")
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	fa := g.awaitDial(t)
	b, err := g.reg.Create(context.Background(), "b")
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	fb := g.awaitDial(t)
	waitStatus(t, a, sessions.StatusConnecting)
	waitStatus(t, b, sessions.StatusConnecting)

	fb.Emit(transport.Event{Kind: transport.EventConnectionUp})
	waitStatus(t, b, sessions.StatusConnected)

	// A transport failure on "a" must not alter "b".
	fa.Emit(transport.Event{Kind: transport.EventConnectionDown, Reason: transport.ReasonConnectionLost})
	waitFor(t, func() bool { return g.hooks.count("a", webhook.KindDisconnected) == 1 })
	if got := b.Snapshot().Status; got != sessions.StatusConnected {
		t.Fatalf("b status after a's failure = %q, want connected", got)
	}
	if n := g.hooks.count("b", webhook.KindDisconnected); n != 0 {
		t.Fatalf("b received %d disconnected webhooks for a's failure", n)
	}
}

func TestDialFailureRetries(t *testing.T) {
	g := newGateway(t)
	g.dialer.FailDials(errors.New("no route"))

	s, err := g.reg.Create(context.Background(), "offline")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	waitStatus(t, s, sessions.StatusDisconnected)

	g.dialer.FailDials(nil)
	f := g.awaitDial(t)
	f.Emit(transport.Event{Kind: transport.EventConnectionUp})
	waitStatus(t, s, sessions.StatusConnected)
}
