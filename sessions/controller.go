package sessions

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hermod-chat/hermod/credstore"
	"github.com/hermod-chat/hermod/transport"
	"github.com/hermod-chat/hermod/webhook"
)

// controller drives one session's connection lifecycle. It is the only
// goroutine that mutates the session's status, pairing artifact, and
// transport handle, so those fields never need external locking discipline
// beyond the record's own snapshot mutex.
type controller struct {
	reg  *Registry
	sess *Session
	log  *slog.Logger
}

// run loops dial -> pump -> classify until the context is canceled, the
// session is deleted, or the transport reports a terminal logout. Reconnect
// uses a fixed delay with no retry cap: a session keeps trying until it is
// explicitly deleted or logged out remotely.
func (c *controller) run(ctx context.Context) {
	for {
		if ctx.Err() != nil || c.sess.isClosing() {
			return
		}

		tr, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.WarnContext(ctx, "session.connect.fail", slog.String("err", err.Error()))
			c.sess.setDisconnected()
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		reason := c.pump(ctx, tr)
		_ = tr.Close()
		c.sess.setDisconnected()

		if ctx.Err() != nil || c.sess.isClosing() {
			return
		}

		c.log.InfoContext(ctx, "session.disconnected",
			slog.Int("reason", int(reason)),
			slog.String("description", reason.String()))
		c.reg.hooks.Dispatch(ctx, c.sess.id, webhook.KindDisconnected, map[string]any{
			"reason":      int(reason),
			"description": reason.String(),
		})

		if reason.Terminal() {
			c.reg.removeTerminal(ctx, c.sess)
			return
		}

		if !c.sleep(ctx) {
			return
		}
	}
}

// connect enters the Connecting state and dials a fresh transport with the
// session's persisted credentials. Missing credentials dial nil, which
// tells the driver to begin a new pairing handshake.
func (c *controller) connect(ctx context.Context) (transport.Transport, error) {
	c.sess.beginConnecting()

	creds, err := c.reg.creds.Load(ctx, c.sess.id)
	if err != nil && !errors.Is(err, credstore.ErrNotFound) {
		return nil, err
	}

	tr, err := c.reg.dialer.Dial(ctx, creds)
	if err != nil {
		return nil, err
	}
	c.sess.setTransport(tr)
	c.log.InfoContext(ctx, "session.connecting")
	return tr, nil
}

// pump consumes the transport's event stream in emission order until the
// connection drops. A stream that closes without a connection-down event is
// treated as a recoverable connection loss.
func (c *controller) pump(ctx context.Context, tr transport.Transport) transport.CloseReason {
	for {
		select {
		case <-ctx.Done():
			return transport.ReasonUnknown
		case ev, ok := <-tr.Events():
			if !ok {
				return transport.ReasonConnectionLost
			}
			if ev.Kind == transport.EventConnectionDown {
				return ev.Reason
			}
			c.handle(ctx, ev)
		}
	}
}

// handle translates one transport event into record mutations and webhook
// dispatches. Dispatches are fire-and-forget, so the event loop never
// blocks on the consumer.
func (c *controller) handle(ctx context.Context, ev transport.Event) {
	switch ev.Kind {
	case transport.EventQR:
		c.sess.setArtifact(ev.QR)
		c.reg.hooks.Dispatch(ctx, c.sess.id, webhook.KindQR, map[string]any{"qr": ev.QR})

	case transport.EventPairingCode:
		c.sess.setArtifact(ev.PairingCode)
		c.reg.hooks.Dispatch(ctx, c.sess.id, webhook.KindQR, map[string]any{"pairingCode": ev.PairingCode})

	case transport.EventConnectionUp:
		c.sess.setConnected()
		c.log.InfoContext(ctx, "session.connected")
		c.reg.hooks.Dispatch(ctx, c.sess.id, webhook.KindConnected, map[string]any{"status": string(StatusConnected)})

	case transport.EventCredsChanged:
		// Persistence is I/O; keep it off the event loop. The blob is
		// forwarded verbatim.
		creds := ev.Creds
		saveCtx := context.WithoutCancel(ctx)
		go func() {
			if err := c.reg.creds.Save(saveCtx, c.sess.id, creds); err != nil {
				c.log.ErrorContext(saveCtx, "session.creds.save.fail", slog.String("err", err.Error()))
			}
		}()

	case transport.EventMessages:
		for _, msg := range ev.Messages {
			if msg.Key.FromMe {
				continue
			}
			c.reg.hooks.Dispatch(ctx, c.sess.id, webhook.KindMessage, msg)
		}

	case transport.EventStatusUpdates:
		for _, upd := range ev.Updates {
			c.reg.hooks.Dispatch(ctx, c.sess.id, webhook.KindStatus, upd)
		}
	}
}

// sleep waits out the reconnect delay. Returns false when the wait was cut
// short by cancellation or the record is closing, in which case the
// controller must exit instead of reconnecting.
func (c *controller) sleep(ctx context.Context) bool {
	timer := time.NewTimer(c.reg.reconnectDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return !c.sess.isClosing()
	}
}
