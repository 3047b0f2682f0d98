// Package webhook delivers signed, fire-and-forget event notifications to a
// single configured HTTP consumer. Every session event the gateway
// republishes (pairing artifacts, connection transitions, inbound messages,
// delivery status changes) flows through one Dispatcher.
//
// Delivery is best-effort at-most-once: failures are logged and never
// surfaced to the code that produced the event, and no retry or queue
// exists. Consumers verify authenticity via the X-Webhook-Signature header,
// a hex HMAC-SHA256 of the exact request body computed with the shared
// secret.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Webhook-Signature"

const defaultTimeout = 5 * time.Second

// Kind enumerates the event names a consumer can receive.
type Kind string

const (
	KindQR           Kind = "qr"
	KindStatus       Kind = "status"
	KindMessage      Kind = "message"
	KindConnected    Kind = "connected"
	KindDisconnected Kind = "disconnected"
)

// Envelope is the JSON body of every delivery.
type Envelope struct {
	SessionID string    `json:"sessionId" jsonschema:"description=Id of the session the event belongs to"`
	Event     Kind      `json:"event" jsonschema:"description=Event name,enum=qr,enum=status,enum=message,enum=connected,enum=disconnected"`
	Data      any       `json:"data" jsonschema:"description=Event-specific payload"`
	Timestamp time.Time `json:"timestamp" jsonschema:"description=Time the event was dispatched"`
}

// Endpoint is one consumer configuration snapshot. Updates replace the
// whole value; in-flight deliveries keep the snapshot they started with.
type Endpoint struct {
	URL    string
	Secret string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for delivery failures. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithHTTPClient replaces the HTTP client. The client's own timeout (if
// any) applies in addition to the per-delivery timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.client = c
		}
	}
}

// WithTimeout overrides the per-delivery timeout. Default 5s.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// Dispatcher signs and posts event envelopes. Safe for concurrent use from
// every session's event loop.
type Dispatcher struct {
	log      *slog.Logger
	client   *http.Client
	timeout  time.Duration
	endpoint atomic.Pointer[Endpoint]
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log:     slog.Default(),
		client:  &http.Client{},
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetEndpoint installs a new consumer URL and secret. The next Dispatch
// call observes the new values; deliveries already in flight do not. An
// empty URL disables dispatching.
func (d *Dispatcher) SetEndpoint(url, secret string) {
	if url == "" {
		d.endpoint.Store(nil)
		return
	}
	d.endpoint.Store(&Endpoint{URL: url, Secret: secret})
}

// EndpointURL returns the currently configured consumer URL, if any.
func (d *Dispatcher) EndpointURL() (string, bool) {
	ep := d.endpoint.Load()
	if ep == nil {
		return "", false
	}
	return ep.URL, true
}

// Dispatch fires one event notification and returns immediately. Delivery
// runs on its own goroutine, detached from ctx cancellation so that tearing
// down the producing session does not abort a delivery already triggered.
// Failures are logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, kind Kind, data any) {
	ep := d.endpoint.Load()
	if ep == nil {
		d.log.DebugContext(ctx, "webhook.dispatch.skip", slog.String("session_id", sessionID), slog.String("event", string(kind)))
		return
	}

	env := &Envelope{
		SessionID: sessionID,
		Event:     kind,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := d.deliver(ctx, ep, env); err != nil {
			d.log.WarnContext(ctx, "webhook.dispatch.fail",
				slog.String("session_id", sessionID),
				slog.String("event", string(kind)),
				slog.String("url", ep.URL),
				slog.String("err", err.Error()))
		}
	}()
}

// deliver performs one synchronous signed POST against a fixed endpoint
// snapshot. Split from Dispatch so tests can assert on the result.
func (d *Dispatcher) deliver(ctx context.Context, ep *Endpoint, env *Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(ep.Secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook endpoint returned %s", resp.Status)
	}
	return nil
}
