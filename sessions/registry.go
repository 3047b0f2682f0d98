package sessions

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hermod-chat/hermod/credstore"
	"github.com/hermod-chat/hermod/internal/logctx"
	"github.com/hermod-chat/hermod/transport"
	"github.com/hermod-chat/hermod/webhook"
)

const defaultReconnectDelay = 3 * time.Second

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger shared by the registry and its controllers.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithReconnectDelay overrides the fixed delay between reconnect attempts.
// Default 3s.
func WithReconnectDelay(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.reconnectDelay = d
		}
	}
}

// Registry owns the collection of live sessions. All map access goes
// through one mutex; transport I/O, credential persistence, and webhook
// dispatch all happen outside it.
type Registry struct {
	log            *slog.Logger
	dialer         transport.Dialer
	creds          credstore.Store
	hooks          *webhook.Dispatcher
	reconnectDelay time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
}

func NewRegistry(dialer transport.Dialer, creds credstore.Store, hooks *webhook.Dispatcher, opts ...Option) *Registry {
	r := &Registry{
		log:            slog.Default(),
		dialer:         dialer,
		creds:          creds,
		hooks:          hooks,
		reconnectDelay: defaultReconnectDelay,
		sessions:       make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = slog.New(logctx.Handler{Handler: r.log.Handler()})
	return r
}

// Create allocates a session record and starts its lifecycle controller.
// An empty id gets a generated UUID. Fails with ErrSessionExists if the id
// is already present; the existing record is never overwritten.
func (r *Registry) Create(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	s := &Session{
		id:        id,
		createdAt: time.Now().UTC(),
		status:    StatusInitializing,
		done:      make(chan struct{}),
	}

	// The controller outlives the creating request: derive its context from
	// the registry's lifetime, not the caller's.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = logctx.WithSessionData(runCtx, &logctx.SessionData{SessionID: id})
	s.cancel = cancel

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return nil, ErrRegistryClosed
	}
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		cancel()
		return nil, ErrSessionExists
	}
	r.sessions[id] = s
	r.wg.Add(1)
	r.mu.Unlock()

	r.log.InfoContext(runCtx, "session.create")

	c := &controller{reg: r, sess: s, log: r.log}
	go func() {
		defer r.wg.Done()
		defer close(s.done)
		c.run(runCtx)
	}()

	return s, nil
}

// Get returns the live session for id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List returns a snapshot of every live session, sorted by id.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	out := make([]Snapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Snapshot())
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Delete logs the session out (best effort), stops its controller, and
// removes the record. Credentials are purged so a later Create with the
// same id starts a fresh pairing.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.markClosing()

	if tr := s.currentTransport(); tr != nil {
		if err := tr.Logout(ctx); err != nil {
			r.log.WarnContext(ctx, "session.logout.fail", slog.String("session_id", id), slog.String("err", err.Error()))
		}
	}
	s.cancel()

	if err := r.creds.Delete(context.WithoutCancel(ctx), id); err != nil {
		r.log.WarnContext(ctx, "session.creds.delete.fail", slog.String("session_id", id), slog.String("err", err.Error()))
	}

	r.log.InfoContext(ctx, "session.delete", slog.String("session_id", id))
	return nil
}

// Close stops every controller without logging sessions out, so
// credentials stay valid across a process restart. Blocks until all
// controller goroutines exit or ctx expires.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range live {
		s.markClosing()
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// removeTerminal drops a session whose transport reported a terminal
// logout. The identity check keeps a racing Delete+Create pair safe: if a
// new record already took the id, it stays.
func (r *Registry) removeTerminal(ctx context.Context, s *Session) {
	r.mu.Lock()
	if cur, ok := r.sessions[s.id]; ok && cur == s {
		delete(r.sessions, s.id)
	}
	r.mu.Unlock()

	if err := r.creds.Delete(ctx, s.id); err != nil && !errors.Is(err, credstore.ErrNotFound) {
		r.log.WarnContext(ctx, "session.creds.delete.fail", slog.String("err", err.Error()))
	}
	r.log.InfoContext(ctx, "session.terminal.removed")
}
