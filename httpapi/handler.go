// Package httpapi is the HTTP façade over the session registry and webhook
// dispatcher. It only marshals JSON in and out: every decision about
// session lifecycle lives in the sessions package.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/hermod-chat/hermod/internal/logctx"
	"github.com/hermod-chat/hermod/sessions"
	"github.com/hermod-chat/hermod/transport"
	"github.com/hermod-chat/hermod/webhook"
)

var _ http.Handler = (*Handler)(nil)

var jsonMediaType = contenttype.NewMediaType("application/json")

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the slog logger used by the handler. If not provided,
// slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithAuthenticator requires a valid Bearer token on every /api/ route.
// Health and legacy status routes stay open.
func WithAuthenticator(a *Authenticator) Option {
	return func(h *Handler) { h.auth = a }
}

// Handler serves the gateway's REST surface.
type Handler struct {
	mux   *http.ServeMux
	log   *slog.Logger
	reg   *sessions.Registry
	hooks *webhook.Dispatcher
	auth  *Authenticator
}

func New(reg *sessions.Registry, hooks *webhook.Dispatcher, opts ...Option) (*Handler, error) {
	if reg == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if hooks == nil {
		return nil, fmt.Errorf("webhook dispatcher is required")
	}

	h := &Handler{log: slog.Default(), reg: reg, hooks: hooks}
	for _, opt := range opts {
		opt(h)
	}
	h.log = slog.New(logctx.Handler{Handler: h.log.Handler()})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions/create", h.guard(h.handleCreateSession))
	mux.HandleFunc("GET /api/sessions/{id}/qr", h.guard(h.handleSessionQR))
	mux.HandleFunc("GET /api/sessions/{id}/status", h.guard(h.handleSessionStatus))
	mux.HandleFunc("DELETE /api/sessions/{id}", h.guard(h.handleDeleteSession))
	mux.HandleFunc("POST /api/messages/send", h.guard(h.handleSendMessage))
	mux.HandleFunc("POST /api/webhook/register", h.guard(h.handleRegisterWebhook))
	mux.HandleFunc("GET /api/webhook/schema", h.guard(h.handleWebhookSchema))

	// Legacy single-session surface and liveness endpoints; never
	// authenticated so that probes keep working unconfigured.
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /status", h.handleGatewayStatus)
	mux.HandleFunc("GET /qr", h.handleDefaultQR)
	mux.HandleFunc("POST /pairing-code", h.handlePairingCode)

	h.mux = mux
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
	})
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

// guard wraps a route with Bearer authentication when configured.
func (h *Handler) guard(next http.HandlerFunc) http.HandlerFunc {
	if h.auth == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.auth.Authenticate(r); err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeJSONError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			h.log.WarnContext(r.Context(), "http.auth.fail", slog.String("err", err.Error()))
			return
		}
		next(w, r)
	}
}

// --- session routes ---

type createSessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	s, err := h.reg.Create(r.Context(), req.SessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.log.InfoContext(r.Context(), "http.session.create", slog.String("session_id", s.ID()))
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

func (h *Handler) handleSessionQR(w http.ResponseWriter, r *http.Request) {
	s, err := h.reg.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeQR(w, r, s)
}

func (h *Handler) writeQR(w http.ResponseWriter, r *http.Request, s *sessions.Session) {
	snap := s.Snapshot()
	if snap.QRCode == "" {
		writeJSONError(w, http.StatusNotFound, "no pairing artifact available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"qr": snap.QRCode})
}

func (h *Handler) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	s, err := h.reg.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.reg.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- messaging ---

type sendMessageRequest struct {
	SessionID string `json:"sessionId"`
	To        string `json:"to"`
	Message   string `json:"message"`
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.To == "" || req.Message == "" {
		writeJSONError(w, http.StatusBadRequest, "to and message are required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = sessions.DefaultSessionID
	}
	s, err := h.reg.Get(req.SessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	key, err := s.Send(r.Context(), req.To, req.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key})
}

// --- webhook configuration ---

type registerWebhookRequest struct {
	URL    string `json:"url"`
	Secret string `json:"secret"`
}

func (h *Handler) handleRegisterWebhook(w http.ResponseWriter, r *http.Request) {
	var req registerWebhookRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeJSONError(w, http.StatusBadRequest, "url is required")
		return
	}
	h.hooks.SetEndpoint(req.URL, req.Secret)
	h.log.InfoContext(r.Context(), "http.webhook.register", slog.String("url", req.URL))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleWebhookSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, webhook.EnvelopeSchema())
}

// --- health and legacy single-session surface ---

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "time": time.Now().UTC()})
}

// handleGatewayStatus always succeeds; a missing default session reports
// disconnected rather than erroring.
func (h *Handler) handleGatewayStatus(w http.ResponseWriter, r *http.Request) {
	status := sessions.StatusDisconnected
	if s, err := h.reg.Get(sessions.DefaultSessionID); err == nil {
		status = s.Snapshot().Status
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessions.DefaultSessionID,
		"status":    status,
		"sessions":  len(h.reg.List()),
	})
}

func (h *Handler) handleDefaultQR(w http.ResponseWriter, r *http.Request) {
	s, err := h.reg.Get(sessions.DefaultSessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeQR(w, r, s)
}

type pairingCodeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

func (h *Handler) handlePairingCode(w http.ResponseWriter, r *http.Request) {
	var req pairingCodeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.PhoneNumber == "" {
		writeJSONError(w, http.StatusBadRequest, "phoneNumber is required")
		return
	}
	s, err := h.reg.Get(sessions.DefaultSessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	code, err := s.PairPhone(r.Context(), req.PhoneNumber)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pairingCode": code})
}

// --- plumbing ---

// decodeJSON enforces an application/json body and decodes it into dst.
// Writes the error response itself and returns false on failure.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength != 0 {
		ctype, err := contenttype.GetMediaType(r)
		if err != nil || !ctype.Matches(jsonMediaType) {
			writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
			return false
		}
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			h.log.WarnContext(r.Context(), "http.json.decode.fail", slog.String("err", err.Error()))
			return false
		}
	}
	return true
}

// writeError maps domain errors onto HTTP classifications without leaking
// transport internals beyond a human-readable message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var sendErr *transport.SendError
	switch {
	case errors.Is(err, sessions.ErrSessionNotFound):
		writeJSONError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, sessions.ErrSessionExists):
		writeJSONError(w, http.StatusConflict, "session already exists")
	case errors.Is(err, sessions.ErrNotConnected):
		writeJSONError(w, http.StatusConflict, "session not connected")
	case errors.Is(err, sessions.ErrSessionClosing):
		writeJSONError(w, http.StatusConflict, "session is closing")
	case errors.Is(err, sessions.ErrRegistryClosed):
		writeJSONError(w, http.StatusServiceUnavailable, "gateway is shutting down")
	case errors.As(err, &sendErr):
		writeJSONError(w, http.StatusBadGateway, "message delivery failed")
		h.log.WarnContext(r.Context(), "http.send.fail", slog.String("err", err.Error()))
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		h.log.ErrorContext(r.Context(), "http.internal.fail", slog.String("err", err.Error()))
	}
}

// writeJSONError emits the transport-level error shape:
// {"error":{"code":<httpStatus>,"message":"<reason>"}}.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
