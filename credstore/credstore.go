// Package credstore abstracts persistence of per-session credential
// material. The gateway treats credentials as opaque bytes: drivers emit
// them on EventCredsChanged and receive them back verbatim on the next dial.
//
// Implementations
//
//	memorystore : in-memory reference used for tests and throwaway sessions
//	filestore   : one JSON blob per session on disk, atomic replace on save
package credstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no credentials exist for a session.
// A fresh session dials with nil credentials, so callers usually treat this
// as "start a new pairing" rather than a failure.
var ErrNotFound = errors.New("credentials not found")

// Store persists credential blobs keyed by session id. Implementations MUST
// be safe for concurrent use; saves for one session may arrive from that
// session's event loop while another session loads.
type Store interface {
	Load(ctx context.Context, sessionID string) ([]byte, error)
	Save(ctx context.Context, sessionID string, creds []byte) error
	Delete(ctx context.Context, sessionID string) error
}
