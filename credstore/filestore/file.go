// Package filestore persists session credentials as one JSON blob per
// session under a base directory. Saves write to a temp file and rename so
// a crash mid-save never truncates working credentials.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hermod-chat/hermod/credstore"
)

// ErrInvalidSessionID rejects ids that cannot be used as a file stem.
var ErrInvalidSessionID = errors.New("session id not usable as file name")

// Store writes credentials under dir, creating it on first use.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("credentials directory required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credentials directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	path, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, credstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials for %s: %w", sessionID, err)
	}
	return blob, nil
}

func (s *Store) Save(ctx context.Context, sessionID string, creds []byte) error {
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+sessionID+".*")
	if err != nil {
		return fmt.Errorf("stage credentials for %s: %w", sessionID, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(creds); err != nil {
		tmp.Close()
		return fmt.Errorf("write credentials for %s: %w", sessionID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write credentials for %s: %w", sessionID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("commit credentials for %s: %w", sessionID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete credentials for %s: %w", sessionID, err)
	}
	return nil
}

// path validates the id and maps it to <dir>/<id>.json. Ids chosen by API
// callers must not escape the base directory.
func (s *Store) path(sessionID string) (string, error) {
	if sessionID == "" ||
		strings.ContainsAny(sessionID, "/\\") ||
		sessionID == "." || sessionID == ".." ||
		strings.HasPrefix(sessionID, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	return filepath.Join(s.dir, sessionID+".json"), nil
}

var _ credstore.Store = (*Store)(nil)
