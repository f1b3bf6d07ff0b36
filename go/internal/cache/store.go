// Package cache is the persisted cross-reload store: one small JSON
// document per room holding the participant's own identity, owner flag and
// the append-only history list. It is read once at startup and written on
// every history mutation.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kalee/two-rooms-client/go/internal/models"
)

// Record is the per-room cached document
type Record struct {
	PlayerID string                `json:"playerId,omitempty"`
	IsOwner  bool                  `json:"isOwner,omitempty"`
	History  []models.HistoryEvent `json:"history,omitempty"`
}

// Store reads and writes per-room records under a base directory
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created lazily
// on the first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// DefaultDir returns the default cache location under the user config dir
func DefaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "two-rooms-client")
}

// Load returns the cached record for a room. A missing file yields an empty
// record, not an error.
func (s *Store) Load(roomCode string) (*Record, error) {
	data, err := os.ReadFile(s.path(roomCode))
	if errors.Is(err, os.ErrNotExist) {
		return &Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read room cache: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// A corrupt cache is discarded rather than blocking startup.
		return &Record{}, nil
	}
	return &rec, nil
}

// Save writes the record atomically (temp file plus rename)
func (s *Store) Save(roomCode string, rec *Record) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal room cache: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "room-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write room cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(roomCode)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace room cache: %w", err)
	}
	return nil
}

// Delete removes the cached record for a room
func (s *Store) Delete(roomCode string) error {
	err := os.Remove(s.path(roomCode))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Store) path(roomCode string) string {
	return filepath.Join(s.dir, fmt.Sprintf("room-%s.json", roomCode))
}
