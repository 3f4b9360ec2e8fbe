package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mikey/inbox-sweeper/internal/utils"
)

const currentFile = "current_state.json"

// Store keeps session files in one directory: the active slot plus
// archived and discarded sessions.
type Store struct {
	dir string
}

// NewStore creates the directory if needed
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the session directory
func (s *Store) Dir() string {
	return s.dir
}

// CurrentPath is the active slot
func (s *Store) CurrentPath() string {
	return filepath.Join(s.dir, currentFile)
}

// ArchivePath is where a completed session is kept
func (s *Store) ArchivePath(sessionID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("completed_state_%s.json", sessionID))
}

// DiscardPath is where a discarded session is kept
func (s *Store) DiscardPath(sessionID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("discarded_state_%s.json", sessionID))
}

// LoadCurrent reads the active slot. A missing file returns nil, nil.
func (s *Store) LoadCurrent() (*State, error) {
	data, err := os.ReadFile(s.CurrentPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}
	return decodeState(data)
}

// LoadArchived reads a completed session
func (s *Store) LoadArchived(sessionID string) (*State, error) {
	data, err := os.ReadFile(s.ArchivePath(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to read archived session: %w", err)
	}
	return decodeState(data)
}

// IsArchived reports whether a completed archive exists for the id
func (s *Store) IsArchived(sessionID string) bool {
	_, err := os.Stat(s.ArchivePath(sessionID))
	return err == nil
}

// Save atomically replaces the active slot
func (s *Store) Save(st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}
	if err := utils.WriteFileAtomic(s.CurrentPath(), data, 0o600); err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}
	return nil
}

// Archive moves a completed active slot to its archive name
func (s *Store) Archive(sessionID string) (string, error) {
	dst := s.ArchivePath(sessionID)
	if err := os.Rename(s.CurrentPath(), dst); err != nil {
		return "", fmt.Errorf("failed to archive session: %w", err)
	}
	return dst, nil
}

// Discard moves the active slot aside without reading it, so an unreadable
// file can still be set aside on operator request.
func (s *Store) Discard(sessionID string) (string, error) {
	if sessionID == "" {
		sessionID = "unreadable_" + time.Now().UTC().Format("20060102T150405Z")
	}
	dst := s.DiscardPath(sessionID)
	if err := os.Rename(s.CurrentPath(), dst); err != nil {
		return "", fmt.Errorf("failed to discard session: %w", err)
	}
	return dst, nil
}
