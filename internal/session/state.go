package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mikey/inbox-sweeper/internal/core"
)

// Status is the lifecycle position of a session
type Status string

const (
	StatusNew      Status = "new"
	StatusActive   Status = "active"
	StatusComplete Status = "complete"
)

// Counters are advanced together with the decided-set
type Counters struct {
	Approved int `json:"approved"`
	Denied   int `json:"denied"`
	Flagged  int `json:"flagged"`
}

// State is the persisted form of a session
type State struct {
	SessionID   string     `json:"session_id"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	LastUpdated time.Time  `json:"last_updated"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DecidedIDs  []string   `json:"decided_ids"`
	Counters    Counters   `json:"counters"`
}

func (s *State) clone() *State {
	c := *s
	c.DecidedIDs = append([]string(nil), s.DecidedIDs...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// validate checks the invariants a persisted state must hold. A failure means
// the file cannot be trusted and is never repaired.
func (s *State) validate() error {
	if s.SessionID == "" {
		return fmt.Errorf("%w: missing session_id", core.ErrSessionCorrupt)
	}
	if s.Status != StatusActive && s.Status != StatusComplete {
		return fmt.Errorf("%w: unexpected status %q", core.ErrSessionCorrupt, s.Status)
	}
	if s.StartedAt.IsZero() {
		return fmt.Errorf("%w: missing started_at", core.ErrSessionCorrupt)
	}
	seen := make(map[string]struct{}, len(s.DecidedIDs))
	for _, id := range s.DecidedIDs {
		if id == "" {
			return fmt.Errorf("%w: empty decided id", core.ErrSessionCorrupt)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: id %s decided twice", core.ErrSessionCorrupt, id)
		}
		seen[id] = struct{}{}
	}
	c := s.Counters
	if c.Approved < 0 || c.Denied < 0 || c.Flagged < 0 {
		return fmt.Errorf("%w: negative counters", core.ErrSessionCorrupt)
	}
	if c.Approved+c.Denied != len(s.DecidedIDs) {
		return fmt.Errorf("%w: counters total %d but %d ids decided",
			core.ErrSessionCorrupt, c.Approved+c.Denied, len(s.DecidedIDs))
	}
	if c.Flagged > c.Denied {
		return fmt.Errorf("%w: %d flagged exceeds %d denied", core.ErrSessionCorrupt, c.Flagged, c.Denied)
	}
	return nil
}

func decodeState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSessionCorrupt, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
