// Package session tracks which items a run has already decided so an
// interrupted run can resume without deciding anything twice.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/inbox-sweeper/internal/core"
	"go.uber.org/zap"
)

// Manager drives the NEW -> ACTIVE -> COMPLETE lifecycle over a Store
type Manager struct {
	store  *Store
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	state   *State
	decided map[string]struct{}
}

// NewManager creates a manager with no session loaded
func NewManager(store *Store, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Dir returns the directory session files live in
func (m *Manager) Dir() string {
	return m.store.Dir()
}

// Status reports what the active slot holds. A corrupt file is an error.
func (m *Manager) Status() (Status, error) {
	st, err := m.store.LoadCurrent()
	if err != nil {
		return "", err
	}
	if st == nil {
		return StatusNew, nil
	}
	return st.Status, nil
}

// Inspect returns the saved session without changing anything
func (m *Manager) Inspect() (State, error) {
	st, err := m.store.LoadCurrent()
	if err != nil {
		return State{}, err
	}
	if st == nil {
		return State{}, core.ErrNoActiveSession
	}
	return *st.clone(), nil
}

// Start begins a fresh session. It refuses to overwrite an active one.
func (m *Manager) Start() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.store.LoadCurrent()
	if err != nil {
		return State{}, err
	}
	if existing != nil {
		if existing.Status == StatusActive {
			return State{}, fmt.Errorf("%w: %s", core.ErrSessionActive, existing.SessionID)
		}
		// completed but not yet archived
		if _, err := m.store.Archive(existing.SessionID); err != nil {
			return State{}, err
		}
	}

	now := m.now().UTC()
	st := &State{
		SessionID:   uuid.NewString(),
		Status:      StatusActive,
		StartedAt:   now,
		LastUpdated: now,
		DecidedIDs:  []string{},
	}
	if err := m.store.Save(st); err != nil {
		return State{}, err
	}
	m.load(st)

	m.logger.Info("Started session", zap.String("session_id", st.SessionID))
	return *st.clone(), nil
}

// Resume loads the active session. A non-empty sessionID must match it;
// resuming an archived session returns core.ErrSessionComplete.
func (m *Manager) Resume(sessionID string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID != "" && m.store.IsArchived(sessionID) {
		return State{}, fmt.Errorf("%w: %s", core.ErrSessionComplete, sessionID)
	}

	st, err := m.store.LoadCurrent()
	if err != nil {
		return State{}, err
	}
	if st == nil {
		return State{}, core.ErrNoActiveSession
	}
	if sessionID != "" && st.SessionID != sessionID {
		return State{}, fmt.Errorf("%w: saved session is %s, not %s", core.ErrNoActiveSession, st.SessionID, sessionID)
	}
	if st.Status == StatusComplete {
		return State{}, fmt.Errorf("%w: %s", core.ErrSessionComplete, st.SessionID)
	}
	m.load(st)

	m.logger.Info("Resumed session",
		zap.String("session_id", st.SessionID),
		zap.Int("decided", len(st.DecidedIDs)),
		zap.Time("started_at", st.StartedAt))
	return *st.clone(), nil
}

// Discard sets the active slot aside so a new session can start
func (m *Manager) Discard() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var id string
	st, err := m.store.LoadCurrent()
	switch {
	case errors.Is(err, core.ErrSessionCorrupt):
		m.logger.Warn("Discarding unreadable session state", zap.Error(err))
	case err != nil:
		return "", err
	case st == nil:
		return "", core.ErrNoActiveSession
	default:
		id = st.SessionID
	}

	path, err := m.store.Discard(id)
	if err != nil {
		return "", err
	}
	m.state = nil
	m.decided = nil

	m.logger.Info("Discarded session", zap.String("session_id", id), zap.String("path", path))
	return path, nil
}

// Commit appends one batch of decisions as a single unit. Either all ids
// become decided and the counters advance, or nothing changes.
func (m *Manager) Commit(decisions []core.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.activeLocked(); err != nil {
		return err
	}
	if len(decisions) == 0 {
		return nil
	}

	next := m.state.clone()
	batch := make(map[string]struct{}, len(decisions))
	for _, d := range decisions {
		if _, done := m.decided[d.EmailID]; done {
			return fmt.Errorf("item %s already decided in session %s", d.EmailID, next.SessionID)
		}
		if _, dup := batch[d.EmailID]; dup {
			return fmt.Errorf("item %s appears twice in one batch", d.EmailID)
		}
		batch[d.EmailID] = struct{}{}

		next.DecidedIDs = append(next.DecidedIDs, d.EmailID)
		if d.Approved {
			next.Counters.Approved++
		} else {
			next.Counters.Denied++
			if d.NeedsReview {
				next.Counters.Flagged++
			}
		}
	}
	next.LastUpdated = m.now().UTC()

	if err := m.store.Save(next); err != nil {
		return err
	}

	m.state = next
	for id := range batch {
		m.decided[id] = struct{}{}
	}
	return nil
}

// Complete marks the session finished and archives it
func (m *Manager) Complete() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.activeLocked(); err != nil {
		return "", err
	}

	next := m.state.clone()
	now := m.now().UTC()
	next.Status = StatusComplete
	next.LastUpdated = now
	next.CompletedAt = &now

	if err := m.store.Save(next); err != nil {
		return "", err
	}
	m.state = next

	path, err := m.store.Archive(next.SessionID)
	if err != nil {
		return "", err
	}

	m.logger.Info("Completed session",
		zap.String("session_id", next.SessionID),
		zap.Int("decided", len(next.DecidedIDs)),
		zap.String("archive", path))
	return path, nil
}

// IsDecided reports whether the current session already decided the id
func (m *Manager) IsDecided(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.decided[id]
	return ok
}

// Filter drops items the current session already decided
func (m *Manager) Filter(items []core.EmailSummary) []core.EmailSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]core.EmailSummary, 0, len(items))
	for _, it := range items {
		if _, ok := m.decided[it.ID]; !ok {
			out = append(out, it)
		}
	}
	return out
}

// Current returns a copy of the loaded state
func (m *Manager) Current() (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return State{}, false
	}
	return *m.state.clone(), true
}

// DecidedSet returns a copy of the decided ids
func (m *Manager) DecidedSet() map[string]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.decided))
	for id := range m.decided {
		out[id] = struct{}{}
	}
	return out
}

func (m *Manager) activeLocked() error {
	if m.state == nil {
		return core.ErrNoActiveSession
	}
	if m.state.Status == StatusComplete {
		return fmt.Errorf("%w: %s", core.ErrSessionComplete, m.state.SessionID)
	}
	return nil
}

func (m *Manager) load(st *State) {
	m.state = st
	m.decided = make(map[string]struct{}, len(st.DecidedIDs))
	for _, id := range st.DecidedIDs {
		m.decided[id] = struct{}{}
	}
}
