package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikey/inbox-sweeper/internal/core"
	"go.uber.org/zap/zaptest"
)

func newTestManager(t *testing.T, dir string) *Manager {
	t.Helper()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	m := NewManager(store, zaptest.NewLogger(t))
	m.SetClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })
	return m
}

func decision(id string, approved, review bool) core.Decision {
	return core.Decision{EmailID: id, Approved: approved, NeedsReview: review}
}

func TestLifecycle(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)

	status, err := m.Status()
	if err != nil || status != StatusNew {
		t.Fatalf("Status = %v, %v; want new", status, err)
	}

	st, err := m.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if st.Status != StatusActive || st.SessionID == "" {
		t.Fatalf("unexpected state %+v", st)
	}

	if err := m.Commit([]core.Decision{decision("a", true, false), decision("b", false, true), decision("c", false, false)}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	cur, _ := m.Current()
	if cur.Counters != (Counters{Approved: 1, Denied: 2, Flagged: 1}) {
		t.Errorf("Counters = %+v", cur.Counters)
	}

	path, err := m.Complete()
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if path != filepath.Join(dir, "completed_state_"+st.SessionID+".json") {
		t.Errorf("archive path = %s", path)
	}
	if _, err := os.Stat(filepath.Join(dir, currentFile)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("active slot still present: %v", err)
	}

	if err := m.Commit([]core.Decision{decision("d", true, false)}); !errors.Is(err, core.ErrSessionComplete) {
		t.Errorf("Commit after Complete err = %v, want ErrSessionComplete", err)
	}
	if _, err := m.Complete(); !errors.Is(err, core.ErrSessionComplete) {
		t.Errorf("second Complete err = %v, want ErrSessionComplete", err)
	}
}

func TestResumeFiltersDecided(t *testing.T) {
	dir := t.TempDir()
	first := newTestManager(t, dir)
	st, err := first.Start()
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Commit([]core.Decision{decision("a", true, false), decision("b", false, false)}); err != nil {
		t.Fatal(err)
	}

	// simulate a new process
	second := newTestManager(t, dir)
	status, err := second.Status()
	if err != nil || status != StatusActive {
		t.Fatalf("Status = %v, %v; want active", status, err)
	}
	resumed, err := second.Resume("")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.SessionID != st.SessionID || len(resumed.DecidedIDs) != 2 {
		t.Fatalf("resumed = %+v", resumed)
	}

	items := []core.EmailSummary{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	left := second.Filter(items)
	if len(left) != 1 || left[0].ID != "c" {
		t.Errorf("Filter = %+v, want only c", left)
	}
	if err := second.Commit([]core.Decision{decision("a", true, false)}); err == nil {
		t.Error("re-committing a decided id must fail")
	}
}

func TestStartRefusesActiveSession(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	if _, err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Start(); !errors.Is(err, core.ErrSessionActive) {
		t.Errorf("second Start err = %v, want ErrSessionActive", err)
	}
}

func TestResumeArchivedSession(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)
	st, err := m.Start()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Complete(); err != nil {
		t.Fatal(err)
	}

	other := newTestManager(t, dir)
	if _, err := other.Resume(st.SessionID); !errors.Is(err, core.ErrSessionComplete) {
		t.Errorf("Resume(archived) err = %v, want ErrSessionComplete", err)
	}
	if _, err := other.Resume(""); !errors.Is(err, core.ErrNoActiveSession) {
		t.Errorf("Resume(\"\") err = %v, want ErrNoActiveSession", err)
	}
}

func TestCorruptStateIsFatal(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", `{"session_id": "abc", `},
		{"missing id", `{"status":"active","started_at":"2026-01-01T00:00:00Z","decided_ids":[],"counters":{}}`},
		{"duplicate ids", `{"session_id":"s","status":"active","started_at":"2026-01-01T00:00:00Z","decided_ids":["a","a"],"counters":{"approved":2}}`},
		{"counter mismatch", `{"session_id":"s","status":"active","started_at":"2026-01-01T00:00:00Z","decided_ids":["a"],"counters":{"approved":1,"denied":1}}`},
		{"flagged exceeds denied", `{"session_id":"s","status":"active","started_at":"2026-01-01T00:00:00Z","decided_ids":["a"],"counters":{"approved":1,"flagged":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, currentFile)
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			m := newTestManager(t, dir)

			if _, err := m.Status(); !errors.Is(err, core.ErrSessionCorrupt) {
				t.Errorf("Status err = %v, want ErrSessionCorrupt", err)
			}
			if _, err := m.Resume(""); !errors.Is(err, core.ErrSessionCorrupt) {
				t.Errorf("Resume err = %v, want ErrSessionCorrupt", err)
			}
			if _, err := m.Start(); !errors.Is(err, core.ErrSessionCorrupt) {
				t.Errorf("Start err = %v, want ErrSessionCorrupt", err)
			}

			data, err := os.ReadFile(path)
			if err != nil || string(data) != tt.content {
				t.Error("corrupt file must be left untouched")
			}
		})
	}
}

func TestDiscardThenRestart(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)
	old, err := m.Start()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Commit([]core.Decision{decision("a", true, false)}); err != nil {
		t.Fatal(err)
	}

	path, err := m.Discard()
	if err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if path != filepath.Join(dir, "discarded_state_"+old.SessionID+".json") {
		t.Errorf("discard path = %s", path)
	}

	fresh, err := m.Start()
	if err != nil {
		t.Fatalf("Start after discard: %v", err)
	}
	if fresh.SessionID == old.SessionID || len(fresh.DecidedIDs) != 0 {
		t.Errorf("fresh session = %+v", fresh)
	}
	if m.IsDecided("a") {
		t.Error("discarded decisions leaked into the new session")
	}
}

func TestDiscardUnreadableState(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, currentFile), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	m := newTestManager(t, dir)

	if _, err := m.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if status, err := m.Status(); err != nil || status != StatusNew {
		t.Errorf("Status = %v, %v; want new", status, err)
	}
}

func TestInspectDoesNotMutate(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)
	if _, err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Commit([]core.Decision{decision("a", false, true)}); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(filepath.Join(dir, currentFile))
	if err != nil {
		t.Fatal(err)
	}

	other := newTestManager(t, dir)
	st, err := other.Inspect()
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if st.Counters.Flagged != 1 || len(st.DecidedIDs) != 1 {
		t.Errorf("Inspect = %+v", st)
	}

	after, _ := os.ReadFile(filepath.Join(dir, currentFile))
	if string(before) != string(after) {
		t.Error("Inspect modified the state file")
	}
	if _, ok := other.Current(); ok {
		t.Error("Inspect must not load the session for mutation")
	}
}

func TestCommitIsAllOrNothing(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	if _, err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Commit([]core.Decision{decision("a", true, false)}); err != nil {
		t.Fatal(err)
	}

	err := m.Commit([]core.Decision{decision("b", true, false), decision("a", false, false)})
	if err == nil {
		t.Fatal("expected error for batch containing a decided id")
	}
	if m.IsDecided("b") {
		t.Error("partial batch leaked into the decided-set")
	}
	cur, _ := m.Current()
	if cur.Counters.Approved != 1 || len(cur.DecidedIDs) != 1 {
		t.Errorf("state advanced on failed commit: %+v", cur)
	}
}
