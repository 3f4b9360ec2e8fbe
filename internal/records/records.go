// Package records keeps the per-session decision record file that downstream
// deletion and review read from.
package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mikey/inbox-sweeper/internal/core"
	"github.com/mikey/inbox-sweeper/internal/utils"
	"go.uber.org/zap"
)

// Record is the persisted outcome for one item
type Record struct {
	EmailID           string               `json:"email_id"`
	Approved          bool                 `json:"approved"`
	SatisfiedGates    []core.Gate          `json:"satisfied_gates"`
	BlockingGates     []core.Gate          `json:"blocking_gates"`
	ConfidenceTier    core.Tier            `json:"confidence_tier"`
	Category          string               `json:"category"`
	Confidence        int                  `json:"confidence"`
	Verified          bool                 `json:"verified"`
	CorrectionApplied bool                 `json:"correction_applied"`
	NeedsReview       bool                 `json:"needs_review"`
	Reasons           map[core.Gate]string `json:"reasons"`
	Sender            string               `json:"sender,omitempty"`
	Subject           string               `json:"subject,omitempty"`
	Origin            core.Origin          `json:"origin,omitempty"`
	DecidedAt         time.Time            `json:"decided_at"`
}

// FromDecision builds a record from a decision and the item it was made for
func FromDecision(d core.Decision, item core.EmailSummary, origin core.Origin, at time.Time) Record {
	reasons := make(map[core.Gate]string, len(d.Reasons))
	for g, r := range d.Reasons {
		reasons[g] = r
	}
	return Record{
		EmailID:           d.EmailID,
		Approved:          d.Approved,
		SatisfiedGates:    append([]core.Gate{}, d.Satisfied...),
		BlockingGates:     append([]core.Gate{}, d.Blocking...),
		ConfidenceTier:    d.Tier,
		Category:          d.Category.String(),
		Confidence:        d.Confidence,
		Verified:          d.Verified,
		CorrectionApplied: d.Corrected,
		NeedsReview:       d.NeedsReview,
		Reasons:           reasons,
		Sender:            item.Sender,
		Subject:           item.Subject,
		Origin:            origin,
		DecidedAt:         at.UTC(),
	}
}

// Set is the record file of one session, kept ordered by first write. A Set
// is not safe for concurrent use.
type Set struct {
	dir       string
	sessionID string
	logger    *zap.Logger

	order []string
	byID  map[string]Record
}

// FilePath returns the record file name for a session
func FilePath(dir, sessionID string) string {
	return filepath.Join(dir, fmt.Sprintf("decisions_%s.json", sessionID))
}

// ReviewQueuePath returns the review queue file name for a session
func ReviewQueuePath(dir, sessionID string) string {
	return filepath.Join(dir, fmt.Sprintf("review_queue_%s.json", sessionID))
}

// Open loads the record file for a session, or starts an empty set
func Open(dir, sessionID string, logger *zap.Logger) (*Set, error) {
	s := &Set{
		dir:       dir,
		sessionID: sessionID,
		logger:    logger,
		byID:      make(map[string]Record),
	}

	recs, err := ReadFile(FilePath(dir, sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if _, dup := s.byID[r.EmailID]; dup {
			return nil, fmt.Errorf("%w: record %s appears twice", core.ErrSessionCorrupt, r.EmailID)
		}
		s.order = append(s.order, r.EmailID)
		s.byID[r.EmailID] = r
	}
	return s, nil
}

// ReadFile decodes a record file
func ReadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("%w: record file %s: %v", core.ErrSessionCorrupt, path, err)
	}
	return recs, nil
}

// Path returns the record file of this set
func (s *Set) Path() string {
	return FilePath(s.dir, s.sessionID)
}

// Len returns the number of records
func (s *Set) Len() int {
	return len(s.order)
}

// Get returns the record for an id
func (s *Set) Get(id string) (Record, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// Append upserts records and rewrites the file. A rewrite of an id replaces
// the old record in place.
func (s *Set) Append(recs []Record) error {
	if len(recs) == 0 {
		return nil
	}

	order := append([]string(nil), s.order...)
	byID := make(map[string]Record, len(s.byID)+len(recs))
	for id, r := range s.byID {
		byID[id] = r
	}
	for _, r := range recs {
		if _, ok := byID[r.EmailID]; !ok {
			order = append(order, r.EmailID)
		}
		byID[r.EmailID] = r
	}

	if err := s.write(order, byID); err != nil {
		return err
	}
	s.order = order
	s.byID = byID
	return nil
}

// Reconcile aligns the record file with the session decided-set. Records
// written for a batch whose session commit never landed are dropped; a
// decided id with no record means the output can't be trusted.
func (s *Set) Reconcile(decided map[string]struct{}) error {
	for id := range decided {
		if _, ok := s.byID[id]; !ok {
			return fmt.Errorf("%w: decided item %s has no record", core.ErrSessionCorrupt, id)
		}
	}

	var orphans []string
	order := make([]string, 0, len(s.order))
	for _, id := range s.order {
		if _, ok := decided[id]; ok {
			order = append(order, id)
		} else {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) == 0 {
		return nil
	}

	byID := make(map[string]Record, len(order))
	for _, id := range order {
		byID[id] = s.byID[id]
	}
	if err := s.write(order, byID); err != nil {
		return err
	}
	s.order = order
	s.byID = byID

	s.logger.Warn("Dropped records of an uncommitted batch",
		zap.String("session_id", s.sessionID),
		zap.Strings("email_ids", orphans))
	return nil
}

// All returns the records in write order
func (s *Set) All() []Record {
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Approved returns the records approved for deletion
func (s *Set) Approved() []Record {
	return filter(s.All(), func(r Record) bool { return r.Approved })
}

// ReviewQueue returns the denied records routed to manual review, highest
// confidence first.
func (s *Set) ReviewQueue() []Record {
	q := filter(s.All(), func(r Record) bool { return r.NeedsReview })
	sort.SliceStable(q, func(i, j int) bool { return q[i].Confidence > q[j].Confidence })
	return q
}

// WriteReviewQueue writes the review queue next to the record file
func (s *Set) WriteReviewQueue() (string, error) {
	q := s.ReviewQueue()
	if q == nil {
		q = []Record{}
	}
	data, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode review queue: %w", err)
	}
	path := ReviewQueuePath(s.dir, s.sessionID)
	if err := utils.WriteFileAtomic(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write review queue: %w", err)
	}
	return path, nil
}

func (s *Set) write(order []string, byID map[string]Record) error {
	out := make([]Record, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode decision records: %w", err)
	}
	if err := utils.WriteFileAtomic(s.Path(), data, 0o600); err != nil {
		return fmt.Errorf("failed to write decision records: %w", err)
	}
	return nil
}

func filter(recs []Record, keep func(Record) bool) []Record {
	var out []Record
	for _, r := range recs {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
