package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mikey/inbox-sweeper/internal/utils"
)

// ReviewAction is a reviewer's answer for one queued record
type ReviewAction string

const (
	ReviewApprove ReviewAction = "approve"
	ReviewReject  ReviewAction = "reject"
	ReviewSkip    ReviewAction = "skip"
)

// ReviewDecision is what a reviewer chose for one queued record. It lives in
// its own file; the engine's decision records are never rewritten by review.
type ReviewDecision struct {
	EmailID    string       `json:"email_id"`
	Action     ReviewAction `json:"action"`
	Sender     string       `json:"sender,omitempty"`
	Subject    string       `json:"subject,omitempty"`
	ReviewedAt time.Time    `json:"reviewed_at"`
}

// ReviewDecisionsPath returns the review decision file name for a session
func ReviewDecisionsPath(dir, sessionID string) string {
	return filepath.Join(dir, fmt.Sprintf("review_decisions_%s.json", sessionID))
}

// LoadReviewDecisions reads the review decisions of a session. A missing
// file is an empty result.
func LoadReviewDecisions(dir, sessionID string) ([]ReviewDecision, error) {
	path := ReviewDecisionsPath(dir, sessionID)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var decs []ReviewDecision
	if err := json.Unmarshal(data, &decs); err != nil {
		return nil, fmt.Errorf("failed to decode review decisions %s: %w", path, err)
	}
	return decs, nil
}

// SaveReviewDecisions merges decs into the session's review decision file.
// A later decision for an id replaces the earlier one. Returns the file path.
func SaveReviewDecisions(dir, sessionID string, decs []ReviewDecision) (string, error) {
	existing, err := LoadReviewDecisions(dir, sessionID)
	if err != nil {
		return "", err
	}

	pos := make(map[string]int, len(existing))
	for i, d := range existing {
		pos[d.EmailID] = i
	}
	for _, d := range decs {
		if i, ok := pos[d.EmailID]; ok {
			existing[i] = d
			continue
		}
		pos[d.EmailID] = len(existing)
		existing = append(existing, d)
	}

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode review decisions: %w", err)
	}
	path := ReviewDecisionsPath(dir, sessionID)
	if err := utils.WriteFileAtomic(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write review decisions: %w", err)
	}
	return path, nil
}

// Settled returns the ids a reviewer approved or rejected. Skipped ids stay
// open for the next review.
func Settled(decs []ReviewDecision) map[string]ReviewAction {
	out := make(map[string]ReviewAction, len(decs))
	for _, d := range decs {
		if d.Action == ReviewApprove || d.Action == ReviewReject {
			out[d.EmailID] = d.Action
		}
	}
	return out
}

// ReviewerApproved returns copies of the queued records a reviewer approved,
// marked approved so an Applier deletes them. Ids not in queue are ignored.
func ReviewerApproved(queue []Record, decs []ReviewDecision) []Record {
	settled := Settled(decs)
	var out []Record
	for _, r := range queue {
		if !r.NeedsReview || settled[r.EmailID] != ReviewApprove {
			continue
		}
		r.Approved = true
		out = append(out, r)
	}
	return out
}
