package records

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/mikey/inbox-sweeper/internal/core"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

var decidedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(id string, approved, review bool, confidence int) Record {
	return FromDecision(core.Decision{
		EmailID:     id,
		Approved:    approved,
		NeedsReview: review,
		Category:    core.CategoryPromotional,
		Confidence:  confidence,
		Tier:        core.TierFor(confidence),
		Reasons:     map[core.Gate]string{core.GateCategory: "category is PROMOTIONAL"},
	}, core.EmailSummary{ID: id, Sender: "deals@shop.example", Subject: "Sale"}, core.OriginVerifier, decidedAt)
}

func TestAppendPersistsAndUpserts(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "s1", zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Append([]Record{rec("a", true, false, 95), rec("b", false, true, 80)}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append([]Record{rec("a", false, false, 60)}); err != nil {
		t.Fatalf("Append upsert: %v", err)
	}

	reopened, err := Open(dir, "s1", zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	all := reopened.All()
	if len(all) != 2 || all[0].EmailID != "a" || all[1].EmailID != "b" {
		t.Fatalf("records = %+v", all)
	}
	if all[0].Approved || all[0].Confidence != 60 {
		t.Errorf("upsert did not replace record: %+v", all[0])
	}
	if all[1].Category != "PROMOTIONAL" || all[1].ConfidenceTier != core.TierMedium {
		t.Errorf("record b = %+v", all[1])
	}
}

func TestReconcileDropsOrphans(t *testing.T) {
	dir := t.TempDir()
	obsCore, logs := observer.New(zap.WarnLevel)
	s, err := Open(dir, "s1", zap.New(obsCore))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append([]Record{rec("a", true, false, 95), rec("b", false, false, 40), rec("c", true, false, 99)}); err != nil {
		t.Fatal(err)
	}

	decided := map[string]struct{}{"a": {}}
	if err := s.Reconcile(decided); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}

	onDisk, err := ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(onDisk) != 1 || onDisk[0].EmailID != "a" {
		t.Errorf("file = %+v", onDisk)
	}

	entries := logs.FilterMessage("Dropped records of an uncommitted batch").All()
	if len(entries) != 1 {
		t.Fatalf("got %d warnings, want 1", len(entries))
	}
	if dropped, _ := entries[0].ContextMap()["email_ids"].([]interface{}); len(dropped) != 2 {
		t.Errorf("dropped ids = %v", entries[0].ContextMap()["email_ids"])
	}
}

func TestReconcileMissingRecordIsCorrupt(t *testing.T) {
	s, err := Open(t.TempDir(), "s1", zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	err = s.Reconcile(map[string]struct{}{"ghost": {}})
	if !errors.Is(err, core.ErrSessionCorrupt) {
		t.Errorf("err = %v, want ErrSessionCorrupt", err)
	}
}

func TestReviewQueue(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "s1", zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append([]Record{rec("a", false, true, 75), rec("b", true, false, 95), rec("c", false, true, 88)}); err != nil {
		t.Fatal(err)
	}

	q := s.ReviewQueue()
	if len(q) != 2 || q[0].EmailID != "c" || q[1].EmailID != "a" {
		t.Errorf("ReviewQueue = %+v", q)
	}
	if got := s.Approved(); len(got) != 1 || got[0].EmailID != "b" {
		t.Errorf("Approved = %+v", got)
	}

	path, err := s.WriteReviewQueue()
	if err != nil {
		t.Fatalf("WriteReviewQueue: %v", err)
	}
	onDisk, err := ReadFile(path)
	if err != nil || len(onDisk) != 2 {
		t.Errorf("review file = %+v, %v", onDisk, err)
	}
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(FilePath(dir, "s1"), []byte("[{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(dir, "s1", zaptest.NewLogger(t)); !errors.Is(err, core.ErrSessionCorrupt) {
		t.Errorf("err = %v, want ErrSessionCorrupt", err)
	}
}
