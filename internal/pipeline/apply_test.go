package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikey/inbox-sweeper/internal/core"
	"github.com/mikey/inbox-sweeper/internal/records"
	"github.com/mikey/inbox-sweeper/internal/retry"
	"go.uber.org/zap/zaptest"
)

// scriptedDeleter fails the ids in errs and counts calls per id
type scriptedDeleter struct {
	errs  map[string][]error
	calls map[string]int
}

func (d *scriptedDeleter) Delete(_ context.Context, id string) error {
	if d.calls == nil {
		d.calls = make(map[string]int)
	}
	n := d.calls[id]
	d.calls[id]++
	if queue := d.errs[id]; n < len(queue) {
		return queue[n]
	}
	return nil
}

func newApplier(t *testing.T, d core.Deleter) *Applier {
	return NewApplier(d, retry.DefaultPolicy, zaptest.NewLogger(t),
		retry.WithSleep(func(context.Context, time.Duration) error { return nil }))
}

func TestApplyDeletesOnlyApproved(t *testing.T) {
	d := &scriptedDeleter{errs: map[string][]error{
		"flaky":  {retry.MarkRetryable(errors.New("connection reset"))},
		"broken": {errors.New("no such message")},
	}}
	recs := []records.Record{
		{EmailID: "ok", Approved: true},
		{EmailID: "denied", Approved: false},
		{EmailID: "flaky", Approved: true},
		{EmailID: "broken", Approved: true},
	}

	res, err := newApplier(t, d).Apply(context.Background(), recs)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Deleted != 2 || res.Skipped != 1 || len(res.Failed) != 1 || res.Failed[0] != "broken" {
		t.Errorf("result = %+v", res)
	}
	if d.calls["denied"] != 0 {
		t.Error("denied record was deleted")
	}
	if d.calls["flaky"] != 2 {
		t.Errorf("flaky delete attempted %d times, want 2", d.calls["flaky"])
	}
	if d.calls["broken"] != 1 {
		t.Errorf("non-retryable failure attempted %d times, want 1", d.calls["broken"])
	}
}

func TestApplyStopsWhenDeleteUnsupported(t *testing.T) {
	d := &scriptedDeleter{errs: map[string][]error{"a": {core.ErrDeleteUnsupported}}}
	recs := []records.Record{{EmailID: "a", Approved: true}, {EmailID: "b", Approved: true}}

	_, err := newApplier(t, d).Apply(context.Background(), recs)
	if !errors.Is(err, core.ErrDeleteUnsupported) {
		t.Fatalf("err = %v, want ErrDeleteUnsupported", err)
	}
	if d.calls["b"] != 0 {
		t.Error("kept deleting after an unsupported delete")
	}
}
