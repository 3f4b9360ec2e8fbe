// Package pipeline drives one sweep: fetch, short-circuit protected senders,
// classify and verify, decide, then persist each batch as a single unit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikey/inbox-sweeper/internal/core"
	"github.com/mikey/inbox-sweeper/internal/decision"
	"github.com/mikey/inbox-sweeper/internal/metrics"
	"github.com/mikey/inbox-sweeper/internal/records"
	"github.com/mikey/inbox-sweeper/internal/retry"
	"github.com/mikey/inbox-sweeper/internal/session"
	"go.uber.org/zap"
)

// Classifier turns a batch of items into verified classifications
type Classifier interface {
	Classify(ctx context.Context, items []core.EmailSummary) ([]core.Classification, error)
}

// Options configures the runner
type Options struct {
	ClassifyBatchSize int
	DeleteApproved    bool
	Retry             retry.Policy
	MetricsTextfile   string
}

// Collaborators are the external services the runner talks to. Deleter and
// Notifier may be nil.
type Collaborators struct {
	Fetcher    core.Fetcher
	Protector  core.DomainProtector
	Labels     core.LabelState
	Deleter    core.Deleter
	Notifier   core.Notifier
	Classifier Classifier
}

// BatchFailure describes a skipped batch
type BatchFailure struct {
	Stage    string
	EmailIDs []string
	Err      error
}

// Result is what a run produced. Incomplete is set when failed batches left
// items undecided; the session then stays active and ArchivePath is empty.
type Result struct {
	Summary     core.RunSummary
	RecordsPath string
	ReviewPath  string
	ArchivePath string
	Failures    []BatchFailure
	Deleted     int
	Incomplete  bool
}

// Runner processes the input stream against the loaded session
type Runner struct {
	collab   Collaborators
	engine   *decision.Engine
	sessions *session.Manager
	stats    *decision.Stats
	applier  *Applier
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	retryOpts []retry.Option
}

// NewRunner creates a runner
func NewRunner(
	collab Collaborators,
	engine *decision.Engine,
	sessions *session.Manager,
	opts Options,
	logger *zap.Logger,
) (*Runner, error) {
	if collab.Fetcher == nil || collab.Protector == nil || collab.Labels == nil || collab.Classifier == nil {
		return nil, errors.New("fetcher, protector, label state and classifier are required")
	}
	if opts.ClassifyBatchSize < 1 {
		return nil, fmt.Errorf("classify batch size must be at least 1, got %d", opts.ClassifyBatchSize)
	}
	r := &Runner{
		collab:   collab,
		engine:   engine,
		sessions: sessions,
		stats:    decision.NewStats(),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
	if collab.Deleter != nil {
		r.applier = NewApplier(collab.Deleter, opts.Retry, logger)
	}
	return r, nil
}

// SetRetryOptions appends options to the runner's own Resilient Calls
func (r *Runner) SetRetryOptions(opts ...retry.Option) {
	r.retryOpts = append(r.retryOpts, opts...)
	if r.applier != nil {
		r.applier.opts = append(r.applier.opts, opts...)
	}
}

// SetClock replaces the time source used for record timestamps
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// Stats returns the decision counters of this run
func (r *Runner) Stats() decision.Snapshot {
	return r.stats.Snapshot()
}

// Run processes the stream to the end and completes the session once every
// item is decided. The session must already be started or resumed. On error,
// cancellation or a failed batch the session stays active and every
// committed batch survives.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	var res Result

	st, ok := r.sessions.Current()
	if !ok {
		return res, core.ErrNoActiveSession
	}

	set, err := records.Open(r.sessions.Dir(), st.SessionID, r.logger)
	if err != nil {
		return res, err
	}
	if err := set.Reconcile(r.sessions.DecidedSet()); err != nil {
		return res, err
	}
	res.RecordsPath = set.Path()

	r.logger.Info("Starting sweep",
		zap.String("session_id", st.SessionID),
		zap.Int("already_decided", len(st.DecidedIDs)),
		zap.Int("batch_size", r.opts.ClassifyBatchSize),
		zap.Int("deletion_threshold", r.engine.Threshold()))

	queued := make(map[string]struct{})
	var pending []core.EmailSummary
	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		page, err := r.fetch(ctx, cursor)
		if err != nil {
			return res, fmt.Errorf("failed to fetch page: %w", err)
		}

		for _, it := range r.sessions.Filter(page.Items) {
			if it.ID == "" {
				r.logger.Warn("Skipping item without id", zap.String("sender", it.Sender))
				continue
			}
			if _, dup := queued[it.ID]; dup {
				continue
			}
			queued[it.ID] = struct{}{}
			pending = append(pending, it)
		}

		for len(pending) >= r.opts.ClassifyBatchSize {
			batch := pending[:r.opts.ClassifyBatchSize]
			pending = pending[r.opts.ClassifyBatchSize:]
			if err := r.runBatch(ctx, set, batch, &res); err != nil {
				return res, err
			}
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if len(pending) > 0 {
		if err := r.runBatch(ctx, set, pending, &res); err != nil {
			return res, err
		}
	}

	return r.finish(ctx, set, res)
}

// runBatch processes one batch. A batch failure is recorded in res and
// returns nil; only failures that must stop the run are returned.
func (r *Runner) runBatch(ctx context.Context, set *records.Set, batch []core.EmailSummary, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	defer func() { metrics.BatchDuration.Observe(time.Since(start).Seconds()) }()

	decisions, recs, err := r.decide(ctx, batch)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.recordFailure(batch, err, res)
		return nil
	}

	// records first: a crash before the session commit leaves orphans that
	// the next resume drops
	if err := set.Append(recs); err != nil {
		r.recordFailure(batch, &core.BatchError{Stage: "persist", EmailIDs: ids(batch), Err: err}, res)
		return nil
	}
	if err := r.sessions.Commit(decisions); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	for _, d := range decisions {
		r.stats.Record(d)
		observe(d)
		r.logger.Debug("Decided item", zap.String("decision", decision.Explain(d)))
	}
	r.logger.Info("Committed batch", zap.Int("items", len(decisions)), zap.Int("approved", countApproved(decisions)))

	if r.opts.DeleteApproved && r.applier != nil {
		var approved []records.Record
		for _, rec := range recs {
			if rec.Approved {
				approved = append(approved, rec)
			}
		}
		applied, err := r.applier.Apply(ctx, approved)
		res.Deleted += applied.Deleted
		if err != nil {
			return fmt.Errorf("failed to delete approved items: %w", err)
		}
	}
	return nil
}

// decide runs protection, classification and the gates for one batch
func (r *Runner) decide(ctx context.Context, batch []core.EmailSummary) ([]core.Decision, []records.Record, error) {
	protected := make([]decision.Fact, len(batch))
	classifications := make([]core.Classification, len(batch))
	var toClassify []core.EmailSummary
	var slots []int

	for i, it := range batch {
		p, err := r.collab.Protector.IsProtected(ctx, it.SenderDomain)
		if err != nil {
			r.logger.Warn("Protection lookup failed, gate will fail closed",
				zap.String("email_id", it.ID),
				zap.String("domain", it.SenderDomain),
				zap.Error(err))
		}
		protected[i] = decision.FactOf(p, err)

		if protected[i] == decision.Yes {
			classifications[i] = decision.PolicyClassification(it.ID)
			metrics.ShortCircuitTotal.Inc()
			continue
		}
		toClassify = append(toClassify, it)
		slots = append(slots, i)
	}

	if len(toClassify) > 0 {
		classified, err := r.collab.Classifier.Classify(ctx, toClassify)
		if err != nil {
			return nil, nil, err
		}
		if len(classified) != len(toClassify) {
			return nil, nil, &core.BatchError{
				Stage:    "classify",
				EmailIDs: ids(toClassify),
				Err:      fmt.Errorf("got %d classifications for %d items", len(classified), len(toClassify)),
			}
		}
		for j, c := range classified {
			classifications[slots[j]] = c
		}
	}

	for i, c := range classifications {
		if c.EmailID != batch[i].ID {
			return nil, nil, &core.BatchError{Stage: "classify", EmailIDs: ids(batch),
				Err: fmt.Errorf("classification for %s returned in the slot of %s", c.EmailID, batch[i].ID)}
		}
		if c.Verdict.Category == core.CategoryPromotional && !c.Verified {
			return nil, nil, &core.BatchError{Stage: "verify", EmailIDs: ids(batch),
				Err: fmt.Errorf("promotional item %s was not verified", c.EmailID)}
		}
	}

	now := r.now()
	decisions := make([]core.Decision, len(batch))
	recs := make([]records.Record, len(batch))
	for i, it := range batch {
		flagged, err := r.collab.Labels.HasManualFlag(ctx, it)
		if err != nil {
			r.logger.Warn("Manual flag lookup failed, gate will fail closed",
				zap.String("email_id", it.ID), zap.Error(err))
		}
		d := r.engine.Evaluate(decision.Input{
			Classification: classifications[i],
			Protected:      protected[i],
			ManualFlag:     decision.FactOf(flagged, err),
		})
		decisions[i] = d
		recs[i] = records.FromDecision(d, it, classifications[i].Origin, now)
	}
	return decisions, recs, nil
}

func (r *Runner) finish(ctx context.Context, set *records.Set, res Result) (Result, error) {
	st, _ := r.sessions.Current()

	if len(res.Failures) > 0 {
		res.Incomplete = true
		r.logger.Warn("Failed batches left items undecided, session stays active",
			zap.String("session_id", st.SessionID),
			zap.Int("failed_batches", len(res.Failures)))
	} else {
		archive, err := r.sessions.Complete()
		if err != nil {
			return res, err
		}
		res.ArchivePath = archive
	}

	review, err := set.WriteReviewQueue()
	if err != nil {
		r.logger.Error("Failed to write review queue", zap.Error(err))
	} else {
		res.ReviewPath = review
	}

	snap := r.stats.Snapshot()
	res.Summary = core.RunSummary{
		SessionID:    st.SessionID,
		StartedAt:    st.StartedAt,
		CompletedAt:  r.now().UTC(),
		Total:        len(st.DecidedIDs),
		Approved:     st.Counters.Approved,
		Denied:       st.Counters.Denied,
		Flagged:      st.Counters.Flagged,
		BatchFailed:  len(res.Failures),
		GateFailures: snap.GateFailures,
	}

	if r.collab.Notifier != nil {
		if err := r.collab.Notifier.Notify(ctx, res.Summary); err != nil {
			r.logger.Error("Failed to send run summary", zap.Error(err))
		}
	}
	if r.opts.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(r.opts.MetricsTextfile); err != nil {
			r.logger.Error("Failed to export metrics", zap.Error(err))
		}
	}

	r.logger.Info("Sweep finished",
		zap.String("session_id", st.SessionID),
		zap.Bool("complete", !res.Incomplete),
		zap.Int("total", res.Summary.Total),
		zap.Int("approved", res.Summary.Approved),
		zap.Int("denied", res.Summary.Denied),
		zap.Int("flagged", res.Summary.Flagged),
		zap.Int("failed_batches", res.Summary.BatchFailed))
	return res, nil
}

func (r *Runner) fetch(ctx context.Context, cursor string) (core.Page, error) {
	opts := append([]retry.Option{
		retry.WithNotify(func(n retry.Notification) {
			metrics.RetriesTotal.WithLabelValues("fetch").Inc()
			r.logger.Warn("Fetch failed, retrying",
				zap.String("cursor", cursor),
				zap.Int("attempt", n.Attempt),
				zap.Duration("delay", n.Delay),
				zap.Error(n.Err))
		}),
	}, r.retryOpts...)

	return retry.Do(ctx, r.opts.Retry, func(ctx context.Context) (core.Page, error) {
		return r.collab.Fetcher.FetchPage(ctx, cursor)
	}, opts...)
}

func (r *Runner) recordFailure(batch []core.EmailSummary, err error, res *Result) {
	stage := "classify"
	var be *core.BatchError
	if errors.As(err, &be) {
		stage = be.Stage
	}
	metrics.BatchFailuresTotal.WithLabelValues(stage).Inc()
	res.Failures = append(res.Failures, BatchFailure{Stage: stage, EmailIDs: ids(batch), Err: err})

	r.logger.Error("Batch failed, items left undecided",
		zap.String("stage", stage),
		zap.Strings("email_ids", ids(batch)),
		zap.Error(err))
}

func observe(d core.Decision) {
	switch {
	case d.Approved:
		metrics.DecisionsTotal.WithLabelValues("approved").Inc()
	case d.NeedsReview:
		metrics.DecisionsTotal.WithLabelValues("flagged").Inc()
	default:
		metrics.DecisionsTotal.WithLabelValues("denied").Inc()
	}
	for _, g := range d.Blocking {
		metrics.GateFailuresTotal.WithLabelValues(string(g)).Inc()
	}
}

func ids(items []core.EmailSummary) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func countApproved(ds []core.Decision) int {
	n := 0
	for _, d := range ds {
		if d.Approved {
			n++
		}
	}
	return n
}
