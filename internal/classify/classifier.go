// Package classify runs the two-pass classification protocol: a primary
// model pass over a batch, then a mandatory verification pass over every
// promotional or low-confidence result.
package classify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikey/inbox-sweeper/internal/core"
	"github.com/mikey/inbox-sweeper/internal/metrics"
	"github.com/mikey/inbox-sweeper/internal/retry"
	"github.com/mikey/inbox-sweeper/internal/utils"
	"go.uber.org/zap"
)

// Options configures the classifier
type Options struct {
	VerificationThreshold int
	VerifyBatchSize       int
	MaxPreviewSize        int
	KeywordThreshold      int
	HintTTL               time.Duration
	Retry                 retry.Policy
}

// Classifier classifies and verifies batches through an LLMClient
type Classifier struct {
	llm       core.LLMClient
	cache     core.SenderCache
	keywords  *KeywordMatcher
	tp        *utils.TextProcessor
	opts      Options
	logger    *zap.Logger
	retryOpts []retry.Option
}

// NewClassifier creates a classifier. cache may be nil to disable sender hints.
func NewClassifier(
	llm core.LLMClient,
	cache core.SenderCache,
	tp *utils.TextProcessor,
	opts Options,
	logger *zap.Logger,
) (*Classifier, error) {
	if opts.VerifyBatchSize < 1 {
		return nil, fmt.Errorf("verify batch size must be at least 1, got %d", opts.VerifyBatchSize)
	}
	if opts.KeywordThreshold <= 0 {
		opts.KeywordThreshold = DefaultKeywordThreshold
	}
	return &Classifier{
		llm:      llm,
		cache:    cache,
		keywords: NewKeywordMatcher(tp),
		tp:       tp,
		opts:     opts,
		logger:   logger,
	}, nil
}

// SetRetryOptions appends options to every Resilient Call made by the classifier
func (c *Classifier) SetRetryOptions(opts ...retry.Option) {
	c.retryOpts = append(c.retryOpts, opts...)
}

// NeedsVerification reports whether a first-pass verdict must go through the verifier
func (c *Classifier) NeedsVerification(v core.Verdict) bool {
	return v.Category == core.CategoryPromotional || v.Confidence < c.opts.VerificationThreshold
}

// Classify runs both passes over one batch. On failure it returns a
// *core.BatchError and no classifications.
func (c *Classifier) Classify(ctx context.Context, items []core.EmailSummary) ([]core.Classification, error) {
	if len(items) == 0 {
		return nil, nil
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}

	contexts := c.prepare(ctx, items)

	reply, err := c.complete(ctx, "classify", buildClassifyPrompt(contexts, c.opts.KeywordThreshold))
	if err != nil {
		return nil, &core.BatchError{Stage: "classify", EmailIDs: ids, Err: err}
	}
	parsed, err := parseClassifications(reply, len(items))
	if err != nil {
		return nil, &core.BatchError{Stage: "classify", EmailIDs: ids, Err: err}
	}

	results := make([]core.Classification, len(items))
	var pending []int
	for i, pe := range parsed {
		results[i] = core.Classification{
			EmailID:  items[i].ID,
			Verdict:  pe.verdict,
			Reason:   pe.reason,
			Language: pe.language,
			Origin:   core.OriginClassifier,
		}
		if c.NeedsVerification(pe.verdict) {
			pending = append(pending, i)
		}
	}

	if err := c.verify(ctx, contexts, results, pending); err != nil {
		return nil, &core.BatchError{Stage: "verify", EmailIDs: ids, Err: err}
	}

	c.remember(ctx, items, results)
	return results, nil
}

func (c *Classifier) verify(ctx context.Context, contexts []itemContext, results []core.Classification, pending []int) error {
	for start := 0; start < len(pending); start += c.opts.VerifyBatchSize {
		end := min(start+c.opts.VerifyBatchSize, len(pending))
		chunk := pending[start:end]

		entries := make([]verifyEntry, len(chunk))
		for local, gi := range chunk {
			entries[local] = verifyEntry{item: contexts[gi].item, cls: results[gi]}
		}

		reply, err := c.complete(ctx, "verify", buildVerifyPrompt(entries))
		if err != nil {
			return err
		}
		corrections, err := parseCorrections(reply, len(chunk))
		if err != nil {
			return err
		}

		for local, gi := range chunk {
			if corr, ok := corrections[local]; ok {
				c.logger.Info("Verifier corrected classification",
					zap.String("email_id", results[gi].EmailID),
					zap.String("from", results[gi].Verdict.Category.String()),
					zap.Int("from_confidence", results[gi].Verdict.Confidence),
					zap.String("to", corr.verdict.Category.String()),
					zap.Int("to_confidence", corr.verdict.Confidence))
				metrics.CorrectionsTotal.Inc()

				results[gi].Verdict = corr.verdict
				results[gi].CorrectionApplied = true
				results[gi].Origin = core.OriginVerifier
				if corr.reason != "" {
					results[gi].Reason = corr.reason
				}
			}
			results[gi].Verified = true
		}
	}
	return nil
}

func (c *Classifier) complete(ctx context.Context, op string, prompt core.Prompt) (string, error) {
	opts := append([]retry.Option{
		retry.WithNotify(func(n retry.Notification) {
			metrics.RetriesTotal.WithLabelValues(op).Inc()
			c.logger.Warn("Model call failed, retrying",
				zap.String("operation", op),
				zap.Int("attempt", n.Attempt),
				zap.Int("max_attempts", n.MaxAttempts),
				zap.Duration("delay", n.Delay),
				zap.Error(n.Err))
		}),
	}, c.retryOpts...)

	return retry.Do(ctx, c.opts.Retry, func(ctx context.Context) (string, error) {
		return c.llm.Complete(ctx, prompt)
	}, opts...)
}

func (c *Classifier) prepare(ctx context.Context, items []core.EmailSummary) []itemContext {
	out := make([]itemContext, len(items))
	for i, it := range items {
		it.Preview = c.tp.ProcessText(it.Preview, c.opts.MaxPreviewSize)
		it.Subject = c.tp.CollapseWhitespace(c.tp.SanitizeUTF8(it.Subject))
		out[i] = itemContext{item: it, signals: c.keywords.Match(it)}

		if c.cache == nil || it.Sender == "" {
			continue
		}
		hint, err := c.cache.Get(ctx, it.Sender)
		switch {
		case err == nil:
			out[i].hint = hint
		case !errors.Is(err, core.ErrCacheMiss):
			c.logger.Debug("Sender hint lookup failed", zap.String("sender", it.Sender), zap.Error(err))
		}
	}
	return out
}

// remember stores verified verdicts as hints for later batches
func (c *Classifier) remember(ctx context.Context, items []core.EmailSummary, results []core.Classification) {
	if c.cache == nil {
		return
	}
	now := time.Now()
	for i, r := range results {
		if !r.Verified || items[i].Sender == "" {
			continue
		}
		hint := &core.SenderHint{
			Sender:    items[i].Sender,
			Verdict:   r.Verdict,
			LastSeen:  now,
			ExpiresAt: now.Add(c.opts.HintTTL),
		}
		if err := c.cache.Set(ctx, hint); err != nil {
			c.logger.Error("Failed to update sender hint", zap.String("sender", items[i].Sender), zap.Error(err))
		}
	}
}
