package pipeline

import (
	"context"
	"errors"

	"github.com/mikey/inbox-sweeper/internal/core"
	"github.com/mikey/inbox-sweeper/internal/metrics"
	"github.com/mikey/inbox-sweeper/internal/records"
	"github.com/mikey/inbox-sweeper/internal/retry"
	"go.uber.org/zap"
)

// Applier deletes approved items through a Deleter
type Applier struct {
	deleter core.Deleter
	policy  retry.Policy
	logger  *zap.Logger
	opts    []retry.Option
}

// NewApplier creates an applier
func NewApplier(deleter core.Deleter, policy retry.Policy, logger *zap.Logger, opts ...retry.Option) *Applier {
	return &Applier{deleter: deleter, policy: policy, logger: logger, opts: opts}
}

// ApplyResult counts what Apply did
type ApplyResult struct {
	Deleted int
	Skipped int
	Failed  []string
}

// Apply deletes every approved record. Denied records are never touched.
// A failed deletion is logged and the remaining records are still applied.
func (a *Applier) Apply(ctx context.Context, recs []records.Record) (ApplyResult, error) {
	var res ApplyResult
	for _, r := range recs {
		if !r.Approved {
			res.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		err := a.delete(ctx, r.EmailID)
		switch {
		case err == nil:
			res.Deleted++
			a.logger.Info("Deleted item", zap.String("email_id", r.EmailID), zap.String("sender", r.Sender))
		case errors.Is(err, core.ErrDeleteUnsupported):
			return res, err
		case ctx.Err() != nil:
			return res, ctx.Err()
		default:
			res.Failed = append(res.Failed, r.EmailID)
			a.logger.Error("Failed to delete item", zap.String("email_id", r.EmailID), zap.Error(err))
		}
	}
	return res, nil
}

func (a *Applier) delete(ctx context.Context, id string) error {
	opts := append([]retry.Option{
		retry.WithNotify(func(n retry.Notification) {
			metrics.RetriesTotal.WithLabelValues("delete").Inc()
			a.logger.Warn("Delete failed, retrying",
				zap.String("email_id", id),
				zap.Int("attempt", n.Attempt),
				zap.Duration("delay", n.Delay),
				zap.Error(n.Err))
		}),
	}, a.opts...)

	_, err := retry.Do(ctx, a.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.deleter.Delete(ctx, id)
	}, opts...)
	return err
}
