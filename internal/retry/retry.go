// Package retry wraps remote calls with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"
)

// Policy defines retry behavior
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultPolicy waits 2s then 4s between three attempts
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   2 * time.Second,
	Multiplier:  2.0,
}

// Delay returns the wait before retry n, where n=1 is the wait after the first failure
func (p Policy) Delay(n int) time.Duration {
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(n-1)))
}

// Notification describes an upcoming wait
type Notification struct {
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	Err         error
}

func (n Notification) String() string {
	return fmt.Sprintf("attempt %d/%d failed: %v; retrying in %s", n.Attempt, n.MaxAttempts, n.Err, n.Delay)
}

// ExhaustedError is returned once every attempt failed
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type options struct {
	retryable func(error) bool
	notify    func(Notification)
	sleep     func(context.Context, time.Duration) error
}

// Option customizes a single Do call
type Option func(*options)

// WithRetryable sets the predicate separating transient failures from fatal ones
func WithRetryable(pred func(error) bool) Option {
	return func(o *options) { o.retryable = pred }
}

// WithNotify registers a callback invoked before each wait
func WithNotify(fn func(Notification)) Option {
	return func(o *options) { o.notify = fn }
}

// WithSleep replaces the wait implementation
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *options) { o.sleep = fn }
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// policy's attempts are used up.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error), opts ...Option) (T, error) {
	o := options{
		retryable: IsRetryable,
		notify:    func(Notification) {},
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(&o)
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		if !o.retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		o.notify(Notification{Attempt: attempt, MaxAttempts: attempts, Delay: delay, Err: err})
		if err := o.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, &ExhaustedError{Attempts: attempts, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// MarkRetryable flags err as transient
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err was marked transient or is a network timeout.
// Unmarked context errors are not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re *retryableError
	if errors.As(err, &re) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
