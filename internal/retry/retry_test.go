package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type recorder struct {
	delays []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestDoSucceedsFirstTry(t *testing.T) {
	rec := &recorder{}
	calls := 0

	got, err := Do(context.Background(), DefaultPolicy, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	}, WithSleep(rec.sleep))

	if err != nil || got != "ok" {
		t.Fatalf("Do = %q, %v", got, err)
	}
	if calls != 1 || len(rec.delays) != 0 {
		t.Errorf("calls = %d, waits = %d, want 1 and 0", calls, len(rec.delays))
	}
}

func TestDoBacksOffAndExhausts(t *testing.T) {
	rec := &recorder{}
	var notes []Notification
	transient := MarkRetryable(errors.New("503 service unavailable"))
	calls := 0

	_, err := Do(context.Background(), DefaultPolicy, func(context.Context) (int, error) {
		calls++
		return 0, transient
	}, WithSleep(rec.sleep), WithNotify(func(n Notification) { notes = append(notes, n) }))

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want ExhaustedError", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exhausted.Attempts)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if fmt.Sprint(rec.delays) != fmt.Sprint(want) {
		t.Errorf("delays = %v, want %v", rec.delays, want)
	}
	if len(notes) != 2 || notes[0].Attempt != 1 || notes[1].Attempt != 2 || notes[1].Delay != 4*time.Second {
		t.Errorf("unexpected notifications %+v", notes)
	}
}

func TestDoRecoversAfterTransientFailure(t *testing.T) {
	rec := &recorder{}
	calls := 0

	got, err := Do(context.Background(), DefaultPolicy, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, MarkRetryable(errors.New("rate limited"))
		}
		return 42, nil
	}, WithSleep(rec.sleep))

	if err != nil || got != 42 {
		t.Fatalf("Do = %d, %v", got, err)
	}
	if len(rec.delays) != 2 {
		t.Errorf("waits = %d, want 2", len(rec.delays))
	}
}

func TestDoFatalErrorSkipsWait(t *testing.T) {
	rec := &recorder{}
	fatal := errors.New("401 unauthorized")
	calls := 0

	_, err := Do(context.Background(), DefaultPolicy, func(context.Context) (int, error) {
		calls++
		return 0, fatal
	}, WithSleep(rec.sleep))

	if !errors.Is(err, fatal) {
		t.Fatalf("err = %v, want %v", err, fatal)
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		t.Error("fatal error must not be reported as exhausted")
	}
	if calls != 1 || len(rec.delays) != 0 {
		t.Errorf("calls = %d, waits = %d, want 1 and 0", calls, len(rec.delays))
	}
}

func TestDoCustomPredicate(t *testing.T) {
	rec := &recorder{}
	calls := 0

	_, err := Do(context.Background(), Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2},
		func(context.Context) (int, error) {
			calls++
			return 0, errors.New("anything")
		},
		WithSleep(rec.sleep),
		WithRetryable(func(error) bool { return true }),
	)

	if err == nil || calls != 2 {
		t.Errorf("calls = %d, err = %v", calls, err)
	}
}

func TestDoCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Hour, Multiplier: 2},
		func(context.Context) (int, error) {
			calls++
			return 0, MarkRetryable(errors.New("timeout"))
		},
		WithNotify(func(Notification) { cancel() }),
	)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad request"), false},
		{"marked", MarkRetryable(errors.New("429")), true},
		{"wrapped mark", fmt.Errorf("call: %w", MarkRetryable(errors.New("503"))), true},
		{"cancelled", context.Canceled, false},
		{"marked deadline", MarkRetryable(context.DeadlineExceeded), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
