package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikey/inbox-sweeper/internal/core"
	"go.uber.org/zap/zaptest"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func hint(sender string, expires time.Time) *core.SenderHint {
	return &core.SenderHint{
		Sender:    sender,
		Verdict:   core.Verdict{Category: core.CategoryPromotional, Confidence: 96},
		LastSeen:  epoch,
		ExpiresAt: expires,
	}
}

// exercise runs the SenderCache contract against one implementation
func exercise(t *testing.T, c core.SenderCache, setNow func(time.Time)) {
	t.Helper()
	ctx := context.Background()
	setNow(epoch)

	if _, err := c.Get(ctx, "nobody@example.com"); !errors.Is(err, core.ErrCacheMiss) {
		t.Errorf("Get(missing) err = %v, want ErrCacheMiss", err)
	}

	if err := c.Set(ctx, hint("Deals@Shop.Example", epoch.Add(time.Hour))); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := c.Get(ctx, "deals@shop.example")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Verdict != (core.Verdict{Category: core.CategoryPromotional, Confidence: 96}) {
		t.Errorf("verdict = %+v", got.Verdict)
	}

	setNow(epoch.Add(2 * time.Hour))
	if _, err := c.Get(ctx, "deals@shop.example"); !errors.Is(err, core.ErrCacheMiss) {
		t.Errorf("Get(expired) err = %v, want ErrCacheMiss", err)
	}
	if err := c.Cleanup(ctx); err != nil {
		t.Errorf("Cleanup: %v", err)
	}

	setNow(epoch)
	if err := c.Set(ctx, hint("a@b.example", epoch.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, "a@b.example"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "a@b.example"); !errors.Is(err, core.ErrCacheMiss) {
		t.Errorf("Get(deleted) err = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(zaptest.NewLogger(t), 0)
	defer c.Stop()

	exercise(t, c, func(now time.Time) { c.now = func() time.Time { return now } })
}

func TestMemoryCacheCleanupRemovesExpired(t *testing.T) {
	c := NewMemoryCache(zaptest.NewLogger(t), 0)
	defer c.Stop()
	c.now = func() time.Time { return epoch }

	ctx := context.Background()
	_ = c.Set(ctx, hint("old@x.example", epoch.Add(-time.Minute)))
	_ = c.Set(ctx, hint("new@x.example", epoch.Add(time.Minute)))

	if err := c.Cleanup(ctx); err != nil {
		t.Fatal(err)
	}
	if len(c.entries) != 1 {
		t.Errorf("entries after cleanup = %d, want 1", len(c.entries))
	}
}

func TestSQLiteCache(t *testing.T) {
	c, err := NewSQLiteCache(filepath.Join(t.TempDir(), "hints.db"), zaptest.NewLogger(t), 0)
	if err != nil {
		t.Fatalf("NewSQLiteCache: %v", err)
	}
	defer c.Stop()

	exercise(t, c, func(now time.Time) { c.now = func() time.Time { return now } })
}
