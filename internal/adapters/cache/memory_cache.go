package cache

import (
	"context"
	"sync"
	"time"

	"github.com/mikey/inbox-sweeper/internal/core"
	"go.uber.org/zap"
)

// MemoryCache is an in-memory implementation of the SenderCache interface
type MemoryCache struct {
	entries     map[string]core.SenderHint
	mu          sync.RWMutex
	logger      *zap.Logger
	cleanupFreq time.Duration
	now         func() time.Time
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMemoryCache creates a new in-memory cache. A zero cleanupFreq disables
// the background sweep.
func NewMemoryCache(logger *zap.Logger, cleanupFreq time.Duration) *MemoryCache {
	cache := &MemoryCache{
		entries:     make(map[string]core.SenderHint),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}

	if cleanupFreq > 0 {
		go cache.startCleanupTask()
	}

	return cache
}

// Get retrieves the hint for a sender
func (c *MemoryCache) Get(_ context.Context, sender string) (*core.SenderHint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hint, ok := c.entries[normalizeSender(sender)]
	if !ok || !c.now().Before(hint.ExpiresAt) {
		return nil, core.ErrCacheMiss
	}
	return &hint, nil
}

// Set stores a hint
func (c *MemoryCache) Set(_ context.Context, hint *core.SenderHint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[normalizeSender(hint.Sender)] = *hint
	return nil
}

// Delete removes a hint
func (c *MemoryCache) Delete(_ context.Context, sender string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, normalizeSender(sender))
	return nil
}

// Cleanup removes expired entries
func (c *MemoryCache) Cleanup(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expiredCount := 0

	for key, hint := range c.entries {
		if !now.Before(hint.ExpiresAt) {
			delete(c.entries, key)
			expiredCount++
		}
	}

	c.logger.Debug("Cleaned up expired cache entries", zap.Int("expired_count", expiredCount))
	return nil
}

// startCleanupTask starts a background task to clean up expired entries
func (c *MemoryCache) startCleanupTask() {
	ticker := time.NewTicker(c.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				c.logger.Error("Failed to clean up cache", zap.Error(err))
			}
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
