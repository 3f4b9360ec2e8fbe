package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mikey/inbox-sweeper/internal/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "inbox-sweeper:hint:"

type redisHint struct {
	Category   core.Category `json:"category"`
	Confidence int           `json:"confidence"`
	LastSeen   time.Time     `json:"last_seen"`
	ExpiresAt  time.Time     `json:"expires_at"`
}

// RedisCache is a SenderCache backed by Redis keys with a TTL
type RedisCache struct {
	rdb    *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisCache connects to the Redis server at url
func NewRedisCache(url string, logger *zap.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{rdb: rdb, logger: logger, now: time.Now}, nil
}

func redisKey(sender string) string {
	return redisKeyPrefix + normalizeSender(sender)
}

// Get retrieves the hint for a sender
func (c *RedisCache) Get(ctx context.Context, sender string) (*core.SenderHint, error) {
	data, err := c.rdb.Get(ctx, redisKey(sender)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var h redisHint
	if err := json.Unmarshal(data, &h); err != nil {
		c.logger.Warn("Dropping unreadable cache entry", zap.String("sender", sender), zap.Error(err))
		return nil, core.ErrCacheMiss
	}
	return &core.SenderHint{
		Sender:    normalizeSender(sender),
		Verdict:   core.Verdict{Category: h.Category, Confidence: h.Confidence},
		LastSeen:  h.LastSeen,
		ExpiresAt: h.ExpiresAt,
	}, nil
}

// Set stores a hint that expires at hint.ExpiresAt
func (c *RedisCache) Set(ctx context.Context, hint *core.SenderHint) error {
	ttl := hint.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(redisHint{
		Category:   hint.Verdict.Category,
		Confidence: hint.Verdict.Confidence,
		LastSeen:   hint.LastSeen,
		ExpiresAt:  hint.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode hint: %w", err)
	}
	if err := c.rdb.Set(ctx, redisKey(hint.Sender), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes a hint
func (c *RedisCache) Delete(ctx context.Context, sender string) error {
	if err := c.rdb.Del(ctx, redisKey(sender)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Cleanup is a no-op; Redis expires keys itself
func (c *RedisCache) Cleanup(_ context.Context) error {
	return nil
}

// Stop closes the connection
func (c *RedisCache) Stop() {
	if err := c.rdb.Close(); err != nil {
		c.logger.Error("Failed to close redis connection", zap.Error(err))
	}
}
