package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/inbox-sweeper/internal/adapters/cache"
	"github.com/mikey/inbox-sweeper/internal/config"
	"github.com/mikey/inbox-sweeper/internal/core"
	"go.uber.org/zap"
)

// CacheFactory creates sender-history caches based on configuration
type CacheFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCacheFactory creates a new cache factory
func NewCacheFactory(cfg *config.Config, logger *zap.Logger) *CacheFactory {
	return &CacheFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// SenderCache is a cache plus the function that stops its background work
type SenderCache struct {
	Cache core.SenderCache
	Stop  func()
}

// CreateSenderCache creates the configured cache. A disabled cache yields a
// nil Cache, which turns sender hints off.
func (f *CacheFactory) CreateSenderCache() (SenderCache, error) {
	cacheCfg, err := f.cfg.GetCache()
	if err != nil {
		return SenderCache{}, err
	}
	if !cacheCfg.Enabled {
		f.logger.Info("Sender cache disabled")
		return SenderCache{Stop: func() {}}, nil
	}

	switch cacheCfg.Type {
	case "memory":
		c := cache.NewMemoryCache(f.logger, cacheCfg.CleanupFrequency)
		return SenderCache{Cache: c, Stop: c.Stop}, nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cacheCfg.SQLitePath), 0755); err != nil {
			return SenderCache{}, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		c, err := cache.NewSQLiteCache(cacheCfg.SQLitePath, f.logger, cacheCfg.CleanupFrequency)
		if err != nil {
			return SenderCache{}, err
		}
		return SenderCache{Cache: c, Stop: c.Stop}, nil
	case "mysql":
		c, err := cache.NewMySQLCache(cacheCfg.MySQLDSN, f.logger, cacheCfg.CleanupFrequency)
		if err != nil {
			return SenderCache{}, err
		}
		return SenderCache{Cache: c, Stop: c.Stop}, nil
	case "redis":
		c, err := cache.NewRedisCache(cacheCfg.RedisURL, f.logger)
		if err != nil {
			return SenderCache{}, err
		}
		return SenderCache{Cache: c, Stop: c.Stop}, nil
	default:
		return SenderCache{}, fmt.Errorf("unsupported cache type: %s", cacheCfg.Type)
	}
}
