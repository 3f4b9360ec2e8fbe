package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mikey/inbox-sweeper/internal/core"
	"go.uber.org/zap"
)

const hintTable = "sender_hints"

var schemas = map[string][]string{
	"sqlite3": {
		`CREATE TABLE IF NOT EXISTS sender_hints (
			sender TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			confidence INTEGER NOT NULL,
			last_seen INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sender_hints_expires_at ON sender_hints(expires_at)`,
	},
	"mysql": {
		`CREATE TABLE IF NOT EXISTS sender_hints (
			sender VARCHAR(320) PRIMARY KEY,
			category VARCHAR(32) NOT NULL,
			confidence INT NOT NULL,
			last_seen BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			INDEX idx_sender_hints_expires_at (expires_at)
		)`,
	},
}

type hintRow struct {
	Sender     string `db:"sender"`
	Category   string `db:"category"`
	Confidence int    `db:"confidence"`
	LastSeen   int64  `db:"last_seen"`
	ExpiresAt  int64  `db:"expires_at"`
}

// SQLCache is a SenderCache backed by SQLite or MySQL
type SQLCache struct {
	db          *sqlx.DB
	driver      string
	logger      *zap.Logger
	cleanupFreq time.Duration
	now         func() time.Time
	stopCh      chan struct{}
}

// NewSQLiteCache creates a new SQLite cache
func NewSQLiteCache(dbPath string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLCache, error) {
	return newSQLCache("sqlite3", dbPath, logger, cleanupFreq)
}

// NewMySQLCache creates a new MySQL cache
func NewMySQLCache(dsn string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLCache, error) {
	return newSQLCache("mysql", dsn, logger, cleanupFreq)
}

func newSQLCache(driver, dsn string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLCache, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	for _, stmt := range schemas[driver] {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	cache := &SQLCache{
		db:          db,
		driver:      driver,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}

	if cleanupFreq > 0 {
		go cache.startCleanupTask()
	}

	return cache, nil
}

// Get retrieves the hint for a sender
func (c *SQLCache) Get(ctx context.Context, sender string) (*core.SenderHint, error) {
	query, args, err := sq.Select("sender", "category", "confidence", "last_seen", "expires_at").
		From(hintTable).
		Where(sq.Eq{"sender": normalizeSender(sender)}).
		Where(sq.Gt{"expires_at": c.now().Unix()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var row hintRow
	if err := c.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	category, err := core.ParseCategory(row.Category)
	if err != nil {
		c.logger.Warn("Dropping cache entry with unknown category",
			zap.String("sender", row.Sender), zap.String("category", row.Category))
		return nil, core.ErrCacheMiss
	}

	return &core.SenderHint{
		Sender:    row.Sender,
		Verdict:   core.Verdict{Category: category, Confidence: row.Confidence},
		LastSeen:  time.Unix(row.LastSeen, 0),
		ExpiresAt: time.Unix(row.ExpiresAt, 0),
	}, nil
}

// Set stores a hint, replacing any previous one for the sender
func (c *SQLCache) Set(ctx context.Context, hint *core.SenderHint) error {
	query, args, err := sq.Replace(hintTable).
		Columns("sender", "category", "confidence", "last_seen", "expires_at").
		Values(
			normalizeSender(hint.Sender),
			hint.Verdict.Category.String(),
			hint.Verdict.Confidence,
			hint.LastSeen.Unix(),
			hint.ExpiresAt.Unix(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// Delete removes a hint
func (c *SQLCache) Delete(ctx context.Context, sender string) error {
	query, args, err := sq.Delete(hintTable).Where(sq.Eq{"sender": normalizeSender(sender)}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Cleanup removes expired entries
func (c *SQLCache) Cleanup(ctx context.Context) error {
	query, args, err := sq.Delete(hintTable).Where(sq.LtOrEq{"expires_at": c.now().Unix()}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build cleanup: %w", err)
	}

	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		c.logger.Debug("Cleaned up expired cache entries", zap.Int64("expired_count", rowsAffected))
	}

	return nil
}

// startCleanupTask starts a background task to clean up expired entries
func (c *SQLCache) startCleanupTask() {
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

// Stop stops the background cleanup task and closes the database connection
func (c *SQLCache) Stop() {
	close(c.stopCh)
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close database", zap.String("driver", c.driver), zap.Error(err))
	}
}

func normalizeSender(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
