// Package cache persists finished run event streams in SQLite so repeated
// requests with identical inputs replay instantly. Every operation fails
// open: a broken cache degrades to a miss, never to a failed run.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/devlikebear/maestro/pkg/engine"
	"github.com/devlikebear/maestro/pkg/event"
)

const (
	// History entries contributing to the cache key.
	keyHistoryWindow = 3
	// Per-entry content ceiling in the key material.
	keyHistoryEntryLen = 500

	schema = `
CREATE TABLE IF NOT EXISTS run_cache (
	cache_key  TEXT PRIMARY KEY,
	events     TEXT NOT NULL,
	created_at INTEGER NOT NULL
);`
)

// Store is the SQLite-backed run cache. A cron janitor sweeps expired
// entries hourly.
type Store struct {
	db      *sql.DB
	ttl     time.Duration
	janitor *cron.Cron
	logger  zerolog.Logger
}

// Config configures the run cache.
type Config struct {
	// Path is the SQLite database file.
	Path string
	// TTL bounds entry lifetime; zero disables expiry.
	TTL time.Duration
	// Logger for fail-open diagnostics.
	Logger zerolog.Logger
}

// NewStore opens (creating if needed) the cache database and starts the
// expiry janitor.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("cache path is required")
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	s := &Store{
		db:     db,
		ttl:    cfg.TTL,
		logger: cfg.Logger.With().Str("component", "cache").Logger(),
	}

	if cfg.TTL > 0 {
		s.janitor = cron.New()
		if _, err := s.janitor.AddFunc("@hourly", s.sweep); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to schedule cache janitor: %w", err)
		}
		s.janitor.Start()
	}

	return s, nil
}

// Key derives the cache key from everything that shapes a run's output.
// Only a recent window of history participates, each entry truncated, so
// long conversations still hit on identical tails.
func (s *Store) Key(system string, history []engine.Turn, message, model string, temperature float64) string {
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\x1f")

	window := history
	if len(window) > keyHistoryWindow {
		window = window[len(window)-keyHistoryWindow:]
	}
	for _, turn := range window {
		content := turn.Content
		if len(content) > keyHistoryEntryLen {
			content = content[:keyHistoryEntryLen]
		}
		fmt.Fprintf(&b, "%s:%s\x1f", turn.Role, content)
	}

	fmt.Fprintf(&b, "%s\x1f%s\x1f%g", message, model, temperature)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Get returns the recorded event sequence for key, or false on miss or any
// storage failure.
func (s *Store) Get(ctx context.Context, key string) ([]event.Event, bool) {
	var payload string
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT events, created_at FROM run_cache WHERE cache_key = ?", key,
	).Scan(&payload, &createdAt)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("Cache lookup failed; treating as miss")
		return nil, false
	}

	if s.ttl > 0 && time.Since(time.Unix(createdAt, 0)) > s.ttl {
		return nil, false
	}

	var events []event.Event
	if err := json.Unmarshal([]byte(payload), &events); err != nil {
		s.logger.Warn().Err(err).Str("cache_key", key).Msg("Corrupt cache entry; treating as miss")
		return nil, false
	}
	return events, true
}

// Put records the event sequence for key, replacing any previous entry.
func (s *Store) Put(ctx context.Context, key string, events []event.Event) {
	payload, err := json.Marshal(events)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Cache entry marshal failed; skipping store")
		return
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO run_cache (cache_key, events, created_at) VALUES (?, ?, ?)",
		key, string(payload), time.Now().Unix(),
	)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Cache store failed; skipping")
	}
}

// Flush removes every cached entry.
func (s *Store) Flush(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM run_cache")
	return err
}

// Close stops the janitor and closes the database.
func (s *Store) Close() error {
	if s.janitor != nil {
		s.janitor.Stop()
	}
	return s.db.Close()
}

// sweep deletes entries older than the TTL.
func (s *Store) sweep() {
	cutoff := time.Now().Add(-s.ttl).Unix()
	result, err := s.db.Exec("DELETE FROM run_cache WHERE created_at < ?", cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Cache sweep failed")
		return
	}
	if removed, err := result.RowsAffected(); err == nil && removed > 0 {
		s.logger.Info().Int64("removed", removed).Msg("Cache sweep removed expired entries")
	}
}
