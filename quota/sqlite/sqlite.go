// Package sqlite provides a SQLite-backed QuotaStore for genroute.
//
// Usage is one row per caller per UTC day. The driver is pure Go
// (modernc.org/sqlite), so the store works without cgo; it suits
// single-node deployments that need usage to survive restarts without
// running a database server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/draftmill/genroute"
)

// Store is a SQLite-backed QuotaStore.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ genroute.QuotaStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithClock overrides the store's clock. Tests use it to cross day
// boundaries without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if needed) the database at path and prepares the
// schema. Pass ":memory:" for an ephemeral store.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("genroute/sqlite: open: %w", err)
	}

	ctx := context.Background()
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("genroute/sqlite: %s: %w", pragma, err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS quota_usage (
		caller_id TEXT NOT NULL,
		day TEXT NOT NULL,
		calls INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (caller_id, day)
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("genroute/sqlite: create schema: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	_, _ = s.db.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func (s *Store) today() string {
	return s.now().UTC().Format("2006-01-02")
}

// Add increments callerID's counters for the current UTC day and returns
// the resulting usage.
func (s *Store) Add(ctx context.Context, callerID string, calls int64, cost float64) (genroute.QuotaUsage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return genroute.QuotaUsage{}, fmt.Errorf("genroute/sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	day := s.today()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO quota_usage (caller_id, day, calls, cost) VALUES (?, ?, ?, ?)
		ON CONFLICT (caller_id, day)
		DO UPDATE SET calls = calls + excluded.calls, cost = cost + excluded.cost`,
		callerID, day, calls, cost,
	)
	if err != nil {
		return genroute.QuotaUsage{}, fmt.Errorf("genroute/sqlite: add usage: %w", err)
	}

	var usage genroute.QuotaUsage
	err = tx.QueryRowContext(ctx,
		`SELECT calls, cost FROM quota_usage WHERE caller_id = ? AND day = ?`,
		callerID, day,
	).Scan(&usage.Calls, &usage.Cost)
	if err != nil {
		return genroute.QuotaUsage{}, fmt.Errorf("genroute/sqlite: read back usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return genroute.QuotaUsage{}, fmt.Errorf("genroute/sqlite: commit: %w", err)
	}
	return usage, nil
}

// Usage returns callerID's usage for the current UTC day. A caller with no
// row yet reads as zero.
func (s *Store) Usage(ctx context.Context, callerID string) (genroute.QuotaUsage, error) {
	var usage genroute.QuotaUsage
	err := s.db.QueryRowContext(ctx,
		`SELECT calls, cost FROM quota_usage WHERE caller_id = ? AND day = ?`,
		callerID, s.today(),
	).Scan(&usage.Calls, &usage.Cost)
	if err == sql.ErrNoRows {
		return genroute.QuotaUsage{}, nil
	}
	if err != nil {
		return genroute.QuotaUsage{}, fmt.Errorf("genroute/sqlite: read usage: %w", err)
	}
	return usage, nil
}

// Cleanup removes usage rows older than the given age.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-olderThan).Format("2006-01-02")
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM quota_usage WHERE day < ?`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("genroute/sqlite: cleanup: %w", err)
	}
	return res.RowsAffected()
}
