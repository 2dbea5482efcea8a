// Package postgres provides a PostgreSQL-backed QuotaStore for genroute.
//
// Usage is one row per caller per UTC day, updated with an atomic upsert.
// This makes it safe for multi-instance deployments and durable across
// restarts.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/draftmill/genroute"
)

// Store is a PostgreSQL-backed QuotaStore.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
	now         func() time.Time
}

var _ genroute.QuotaStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "genroute_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// WithClock overrides the store's clock. Tests use it to cross day
// boundaries without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a new PostgreSQL-backed QuotaStore.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "genroute_",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) usageTable() string { return s.tablePrefix + "quota_usage" }

// EnsureSchema creates the required table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			caller_id TEXT NOT NULL,
			day DATE NOT NULL,
			calls BIGINT NOT NULL DEFAULT 0,
			cost DOUBLE PRECISION NOT NULL DEFAULT 0,
			PRIMARY KEY (caller_id, day)
		);
	`, s.usageTable())
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("genroute/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) today() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Add increments callerID's counters for the current UTC day and returns
// the resulting usage.
func (s *Store) Add(ctx context.Context, callerID string, calls int64, cost float64) (genroute.QuotaUsage, error) {
	var usage genroute.QuotaUsage
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %[1]s (caller_id, day, calls, cost)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (caller_id, day)
			DO UPDATE SET calls = %[1]s.calls + EXCLUDED.calls, cost = %[1]s.cost + EXCLUDED.cost
			RETURNING calls, cost`, s.usageTable()),
		callerID, s.today(), calls, cost,
	).Scan(&usage.Calls, &usage.Cost)
	if err != nil {
		return genroute.QuotaUsage{}, fmt.Errorf("genroute/postgres: add usage: %w", err)
	}
	return usage, nil
}

// Usage returns callerID's usage for the current UTC day. A caller with no
// row yet reads as zero.
func (s *Store) Usage(ctx context.Context, callerID string) (genroute.QuotaUsage, error) {
	var usage genroute.QuotaUsage
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT calls, cost FROM %s WHERE caller_id = $1 AND day = $2`, s.usageTable()),
		callerID, s.today(),
	).Scan(&usage.Calls, &usage.Cost)
	if err == pgx.ErrNoRows {
		return genroute.QuotaUsage{}, nil
	}
	if err != nil {
		return genroute.QuotaUsage{}, fmt.Errorf("genroute/postgres: read usage: %w", err)
	}
	return usage, nil
}

// Cleanup removes usage rows older than the given age. Day-keyed rows stop
// mattering after midnight; this keeps the table from growing forever.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE day < $1`, s.usageTable()),
		time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		return 0, fmt.Errorf("genroute/postgres: cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}
