// Package postgres implements the persistence interfaces on PostgreSQL via
// sqlx.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sileniced/bntradebot/internal/persistence"
)

const defaultTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS pair_weights (
	symbol     TEXT PRIMARY KEY,
	tree       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cycle_reports (
	id          BIGSERIAL PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	pair_scores JSONB NOT NULL,
	allocation  JSONB NOT NULL,
	orders      INT NOT NULL,
	drops       JSONB NOT NULL,
	dry_run     BOOLEAN NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_cycle_reports_started ON cycle_reports (started_at DESC);
`

// Store implements persistence.Store on a PostgreSQL connection.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

var _ persistence.Store = (*Store)(nil)

// Open connects to dsn, applies the schema, and returns a ready Store.
func Open(ctx context.Context, dsn string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &Store{db: db, timeout: timeout}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection, mainly for tests.
func NewWithDB(db *sqlx.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{db: db, timeout: timeout}
}

func (s *Store) migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveWeights upserts the snapshot for its symbol.
func (s *Store) SaveWeights(ctx context.Context, snapshot persistence.WeightSnapshot) error {
	if err := snapshot.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO pair_weights (symbol, tree, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (symbol) DO UPDATE SET
			tree = EXCLUDED.tree,
			updated_at = now()`

	if _, err := s.db.ExecContext(ctx, query, snapshot.Symbol, []byte(snapshot.Tree)); err != nil {
		return fmt.Errorf("save weights %s: %w", snapshot.Symbol, err)
	}
	return nil
}

// LoadWeights returns the snapshot for symbol, or nil when absent.
func (s *Store) LoadWeights(ctx context.Context, symbol string) (*persistence.WeightSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row struct {
		Symbol    string    `db:"symbol"`
		Tree      []byte    `db:"tree"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	query := `SELECT symbol, tree, updated_at FROM pair_weights WHERE symbol = $1`
	if err := s.db.GetContext(ctx, &row, query, symbol); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load weights %s: %w", symbol, err)
	}

	return &persistence.WeightSnapshot{
		Symbol:    row.Symbol,
		Tree:      json.RawMessage(row.Tree),
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// LoadAll returns every persisted snapshot keyed by symbol.
func (s *Store) LoadAll(ctx context.Context) (map[string]persistence.WeightSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryxContext(ctx, `SELECT symbol, tree, updated_at FROM pair_weights`)
	if err != nil {
		return nil, fmt.Errorf("load all weights: %w", err)
	}
	defer rows.Close()

	out := make(map[string]persistence.WeightSnapshot)
	for rows.Next() {
		var row struct {
			Symbol    string    `db:"symbol"`
			Tree      []byte    `db:"tree"`
			UpdatedAt time.Time `db:"updated_at"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("load all weights: %w", err)
		}
		out[row.Symbol] = persistence.WeightSnapshot{
			Symbol:    row.Symbol,
			Tree:      json.RawMessage(row.Tree),
			UpdatedAt: row.UpdatedAt,
		}
	}
	return out, rows.Err()
}

// Insert stores a finished cycle report and fills in its ID.
func (s *Store) Insert(ctx context.Context, report *persistence.CycleReport) error {
	if err := report.Validate(); err != nil {
		return err
	}

	scoresJSON, err := json.Marshal(report.PairScores)
	if err != nil {
		return fmt.Errorf("marshal pair scores: %w", err)
	}
	allocJSON, err := json.Marshal(report.Allocation)
	if err != nil {
		return fmt.Errorf("marshal allocation: %w", err)
	}
	dropsJSON, err := json.Marshal(report.Drops)
	if err != nil {
		return fmt.Errorf("marshal drops: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO cycle_reports
		(started_at, finished_at, pair_scores, allocation, orders, drops, dry_run)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err = s.db.QueryRowxContext(ctx, query,
		report.StartedAt, report.FinishedAt, scoresJSON, allocJSON,
		report.Orders, dropsJSON, report.DryRun).
		Scan(&report.ID, &report.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert cycle report: %w", err)
	}
	return nil
}

// Recent returns up to limit reports, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]persistence.CycleReport, error) {
	if limit <= 0 {
		limit = 20
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT id, started_at, finished_at, pair_scores, allocation, orders, drops, dry_run, created_at
		FROM cycle_reports
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := s.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("recent cycle reports: %w", err)
	}
	defer rows.Close()

	var reports []persistence.CycleReport
	for rows.Next() {
		var row struct {
			ID         int64     `db:"id"`
			StartedAt  time.Time `db:"started_at"`
			FinishedAt time.Time `db:"finished_at"`
			PairScores []byte    `db:"pair_scores"`
			Allocation []byte    `db:"allocation"`
			Orders     int       `db:"orders"`
			Drops      []byte    `db:"drops"`
			DryRun     bool      `db:"dry_run"`
			CreatedAt  time.Time `db:"created_at"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("recent cycle reports: %w", err)
		}

		report := persistence.CycleReport{
			ID:         row.ID,
			StartedAt:  row.StartedAt,
			FinishedAt: row.FinishedAt,
			Orders:     row.Orders,
			DryRun:     row.DryRun,
			CreatedAt:  row.CreatedAt,
		}
		if err := json.Unmarshal(row.PairScores, &report.PairScores); err != nil {
			return nil, fmt.Errorf("decode pair scores: %w", err)
		}
		if err := json.Unmarshal(row.Allocation, &report.Allocation); err != nil {
			return nil, fmt.Errorf("decode allocation: %w", err)
		}
		if err := json.Unmarshal(row.Drops, &report.Drops); err != nil {
			return nil, fmt.Errorf("decode drops: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}
