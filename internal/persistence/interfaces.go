// Package persistence defines the storage contracts for learned signal
// weights and per-cycle reports, with PostgreSQL implementations in the
// postgres subpackage.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// WeightSnapshot is one pair's serialized scoring tree with its learned
// weights. The tree is stored as the signals package's JSON encoding so the
// schema never has to know the tree shape.
type WeightSnapshot struct {
	Symbol    string          `json:"symbol" db:"symbol"`
	Tree      json.RawMessage `json:"tree" db:"tree"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Validate rejects snapshots that could not be restored later.
func (s WeightSnapshot) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("weight snapshot: empty symbol")
	}
	if len(s.Tree) == 0 || !json.Valid(s.Tree) {
		return fmt.Errorf("weight snapshot %s: tree is not valid JSON", s.Symbol)
	}
	return nil
}

// CycleReport summarizes one completed analysis cycle: what was scored, what
// the planner decided, and what the negotiation engine did about it.
type CycleReport struct {
	ID         int64              `json:"id" db:"id"`
	StartedAt  time.Time          `json:"started_at" db:"started_at"`
	FinishedAt time.Time          `json:"finished_at" db:"finished_at"`
	PairScores map[string]float64 `json:"pair_scores"`
	Allocation map[string]float64 `json:"allocation"`
	Orders     int                `json:"orders" db:"orders"`
	Drops      map[string]int     `json:"drops"`
	DryRun     bool               `json:"dry_run" db:"dry_run"`
	CreatedAt  time.Time          `json:"created_at" db:"created_at"`
}

// Validate rejects reports with impossible timing or out-of-range scores.
func (r CycleReport) Validate() error {
	if r.FinishedAt.Before(r.StartedAt) {
		return fmt.Errorf("cycle report: finished before started")
	}
	for symbol, score := range r.PairScores {
		if score < 0 || score > 1 {
			return fmt.Errorf("cycle report: score %f for %s out of [0,1]", score, symbol)
		}
	}
	for asset, ratio := range r.Allocation {
		if ratio < 0 {
			return fmt.Errorf("cycle report: negative allocation %f for %s", ratio, asset)
		}
	}
	return nil
}

// WeightStore persists learned scoring-tree weights per pair.
type WeightStore interface {
	// SaveWeights upserts the snapshot for its symbol.
	SaveWeights(ctx context.Context, snapshot WeightSnapshot) error

	// LoadWeights returns the snapshot for symbol, or nil when the pair has
	// never been persisted.
	LoadWeights(ctx context.Context, symbol string) (*WeightSnapshot, error)

	// LoadAll returns every persisted snapshot keyed by symbol.
	LoadAll(ctx context.Context) (map[string]WeightSnapshot, error)
}

// ReportStore persists cycle reports.
type ReportStore interface {
	// Insert stores a finished cycle report and fills in its ID.
	Insert(ctx context.Context, report *CycleReport) error

	// Recent returns up to limit reports, newest first.
	Recent(ctx context.Context, limit int) ([]CycleReport, error)
}

// Store is the full persistence surface the application wires together.
type Store interface {
	WeightStore
	ReportStore

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases held connections.
	Close() error
}
