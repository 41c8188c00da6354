// Package app wires the bot together and drives the analyze-then-rebalance
// cycle.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sileniced/bntradebot/internal/allocation"
	"github.com/sileniced/bntradebot/internal/metrics"
	"github.com/sileniced/bntradebot/internal/persistence"
)

// App runs the full bot cycle and holds the latest results for the status
// endpoints.
type App struct {
	analyzer   *Analyzer
	rebalancer *Rebalancer
	reports    persistence.ReportStore // nil disables report persistence
	metrics    *metrics.Registry
	interval   time.Duration

	mu         sync.RWMutex
	lastScores map[string]float64
	lastPlan   *allocation.Plan
	lastCycle  time.Time
	lastErr    error
}

// New assembles an App. reports may be nil.
func New(analyzer *Analyzer, rebalancer *Rebalancer, reports persistence.ReportStore, reg *metrics.Registry, interval time.Duration) *App {
	return &App{
		analyzer:   analyzer,
		rebalancer: rebalancer,
		reports:    reports,
		metrics:    reg,
		interval:   interval,
	}
}

// RunOnce executes a single analyze-and-rebalance cycle.
func (a *App) RunOnce(ctx context.Context) error {
	var timer *metrics.CycleTimer
	if a.metrics != nil {
		timer = a.metrics.StartCycle()
	}

	err := a.runCycle(ctx)

	if timer != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		elapsed := timer.Stop(result)
		log.Info().Dur("elapsed", elapsed).Str("result", result).Msg("cycle finished")
	}

	a.mu.Lock()
	a.lastCycle = time.Now()
	a.lastErr = err
	a.mu.Unlock()
	return err
}

func (a *App) runCycle(ctx context.Context) error {
	scores, err := a.analyzer.Run(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("scored", len(scores.Scores)).Strs("failed", scores.Failed).Msg("analysis done")

	outcome, err := a.rebalancer.Run(ctx, scores.Scores)
	if err != nil {
		return err
	}
	log.Info().
		Int("orders", len(outcome.Orders)).
		Int("submitted", outcome.Submitted).
		Int("failures", outcome.Failures).
		Int("dropped", len(outcome.Dropped)).
		Bool("dry_run", outcome.DryRun).
		Msg("rebalance done")

	a.mu.Lock()
	a.lastScores = scores.Scores
	a.lastPlan = outcome.Plan
	a.mu.Unlock()

	a.report(scores, outcome)
	return nil
}

// report persists the cycle report; failures are logged, never fatal.
func (a *App) report(scores *CycleScores, outcome *RebalanceOutcome) {
	if a.reports == nil {
		return
	}
	rep := &persistence.CycleReport{
		StartedAt:  scores.StartedAt,
		FinishedAt: time.Now(),
		PairScores: scores.Scores,
		Allocation: outcome.Plan.Target,
		Orders:     len(outcome.Orders),
		Drops:      outcome.DropCounts(),
		DryRun:     outcome.DryRun,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.reports.Insert(ctx, rep); err != nil {
			log.Warn().Err(err).Msg("cycle report insert failed")
		}
	}()
}

// Run loops RunOnce until ctx is cancelled. The first cycle starts
// immediately.
func (a *App) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", a.interval).Msg("cycle loop started")
	for {
		if err := a.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("cycle failed")
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("cycle loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Status is the snapshot served by the HTTP status endpoints.
type Status struct {
	Scores    map[string]float64 `json:"scores"`
	Plan      *allocation.Plan   `json:"plan,omitempty"`
	LastCycle time.Time          `json:"last_cycle"`
	LastError string             `json:"last_error,omitempty"`
}

// Snapshot returns a copy of the latest cycle state.
func (a *App) Snapshot() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	scores := make(map[string]float64, len(a.lastScores))
	for k, v := range a.lastScores {
		scores[k] = v
	}
	status := Status{
		Scores:    scores,
		Plan:      a.lastPlan,
		LastCycle: a.lastCycle,
	}
	if a.lastErr != nil {
		status.LastError = a.lastErr.Error()
	}
	return status
}
