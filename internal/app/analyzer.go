package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sileniced/bntradebot/internal/exchange"
	"github.com/sileniced/bntradebot/internal/learn"
	"github.com/sileniced/bntradebot/internal/metrics"
	"github.com/sileniced/bntradebot/internal/persistence"
	"github.com/sileniced/bntradebot/internal/signals"
	"github.com/sileniced/bntradebot/internal/signals/adapters"
)

// outcomeBars is the grading horizon: the trailing bars of the shortest
// interval that count as realized outcome when updating weights.
const outcomeBars = 10

// AnalyzerConfig tunes one Analyzer.
type AnalyzerConfig struct {
	Pairs         []string
	Intervals     []exchange.Interval
	CandleLimit   int
	MaxConcurrent int
	FetchTimeout  time.Duration
}

// Analyzer runs the scoring half of a cycle: fetch candles for every
// pair/interval, build and score the per-pair trees, and adapt weights
// against the realized outcome.
type Analyzer struct {
	cfg     AnalyzerConfig
	market  exchange.MarketData
	weights persistence.WeightStore // nil disables persistence
	metrics *metrics.Registry

	mu       sync.Mutex
	trees    map[string]*signals.Group
	hydrated bool
}

// CycleScores is the analyzer output for one cycle.
type CycleScores struct {
	// Scores maps pair symbol to its sentiment score; pairs whose fetches
	// failed are absent.
	Scores map[string]float64

	// Failed lists pairs excluded from this cycle.
	Failed []string

	StartedAt  time.Time
	FinishedAt time.Time
}

// NewAnalyzer wires an analyzer. weights may be nil to run without
// persistence.
func NewAnalyzer(cfg AnalyzerConfig, market exchange.MarketData, weights persistence.WeightStore, reg *metrics.Registry) *Analyzer {
	return &Analyzer{
		cfg:     cfg,
		market:  market,
		weights: weights,
		metrics: reg,
		trees:   make(map[string]*signals.Group),
	}
}

type fetchResult struct {
	pair     string
	interval exchange.Interval
	candles  []exchange.Candle
	err      error
}

// Run executes one analysis cycle. A failed fetch excludes only the pair it
// belongs to; the cycle fails outright only when every pair is excluded.
func (a *Analyzer) Run(ctx context.Context) (*CycleScores, error) {
	started := time.Now()
	a.hydrate(ctx)

	byPair, failed := a.fetchAll(ctx)

	out := &CycleScores{
		Scores:    make(map[string]float64, len(byPair)),
		Failed:    failed,
		StartedAt: started,
	}

	// Scoring and weight adaptation run sequentially in pair order so the
	// learned state evolves deterministically.
	for _, pair := range a.cfg.Pairs {
		candles, ok := byPair[pair]
		if !ok {
			continue
		}
		score, err := a.scorePair(pair, candles)
		if err != nil {
			log.Error().Err(err).Str("pair", pair).Msg("scoring failed, pair excluded")
			out.Failed = append(out.Failed, pair)
			continue
		}
		out.Scores[pair] = score
		if a.metrics != nil {
			a.metrics.PairScore.WithLabelValues(pair).Set(score)
		}
	}

	out.FinishedAt = time.Now()
	if len(out.Scores) == 0 {
		return nil, fmt.Errorf("analysis cycle: all %d pairs failed", len(a.cfg.Pairs))
	}
	return out, nil
}

// hydrate restores persisted weights once per process.
func (a *Analyzer) hydrate(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.hydrated || a.weights == nil {
		a.hydrated = true
		return
	}
	a.hydrated = true

	snapshots, err := a.weights.LoadAll(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("weight hydration failed, starting fresh")
		return
	}
	for symbol, snap := range snapshots {
		tree, err := signals.UnmarshalGroup(snap.Tree)
		if err != nil {
			log.Warn().Err(err).Str("pair", symbol).Msg("stored tree unreadable, ignored")
			continue
		}
		a.trees[symbol] = tree
	}
	log.Info().Int("pairs", len(a.trees)).Msg("weights hydrated")
}

// fetchAll fans out candle fetches over a bounded worker pool and fans the
// results back in. The barrier is the WaitGroup: no scoring starts until
// every fetch has settled.
func (a *Analyzer) fetchAll(ctx context.Context) (map[string]map[exchange.Interval][]exchange.Candle, []string) {
	total := len(a.cfg.Pairs) * len(a.cfg.Intervals)
	results := make(chan fetchResult, total)
	sem := make(chan struct{}, a.cfg.MaxConcurrent)

	var wg sync.WaitGroup
	for _, pair := range a.cfg.Pairs {
		for _, interval := range a.cfg.Intervals {
			wg.Add(1)
			go func(pair string, interval exchange.Interval) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
				defer cancel()

				candles, err := a.market.GetCandles(fetchCtx, pair, interval, a.cfg.CandleLimit, time.Time{})
				results <- fetchResult{pair: pair, interval: interval, candles: candles, err: err}
			}(pair, interval)
		}
	}
	wg.Wait()
	close(results)

	byPair := make(map[string]map[exchange.Interval][]exchange.Candle)
	failedSet := make(map[string]bool)
	for res := range results {
		if res.err != nil {
			log.Warn().Err(res.err).Str("pair", res.pair).Str("interval", string(res.interval)).Msg("candle fetch failed")
			if a.metrics != nil {
				a.metrics.FetchFailures.WithLabelValues(res.pair, string(res.interval)).Inc()
			}
			failedSet[res.pair] = true
			continue
		}
		if byPair[res.pair] == nil {
			byPair[res.pair] = make(map[exchange.Interval][]exchange.Candle)
		}
		byPair[res.pair][res.interval] = res.candles
	}

	failed := make([]string, 0, len(failedSet))
	for pair := range failedSet {
		delete(byPair, pair)
		failed = append(failed, pair)
	}
	return byPair, failed
}

// scorePair builds this cycle's tree for one pair, adapts the learned
// weights against the realized outcome, and scores the tree. Grading runs
// on a tree built only from bars that closed before the outcome window
// opened, never on the tree that already saw the outcome; otherwise any
// signal derived from recent price change would trivially agree with the
// label and self-reinforce without predictive merit.
func (a *Analyzer) scorePair(pair string, candles map[exchange.Interval][]exchange.Candle) (float64, error) {
	intervalKeys := make([]signals.Key, 0, len(a.cfg.Intervals))
	for _, iv := range a.cfg.Intervals {
		intervalKeys = append(intervalKeys, signals.Key(iv))
	}

	a.mu.Lock()
	prior := a.trees[pair]
	a.mu.Unlock()

	fresh := signals.BuildPairTree(intervalKeys, adapters.Compute(candles))
	if prior != nil {
		signals.AdoptWeights(fresh, prior)
	}

	if past, outcome, ok := splitOutcome(candles, a.shortestInterval()); ok {
		graded := signals.BuildPairTree(intervalKeys, adapters.Compute(past))
		if prior != nil {
			signals.AdoptWeights(graded, prior)
		}
		if a.adaptWeights(pair, graded, learn.OptimalScore(outcome)) {
			signals.AdoptWeights(fresh, graded)
		}
	} else {
		log.Debug().Str("pair", pair).Msg("not enough history to grade, weights unchanged")
	}

	a.mu.Lock()
	a.trees[pair] = fresh
	a.mu.Unlock()

	score, err := fresh.Score()
	if err != nil {
		return 0, fmt.Errorf("score %s: %w", pair, err)
	}
	return score, nil
}

// splitOutcome carves the fetched series into a signal window and an
// outcome window. The trailing outcomeBars bars of the shortest interval
// are the realized outcome; every interval's signal window keeps only bars
// that closed by the time the outcome window opened. ok is false when any
// interval would be left without signal bars.
func splitOutcome(candles map[exchange.Interval][]exchange.Candle, shortest exchange.Interval) (map[exchange.Interval][]exchange.Candle, []exchange.Candle, bool) {
	series := candles[shortest]
	if len(series) <= outcomeBars {
		return nil, nil, false
	}
	outcome := series[len(series)-outcomeBars:]
	cutoff := outcome[0].OpenTime

	past := make(map[exchange.Interval][]exchange.Candle, len(candles))
	for interval, bars := range candles {
		n := len(bars)
		for n > 0 && bars[n-1].CloseTime.After(cutoff) {
			n--
		}
		if n == 0 {
			return nil, nil, false
		}
		past[interval] = bars[:n]
	}
	return past, outcome, true
}

// adaptWeights folds the outcome label into the tree's weights and reports
// whether the update held. An invariant violation aborts persistence and
// leaves the prior cycle's weights in force.
func (a *Analyzer) adaptWeights(pair string, tree *signals.Group, label float64) bool {
	if err := learn.UpdateTree(tree, label); err != nil {
		log.Error().Err(err).Str("pair", pair).Msg("weight update failed")
		if a.metrics != nil {
			a.metrics.InvariantViolations.Inc()
		}
		return false
	}
	if a.metrics != nil {
		a.metrics.WeightUpdates.WithLabelValues(pair).Inc()
	}

	if err := tree.Validate(); err != nil {
		log.Error().Err(err).Str("pair", pair).Msg("weight invariant violated, snapshot not persisted")
		if a.metrics != nil {
			a.metrics.InvariantViolations.Inc()
		}
		return false
	}

	a.persist(pair, tree)
	return true
}

// persist saves the snapshot without blocking the cycle.
func (a *Analyzer) persist(pair string, tree *signals.Group) {
	if a.weights == nil {
		return
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		log.Error().Err(err).Str("pair", pair).Msg("tree marshal failed")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := a.weights.SaveWeights(ctx, persistence.WeightSnapshot{
			Symbol:    pair,
			Tree:      raw,
			UpdatedAt: time.Now(),
		})
		if err != nil {
			log.Warn().Err(err).Str("pair", pair).Msg("weight snapshot save failed")
		}
	}()
}

func (a *Analyzer) shortestInterval() exchange.Interval {
	shortest := a.cfg.Intervals[0]
	shortestDur, _ := shortest.Duration()
	for _, iv := range a.cfg.Intervals[1:] {
		if d, err := iv.Duration(); err == nil && d < shortestDur {
			shortest, shortestDur = iv, d
		}
	}
	return shortest
}
