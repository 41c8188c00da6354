// Package allocation turns per-pair sentiment scores into the target
// allocation vector ("symbol pie"): the desired fraction of portfolio
// value per asset, blending technical, relative-market-strength and news
// components under configurable top-level weights.
package allocation

import (
	"fmt"
	"sort"

	"github.com/sileniced/bntradebot/internal/exchange"
)

// BlendWeights are the top-level component weights. They must sum to 1.
type BlendWeights struct {
	Tech   float64 `yaml:"tech"`
	Market float64 `yaml:"market"`
	News   float64 `yaml:"news"`
}

// DefaultBlendWeights is the canonical blend: technical score dominates,
// relative strength second, news last.
func DefaultBlendWeights() BlendWeights {
	return BlendWeights{Tech: 0.5, Market: 0.3, News: 0.2}
}

// Validate checks the sum-to-1 invariant and non-negativity.
func (w BlendWeights) Validate() error {
	if w.Tech < 0 || w.Market < 0 || w.News < 0 {
		return fmt.Errorf("allocation: negative blend weight %+v", w)
	}
	sum := w.Tech + w.Market + w.News
	if sum < 0.999999 || sum > 1.000001 {
		return fmt.Errorf("allocation: blend weights sum to %.6f, want 1", sum)
	}
	return nil
}

// Plan is the planner output for one cycle.
type Plan struct {
	// Target maps asset to its target allocation fraction; values sum to 1.
	Target map[string]float64 `json:"target"`

	// Tech is the per-asset normalized technical component.
	Tech map[string]float64 `json:"tech"`

	// Battle is the per-asset market-strength score, floored at zero. It
	// doubles as the collector priority key during negotiation.
	Battle map[string]float64 `json:"battle"`

	// News is the per-asset news component, floored at zero.
	News map[string]float64 `json:"news"`
}

// Assets returns the plan's asset universe sorted by target fraction
// descending (ties alphabetical), for stable reporting.
func (p *Plan) Assets() []string {
	assets := make([]string, 0, len(p.Target))
	for a := range p.Target {
		assets = append(assets, a)
	}
	sort.Slice(assets, func(i, j int) bool {
		if p.Target[assets[i]] != p.Target[assets[j]] {
			return p.Target[assets[i]] > p.Target[assets[j]]
		}
		return assets[i] < assets[j]
	})
	return assets
}

// Planner blends pair scores into target allocations.
type Planner struct {
	weights BlendWeights
}

// NewPlanner returns a planner using the given blend weights.
func NewPlanner(weights BlendWeights) (*Planner, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Planner{weights: weights}, nil
}

// Build computes the target allocation for the asset universe spanned by
// pairs. pairScores maps pair symbol to the pair's sentiment score in
// [0,1], where 1 is maximally bullish for the base asset. newsScores maps
// asset to a news sentiment in [−1,1]; missing assets count as neutral 0.
// Pairs without a score (failed fetches) are skipped, per-asset averages
// adjust to the pairs that did report.
func (p *Planner) Build(pairs []exchange.PairMeta, pairScores map[string]float64, newsScores map[string]float64) (*Plan, error) {
	techSum := map[string]float64{}
	techCount := map[string]int{}
	battleRaw := map[string]float64{}
	universe := map[string]bool{}

	for _, pair := range pairs {
		universe[pair.BaseAsset] = true
		universe[pair.QuoteAsset] = true

		score, ok := pairScores[pair.Symbol]
		if !ok {
			continue
		}
		if score < 0 || score > 1 {
			return nil, fmt.Errorf("allocation: pair %s score %v outside [0,1]", pair.Symbol, score)
		}

		// The pair score is bullishness for the base; the quote side sees
		// the mirror.
		techSum[pair.BaseAsset] += score
		techCount[pair.BaseAsset]++
		techSum[pair.QuoteAsset] += 1 - score
		techCount[pair.QuoteAsset]++

		// Signed pairwise edge feeds the battle tally of both camps.
		edge := 2*score - 1
		battleRaw[pair.BaseAsset] += edge
		battleRaw[pair.QuoteAsset] -= edge
	}

	if len(universe) == 0 {
		return nil, fmt.Errorf("allocation: empty pair universe")
	}

	plan := &Plan{
		Target: map[string]float64{},
		Tech:   map[string]float64{},
		Battle: map[string]float64{},
		News:   map[string]float64{},
	}

	rawTotal := 0.0
	for asset := range universe {
		tech := 0.0
		if techCount[asset] > 0 {
			tech = techSum[asset] / float64(techCount[asset])
		}
		battle := battleRaw[asset]
		if battle < 0 {
			battle = 0
		}
		news := newsScores[asset]
		if news < 0 {
			news = 0
		}

		plan.Tech[asset] = tech
		plan.Battle[asset] = battle
		plan.News[asset] = news

		raw := p.weights.Tech*tech + p.weights.Market*battle + p.weights.News*news
		plan.Target[asset] = raw
		rawTotal += raw
	}

	if rawTotal <= 0 {
		// Degenerate cycle (every component zero): fall back to an equal
		// split rather than dividing by zero.
		equal := 1 / float64(len(universe))
		for asset := range universe {
			plan.Target[asset] = equal
		}
		return plan, nil
	}

	for asset := range plan.Target {
		plan.Target[asset] /= rawTotal
	}
	return plan, nil
}
