package learn

import (
	"github.com/sileniced/bntradebot/internal/exchange"
	"github.com/sileniced/bntradebot/internal/ta"
)

// Outcome label derivation. The label ("optimal score") is the ground
// truth a past analysis window is graded against: 1 means the price action
// that followed was maximally bullish, 0 maximally bearish, 0.5
// inconclusive. It blends the realized short-horizon price change with a
// short moving-average trend read so a single spiky candle cannot dominate
// the grade.

const (
	// outcomeChangeScale saturates the price-change component at a ±2%
	// realized move.
	outcomeChangeScale = 25.0

	// outcomeTrendScale saturates the trend component at a ±2% EMA spread.
	outcomeTrendScale = 25.0

	outcomeTrendFastWindow = 3
	outcomeTrendSlowWindow = 8
)

// OptimalScore derives the outcome label from the candles realized after
// the analysis snapshot. bars must be ordered oldest first and cover the
// grading horizon; fewer than two bars yields the neutral label 0.5.
func OptimalScore(bars []exchange.Candle) float64 {
	if len(bars) < 2 {
		return 0.5
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	change := 0.5
	if first := closes[0]; first > 0 {
		change = clamp01(0.5 + (closes[len(closes)-1]-first)/first*outcomeChangeScale)
	}

	trend := 0.5
	fast := ta.EMA(closes, outcomeTrendFastWindow)
	slow := ta.EMA(closes, outcomeTrendSlowWindow)
	if slow > 0 {
		trend = clamp01(0.5 + (fast-slow)/slow*outcomeTrendScale)
	}

	return clamp01((change + trend) / 2)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
