// Package adapters turns raw candle series into the uniform [0,1] leaf
// scores consumed by the signal tree. Indicator math lives in internal/ta;
// this package only maps indicator outputs onto the bullish/bearish score
// shape. 1 is maximally bullish on the bullish branch and maximally bearish
// on the bearish branch.
package adapters

import (
	"github.com/sileniced/bntradebot/internal/exchange"
	"github.com/sileniced/bntradebot/internal/signals"
	"github.com/sileniced/bntradebot/internal/ta"
)

// Sensitivity constants. Oscillator readings map linearly; momentum and
// moving-average distances are scaled so that a 2% move saturates the
// score.
const (
	macdScale     = 50.0 // per unit of histogram/price
	moveBackScale = 25.0 // per unit of (ma−price)/ma
	crossScale    = 25.0 // per unit of (short−long)/long
	changeScale   = 25.0 // per unit of ROC
)

// Compute produces the adapter scores for every interval of a pair.
func Compute(candles map[exchange.Interval][]exchange.Candle) map[signals.Key]signals.IntervalScores {
	out := make(map[signals.Key]signals.IntervalScores, len(candles))
	for interval, bars := range candles {
		out[signals.Key(interval)] = ComputeInterval(bars)
	}
	return out
}

// ComputeInterval produces both branch score sets for one candle series.
func ComputeInterval(bars []exchange.Candle) signals.IntervalScores {
	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	bull := signals.BranchScores{
		Oscillators: oscillatorScores(highs, lows, closes),
		MoveBack:    moveBackScores(closes),
		Cross:       crossScores(closes),
		PriceChange: priceChangeScores(closes),
	}
	bull.CandleOrder, bull.CandleDepths = patternScores(ta.Bullish, bars)

	bear := signals.BranchScores{
		Oscillators: mirror(bull.Oscillators),
		MoveBack:    mirror(bull.MoveBack),
		Cross:       mirror(bull.Cross),
		PriceChange: mirror(bull.PriceChange),
	}
	bear.CandleOrder, bear.CandleDepths = patternScores(ta.Bearish, bars)

	return signals.IntervalScores{Bull: bull, Bear: bear}
}

// oscillatorScores maps oversold readings toward 1 (bullish reversal
// expectation) and overbought toward 0.
func oscillatorScores(highs, lows, closes []float64) map[signals.Key]float64 {
	rsi := ta.RSI(closes, 14)
	k, d := ta.Stochastic(highs, lows, closes, 14, 3)
	macd := ta.MACD(closes, 12, 26, 9)

	macdScore := 0.5
	if n := len(closes); n > 0 && closes[n-1] > 0 {
		macdScore = clamp01(0.5 + macd.Histogram/closes[n-1]*macdScale)
	}

	return map[signals.Key]float64{
		signals.KeyRSI:        clamp01(1 - rsi/100),
		signals.KeyStochastic: clamp01(1 - (k+d)/200),
		signals.KeyMACD:       macdScore,
	}
}

// moveBackScores expect price stretched below a moving average to revert
// upward: the deeper below, the more bullish.
func moveBackScores(closes []float64) map[signals.Key]float64 {
	out := map[signals.Key]float64{}
	windows := map[signals.Key]int{
		signals.KeyMoveBackSMA8:  8,
		signals.KeyMoveBackSMA21: 21,
		signals.KeyMoveBackSMA50: 50,
	}
	last := 0.0
	if len(closes) > 0 {
		last = closes[len(closes)-1]
	}
	for key, window := range windows {
		ma := ta.SMA(closes, window)
		if ma <= 0 || last <= 0 {
			out[key] = 0.5
			continue
		}
		out[key] = clamp01(0.5 + (ma-last)/ma*moveBackScale)
	}
	return out
}

// crossScores read the spread between a short and long moving average:
// short above long is bullish.
func crossScores(closes []float64) map[signals.Key]float64 {
	out := map[signals.Key]float64{}

	score := func(short, long float64) float64 {
		if long <= 0 {
			return 0.5
		}
		return clamp01(0.5 + (short-long)/long*crossScale)
	}

	out[signals.KeyCrossEMA9EMA21] = score(ta.EMA(closes, 9), ta.EMA(closes, 21))
	out[signals.KeyCrossSMA50SMA200] = score(ta.SMA(closes, 50), ta.SMA(closes, 200))
	return out
}

func priceChangeScores(closes []float64) map[signals.Key]float64 {
	lookbacks := map[signals.Key]int{
		signals.KeyChange1:  1,
		signals.KeyChange5:  5,
		signals.KeyChange10: 10,
	}
	out := map[signals.Key]float64{}
	for key, lb := range lookbacks {
		out[key] = clamp01(0.5 + ta.ROC(closes, lb)*changeScale)
	}
	return out
}

func patternScores(set []ta.Pattern, bars []exchange.Candle) ([]signals.Key, []map[signals.Key]float64) {
	order := make([]signals.Key, len(set))
	for i, p := range set {
		order[i] = signals.Key(p.Name)
	}

	depths := make([]map[signals.Key]float64, signals.CandleDepthLevels)
	for depth := range depths {
		hits := make(map[signals.Key]float64, len(set))
		for _, p := range set {
			if ta.MatchAt(p, bars, depth) {
				hits[signals.Key(p.Name)] = 1
			} else {
				hits[signals.Key(p.Name)] = 0
			}
		}
		depths[depth] = hits
	}
	return order, depths
}

func mirror(scores map[signals.Key]float64) map[signals.Key]float64 {
	out := make(map[signals.Key]float64, len(scores))
	for k, v := range scores {
		out[k] = 1 - v
	}
	return out
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
