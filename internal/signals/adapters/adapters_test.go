package adapters

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sileniced/bntradebot/internal/exchange"
	"github.com/sileniced/bntradebot/internal/signals"
)

func trendBars(start, step float64, n int) []exchange.Candle {
	bars := make([]exchange.Candle, n)
	t0 := time.Unix(1_700_000_000, 0)
	for i := range bars {
		open := start + step*float64(i)
		close := open + step
		hi, lo := open, close
		if hi < lo {
			hi, lo = lo, hi
		}
		bars[i] = exchange.Candle{
			OpenTime:  t0.Add(time.Duration(i) * time.Hour),
			CloseTime: t0.Add(time.Duration(i+1) * time.Hour),
			Open:      open,
			High:      hi + 0.1,
			Low:       lo - 0.1,
			Close:     close,
			Volume:    100,
		}
	}
	return bars
}

func TestComputeIntervalBounds(t *testing.T) {
	scores := ComputeInterval(trendBars(100, 1, 250))

	check := func(m map[signals.Key]float64) {
		for key, v := range m {
			assert.GreaterOrEqual(t, v, 0.0, "key %s", key)
			assert.LessOrEqual(t, v, 1.0, "key %s", key)
		}
	}
	for _, branch := range []signals.BranchScores{scores.Bull, scores.Bear} {
		check(branch.Oscillators)
		check(branch.MoveBack)
		check(branch.Cross)
		check(branch.PriceChange)
		require.Len(t, branch.CandleDepths, signals.CandleDepthLevels)
		for _, hits := range branch.CandleDepths {
			for key, v := range hits {
				assert.Contains(t, []float64{0, 1}, v, "pattern %s is binary", key)
			}
		}
	}
}

func TestUptrendLeansBullishOnTrendSignals(t *testing.T) {
	scores := ComputeInterval(trendBars(100, 1, 250))

	assert.Greater(t, scores.Bull.Cross[signals.KeyCrossEMA9EMA21], 0.5,
		"short EMA above long in an uptrend")
	assert.Greater(t, scores.Bull.PriceChange[signals.KeyChange10], 0.5)

	// Bearish branch mirrors the continuous signals.
	assert.InDelta(t,
		1-scores.Bull.Cross[signals.KeyCrossEMA9EMA21],
		scores.Bear.Cross[signals.KeyCrossEMA9EMA21], 1e-12)
}

func TestMirrorBranchesSumToOne(t *testing.T) {
	scores := ComputeInterval(trendBars(200, -0.5, 120))
	for key, bull := range scores.Bull.Oscillators {
		assert.InDelta(t, 1.0, bull+scores.Bear.Oscillators[key], 1e-12, "key %s", key)
	}
}

func TestComputeFeedsTreeBuilder(t *testing.T) {
	candles := map[exchange.Interval][]exchange.Candle{
		exchange.Interval1h: trendBars(100, 1, 250),
		exchange.Interval4h: trendBars(100, -1, 250),
	}
	byInterval := Compute(candles)

	tree := signals.BuildPairTree(
		[]signals.Key{signals.Key(exchange.Interval1h), signals.Key(exchange.Interval4h)},
		byInterval,
	)
	require.NoError(t, tree.Validate())

	score, err := tree.Score()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestEmptySeriesIsNeutral(t *testing.T) {
	scores := ComputeInterval(nil)
	assert.InDelta(t, 0.5, scores.Bull.Oscillators[signals.KeyRSI], 1e-12)
	assert.InDelta(t, 0.5, scores.Bull.MoveBack[signals.KeyMoveBackSMA8], 1e-12)
	assert.InDelta(t, 0.5, scores.Bull.Cross[signals.KeyCrossEMA9EMA21], 1e-12)
	assert.InDelta(t, 0.5, scores.Bull.PriceChange[signals.KeyChange1], 1e-12)
}
