package ta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sileniced/bntradebot/internal/exchange"
)

func seq(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestSMA(t *testing.T) {
	assert.Equal(t, 3.0, SMA([]float64{1, 2, 3, 4, 5}, 5))
	assert.Equal(t, 4.0, SMA([]float64{1, 2, 3, 4, 5}, 3))
	assert.Equal(t, 0.0, SMA([]float64{1, 2}, 3), "insufficient data")
}

func TestEMAFollowsTrend(t *testing.T) {
	up := seq(100, 1, 50)
	e9 := EMA(up, 9)
	e21 := EMA(up, 21)
	assert.Greater(t, e9, e21, "short EMA leads in an uptrend")
}

func TestRSI(t *testing.T) {
	up := seq(100, 1, 40)
	down := seq(140, -1, 40)
	flatShort := []float64{100, 100}

	assert.Greater(t, RSI(up, 14), 70.0)
	assert.Less(t, RSI(down, 14), 30.0)
	assert.Equal(t, 50.0, RSI(flatShort, 14), "insufficient data is neutral")

	for _, closes := range [][]float64{up, down} {
		v := RSI(closes, 14)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}

func TestStochasticBounds(t *testing.T) {
	highs := seq(101, 1, 30)
	lows := seq(99, 1, 30)
	closes := seq(100, 1, 30)

	k, d := Stochastic(highs, lows, closes, 14, 3)
	assert.GreaterOrEqual(t, k, 0.0)
	assert.LessOrEqual(t, k, 100.0)
	assert.Greater(t, d, 50.0, "steady uptrend closes near the highs")

	k, d = Stochastic(nil, nil, nil, 14, 3)
	assert.Equal(t, 50.0, k)
	assert.Equal(t, 50.0, d)
}

func TestMACDSignInTrend(t *testing.T) {
	up := seq(100, 2, 60)
	down := seq(220, -2, 60)

	assert.Greater(t, MACD(up, 12, 26, 9).MACD, 0.0)
	assert.Less(t, MACD(down, 12, 26, 9).MACD, 0.0)
	assert.Equal(t, MACDResult{}, MACD(seq(100, 1, 10), 12, 26, 9), "insufficient data")
}

func TestROC(t *testing.T) {
	closes := []float64{100, 105, 110}
	assert.InDelta(t, 0.10, ROC(closes, 2), 1e-12)
	assert.Equal(t, 0.0, ROC(closes, 5))
}

func bar(o, h, l, c float64) exchange.Candle {
	return exchange.Candle{Open: o, High: h, Low: l, Close: c}
}

func TestHammer(t *testing.T) {
	// Long lower wick, small body near the top.
	hammer := bar(98.0, 100.0, 90.0, 100.0)
	assert.True(t, isHammer([]exchange.Candle{hammer}))

	full := bar(90, 100, 90, 100)
	assert.False(t, isHammer([]exchange.Candle{full}))
}

func TestMarubozu(t *testing.T) {
	bull := bar(90, 100.2, 89.9, 100)
	bear := bar(100, 100.1, 89.8, 90)

	assert.True(t, isBullMarubozu([]exchange.Candle{bull}))
	assert.False(t, isBearMarubozu([]exchange.Candle{bull}))
	assert.True(t, isBearMarubozu([]exchange.Candle{bear}))
}

func TestEngulfing(t *testing.T) {
	c1 := bar(100, 101, 97, 98)  // bear
	c2 := bar(97, 103, 96, 102) // bull, engulfs c1 body
	assert.True(t, isBullEngulfing([]exchange.Candle{c1, c2}))
	assert.False(t, isBearEngulfing([]exchange.Candle{c1, c2}))

	d1 := bar(98, 103, 97, 102) // bull
	d2 := bar(103, 104, 95, 97) // bear, engulfs d1 body
	assert.True(t, isBearEngulfing([]exchange.Candle{d1, d2}))
}

func TestThreeSoldiersAndCrows(t *testing.T) {
	soldiers := []exchange.Candle{
		bar(100, 105.5, 99.8, 105),
		bar(105, 110.5, 104.8, 110),
		bar(110, 115.5, 109.8, 115),
	}
	crows := []exchange.Candle{
		bar(115, 115.2, 109.5, 110),
		bar(110, 110.2, 104.5, 105),
		bar(105, 105.2, 99.5, 100),
	}
	assert.True(t, isThreeWhiteSoldiers(soldiers))
	assert.False(t, isThreeBlackCrows(soldiers))
	assert.True(t, isThreeBlackCrows(crows))
}

func TestMatchAtDepth(t *testing.T) {
	hammer := bar(98.0, 100.0, 90.0, 100.0)
	flat := bar(100, 100.5, 99.5, 100.2)
	bars := []exchange.Candle{flat, hammer, flat, flat}

	var pat Pattern
	for _, p := range Bullish {
		if p.Name == "Hammer" {
			pat = p
		}
	}
	require.NotNil(t, pat.Match)

	assert.False(t, MatchAt(pat, bars, 0), "latest bar is not a hammer")
	assert.True(t, MatchAt(pat, bars, 2), "hammer sits two bars back")
	assert.False(t, MatchAt(pat, bars, 10), "window out of range")
}
