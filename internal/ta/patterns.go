package ta

import (
	"math"

	"github.com/sileniced/bntradebot/internal/exchange"
)

// Candlestick pattern detectors. Each Pattern inspects a fixed-length window
// of bars (oldest first) and reports a binary hit. The Bullish and Bearish
// slices declare the canonical processing order used by the signal tree.

type Pattern struct {
	Name     string
	Lookback int // bars consumed by Match
	Match    func(bars []exchange.Candle) bool
}

// Threshold constants tuned against the detector tests; expressed as
// fractions of the candle's full range.
const (
	dojiMaxBodyPct = 0.10

	hammerLowerMin = 0.60
	hammerUpperMax = 0.15
	hammerBodyMin  = 0.15

	starUpperMin = 0.60
	starLowerMax = 0.15

	marubozuBodyMin = 0.80
	marubozuWickMax = 0.10

	soldierBodyMin = 0.50
)

type candleParts struct {
	Body, Upper, Lower, Range   float64
	BodyPct, UpperPct, LowerPct float64
	IsBull, IsBear, IsDoji      bool
}

func split(c exchange.Candle) candleParts {
	rng := c.High - c.Low
	if rng <= 0 {
		rng = 1e-9
	}
	body := math.Abs(c.Close - c.Open)
	upper := c.High - math.Max(c.Close, c.Open)
	lower := math.Min(c.Close, c.Open) - c.Low

	cp := candleParts{
		Body: body, Upper: upper, Lower: lower, Range: rng,
		BodyPct:  body / rng,
		UpperPct: upper / rng,
		LowerPct: lower / rng,
		IsBull:   c.Close > c.Open,
		IsBear:   c.Open > c.Close,
	}
	cp.IsDoji = cp.BodyPct <= dojiMaxBodyPct
	return cp
}

func isHammer(bars []exchange.Candle) bool {
	cp := split(bars[0])
	return !cp.IsDoji &&
		cp.BodyPct >= hammerBodyMin &&
		cp.LowerPct >= hammerLowerMin &&
		cp.UpperPct <= hammerUpperMax
}

func isShootingStar(bars []exchange.Candle) bool {
	cp := split(bars[0])
	return cp.UpperPct >= starUpperMin && cp.LowerPct <= starLowerMax
}

func isMarubozu(c exchange.Candle) bool {
	cp := split(c)
	return cp.BodyPct >= marubozuBodyMin &&
		cp.UpperPct <= marubozuWickMax &&
		cp.LowerPct <= marubozuWickMax
}

func isBullMarubozu(bars []exchange.Candle) bool {
	return isMarubozu(bars[0]) && bars[0].Close > bars[0].Open
}

func isBearMarubozu(bars []exchange.Candle) bool {
	return isMarubozu(bars[0]) && bars[0].Open > bars[0].Close
}

func isBullEngulfing(bars []exchange.Candle) bool {
	c1, c2 := bars[0], bars[1]
	cp1, cp2 := split(c1), split(c2)
	return cp1.IsBear && cp2.IsBull && c2.Close > c1.Open && c2.Open < c1.Close
}

func isBearEngulfing(bars []exchange.Candle) bool {
	c1, c2 := bars[0], bars[1]
	cp1, cp2 := split(c1), split(c2)
	return cp1.IsBull && cp2.IsBear && c2.Open > c1.Close && c2.Close < c1.Open
}

func isPiercingLine(bars []exchange.Candle) bool {
	c1, c2 := bars[0], bars[1]
	cp1, cp2 := split(c1), split(c2)
	mid := (c1.Open + c1.Close) / 2
	return cp1.IsBear && cp2.IsBull && c2.Open < c1.Close && c2.Close > mid && c2.Close < c1.Open
}

func isDarkCloudCover(bars []exchange.Candle) bool {
	c1, c2 := bars[0], bars[1]
	cp1, cp2 := split(c1), split(c2)
	mid := (c1.Open + c1.Close) / 2
	return cp1.IsBull && cp2.IsBear && c2.Open > c1.Close && c2.Close < mid && c2.Close > c1.Open
}

func isMorningStar(bars []exchange.Candle) bool {
	c1, c2, c3 := bars[0], bars[1], bars[2]
	cp1, cp2, cp3 := split(c1), split(c2), split(c3)
	mid := (c1.Open + c1.Close) / 2
	return cp1.IsBear && cp2.IsDoji && cp3.IsBull && c3.Close > mid
}

func isEveningStar(bars []exchange.Candle) bool {
	c1, c2, c3 := bars[0], bars[1], bars[2]
	cp1, cp2, cp3 := split(c1), split(c2), split(c3)
	mid := (c1.Open + c1.Close) / 2
	return cp1.IsBull && cp2.IsDoji && cp3.IsBear && c3.Close < mid
}

func isThreeWhiteSoldiers(bars []exchange.Candle) bool {
	for i := 0; i < 3; i++ {
		cp := split(bars[i])
		if !cp.IsBull || cp.BodyPct < soldierBodyMin {
			return false
		}
		if i > 0 && bars[i].Close <= bars[i-1].Close {
			return false
		}
	}
	return true
}

func isThreeBlackCrows(bars []exchange.Candle) bool {
	for i := 0; i < 3; i++ {
		cp := split(bars[i])
		if !cp.IsBear || cp.BodyPct < soldierBodyMin {
			return false
		}
		if i > 0 && bars[i].Close >= bars[i-1].Close {
			return false
		}
	}
	return true
}

// Bullish patterns in canonical processing order.
var Bullish = []Pattern{
	{Name: "Hammer", Lookback: 1, Match: isHammer},
	{Name: "BullishMarubozu", Lookback: 1, Match: isBullMarubozu},
	{Name: "BullishEngulfing", Lookback: 2, Match: isBullEngulfing},
	{Name: "PiercingLine", Lookback: 2, Match: isPiercingLine},
	{Name: "MorningStar", Lookback: 3, Match: isMorningStar},
	{Name: "ThreeWhiteSoldiers", Lookback: 3, Match: isThreeWhiteSoldiers},
}

// Bearish patterns in canonical processing order.
var Bearish = []Pattern{
	{Name: "ShootingStar", Lookback: 1, Match: isShootingStar},
	{Name: "BearishMarubozu", Lookback: 1, Match: isBearMarubozu},
	{Name: "BearishEngulfing", Lookback: 2, Match: isBearEngulfing},
	{Name: "DarkCloudCover", Lookback: 2, Match: isDarkCloudCover},
	{Name: "EveningStar", Lookback: 3, Match: isEveningStar},
	{Name: "ThreeBlackCrows", Lookback: 3, Match: isThreeBlackCrows},
}

// MatchAt evaluates the pattern on the window ending depth bars before the
// final bar of the series. Returns false when the series is too short.
func MatchAt(p Pattern, bars []exchange.Candle, depth int) bool {
	end := len(bars) - depth
	if end < p.Lookback || depth < 0 {
		return false
	}
	return p.Match(bars[end-p.Lookback : end])
}
