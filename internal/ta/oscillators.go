package ta

// RSI returns the Wilder relative strength index over the given period for
// the last value of the series, in [0,100]. Returns 50 (neutral) when there
// is not enough data to form a single period.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return 50
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Wilder smoothing over the remainder of the series.
	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// Stochastic returns the %K and %D values of the stochastic oscillator
// (kPeriod highest-high/lowest-low window, dPeriod SMA of %K), both in
// [0,100]. Neutral 50s are returned on insufficient data.
func Stochastic(highs, lows, closes []float64, kPeriod, dPeriod int) (k, d float64) {
	n := len(closes)
	if kPeriod <= 0 || dPeriod <= 0 || n < kPeriod+dPeriod-1 || len(highs) != n || len(lows) != n {
		return 50, 50
	}

	kSeries := make([]float64, 0, dPeriod)
	for off := dPeriod - 1; off >= 0; off-- {
		end := n - off
		hi, lo := highs[end-kPeriod], lows[end-kPeriod]
		for i := end - kPeriod + 1; i < end; i++ {
			if highs[i] > hi {
				hi = highs[i]
			}
			if lows[i] < lo {
				lo = lows[i]
			}
		}
		if hi == lo {
			kSeries = append(kSeries, 50)
			continue
		}
		kSeries = append(kSeries, 100*(closes[end-1]-lo)/(hi-lo))
	}

	k = kSeries[len(kSeries)-1]
	sum := 0.0
	for _, v := range kSeries {
		sum += v
	}
	return k, sum / float64(len(kSeries))
}

// MACDResult holds the MACD line, signal line and histogram for the latest
// bar of a series.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes the moving average convergence/divergence with the given
// fast/slow/signal windows (12/26/9 conventionally).
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	if len(closes) < slow+signal {
		return MACDResult{}
	}
	fastSeq := EMASeq(closes, fast)
	slowSeq := EMASeq(closes, slow)

	macdSeq := make([]float64, len(closes))
	for i := range closes {
		macdSeq[i] = fastSeq[i] - slowSeq[i]
	}
	signalSeq := EMASeq(macdSeq, signal)

	last := len(closes) - 1
	return MACDResult{
		MACD:      macdSeq[last],
		Signal:    signalSeq[last],
		Histogram: macdSeq[last] - signalSeq[last],
	}
}

// ROC returns the rate of change of the series over the given lookback as a
// fraction (0.05 = +5%), or 0 on insufficient data.
func ROC(closes []float64, lookback int) float64 {
	n := len(closes)
	if lookback <= 0 || n <= lookback {
		return 0
	}
	prev := closes[n-1-lookback]
	if prev == 0 {
		return 0
	}
	return (closes[n-1] - prev) / prev
}
