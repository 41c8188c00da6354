package ta

// Moving-average helpers shared by the oscillator and signal code. All
// functions are pure and operate on close-price slices ordered oldest first.

// SMA returns the simple moving average of the last window values, or 0 if
// there is not enough data.
func SMA(values []float64, window int) float64 {
	if window <= 0 || len(values) < window {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-window:] {
		sum += v
	}
	return sum / float64(window)
}

// EMASeq returns the full exponential moving average series for the given
// window. The first value seeds the series.
func EMASeq(values []float64, window int) []float64 {
	if len(values) == 0 || window <= 1 {
		return nil
	}
	k := 2.0 / (float64(window) + 1.0)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = k*values[i] + (1-k)*out[i-1]
	}
	return out
}

// EMA returns the latest exponential moving average value for the window,
// or 0 if there is not enough data.
func EMA(values []float64, window int) float64 {
	if len(values) < window {
		return 0
	}
	seq := EMASeq(values, window)
	if len(seq) == 0 {
		return 0
	}
	return seq[len(seq)-1]
}
