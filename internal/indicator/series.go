// Package indicator computes the fixed technical indicator set per
// (symbol, timeframe) from the candle store. All computations are pure
// deterministic functions of the closed-candle series; when insufficient
// history exists the indicator is absent from the result, never zero.
package indicator

import "math"

// EMALast returns the exponential moving average of the series with
// alpha = 2/(n+1), seeded from an SMA over the first n values. Undefined
// until n values exist.
func EMALast(values []float64, n int) (float64, bool) {
	if n <= 0 || len(values) < n {
		return 0, false
	}
	var sum float64
	for _, v := range values[:n] {
		sum += v
	}
	ema := sum / float64(n)
	alpha := 2.0 / float64(n+1)
	for _, v := range values[n:] {
		ema = v*alpha + ema*(1-alpha)
	}
	return ema, true
}

// TrueRanges returns the TR series: max(h−l, |h−prevC|, |l−prevC|).
// One element shorter than the input.
func TrueRanges(highs, lows, closes []float64) []float64 {
	if len(highs) < 2 {
		return nil
	}
	tr := make([]float64, 0, len(highs)-1)
	for i := 1; i < len(highs); i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr = append(tr, math.Max(hl, math.Max(hc, lc)))
	}
	return tr
}

// ATRLast returns Wilder's ATR: seeded as the SMA of the first n true
// ranges, then ATR_i = (ATR_{i-1}*(n-1) + TR_i)/n. Needs n+1 bars.
func ATRLast(highs, lows, closes []float64, n int) (float64, bool) {
	tr := TrueRanges(highs, lows, closes)
	if n <= 0 || len(tr) < n {
		return 0, false
	}
	var sum float64
	for _, v := range tr[:n] {
		sum += v
	}
	atr := sum / float64(n)
	for _, v := range tr[n:] {
		atr = (atr*float64(n-1) + v) / float64(n)
	}
	return atr, true
}

// OBVSeries returns the on-balance volume recurrence starting at 0.
func OBVSeries(closes, volumes []float64) []float64 {
	if len(closes) < 2 || len(closes) != len(volumes) {
		return nil
	}
	obv := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			obv[i] = obv[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			obv[i] = obv[i-1] - volumes[i]
		default:
			obv[i] = obv[i-1]
		}
	}
	return obv
}

// LinearSlope returns the least-squares slope of y against x = 0..n-1.
func LinearSlope(y []float64) float64 {
	n := len(y)
	if n < 2 {
		return 0
	}
	fn := float64(n)
	sumX := (fn - 1) * fn / 2
	sumX2 := (fn - 1) * fn * (2*fn - 1) / 6
	var sumY, sumXY float64
	for i, v := range y {
		sumY += v
		sumXY += float64(i) * v
	}
	denom := fn*sumX2 - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (fn*sumXY - sumX*sumY) / denom
}

// OBVSlopeLast returns the scale-free OBV slope: the least-squares slope
// of the last `window` OBV points divided by the mean absolute OBV value
// over the same window. Undefined until the window is full.
func OBVSlopeLast(closes, volumes []float64, window int) (float64, bool) {
	obv := OBVSeries(closes, volumes)
	if len(obv) < window || window < 2 {
		return 0, false
	}
	tail := obv[len(obv)-window:]
	slope := LinearSlope(tail)
	var absSum float64
	for _, v := range tail {
		absSum += math.Abs(v)
	}
	meanAbs := absSum / float64(window)
	if meanAbs == 0 {
		return 0, true
	}
	return slope / meanAbs, true
}

// PriorExtremes returns the max high and min low over the last `window`
// closed bars excluding the current (last) bar.
func PriorExtremes(highs, lows []float64, window int) (hi, lo float64, ok bool) {
	if len(highs) < window+1 || len(highs) != len(lows) {
		return 0, 0, false
	}
	start := len(highs) - window - 1
	hi, lo = highs[start], lows[start]
	for i := start + 1; i < len(highs)-1; i++ {
		if highs[i] > hi {
			hi = highs[i]
		}
		if lows[i] < lo {
			lo = lows[i]
		}
	}
	return hi, lo, true
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
