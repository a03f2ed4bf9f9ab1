package model

// Indicator key names used in IndicatorSet.
const (
	IndEMA9        = "ema9"
	IndEMA20       = "ema20"
	IndEMA50       = "ema50"
	IndEMA200      = "ema200"
	IndVWAP        = "vwap"
	IndATR14       = "atr14"
	IndPriorHigh20 = "prior_high20"
	IndPriorLow20  = "prior_low20"
	IndOBV         = "obv"
	IndOBVSlope    = "obv_slope"
	IndRelVol      = "relvol"
	IndDollarVol20 = "dollar_vol20"
)

// IndicatorSet is a per-(symbol, timeframe) snapshot of named indicator
// values. A missing indicator is simply absent from the map, never zero.
type IndicatorSet map[string]float64

// Get returns the named value and whether it is present.
func (s IndicatorSet) Get(name string) (float64, bool) {
	v, ok := s[name]
	return v, ok
}

// Has reports whether every named indicator is present.
func (s IndicatorSet) Has(names ...string) bool {
	for _, n := range names {
		if _, ok := s[n]; !ok {
			return false
		}
	}
	return true
}
