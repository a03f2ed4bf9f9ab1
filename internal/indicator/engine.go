package indicator

import (
	"time"

	"github.com/sharif3/momentum-trader/internal/markethours"
	"github.com/sharif3/momentum-trader/internal/model"
	"github.com/sharif3/momentum-trader/internal/store/memory"
)

// Window sizes per indicator.
const (
	atrPeriod    = 14
	priorWindow  = 20
	obvWindow    = 10
	dollarWindow = 20
)

// Engine computes indicator sets on demand from the candle store. It keeps
// no state of its own; every Compute call reads the current closed series.
type Engine struct {
	store *memory.Store

	// Now anchors the session VWAP. Overridable in tests.
	Now func() time.Time
}

// New creates an Engine reading from store.
func New(store *memory.Store) *Engine {
	return &Engine{store: store, Now: time.Now}
}

// Compute returns the indicator set for (symbol, tf). Indicators whose
// history requirements are not met are absent from the returned set.
func (e *Engine) Compute(symbol string, tf model.Timeframe) model.IndicatorSet {
	candles := e.store.Latest(symbol, tf, 0)
	set := make(model.IndicatorSet)
	if len(candles) == 0 {
		return set
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.C
		highs[i] = c.H
		lows[i] = c.L
		volumes[i] = c.Volume
	}

	put := func(name string, v float64, ok bool) {
		if ok {
			set[name] = v
		}
	}
	ema := func(name string, n int) {
		v, ok := EMALast(closes, n)
		put(name, v, ok)
	}

	switch tf {
	case model.TF1m:
		ema(model.IndEMA9, 9)
		ema(model.IndEMA20, 20)

	case model.TF5m:
		ema(model.IndEMA9, 9)
		ema(model.IndEMA20, 20)
		open := markethours.SessionOpen(e.Now())
		v, ok := SessionVWAP(candles, open.UnixMilli())
		put(model.IndVWAP, v, ok)
		e.common(set, candles, highs, lows, closes, volumes)
		dv, ok := DollarVol(candles, dollarWindow)
		put(model.IndDollarVol20, dv, ok)

	case model.TF15m:
		ema(model.IndEMA9, 9)
		ema(model.IndEMA20, 20)
		ema(model.IndEMA50, 50)
		ema(model.IndEMA200, 200)
		e.common(set, candles, highs, lows, closes, volumes)

	case model.TF1h, model.TF1d:
		ema(model.IndEMA50, 50)
		ema(model.IndEMA200, 200)
	}
	return set
}

// common fills the indicators shared by 5m and 15m: ATR14, prior extremes,
// OBV level and slope, RelVol.
func (e *Engine) common(set model.IndicatorSet, candles []model.Candle, highs, lows, closes, volumes []float64) {
	if atr, ok := ATRLast(highs, lows, closes, atrPeriod); ok {
		set[model.IndATR14] = atr
	}
	if hi, lo, ok := PriorExtremes(highs, lows, priorWindow); ok {
		set[model.IndPriorHigh20] = hi
		set[model.IndPriorLow20] = lo
	}
	if obv := OBVSeries(closes, volumes); len(obv) > 0 {
		set[model.IndOBV] = obv[len(obv)-1]
	}
	if slope, ok := OBVSlopeLast(closes, volumes, obvWindow); ok {
		set[model.IndOBVSlope] = slope
	}
	if rv, ok := RelVol(candles); ok {
		set[model.IndRelVol] = rv
	}
}
