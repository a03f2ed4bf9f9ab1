package indicator

import (
	"github.com/sharif3/momentum-trader/internal/model"
)

// SessionVWAP returns the cumulative volume-weighted average of the typical
// price (h+l+c)/3 over the RTH-tagged 5m candles whose start falls at or
// after sessionOpenMS. Missing when no RTH candle with volume exists; the
// caller falls back to EMA20(5m) as its anchor.
func SessionVWAP(candles []model.Candle, sessionOpenMS int64) (float64, bool) {
	var pv, vol float64
	for _, c := range candles {
		if c.StartTS < sessionOpenMS || c.Session != model.SessionRTH {
			continue
		}
		tp := (c.H + c.L + c.C) / 3
		pv += tp * c.Volume
		vol += c.Volume
	}
	if vol == 0 {
		return 0, false
	}
	return pv / vol, true
}
