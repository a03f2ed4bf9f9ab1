package model

import (
	"encoding/json"
	"math"
	"time"
)

// Source identifies where a candle came from.
type Source string

const (
	SourceWS   Source = "WS"   // built live from ticks
	SourceREST Source = "REST" // authoritative closed bar from the provider REST API
	SourceAGG  Source = "AGG"  // aggregated from lower-timeframe candles
)

// Candle is an OHLCV bar for a single (symbol, timeframe) window.
// StartTS is epoch milliseconds UTC, aligned to the timeframe width.
type Candle struct {
	Symbol    string     `json:"symbol"`
	Timeframe Timeframe  `json:"timeframe"`
	StartTS   int64      `json:"start_ts"`
	O         float64    `json:"o"`
	H         float64    `json:"h"`
	L         float64    `json:"l"`
	C         float64    `json:"c"`
	Volume    float64    `json:"volume"`
	Session   SessionTag `json:"session_tag"`
	IsClosed  bool       `json:"is_closed"`
	Source    Source     `json:"source"`
}

// Key returns "symbol:timeframe".
func (c *Candle) Key() string {
	return c.Symbol + ":" + string(c.Timeframe)
}

// EndTS returns the exclusive end of the candle window in epoch ms.
func (c *Candle) EndTS() int64 {
	return c.StartTS + c.Timeframe.Millis()
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Validate enforces the candle invariants:
//   - start_ts aligned to the timeframe width
//   - l <= min(o,c) <= max(o,c) <= h
//   - volume >= 0, all values finite
//   - a bar whose nominal close is in the future must not claim is_closed
//   - a partial REST bar (is_closed=false, source=REST) is rejected outright
func (c *Candle) Validate(now time.Time) error {
	if c.Symbol == "" || !c.Timeframe.Valid() {
		return ErrMalformedCandle
	}
	if c.StartTS%c.Timeframe.Millis() != 0 {
		return ErrMalformedCandle
	}
	for _, v := range [...]float64{c.O, c.H, c.L, c.C, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrMalformedCandle
		}
	}
	if c.Volume < 0 {
		return ErrMalformedCandle
	}
	lo, hi := c.O, c.C
	if lo > hi {
		lo, hi = hi, lo
	}
	if c.L > lo || hi > c.H {
		return ErrMalformedCandle
	}
	nowMS := now.UnixMilli()
	if c.StartTS > nowMS {
		return ErrMalformedCandle
	}
	if c.IsClosed && c.EndTS() > nowMS {
		return ErrMalformedCandle
	}
	if c.Source == SourceREST && !c.IsClosed {
		return ErrMalformedCandle
	}
	return nil
}
