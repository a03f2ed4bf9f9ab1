package model

import "math"

// SessionTag marks which trading session a tick or candle belongs to.
type SessionTag string

const (
	SessionRTH     SessionTag = "RTH"
	SessionEXT     SessionTag = "EXT"
	SessionUnknown SessionTag = "UNKNOWN"
)

// Tick represents a single trade report from the provider WebSocket.
// TS is epoch milliseconds UTC.
type Tick struct {
	Symbol  string     `json:"symbol"`
	TS      int64      `json:"t_ms"`
	Price   float64    `json:"price"`
	Size    float64    `json:"size"`
	Session SessionTag `json:"session_tag"`
}

// Validate performs structural checks only; time-based checks (future /
// stale) belong to the builder, which knows the current open bar.
func (t *Tick) Validate() error {
	if t.Symbol == "" {
		return ErrMalformedTick
	}
	if t.Price <= 0 || t.Size < 0 {
		return ErrMalformedTick
	}
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) ||
		math.IsNaN(t.Size) || math.IsInf(t.Size, 0) {
		return ErrMalformedTick
	}
	if t.TS <= 0 {
		return ErrMalformedTick
	}
	return nil
}
