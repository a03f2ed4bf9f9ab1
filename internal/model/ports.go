package model

import "context"

// ── Provider Port Interface ──
// Decouples the pipeline from concrete market-data vendors. Adapters are
// selected at startup from configuration.

// Provider is the market-data capability contract.
type Provider interface {
	// Name returns the adapter id (e.g. "eodhd", "sim").
	Name() string

	// FetchCandles returns closed candles for the symbol and timeframe in
	// [fromMS, toMS). Implementations must yield only closed candles; the
	// consumer discards anything else.
	FetchCandles(ctx context.Context, symbol string, tf Timeframe, fromMS, toMS int64) ([]Candle, error)

	// StreamTicks establishes one WebSocket session, subscribes to the
	// symbols and pushes parsed ticks into out until the connection drops
	// or ctx is cancelled. Returns nil on clean shutdown; the caller owns
	// reconnect and backoff.
	StreamTicks(ctx context.Context, symbols []string, out chan<- Tick) error
}
