package model

import "errors"

// Error kinds used across the pipeline. Ingest-layer errors are absorbed
// locally (counter + drop); request-layer errors map to HTTP statuses in
// the api package.
var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrMalformedTick       = errors.New("malformed tick")
	ErrMalformedCandle     = errors.New("malformed candle")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrStaleData           = errors.New("stale data")
	ErrLiquidityFail       = errors.New("liquidity gate failed")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvariantViolation  = errors.New("internal invariant violation")
)
