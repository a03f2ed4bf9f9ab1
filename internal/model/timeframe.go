package model

// Timeframe is a discrete bar width.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// AllTimeframes lists every supported timeframe, shortest first.
var AllTimeframes = []Timeframe{TF1m, TF5m, TF15m, TF1h, TF4h, TF1d}

// tfMillis maps each timeframe to its width in epoch milliseconds.
var tfMillis = map[Timeframe]int64{
	TF1m:  60_000,
	TF5m:  300_000,
	TF15m: 900_000,
	TF1h:  3_600_000,
	TF4h:  14_400_000,
	TF1d:  86_400_000,
}

// DefaultRetention is the per-timeframe closed-candle retention policy.
var DefaultRetention = map[Timeframe]int{
	TF1m:  240,
	TF5m:  240,
	TF15m: 200,
	TF1h:  200,
	TF4h:  200,
	TF1d:  400,
}

// Millis returns the timeframe width in milliseconds. Returns 0 for an
// unknown timeframe.
func (tf Timeframe) Millis() int64 {
	return tfMillis[tf]
}

// Valid reports whether tf is a supported timeframe.
func (tf Timeframe) Valid() bool {
	_, ok := tfMillis[tf]
	return ok
}

// Bucket aligns an epoch-ms timestamp down to the start of its tf window.
func (tf Timeframe) Bucket(tsMS int64) int64 {
	w := tf.Millis()
	if w == 0 {
		return tsMS
	}
	return tsMS - tsMS%w
}
