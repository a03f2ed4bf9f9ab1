package indicator

import "github.com/sharif3/momentum-trader/internal/model"

// relVolSlotWindow is how many prior same-slot-of-day bars form the
// baseline, and minSlotSamples how many of them must exist before the
// slot baseline is trusted over the plain last-20 mean.
const (
	relVolSlotWindow = 20
	minSlotSamples   = 5
	relVolFallback   = 20
)

const dayMillis = int64(24 * 60 * 60 * 1000)

// RelVol compares the newest closed bar's volume with a historical
// baseline: the mean volume of up to 20 prior bars occupying the same
// time-of-day slot, or, when fewer than minSlotSamples such bars exist,
// the mean of the last 20 prior bars. Missing when there is no usable
// baseline.
func RelVol(candles []model.Candle) (float64, bool) {
	n := len(candles)
	if n < 2 {
		return 0, false
	}
	cur := candles[n-1]
	prior := candles[:n-1]

	slot := cur.StartTS % dayMillis
	var slotVols []float64
	for i := len(prior) - 1; i >= 0 && len(slotVols) < relVolSlotWindow; i-- {
		if prior[i].StartTS%dayMillis == slot {
			slotVols = append(slotVols, prior[i].Volume)
		}
	}

	baseline := slotVols
	if len(slotVols) < minSlotSamples {
		start := len(prior) - relVolFallback
		if start < 0 {
			start = 0
		}
		baseline = baseline[:0]
		for _, c := range prior[start:] {
			baseline = append(baseline, c.Volume)
		}
	}
	m := mean(baseline)
	if m <= 0 {
		return 0, false
	}
	return cur.Volume / m, true
}

// DollarVol returns the mean of close×volume over the last `window`
// closed bars. Missing until the window is full.
func DollarVol(candles []model.Candle, window int) (float64, bool) {
	if len(candles) < window {
		return 0, false
	}
	tail := candles[len(candles)-window:]
	var sum float64
	for _, c := range tail {
		sum += c.C * c.Volume
	}
	return sum / float64(window), true
}
