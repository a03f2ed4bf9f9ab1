// Package tape summarizes the broad market from the two reference
// instruments (SPY, QQQ): a tri-state risk-off flag on 15m structure and a
// 30-minute relative-strength comparison against QQQ on 5m closes.
package tape

import (
	"fmt"
	"time"

	"github.com/sharif3/momentum-trader/internal/indicator"
	"github.com/sharif3/momentum-trader/internal/model"
	"github.com/sharif3/momentum-trader/internal/store/memory"
)

// Reference instruments.
const (
	RefSPY = "SPY"
	RefQQQ = "QQQ"
)

// rsLookback is how many closed 5m bars back the relative-strength return
// reaches (6 bars ≈ 30 minutes).
const rsLookback = 6

// lowerLowRun is how many consecutive closed 15m lows must decline for a
// reference to flag risk-off.
const lowerLowRun = 3

// Context computes tape snapshots from the candle store.
type Context struct {
	store *memory.Store
	ind   *indicator.Engine

	// Now stamps ComputedAt. Overridable in tests.
	Now func() time.Time
}

// New creates a tape Context.
func New(store *memory.Store, ind *indicator.Engine) *Context {
	return &Context{store: store, ind: ind, Now: time.Now}
}

// Compute builds the tape snapshot for a request on ticker. RiskOffKnown is
// false when either reference's 15m series is stale, missing, or too short
// to evaluate; scoring treats that as a failed tape-gate precondition.
func (t *Context) Compute(ticker string) model.TapeSnapshot {
	snap := model.TapeSnapshot{
		Regime:     model.RegimeUnknown,
		ComputedAt: t.Now().UnixMilli(),
	}

	spyFlag, spyKnown := t.refRiskOff(RefSPY, &snap)
	qqqFlag, qqqKnown := t.refRiskOff(RefQQQ, &snap)

	if spyKnown && qqqKnown {
		snap.RiskOffKnown = true
		snap.RiskOff = spyFlag && qqqFlag
		switch {
		case spyFlag && qqqFlag:
			snap.Regime = model.RegimeRiskOff
		case spyFlag || qqqFlag:
			snap.Regime = model.RegimeNeutral
		default:
			snap.Regime = model.RegimeRiskOn
		}
	}

	if rs, ok := t.rs30m(ticker); ok {
		snap.RS30m = &rs
		snap.Audit = append(snap.Audit, fmt.Sprintf("rs_30m %s vs %s = %+.4f", ticker, RefQQQ, rs))
	} else {
		snap.Audit = append(snap.Audit, "rs_30m missing")
	}
	return snap
}

// refRiskOff evaluates one reference: flagged when the 15m close is below
// EMA20(15m) and the last lowerLowRun closed 15m lows strictly decrease.
func (t *Context) refRiskOff(ref string, snap *model.TapeSnapshot) (flagged, known bool) {
	if f := t.store.Freshness(ref, model.TF15m); f != model.Fresh {
		snap.Audit = append(snap.Audit, fmt.Sprintf("%s 15m %s", ref, f))
		return false, false
	}
	candles := t.store.Latest(ref, model.TF15m, lowerLowRun)
	if len(candles) < lowerLowRun {
		snap.Audit = append(snap.Audit, fmt.Sprintf("%s 15m history short", ref))
		return false, false
	}
	ema20, ok := t.ind.Compute(ref, model.TF15m).Get(model.IndEMA20)
	if !ok {
		snap.Audit = append(snap.Audit, fmt.Sprintf("%s ema20(15m) missing", ref))
		return false, false
	}

	lowerLows := true
	for i := 1; i < len(candles); i++ {
		if candles[i].L >= candles[i-1].L {
			lowerLows = false
			break
		}
	}
	last := candles[len(candles)-1]
	flagged = last.C < ema20 && lowerLows
	snap.Audit = append(snap.Audit, fmt.Sprintf("%s c=%.2f ema20=%.2f lower_lows=%v flagged=%v",
		ref, last.C, ema20, lowerLows, flagged))
	return flagged, true
}

// rs30m returns the ticker's 30-minute return minus QQQ's, both measured
// over the last rsLookback closed 5m bars.
func (t *Context) rs30m(ticker string) (float64, bool) {
	rt, ok := t.return5m(ticker)
	if !ok {
		return 0, false
	}
	rq, ok := t.return5m(RefQQQ)
	if !ok {
		return 0, false
	}
	return rt - rq, true
}

func (t *Context) return5m(symbol string) (float64, bool) {
	candles := t.store.Latest(symbol, model.TF5m, rsLookback+1)
	if len(candles) < rsLookback+1 {
		return 0, false
	}
	ref := candles[0].C
	if ref == 0 {
		return 0, false
	}
	return candles[len(candles)-1].C/ref - 1, true
}
