// Package scoring turns store and indicator state into an actionable
// signal: a momentum state machine, a set of hard gates that must all pass
// before a BUY, and the risk levels attached to a passing setup. Every
// gate decision lands in the audit trail so a signal can be explained
// after the fact.
package scoring

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sharif3/momentum-trader/internal/indicator"
	"github.com/sharif3/momentum-trader/internal/markethours"
	"github.com/sharif3/momentum-trader/internal/model"
	"github.com/sharif3/momentum-trader/internal/store/memory"
	"github.com/sharif3/momentum-trader/internal/tape"
)

const (
	// DefaultLiquidityFloorUSD is the minimum average 5m dollar-volume.
	DefaultLiquidityFloorUSD = 1_000_000

	// minRelVol is the thin-volume threshold on 5m.
	minRelVol = 0.5

	// riskOffMinRS is the relative strength required under a risk-off tape.
	riskOffMinRS = 0.005

	// gapCheckWindow and maxGaps bound how porous a series may be before
	// scoring refuses to act on it.
	gapCheckWindow = 20
	maxGaps        = 2

	// levelBandATR widens support/resistance levels into bands.
	levelBandATR = 0.25
)

// scoredTFs are the timeframes reported in the freshness map.
var scoredTFs = []model.Timeframe{
	model.TF1m, model.TF5m, model.TF15m, model.TF1h, model.TF4h, model.TF1d,
}

// Engine scores symbols on demand. The per-symbol state machine position is
// the only mutable state; it resets to NO_MOMO on restart. Because the
// transition table keys on the previous state, every Score call advances
// it: two calls over identical store data need not return the same state
// (FAILING on the first can become BUILDING on the second). See DESIGN.md
// on warm-start.
type Engine struct {
	store *memory.Store
	ind   *indicator.Engine
	tape  *tape.Context

	// LiquidityFloorUSD overrides the default dollar-volume floor.
	LiquidityFloorUSD float64

	// Now drives the EXT-session check. Overridable in tests.
	Now func() time.Time

	mu     sync.Mutex
	states map[string]model.State
}

// New creates a scoring Engine.
func New(store *memory.Store, ind *indicator.Engine, tp *tape.Context) *Engine {
	return &Engine{
		store:             store,
		ind:               ind,
		tape:              tp,
		LiquidityFloorUSD: DefaultLiquidityFloorUSD,
		Now:               time.Now,
		states:            make(map[string]model.State),
	}
}

// State returns the current state-machine position for symbol.
func (e *Engine) State(symbol string) model.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.states[symbol]; ok {
		return s
	}
	return model.StateNoMomo
}

// Score evaluates symbol and returns the full scored result. It fails only
// when no data was ever ingested for the symbol; any degraded-data case is
// reported inside the result instead.
func (e *Engine) Score(symbol string) (model.ScoreResult, error) {
	if !e.store.HasAny(symbol) {
		return model.ScoreResult{}, fmt.Errorf("score %s: %w", symbol, model.ErrInsufficientHistory)
	}

	ind5 := e.ind.Compute(symbol, model.TF5m)
	ind15 := e.ind.Compute(symbol, model.TF15m)
	in := buildInputs(e.store, ind5, ind15, symbol)
	tp := e.tape.Compute(symbol)

	e.mu.Lock()
	prev, ok := e.states[symbol]
	if !ok {
		prev = model.StateNoMomo
	}
	state, rule := Transition(prev, in)
	e.states[symbol] = state
	e.mu.Unlock()

	res := model.ScoreResult{
		Ticker:    symbol,
		Signal:    model.SignalHold,
		State:     state,
		Freshness: make(map[model.Timeframe]model.FreshState, len(scoredTFs)),
		Tape:      tp,
	}
	for _, tf := range scoredTFs {
		res.Freshness[tf] = e.store.Freshness(symbol, tf)
	}
	res.Audit = append(res.Audit, model.GateResult{
		Gate:   "state_machine",
		Passed: true,
		Detail: fmt.Sprintf("%s -> %s: %s", prev, state, rule),
	})

	liquidityOK := e.gateLiquidity(&res, in)
	structureOK := e.gateStructure(&res, in)
	noChaseOK := e.gateNoChase(&res, in)
	tapeOK := e.gateTape(&res, tp)
	freshOK := e.gateFreshness(&res)
	gapsOK := e.gateGaps(&res, symbol)

	e.fillLevels(&res, in)
	e.fillLastPrice(&res, symbol)
	extOK := e.gateSessionVolume(&res, in)

	switch {
	case !liquidityOK:
		res.Signal = model.SignalIgnore

	case !freshOK:
		res.Signal = model.SignalHold

	case state == model.StateFailed,
		state == model.StateFailing && in.HasOBVSlope5 && in.OBVSlope5 <= 0:
		res.Signal = model.SignalExit

	case !gapsOK, !extOK:
		res.Signal = model.SignalHold

	case state == model.StateActive && structureOK && noChaseOK && tapeOK:
		res.Signal = model.SignalBuy
		e.fillRisk(&res, in, tp)

	default:
		res.Signal = model.SignalHold
	}
	return res, nil
}

func (e *Engine) gateLiquidity(res *model.ScoreResult, in Inputs) bool {
	floor := e.LiquidityFloorUSD
	if floor <= 0 {
		floor = DefaultLiquidityFloorUSD
	}
	passed := in.HasRelVol5 && in.RelVol5 >= minRelVol &&
		in.HasDollarVol20 && in.DollarVol20 >= floor
	detail := fmt.Sprintf("relvol=%s dollar_vol20=%s floor=%.0f",
		fmtOpt(in.RelVol5, in.HasRelVol5), fmtOpt(in.DollarVol20, in.HasDollarVol20), floor)
	if in.HasRelVol5 && in.RelVol5 < minRelVol {
		detail += " thin_volume"
	}
	res.Audit = append(res.Audit, model.GateResult{Gate: "liquidity", Passed: passed, Detail: detail})
	return passed
}

func (e *Engine) gateStructure(res *model.ScoreResult, in Inputs) bool {
	detail := fmt.Sprintf("c15=%s swing_low=%s prior_low20=%s",
		fmtOpt(in.C15, in.Have15), fmtOpt(in.SwingLow15, in.HasSwingLow15),
		fmtOpt(in.PriorLow15, in.HasPrior15))
	res.Audit = append(res.Audit, model.GateResult{Gate: "structure", Passed: in.StructureIntact15, Detail: detail})
	return in.StructureIntact15
}

func (e *Engine) gateNoChase(res *model.ScoreResult, in Inputs) bool {
	passed := false
	detail := "anchor or atr missing"
	if in.Have5 && in.HasAnchor && in.HasATR5 {
		dist := math.Abs(in.C5 - in.Anchor)
		passed = dist <= 2*in.ATR5
		detail = fmt.Sprintf("dist=%.4f limit=%.4f anchor=%.4f", dist, 2*in.ATR5, in.Anchor)
	}
	res.Audit = append(res.Audit, model.GateResult{Gate: "no_chase", Passed: passed, Detail: detail})
	return passed
}

func (e *Engine) gateTape(res *model.ScoreResult, tp model.TapeSnapshot) bool {
	passed := false
	var detail string
	switch {
	case !tp.RiskOffKnown:
		detail = "risk_off unknown"
	case !tp.RiskOff:
		passed = true
		detail = fmt.Sprintf("regime=%s", tp.Regime)
	case tp.RS30m != nil && *tp.RS30m >= riskOffMinRS:
		passed = true
		detail = fmt.Sprintf("risk_off, rs_30m=%+.4f clears %.4f", *tp.RS30m, riskOffMinRS)
	case tp.RS30m != nil:
		detail = fmt.Sprintf("risk_off, rs_30m=%+.4f insufficient", *tp.RS30m)
	default:
		detail = "risk_off, rs_30m missing"
	}
	res.Audit = append(res.Audit, model.GateResult{Gate: "tape", Passed: passed, Detail: detail})
	return passed
}

func (e *Engine) gateFreshness(res *model.ScoreResult) bool {
	passed := true
	for _, tf := range []model.Timeframe{model.TF5m, model.TF15m} {
		if res.Freshness[tf] != model.Fresh {
			passed = false
			res.MissingTFs = append(res.MissingTFs, tf)
		}
	}
	detail := fmt.Sprintf("5m=%s 15m=%s", res.Freshness[model.TF5m], res.Freshness[model.TF15m])
	res.Audit = append(res.Audit, model.GateResult{Gate: "freshness", Passed: passed, Detail: detail})
	return passed
}

// gateGaps refuses to act on a series with too many missing slots in the
// recent window; indicators over porous series are not trustworthy.
func (e *Engine) gateGaps(res *model.ScoreResult, symbol string) bool {
	g5 := len(e.store.Gaps(symbol, model.TF5m, gapCheckWindow))
	g15 := len(e.store.Gaps(symbol, model.TF15m, gapCheckWindow))
	passed := g5 <= maxGaps && g15 <= maxGaps
	res.Audit = append(res.Audit, model.GateResult{
		Gate:   "gap_check",
		Passed: passed,
		Detail: fmt.Sprintf("gaps_5m=%d gaps_15m=%d max=%d", g5, g15, maxGaps),
	})
	return passed
}

// gateSessionVolume forces HOLD for extended-hours prices on thin volume.
func (e *Engine) gateSessionVolume(res *model.ScoreResult, in Inputs) bool {
	if res.LastPriceTS == nil {
		return true
	}
	if markethours.IsRTH(time.UnixMilli(*res.LastPriceTS)) {
		return true
	}
	passed := in.HasRelVol5 && in.RelVol5 >= minRelVol
	res.Audit = append(res.Audit, model.GateResult{
		Gate:   "ext_session_volume",
		Passed: passed,
		Detail: fmt.Sprintf("outside RTH, relvol=%s", fmtOpt(in.RelVol5, in.HasRelVol5)),
	})
	return passed
}

// fillLevels derives the support and resistance bands from the 15m prior
// extremes, widened by a quarter ATR.
func (e *Engine) fillLevels(res *model.ScoreResult, in Inputs) {
	if !in.HasPrior15 || !in.HasATR15 {
		return
	}
	band := levelBandATR * in.ATR15
	res.SupportRange = &model.Range{Lo: in.PriorLow15 - band, Hi: in.PriorLow15 + band}
	res.Resistance1 = &model.Range{Lo: in.PriorHigh15 - band, Hi: in.PriorHigh15 + band}
	r2 := in.PriorHigh15 + in.ATR15
	res.Resistance2 = &model.Range{Lo: r2 - band, Hi: r2 + band}
}

// fillLastPrice records the freshest known price and where it came from:
// the forming 1m bar when the stream is live, else the newest closed bar.
func (e *Engine) fillLastPrice(res *model.ScoreResult, symbol string) {
	if f, ok := e.store.Forming(symbol, model.TF1m); ok {
		res.LastPrice, res.LastPriceTS = &f.C, &f.StartTS
		res.LastPriceSource = "forming_1m"
		return
	}
	for _, tf := range []model.Timeframe{model.TF1m, model.TF5m} {
		if last := e.store.Latest(symbol, tf, 1); len(last) == 1 {
			c := last[0]
			end := c.EndTS()
			res.LastPrice, res.LastPriceTS = &c.C, &end
			res.LastPriceSource = string(tf)
			return
		}
	}
}

func (e *Engine) fillRisk(res *model.ScoreResult, in Inputs, tp model.TapeSnapshot) {
	if !in.HasAnchor || !in.HasATR5 {
		return
	}
	anchor, atr := in.Anchor, in.ATR5

	if in.C5 > anchor+0.5*atr {
		// Price ran from the anchor: only a tight breakout entry is allowed.
		res.EntryRange = &model.Range{Lo: in.C5 - 0.25*atr, Hi: in.C5 + 0.25*atr}
	} else {
		res.EntryRange = &model.Range{Lo: anchor, Hi: anchor + 0.5*atr}
	}
	stop := anchor - 1.2*atr
	res.Stop = &stop
	if in.HasATR15 {
		res.Targets = []float64{in.C5 + in.ATR15, in.C5 + 2*in.ATR15}
	}

	conf := 0.5
	if in.OBVConfirm {
		conf += 0.1
	}
	if tp.RS30m != nil && *tp.RS30m > 0 {
		conf += 0.1
	}
	if tp.RiskOffKnown && !tp.RiskOff {
		conf += 0.1
	}
	if in.TrendUp15 {
		conf += 0.1
	}
	if in.HasRelVol5 && in.RelVol5 >= 1.0 {
		conf += 0.1
	}
	res.Confidence = clip01(conf)

	dist := math.Abs(in.C5 - anchor)
	res.SizeHint = res.Confidence * (1 - math.Min(1, dist/(2*atr)))
}

func clip01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func fmtOpt(v float64, ok bool) string {
	if !ok {
		return "missing"
	}
	return fmt.Sprintf("%.4f", v)
}
