package scoring

import (
	"github.com/sharif3/momentum-trader/internal/model"
	"github.com/sharif3/momentum-trader/internal/store/memory"
)

// Inputs is the per-request snapshot of closed 5m/15m data that drives the
// state machine and the hard gates. Booleans derived from missing values
// are false; scoring never treats absent data as a bullish signal.
type Inputs struct {
	C5, C15 float64
	Have5   bool
	Have15  bool

	EMA9x5, EMA20x5   float64
	EMA20x15          float64
	VWAP              float64
	HasVWAP           bool
	ATR5, ATR15       float64
	HasATR5, HasATR15 bool
	PriorLow5         float64
	PriorHigh15       float64
	PriorLow15        float64
	HasPrior15        bool
	SwingLow15        float64
	HasSwingLow15     bool
	OBVSlope5         float64
	HasOBVSlope5      bool
	OBVSlope15        float64
	RelVol5           float64
	HasRelVol5        bool
	DollarVol20       float64
	HasDollarVol20    bool

	// Derived predicates.
	TrendUp5          bool
	TrendUp15         bool
	StructureIntact15 bool
	AboveVWAP         bool
	OBVConfirm        bool
	Breakdown5        bool
	Breakdown15       bool

	// Anchor is VWAP(5m) when present, else EMA20(5m).
	Anchor    float64
	HasAnchor bool
}

// swingLowWindow is how many prior 15m lows form the swing-low proxy. The
// bar being scored is excluded: its own low is never below its close, so
// including it would make the breakdown comparison unsatisfiable.
const swingLowWindow = 20

// buildInputs assembles the snapshot from the store and indicator sets.
func buildInputs(st *memory.Store, ind5, ind15 model.IndicatorSet, symbol string) Inputs {
	var in Inputs

	if last := st.Latest(symbol, model.TF5m, 1); len(last) == 1 {
		in.C5 = last[0].C
		in.Have5 = true
	}
	if last := st.Latest(symbol, model.TF15m, 1); len(last) == 1 {
		in.C15 = last[0].C
		in.Have15 = true
	}

	var hasEMA9x5, hasEMA20x5, hasEMA20x15, hasPriorLow5 bool
	in.EMA9x5, hasEMA9x5 = ind5.Get(model.IndEMA9)
	in.EMA20x5, hasEMA20x5 = ind5.Get(model.IndEMA20)
	in.EMA20x15, hasEMA20x15 = ind15.Get(model.IndEMA20)
	in.VWAP, in.HasVWAP = ind5.Get(model.IndVWAP)
	in.ATR5, in.HasATR5 = ind5.Get(model.IndATR14)
	in.ATR15, in.HasATR15 = ind15.Get(model.IndATR14)
	in.PriorLow5, hasPriorLow5 = ind5.Get(model.IndPriorLow20)
	in.PriorHigh15, _ = ind15.Get(model.IndPriorHigh20)
	in.PriorLow15, in.HasPrior15 = ind15.Get(model.IndPriorLow20)
	in.OBVSlope5, in.HasOBVSlope5 = ind5.Get(model.IndOBVSlope)
	var hasOBVSlope15 bool
	in.OBVSlope15, hasOBVSlope15 = ind15.Get(model.IndOBVSlope)
	in.RelVol5, in.HasRelVol5 = ind5.Get(model.IndRelVol)
	in.DollarVol20, in.HasDollarVol20 = ind5.Get(model.IndDollarVol20)

	if lows := st.Latest(symbol, model.TF15m, swingLowWindow+1); len(lows) > 1 {
		prior := lows[:len(lows)-1]
		min := prior[0].L
		for _, c := range prior[1:] {
			if c.L < min {
				min = c.L
			}
		}
		in.SwingLow15 = min
		in.HasSwingLow15 = true
	}

	switch {
	case in.HasVWAP:
		in.Anchor, in.HasAnchor = in.VWAP, true
	case hasEMA20x5:
		in.Anchor, in.HasAnchor = in.EMA20x5, true
	}

	in.TrendUp5 = in.Have5 && hasEMA9x5 && hasEMA20x5 &&
		in.C5 > in.EMA9x5 && in.EMA9x5 > in.EMA20x5
	in.TrendUp15 = in.Have15 && hasEMA20x15 && in.C15 > in.EMA20x15
	in.StructureIntact15 = in.Have15 && in.HasSwingLow15 && in.HasPrior15 &&
		in.C15 >= in.SwingLow15 && in.C15 >= in.PriorLow15
	in.AboveVWAP = in.Have5 && in.HasAnchor && in.C5 > in.Anchor
	in.OBVConfirm = in.HasOBVSlope5 && hasOBVSlope15 &&
		in.OBVSlope5 > 0 && in.OBVSlope15 >= 0
	in.Breakdown5 = in.Have5 && hasEMA20x5 && hasPriorLow5 &&
		in.C5 < in.EMA20x5 && in.C5 < in.PriorLow5
	in.Breakdown15 = in.Have15 && ((hasEMA20x15 && in.C15 < in.EMA20x15) ||
		(in.HasSwingLow15 && in.C15 < in.SwingLow15))
	return in
}
