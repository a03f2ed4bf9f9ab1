package indicator

import (
	"testing"
	"time"

	"github.com/sharif3/momentum-trader/internal/model"
	"github.com/sharif3/momentum-trader/internal/store/memory"
)

// rthBase is 2023-11-15 14:30 UTC (09:30 ET), the RTH open of a weekday.
const rthBase = int64(1_700_006_400_000 + 52_200_000)

func fill5m(t *testing.T, st *memory.Store, symbol string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		start := rthBase + int64(i)*300_000
		px := 100 + float64(i)*0.5
		c := model.Candle{
			Symbol:    symbol,
			Timeframe: model.TF5m,
			StartTS:   start,
			O:         px,
			H:         px + 1,
			L:         px - 1,
			C:         px + 0.5,
			Volume:    1000,
			Session:   model.SessionRTH,
			IsClosed:  true,
			Source:    model.SourceAGG,
		}
		if err := st.Append(c); err != nil {
			t.Fatalf("append bar %d: %v", i, err)
		}
	}
}

func newTestEngine(nowMS int64) (*Engine, *memory.Store) {
	st := memory.New(nil)
	st.Now = func() time.Time { return time.UnixMilli(nowMS).UTC() }
	e := New(st)
	e.Now = st.Now
	return e, st
}

func TestEngine_5mSet(t *testing.T) {
	now := rthBase + 31*300_000
	e, st := newTestEngine(now)
	fill5m(t, st, "TSLA", 30)

	set := e.Compute("TSLA", model.TF5m)
	want := []string{
		model.IndEMA9, model.IndEMA20, model.IndVWAP, model.IndATR14,
		model.IndPriorHigh20, model.IndPriorLow20, model.IndOBV,
		model.IndOBVSlope, model.IndRelVol, model.IndDollarVol20,
	}
	for _, name := range want {
		if _, ok := set[name]; !ok {
			t.Errorf("5m set missing %s", name)
		}
	}
	if set[model.IndEMA9] <= set[model.IndEMA20] {
		t.Errorf("rising closes should give EMA9 > EMA20: %v vs %v",
			set[model.IndEMA9], set[model.IndEMA20])
	}
	if set[model.IndOBVSlope] <= 0 {
		t.Errorf("rising closes should give positive OBV slope: %v", set[model.IndOBVSlope])
	}
}

func TestEngine_InsufficientHistoryIsAbsent(t *testing.T) {
	now := rthBase + 6*300_000
	e, st := newTestEngine(now)
	fill5m(t, st, "A", 5)

	set := e.Compute("A", model.TF5m)
	for _, name := range []string{model.IndEMA9, model.IndEMA20, model.IndATR14, model.IndPriorHigh20} {
		if _, ok := set[name]; ok {
			t.Errorf("%s should be absent with 5 bars", name)
		}
	}
	// RelVol has a last-20 fallback so it is defined with any prior bar.
	if _, ok := set[model.IndRelVol]; !ok {
		t.Error("RelVol fallback should be defined with 5 bars")
	}
}

func TestEngine_EmptySeries(t *testing.T) {
	e, _ := newTestEngine(rthBase)
	set := e.Compute("GHOST", model.TF5m)
	if len(set) != 0 {
		t.Errorf("empty series should give empty set, got %v", set)
	}
}

func TestEngine_1hSetHasLongEMAsOnly(t *testing.T) {
	// 1h bars aligned to the hour; 210 of them to define EMA200.
	hourBase := int64(1_700_006_400_000)
	now := hourBase + 211*3_600_000
	e, st := newTestEngine(now)
	for i := 0; i < 210; i++ {
		start := hourBase + int64(i)*3_600_000
		c := model.Candle{
			Symbol: "A", Timeframe: model.TF1h, StartTS: start,
			O: 100, H: 101, L: 99, C: 100, Volume: 10,
			Session: model.SessionRTH, IsClosed: true, Source: model.SourceREST,
		}
		if err := st.Append(c); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	set := e.Compute("A", model.TF1h)
	if !set.Has(model.IndEMA50, model.IndEMA200) {
		t.Errorf("1h should carry EMA50/EMA200, got %v", set)
	}
	if _, ok := set[model.IndEMA9]; ok {
		t.Error("1h should not carry EMA9")
	}
}
