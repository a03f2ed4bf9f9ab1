package builder

import (
	"math"
	"testing"
	"time"

	"github.com/sharif3/momentum-trader/internal/model"
	"github.com/sharif3/momentum-trader/internal/store/memory"
)

// base is aligned to a 1d boundary so every timeframe bucket lines up.
const base = int64(1_700_006_400_000)

func newTestBuilder(nowMS int64) (*Builder, *memory.Store) {
	st := memory.New(nil)
	st.Now = func() time.Time { return time.UnixMilli(nowMS).UTC() }
	b := New(st)
	b.Now = st.Now
	return b, st
}

func tick(symbol string, ts int64, price, size float64) model.Tick {
	return model.Tick{Symbol: symbol, TS: ts, Price: price, Size: size, Session: model.SessionRTH}
}

func TestBuilder_SingleMinuteRoundtrip(t *testing.T) {
	b, st := newTestBuilder(base + 2*60_000)

	// Ticks within one minute, then one tick in the next minute to close it.
	b.OnTick(tick("TSLA", base+1_000, 100, 10))
	b.OnTick(tick("TSLA", base+20_000, 102, 5))
	b.OnTick(tick("TSLA", base+40_000, 99, 7))
	b.OnTick(tick("TSLA", base+59_000, 101, 3))
	closed := b.OnTick(tick("TSLA", base+61_000, 105, 1))

	if len(closed) != 1 {
		t.Fatalf("expected 1 closed candle, got %d", len(closed))
	}
	c := closed[0]
	if c.O != 100 || c.C != 101 || c.H != 102 || c.L != 99 {
		t.Errorf("OHLC wrong: %+v", c)
	}
	if c.Volume != 25 {
		t.Errorf("expected volume 25, got %v", c.Volume)
	}
	if !c.IsClosed || c.Source != model.SourceWS || c.StartTS != base {
		t.Errorf("metadata wrong: %+v", c)
	}

	got := st.Latest("TSLA", model.TF1m, 0)
	if len(got) != 1 || got[0].StartTS != base {
		t.Fatalf("store should hold the closed bar, got %v", got)
	}
}

func TestBuilder_OutOfOrderWithinMinute(t *testing.T) {
	b, _ := newTestBuilder(base + 2*60_000)

	b.OnTick(tick("A", base+30_000, 100, 1))
	b.OnTick(tick("A", base+10_000, 90, 1)) // earlier in same minute
	closed := b.OnTick(tick("A", base+61_000, 100, 1))

	if len(closed) != 1 {
		t.Fatalf("expected closed bar, got %d", len(closed))
	}
	if closed[0].L != 90 || closed[0].C != 90 {
		// last tick processed sets close; low folds in
		t.Errorf("out-of-order tick not folded: %+v", closed[0])
	}
}

func TestBuilder_InvalidTicksDropped(t *testing.T) {
	b, _ := newTestBuilder(base + 60_000)

	bad := []model.Tick{
		{Symbol: "", TS: base, Price: 100, Size: 1},
		{Symbol: "A", TS: base, Price: -1, Size: 1},
		{Symbol: "A", TS: base, Price: 100, Size: -5},
		{Symbol: "A", TS: base, Price: math.NaN(), Size: 1},
		{Symbol: "A", TS: base, Price: math.Inf(1), Size: 1},
		{Symbol: "A", TS: base + 10*60_000, Price: 100, Size: 1}, // >5s future
	}
	for _, tk := range bad {
		if out := b.OnTick(tk); out != nil {
			t.Errorf("invalid tick produced candles: %+v", tk)
		}
	}
	if b.InvalidTicks() != uint64(len(bad)) {
		t.Errorf("expected %d invalid ticks, got %d", len(bad), b.InvalidTicks())
	}
}

func TestBuilder_StaleTickDropped(t *testing.T) {
	b, _ := newTestBuilder(base + 10*60_000)

	b.OnTick(tick("A", base+5*60_000, 100, 1))
	// More than one minute older than the open bar's start.
	b.OnTick(tick("A", base+3*60_000, 90, 1))
	if b.InvalidTicks() != 1 {
		t.Errorf("stale tick should be dropped, invalid=%d", b.InvalidTicks())
	}
}

func TestBuilder_GapRecording(t *testing.T) {
	b, st := newTestBuilder(base + 10*60_000)

	b.OnTick(tick("A", base+1_000, 100, 1))
	// Next tick skips minutes 1 and 2.
	b.OnTick(tick("A", base+3*60_000+1_000, 101, 1))

	gaps := st.Gaps("A", model.TF1m, 60)
	if len(gaps) != 2 {
		t.Fatalf("expected 2 gap slots, got %v", gaps)
	}
	if gaps[0] != base+60_000 || gaps[1] != base+2*60_000 {
		t.Errorf("unexpected gap slots: %v", gaps)
	}
}

func feedMinute(b *Builder, symbol string, start int64, px float64) {
	b.OnTick(tick(symbol, start+1_000, px, 10))
	b.OnTick(tick(symbol, start+30_000, px+1, 10))
	b.OnTick(tick(symbol, start+59_000, px+0.5, 10))
}

func TestBuilder_5mAggregation(t *testing.T) {
	b, st := newTestBuilder(base + 30*60_000)

	// Five full minutes, then a sixth tick to close minute 4.
	for i := int64(0); i < 5; i++ {
		feedMinute(b, "A", base+i*60_000, 100+float64(i))
	}
	closed := b.OnTick(tick("A", base+5*60_000+500, 110, 1))

	var got5 *model.Candle
	for i := range closed {
		if closed[i].Timeframe == model.TF5m {
			got5 = &closed[i]
		}
	}
	if got5 == nil {
		t.Fatal("expected a closed 5m candle")
	}
	if got5.StartTS != base {
		t.Errorf("5m start: got %d", got5.StartTS)
	}
	if got5.O != 100 { // open of first 1m
		t.Errorf("5m open: got %v", got5.O)
	}
	if got5.C != 104.5 { // close of last 1m
		t.Errorf("5m close: got %v", got5.C)
	}
	if got5.H != 105 { // high of minute 4 (px+1)
		t.Errorf("5m high: got %v", got5.H)
	}
	if got5.Volume != 150 {
		t.Errorf("5m volume: got %v", got5.Volume)
	}
	if got5.Source != model.SourceAGG || !got5.IsClosed {
		t.Errorf("5m metadata: %+v", got5)
	}

	stored := st.Latest("A", model.TF5m, 0)
	if len(stored) != 1 {
		t.Fatalf("5m bar should be in the store, got %d", len(stored))
	}
}

func TestBuilder_5mAggregationIdempotent(t *testing.T) {
	run := func() model.Candle {
		b, st := newTestBuilder(base + 30*60_000)
		for i := int64(0); i < 5; i++ {
			feedMinute(b, "A", base+i*60_000, 100+float64(i))
		}
		b.OnTick(tick("A", base+5*60_000+500, 110, 1))
		return st.Latest("A", model.TF5m, 1)[0]
	}
	a, bb := run(), run()
	if a != bb {
		t.Errorf("same ticks must yield identical 5m bars:\n%+v\n%+v", a, bb)
	}
}

func TestBuilder_5mMissingConstituentIsGap(t *testing.T) {
	b, st := newTestBuilder(base + 30*60_000)

	// Minutes 0,1,3,4 with minute 2 missing.
	for _, i := range []int64{0, 1} {
		feedMinute(b, "A", base+i*60_000, 100)
	}
	for _, i := range []int64{3, 4} {
		feedMinute(b, "A", base+i*60_000, 100)
	}
	b.OnTick(tick("A", base+5*60_000+500, 110, 1))

	if got := st.Latest("A", model.TF5m, 0); len(got) != 0 {
		t.Fatalf("no 5m bar should be emitted over a gap, got %v", got)
	}
	gaps := st.Gaps("A", model.TF5m, 60)
	if len(gaps) != 1 || gaps[0] != base {
		t.Errorf("expected the 5m slot flagged as gap, got %v", gaps)
	}
}

func TestBuilder_Forming15m(t *testing.T) {
	b, st := newTestBuilder(base + 30*60_000)

	for i := int64(0); i < 7; i++ {
		feedMinute(b, "A", base+i*60_000, 100+float64(i))
	}
	b.OnTick(tick("A", base+7*60_000+500, 110, 1))

	f, ok := st.Forming("A", model.TF15m)
	if !ok {
		t.Fatal("expected a forming 15m bar")
	}
	if f.IsClosed {
		t.Error("forming bar must not be closed")
	}
	if f.Source != model.SourceAGG {
		t.Errorf("forming source: %s", f.Source)
	}
	if f.StartTS != base {
		t.Errorf("forming start: %d", f.StartTS)
	}
	if f.O != 100 || f.C != 106.5 {
		t.Errorf("forming OHLC: %+v", f)
	}
}
