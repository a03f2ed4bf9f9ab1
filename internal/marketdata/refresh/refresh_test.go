package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sharif3/momentum-trader/internal/model"
	"github.com/sharif3/momentum-trader/internal/store/memory"
)

// base is aligned to a 1d boundary.
const base = int64(1_700_006_400_000)

type stubProvider struct {
	candles map[model.Timeframe][]model.Candle
	err     error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) FetchCandles(ctx context.Context, symbol string, tf model.Timeframe, fromMS, toMS int64) ([]model.Candle, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.candles[tf], nil
}

func (s *stubProvider) StreamTicks(ctx context.Context, symbols []string, out chan<- model.Tick) error {
	<-ctx.Done()
	return nil
}

func restBar(symbol string, tf model.Timeframe, start int64, c float64, closed bool) model.Candle {
	return model.Candle{
		Symbol:    symbol,
		Timeframe: tf,
		StartTS:   start,
		O:         c,
		H:         c + 1,
		L:         c - 1,
		C:         c,
		Volume:    100,
		Session:   model.SessionRTH,
		IsClosed:  closed,
		Source:    model.SourceREST,
	}
}

func TestCycle_CommitsClosedBars(t *testing.T) {
	now := base + 3*900_000
	st := memory.New(nil)
	st.Now = func() time.Time { return time.UnixMilli(now).UTC() }

	p := &stubProvider{candles: map[model.Timeframe][]model.Candle{
		model.TF15m: {
			restBar("TSLA", model.TF15m, base, 100, true),
			restBar("TSLA", model.TF15m, base+900_000, 101, true),
		},
	}}
	r := New(p, st, []string{"TSLA"}, time.Minute)
	r.Now = st.Now

	var perTF []model.Timeframe
	r.OnCandle = func(tf model.Timeframe) { perTF = append(perTF, tf) }
	var committed []model.Candle
	r.OnCommit = func(c model.Candle) { committed = append(committed, c) }

	r.Cycle(context.Background())

	got := st.Latest("TSLA", model.TF15m, 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 bars committed, got %d", len(got))
	}
	if len(perTF) != 2 || perTF[0] != model.TF15m {
		t.Errorf("candle hook: %v", perTF)
	}
	if len(committed) != 2 || committed[0].StartTS != base {
		t.Errorf("commit hook: %v", committed)
	}
}

func TestCycle_SkipsPartialBars(t *testing.T) {
	now := base + 2*900_000
	st := memory.New(nil)
	st.Now = func() time.Time { return time.UnixMilli(now).UTC() }

	partial := restBar("TSLA", model.TF15m, base+900_000, 101, false)
	p := &stubProvider{candles: map[model.Timeframe][]model.Candle{
		model.TF15m: {restBar("TSLA", model.TF15m, base, 100, true), partial},
	}}
	r := New(p, st, []string{"TSLA"}, time.Minute)
	r.Now = st.Now

	r.Cycle(context.Background())

	got := st.Latest("TSLA", model.TF15m, 0)
	if len(got) != 1 || got[0].StartTS != base {
		t.Fatalf("partial bar must not land in the store: %v", got)
	}
}

func TestCycle_ReplacesLiveBarInPlace(t *testing.T) {
	now := base + 2*900_000
	st := memory.New(nil)
	st.Now = func() time.Time { return time.UnixMilli(now).UTC() }

	// Live-aggregated bar first; REST brings the authoritative version.
	live := restBar("TSLA", model.TF15m, base, 100, true)
	live.Source = model.SourceAGG
	if err := st.Append(live); err != nil {
		t.Fatalf("seed live bar: %v", err)
	}

	auth := restBar("TSLA", model.TF15m, base, 100.5, true)
	p := &stubProvider{candles: map[model.Timeframe][]model.Candle{
		model.TF15m: {auth},
	}}
	r := New(p, st, []string{"TSLA"}, time.Minute)
	r.Now = st.Now
	r.Cycle(context.Background())

	got := st.Latest("TSLA", model.TF15m, 0)
	if len(got) != 1 || got[0].C != 100.5 || got[0].Source != model.SourceREST {
		t.Fatalf("REST bar should replace the live bar: %v", got)
	}
}

func TestCycle_FetchErrorReported(t *testing.T) {
	st := memory.New(nil)
	p := &stubProvider{err: errors.New("boom")}
	r := New(p, st, []string{"TSLA"}, time.Minute)

	var errs int
	r.OnFetchErr = func(err error) { errs++ }
	var cycleOK bool
	r.OnCycle = func(d time.Duration, ok bool) { cycleOK = ok }

	r.Cycle(context.Background())
	if errs == 0 {
		t.Error("fetch errors should hit the hook")
	}
	if cycleOK {
		t.Error("cycle with errors should report not-ok")
	}
}
