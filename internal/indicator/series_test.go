package indicator

import (
	"math"
	"testing"

	"github.com/sharif3/momentum-trader/internal/model"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestEMALast_UndefinedUntilN(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	if _, ok := EMALast(closes, 9); ok {
		t.Fatal("EMA(9) must be undefined with 8 closes")
	}
}

func TestEMALast_EqualsSMAAtSeed(t *testing.T) {
	closes := []float64{10, 11, 12, 13, 14, 15, 16, 17, 18}
	got, ok := EMALast(closes, 9)
	if !ok {
		t.Fatal("EMA(9) should be defined at 9 closes")
	}
	if !almost(got, 14) { // SMA of 10..18
		t.Errorf("EMA at seed should equal SMA: got %v", got)
	}
}

func TestEMALast_Recurrence(t *testing.T) {
	closes := []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 20}
	got, ok := EMALast(closes, 9)
	if !ok {
		t.Fatal("EMA should be defined")
	}
	alpha := 2.0 / 10.0
	want := 20*alpha + 14*(1-alpha)
	if !almost(got, want) {
		t.Errorf("EMA recurrence: got %v want %v", got, want)
	}
}

func TestATRLast_ConstantRange(t *testing.T) {
	n := 16
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := range highs {
		highs[i], lows[i], closes[i] = 11, 9, 10
	}
	atr, ok := ATRLast(highs, lows, closes, 14)
	if !ok {
		t.Fatal("ATR should be defined with 16 bars")
	}
	if !almost(atr, 2) {
		t.Errorf("constant 2-point range should give ATR 2, got %v", atr)
	}
}

func TestATRLast_NeedsFifteenBars(t *testing.T) {
	highs := make([]float64, 14)
	lows := make([]float64, 14)
	closes := make([]float64, 14)
	if _, ok := ATRLast(highs, lows, closes, 14); ok {
		t.Fatal("ATR(14) needs 15 bars")
	}
}

func TestOBVSlopeLast_Sign(t *testing.T) {
	n := 12
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
		volumes[i] = 50
	}
	slope, ok := OBVSlopeLast(closes, volumes, 10)
	if !ok {
		t.Fatal("OBV slope should be defined")
	}
	if slope <= 0 {
		t.Errorf("rising closes should give positive OBV slope, got %v", slope)
	}

	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	slope, ok = OBVSlopeLast(closes, volumes, 10)
	if !ok || slope >= 0 {
		t.Errorf("falling closes should give negative OBV slope, got %v", slope)
	}
}

func TestPriorExtremes_ExcludesCurrent(t *testing.T) {
	highs := make([]float64, 21)
	lows := make([]float64, 21)
	for i := range highs {
		highs[i] = 100
		lows[i] = 90
	}
	// Current bar has extreme values that must not count.
	highs[20] = 500
	lows[20] = 1
	hi, lo, ok := PriorExtremes(highs, lows, 20)
	if !ok {
		t.Fatal("prior extremes should be defined with 21 bars")
	}
	if hi != 100 || lo != 90 {
		t.Errorf("current bar leaked into prior window: hi=%v lo=%v", hi, lo)
	}
}

func TestSessionVWAP(t *testing.T) {
	open := int64(1_700_000_000_000)
	candles := []model.Candle{
		{StartTS: open - 300_000, H: 10, L: 10, C: 10, Volume: 1000, Session: model.SessionEXT},
		{StartTS: open, H: 12, L: 10, C: 11, Volume: 100, Session: model.SessionRTH},
		{StartTS: open + 300_000, H: 14, L: 12, C: 13, Volume: 300, Session: model.SessionRTH},
	}
	got, ok := SessionVWAP(candles, open)
	if !ok {
		t.Fatal("VWAP should be defined")
	}
	want := (11.0*100 + 13.0*300) / 400
	if !almost(got, want) {
		t.Errorf("VWAP: got %v want %v", got, want)
	}
}

func TestSessionVWAP_NoRTHBarsIsMissing(t *testing.T) {
	open := int64(1_700_000_000_000)
	candles := []model.Candle{
		{StartTS: open, H: 12, L: 10, C: 11, Volume: 100, Session: model.SessionEXT},
	}
	if _, ok := SessionVWAP(candles, open); ok {
		t.Fatal("VWAP must be missing without RTH candles")
	}
}

func TestRelVol_FallbackLast20(t *testing.T) {
	// Bars all inside one day: same-slot baseline has no samples, fall back
	// to the mean of the prior 20 bars.
	var candles []model.Candle
	for i := int64(0); i < 21; i++ {
		candles = append(candles, model.Candle{StartTS: i * 300_000, Volume: 100})
	}
	candles[20].Volume = 150
	rv, ok := RelVol(candles)
	if !ok {
		t.Fatal("RelVol should be defined")
	}
	if !almost(rv, 1.5) {
		t.Errorf("RelVol fallback: got %v want 1.5", rv)
	}
}

func TestRelVol_SameSlotBaseline(t *testing.T) {
	// Ten days of history for one slot: the slot baseline (volume 200) wins
	// over the recent last-20 mean (mostly volume 50).
	slot := int64(52_200_000) // 14:30 UTC
	var candles []model.Candle
	for d := int64(0); d < 10; d++ {
		candles = append(candles, model.Candle{StartTS: d*dayMillis + slot, Volume: 200})
		for i := int64(1); i <= 3; i++ {
			candles = append(candles, model.Candle{StartTS: d*dayMillis + slot + i*300_000, Volume: 50})
		}
	}
	candles = append(candles, model.Candle{StartTS: 10*dayMillis + slot, Volume: 100})
	rv, ok := RelVol(candles)
	if !ok {
		t.Fatal("RelVol should be defined")
	}
	if !almost(rv, 0.5) { // 100 / mean(200)
		t.Errorf("RelVol same-slot: got %v want 0.5", rv)
	}
}

func TestDollarVol(t *testing.T) {
	var candles []model.Candle
	for i := 0; i < 20; i++ {
		candles = append(candles, model.Candle{C: 10, Volume: 1000})
	}
	dv, ok := DollarVol(candles, 20)
	if !ok || !almost(dv, 10_000) {
		t.Errorf("dollar volume: got %v ok=%v", dv, ok)
	}
	if _, ok := DollarVol(candles[:19], 20); ok {
		t.Error("dollar volume needs a full window")
	}
}
