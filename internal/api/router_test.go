package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sharif3/momentum-trader/internal/indicator"
	"github.com/sharif3/momentum-trader/internal/model"
	"github.com/sharif3/momentum-trader/internal/scoring"
	"github.com/sharif3/momentum-trader/internal/store/memory"
	"github.com/sharif3/momentum-trader/internal/tape"
)

// rthBase is 2023-11-15 14:30 UTC (09:30 ET), the RTH open of a weekday.
const rthBase = int64(1_700_006_400_000 + 52_200_000)

func newTestServer(nowMS int64) (*Server, *memory.Store) {
	st := memory.New(nil)
	st.Now = func() time.Time { return time.UnixMilli(nowMS).UTC() }
	ind := indicator.New(st)
	ind.Now = st.Now
	tp := tape.New(st, ind)
	tp.Now = st.Now
	sc := scoring.New(st, ind, tp)
	sc.Now = st.Now
	return NewServer(st, ind, tp, sc), st
}

func fillSeries(t *testing.T, st *memory.Store, symbol string, tf model.Timeframe, n int, start, slope, vol float64) {
	t.Helper()
	src := model.SourceAGG
	if tf == model.TF15m {
		src = model.SourceREST
	}
	for i := 0; i < n; i++ {
		px := start + float64(i)*slope
		c := model.Candle{
			Symbol:    symbol,
			Timeframe: tf,
			StartTS:   rthBase + int64(i)*tf.Millis(),
			O:         px,
			H:         px + 0.5,
			L:         px - 0.5,
			C:         px,
			Volume:    vol,
			Session:   model.SessionRTH,
			IsClosed:  true,
			Source:    src,
		}
		if err := st.Append(c); err != nil {
			t.Fatalf("append %s %s %d: %v", symbol, tf, i, err)
		}
	}
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("GET %s: invalid JSON body %q: %v", path, rec.Body.String(), err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("GET %s: content type %q", path, ct)
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(rthBase)
	rec, body := get(t, s, "/health")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: code=%d body=%v", rec.Code, body)
	}
}

func TestScore_MissingTicker(t *testing.T) {
	s, _ := newTestServer(rthBase)
	rec, body := get(t, s, "/score")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing ticker: code=%d", rec.Code)
	}
	if body["error"] == "" {
		t.Error("missing ticker should carry an error message")
	}
}

func TestScore_MalformedTicker(t *testing.T) {
	s, _ := newTestServer(rthBase)
	rec, _ := get(t, s, "/score?ticker=BAD%20SYM")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed ticker: code=%d", rec.Code)
	}
}

func TestScore_UnknownTickerUnavailable(t *testing.T) {
	s, _ := newTestServer(rthBase)
	rec, _ := get(t, s, "/score?ticker=TSLA")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unknown ticker: code=%d", rec.Code)
	}
}

func TestScore_ReturnsResultAndHook(t *testing.T) {
	// 75 5m bars and 25 15m bars span the same 6.25 h window ending at now.
	nowMS := rthBase + 25*900_000
	s, st := newTestServer(nowMS)
	fillSeries(t, st, "TSLA", model.TF5m, 75, 100, 0.02, 20_000)
	fillSeries(t, st, "TSLA", model.TF15m, 25, 100, 0.05, 20_000)

	var hooked model.Signal
	s.OnScore = func(sig model.Signal, d time.Duration) { hooked = sig }

	rec, body := get(t, s, "/score?ticker=tsla")
	if rec.Code != http.StatusOK {
		t.Fatalf("score: code=%d body=%v", rec.Code, body)
	}
	if body["ticker"] != "TSLA" {
		t.Errorf("ticker should be upper-cased: %v", body["ticker"])
	}
	if body["signal"] == nil || body["state"] == nil {
		t.Errorf("score body missing signal/state: %v", body)
	}
	if hooked == "" {
		t.Error("OnScore hook should fire")
	}
	if _, ok := body["tape"].(map[string]interface{}); !ok {
		t.Errorf("score body missing tape: %v", body["tape"])
	}
}

func TestSnapshot_PerTimeframeShape(t *testing.T) {
	nowMS := rthBase + 30*300_000
	s, st := newTestServer(nowMS)
	fillSeries(t, st, "TSLA", model.TF5m, 30, 100, 0.02, 20_000)

	rec, body := get(t, s, "/snapshot?ticker=TSLA")
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot: code=%d", rec.Code)
	}
	perTF, ok := body["per_tf"].(map[string]interface{})
	if !ok {
		t.Fatalf("snapshot missing per_tf: %v", body)
	}
	for _, tf := range model.AllTimeframes {
		if _, ok := perTF[string(tf)]; !ok {
			t.Errorf("per_tf missing %s", tf)
		}
	}

	slot5 := perTF["5m"].(map[string]interface{})
	candles := slot5["candles"].([]interface{})
	if len(candles) != 20 {
		t.Errorf("5m snapshot should cap at 20 candles, got %d", len(candles))
	}
	if slot5["freshness"] != "fresh" {
		t.Errorf("5m freshness: %v", slot5["freshness"])
	}
	ind := slot5["indicators"].(map[string]interface{})
	if _, ok := ind["ema9"]; !ok {
		t.Errorf("5m indicators missing ema9: %v", ind)
	}

	slot1d := perTF["1d"].(map[string]interface{})
	if slot1d["freshness"] != "missing" {
		t.Errorf("1d freshness should be missing: %v", slot1d["freshness"])
	}
	if got := slot1d["candles"].([]interface{}); len(got) != 0 {
		t.Errorf("1d candles should be empty, got %d", len(got))
	}
}

func TestWriteJSON_RoundsFloats(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]interface{}{
		"v":      1.23456789,
		"nested": []interface{}{map[string]interface{}{"w": 0.1000000000001}},
		"ts":     int64(1_700_006_400_000),
	})

	got := rec.Body.String()
	if !strings.Contains(got, "1.234568") || strings.Contains(got, "1.23456789") {
		t.Errorf("float should round to 6 digits: %s", got)
	}
	if !strings.Contains(got, `"w":0.1`) {
		t.Errorf("nested float should round: %s", got)
	}
	if !strings.Contains(got, "1700006400000") {
		t.Errorf("integer timestamps must survive rounding: %s", got)
	}
}
