// Package api is the local HTTP surface: /health, /score and /snapshot.
// Responses are JSON with float fields rounded to at most six fractional
// digits.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sharif3/momentum-trader/internal/indicator"
	"github.com/sharif3/momentum-trader/internal/logger"
	"github.com/sharif3/momentum-trader/internal/model"
	"github.com/sharif3/momentum-trader/internal/scoring"
	"github.com/sharif3/momentum-trader/internal/store/memory"
	"github.com/sharif3/momentum-trader/internal/tape"
)

// snapshotDepth is how many latest candles /snapshot returns per timeframe.
const snapshotDepth = 20

var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// Server holds the handler dependencies.
type Server struct {
	Store  *memory.Store
	Ind    *indicator.Engine
	Tape   *tape.Context
	Scorer *scoring.Engine

	// OnScore is called per /score request with the resulting signal and
	// handler latency (optional, set externally).
	OnScore func(signal model.Signal, d time.Duration)
}

// NewServer creates a Server.
func NewServer(st *memory.Store, ind *indicator.Engine, tp *tape.Context, sc *scoring.Engine) *Server {
	return &Server{Store: st, Ind: ind, Tape: tp, Scorer: sc}
}

// Routes builds the HTTP mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/score", s.handleScore)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ticker, err := parseTicker(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reqID := logger.NewRequestID(ticker, start)

	res, err := s.Scorer.Score(ticker)
	switch {
	case errors.Is(err, model.ErrInsufficientHistory):
		log.Printf("[api] score %s req=%s: no data ingested", ticker, reqID)
		writeError(w, http.StatusServiceUnavailable, "no data ingested for ticker")
		return
	case err != nil:
		log.Printf("[api] score %s req=%s: %v", ticker, reqID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	d := time.Since(start)
	log.Printf("[api] score %s req=%s signal=%s state=%s in %s", ticker, reqID, res.Signal, res.State, d)
	if s.OnScore != nil {
		s.OnScore(res.Signal, d)
	}
	writeJSON(w, http.StatusOK, res)
}

// tfSnapshot is the per-timeframe slice of /snapshot.
type tfSnapshot struct {
	Candles    []model.Candle     `json:"candles"`
	Indicators model.IndicatorSet `json:"indicators"`
	Freshness  model.FreshState   `json:"freshness"`
}

type snapshotResponse struct {
	Ticker string                         `json:"ticker"`
	PerTF  map[model.Timeframe]tfSnapshot `json:"per_tf"`
	Tape   model.TapeSnapshot             `json:"tape"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ticker, err := parseTicker(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := snapshotResponse{
		Ticker: ticker,
		PerTF:  make(map[model.Timeframe]tfSnapshot, len(model.AllTimeframes)),
		Tape:   s.Tape.Compute(ticker),
	}
	for _, tf := range model.AllTimeframes {
		candles := s.Store.Latest(ticker, tf, snapshotDepth)
		if candles == nil {
			candles = []model.Candle{}
		}
		resp.PerTF[tf] = tfSnapshot{
			Candles:    candles,
			Indicators: s.Ind.Compute(ticker, tf),
			Freshness:  s.Store.Freshness(ticker, tf),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseTicker validates the ticker query parameter. Symbols are
// normalized to upper case.
func parseTicker(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("ticker"))
	if raw == "" {
		return "", errors.New("missing ticker parameter")
	}
	ticker := strings.ToUpper(raw)
	if !tickerPattern.MatchString(ticker) {
		return "", errors.New("malformed ticker")
	}
	return ticker, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeJSON serializes v with every float rounded to six fractional
// digits. The round trip through interface{} keeps the rounding generic
// over nested response shapes.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encode failure"}`, http.StatusInternalServerError)
		return
	}
	var tree interface{}
	if err := json.Unmarshal(raw, &tree); err == nil {
		if out, err := json.Marshal(roundTree(tree)); err == nil {
			raw = out
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(raw)
}

func roundTree(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, e := range t {
			t[k] = roundTree(e)
		}
		return t
	case []interface{}:
		for i, e := range t {
			t[i] = roundTree(e)
		}
		return t
	case float64:
		return math.Round(t*1e6) / 1e6
	default:
		return v
	}
}
