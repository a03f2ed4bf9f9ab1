// Package memory implements the in-process CandleStore: the single source
// of truth for every (symbol, timeframe) series. Exactly one writer exists
// per series (the builder for 1m/5m, the REST refresher for 15m and above);
// readers take copies under a read lock so a request sees a consistent view.
package memory

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sharif3/momentum-trader/internal/model"
)

// series holds the retained closed candles for one (symbol, timeframe),
// newest last, strictly increasing by StartTS.
type series struct {
	candles     []model.Candle
	gaps        map[int64]struct{} // expected-but-missing bucket starts
	lastUpdated time.Time
	quarantined bool
}

// Store is the process-wide candle store.
type Store struct {
	mu        sync.RWMutex
	series    map[string]*series      // key = "symbol:tf"
	forming   map[string]model.Candle // open 1m/5m bars and the forming 15m
	retention map[model.Timeframe]int
	seen      map[string]bool // symbols that ever received data

	// Now is the clock used for validation and freshness. Overridable in tests.
	Now func() time.Time

	// OnQuarantine is called once when a series is quarantined (optional).
	OnQuarantine func(symbol string, tf model.Timeframe)
}

// New creates a Store with the given per-timeframe retention. Timeframes
// absent from the map fall back to model.DefaultRetention.
func New(retention map[model.Timeframe]int) *Store {
	r := make(map[model.Timeframe]int, len(model.DefaultRetention))
	for tf, n := range model.DefaultRetention {
		r[tf] = n
	}
	for tf, n := range retention {
		if n > 0 {
			r[tf] = n
		}
	}
	return &Store{
		series:    make(map[string]*series),
		forming:   make(map[string]model.Candle),
		retention: r,
		seen:      make(map[string]bool),
		Now:       time.Now,
	}
}

func key(symbol string, tf model.Timeframe) string {
	return symbol + ":" + string(tf)
}

func (s *Store) getOrCreate(symbol string, tf model.Timeframe) *series {
	k := key(symbol, tf)
	sr, ok := s.series[k]
	if !ok {
		sr = &series{gaps: make(map[int64]struct{})}
		s.series[k] = sr
	}
	return sr
}

// Append inserts a closed candle. Normal live path: StartTS must exceed all
// existing bars of the series. Authoritative backfill: a closed REST candle
// matching an existing StartTS replaces that bar in place. A partial REST
// candle is rejected. An invariant violation quarantines the series: no
// further appends are accepted until restart.
func (s *Store) Append(c model.Candle) error {
	if !c.IsClosed {
		if c.Source == model.SourceREST {
			return fmt.Errorf("append %s: partial REST bar: %w", c.Key(), model.ErrMalformedCandle)
		}
		return fmt.Errorf("append %s: open bar on closed path: %w", c.Key(), model.ErrMalformedCandle)
	}
	// Small allowance for provider/exchange clock skew.
	if err := c.Validate(s.Now().Add(5 * time.Second)); err != nil {
		return fmt.Errorf("append %s: %w", c.Key(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sr := s.getOrCreate(c.Symbol, c.Timeframe)
	if sr.quarantined {
		return fmt.Errorf("append %s: series quarantined: %w", c.Key(), model.ErrInvariantViolation)
	}

	n := len(sr.candles)
	if n == 0 || c.StartTS > sr.candles[n-1].StartTS {
		sr.candles = append(sr.candles, c)
		s.trimLocked(sr, c.Timeframe)
		delete(sr.gaps, c.StartTS)
		s.clearCoveredForming(c)
		sr.lastUpdated = s.Now()
		s.seen[c.Symbol] = true
		return nil
	}

	// In-range timestamp: only an authoritative REST replace is legal.
	if c.Source == model.SourceREST {
		idx := sort.Search(n, func(i int) bool { return sr.candles[i].StartTS >= c.StartTS })
		if idx < n && sr.candles[idx].StartTS == c.StartTS {
			sr.candles[idx] = c
			sr.lastUpdated = s.Now()
			return nil
		}
		// REST bar for a slot we evicted or never held, fill it in order.
		sr.candles = append(sr.candles, model.Candle{})
		copy(sr.candles[idx+1:], sr.candles[idx:])
		sr.candles[idx] = c
		s.trimLocked(sr, c.Timeframe)
		delete(sr.gaps, c.StartTS)
		s.clearCoveredForming(c)
		sr.lastUpdated = s.Now()
		s.seen[c.Symbol] = true
		return nil
	}

	// Out-of-order live append would corrupt total ordering; quarantine.
	sr.quarantined = true
	log.Printf("[store] quarantined %s: out-of-order append start_ts=%d", c.Key(), c.StartTS)
	if s.OnQuarantine != nil {
		s.OnQuarantine(c.Symbol, c.Timeframe)
	}
	return fmt.Errorf("append %s: out-of-order start_ts: %w", c.Key(), model.ErrInvariantViolation)
}

func (s *Store) trimLocked(sr *series, tf model.Timeframe) {
	max := s.retention[tf]
	if max <= 0 {
		max = 200
	}
	if len(sr.candles) > max {
		// FIFO eviction by start_ts: keep the newest max bars.
		evicted := sr.candles[:len(sr.candles)-max]
		for _, c := range evicted {
			delete(sr.gaps, c.StartTS)
		}
		sr.candles = append([]model.Candle(nil), sr.candles[len(sr.candles)-max:]...)
	}
	// Gap slots that never received a candle fall out once they leave the
	// retention horizon; otherwise the ledger grows without bound.
	if n := len(sr.candles); n > 0 && len(sr.gaps) > 0 {
		horizon := sr.candles[n-1].StartTS - int64(max)*tf.Millis()
		for ts := range sr.gaps {
			if ts < horizon {
				delete(sr.gaps, ts)
			}
		}
	}
}

// clearCoveredForming drops the forming slot once a closed bar at or past
// its window lands, so a stale preview from a completed window cannot
// linger until the next mid-window update.
func (s *Store) clearCoveredForming(c model.Candle) {
	k := key(c.Symbol, c.Timeframe)
	if f, ok := s.forming[k]; ok && f.StartTS <= c.StartTS {
		delete(s.forming, k)
	}
}

// SetForming stores the open (not yet closed) bar for the series, replacing
// any previous forming bar. Forming REST bars are rejected.
func (s *Store) SetForming(c model.Candle) error {
	if c.IsClosed {
		return fmt.Errorf("set forming %s: bar already closed: %w", c.Key(), model.ErrMalformedCandle)
	}
	if c.Source == model.SourceREST {
		return fmt.Errorf("set forming %s: partial REST bar: %w", c.Key(), model.ErrMalformedCandle)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forming[key(c.Symbol, c.Timeframe)] = c
	s.seen[c.Symbol] = true
	sr := s.getOrCreate(c.Symbol, c.Timeframe)
	sr.lastUpdated = s.Now()
	return nil
}

// Forming returns the open bar for the series, if any.
func (s *Store) Forming(symbol string, tf model.Timeframe) (model.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.forming[key(symbol, tf)]
	return c, ok
}

// Latest returns up to n closed candles, newest last. The returned slice is
// a copy; callers may hold it across lock boundaries.
func (s *Store) Latest(symbol string, tf model.Timeframe, n int) []model.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.series[key(symbol, tf)]
	if !ok || len(sr.candles) == 0 {
		return nil
	}
	cs := sr.candles
	if n > 0 && len(cs) > n {
		cs = cs[len(cs)-n:]
	}
	out := make([]model.Candle, len(cs))
	copy(out, cs)
	return out
}

// RecordGap marks an expected bucket start as missing for the series.
func (s *Store) RecordGap(symbol string, tf model.Timeframe, startTS int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr := s.getOrCreate(symbol, tf)
	sr.gaps[startTS] = struct{}{}
}

// Gaps returns the expected-but-missing bucket starts within the last
// `window` expected slots, ascending.
func (s *Store) Gaps(symbol string, tf model.Timeframe, window int) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.series[key(symbol, tf)]
	if !ok || len(sr.gaps) == 0 {
		return nil
	}
	cutoff := int64(0)
	if window > 0 {
		cutoff = tf.Bucket(s.Now().UnixMilli()) - int64(window)*tf.Millis()
	}
	out := make([]int64, 0, len(sr.gaps))
	for ts := range sr.gaps {
		if ts >= cutoff {
			out = append(out, ts)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Freshness classifies the series:
//   - fresh: the most recent expected closed bar is present (its start is
//     within one timeframe-length of the previous bucket boundary), or, on
//     1m/5m only, the forming bar covers the current bucket
//   - stale: bars exist but the newest is older than that
//   - missing: nothing retained
//
// The forming-bucket rule is limited to the live timeframes: the forming
// 15m preview is refreshed on every 1m close, so counting it would keep
// 15m fresh forever while the REST refresher is down.
func (s *Store) Freshness(symbol string, tf model.Timeframe) model.FreshState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nowBucket := tf.Bucket(s.Now().UnixMilli())

	if tf == model.TF1m || tf == model.TF5m {
		if f, ok := s.forming[key(symbol, tf)]; ok && f.StartTS == nowBucket {
			return model.Fresh
		}
	}

	sr, ok := s.series[key(symbol, tf)]
	if !ok || len(sr.candles) == 0 {
		return model.Missing
	}
	last := sr.candles[len(sr.candles)-1]
	// The most recent expected closed bar starts one timeframe before the
	// current bucket.
	if last.StartTS >= nowBucket-tf.Millis() {
		return model.Fresh
	}
	return model.Stale
}

// HasAny reports whether any data was ever ingested for the symbol on any
// timeframe. Used by the API to distinguish 503 from HOLD.
func (s *Store) HasAny(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seen[symbol]
}

// Quarantined reports whether the series has been quarantined.
func (s *Store) Quarantined(symbol string, tf model.Timeframe) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.series[key(symbol, tf)]
	return ok && sr.quarantined
}

// LastUpdated returns when the series last received data.
func (s *Store) LastUpdated(symbol string, tf model.Timeframe) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.series[key(symbol, tf)]
	if !ok || sr.lastUpdated.IsZero() {
		return time.Time{}, false
	}
	return sr.lastUpdated, true
}
