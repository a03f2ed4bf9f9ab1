// Package builder turns the raw tick stream into candles: ticks → 1m bars,
// closed 1m bars → closed 5m bars, and (optionally) a forming 15m preview.
// It is the single writer for the 1m and 5m series and runs in one
// goroutine; per-symbol state needs no locks.
package builder

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/sharif3/momentum-trader/internal/markethours"
	"github.com/sharif3/momentum-trader/internal/model"
	"github.com/sharif3/momentum-trader/internal/ringbuf"
	"github.com/sharif3/momentum-trader/internal/store/memory"
)

// maxFutureSkew is how far ahead of the wall clock a tick may claim to be.
const maxFutureSkew = 5 * time.Second

// recent1mKeep bounds the per-symbol window of closed 1m bars retained for
// the 5m and forming-15m reductions.
const recent1mKeep = 20

// Builder consumes ticks and appends candle updates to the store.
type Builder struct {
	store *memory.Store

	open     map[string]*model.Candle  // open 1m bar per symbol
	recent1m map[string][]model.Candle // closed 1m bars, newest last
	prev5m   map[string]int64          // last finalized-or-gapped 5m window start

	// Forming15m enables the in-progress 15m preview bar (source AGG).
	Forming15m bool

	// Now is the wall clock, overridable in tests.
	Now func() time.Time

	// Metrics hooks (optional, set externally)
	OnInvalidTick func()
	OnClosed      func(c model.Candle)
	OnGap         func(tf model.Timeframe)

	invalidTicks atomic.Uint64
}

// New creates a Builder writing into store.
func New(store *memory.Store) *Builder {
	return &Builder{
		store:      store,
		open:       make(map[string]*model.Candle),
		recent1m:   make(map[string][]model.Candle),
		prev5m:     make(map[string]int64),
		Forming15m: true,
		Now:        time.Now,
	}
}

// InvalidTicks returns the count of ticks dropped by validation.
func (b *Builder) InvalidTicks() uint64 { return b.invalidTicks.Load() }

// Run drains ticks from the ring buffer until ctx is cancelled. The ring is
// polled with a short sleep when empty; a tick in hand is processed
// immediately.
func (b *Builder) Run(ctx context.Context, ring *ringbuf.Ring) {
	idle := time.NewTicker(5 * time.Millisecond)
	defer idle.Stop()

	for {
		tick, ok := ring.Pop()
		if ok {
			b.OnTick(tick)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
		}
	}
}

// OnTick incorporates one tick and returns any candles that closed because
// of it (the prior 1m bar and possibly a completed 5m bar). Malformed
// ticks are counted and dropped; OnTick never panics.
func (b *Builder) OnTick(t model.Tick) []model.Candle {
	if err := t.Validate(); err != nil {
		b.dropInvalid()
		return nil
	}
	if t.TS > b.Now().Add(maxFutureSkew).UnixMilli() {
		b.dropInvalid()
		return nil
	}

	bucket := model.TF1m.Bucket(t.TS)
	cur := b.open[t.Symbol]

	if cur != nil && t.TS < cur.StartTS-model.TF1m.Millis() {
		// Stale: older than the open bar minus one minute.
		b.dropInvalid()
		return nil
	}

	if cur == nil {
		b.openBar(t, bucket)
		return nil
	}

	switch {
	case bucket == cur.StartTS:
		// Same window: out-of-order ticks inside the minute still fold in.
		if t.Price > cur.H {
			cur.H = t.Price
		}
		if t.Price < cur.L {
			cur.L = t.Price
		}
		cur.C = t.Price
		cur.Volume += t.Size
		b.setForming(*cur)
		return nil

	case bucket < cur.StartTS:
		// Belongs to an already-closed minute; too late to amend.
		b.dropInvalid()
		return nil
	}

	// Bucket advanced: close the prior bar, record skipped minutes as gaps.
	closed := b.closeOpenBar(t.Symbol)
	out := []model.Candle{}
	if closed != nil {
		out = append(out, *closed)
		for ts := closed.StartTS + model.TF1m.Millis(); ts < bucket; ts += model.TF1m.Millis() {
			b.store.RecordGap(t.Symbol, model.TF1m, ts)
			b.gapHook(model.TF1m)
		}
		if c5 := b.on1mClose(*closed); c5 != nil {
			out = append(out, *c5)
		}
	}
	b.openBar(t, bucket)
	return out
}

func (b *Builder) dropInvalid() {
	b.invalidTicks.Add(1)
	if b.OnInvalidTick != nil {
		b.OnInvalidTick()
	}
}

func (b *Builder) gapHook(tf model.Timeframe) {
	if b.OnGap != nil {
		b.OnGap(tf)
	}
}

func (b *Builder) openBar(t model.Tick, bucket int64) {
	c := &model.Candle{
		Symbol:    t.Symbol,
		Timeframe: model.TF1m,
		StartTS:   bucket,
		O:         t.Price,
		H:         t.Price,
		L:         t.Price,
		C:         t.Price,
		Volume:    t.Size,
		Session:   sessionFor(t, bucket),
		IsClosed:  false,
		Source:    model.SourceWS,
	}
	b.open[t.Symbol] = c
	b.setForming(*c)
}

func (b *Builder) setForming(c model.Candle) {
	if err := b.store.SetForming(c); err != nil {
		log.Printf("[builder] set forming %s: %v", c.Key(), err)
	}
}

// closeOpenBar finalizes and appends the symbol's open 1m bar.
func (b *Builder) closeOpenBar(symbol string) *model.Candle {
	cur := b.open[symbol]
	if cur == nil {
		return nil
	}
	delete(b.open, symbol)
	cur.IsClosed = true
	if err := b.store.Append(*cur); err != nil {
		log.Printf("[builder] append 1m %s: %v", cur.Key(), err)
		return nil
	}
	if b.OnClosed != nil {
		b.OnClosed(*cur)
	}

	hist := append(b.recent1m[symbol], *cur)
	if len(hist) > recent1mKeep {
		hist = hist[len(hist)-recent1mKeep:]
	}
	b.recent1m[symbol] = hist
	return cur
}

// on1mClose runs the 5m and forming-15m reductions after a 1m close.
// Returns a completed 5m candle, if the close finished one.
func (b *Builder) on1mClose(c model.Candle) *model.Candle {
	w5 := model.TF5m.Bucket(c.StartTS)
	symbol := c.Symbol

	last, seen := b.prev5m[symbol]
	if !seen {
		last = w5 - model.TF5m.Millis()
		b.prev5m[symbol] = last
	}
	// Any 5m window that went by without finalizing is a gap.
	for w := last + model.TF5m.Millis(); w < w5; w += model.TF5m.Millis() {
		b.store.RecordGap(symbol, model.TF5m, w)
		b.gapHook(model.TF5m)
		b.prev5m[symbol] = w
	}

	var closed5 *model.Candle
	if c.StartTS == w5+4*model.TF1m.Millis() {
		// The closing minute of the window arrived.
		bars := b.window1m(symbol, w5, 5)
		if len(bars) == 5 {
			agg := reduce(bars, model.TF5m, w5)
			agg.IsClosed = true
			if err := b.store.Append(agg); err != nil {
				log.Printf("[builder] append 5m %s: %v", agg.Key(), err)
			} else {
				if b.OnClosed != nil {
					b.OnClosed(agg)
				}
				closed5 = &agg
			}
		} else {
			// A constituent minute is missing, so no synthetic bar.
			b.store.RecordGap(symbol, model.TF5m, w5)
			b.gapHook(model.TF5m)
		}
		b.prev5m[symbol] = w5
	} else {
		// Mid-window: refresh the forming 5m preview.
		bars := b.window1m(symbol, w5, 5)
		if len(bars) > 0 {
			f := reduce(bars, model.TF5m, w5)
			b.setForming(f)
		}
	}

	if b.Forming15m {
		b.updateForming15m(c)
	}
	return closed5
}

// window1m returns the closed 1m bars whose starts fall inside the n-minute
// window beginning at windowStart, in order.
func (b *Builder) window1m(symbol string, windowStart int64, n int) []model.Candle {
	end := windowStart + int64(n)*model.TF1m.Millis()
	var out []model.Candle
	for _, c := range b.recent1m[symbol] {
		if c.StartTS >= windowStart && c.StartTS < end {
			out = append(out, c)
		}
	}
	return out
}

// updateForming15m recomputes the in-progress 15m bar from up to the last
// 15 consecutive 1m bars ending at the current bucket.
func (b *Builder) updateForming15m(c model.Candle) {
	w15 := model.TF15m.Bucket(c.StartTS)
	bars := b.window1m(c.Symbol, w15, 15)
	if len(bars) == 0 {
		return
	}
	// Keep only the consecutive run ending at the just-closed bar.
	run := []model.Candle{bars[len(bars)-1]}
	for i := len(bars) - 2; i >= 0; i-- {
		if bars[i].StartTS == run[0].StartTS-model.TF1m.Millis() {
			run = append([]model.Candle{bars[i]}, run...)
		} else {
			break
		}
	}
	f := reduce(run, model.TF15m, w15)
	b.setForming(f)
}

// reduce is a pure reduction of constituent bars into one aggregate candle.
// The aggregate is left open (is_closed=false); callers close it when the
// window is complete.
func reduce(bars []model.Candle, tf model.Timeframe, startTS int64) model.Candle {
	agg := model.Candle{
		Symbol:    bars[0].Symbol,
		Timeframe: tf,
		StartTS:   startTS,
		O:         bars[0].O,
		H:         bars[0].H,
		L:         bars[0].L,
		C:         bars[len(bars)-1].C,
		Session:   majoritySession(bars),
		IsClosed:  false,
		Source:    model.SourceAGG,
	}
	for _, c := range bars {
		if c.H > agg.H {
			agg.H = c.H
		}
		if c.L < agg.L {
			agg.L = c.L
		}
		agg.Volume += c.Volume
	}
	return agg
}

func majoritySession(bars []model.Candle) model.SessionTag {
	counts := map[model.SessionTag]int{}
	for _, c := range bars {
		counts[c.Session]++
	}
	best, bestN := model.SessionUnknown, 0
	for tag, n := range counts {
		if n > bestN {
			best, bestN = tag, n
		}
	}
	return best
}

// sessionFor prefers the provider's tag and falls back to the exchange
// calendar.
func sessionFor(t model.Tick, bucket int64) model.SessionTag {
	if t.Session == model.SessionRTH || t.Session == model.SessionEXT {
		return t.Session
	}
	if markethours.IsRTH(time.UnixMilli(bucket).UTC()) {
		return model.SessionRTH
	}
	return model.SessionEXT
}
