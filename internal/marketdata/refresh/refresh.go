// Package refresh runs the REST backfill loop: every interval it fetches
// the recent closed 15m/1h/4h/1d bars for the tracked symbols and commits
// them as authoritative. A REST bar for a slot the live path already built
// replaces it in place.
package refresh

import (
	"context"
	"log"
	"time"

	"github.com/sharif3/momentum-trader/internal/model"
	"github.com/sharif3/momentum-trader/internal/store/memory"
)

// refreshTFs are the timeframes maintained over REST; 1m/5m belong to the
// live tick path.
var refreshTFs = []model.Timeframe{model.TF15m, model.TF1h, model.TF4h, model.TF1d}

// lookbackBars is how many bars back each fetch reaches. 210 covers the
// EMA200 seed on every timeframe.
const lookbackBars = 210

// Refresh periodically backfills higher timeframes from the provider.
type Refresh struct {
	provider model.Provider
	store    *memory.Store
	symbols  []string
	interval time.Duration

	// Metrics hooks (optional, set externally)
	OnCycle    func(d time.Duration, ok bool)
	OnCandle   func(tf model.Timeframe)
	OnCommit   func(c model.Candle)
	OnFetchErr func(err error)

	// Now is the wall clock, overridable in tests.
	Now func() time.Time
}

// New creates a Refresh for the given symbols.
func New(provider model.Provider, store *memory.Store, symbols []string, interval time.Duration) *Refresh {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Refresh{
		provider: provider,
		store:    store,
		symbols:  symbols,
		interval: interval,
		Now:      time.Now,
	}
}

// Run backfills immediately, then on every tick of the interval until ctx
// is cancelled.
func (r *Refresh) Run(ctx context.Context) {
	r.Cycle(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Cycle(ctx)
		}
	}
}

// Cycle fetches and commits one round across all symbols and timeframes.
func (r *Refresh) Cycle(ctx context.Context) {
	started := r.Now()
	ok := true
	for _, symbol := range r.symbols {
		for _, tf := range refreshTFs {
			if err := r.refreshSeries(ctx, symbol, tf); err != nil {
				ok = false
				if r.OnFetchErr != nil {
					r.OnFetchErr(err)
				}
				log.Printf("[refresh] %s %s: %v", symbol, tf, err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}
	if r.OnCycle != nil {
		r.OnCycle(r.Now().Sub(started), ok)
	}
}

func (r *Refresh) refreshSeries(ctx context.Context, symbol string, tf model.Timeframe) error {
	toMS := r.Now().UnixMilli()
	fromMS := toMS - int64(lookbackBars)*tf.Millis()

	candles, err := r.provider.FetchCandles(ctx, symbol, tf, fromMS, toMS)
	if err != nil {
		return err
	}
	for _, c := range candles {
		if !c.IsClosed {
			// Partial REST bars never enter the store.
			continue
		}
		if err := r.store.Append(c); err != nil {
			log.Printf("[refresh] append %s: %v", c.Key(), err)
			continue
		}
		if r.OnCandle != nil {
			r.OnCandle(tf)
		}
		if r.OnCommit != nil {
			r.OnCommit(c)
		}
	}
	return nil
}
