// Package ingest owns the provider tick stream: one streaming session at a
// time, exponential backoff with full jitter between attempts, and a
// lock-free handoff into the builder's ring buffer. Ticks missed during an
// outage are not recovered; the affected bars surface as gaps.
package ingest

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/sharif3/momentum-trader/internal/model"
	"github.com/sharif3/momentum-trader/internal/ringbuf"
)

// Backoff bounds: base 1s, cap 30s.
const (
	backoffBase = 1 * time.Second
	backoffCap  = 30 * time.Second
)

// steadyStateAfter is how long a session must survive before the backoff
// counter resets.
const steadyStateAfter = 30 * time.Second

// Ingest drives the provider stream and feeds the ring buffer.
type Ingest struct {
	provider model.Provider
	symbols  []string
	ring     *ringbuf.Ring

	// Metrics hooks (optional, set externally)
	OnTick      func(t model.Tick)
	OnReconnect func()
	OnOverflow  func()
	OnConnected func(bool)

	// Now and rng are overridable in tests.
	Now func() time.Time
	rng *rand.Rand
}

// New creates an Ingest streaming symbols from provider into ring.
func New(provider model.Provider, symbols []string, ring *ringbuf.Ring) *Ingest {
	return &Ingest{
		provider: provider,
		symbols:  symbols,
		ring:     ring,
		Now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run streams until ctx is cancelled, reconnecting with jittered backoff.
func (ing *Ingest) Run(ctx context.Context) {
	ch := make(chan model.Tick, 1024)
	go ing.drain(ctx, ch)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		started := ing.Now()
		if ing.OnConnected != nil {
			ing.OnConnected(true)
		}
		err := ing.provider.StreamTicks(ctx, ing.symbols, ch)
		if ing.OnConnected != nil {
			ing.OnConnected(false)
		}
		if ctx.Err() != nil {
			return
		}
		if ing.Now().Sub(started) >= steadyStateAfter {
			attempt = 0
		}

		attempt++
		delay := ing.backoff(attempt)
		log.Printf("[ingest] stream ended (%v), reconnecting in %s", err, delay.Round(time.Millisecond))
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// backoff returns a full-jitter delay: uniform in (0, min(cap, base*2^n)].
func (ing *Ingest) backoff(attempt int) time.Duration {
	max := backoffBase
	for i := 1; i < attempt && max < backoffCap; i++ {
		max *= 2
	}
	if max > backoffCap {
		max = backoffCap
	}
	return time.Duration(ing.rng.Int63n(int64(max))) + time.Millisecond
}

// drain moves ticks from the session channel into the ring buffer.
func (ing *Ingest) drain(ctx context.Context, ch <-chan model.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ch:
			if ing.OnTick != nil {
				ing.OnTick(t)
			}
			if !ing.ring.Push(t) && ing.OnOverflow != nil {
				ing.OnOverflow()
			}
		}
	}
}
