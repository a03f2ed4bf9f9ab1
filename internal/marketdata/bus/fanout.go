// Package bus broadcasts closed candles to the optional sinks (Redis
// publisher, SQLite journal). A slow sink loses candles instead of
// blocking the builder.
package bus

import (
	"context"
	"log"
	"sync"

	"github.com/sharif3/momentum-trader/internal/model"
)

// FanOut broadcasts candles from a single input channel to named
// subscriber channels.
type FanOut struct {
	mu      sync.RWMutex
	names   []string
	outputs []chan model.Candle
	bufSize int

	// OnDrop is called with the subscriber name when its channel is full.
	OnDrop func(subscriber string)
}

// New creates a FanOut with the given buffer size for subscriber channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{
		bufSize: outputBufferSize,
	}
}

// Subscribe registers a named subscriber and returns its channel.
func (f *FanOut) Subscribe(name string) <-chan model.Candle {
	ch := make(chan model.Candle, f.bufSize)
	f.mu.Lock()
	f.names = append(f.names, name)
	f.outputs = append(f.outputs, ch)
	f.mu.Unlock()
	return ch
}

// Publish fans one candle out to every subscriber without blocking.
func (f *FanOut) Publish(c model.Candle) {
	f.mu.RLock()
	for i, ch := range f.outputs {
		select {
		case ch <- c:
		default:
			if f.OnDrop != nil {
				f.OnDrop(f.names[i])
			} else {
				log.Printf("[bus] subscriber %s full, dropping candle %s", f.names[i], c.Key())
			}
		}
	}
	f.mu.RUnlock()
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed; subscriber channels
// are closed on the way out.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Candle) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case candle, ok := <-input:
			if !ok {
				return
			}
			f.Publish(candle)
		}
	}
}

// ChannelStat is the (length, capacity) of one subscriber channel, used
// for saturation reporting.
type ChannelStat struct {
	Len int
	Cap int
}

// Stats returns per-subscriber channel fill.
func (f *FanOut) Stats() map[string]ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make(map[string]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[f.names[i]] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
