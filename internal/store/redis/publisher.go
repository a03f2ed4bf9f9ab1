// Package redis is the optional closed-candle publisher: every committed
// bar is XADDed to a per-series stream and mirrored to a latest-value key
// so external consumers (dashboards, recorders) can follow the feed. The
// in-process CandleStore stays the source of truth; nothing is read back.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/sharif3/momentum-trader/internal/model"
)

const (
	// streamMaxLen bounds each per-series stream (~a session of 1m bars).
	streamMaxLen = 1000

	latestTTL = 30 * time.Minute

	breakerMaxFailures  = 5
	breakerResetTimeout = 10 * time.Second
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string
	Password string
	DB       int

	// StreamPrefix namespaces the stream and latest keys.
	StreamPrefix string
}

// Publisher writes closed candles to Redis behind a circuit breaker.
type Publisher struct {
	client  *goredis.Client
	prefix  string
	breaker *Breaker

	// Metrics hooks (optional, set externally)
	OnPublish func(d time.Duration)
	OnState   func(BreakerState)
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// NewPublisher creates a Publisher and pings the server.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.StreamPrefix
	if prefix == "" {
		prefix = "momentum:candles"
	}
	p := &Publisher{
		client:  client,
		prefix:  prefix,
		breaker: NewBreaker(breakerMaxFailures, breakerResetTimeout),
	}
	p.breaker.OnStateChange = func(from, to BreakerState) {
		log.Printf("[redis] breaker %s -> %s", from, to)
		if p.OnState != nil {
			p.OnState(to)
		}
	}
	log.Printf("[redis] connected to %s", cfg.Addr)
	return p, nil
}

// Run drains closed candles from candleCh and publishes them until ctx is
// cancelled or the channel closes.
func (p *Publisher) Run(ctx context.Context, candleCh <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case candle, ok := <-candleCh:
			if !ok {
				return
			}
			p.publish(ctx, candle)
		}
	}
}

// publish XADDs the candle, refreshes the latest key, and notifies pubsub
// subscribers, all in one pipeline. While the breaker is open the candle
// is dropped; the in-process store already holds it.
func (p *Publisher) publish(ctx context.Context, c model.Candle) {
	series := string(c.Timeframe) + ":" + c.Symbol
	streamKey := p.prefix + ":" + series
	latestKey := p.prefix + ":latest:" + series
	pubsubCh := p.prefix + ":pub:" + series
	jsonData := string(c.JSON())

	start := time.Now()
	err := p.breaker.Execute(func() error {
		pipe := p.client.Pipeline()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: streamKey,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		pipe.Set(ctx, latestKey, jsonData, latestTTL)
		pipe.Publish(ctx, pubsubCh, jsonData)
		_, err := pipe.Exec(ctx)
		return err
	})
	switch {
	case err == ErrBreakerOpen:
		// Drop quietly; the breaker log line already fired.
	case err != nil:
		log.Printf("[redis] publish %s: %v", c.Key(), err)
	default:
		if p.OnPublish != nil {
			p.OnPublish(time.Since(start))
		}
	}
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
