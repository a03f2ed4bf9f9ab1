// cmd/momentum — the local momentum backend.
//
// Pipeline: provider WS → ring buffer → candle builder → in-memory store,
// with a REST refresher for the higher timeframes, an HTTP API for
// /score and /snapshot, and optional Redis / SQLite sinks fed off the
// hot path through a fan-out bus.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sharif3/momentum-trader/config"
	"github.com/sharif3/momentum-trader/internal/api"
	"github.com/sharif3/momentum-trader/internal/indicator"
	"github.com/sharif3/momentum-trader/internal/logger"
	"github.com/sharif3/momentum-trader/internal/marketdata/builder"
	"github.com/sharif3/momentum-trader/internal/marketdata/bus"
	"github.com/sharif3/momentum-trader/internal/marketdata/ingest"
	"github.com/sharif3/momentum-trader/internal/marketdata/refresh"
	"github.com/sharif3/momentum-trader/internal/metrics"
	"github.com/sharif3/momentum-trader/internal/model"
	"github.com/sharif3/momentum-trader/internal/provider"
	"github.com/sharif3/momentum-trader/internal/ringbuf"
	"github.com/sharif3/momentum-trader/internal/scoring"
	"github.com/sharif3/momentum-trader/internal/store/memory"
	redisstore "github.com/sharif3/momentum-trader/internal/store/redis"
	sqlitestore "github.com/sharif3/momentum-trader/internal/store/sqlite"
	"github.com/sharif3/momentum-trader/internal/tape"
)

const (
	ringCapacity = 8192
	fanBuffer    = 5000
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("momentum", slog.LevelInfo)
	log.Println("[momentum] starting...")

	cfg := config.Load()
	log.Printf("[momentum] provider=%s symbols=%v primary=%s", cfg.Provider, cfg.WSSymbols, cfg.PrimaryTicker)

	prov, err := provider.New(cfg)
	if err != nil {
		log.Fatalf("[momentum] provider init: %v", err)
	}

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Store and compute engines ----
	st := memory.New(cfg.Retention)
	st.OnQuarantine = func(symbol string, tf model.Timeframe) {
		prom.Quarantines.Inc()
		log.Printf("[momentum] quarantined %s %s", symbol, tf)
	}
	ind := indicator.New(st)
	tp := tape.New(st, ind)
	sc := scoring.New(st, ind, tp)
	sc.LiquidityFloorUSD = cfg.LiquidityFloorUSD

	// ---- Optional sinks behind the fan-out bus ----
	fanout := bus.New(fanBuffer)
	fanout.OnDrop = func(subscriber string) {
		log.Printf("[momentum] fanout drop on %s", subscriber)
	}
	closedCh := make(chan model.Candle, fanBuffer)
	go fanout.Run(ctx, closedCh)

	var redisPub *redisstore.Publisher
	if cfg.RedisAddr != "" {
		redisPub, err = redisstore.NewPublisher(redisstore.PublisherConfig{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			StreamPrefix: cfg.RedisStream,
		})
		if err != nil {
			log.Printf("[momentum] WARNING: redis init failed: %v (continuing without redis)", err)
		} else {
			health.EnableRedis()
			redisPub.OnPublish = func(d time.Duration) { prom.RedisPublishDur.Observe(d.Seconds()) }
			redisPub.OnState = func(s redisstore.BreakerState) {
				prom.RedisCircuitBreakerState.Set(float64(s))
				if s == redisstore.BreakerOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
			}
			go redisPub.Run(ctx, fanout.Subscribe("redis"))
			defer redisPub.Close()
		}
	}

	var journal *sqlitestore.Journal
	if cfg.SQLitePath != "" {
		os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
		journal, err = sqlitestore.New(sqlitestore.JournalConfig{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Printf("[momentum] WARNING: sqlite init failed: %v (continuing without journal)", err)
			journal = nil
		} else {
			health.EnableSQLite()
			journal.OnCommit = func(d time.Duration) { prom.SQLiteCommitDur.Observe(d.Seconds()) }
			go journal.Run(ctx, fanout.Subscribe("sqlite"))
			defer journal.Close()
		}
	}

	switch {
	case redisPub != nil && journal != nil:
		health.StartLivenessChecker(ctx, redisPub.Client(), journal.DB(), 10*time.Second)
	case redisPub != nil:
		health.StartLivenessChecker(ctx, redisPub.Client(), nil, 10*time.Second)
	case journal != nil:
		health.StartLivenessChecker(ctx, nil, journal.DB(), 10*time.Second)
	}

	// ---- Builder (HOT PATH) ----
	ring := ringbuf.New(ringCapacity)
	bld := builder.New(st)
	bld.OnInvalidTick = func() { prom.InvalidTicks.Inc() }
	bld.OnGap = func(tf model.Timeframe) { prom.GapsTotal.WithLabelValues(string(tf)).Inc() }
	bld.OnClosed = func(c model.Candle) {
		prom.CandlesTotal.WithLabelValues(string(c.Timeframe)).Inc()
		select {
		case closedCh <- c:
		default:
		}
	}
	go bld.Run(ctx, ring)

	// ---- WS ingest ----
	ing := ingest.New(prov, cfg.WSSymbols, ring)
	ing.OnTick = func(t model.Tick) {
		prom.TicksTotal.Inc()
		health.SetLastTickTime(time.UnixMilli(t.TS).UTC())
	}
	ing.OnReconnect = func() { prom.WSReconnects.Inc() }
	ing.OnOverflow = func() { prom.RingBufOverflow.Inc() }
	ing.OnConnected = health.SetWSConnected
	go ing.Run(ctx)

	// ---- REST refresher for 15m/1h/4h/1d ----
	ref := refresh.New(prov, st, cfg.WSSymbols, cfg.RefreshInterval)
	ref.OnCycle = func(d time.Duration, ok bool) {
		prom.RefreshDur.Observe(d.Seconds())
		health.SetRefreshOK(ok)
	}
	ref.OnCandle = func(tf model.Timeframe) {
		prom.CandlesTotal.WithLabelValues(string(tf)).Inc()
	}
	ref.OnCommit = func(c model.Candle) {
		select {
		case closedCh <- c:
		default:
		}
	}
	ref.OnFetchErr = func(err error) { prom.RefreshErrors.Inc() }
	go ref.Run(ctx)

	// ---- HTTP API ----
	apiSrv := api.NewServer(st, ind, tp, sc)
	apiSrv.OnScore = func(sig model.Signal, d time.Duration) {
		prom.ScoreRequests.WithLabelValues(string(sig)).Inc()
		prom.ScoreDur.Observe(d.Seconds())
	}
	httpSrv := &http.Server{Addr: cfg.APIAddr, Handler: apiSrv.Routes()}
	go func() {
		log.Printf("[momentum] API listening on %s", cfg.APIAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[momentum] API server: %v", err)
		}
	}()

	log.Println("[momentum] pipeline ready")

	<-sigCh
	log.Println("[momentum] shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	log.Println("[momentum] bye")
}
