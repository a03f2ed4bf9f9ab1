package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sharif3/momentum-trader/internal/model"
)

// referenceTickers are always part of the stream subscription; the tape
// context cannot run without them.
var referenceTickers = []string{"SPY", "QQQ"}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Provider
	Provider       string
	ProviderAPIKey string // credential; never logged
	ProviderWSURL  string
	ProviderAPIURL string

	// Symbols
	WSSymbols     []string
	PrimaryTicker string

	// Data plane
	Retention       map[model.Timeframe]int
	RefreshInterval time.Duration

	// Scoring
	LiquidityFloorUSD float64

	// Optional sinks
	RedisAddr     string
	RedisPassword string
	RedisStream   string
	SQLitePath    string

	// Listeners
	APIAddr     string
	MetricsAddr string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	c := &Config{
		Provider:       getEnv("PROVIDER", "eodhd"),
		ProviderAPIKey: os.Getenv("PROVIDER_API_KEY"),
		ProviderWSURL:  getEnv("PROVIDER_WS_URL", "wss://ws.eodhistoricaldata.com/ws/us"),
		ProviderAPIURL: getEnv("PROVIDER_API_URL", "https://eodhistoricaldata.com/api"),

		WSSymbols:     parseSymbols(getEnv("WS_SYMBOLS", "TSLA")),
		PrimaryTicker: getEnv("PRIMARY_TICKER", ""),

		Retention:       parseRetention(),
		RefreshInterval: getDurationMS("REFRESH_INTERVAL_MS", 60_000),

		LiquidityFloorUSD: getFloat("LIQUIDITY_FLOOR_USD", 1_000_000),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisStream:   getEnv("REDIS_STREAM", "momentum:candles"),
		SQLitePath:    getEnv("SQLITE_PATH", ""),

		APIAddr:     getEnv("API_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
	}
	if c.Provider == "eodhd" && c.ProviderAPIKey == "" {
		log.Fatalf("[config] required env var PROVIDER_API_KEY not set")
	}
	if c.PrimaryTicker == "" && len(c.WSSymbols) > 0 {
		c.PrimaryTicker = c.WSSymbols[0]
	}
	return c
}

// parseSymbols splits the comma list and guarantees the reference tickers
// are subscribed.
func parseSymbols(raw string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, p := range strings.Split(raw, ",") {
		add(p)
	}
	for _, ref := range referenceTickers {
		add(ref)
	}
	return out
}

// parseRetention reads RETENTION_<TF> overrides, e.g. RETENTION_5M=480.
func parseRetention() map[model.Timeframe]int {
	out := make(map[model.Timeframe]int)
	for tf, def := range model.DefaultRetention {
		key := "RETENTION_" + strings.ToUpper(string(tf))
		out[tf] = getInt(key, def)
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return f
}

func getDurationMS(key string, fallbackMS int64) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(fallbackMS) * time.Millisecond
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return time.Duration(fallbackMS) * time.Millisecond
	}
	return time.Duration(n) * time.Millisecond
}
