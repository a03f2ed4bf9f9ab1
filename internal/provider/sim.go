package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/gorilla/websocket"

	"github.com/sharif3/momentum-trader/internal/model"
)

// Sim streams ticks from a plain-JSON WebSocket server (cmd/ticksim). The
// wire format is model.Tick verbatim, which makes replaying recorded
// sessions trivial. It serves no historical candles.
type Sim struct {
	url string
}

// NewSim creates a simulator client for the given ws:// URL.
func NewSim(url string) *Sim {
	return &Sim{url: url}
}

// Name returns the adapter id.
func (s *Sim) Name() string { return "sim" }

// FetchCandles returns no history; the simulator is tick-only and the
// refresh loop simply finds nothing to backfill.
func (s *Sim) FetchCandles(ctx context.Context, symbol string, tf model.Timeframe, fromMS, toMS int64) ([]model.Candle, error) {
	return nil, nil
}

// StreamTicks opens one session and reads JSON ticks until the connection
// drops or ctx is cancelled. The caller owns reconnect and backoff.
func (s *Sim) StreamTicks(ctx context.Context, symbols []string, out chan<- model.Tick) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("sim dial %s: %v: %w", s.url, err, model.ErrProviderUnavailable)
	}
	defer conn.Close()
	log.Printf("[sim] connected to %s", s.url)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("sim read: %v: %w", err, model.ErrProviderUnavailable)
		}

		var tick model.Tick
		if err := json.Unmarshal(raw, &tick); err != nil {
			log.Printf("[sim] parse error: %v", err)
			continue
		}
		if tick.Symbol == "" || (len(want) > 0 && !want[tick.Symbol]) {
			continue
		}
		select {
		case out <- tick:
		default:
			log.Println("[sim] tick channel full, dropping tick")
		}
	}
}
