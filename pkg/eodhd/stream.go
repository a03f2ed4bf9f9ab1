package eodhd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sharif3/momentum-trader/internal/model"
)

// idleTimeout is the longest the stream may sit without a frame before the
// connection is treated as dead.
const idleTimeout = 30 * time.Second

// wsTrade is one trade frame from the US trades feed.
type wsTrade struct {
	Symbol string  `json:"s"`
	Price  float64 `json:"p"`
	Size   float64 `json:"v"`
	TS     int64   `json:"t"` // epoch ms
}

// wsStatus carries subscription acks and errors.
type wsStatus struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

// StreamTicks opens one WebSocket session, subscribes to symbols, and pushes
// parsed ticks into out until the connection drops or ctx is cancelled.
// Returns nil on clean shutdown; the caller owns reconnect and backoff.
func (c *Client) StreamTicks(ctx context.Context, symbols []string, out chan<- model.Tick) error {
	endpoint := fmt.Sprintf("%s?api_token=%s", c.wsURL, c.token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		// Dial errors can embed the URL, which carries the token.
		return fmt.Errorf("ws dial: %v: %w", c.redactErr(err), model.ErrProviderUnavailable)
	}
	defer conn.Close()

	sub := map[string]string{
		"action":  "subscribe",
		"symbols": strings.Join(symbols, ","),
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("ws subscribe: %w", err)
	}
	log.Printf("[eodhd] connected, subscribed %d symbols", len(symbols))

	// Async context watcher closes the connection when ctx is cancelled.
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

	for {
		conn.SetReadDeadline(c.Now().Add(idleTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("ws read: %v: %w", err, model.ErrProviderUnavailable)
		}

		var trade wsTrade
		if err := json.Unmarshal(raw, &trade); err != nil || trade.Symbol == "" {
			var status wsStatus
			if json.Unmarshal(raw, &status) == nil && status.Message != "" {
				log.Printf("[eodhd] status: code=%d msg=%s", status.StatusCode, status.Message)
			}
			continue
		}

		tick := model.Tick{
			Symbol:  trade.Symbol,
			TS:      trade.TS,
			Price:   trade.Price,
			Size:    trade.Size,
			Session: model.SessionUnknown,
		}
		select {
		case out <- tick:
		default:
			log.Println("[eodhd] tick channel full, dropping tick")
		}
	}
}
