// cmd/ticksim — local WebSocket tick server.
// Broadcasts simulated trades so the backend can run with PROVIDER=sim
// and no provider credentials.
//
// Tick JSON shape is identical to model.Tick:
//
//	{"symbol":"TSLA","t_ms":1700000000000,"price":242.18,"size":100,"session_tag":"RTH"}
//
// Config (env vars):
//
//	TICKSIM_ADDR         — listen address (default ":9001")
//	TICKSIM_SYMBOLS      — comma-separated SYMBOL:PRICE pairs (default "TSLA:240,SPY:450,QQQ:380")
//	TICKSIM_INTERVAL_MS  — broadcast interval milliseconds (default "250")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sharif3/momentum-trader/internal/markethours"
	"github.com/sharif3/momentum-trader/internal/model"
)

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol string
	Price  float64
}

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client, drop tick
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[ticksim] upgrade error: %v", err)
			return
		}
		log.Printf("[ticksim] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[ticksim] client disconnected: %s", r.RemoteAddr)
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// walkPrice applies a random walk of up to ±0.1% per tick.
func walkPrice(rng *rand.Rand, price float64) float64 {
	pct := (rng.Float64()*0.2 - 0.1) / 100.0
	next := price * (1 + pct)
	if next < 0.01 {
		next = 0.01
	}
	return next
}

func runGenerator(h *hub, instruments []instrument, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for range ticker.C {
		now := time.Now().UTC()
		session := model.SessionEXT
		if markethours.IsRTH(now) {
			session = model.SessionRTH
		}
		for i := range instruments {
			instruments[i].Price = walkPrice(rng, instruments[i].Price)
			tick := model.Tick{
				Symbol:  instruments[i].Symbol,
				TS:      now.UnixMilli(),
				Price:   float64(int(instruments[i].Price*100)) / 100,
				Size:    float64(rng.Intn(500) + 1),
				Session: session,
			}
			b, err := json.Marshal(tick)
			if err != nil {
				continue
			}
			h.broadcast(b)
		}
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[ticksim] starting tick simulator...")

	addr := envOrDefault("TICKSIM_ADDR", ":9001")
	symbolsEnv := envOrDefault("TICKSIM_SYMBOLS", "TSLA:240,SPY:450,QQQ:380")
	intervalMS := envIntOrDefault("TICKSIM_INTERVAL_MS", 250)

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[ticksim] no instruments configured via TICKSIM_SYMBOLS")
	}
	log.Printf("[ticksim] instruments: %+v", instruments)
	log.Printf("[ticksim] broadcast interval: %dms", intervalMS)

	h := newHub()
	go runGenerator(h, instruments, time.Duration(intervalMS)*time.Millisecond)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"ticksim"}`)
	})

	log.Printf("[ticksim] listening on %s (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[ticksim] server error: %v", err)
	}
}

func parseInstruments(s string) []instrument {
	var result []instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		seg := strings.SplitN(part, ":", 2)
		symbol := strings.ToUpper(strings.TrimSpace(seg[0]))
		if symbol == "" {
			continue
		}
		price := 100.0
		if len(seg) == 2 {
			if p, err := strconv.ParseFloat(seg[1], 64); err == nil && p > 0 {
				price = p
			}
		}
		result = append(result, instrument{Symbol: symbol, Price: price})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
