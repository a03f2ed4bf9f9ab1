// Package eodhd is the EODHD market-data adapter: intraday/EOD candles over
// REST and trade ticks over WebSocket. Request URLs carry the API token, so
// they are never logged.
package eodhd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sharif3/momentum-trader/internal/logger"
	"github.com/sharif3/momentum-trader/internal/markethours"
	"github.com/sharif3/momentum-trader/internal/model"
)

// restTimeout bounds every REST call.
const restTimeout = 10 * time.Second

// Client talks to the EODHD HTTP and WebSocket APIs.
type Client struct {
	apiURL string
	wsURL  string
	token  string

	httpc *http.Client

	// Now is the clock used to drop partial bars. Overridable in tests.
	Now func() time.Time
}

// NewClient creates an EODHD client.
func NewClient(apiURL, wsURL, token string) *Client {
	return &Client{
		apiURL: apiURL,
		wsURL:  wsURL,
		token:  token,
		httpc:  &http.Client{Timeout: restTimeout},
		Now:    time.Now,
	}
}

// Name returns the adapter id.
func (c *Client) Name() string { return "eodhd" }

// nativeInterval maps our timeframes onto the intervals the intraday API
// serves. 15m and 4h have no native interval and are aggregated client-side
// from 5m and 1h.
var nativeInterval = map[model.Timeframe]string{
	model.TF1m: "1m",
	model.TF5m: "5m",
	model.TF1h: "1h",
}

// FetchCandles returns closed candles for [fromMS, toMS). Bars whose window
// has not finished by the wall clock are dropped, never returned partial.
func (c *Client) FetchCandles(ctx context.Context, symbol string, tf model.Timeframe, fromMS, toMS int64) ([]model.Candle, error) {
	switch tf {
	case model.TF1m, model.TF5m, model.TF1h:
		return c.fetchIntraday(ctx, symbol, tf, fromMS, toMS)
	case model.TF15m:
		base, err := c.fetchIntraday(ctx, symbol, model.TF5m, fromMS, toMS)
		if err != nil {
			return nil, err
		}
		return aggregate(base, model.TF15m), nil
	case model.TF4h:
		base, err := c.fetchIntraday(ctx, symbol, model.TF1h, fromMS, toMS)
		if err != nil {
			return nil, err
		}
		return aggregate(base, model.TF4h), nil
	case model.TF1d:
		return c.fetchEOD(ctx, symbol, fromMS, toMS)
	default:
		return nil, fmt.Errorf("fetch %s %s: %w", symbol, tf, model.ErrInvalidRequest)
	}
}

// intradayBar is one row of the intraday endpoint. Timestamp arrives as unix
// seconds; some plans serve only the datetime string, so both are handled.
type intradayBar struct {
	Timestamp int64   `json:"timestamp"`
	Datetime  string  `json:"datetime"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

func (b *intradayBar) startMS() (int64, bool) {
	if b.Timestamp > 0 {
		return b.Timestamp * 1000, true
	}
	if b.Datetime != "" {
		if t, err := time.Parse("2006-01-02 15:04:05", b.Datetime); err == nil {
			return t.UTC().UnixMilli(), true
		}
	}
	return 0, false
}

func (c *Client) fetchIntraday(ctx context.Context, symbol string, tf model.Timeframe, fromMS, toMS int64) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("api_token", c.token)
	q.Set("interval", nativeInterval[tf])
	q.Set("from", fmt.Sprintf("%d", fromMS/1000))
	q.Set("to", fmt.Sprintf("%d", toMS/1000))
	q.Set("fmt", "json")
	endpoint := fmt.Sprintf("%s/intraday/%s.US?%s", c.apiURL, url.PathEscape(symbol), q.Encode())

	var bars []intradayBar
	if err := c.getJSON(ctx, endpoint, &bars); err != nil {
		return nil, fmt.Errorf("fetch intraday %s %s: %w", symbol, tf, err)
	}

	nowMS := c.Now().UnixMilli()
	out := make([]model.Candle, 0, len(bars))
	for _, b := range bars {
		start, ok := b.startMS()
		if !ok || start < fromMS || start >= toMS {
			continue
		}
		cd := model.Candle{
			Symbol:    symbol,
			Timeframe: tf,
			StartTS:   start,
			O:         b.Open,
			H:         b.High,
			L:         b.Low,
			C:         b.Close,
			Volume:    b.Volume,
			Session:   sessionTag(start),
			IsClosed:  true,
			Source:    model.SourceREST,
		}
		// The window still running is a partial bar: drop it.
		if cd.EndTS() > nowMS {
			continue
		}
		out = append(out, cd)
	}
	return out, nil
}

// eodBar is one row of the end-of-day endpoint.
type eodBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func (c *Client) fetchEOD(ctx context.Context, symbol string, fromMS, toMS int64) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("api_token", c.token)
	q.Set("from", time.UnixMilli(fromMS).UTC().Format("2006-01-02"))
	q.Set("to", time.UnixMilli(toMS).UTC().Format("2006-01-02"))
	q.Set("fmt", "json")
	endpoint := fmt.Sprintf("%s/eod/%s.US?%s", c.apiURL, url.PathEscape(symbol), q.Encode())

	var bars []eodBar
	if err := c.getJSON(ctx, endpoint, &bars); err != nil {
		return nil, fmt.Errorf("fetch eod %s: %w", symbol, err)
	}

	nowMS := c.Now().UnixMilli()
	out := make([]model.Candle, 0, len(bars))
	for _, b := range bars {
		t, err := time.Parse("2006-01-02", b.Date)
		if err != nil {
			continue
		}
		cd := model.Candle{
			Symbol:    symbol,
			Timeframe: model.TF1d,
			StartTS:   t.UTC().UnixMilli(),
			O:         b.Open,
			H:         b.High,
			L:         b.Low,
			C:         b.Close,
			Volume:    b.Volume,
			Session:   model.SessionRTH,
			IsClosed:  true,
			Source:    model.SourceREST,
		}
		if cd.StartTS < fromMS || cd.StartTS >= toMS || cd.EndTS() > nowMS {
			continue
		}
		out = append(out, cd)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return c.redactErr(err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		// Transport errors embed the request URL, which carries the token.
		return fmt.Errorf("%v: %w", c.redactErr(err), model.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("status %d: %w", resp.StatusCode, model.ErrProviderUnavailable)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// aggregate rolls source bars up into the wider timeframe, emitting only
// windows with the full constituent count. Incomplete windows are left out;
// downstream freshness accounting treats them as gaps.
func aggregate(src []model.Candle, tf model.Timeframe) []model.Candle {
	if len(src) == 0 {
		return nil
	}
	need := int(tf.Millis() / src[0].Timeframe.Millis())

	groups := make(map[int64][]model.Candle)
	for _, c := range src {
		w := tf.Bucket(c.StartTS)
		groups[w] = append(groups[w], c)
	}

	var out []model.Candle
	for w, bars := range groups {
		if len(bars) != need {
			continue
		}
		sortByStart(bars)
		agg := model.Candle{
			Symbol:    bars[0].Symbol,
			Timeframe: tf,
			StartTS:   w,
			O:         bars[0].O,
			H:         bars[0].H,
			L:         bars[0].L,
			C:         bars[len(bars)-1].C,
			Session:   bars[0].Session,
			IsClosed:  true,
			Source:    model.SourceREST,
		}
		for _, b := range bars {
			if b.H > agg.H {
				agg.H = b.H
			}
			if b.L < agg.L {
				agg.L = b.L
			}
			agg.Volume += b.Volume
		}
		out = append(out, agg)
	}
	sortByStart(out)
	return out
}

func sortByStart(cs []model.Candle) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j].StartTS < cs[j-1].StartTS; j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}

// redactErr rewrites the error text with the API token masked. Callers
// log these errors verbatim, so the raw token must never survive in them.
func (c *Client) redactErr(err error) error {
	if err == nil || c.token == "" {
		return err
	}
	masked := logger.Redact(c.token)
	msg := strings.ReplaceAll(err.Error(), c.token, masked)
	msg = strings.ReplaceAll(msg, url.QueryEscape(c.token), masked)
	return errors.New(msg)
}

func sessionTag(startMS int64) model.SessionTag {
	if markethours.IsRTH(time.UnixMilli(startMS).UTC()) {
		return model.SessionRTH
	}
	return model.SessionEXT
}
