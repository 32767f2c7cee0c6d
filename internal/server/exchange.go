// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/jeranaias/stratchat/internal/model"
)

const (
	defaultKlineLimit = 500
	maxKlineLimit     = 1000
	writeTimeout      = 5 * time.Second
)

// exchangeError is the exchange's error body.
type exchangeError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatVolume(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// klineRow renders a candle the way the exchange does:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume, trades, ...].
func klineRow(k model.Candle, step time.Duration) []any {
	return []any{
		k.Time.UnixMilli(),
		formatPrice(k.Open),
		formatPrice(k.High),
		formatPrice(k.Low),
		formatPrice(k.Close),
		formatVolume(k.Volume),
		k.Time.Add(step).UnixMilli() - 1,
		formatPrice(k.Volume * k.Close),
		int64(k.Volume * 10),
		"0", "0", "0",
	}
}

// ============================================================================
// KLINES REST
// ============================================================================

// handleKlines returns the most recent candles.
// GET /api/v3/klines?symbol=BTCUSDT&interval=1h&limit=100
func (s *Server) handleKlines(c echo.Context) error {
	interval := c.QueryParam("interval")
	step, ok := model.TimeframeDuration(interval)
	if !ok {
		return c.JSON(http.StatusBadRequest, exchangeError{Code: -1120, Msg: "Invalid interval."})
	}

	limit := defaultKlineLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, exchangeError{Code: -1100, Msg: "Illegal characters found in parameter 'limit'."})
		}
		limit = min(n, maxKlineLimit)
	}

	candles := recentCandles(s.clock(), step, limit)
	rows := make([][]any, len(candles))
	for i, k := range candles {
		rows[i] = klineRow(k, step)
	}
	return c.JSON(http.StatusOK, rows)
}

// ============================================================================
// KLINE STREAM
// ============================================================================

type klinePayload struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Symbol    string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	Closed    bool   `json:"x"`
}

type klineMessage struct {
	Event     string       `json:"e"`
	EventTime int64        `json:"E"`
	Symbol    string       `json:"s"`
	Kline     klinePayload `json:"k"`
}

func newKlineMessage(symbol, interval string, k model.Candle, step time.Duration, closed bool, now time.Time) klineMessage {
	return klineMessage{
		Event:     "kline",
		EventTime: now.UnixMilli(),
		Symbol:    symbol,
		Kline: klinePayload{
			OpenTime:  k.Time.UnixMilli(),
			CloseTime: k.Time.Add(step).UnixMilli() - 1,
			Symbol:    symbol,
			Interval:  interval,
			Open:      formatPrice(k.Open),
			Close:     formatPrice(k.Close),
			High:      formatPrice(k.High),
			Low:       formatPrice(k.Low),
			Volume:    formatVolume(k.Volume),
			Closed:    closed,
		},
	}
}

// parseStreamName splits "btcusdt@kline_1h" into symbol and interval.
func parseStreamName(name string) (symbol, interval string, ok bool) {
	sym, kind, found := strings.Cut(name, "@")
	if !found || sym == "" {
		return "", "", false
	}
	interval, found = strings.CutPrefix(kind, "kline_")
	if !found {
		return "", "", false
	}
	if _, valid := model.TimeframeDuration(interval); !valid {
		return "", "", false
	}
	return strings.ToUpper(sym), interval, true
}

// handleKlineStream pushes a kline event every tick. When a bar rolls over
// the finished bar is sent once more with x=true.
// GET /ws/:stream
func (s *Server) handleKlineStream(c echo.Context) error {
	symbol, interval, ok := parseStreamName(c.Param("stream"))
	if !ok {
		return c.JSON(http.StatusBadRequest, exchangeError{Code: -1121, Msg: "Invalid stream."})
	}
	step, _ := model.TimeframeDuration(interval)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("WS_UPGRADE_FAILED | error=%v", err)
		return nil
	}
	defer conn.Close()
	log.Printf("WS_CONNECT | stream=%s remote=%s", c.Param("stream"), c.RealIP())

	// The read side only watches for the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.mu.RLock()
	tick := s.tick
	s.mu.RUnlock()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	send := func(msg klineMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("WS_WRITE_FAILED | stream=%s error=%v", c.Param("stream"), err)
			return false
		}
		return true
	}

	now := s.clock()
	current := now.Truncate(step)
	if !send(newKlineMessage(symbol, interval, candleAt(current, step, now), step, false, now)) {
		return nil
	}

	for {
		select {
		case <-done:
			log.Printf("WS_DISCONNECT | stream=%s", c.Param("stream"))
			return nil
		case <-c.Request().Context().Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeTimeout))
			return nil
		case <-ticker.C:
			now := s.clock()
			if bar := now.Truncate(step); bar.After(current) {
				finished := candleAt(current, step, bar)
				if !send(newKlineMessage(symbol, interval, finished, step, true, now)) {
					return nil
				}
				current = bar
			}
			if !send(newKlineMessage(symbol, interval, candleAt(current, step, now), step, false, now)) {
				return nil
			}
		}
	}
}
