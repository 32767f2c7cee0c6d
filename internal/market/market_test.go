// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/stratchat/internal/model"
)

const sampleKlines = `[
	[1704067200000, "42283.58", "42554.57", "42261.02", "42475.23", "1271.68", 1704070799999, "0", 0, "0", "0", "0"],
	[1704070800000, "42475.23", "42775.00", "42431.65", "42613.56", "1196.37", 1704074399999, "0", 0, "0", "0", "0"]
]`

func TestParseKlines(t *testing.T) {
	candles, err := ParseKlines([]byte(sampleKlines))
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), candles[0].Time)
	assert.Equal(t, 42283.58, candles[0].Open)
	assert.Equal(t, 42775.00, candles[1].High)
	assert.Equal(t, 1196.37, candles[1].Volume)

	_, err = ParseKlines([]byte(`[]`))
	assert.ErrorIs(t, err, ErrNoData)

	_, err = ParseKlines([]byte(`[[1, "2"]]`))
	assert.Error(t, err)

	_, err = ParseKlines([]byte(`[[1, "x", "1", "1", "1", "1"]]`))
	assert.Error(t, err)
}

func TestClient_Klines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "4h", r.URL.Query().Get("interval"))
		assert.Equal(t, "1000", r.URL.Query().Get("limit"), "limit is clamped")
		w.Write([]byte(sampleKlines))
	}))
	defer srv.Close()

	candles, err := NewClient(srv.URL).Klines(context.Background(), "btcusdt", "4h", 5000)
	require.NoError(t, err)
	assert.Len(t, candles, 2)
}

func TestClient_KlinesExchangeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": -1120, "msg": "Invalid interval."}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Klines(context.Background(), "", "7m", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid interval.")
}

func TestVolumeWindow(t *testing.T) {
	assert.Equal(t, 24, VolumeWindow("1h"))
	assert.Equal(t, 96, VolumeWindow("15m"))
	assert.Equal(t, 6, VolumeWindow("4h"))
	assert.Equal(t, 1, VolumeWindow("1d"))
	assert.Equal(t, 24, VolumeWindow("5m"))
}

func TestSummarize(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var candles []model.Candle
	for i := 0; i < 8; i++ {
		candles = append(candles, model.Candle{
			Time:   base.Add(time.Duration(i) * 4 * time.Hour),
			Close:  100 + float64(i),
			Volume: 1,
		})
	}

	s, ok := Summarize("BTCUSDT", "4h", candles)
	require.True(t, ok)
	assert.Equal(t, 107.0, s.LastPrice)
	assert.Equal(t, 1.0, s.Change)
	assert.InDelta(t, 1.0/106.0*100, s.ChangePct, 1e-9)
	assert.Equal(t, 6, s.Window)
	assert.Equal(t, 6.0, s.Volume)

	single, ok := Summarize("BTCUSDT", "1h", candles[:1])
	require.True(t, ok)
	assert.Equal(t, 0.0, single.Change)
	assert.Equal(t, 1.0, single.Volume)

	_, ok = Summarize("BTCUSDT", "1h", nil)
	assert.False(t, ok)
}

func TestMerge(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := []model.Candle{
		{Time: base, Close: 1},
		{Time: base.Add(time.Hour), Close: 2},
	}

	series = Merge(series, model.Candle{Time: base.Add(time.Hour), Close: 3}, 2)
	require.Len(t, series, 2)
	assert.Equal(t, 3.0, series[1].Close, "same open time replaces")

	series = Merge(series, model.Candle{Time: base.Add(2 * time.Hour), Close: 4}, 2)
	require.Len(t, series, 2)
	assert.Equal(t, base.Add(time.Hour), series[0].Time, "oldest dropped at limit")
	assert.Equal(t, 4.0, series[1].Close)

	series = Merge(series, model.Candle{Time: base, Close: 9}, 2)
	assert.Equal(t, 4.0, series[1].Close, "stale candles are ignored")
}

const sampleEvent = `{"e":"kline","E":1704070800123,"s":"BTCUSDT","k":{"t":1704070800000,"T":1704074399999,
	"s":"BTCUSDT","i":"1h","o":"42475.23","c":"42500.00","h":"42510.00","l":"42400.00","v":"12.5","x":false}}`

func TestParseUpdate(t *testing.T) {
	u, ok, err := ParseUpdate([]byte(sampleEvent))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", u.Symbol)
	assert.Equal(t, "1h", u.Interval)
	assert.Equal(t, 42500.00, u.Candle.Close)
	assert.False(t, u.Closed)

	_, ok, err = ParseUpdate([]byte(`{"e":"trade"}`))
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ParseUpdate([]byte(`not json`))
	assert.Error(t, err)
}

func TestStreamURL(t *testing.T) {
	assert.Equal(t, "wss://stream.binance.com:9443/ws/btcusdt@kline_1h", StreamURL("", "BTCUSDT", "1h"))
	assert.Equal(t, "ws://x/ws/btcusdt@kline_4h", StreamURL("ws://x/ws/", "btcusdt", "4h"))
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func TestSubscribe_DeliversUpdates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/btcusdt@kline_1h", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"24hrTicker"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(sampleEvent))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	stream, err := Subscribe(ctx, wsURL, "BTCUSDT", "1h", nil)
	require.NoError(t, err)

	select {
	case u := <-stream.Updates():
		assert.Equal(t, 42500.00, u.Candle.Close)
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
	}

	cancel()
	stream.Wait()

	_, open := <-stream.Updates()
	assert.False(t, open, "updates channel closes with the stream")
}

func TestSubscribe_Reconnects(t *testing.T) {
	var connections atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if connections.Add(1) == 1 {
			// Drop the first connection without sending anything.
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(sampleEvent))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := DefaultStreamConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	stream, err := Subscribe(ctx, wsURL, "BTCUSDT", "1h", &cfg)
	require.NoError(t, err)

	select {
	case u := <-stream.Updates():
		assert.Equal(t, "BTCUSDT", u.Symbol)
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not reconnect")
	}
	assert.GreaterOrEqual(t, connections.Load(), int32(2))
}

func TestSubscribe_DialError(t *testing.T) {
	_, err := Subscribe(context.Background(), "ws://127.0.0.1:1/ws", "BTCUSDT", "1h", nil)
	assert.Error(t, err)
}
