// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jeranaias/stratchat/internal/model"
)

// DefaultStreamURL is the exchange's public websocket endpoint.
const DefaultStreamURL = "wss://stream.binance.com:9443/ws"

// StreamConfig configures the kline stream.
type StreamConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential reconnect backoff.
	MaxReconnectDelay time.Duration
	// ReadTimeout drops a connection that stays silent this long.
	ReadTimeout time.Duration
	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration
}

// DefaultStreamConfig returns the default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       90 * time.Second,
		HandshakeTimeout:  10 * time.Second,
	}
}

// Update is one kline event from the stream.
type Update struct {
	Symbol   string
	Interval string
	Candle   model.Candle
	Closed   bool // the candle's interval has ended
}

// klineEvent is the exchange's kline payload.
type klineEvent struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Kline  struct {
		OpenTime int64  `json:"t"`
		Interval string `json:"i"`
		Open     string `json:"o"`
		Close    string `json:"c"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Volume   string `json:"v"`
		Closed   bool   `json:"x"`
	} `json:"k"`
}

// ParseUpdate decodes a kline event. Non-kline events return ok=false.
func ParseUpdate(data []byte) (Update, bool, error) {
	var ev klineEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return Update{}, false, fmt.Errorf("failed to parse kline event: %w", err)
	}
	if ev.Event != "kline" {
		return Update{}, false, nil
	}

	var vals [5]float64
	for i, s := range []string{ev.Kline.Open, ev.Kline.High, ev.Kline.Low, ev.Kline.Close, ev.Kline.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Update{}, false, fmt.Errorf("kline field %d: %w", i, err)
		}
		vals[i] = v
	}

	return Update{
		Symbol:   ev.Symbol,
		Interval: ev.Kline.Interval,
		Closed:   ev.Kline.Closed,
		Candle: model.Candle{
			Time:   time.UnixMilli(ev.Kline.OpenTime).UTC(),
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		},
	}, true, nil
}

// StreamURL returns the kline stream address for symbol and interval.
func StreamURL(base, symbol, interval string) string {
	if base == "" {
		base = DefaultStreamURL
	}
	return fmt.Sprintf("%s/%s@kline_%s", strings.TrimSuffix(base, "/"), strings.ToLower(symbol), interval)
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is a reconnecting kline subscription.
type Stream struct {
	endpoint string
	config   StreamConfig

	connMu sync.Mutex
	conn   *websocket.Conn

	updates chan Update
	wg      sync.WaitGroup
}

// Subscribe dials the kline stream for symbol and interval. The returned
// stream delivers updates until ctx is done, reconnecting with exponential
// backoff when the connection drops.
func Subscribe(ctx context.Context, baseURL, symbol, interval string, config *StreamConfig) (*Stream, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}

	s := &Stream{
		endpoint: StreamURL(baseURL, symbol, interval),
		config:   cfg,
		updates:  make(chan Update, 64),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop(ctx)

	// Unblock ReadMessage when the caller goes away.
	go func() {
		<-ctx.Done()
		s.closeConn()
	}()

	return s, nil
}

// Updates returns the channel of kline updates. It is closed when the
// stream ends.
func (s *Stream) Updates() <-chan Update {
	return s.updates
}

// Wait blocks until the stream has shut down.
func (s *Stream) Wait() {
	s.wg.Wait()
}

func (s *Stream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: s.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if ctx.Err() != nil {
		conn.Close()
		return ctx.Err()
	}
	s.conn = conn
	return nil
}

func (s *Stream) closeConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.conn.Close()
		s.conn = nil
	}
}

// readLoop reads events and reconnects on failure until ctx is done.
func (s *Stream) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.updates)

	delay := s.config.ReconnectDelay

	for ctx.Err() == nil {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if err := s.connect(ctx); err != nil {
				log.Printf("Market stream reconnect failed: %v", err)
				delay = min(delay*2, s.config.MaxReconnectDelay)
			}
			continue
		}

		if s.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Market stream read error: %v", err)
			s.connMu.Lock()
			if s.conn == conn {
				s.conn.Close()
				s.conn = nil
			}
			s.connMu.Unlock()
			continue
		}

		delay = s.config.ReconnectDelay

		update, ok, err := ParseUpdate(data)
		if err != nil {
			log.Printf("Market stream: %v", err)
			continue
		}
		if !ok {
			continue
		}

		select {
		case s.updates <- update:
		case <-ctx.Done():
			return
		}
	}
}
