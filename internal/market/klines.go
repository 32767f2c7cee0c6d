// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/stratchat/internal/model"
)

const (
	// DefaultRESTURL is the exchange's public REST API.
	DefaultRESTURL = "https://api.binance.com"

	// DefaultSymbol is the only pair the backtest service supports.
	DefaultSymbol = "BTCUSDT"

	// MaxLimit is the most klines the exchange returns per request.
	MaxLimit = 1000

	// maxBodySize bounds a klines response (1000 rows are about 200KB).
	maxBodySize = 4 * 1024 * 1024
)

// ErrNoData indicates the exchange returned no klines.
var ErrNoData = errors.New("no kline data")

// Client fetches klines over REST.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client for the exchange at baseURL. An empty baseURL
// uses DefaultRESTURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultRESTURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		// The exchange weights klines requests; two per second stays well
		// inside the public limits.
		limiter: rate.NewLimiter(2, 2),
	}
}

// Klines returns up to limit most recent candles for symbol at interval,
// oldest first. limit is clamped to 1..MaxLimit.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	if symbol == "" {
		symbol = DefaultSymbol
	}
	limit = min(max(limit, 1), MaxLimit)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	endpoint := c.baseURL + "/api/v3/klines?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	log.Printf("Market Request: GET /api/v3/klines %s %s", symbol, interval)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("klines request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read klines: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return nil, fmt.Errorf("exchange error (HTTP %d) [%d]: %s", resp.StatusCode, apiErr.Code, apiErr.Msg)
		}
		return nil, fmt.Errorf("exchange error (HTTP %d)", resp.StatusCode)
	}

	return ParseKlines(body)
}

// ParseKlines decodes the exchange's array-of-arrays kline format:
// [openTime, open, high, low, close, volume, ...] with prices as strings.
func ParseKlines(body []byte) ([]model.Candle, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse klines: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline %d: expected at least 6 fields, got %d", i, len(row))
		}

		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			return nil, fmt.Errorf("kline %d: open time: %w", i, err)
		}

		var vals [5]float64
		for j := range vals {
			v, err := decimalField(row[j+1])
			if err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j+1, err)
			}
			vals[j] = v
		}

		candles = append(candles, model.Candle{
			Time:   time.UnixMilli(openTime).UTC(),
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	return candles, nil
}

// decimalField accepts a quoted decimal string or a bare number.
func decimalField(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}
