// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/stratchat/internal/model"
)

// newTestClient points a client at srv with fast retries and no rate cap.
func newTestClient(srv *httptest.Server) *Client {
	c := NewClient(srv.URL).WithRateLimit(0)
	c.retryDelay = time.Millisecond
	return c
}

func TestClient_GenerateCodeSendsParams(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate-code", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"code": "class RsiStrategy(bt.Strategy):\n    pass"}`))
	}))
	defer srv.Close()

	params := model.DefaultParams()
	code, err := newTestClient(srv).GenerateCode(context.Background(), "RSI가 30 이하일 때 매수", params)
	require.NoError(t, err)
	assert.Contains(t, code, "RsiStrategy")

	assert.Equal(t, "RSI가 30 이하일 때 매수", got["strategy"])
	assert.Equal(t, params.Capital, got["capital"])
	assert.Equal(t, params.CapitalPct, got["capital_pct"])
	assert.Equal(t, params.StopLoss, got["stopLoss"])
	assert.Equal(t, params.TakeProfit, got["takeProfit"])
	assert.Equal(t, params.StartDate, got["startDate"])
	assert.Equal(t, params.Timeframe, got["timeframe"])
}

func TestClient_RunBacktestUsesSnakeCase(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{
			"total_return": 12.5, "num_trades": 4, "win_rate": 50, "max_drawdown": -3.2,
			"profit_loss_ratio": 1.8,
			"trade_history": [{"entry_date": "2024-01-02", "exit_date": "2024-01-03",
				"entry_price": 42000, "exit_price": 43000, "pnl": 100, "pnl_pct": 0.0238}],
			"equity_curve": {"timestamps": ["2024-01-01", "2024-01-02"], "values": [10000, 11250]}
		}`))
	}))
	defer srv.Close()

	result, err := newTestClient(srv).RunBacktest(context.Background(), "code", model.DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, "code", got["code"])
	assert.Contains(t, got, "stop_loss")
	assert.Contains(t, got, "take_profit")
	assert.Contains(t, got, "start_date")
	assert.NotContains(t, got, "stopLoss")

	assert.Equal(t, 12.5, result.TotalReturn)
	assert.Equal(t, 4, result.NumTrades)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, result.EquityCurve.Labels)
	require.Len(t, result.TradeHistory, 1)
	assert.Equal(t, 43000.0, result.TradeHistory[0].ExitPrice)
	assert.Equal(t, "code", result.Code)
}

func TestClient_RunBacktestRejectsMalformedResults(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing equity curve", `{"total_return": 1, "num_trades": 1}`, "equity_curve"},
		{"empty values", `{"total_return": 1, "equity_curve": {"labels": [], "values": []}}`, "equity_curve"},
		{"label mismatch", `{"total_return": 1, "equity_curve": {"labels": ["a"], "values": [1, 2]}}`, "equity_curve"},
		{"missing return", `{"equity_curve": {"labels": ["a"], "values": [1]}}`, "total_return"},
		{"not json", `<html>oops</html>`, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv).RunBacktest(context.Background(), "code", model.DefaultParams())
			require.Error(t, err)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "got %T: %v", err, err)
			assert.Equal(t, tt.field, vErr.Field)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestClient_ConfirmStrategy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/confirm-strategy", r.URL.Path)
		w.Write([]byte(`{"analysis": {"indicators": ["RSI"], "entry_conditions": "RSI < 30",
			"exit_conditions": "RSI > 70", "strategy_type": "mean reversion"}}`))
	}))
	defer srv.Close()

	analysis, err := newTestClient(srv).ConfirmStrategy(context.Background(), "rsi", model.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, []string{"RSI"}, analysis.Indicators)
	assert.Equal(t, "mean reversion", analysis.StrategyType)
}

func TestClient_ConfirmStrategyMissingAnalysis(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ConfirmStrategy(context.Background(), "rsi", model.DefaultParams())
	assert.True(t, IsValidation(err))
}

func TestClient_PrepareData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"file_saved": "btc_1h.csv", "rows": 2160, "indicators_added": ["rsi_14", "sma_20"]}`))
	}))
	defer srv.Close()

	prep, err := newTestClient(srv).PrepareData(context.Background(), "rsi", model.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, "btc_1h.csv", prep.FileSaved)
	assert.Equal(t, 2160, prep.Rows)
	assert.Equal(t, []string{"rsi_14", "sma_20"}, prep.IndicatorsAdded)
}

func TestClient_FetchData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req FetchDataRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 5000, req.MaxDataPoints)
		w.Write([]byte(`{"success": true,
			"summary": {"start_date": "2024-01-01T00:00:00", "num_points": 2},
			"data": [
				{"timestamp": "2024-01-01T00:00:00", "open": 1, "high": 2, "low": 0.5, "close": 1.5, "volume": 10},
				{"timestamp": "2024-01-01 01:00:00", "open": 1.5, "high": 2, "low": 1, "close": 1.2, "volume": 5}
			],
			"logs": ["fetched 2 rows"]}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv).FetchData(context.Background(), DefaultFetchDataRequest())
	require.NoError(t, err)
	require.Len(t, res.Candles, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), res.Candles[1].Time)
	assert.Equal(t, 2, res.Summary.NumPoints)
	assert.Equal(t, []string{"fetched 2 rows"}, res.Logs)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"code": "ok"}`))
	}))
	defer srv.Close()

	code, err := newTestClient(srv).GenerateCode(context.Background(), "x", model.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, "ok", code)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail": "boom\nTraceback (most recent call last):"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).WithMaxRetries(1).GenerateCode(context.Background(), "x", model.DefaultParams())
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "backend error (HTTP 500): boom", apiErr.Error())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail": [{"loc": ["body", "capital"], "msg": "field required"}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GenerateCode(context.Background(), "x", model.DefaultParams())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, err.Error(), "field required")
}

func TestClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "지정된 기간에 데이터가 없습니다."}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchData(context.Background(), DefaultFetchDataRequest())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "데이터가 없습니다")
}

func TestClient_ContextCancelStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv).GenerateCode(ctx, "x", model.DefaultParams())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_ResponseSizeLimit(t *testing.T) {
	resp := &http.Response{Body: io.NopCloser(strings.NewReader(strings.Repeat("a", 16)))}
	body, err := readResponse(resp)
	require.NoError(t, err)
	assert.Len(t, body, 16)
}

func TestClient_NoBaseURLUsesDefault(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, NewClient("").BaseURL())
	assert.Equal(t, "http://x:1", NewClient("http://x:1/").BaseURL())
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{"2024-01-01T05:00:00Z", "2024-01-01T05:00:00", "2024-01-01 05:00:00"} {
		ts, err := ParseTimestamp(s)
		require.NoError(t, err, s)
		assert.Equal(t, 5, ts.Hour())
	}
	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}
