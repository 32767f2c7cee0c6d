// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/stratchat/internal/model"
)

// =============================================================================
// REQUESTS
// =============================================================================

// StrategyRequest is the body of confirm-strategy, prepare-data and
// generate-code. The service reads these keys in mixed case.
type StrategyRequest struct {
	Strategy   string  `json:"strategy"`
	Capital    float64 `json:"capital"`
	CapitalPct float64 `json:"capital_pct"`
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
	StartDate  string  `json:"startDate"`
	EndDate    string  `json:"endDate"`
	Commission float64 `json:"commission"`
	Timeframe  string  `json:"timeframe"`
}

// NewStrategyRequest builds a request from the current parameters.
func NewStrategyRequest(strategy string, p model.Params) StrategyRequest {
	return StrategyRequest{
		Strategy:   strategy,
		Capital:    p.Capital,
		CapitalPct: p.CapitalPct,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		StartDate:  p.StartDate,
		EndDate:    p.EndDate,
		Commission: p.Commission,
		Timeframe:  p.Timeframe,
	}
}

// BacktestRequest is the body of run-backtest.
type BacktestRequest struct {
	Code       string  `json:"code"`
	Capital    float64 `json:"capital"`
	CapitalPct float64 `json:"capital_pct"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
	Commission float64 `json:"commission"`
	Timeframe  string  `json:"timeframe"`
}

// NewBacktestRequest builds a request from code and the current parameters.
func NewBacktestRequest(code string, p model.Params) BacktestRequest {
	return BacktestRequest{
		Code:       code,
		Capital:    p.Capital,
		CapitalPct: p.CapitalPct,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		StartDate:  p.StartDate,
		EndDate:    p.EndDate,
		Commission: p.Commission,
		Timeframe:  p.Timeframe,
	}
}

// FetchDataRequest is the body of debug/fetch-data.
type FetchDataRequest struct {
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	MaxDataPoints int    `json:"max_data_points"`
	Timeframe     string `json:"timeframe,omitempty"`
}

// DefaultFetchDataRequest returns the debug page's defaults.
func DefaultFetchDataRequest() FetchDataRequest {
	return FetchDataRequest{
		StartDate:     "2024-01-01",
		EndDate:       "2024-01-05",
		MaxDataPoints: 5000,
		Timeframe:     "1h",
	}
}

// =============================================================================
// RESPONSES
// =============================================================================

type confirmResponse struct {
	Analysis *model.StrategyAnalysis `json:"analysis"`
}

type prepareResponse struct {
	FileSaved       string   `json:"file_saved"`
	Rows            *int     `json:"rows"`
	IndicatorsAdded []string `json:"indicators_added"`
}

type generateResponse struct {
	Code *string `json:"code"`
}

// equityCurve accepts either labels or timestamps for the x axis.
type equityCurve struct {
	Labels     []string  `json:"labels"`
	Timestamps []string  `json:"timestamps"`
	Values     []float64 `json:"values"`
}

type backtestResponse struct {
	TotalReturn     *float64      `json:"total_return"`
	NumTrades       int           `json:"num_trades"`
	WinRate         float64       `json:"win_rate"`
	MaxDrawdown     float64       `json:"max_drawdown"`
	ProfitLossRatio float64       `json:"profit_loss_ratio"`
	TradeHistory    []model.Trade `json:"trade_history"`
	EquityCurve     *equityCurve  `json:"equity_curve"`
}

// toResult validates the response and converts it.
func (r *backtestResponse) toResult() (*model.BacktestResult, error) {
	const endpoint = "run-backtest"

	if r.TotalReturn == nil {
		return nil, &ValidationError{Endpoint: endpoint, Field: "total_return", Reason: "is missing"}
	}
	if r.EquityCurve == nil || len(r.EquityCurve.Values) == 0 {
		return nil, &ValidationError{Endpoint: endpoint, Field: "equity_curve", Reason: "is missing"}
	}

	labels := r.EquityCurve.Labels
	if len(labels) == 0 {
		labels = r.EquityCurve.Timestamps
	}
	if len(labels) != len(r.EquityCurve.Values) {
		return nil, &ValidationError{
			Endpoint: endpoint,
			Field:    "equity_curve",
			Reason:   fmt.Sprintf("has %d labels for %d values", len(labels), len(r.EquityCurve.Values)),
		}
	}

	return &model.BacktestResult{
		TotalReturn:     *r.TotalReturn,
		NumTrades:       r.NumTrades,
		WinRate:         r.WinRate,
		MaxDrawdown:     r.MaxDrawdown,
		ProfitLossRatio: r.ProfitLossRatio,
		TradeHistory:    r.TradeHistory,
		EquityCurve: model.EquityCurve{
			Labels: labels,
			Values: r.EquityCurve.Values,
		},
	}, nil
}

type wireCandle struct {
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// FetchDataSummary is the server-side summary of a debug fetch.
type FetchDataSummary struct {
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
	NumPoints  int     `json:"num_points"`
	StartPrice float64 `json:"start_price"`
	EndPrice   float64 `json:"end_price"`
}

type fetchDataResponse struct {
	Success bool             `json:"success"`
	Summary FetchDataSummary `json:"summary"`
	Data    []wireCandle     `json:"data"`
	Logs    []string         `json:"logs"`
}

// FetchDataResult is a decoded debug fetch.
type FetchDataResult struct {
	Summary FetchDataSummary
	Candles []model.Candle
	Logs    []string
}

// timestampLayouts are the forms the service uses for candle times.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	model.DateLayout,
}

// ParseTimestamp parses a candle timestamp. Times without a zone are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (r *fetchDataResponse) toResult() (*FetchDataResult, error) {
	const endpoint = "debug/fetch-data"

	candles := make([]model.Candle, 0, len(r.Data))
	for i, c := range r.Data {
		ts, err := ParseTimestamp(c.Timestamp)
		if err != nil {
			return nil, &ValidationError{
				Endpoint: endpoint,
				Field:    fmt.Sprintf("data[%d].timestamp", i),
				Reason:   err.Error(),
			}
		}
		candles = append(candles, model.Candle{
			Time:   ts,
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}

	return &FetchDataResult{
		Summary: r.Summary,
		Candles: candles,
		Logs:    r.Logs,
	}, nil
}

// errorResponse is the service's error body.
type errorResponse struct {
	Detail any `json:"detail"`
}
