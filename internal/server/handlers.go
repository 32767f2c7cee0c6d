// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jeranaias/stratchat/internal/backend"
	"github.com/jeranaias/stratchat/internal/model"
)

// ============================================================================
// REQUEST HELPERS
// ============================================================================

// unprocessable mirrors the service's 422 for bodies it cannot use.
func unprocessable(msg string) error {
	return echo.NewHTTPError(http.StatusUnprocessableEntity, msg)
}

// bindStrategy decodes and checks a strategy request, filling unset
// parameters from the defaults.
func bindStrategy(c echo.Context) (string, model.Params, error) {
	var req backend.StrategyRequest
	if err := c.Bind(&req); err != nil {
		return "", model.Params{}, unprocessable("invalid request body")
	}
	if strings.TrimSpace(req.Strategy) == "" {
		return "", model.Params{}, unprocessable("strategy must not be empty")
	}
	p := fillParams(model.Params{
		Capital:    req.Capital,
		CapitalPct: req.CapitalPct,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Commission: req.Commission,
		Timeframe:  req.Timeframe,
	})
	if err := p.Validate(); err != nil {
		return "", model.Params{}, unprocessable(oneLine(err))
	}
	return req.Strategy, p, nil
}

func oneLine(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", "; ")
}

func fillParams(p model.Params) model.Params {
	d := model.DefaultParams()
	if p.Capital == 0 {
		p.Capital = d.Capital
	}
	if p.CapitalPct == 0 {
		p.CapitalPct = d.CapitalPct
	}
	if p.StartDate == "" {
		p.StartDate = d.StartDate
	}
	if p.EndDate == "" {
		p.EndDate = d.EndDate
	}
	if p.Timeframe == "" {
		p.Timeframe = d.Timeframe
	}
	return p
}

// candlesFor synthesizes the candles covering the parameters' date range,
// end date inclusive.
func candlesFor(p model.Params, limit int) ([]model.Candle, error) {
	step, ok := model.TimeframeDuration(p.Timeframe)
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe %q", p.Timeframe)
	}
	from, err := time.Parse(model.DateLayout, p.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q", p.StartDate)
	}
	to, err := time.Parse(model.DateLayout, p.EndDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q", p.EndDate)
	}
	to = to.Add(day)
	if !to.After(from) {
		return nil, fmt.Errorf("end date %s is before start date %s", p.EndDate, p.StartDate)
	}
	if bars := int(to.Sub(from) / step); bars > MaxBars && limit <= 0 {
		return nil, fmt.Errorf("range needs %d %s candles, limit is %d", bars, p.Timeframe, MaxBars)
	}
	return syntheticCandles(from, to, step, limit), nil
}

// ============================================================================
// BACKEND ENDPOINTS
// ============================================================================

// handleConfirmStrategy analyzes a strategy description.
// POST /confirm-strategy
func (s *Server) handleConfirmStrategy(c echo.Context) error {
	strategy, _, err := bindStrategy(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"analysis": analyzeStrategy(strategy)})
}

// handlePrepareData reports the dataset a backtest would use.
// POST /prepare-data
func (s *Server) handlePrepareData(c echo.Context) error {
	strategy, p, err := bindStrategy(c)
	if err != nil {
		return err
	}
	candles, err := candlesFor(p, 0)
	if err != nil {
		return unprocessable(err.Error())
	}
	return c.JSON(http.StatusOK, model.DataPreparation{
		FileSaved:       fmt.Sprintf("data/BTCUSDT_%s_%s_%s.csv", p.Timeframe, p.StartDate, p.EndDate),
		Rows:            len(candles),
		IndicatorsAdded: indicatorColumns(strategy),
	})
}

// handleGenerateCode renders strategy code.
// POST /generate-code
func (s *Server) handleGenerateCode(c echo.Context) error {
	strategy, p, err := bindStrategy(c)
	if err != nil {
		return err
	}
	code, err := generateCode(strategy, p)
	if err != nil {
		log.Printf("ERROR: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"code": code})
}

// handleRunBacktest simulates the generated strategy over synthetic candles.
// POST /run-backtest
func (s *Server) handleRunBacktest(c echo.Context) error {
	var req backend.BacktestRequest
	if err := c.Bind(&req); err != nil {
		return unprocessable("invalid request body")
	}
	if strings.TrimSpace(req.Code) == "" {
		return unprocessable("code must not be empty")
	}
	p := fillParams(model.Params{
		Capital:    req.Capital,
		CapitalPct: req.CapitalPct,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Commission: req.Commission,
		Timeframe:  req.Timeframe,
	})
	if err := p.Validate(); err != nil {
		return unprocessable(oneLine(err))
	}
	candles, err := candlesFor(p, 0)
	if err != nil {
		return unprocessable(err.Error())
	}
	return c.JSON(http.StatusOK, simulate(candles, p))
}

// ============================================================================
// DEBUG ENDPOINTS
// ============================================================================

type wireCandle struct {
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// handleFetchData returns raw candles for a date range.
// POST /debug/fetch-data
func (s *Server) handleFetchData(c echo.Context) error {
	var req backend.FetchDataRequest
	if err := c.Bind(&req); err != nil {
		return unprocessable("invalid request body")
	}
	if req.StartDate == "" || req.EndDate == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "시작일과 종료일이 필요합니다.")
	}
	if req.MaxDataPoints <= 0 {
		req.MaxDataPoints = 5000
	}
	p := fillParams(model.Params{StartDate: req.StartDate, EndDate: req.EndDate, Timeframe: req.Timeframe})

	var logs []string
	logs = append(logs, fmt.Sprintf("요청 기간: %s ~ %s (%s)", p.StartDate, p.EndDate, p.Timeframe))
	candles, err := candlesFor(p, req.MaxDataPoints)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "데이터 가져오기 오류: "+err.Error())
	}
	if len(candles) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "지정된 기간에 데이터가 없습니다.")
	}
	logs = append(logs, fmt.Sprintf("가져온 데이터 포인트 수: %d", len(candles)))

	data := make([]wireCandle, len(candles))
	for i, k := range candles {
		data[i] = wireCandle{
			Timestamp: k.Time.Format("2006-01-02T15:04:05"),
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"summary": backend.FetchDataSummary{
			StartDate:  data[0].Timestamp,
			EndDate:    data[len(data)-1].Timestamp,
			NumPoints:  len(data),
			StartPrice: data[0].Open,
			EndPrice:   data[len(data)-1].Close,
		},
		"data": data,
		"logs": logs,
	})
}

// ============================================================================
// STATUS ENDPOINTS
// ============================================================================

// handleHealth returns health status.
// GET /health
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

// handleStats returns request counters.
// GET /stats
func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Stats())
}
