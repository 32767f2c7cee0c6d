// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"
)

// Payload is structured data attached to a message once available. It is
// never animated and makes the message immutable.
type Payload interface {
	// Kind returns a short identifier used by renderers and persistence.
	Kind() string

	clonePayload() Payload
}

// Payload kinds.
const (
	KindAnalysis   = "analysis"
	KindBacktest   = "backtest"
	KindDataPrep   = "data_preparation"
	KindPriceStats = "price_stats"
)

// =============================================================================
// STRATEGY ANALYSIS
// =============================================================================

// StrategyAnalysis is the backend's breakdown of a natural-language strategy.
type StrategyAnalysis struct {
	Indicators      []string `json:"indicators"`
	EntryConditions string   `json:"entry_conditions"`
	ExitConditions  string   `json:"exit_conditions"`
	StrategyType    string   `json:"strategy_type"`
}

// Kind implements Payload.
func (a *StrategyAnalysis) Kind() string { return KindAnalysis }

func (a *StrategyAnalysis) clonePayload() Payload {
	c := *a
	c.Indicators = append([]string(nil), a.Indicators...)
	return &c
}

// =============================================================================
// BACKTEST RESULT
// =============================================================================

// Trade is one closed position in a backtest.
type Trade struct {
	EntryDate  string  `json:"entry_date"`
	ExitDate   string  `json:"exit_date"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	PnL        float64 `json:"pnl"`
	PnLPct     float64 `json:"pnl_pct"` // fraction, 0.05 = 5%
}

// EquityCurve is the portfolio value series of a backtest.
type EquityCurve struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// Len returns the number of points in the curve.
func (e EquityCurve) Len() int {
	return len(e.Values)
}

// BacktestResult holds the metrics returned by a backtest run.
type BacktestResult struct {
	TotalReturn     float64     `json:"total_return"`
	NumTrades       int         `json:"num_trades"`
	WinRate         float64     `json:"win_rate"`
	MaxDrawdown     float64     `json:"max_drawdown"`
	ProfitLossRatio float64     `json:"profit_loss_ratio"`
	TradeHistory    []Trade     `json:"trade_history"`
	EquityCurve     EquityCurve `json:"equity_curve"`
	Code            string      `json:"code,omitempty"`
}

// Kind implements Payload.
func (r *BacktestResult) Kind() string { return KindBacktest }

func (r *BacktestResult) clonePayload() Payload {
	c := *r
	c.TradeHistory = append([]Trade(nil), r.TradeHistory...)
	c.EquityCurve.Labels = append([]string(nil), r.EquityCurve.Labels...)
	c.EquityCurve.Values = append([]float64(nil), r.EquityCurve.Values...)
	return &c
}

// =============================================================================
// DATA PREPARATION
// =============================================================================

// DataPreparation reports what the backend stored before code generation.
type DataPreparation struct {
	FileSaved       string   `json:"file_saved"`
	Rows            int      `json:"rows"`
	IndicatorsAdded []string `json:"indicators_added"`
}

// Kind implements Payload.
func (d *DataPreparation) Kind() string { return KindDataPrep }

func (d *DataPreparation) clonePayload() Payload {
	c := *d
	c.IndicatorsAdded = append([]string(nil), d.IndicatorsAdded...)
	return &c
}

// =============================================================================
// PRICE DATA
// =============================================================================

// Candle is one OHLCV record.
type Candle struct {
	Time   time.Time `json:"timestamp"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Change returns close minus open.
func (c Candle) Change() float64 {
	return c.Close - c.Open
}

// PriceStats summarizes a candle series.
type PriceStats struct {
	DataPoints    int       `json:"data_points"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	StartPrice    float64   `json:"start_price"`
	EndPrice      float64   `json:"end_price"`
	Highest       float64   `json:"highest"`
	Lowest        float64   `json:"lowest"`
	Volatility    float64   `json:"volatility"`     // percent
	OverallReturn float64   `json:"overall_return"` // percent
	AvgVolume     float64   `json:"avg_volume"`
	UpCandles     int       `json:"up_candles"`
	DownCandles   int       `json:"down_candles"`
	FlatCandles   int       `json:"flat_candles"`
	MaxConsecUp   int       `json:"max_consec_up"`
	MaxConsecDown int       `json:"max_consec_down"`
}

// Kind implements Payload.
func (s *PriceStats) Kind() string { return KindPriceStats }

func (s *PriceStats) clonePayload() Payload {
	c := *s
	return &c
}

// ComputePriceStats derives summary statistics from candles. It returns nil
// for an empty series.
func ComputePriceStats(candles []Candle) *PriceStats {
	if len(candles) == 0 {
		return nil
	}

	first, last := candles[0], candles[len(candles)-1]
	stats := &PriceStats{
		DataPoints: len(candles),
		StartTime:  first.Time,
		EndTime:    last.Time,
		StartPrice: first.Open,
		EndPrice:   last.Close,
		Highest:    first.High,
		Lowest:     first.Low,
	}

	var totalVolume float64
	var up, down int
	for _, c := range candles {
		if c.High > stats.Highest {
			stats.Highest = c.High
		}
		if c.Low < stats.Lowest {
			stats.Lowest = c.Low
		}
		totalVolume += c.Volume

		switch {
		case c.Close > c.Open:
			stats.UpCandles++
			up++
			down = 0
		case c.Close < c.Open:
			stats.DownCandles++
			down++
			up = 0
		default:
			stats.FlatCandles++
			up, down = 0, 0
		}
		stats.MaxConsecUp = max(stats.MaxConsecUp, up)
		stats.MaxConsecDown = max(stats.MaxConsecDown, down)
	}

	stats.AvgVolume = totalVolume / float64(len(candles))
	if stats.Lowest > 0 {
		stats.Volatility = (stats.Highest - stats.Lowest) / stats.Lowest * 100
	}
	if first.Open > 0 {
		stats.OverallReturn = (last.Close - first.Open) / first.Open * 100
	}
	return stats
}
