// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the layout used for backtest date ranges.
const DateLayout = "2006-01-02"

// Timeframes lists the candle intervals the backend accepts.
var Timeframes = []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d"}

// TimeframeDuration returns the candle width of a timeframe.
func TimeframeDuration(tf string) (time.Duration, bool) {
	switch tf {
	case "1m":
		return time.Minute, true
	case "5m":
		return 5 * time.Minute, true
	case "15m":
		return 15 * time.Minute, true
	case "30m":
		return 30 * time.Minute, true
	case "1h":
		return time.Hour, true
	case "4h":
		return 4 * time.Hour, true
	case "1d":
		return 24 * time.Hour, true
	}
	return 0, false
}

// Params holds the user-editable backtest configuration. It is read at the
// moment each backend call is issued.
type Params struct {
	Capital    float64 `toml:"capital" json:"capital"`
	CapitalPct float64 `toml:"capital_pct" json:"capital_pct"` // fraction of capital per trade, 0..1
	StopLoss   float64 `toml:"stop_loss" json:"stop_loss"`     // percent
	TakeProfit float64 `toml:"take_profit" json:"take_profit"` // percent
	StartDate  string  `toml:"start_date" json:"start_date"`
	EndDate    string  `toml:"end_date" json:"end_date"`
	Commission float64 `toml:"commission" json:"commission"` // fraction per trade
	Timeframe  string  `toml:"timeframe" json:"timeframe"`
}

// DefaultParams returns the parameters a new session starts with.
func DefaultParams() Params {
	return Params{
		Capital:    10000,
		CapitalPct: 0.1,
		StopLoss:   2,
		TakeProfit: 5,
		StartDate:  "2024-01-01",
		EndDate:    "2024-03-31",
		Commission: 0.001,
		Timeframe:  "1h",
	}
}

// Parameter validation errors.
var (
	ErrInvalidCapital    = errors.New("capital must be positive")
	ErrInvalidCapitalPct = errors.New("capital_pct must be between 0 and 1")
	ErrInvalidCommission = errors.New("commission must not be negative")
	ErrInvalidStopLoss   = errors.New("stop_loss must not be negative")
	ErrInvalidTakeProfit = errors.New("take_profit must not be negative")
	ErrInvalidDateRange  = errors.New("start_date must not be after end_date")
	ErrInvalidTimeframe  = errors.New("unknown timeframe")
)

// Validate checks the numeric ranges and date ordering. It does not block
// backend calls; the UI uses it to warn while editing.
func (p Params) Validate() error {
	var errs []error
	if p.Capital <= 0 {
		errs = append(errs, ErrInvalidCapital)
	}
	if p.CapitalPct < 0 || p.CapitalPct > 1 {
		errs = append(errs, ErrInvalidCapitalPct)
	}
	if p.Commission < 0 {
		errs = append(errs, ErrInvalidCommission)
	}
	if p.StopLoss < 0 {
		errs = append(errs, ErrInvalidStopLoss)
	}
	if p.TakeProfit < 0 {
		errs = append(errs, ErrInvalidTakeProfit)
	}

	start, errStart := time.Parse(DateLayout, p.StartDate)
	end, errEnd := time.Parse(DateLayout, p.EndDate)
	switch {
	case errStart != nil:
		errs = append(errs, fmt.Errorf("start_date: %w", errStart))
	case errEnd != nil:
		errs = append(errs, fmt.Errorf("end_date: %w", errEnd))
	case start.After(end):
		errs = append(errs, ErrInvalidDateRange)
	}

	if !slices.Contains(Timeframes, p.Timeframe) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidTimeframe, p.Timeframe))
	}
	return errors.Join(errs...)
}

// ParamKeys lists the keys accepted by Set, in display order.
var ParamKeys = []string{
	"capital", "capital_pct", "stop_loss", "take_profit",
	"start_date", "end_date", "commission", "timeframe",
}

// Set assigns value to the parameter named key. Percent keys accept an
// optional trailing '%'.
func (p *Params) Set(key, value string) error {
	value = strings.TrimSpace(value)
	parse := func() (float64, error) {
		f, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("%s: invalid number %q", key, value)
		}
		return f, nil
	}

	switch strings.ToLower(key) {
	case "capital":
		f, err := parse()
		if err != nil {
			return err
		}
		p.Capital = f
	case "capital_pct":
		f, err := parse()
		if err != nil {
			return err
		}
		if strings.HasSuffix(value, "%") {
			f /= 100
		}
		p.CapitalPct = f
	case "stop_loss":
		f, err := parse()
		if err != nil {
			return err
		}
		p.StopLoss = f
	case "take_profit":
		f, err := parse()
		if err != nil {
			return err
		}
		p.TakeProfit = f
	case "commission":
		f, err := parse()
		if err != nil {
			return err
		}
		if strings.HasSuffix(value, "%") {
			f /= 100
		}
		p.Commission = f
	case "start_date":
		if _, err := time.Parse(DateLayout, value); err != nil {
			return fmt.Errorf("start_date: %w", err)
		}
		p.StartDate = value
	case "end_date":
		if _, err := time.Parse(DateLayout, value); err != nil {
			return fmt.Errorf("end_date: %w", err)
		}
		p.EndDate = value
	case "timeframe":
		if !slices.Contains(Timeframes, value) {
			return fmt.Errorf("%w: %q", ErrInvalidTimeframe, value)
		}
		p.Timeframe = value
	default:
		return fmt.Errorf("unknown parameter %q", key)
	}
	return nil
}

// Get returns the display value of the parameter named key.
func (p Params) Get(key string) (string, bool) {
	switch strings.ToLower(key) {
	case "capital":
		return strconv.FormatFloat(p.Capital, 'f', -1, 64), true
	case "capital_pct":
		return strconv.FormatFloat(p.CapitalPct, 'f', -1, 64), true
	case "stop_loss":
		return strconv.FormatFloat(p.StopLoss, 'f', -1, 64), true
	case "take_profit":
		return strconv.FormatFloat(p.TakeProfit, 'f', -1, 64), true
	case "start_date":
		return p.StartDate, true
	case "end_date":
		return p.EndDate, true
	case "commission":
		return strconv.FormatFloat(p.Commission, 'f', -1, 64), true
	case "timeframe":
		return p.Timeframe, true
	}
	return "", false
}
