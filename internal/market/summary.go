// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"time"

	"github.com/jeranaias/stratchat/internal/model"
)

// Summary is the headline of the market panel.
type Summary struct {
	Symbol    string
	Interval  string
	LastPrice float64
	Change    float64 // last close minus previous close
	ChangePct float64
	Volume    float64 // summed over VolumeWindow candles
	Window    int
	UpdatedAt time.Time
}

// VolumeWindow returns how many candles of interval add up to a day.
func VolumeWindow(interval string) int {
	switch interval {
	case "15m":
		return 96
	case "4h":
		return 6
	case "1d":
		return 1
	default:
		return 24
	}
}

// Summarize computes the panel headline. It returns false for no candles.
func Summarize(symbol, interval string, candles []model.Candle) (Summary, bool) {
	if len(candles) == 0 {
		return Summary{}, false
	}

	last := candles[len(candles)-1]
	prev := last
	if len(candles) > 1 {
		prev = candles[len(candles)-2]
	}

	s := Summary{
		Symbol:    symbol,
		Interval:  interval,
		LastPrice: last.Close,
		Change:    last.Close - prev.Close,
		Window:    VolumeWindow(interval),
		UpdatedAt: last.Time,
	}
	if prev.Close != 0 {
		s.ChangePct = s.Change / prev.Close * 100
	}

	start := max(0, len(candles)-s.Window)
	for _, c := range candles[start:] {
		s.Volume += c.Volume
	}
	return s, true
}

// Merge applies a live candle to a series: a candle with the same open time
// as the last one replaces it, a newer one is appended and the oldest
// dropped once the series exceeds limit.
func Merge(candles []model.Candle, c model.Candle, limit int) []model.Candle {
	if n := len(candles); n > 0 {
		last := candles[n-1]
		switch {
		case c.Time.Equal(last.Time):
			candles[n-1] = c
			return candles
		case c.Time.Before(last.Time):
			return candles
		}
	}

	candles = append(candles, c)
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles
}
