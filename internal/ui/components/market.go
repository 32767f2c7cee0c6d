// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/jeranaias/stratchat/internal/market"
	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/ui/styles"
	"github.com/jeranaias/stratchat/internal/util"
)

// MarketPanel shows the latest price of the configured symbol.
type MarketPanel struct {
	Symbol   string
	Interval string
	Candles  []model.Candle
	Live     bool
	Err      error
	Width    int
}

// Render draws the panel. Without candles it shows a waiting line or the
// last error.
func (p MarketPanel) Render(theme *styles.Theme) string {
	width := max(p.Width-4, 20)

	summary, ok := market.Summarize(p.Symbol, p.Interval, p.Candles)
	if !ok {
		line := fmt.Sprintf("%s %s  waiting for market data", p.Symbol, p.Interval)
		if p.Err != nil {
			line = fmt.Sprintf("%s %s  %s", p.Symbol, p.Interval, util.SingleLine(p.Err.Error()))
		}
		return theme.MarketPanel.Width(width).Render(theme.MarketMuted.Render(util.TruncateWidth(line, width)))
	}

	change := fmt.Sprintf("%s (%s)", signedMoney(summary.Change), util.FormatSignedPercent(summary.ChangePct))
	head := strings.Join([]string{
		theme.MarketSymbol.Render(summary.Symbol),
		theme.MarketMuted.Render(summary.Interval),
		theme.MarketPrice.Render(util.FormatMoney(summary.LastPrice)),
		styles.RenderChange(summary.Change, change),
	}, "  ")

	status := styles.StatusIndicators.Pending + " offline"
	if p.Live {
		status = styles.StatusIndicators.Live + " live"
	}
	if p.Err != nil {
		status = styles.StatusIndicators.Warning + " " + util.SingleLine(p.Err.Error())
	}
	detail := fmt.Sprintf("vol(%d) %s  updated %s  %s",
		summary.Window, util.FormatAmount(summary.Volume),
		summary.UpdatedAt.Local().Format("15:04:05"), status)

	closes := make([]float64, len(p.Candles))
	for i, c := range p.Candles {
		closes[i] = c.Close
	}

	body := head + "\n" + theme.MarketMuted.Render(util.TruncateWidth(detail, width))
	if len(closes) > 1 {
		body += "\n" + Trend(closes, width).Render(theme)
	}
	return theme.MarketPanel.Width(width).Render(body)
}

func signedMoney(v float64) string {
	if v > 0 {
		return "+" + util.FormatMoney(v)
	}
	return util.FormatMoney(v)
}
