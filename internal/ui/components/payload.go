// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/ui/styles"
	"github.com/jeranaias/stratchat/internal/util"
)

// TradesPageSize is how many trades a backtest view shows inline.
const TradesPageSize = 10

// RenderPayload renders the structured result attached to a message. It
// returns "" for payloads whose text already says everything.
func RenderPayload(theme *styles.Theme, p model.Payload, width int) string {
	switch v := p.(type) {
	case *model.StrategyAnalysis:
		return RenderAnalysis(theme, v)
	case *model.BacktestResult:
		return RenderBacktest(theme, v, width)
	case *model.PriceStats:
		return RenderPriceStats(theme, v)
	default:
		return ""
	}
}

// RenderAnalysis shows the detected indicators as tags.
func RenderAnalysis(theme *styles.Theme, a *model.StrategyAnalysis) string {
	if a == nil || len(a.Indicators) == 0 {
		return ""
	}
	tags := make([]string, len(a.Indicators))
	for i, ind := range a.Indicators {
		tags[i] = theme.CodeLangBadge.Render(ind)
	}
	return theme.MetricLabel.Render("indicators ") + strings.Join(tags, " ")
}

// RenderBacktest shows the headline metrics, the equity curve and the first
// page of trades.
func RenderBacktest(theme *styles.Theme, r *model.BacktestResult, width int) string {
	if r == nil {
		return ""
	}
	sections := []string{
		theme.SectionTitle.Render("Backtest"),
		renderMetrics(theme, []metric{
			{"Total return", util.FormatSignedPercent(r.TotalReturn), r.TotalReturn},
			{"Trades", fmt.Sprintf("%d", r.NumTrades), 0},
			{"Win rate", util.FormatPercent(r.WinRate), 0},
			{"Max drawdown", util.FormatPercent(r.MaxDrawdown), -r.MaxDrawdown},
			{"P/L ratio", fmt.Sprintf("%.2f", r.ProfitLossRatio), 0},
		}, width),
	}

	if r.EquityCurve.Len() > 1 {
		chart := LineChart{
			Values: r.EquityCurve.Values,
			Labels: r.EquityCurve.Labels,
			Width:  min(width, 72),
			Height: 8,
		}
		sections = append(sections, theme.SectionTitle.Render("Equity"), chart.Render(theme))
	}

	if len(r.TradeHistory) > 0 {
		tbl := TradesTable(r.TradeHistory)
		view := tbl.Render(theme, 1, TradesPageSize)
		if tbl.PageCount(TradesPageSize) > 1 {
			view += "\n" + theme.InputHint.Render("/trades <page> [sort <column> [desc]] for more")
		}
		sections = append(sections, theme.SectionTitle.Render("Trades"), view)
	}
	return strings.Join(sections, "\n")
}

// RenderPriceStats shows statistics of a fetched price series.
func RenderPriceStats(theme *styles.Theme, s *model.PriceStats) string {
	if s == nil {
		return ""
	}
	span := fmt.Sprintf("%s ~ %s", s.StartTime.UTC().Format("2006-01-02 15:04"), s.EndTime.UTC().Format("2006-01-02 15:04"))
	return strings.Join([]string{
		theme.SectionTitle.Render("Price data") + " " + theme.MetricLabel.Render(span),
		renderMetrics(theme, []metric{
			{"Points", fmt.Sprintf("%d", s.DataPoints), 0},
			{"Start", util.FormatMoney(s.StartPrice), 0},
			{"End", util.FormatMoney(s.EndPrice), 0},
			{"Return", util.FormatSignedPercent(s.OverallReturn), s.OverallReturn},
		}, 0),
		renderMetrics(theme, []metric{
			{"High", util.FormatMoney(s.Highest), 0},
			{"Low", util.FormatMoney(s.Lowest), 0},
			{"Volatility", util.FormatPercent(s.Volatility), 0},
			{"Avg volume", util.FormatAmount(s.AvgVolume), 0},
		}, 0),
		renderMetrics(theme, []metric{
			{"Up", fmt.Sprintf("%d", s.UpCandles), 0},
			{"Down", fmt.Sprintf("%d", s.DownCandles), 0},
			{"Flat", fmt.Sprintf("%d", s.FlatCandles), 0},
			{"Streak up/down", fmt.Sprintf("%d/%d", s.MaxConsecUp, s.MaxConsecDown), 0},
		}, 0),
	}, "\n")
}

type metric struct {
	label string
	value string
	// sign colors the value: positive green, negative red, zero plain.
	sign float64
}

// renderMetrics lays metrics out in a row, wrapping when width is set and
// exceeded.
func renderMetrics(theme *styles.Theme, metrics []metric, width int) string {
	cells := make([]string, len(metrics))
	for i, m := range metrics {
		value := theme.MetricValue.Render(m.value)
		if m.sign != 0 {
			value = lipgloss.NewStyle().Bold(true).Foreground(styles.ChangeColor(m.sign)).Render(m.value)
		}
		cells[i] = theme.MetricLabel.Render(m.label+" ") + value
	}

	var lines []string
	line := ""
	for _, cell := range cells {
		next := cell
		if line != "" {
			next = line + "   " + cell
		}
		if width > 0 && line != "" && lipgloss.Width(next) > width {
			lines = append(lines, line)
			next = cell
		}
		line = next
	}
	return strings.Join(append(lines, line), "\n")
}
