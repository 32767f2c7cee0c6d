// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/guptarohit/asciigraph"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/stratchat/internal/ui/styles"
)

// =============================================================================
// LINE CHART
// =============================================================================

// chartOffset is the padding asciigraph puts left of the y labels.
const chartOffset = 1

// chartAxis ends the y label column of every plotted row.
const chartAxis = "┤┼"

// LineChart plots a series, e.g. a backtest equity curve. Labels name the
// x values; only the first and last are shown.
type LineChart struct {
	Values []float64
	Labels []string
	Width  int
	Height int
}

// precision picks the label decimals: none for money-sized ranges.
func (c LineChart) precision() uint {
	lo, hi := seriesBounds(c.Values)
	if hi-lo < 10 {
		return 2
	}
	return 0
}

// Plot returns the unstyled rows, top to bottom, no wider than Width. It
// returns nil for fewer than two values.
func (c LineChart) Plot() []string {
	if len(c.Values) < 2 {
		return nil
	}
	lo, hi := seriesBounds(c.Values)
	prec := c.precision()
	labelWidth := max(len(fmt.Sprintf("%.*f", int(prec), hi)), len(fmt.Sprintf("%.*f", int(prec), lo)))
	plotWidth := max(c.Width-labelWidth-chartOffset-2, 2)

	out := asciigraph.Plot(c.Values,
		asciigraph.Height(max(c.Height, 1)),
		asciigraph.Width(plotWidth),
		asciigraph.Offset(chartOffset),
		asciigraph.Precision(prec),
	)

	rows := strings.Split(out, "\n")
	if c.Width > 0 {
		for i, row := range rows {
			rows[i] = runewidth.Truncate(row, c.Width, "")
		}
	}
	return rows
}

// Render draws the chart with the axis in the muted style, the line in the
// accent and a caption with the first and last labels.
func (c LineChart) Render(theme *styles.Theme) string {
	rows := c.Plot()
	if rows == nil {
		return theme.MarketMuted.Render("(no data)")
	}

	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		cut := strings.IndexAny(row, chartAxis)
		if cut < 0 {
			b.WriteString(theme.ChartLine.Render(row))
			continue
		}
		_, size := utf8.DecodeRuneInString(row[cut:])
		b.WriteString(theme.ChartAxis.Render(row[:cut+size]))
		b.WriteString(theme.ChartLine.Render(row[cut+size:]))
	}

	if caption := c.caption(); caption != "" {
		b.WriteString("\n")
		b.WriteString(theme.ChartAxis.Render(caption))
	}
	return b.String()
}

// caption is "first ~ last", or just the first label when they match or
// the result would not fit.
func (c LineChart) caption() string {
	if len(c.Labels) == 0 {
		return ""
	}
	first, last := c.Labels[0], c.Labels[len(c.Labels)-1]
	caption := first + " ~ " + last
	if first == last || (c.Width > 0 && runewidth.StringWidth(caption) > c.Width) {
		return first
	}
	return caption
}

// =============================================================================
// TREND
// =============================================================================

// Trend is a compact unlabelled chart for panels.
func Trend(values []float64, width int) LineChart {
	return LineChart{Values: values, Width: width, Height: 2}
}

func seriesBounds(values []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
