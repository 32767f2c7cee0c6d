// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/ui/styles"
	"github.com/jeranaias/stratchat/internal/util"
)

// =============================================================================
// DATA TABLE
// =============================================================================

// Column describes one table column.
type Column struct {
	Key     string
	Title   string
	Width   int
	Numeric bool
}

// Cell is a rendered value plus the number it sorts by.
type Cell struct {
	Text  string
	Value float64
}

// DataTable is a sortable, pageable table of records. Rendering goes
// through bubbles/table.
type DataTable struct {
	columns []Column
	rows    [][]Cell
	sortKey string
	desc    bool
}

// NewDataTable creates a table. Rows shorter than columns are padded.
func NewDataTable(columns []Column, rows [][]Cell) *DataTable {
	for i, row := range rows {
		for len(row) < len(columns) {
			row = append(row, Cell{})
		}
		rows[i] = row
	}
	return &DataTable{columns: columns, rows: rows}
}

// Keys lists the sortable column keys.
func (t *DataTable) Keys() []string {
	keys := make([]string, len(t.columns))
	for i, c := range t.columns {
		keys[i] = c.Key
	}
	return keys
}

// Len returns the number of rows.
func (t *DataTable) Len() int { return len(t.rows) }

// SortBy orders rows by the column named key. The sort is stable, so equal
// values keep their previous order.
func (t *DataTable) SortBy(key string, desc bool) error {
	col := slices.IndexFunc(t.columns, func(c Column) bool { return c.Key == key })
	if col < 0 {
		return fmt.Errorf("unknown column %q (one of: %s)", key, strings.Join(t.Keys(), ", "))
	}
	numeric := t.columns[col].Numeric

	slices.SortStableFunc(t.rows, func(a, b []Cell) int {
		var c int
		if numeric {
			c = cmp.Compare(a[col].Value, b[col].Value)
		} else {
			c = strings.Compare(a[col].Text, b[col].Text)
		}
		if desc {
			return -c
		}
		return c
	})
	t.sortKey = key
	t.desc = desc
	return nil
}

// PageCount returns the number of pages of size rows. An empty table has
// one empty page.
func (t *DataTable) PageCount(size int) int {
	if size <= 0 || len(t.rows) == 0 {
		return 1
	}
	return (len(t.rows) + size - 1) / size
}

// Page returns the rows of 1-based page n, clamped to the valid range.
func (t *DataTable) Page(n, size int) (rows [][]Cell, page int) {
	if size <= 0 {
		return t.rows, 1
	}
	page = min(max(n, 1), t.PageCount(size))
	start := (page - 1) * size
	end := min(start+size, len(t.rows))
	if start >= end {
		return nil, page
	}
	return t.rows[start:end], page
}

// Render draws page n with a footer naming the page and sort order.
func (t *DataTable) Render(theme *styles.Theme, n, size int) string {
	rows, page := t.Page(n, size)

	cols := make([]table.Column, len(t.columns))
	width := 0
	for i, c := range t.columns {
		cols[i] = table.Column{Title: c.Title, Width: c.Width}
		width += c.Width + 2
	}
	trows := make([]table.Row, len(rows))
	for i, row := range rows {
		r := make(table.Row, len(t.columns))
		for j := range t.columns {
			r[j] = row[j].Text
		}
		trows[i] = r
	}

	s := table.DefaultStyles()
	s.Header = theme.TableHeader
	s.Cell = theme.TableCell
	// Static output has no cursor, so the first row is not highlighted.
	s.Selected = lipgloss.NewStyle()

	tbl := table.New(
		table.WithColumns(cols),
		table.WithRows(trows),
		table.WithHeight(len(trows)+2),
		table.WithWidth(width),
		table.WithStyles(s),
	)
	body := trimBlankTail(tbl.View())

	footer := fmt.Sprintf("page %d/%d  %d rows", page, t.PageCount(size), len(t.rows))
	if t.sortKey != "" {
		dir := "asc"
		if t.desc {
			dir = "desc"
		}
		footer += fmt.Sprintf("  sorted by %s %s", t.sortKey, dir)
	}
	return body + "\n" + theme.TableFooter.Render(footer)
}

// trimBlankTail drops the padding lines the table viewport adds below the
// last row.
func trimBlankTail(s string) string {
	lines := strings.Split(s, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// PRESETS
// =============================================================================

// TradesTable builds the trade history table of a backtest.
func TradesTable(trades []model.Trade) *DataTable {
	columns := []Column{
		{Key: "entry", Title: "Entry", Width: 16},
		{Key: "exit", Title: "Exit", Width: 16},
		{Key: "entry_price", Title: "Entry Px", Width: 12, Numeric: true},
		{Key: "exit_price", Title: "Exit Px", Width: 12, Numeric: true},
		{Key: "pnl", Title: "PnL", Width: 12, Numeric: true},
		{Key: "pnl_pct", Title: "PnL %", Width: 9, Numeric: true},
	}
	rows := make([][]Cell, len(trades))
	for i, tr := range trades {
		rows[i] = []Cell{
			{Text: tr.EntryDate},
			{Text: tr.ExitDate},
			{Text: util.FormatMoney(tr.EntryPrice), Value: tr.EntryPrice},
			{Text: util.FormatMoney(tr.ExitPrice), Value: tr.ExitPrice},
			{Text: util.FormatMoney(tr.PnL), Value: tr.PnL},
			{Text: util.FormatSignedPercent(tr.PnLPct * 100), Value: tr.PnLPct},
		}
	}
	return NewDataTable(columns, rows)
}

// CandlesTable builds an OHLCV table.
func CandlesTable(candles []model.Candle) *DataTable {
	columns := []Column{
		{Key: "time", Title: "Time", Width: 16},
		{Key: "open", Title: "Open", Width: 12, Numeric: true},
		{Key: "high", Title: "High", Width: 12, Numeric: true},
		{Key: "low", Title: "Low", Width: 12, Numeric: true},
		{Key: "close", Title: "Close", Width: 12, Numeric: true},
		{Key: "volume", Title: "Volume", Width: 12, Numeric: true},
		{Key: "change", Title: "Chg %", Width: 8, Numeric: true},
	}
	rows := make([][]Cell, len(candles))
	for i, c := range candles {
		var change float64
		if c.Open != 0 {
			change = c.Change() / c.Open * 100
		}
		rows[i] = []Cell{
			{Text: c.Time.UTC().Format("2006-01-02 15:04"), Value: float64(c.Time.Unix())},
			{Text: util.FormatMoney(c.Open), Value: c.Open},
			{Text: util.FormatMoney(c.High), Value: c.High},
			{Text: util.FormatMoney(c.Low), Value: c.Low},
			{Text: util.FormatMoney(c.Close), Value: c.Close},
			{Text: util.FormatAmount(c.Volume), Value: c.Volume},
			{Text: util.FormatSignedPercent(change), Value: change},
		}
	}
	return NewDataTable(columns, rows)
}
