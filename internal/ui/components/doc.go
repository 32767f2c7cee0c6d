// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components provides the render pieces of the stratchat TUI.

Most components are plain values with a Render or View method; only
ParamsForm is an interactive Bubble Tea sub-model.

# Messages (message.go, payload.go)

MessageList renders the conversation. A message that is still typing gets a
cursor; once settled, assistant text goes through glamour and any attached
result is drawn below it:

	list := components.NewMessageList(theme)
	list.Width = width
	list.SetMarkdown(components.NewMarkdownRenderer(theme.IsDark))
	view := list.Render(store.Snapshot())

Backtest results show headline metrics, an equity chart and the first page
of trades.

# Code (codeblock.go)

Generated strategy code is highlighted with chroma using a style that
matches the terminal background.

# Tables and charts (table.go, chart.go)

DataTable sorts and pages trades or OHLCV rows and draws them with
bubbles/table. LineChart plots series with asciigraph; Trend is its
two-row variant for the market panel.

# Panels (market.go, statusbar.go, params.go)

MarketPanel shows the live price of the configured symbol, StatusBar the
turn mode and state, and ParamsForm edits backtest parameters.
*/
package components
