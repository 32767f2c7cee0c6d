// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the main chat view of the stratchat TUI.

The view is a Bubble Tea model over a model.Store. Turns run through a
turn.Sequencer in a tea.Cmd goroutine; the sequencer and the reveal
controller write to the store, and the view re-renders whenever the store
signals a change. The view never mutates messages itself except for the
fixed texts of its own commands.

# Key Components

## Model (model.go)

The Model wires the store, the reveal controller, the sequencer, the optional
market source, the session store and the config watcher.

## Update Loop (update.go)

Command creators (SubmitCmd, WaitForStore, FetchMarketCmd, ...) and the
message handling: keys, store changes, finished turns and backtests, market
snapshots and live klines, debug data fetches, session saves and config
reloads.

## Commands (commands.go)

Slash commands are dispatched through a registry of CommandHandler funcs:

	/help /guide /params /set /mode /edit /trades
	/market /data /candles /clear /history /resume /quit

Command output goes to the status bar notice or to a panel that replaces the
conversation until Esc is pressed.

## View Rendering (view.go)

Header with session parameters, optional market panel, the conversation
viewport or the open overlay, the input line and the status bar.

# Keyboard Shortcuts

	Enter       Send the input or run a command
	Esc         Skip the typing animation / close a panel
	Ctrl+E      Edit the last code, Ctrl+S runs the backtest
	Ctrl+P      Backtest parameters form
	Ctrl+T      Toggle the market panel
	PgUp/PgDn   Scroll
	F1          Help
	Ctrl+C      Save and quit
*/
package chat
