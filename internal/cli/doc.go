// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the non-TUI commands of
// stratchat.
//
// # Key Types
//
//   - Command: enumeration of the top-level commands
//   - Args: global flags plus the command-specific values
//   - ArgParser: flag and positional splitting for subcommands
//
// # Usage
//
//	cmd, args := cli.Parse()
//	switch cmd {
//	case cli.CmdAsk:
//	    cli.HandleAsk(args)
//	case cli.CmdChat:
//	    cli.HandleChat(args)
//	// ... other commands
//	}
//
// # Commands Overview
//
//   - chat: line-mode conversation over the same turn sequencer as the TUI
//   - ask: one strategy end to end, confirmation answered automatically
//   - market: exchange price panel, optionally following the kline stream
//   - data: raw candles from the backtest service with price statistics
//   - history: list, search, show and delete saved conversations
//   - config: show and edit ~/.stratchat/config.toml
//   - serve-stub: synthetic backtest service and exchange for development
//
// Commands that print data accept --json.
package cli
