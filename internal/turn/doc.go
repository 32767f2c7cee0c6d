// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package turn sequences the backend calls of a conversational turn.
//
// A turn is one user input and every backend call and message it causes.
// The Sequencer appends the user message, shows loading placeholders while
// calls are in flight, removes them when answers arrive, and hands final
// answers to the reveal controller. Backend failures never escape a turn:
// they become an error-role message and the loading flag is always cleared.
//
// Two flows are supported:
//
//   - simple: generate-code, then reveal a fixed sentence and the code
//   - confirm: confirm-strategy, reveal the analysis and wait for a reply;
//     an affirmative reply runs prepare-data, generate-code and
//     run-backtest and reveals the result with the backtest attached
//
// EditAndRerun runs a backtest on user-edited code and commits the result
// at once without animation.
package turn
