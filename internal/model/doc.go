// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the conversation log and the value types that flow
// through it.
//
// # Key Types
//
//   - Message: one entry in the log with role, content, optional code and payload
//   - Store: ordered, thread-safe message log with monotonic ids
//   - Patch: partial message update used by the reveal controller
//   - Params: user-editable backtest parameters
//   - Payload: structured results (analysis, backtest, data preparation, price stats)
//
// # Usage
//
//	store := model.NewStore()
//	id := store.Append(model.NewUserMessage("RSI가 30 이하일 때 매수"))
//	store.Patch(id, model.Patch{Content: model.String("...")})
//
//	for range store.Changes() {
//	    render(store.Snapshot())
//	}
package model
