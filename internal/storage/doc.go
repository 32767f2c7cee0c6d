// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists chat sessions in SQLite so they can be listed
// and resumed.
//
// A session keeps its messages in display order, with any structured result
// (strategy analysis, backtest result, data preparation, price statistics)
// stored as JSON beside the message, plus the flow mode, the backtest
// parameters and the last generated code.
//
// # Usage
//
//	store, err := storage.Open(path)
//	id, err := store.Save(ctx, &storage.Session{Messages: msgs})
//	metas, err := store.List(ctx)
//	sess, err := store.Load(ctx, metas[0].ID)
//
// # Storage Location
//
// Sessions are stored in ~/.stratchat/sessions.db by default.
package storage
