// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package market fetches BTC/USDT candles from the exchange for the market
// panel: a REST snapshot of recent klines and a websocket stream of live
// kline updates merged into that snapshot.
package market
