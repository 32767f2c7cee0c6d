// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides a local stand-in for the strategy backtest service.
//
// The stub answers the same endpoints as the real service with synthetic,
// deterministic data so the client can be run and tested without the Python
// backend or network access. It also fakes the exchange's kline REST and
// websocket endpoints used by the market panel.
//
// # Endpoints
//
//   - POST /confirm-strategy   - Keyword-based strategy analysis
//   - POST /prepare-data       - Dataset summary for the requested range
//   - POST /generate-code      - Templated backtrader strategy code
//   - POST /run-backtest       - SMA crossover simulation with SL/TP
//   - POST /debug/fetch-data   - Raw candles for a date range
//   - GET  /api/v3/klines      - Exchange-format recent klines
//   - GET  /ws/:stream         - Exchange-format kline stream
//   - GET  /health             - Health check
//   - GET  /stats              - Request counters
//
// Errors are returned as {"detail": "..."} like the real service.
//
// # Fault Injection
//
// WithLatency and WithFault delay or fail the POST endpoints, which is how
// the client's timeout, retry and error paths are exercised end to end.
//
// # Usage
//
//	srv := server.New("127.0.0.1:8000").WithLatency(500 * time.Millisecond)
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
