// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend is the HTTP client for the strategy/backtest service.
//
// The service exposes five JSON endpoints:
//
//	POST /confirm-strategy   strategy analysis
//	POST /prepare-data       candle download and indicator columns
//	POST /generate-code      strategy to Python code
//	POST /run-backtest       backtest execution
//	POST /debug/fetch-data   raw OHLCV for inspection
//
// Responses are validated at this boundary. A malformed shape, such as a
// backtest without an equity curve, is rejected with a *ValidationError
// instead of being passed on half-filled. Transport failures and 5xx
// responses are retried with exponential backoff.
package backend
