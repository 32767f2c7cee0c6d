// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for stratchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, validation and hot reload.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - BackendConfig: Strategy/backtest service endpoint and retry policy
//   - MarketConfig: Exchange endpoints for the market panel
//   - RevealConfig: Typing animation cadence
//   - TurnConfig: Chat flow mode and intent token sets
//   - Watcher: fsnotify-based reloader
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (STRATCHAT_*)
//   - ~/.stratchat/config.toml
//   - ~/.stratchat/config.json
//   - Built-in defaults
//
// STRATCHAT_HOME replaces ~/.stratchat.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctrl := reveal.NewController(store, cfg.RevealSettings())
package config
