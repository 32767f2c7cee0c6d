// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/stratchat/internal/backend"
	"github.com/jeranaias/stratchat/internal/config"
	"github.com/jeranaias/stratchat/internal/market"
	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/storage"
	"github.com/jeranaias/stratchat/internal/turn"
)

// =============================================================================
// CONVERSATION MESSAGES
// =============================================================================

// StoreChangedMsg signals that the message store was modified.
type StoreChangedMsg struct{}

// TurnDoneMsg is sent when Submit or EditAndRerun returns.
type TurnDoneMsg struct {
	Err error
}

// BacktestMsg delivers a finished backtest from the sequencer.
type BacktestMsg struct {
	Result turn.Result
}

// =============================================================================
// MARKET MESSAGES
// =============================================================================

// MarketSnapshotMsg carries the initial klines for the market panel.
type MarketSnapshotMsg struct {
	Candles []model.Candle
	Err     error
}

// MarketStreamMsg reports the outcome of subscribing to the kline stream.
type MarketStreamMsg struct {
	Stream *market.Stream
	Err    error
}

// MarketUpdateMsg is one live kline.
type MarketUpdateMsg struct {
	Update market.Update
}

// MarketClosedMsg is sent when the kline stream ends.
type MarketClosedMsg struct{}

// =============================================================================
// DATA AND SESSION MESSAGES
// =============================================================================

// DataFetchedMsg carries a debug price fetch.
type DataFetchedMsg struct {
	Request backend.FetchDataRequest
	Result  *backend.FetchDataResult
	Err     error
}

// SessionSavedMsg reports an autosave.
type SessionSavedMsg struct {
	ID  string
	Err error
}

// SessionListMsg carries saved sessions for /history.
type SessionListMsg struct {
	Sessions []storage.SessionMeta
	Err      error
}

// SessionLoadedMsg carries a session picked with /resume.
type SessionLoadedMsg struct {
	Session *storage.Session
	Err     error
}

// =============================================================================
// CONFIG MESSAGES
// =============================================================================

// ConfigReloadMsg is delivered when the config file changed on disk.
type ConfigReloadMsg struct {
	Reload config.Reload
}
