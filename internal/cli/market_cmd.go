// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// market_cmd.go - The "market" command: exchange price panel and live feed.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/stratchat/internal/config"
	"github.com/jeranaias/stratchat/internal/market"
	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/ui/components"
	"github.com/jeranaias/stratchat/internal/ui/styles"
	"github.com/jeranaias/stratchat/internal/util"
)

// MarketSource fetches klines over REST.
type MarketSource interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error)
}

// marketOptions are the parsed market flags.
type marketOptions struct {
	Symbol   string
	Interval string
	Limit    int
	Live     bool
	// MaxUpdates stops a live feed after this many updates (0 = until
	// interrupted).
	MaxUpdates int
	JSON       bool
}

// MarketData is the --json payload of market.
type MarketData struct {
	Symbol    string         `json:"symbol"`
	Interval  string         `json:"interval"`
	LastPrice float64        `json:"last_price"`
	Change    float64        `json:"change"`
	ChangePct float64        `json:"change_pct"`
	Volume    float64        `json:"volume"`
	Window    int            `json:"volume_window"`
	UpdatedAt time.Time      `json:"updated_at"`
	Candles   []model.Candle `json:"candles,omitempty"`
}

// MarketUpdate is one --live --json line.
type MarketUpdate struct {
	Symbol   string       `json:"symbol"`
	Interval string       `json:"interval"`
	Candle   model.Candle `json:"candle"`
	Closed   bool         `json:"closed"`
}

// HandleMarket handles the "market" command.
func HandleMarket(args Args) {
	cfg, err := LoadConfig(args)
	exitOnError(err)

	opts, err := parseMarketArgs(cfg, args)
	exitOnError(err)

	if !args.Verbose {
		if logs, err := RedirectLog(logPathOrEmpty(cfg), false); err == nil {
			defer logs.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	exitOnError(runMarket(ctx, cfg, market.NewClient(cfg.Market.RESTURL), opts))
}

func parseMarketArgs(cfg *config.Config, args Args) (marketOptions, error) {
	p := NewArgParser(args.Raw, "live")
	opts := marketOptions{
		Symbol:   p.FlagOrDefault("symbol", cfg.Market.Symbol),
		Interval: p.FlagOrDefault("interval", cfg.Market.Interval),
		Live:     p.BoolFlag("live"),
		JSON:     args.JSON,
	}
	if _, ok := model.TimeframeDuration(opts.Interval); !ok {
		return opts, &ValidationError{Field: "--interval", Value: opts.Interval, Reason: "unsupported interval", Example: "--interval 1h"}
	}

	var err error
	if opts.Limit, err = p.FlagInt("limit", cfg.Market.Limit); err != nil {
		return opts, err
	}
	if opts.Limit < 1 || opts.Limit > market.MaxLimit {
		return opts, &ValidationError{Field: "--limit", Value: fmt.Sprint(opts.Limit), Reason: fmt.Sprintf("must be between 1 and %d", market.MaxLimit)}
	}
	if opts.MaxUpdates, err = p.FlagInt("updates", 0); err != nil {
		return opts, err
	}
	return opts, nil
}

// runMarket prints a snapshot and, when live, follows the kline stream.
func runMarket(ctx context.Context, cfg *config.Config, src MarketSource, opts marketOptions) error {
	candles, err := src.Klines(ctx, opts.Symbol, opts.Interval, opts.Limit)
	if err != nil {
		return wrapErr("market", "fetch", err)
	}
	summary, ok := market.Summarize(opts.Symbol, opts.Interval, candles)
	if !ok {
		return wrapErr("market", "fetch", market.ErrNoData)
	}

	if opts.JSON {
		data := MarketData{
			Symbol:    summary.Symbol,
			Interval:  summary.Interval,
			LastPrice: summary.LastPrice,
			Change:    summary.Change,
			ChangePct: summary.ChangePct,
			Volume:    summary.Volume,
			Window:    summary.Window,
			UpdatedAt: summary.UpdatedAt,
		}
		if !opts.Live {
			data.Candles = candles
		}
		if err := printJSON("market", data); err != nil {
			return err
		}
	} else {
		theme := styles.NewTheme(cfg.UI.Theme)
		panel := components.MarketPanel{
			Symbol:   opts.Symbol,
			Interval: opts.Interval,
			Candles:  candles,
			Live:     opts.Live,
			Width:    GetTerminalWidth(),
		}
		fmt.Fprintln(stdout, panel.Render(theme))
	}

	if !opts.Live {
		return nil
	}
	return followMarket(ctx, cfg.Market.StreamURL, opts, candles)
}

// followMarket prints stream updates until ctx is done, the stream closes
// or MaxUpdates is reached.
func followMarket(ctx context.Context, streamURL string, opts marketOptions, candles []model.Candle) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := market.Subscribe(ctx, streamURL, opts.Symbol, opts.Interval, nil)
	if err != nil {
		return wrapErr("market", "subscribe", err)
	}
	defer func() {
		cancel()
		stream.Wait()
	}()

	enc := json.NewEncoder(stdout)
	seen := 0
	for u := range stream.Updates() {
		candles = market.Merge(candles, u.Candle, opts.Limit)
		if opts.JSON {
			if err := enc.Encode(MarketUpdate{Symbol: u.Symbol, Interval: u.Interval, Candle: u.Candle, Closed: u.Closed}); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(stdout, formatMarketUpdate(u, candles))
		}

		seen++
		if opts.MaxUpdates > 0 && seen >= opts.MaxUpdates {
			break
		}
	}
	return nil
}

// formatMarketUpdate is one live line: time, price, change against the
// previous close and a closed marker.
func formatMarketUpdate(u market.Update, candles []model.Candle) string {
	line := fmt.Sprintf("%s  %s %s  %s",
		u.Candle.Time.Local().Format("15:04:05"), u.Symbol, u.Interval, util.FormatMoney(u.Candle.Close))
	if sum, ok := market.Summarize(u.Symbol, u.Interval, candles); ok {
		line += "  " + styles.RenderChange(sum.Change, util.FormatSignedPercent(sum.ChangePct))
	}
	if u.Closed {
		line += "  " + DimStyle.Render("closed")
	}
	return line
}
