// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// data_cmd.go - The "data" command: raw candles from the backtest service.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jeranaias/stratchat/internal/backend"
	"github.com/jeranaias/stratchat/internal/config"
	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/ui/components"
	"github.com/jeranaias/stratchat/internal/ui/styles"
)

// DataFetcher is the debug endpoint of the backtest service.
type DataFetcher interface {
	FetchData(ctx context.Context, req backend.FetchDataRequest) (*backend.FetchDataResult, error)
}

// dataOptions are the parsed data flags.
type dataOptions struct {
	Request  backend.FetchDataRequest
	Sort     string
	Desc     bool
	Page     int
	PageSize int
	Logs     bool
	JSON     bool
}

// DataResult is the --json payload of data.
type DataResult struct {
	Summary backend.FetchDataSummary `json:"summary"`
	Stats   *model.PriceStats        `json:"stats"`
	Candles []model.Candle           `json:"candles"`
	Logs    []string                 `json:"logs,omitempty"`
}

// HandleData handles the "data" command.
func HandleData(args Args) {
	cfg, err := LoadConfig(args)
	exitOnError(err)

	opts, err := parseDataArgs(cfg, args)
	exitOnError(err)

	if !args.Verbose {
		if logs, err := RedirectLog(logPathOrEmpty(cfg), false); err == nil {
			defer logs.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	exitOnError(runData(ctx, cfg, NewBackend(cfg), opts))
}

func parseDataArgs(cfg *config.Config, args Args) (dataOptions, error) {
	p := NewArgParser(args.Raw, "desc", "logs")
	def := backend.DefaultFetchDataRequest()

	opts := dataOptions{
		Request: backend.FetchDataRequest{
			StartDate: p.FlagOrDefault("start", def.StartDate),
			EndDate:   p.FlagOrDefault("end", def.EndDate),
			Timeframe: p.FlagOrDefault("timeframe", def.Timeframe),
		},
		Sort: strings.ToLower(p.Flag("sort")),
		Desc: p.BoolFlag("desc"),
		Logs: p.BoolFlag("logs"),
		JSON: args.JSON,
	}

	start, err := time.Parse(model.DateLayout, opts.Request.StartDate)
	if err != nil {
		return opts, &ValidationError{Field: "--start", Value: opts.Request.StartDate, Reason: "want YYYY-MM-DD", Example: "--start 2024-01-01"}
	}
	end, err := time.Parse(model.DateLayout, opts.Request.EndDate)
	if err != nil {
		return opts, &ValidationError{Field: "--end", Value: opts.Request.EndDate, Reason: "want YYYY-MM-DD", Example: "--end 2024-01-05"}
	}
	if end.Before(start) {
		return opts, &ValidationError{Field: "--end", Value: opts.Request.EndDate, Reason: "must not be before --start"}
	}
	if _, ok := model.TimeframeDuration(opts.Request.Timeframe); !ok {
		return opts, &ValidationError{Field: "--timeframe", Value: opts.Request.Timeframe, Reason: "unsupported timeframe", Example: "--timeframe 1h"}
	}

	if opts.Request.MaxDataPoints, err = p.FlagInt("max", def.MaxDataPoints); err != nil {
		return opts, err
	}
	if opts.Request.MaxDataPoints <= 0 {
		return opts, &ValidationError{Field: "--max", Value: fmt.Sprint(opts.Request.MaxDataPoints), Reason: "must be positive"}
	}
	if opts.Page, err = p.FlagInt("page", 1); err != nil {
		return opts, err
	}
	pageSize := cfg.UI.PageSize
	if pageSize <= 0 {
		pageSize = components.TradesPageSize
	}
	if opts.PageSize, err = p.FlagInt("page-size", pageSize); err != nil {
		return opts, err
	}
	return opts, nil
}

// runData fetches candles and prints the statistics and one table page.
func runData(ctx context.Context, cfg *config.Config, src DataFetcher, opts dataOptions) error {
	res, err := src.FetchData(ctx, opts.Request)
	if err != nil {
		return wrapErr("data", "fetch", err)
	}
	stats := model.ComputePriceStats(res.Candles)

	tbl := components.CandlesTable(res.Candles)
	if opts.Sort != "" {
		if err := tbl.SortBy(opts.Sort, opts.Desc); err != nil {
			return &ValidationError{Field: "--sort", Value: opts.Sort, Reason: err.Error()}
		}
	}

	if opts.JSON {
		out := DataResult{Summary: res.Summary, Stats: stats, Candles: res.Candles}
		if opts.Logs {
			out.Logs = res.Logs
		}
		return printJSON("data", out)
	}

	theme := styles.NewTheme(cfg.UI.Theme)
	fmt.Fprintln(stdout, TitleStyle.Render(fmt.Sprintf("BTCUSDT %s  %s ~ %s",
		opts.Request.Timeframe, res.Summary.StartDate, res.Summary.EndDate)))
	if stats == nil {
		fmt.Fprintln(stdout, DimStyle.Render("No data in range."))
		return nil
	}
	fmt.Fprintln(stdout, components.RenderPriceStats(theme, stats))
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, tbl.Render(theme, opts.Page, opts.PageSize))

	if opts.Logs && len(res.Logs) > 0 {
		fmt.Fprintln(stdout, SectionStyle.Render("Server log"))
		for _, line := range res.Logs {
			fmt.Fprintln(stdout, DimStyle.Render(line))
		}
	}
	return nil
}
