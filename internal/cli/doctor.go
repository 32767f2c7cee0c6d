// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// doctor.go - The "doctor" command: check that stratchat can do its job.
//
// Checks performed:
//  1. Config Valid       - the config file loads and validates
//  2. Backend Reachable  - GET /health on backend.url answers
//  3. Exchange Reachable - one kline can be fetched from market.rest_url
//  4. History Writable   - the session database directory is writable
//  5. Log Writable       - the log file can be opened
//
// Exit Codes:
//
//	0   All checks passed or warned
//	1   One or more checks failed
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/stratchat/internal/config"
	"github.com/jeranaias/stratchat/internal/market"
	"github.com/jeranaias/stratchat/internal/ui/styles"
)

// doctorTimeout bounds each network check.
const doctorTimeout = 5 * time.Second

// =============================================================================
// HEALTH CHECK TYPES
// =============================================================================

// CheckStatus represents the status of a health check.
type CheckStatus int

const (
	// CheckPass indicates the check passed.
	CheckPass CheckStatus = iota
	// CheckWarn indicates a problem that does not stop the client.
	CheckWarn
	// CheckFail indicates a problem that does.
	CheckFail
)

// String returns the lowercase name used in JSON output.
func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarn:
		return "warn"
	case CheckFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns the styled status marker.
func (s CheckStatus) Symbol() string {
	switch s {
	case CheckPass:
		return SuccessStyle.Render(styles.StatusIndicators.Success)
	case CheckWarn:
		return WarningStyle.Render(styles.StatusIndicators.Warning)
	case CheckFail:
		return ErrorStyle.Render(styles.StatusIndicators.Error)
	default:
		return "?"
	}
}

// HealthCheck is one check result.
type HealthCheck struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"-"`
	State   string      `json:"status"`
	Message string      `json:"message"`
	Fix     string      `json:"fix,omitempty"` // suggested command or instruction
}

// Render formats the check for the terminal.
func (c *HealthCheck) Render() string {
	out := fmt.Sprintf("%s %s", c.Status.Symbol(), c.Message)
	if c.Status != CheckPass && c.Fix != "" {
		out += "\n    " + DimStyle.Render("-> "+c.Fix)
	}
	return out
}

// DoctorData is the --json payload of doctor.
type DoctorData struct {
	Checks  []*HealthCheck `json:"checks"`
	Passed  int            `json:"passed"`
	Warned  int            `json:"warned"`
	Failed  int            `json:"failed"`
	Healthy bool           `json:"healthy"`
}

// HealthProber is the health endpoint of the backtest service.
type HealthProber interface {
	Health(ctx context.Context) error
}

// doctorDeps are the services the checks talk to.
type doctorDeps struct {
	Backend HealthProber
	Market  MarketSource
}

// HandleDoctor handles the "doctor" command.
func HandleDoctor(args Args) {
	cfg, loadErr := loadConfigQuietly(args)
	deps := doctorDeps{
		Backend: NewBackend(cfg).WithMaxRetries(0),
		Market:  market.NewClient(cfg.Market.RESTURL),
	}
	exitOnError(runDoctor(context.Background(), cfg, loadErr, deps, args.JSON))
}

// loadConfigQuietly loads the config like LoadConfig but returns the load
// error instead of printing it, always with a usable config.
func loadConfigQuietly(args Args) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if cfg == nil {
		cfg = config.Default()
		cfg.SetDefaults()
	}
	if args.BackendURL != "" {
		cfg.Backend.URL = args.BackendURL
	}
	return cfg, err
}

// runDoctor runs every check and prints the report. It fails when any
// check fails.
func runDoctor(ctx context.Context, cfg *config.Config, loadErr error, deps doctorDeps, asJSON bool) error {
	checks := []*HealthCheck{
		checkConfigValid(loadErr),
		checkBackend(ctx, cfg, deps.Backend),
		checkExchange(ctx, cfg, deps.Market),
		checkHistoryWritable(cfg),
		checkLogWritable(cfg),
	}

	data := DoctorData{Checks: checks}
	for _, c := range checks {
		c.State = c.Status.String()
		switch c.Status {
		case CheckPass:
			data.Passed++
		case CheckWarn:
			data.Warned++
		case CheckFail:
			data.Failed++
		}
	}
	data.Healthy = data.Failed == 0

	var failure error
	if data.Failed > 0 {
		failure = fmt.Errorf("%d health check(s) failed", data.Failed)
	}

	if asJSON {
		resp := NewJSONResponse("doctor", data)
		if failure != nil {
			msg := failure.Error()
			resp.Success = false
			resp.Error = &msg
		}
		if err := resp.Print(); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(stdout, TitleStyle.Render("stratchat doctor"))
	fmt.Fprintln(stdout, RenderSeparator(41))
	for _, c := range checks {
		fmt.Fprintln(stdout, c.Render())
	}
	fmt.Fprintln(stdout, RenderSeparator(41))

	summary := []string{fmt.Sprintf("%d passed", data.Passed)}
	if data.Warned > 0 {
		summary = append(summary, WarningStyle.Render(fmt.Sprintf("%d warning", data.Warned)))
	}
	if data.Failed > 0 {
		summary = append(summary, ErrorStyle.Render(fmt.Sprintf("%d failed", data.Failed)))
	}
	fmt.Fprintln(stdout, strings.Join(summary, ", "))
	return failure
}

// =============================================================================
// HEALTH CHECK FUNCTIONS
// =============================================================================

func checkConfigValid(loadErr error) *HealthCheck {
	check := &HealthCheck{Name: "Config Valid"}
	if loadErr != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Config invalid: %s", loadErr)
		check.Fix = "Inspect it with: stratchat config path"
		return check
	}
	path, err := config.ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			check.Status = CheckPass
			check.Message = "Config valid (using defaults)"
			return check
		}
	}
	check.Status = CheckPass
	check.Message = "Config valid"
	return check
}

func checkBackend(ctx context.Context, cfg *config.Config, prober HealthProber) *HealthCheck {
	check := &HealthCheck{Name: "Backend Reachable"}
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	if err := prober.Health(ctx); err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Backend at %s not reachable: %s", cfg.Backend.URL, err)
		check.Fix = "Start a local one with: stratchat serve-stub"
		return check
	}
	check.Status = CheckPass
	check.Message = fmt.Sprintf("Backend reachable (%s)", cfg.Backend.URL)
	return check
}

// checkExchange only warns: the chat works without the market panel.
func checkExchange(ctx context.Context, cfg *config.Config, src MarketSource) *HealthCheck {
	check := &HealthCheck{Name: "Exchange Reachable"}
	if !cfg.UI.ShowMarket {
		check.Status = CheckPass
		check.Message = "Market panel disabled"
		return check
	}
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	if _, err := src.Klines(ctx, cfg.Market.Symbol, cfg.Market.Interval, 1); err != nil {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("Exchange not reachable: %s", err)
		check.Fix = "Disable the panel with: stratchat config set ui.show_market false"
		return check
	}
	check.Status = CheckPass
	check.Message = fmt.Sprintf("Exchange reachable (%s %s)", cfg.Market.Symbol, cfg.Market.Interval)
	return check
}

func checkHistoryWritable(cfg *config.Config) *HealthCheck {
	check := &HealthCheck{Name: "History Writable"}
	if cfg.Storage.Disabled {
		check.Status = CheckWarn
		check.Message = "Session history disabled"
		check.Fix = "Enable it with: stratchat config set storage.disabled false"
		return check
	}
	path, err := cfg.StoragePath()
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Could not determine history path: %s", err)
		return check
	}
	if err := probeDir(filepath.Dir(path)); err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("History directory not writable: %s", err)
		check.Fix = fmt.Sprintf("Create manually: mkdir -p %s", filepath.Dir(path))
		return check
	}
	check.Status = CheckPass
	check.Message = fmt.Sprintf("History writable (%s)", path)
	return check
}

func checkLogWritable(cfg *config.Config) *HealthCheck {
	check := &HealthCheck{Name: "Log Writable"}
	path, err := cfg.LogPath()
	if err != nil || path == "" {
		check.Status = CheckWarn
		check.Message = "No log file; logs are discarded"
		return check
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("Log directory not writable: %s", err)
		return check
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("Log file not writable: %s", err)
		check.Fix = "Choose another file with: stratchat config set log.path FILE"
		return check
	}
	f.Close()
	check.Status = CheckPass
	check.Message = fmt.Sprintf("Log writable (%s)", path)
	return check
}

// probeDir creates dir if needed and writes a scratch file into it.
func probeDir(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
