// stratchat - describe a trading strategy in plain language, get a backtest.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/stratchat/internal/cli"
	"github.com/jeranaias/stratchat/internal/config"
	"github.com/jeranaias/stratchat/internal/market"
	"github.com/jeranaias/stratchat/internal/turn"
	"github.com/jeranaias/stratchat/internal/ui/chat"
	"github.com/jeranaias/stratchat/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdTUI:
		runTUI(args)
	case cli.CmdChat:
		cli.HandleChat(args)
	case cli.CmdAsk:
		cli.HandleAsk(args)
	case cli.CmdMarket:
		cli.HandleMarket(args)
	case cli.CmdData:
		cli.HandleData(args)
	case cli.CmdHistory:
		cli.HandleHistory(args)
	case cli.CmdConfig:
		cli.HandleConfig(args)
	case cli.CmdServeStub:
		cli.HandleServeStub(args)
	case cli.CmdDoctor:
		cli.HandleDoctor(args)
	case cli.CmdVersion:
		cli.HandleVersion(args)
	case cli.CmdHelp:
		cli.HandleHelp()
	default:
		cli.HandleUnknown(args)
	}
}

// runTUI starts the full-screen chat.
func runTUI(args cli.Args) {
	if err := cli.RequiresTTY("the chat TUI"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitUsageError)
	}

	cfg, err := cli.LoadConfig(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
	if args.Mode != "" {
		if _, err := turn.ParseMode(args.Mode); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(cli.ExitUsageError)
		}
		cfg.Turn.Mode = args.Mode
	}

	// The alt screen owns the terminal; logs go to the log file.
	logPath, _ := cfg.LogPath()
	if logs, err := cli.RedirectLog(logPath, false); err == nil {
		defer logs.Close()
	}

	opts := chat.Options{
		Config:  cfg,
		Backend: cli.NewBackend(cfg),
		Resume:  args.Resume,
	}
	if cfg.UI.ShowMarket {
		opts.Market = market.NewClient(cfg.Market.RESTURL)
	}

	sessions, err := cli.OpenSessions(cfg)
	if err != nil {
		log.Printf("session history disabled: %v", err)
	} else if sessions != nil {
		defer sessions.Close()
		opts.Sessions = sessions
	}

	if watcher, err := config.NewWatcher(0); err != nil {
		log.Printf("config reload disabled: %v", err)
	} else {
		defer watcher.Close()
		opts.Watcher = watcher
	}

	m := chat.New(styles.NewTheme(cfg.UI.Theme), opts)
	defer m.Close()

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),       // Use alternate screen buffer
		tea.WithMouseCellMotion(), // Enable mouse support
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running stratchat: %v\n", err)
		os.Exit(1)
	}
}
