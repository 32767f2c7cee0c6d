// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command line parsing and shared setup for stratchat.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/jeranaias/stratchat/internal/backend"
	"github.com/jeranaias/stratchat/internal/config"
	"github.com/jeranaias/stratchat/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdAsk
	CmdMarket
	CmdData
	CmdHistory
	CmdConfig
	CmdServeStub
	CmdDoctor
	CmdVersion
	CmdHelp
	CmdUnknown
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string // --config FILE
	BackendURL string // --backend URL
	Theme      string // --theme auto|dark|light
	JSON       bool
	Quiet      bool
	Verbose    bool

	// Command-specific
	Query      string // ask
	Mode       string // ask, chat: --mode simple|confirm
	Resume     string // chat, tui: --resume ID
	Subcommand string
	Name       string // the unrecognized command for CmdUnknown

	// Raw holds the arguments after the command name. market, data,
	// history, config and serve-stub parse them with ArgParser.
	Raw []string
}

const usageText = `stratchat - describe a trading strategy, get a backtest

Usage:
  stratchat                      Start the chat TUI (default)
  stratchat chat                 Line-mode chat for plain terminals
  stratchat ask "strategy"       Run one strategy end to end
  stratchat market               Show the BTCUSDT market panel
  stratchat data                 Fetch raw candles from the backtest service
  stratchat history [sub]        Saved conversations
  stratchat config [sub]         Show or change settings
  stratchat serve-stub           Run the synthetic backtest service
  stratchat doctor               Check config, backend and exchange
  stratchat version              Print version information
  stratchat help                 Show this help

Chat:
  stratchat chat [--mode simple|confirm] [--resume ID]
  stratchat tui [--resume ID]
    In the chat, type a strategy in plain language, e.g.
      "20일 이동평균선이 50일선을 상향 돌파하면 매수"
    In confirm mode the analysis is shown first; answer "진행" to run it.
    Type /help for chat commands.

Ask:
  stratchat ask [--mode simple|confirm] "strategy"
    Confirm mode answers the confirmation itself and prints the analysis,
    the prepared data and the backtest result. --json prints the result.

Market:
  stratchat market [--interval 1h] [--limit N] [--live]
    --live keeps printing kline updates until Ctrl+C.

Data:
  stratchat data [--start 2024-01-01] [--end 2024-01-05] [--max 5000]
                 [--sort time|open|high|low|close|volume] [--desc] [--page N]

History:
  stratchat history [list]       List saved conversations
  stratchat history search TEXT  Search conversation text
  stratchat history show ID      Print a conversation as markdown
  stratchat history delete ID    Delete a conversation
  stratchat history clear --confirm
                                 Delete every conversation
  IDs may be shortened to any unique prefix.

Config:
  stratchat config [show]        Print the effective configuration
  stratchat config get KEY       Print one value (e.g. turn.mode)
  stratchat config set KEY VAL   Change and save one value
  stratchat config path          Print the config file path

Serve-stub:
  stratchat serve-stub [--addr :8000] [--latency 0s] [--tick 1s]
    Serves the backtest API and a fake exchange for local development.

Global Flags:
  --config FILE       Use this config file instead of ~/.stratchat/config.toml
  --backend URL       Override backend.url
  --theme NAME        auto, dark or light
  --json              Machine-readable output where supported
  -q, --quiet         Less output
  -v, --verbose       Log to stderr in line-mode commands

Environment:
  STRATCHAT_HOME      Config directory (default ~/.stratchat)
  NO_COLOR            Disable colors

Version: %s
`

// PrintUsage prints the usage text.
func PrintUsage() {
	fmt.Fprintf(stdout, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Fprintf(stdout, "stratchat version %s\n", Version)
	fmt.Fprintf(stdout, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(stdout, "  Build date: %s\n", BuildDate)
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses os.Args and returns the command and args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses argv, without the program name.
func ParseArgs(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)
	if len(remaining) == 0 {
		return CmdTUI, args
	}

	name := strings.ToLower(remaining[0])
	rest := remaining[1:]
	args.Raw = rest
	if len(rest) > 0 {
		args.Subcommand = rest[0]
	}

	switch name {
	case "tui":
		parseChatArgs(&args, rest)
		return CmdTUI, args
	case "chat":
		parseChatArgs(&args, rest)
		return CmdChat, args
	case "ask":
		parseAskArgs(&args, rest)
		return CmdAsk, args
	case "market":
		return CmdMarket, args
	case "data":
		return CmdData, args
	case "history", "hist", "sessions":
		return CmdHistory, args
	case "config":
		return CmdConfig, args
	case "serve-stub", "serve", "stub":
		return CmdServeStub, args
	case "doctor", "diag":
		return CmdDoctor, args
	case "version", "--version":
		return CmdVersion, args
	case "help", "-h", "--help":
		return CmdHelp, args
	default:
		args.Name = remaining[0]
		return CmdUnknown, args
	}
}

// parseGlobalFlags extracts global flags from anywhere in args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsed Args

	value := func(i *int) string {
		if *i+1 < len(args) {
			*i++
			return args[*i]
		}
		return ""
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			remaining = append(remaining, args[i:]...)
			break
		}
		switch arg {
		case "--json":
			parsed.JSON = true
		case "-q", "--quiet":
			parsed.Quiet = true
		case "-v", "--verbose":
			parsed.Verbose = true
		case "--config":
			parsed.ConfigPath = value(&i)
		case "--backend":
			parsed.BackendURL = value(&i)
		case "--theme":
			parsed.Theme = value(&i)
		default:
			switch {
			case strings.HasPrefix(arg, "--config="):
				parsed.ConfigPath = strings.TrimPrefix(arg, "--config=")
			case strings.HasPrefix(arg, "--backend="):
				parsed.BackendURL = strings.TrimPrefix(arg, "--backend=")
			case strings.HasPrefix(arg, "--theme="):
				parsed.Theme = strings.TrimPrefix(arg, "--theme=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}
	return remaining, parsed
}

// parseAskArgs reads --mode and joins the rest into the query.
func parseAskArgs(args *Args, remaining []string) {
	p := NewArgParser(remaining)
	args.Mode = p.Flag("mode", "m")
	args.Query = strings.Join(p.PositionalFrom(0), " ")
}

// parseChatArgs reads --mode and --resume.
func parseChatArgs(args *Args, remaining []string) {
	p := NewArgParser(remaining)
	args.Mode = p.Flag("mode", "m")
	args.Resume = p.Flag("resume", "r")
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// LoadConfig loads the config named by --config, or the default file, then
// applies --backend and --theme.
func LoadConfig(args Args) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if cfg == nil {
		return nil, err
	}
	if err != nil {
		// A broken file falls back to defaults; say so but keep going.
		fmt.Fprintf(stderr, "%s %v (using defaults)\n", WarningStyle.Render("Warning:"), err)
	}
	if args.BackendURL != "" {
		cfg.Backend.URL = args.BackendURL
	}
	if args.Theme != "" {
		cfg.UI.Theme = args.Theme
	}
	config.SetGlobal(cfg)
	return cfg, nil
}

// NewBackend creates a backtest service client from the config.
func NewBackend(cfg *config.Config) *backend.Client {
	return backend.NewClient(cfg.Backend.URL).
		WithTimeout(cfg.Backend.Timeout()).
		WithMaxRetries(cfg.Backend.MaxRetries).
		WithRateLimit(cfg.Backend.RequestsPerSec)
}

// OpenSessions opens the session store, or returns nil when history is
// disabled.
func OpenSessions(cfg *config.Config) (*storage.Store, error) {
	if cfg.Storage.Disabled {
		return nil, nil
	}
	path, err := cfg.StoragePath()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session history: %w", err)
	}
	store.MaxSessions = cfg.Storage.MaxSessions
	return store, nil
}

// =============================================================================
// SIMPLE HANDLERS
// =============================================================================

// HandleVersion handles the "version" command.
func HandleVersion(args Args) {
	if args.JSON {
		exitOnError(printJSON("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}))
		return
	}
	PrintVersion()
}

// HandleHelp handles the "help" command.
func HandleHelp() {
	PrintUsage()
}

// HandleUnknown reports an unknown command with a suggestion and exits.
func HandleUnknown(args Args) {
	msg := fmt.Sprintf("unknown command %q", args.Name)
	if s := SuggestCommand(args.Name); s != "" {
		msg += fmt.Sprintf(". Did you mean %q?", s)
	}
	exitOnError(&UsageError{Msg: msg, Usage: "stratchat help"})
}
