// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/stratchat/internal/backend"
	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/turn"
	"github.com/jeranaias/stratchat/internal/ui/components"
)

// =============================================================================
// COMMAND HANDLER REGISTRY
// =============================================================================

// CommandHandler handles one slash command. It receives the model and the
// command arguments, and returns the updated model and a command.
type CommandHandler func(m *Model, args []string) (tea.Model, tea.Cmd)

// commandHandlers maps command names to their handler functions.
var commandHandlers = map[string]CommandHandler{
	// Help & Meta
	"help": handleHelpCommand,
	"h":    handleHelpCommand,
	"?":    handleHelpCommand,
	"quit": handleQuitCommand,
	"q":    handleQuitCommand,
	"exit": handleQuitCommand,

	// Strategy
	"guide":  handleGuideCommand,
	"params": handleParamsCommand,
	"set":    handleSetCommand,
	"mode":   handleModeCommand,
	"edit":   handleEditCommand,
	"trades": handleTradesCommand,

	// Market data
	"market":  handleMarketCommand,
	"data":    handleDataCommand,
	"candles": handleCandlesCommand,

	// Session Management
	"clear":   handleClearCommand,
	"new":     handleClearCommand,
	"history": handleHistoryCommand,
	"hist":    handleHistoryCommand,
	"resume":  handleResumeCommand,
	"r":       handleResumeCommand,
}

// commandInfo describes a command for the help overlay.
type commandInfo struct {
	Usage string
	Desc  string
}

var commandList = []commandInfo{
	{"/help", "show commands and keys"},
	{"/guide", "example strategies"},
	{"/params", "edit backtest parameters"},
	{"/set KEY VALUE", "set one parameter (" + strings.Join(model.ParamKeys, ", ") + ")"},
	{"/mode simple|confirm", "switch the turn flow"},
	{"/edit", "edit the last code and re-run the backtest"},
	{"/trades [page] [sort COL [desc]]", "trade history of the last backtest"},
	{"/market [refresh]", "toggle or refresh the market panel"},
	{"/data [START END [MAX]]", "fetch price data for a date range"},
	{"/candles [page] [sort COL [desc]]", "OHLCV table of the last fetch"},
	{"/clear", "start a new conversation"},
	{"/history", "list saved conversations"},
	{"/resume N|ID", "continue a saved conversation"},
	{"/quit", "exit"},
}

// handleCommand processes slash commands using the command registry.
func (m Model) handleCommand(content string) (tea.Model, tea.Cmd) {
	m.input.Reset()

	parts := strings.Fields(content)
	if len(parts) == 0 {
		return m, nil
	}

	cmdName := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	args := parts[1:]

	if handler, ok := commandHandlers[cmdName]; ok {
		return handler(&m, args)
	}
	m.setNotice("unknown command "+parts[0]+", type /help for available commands", true)
	return m, nil
}

// =============================================================================
// HELP AND META COMMANDS
// =============================================================================

func handleHelpCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	m.overlay = overlayHelp
	return *m, nil
}

func handleQuitCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	m.reveal.Finish()
	save := m.saveCmd()
	m.Close()
	return *m, sequence(save, tea.Quit)
}

// =============================================================================
// STRATEGY COMMANDS
// =============================================================================

// handleGuideCommand types the strategy guide as an assistant message.
func handleGuideCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if m.busy || m.seq.IsLoading() {
		m.setNotice("wait for the current turn to finish", true)
		return *m, nil
	}
	id := m.store.Append(model.NewPlaceholder(model.RoleAssistant))
	m.reveal.Reveal(id, turn.GuideText(), "")
	m.viewport.GotoBottom()
	return *m, nil
}

func handleParamsCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if len(args) > 0 && args[0] == "show" {
		m.showPanel("Parameters", formatParams(m.seq.Params()))
		return *m, nil
	}
	return *m, m.openParams()
}

func handleSetCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if len(args) < 2 {
		m.setNotice("usage: /set KEY VALUE ("+strings.Join(model.ParamKeys, ", ")+")", true)
		return *m, nil
	}
	p := m.seq.Params()
	if err := p.Set(strings.ToLower(args[0]), strings.Join(args[1:], " ")); err != nil {
		m.setNotice(err.Error(), true)
		return *m, nil
	}
	if err := p.Validate(); err != nil {
		m.setNotice(strings.ReplaceAll(err.Error(), "\n", "; "), true)
		return *m, nil
	}
	m.seq.SetParams(p)
	value, _ := p.Get(strings.ToLower(args[0]))
	m.setNotice(strings.ToLower(args[0])+" = "+value, false)
	return *m, nil
}

func handleModeCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		m.setNotice("mode: "+string(m.seq.Config().Mode), false)
		return *m, nil
	}
	mode, err := turn.ParseMode(args[0])
	if err != nil {
		m.setNotice(err.Error(), true)
		return *m, nil
	}
	m.seq.SetMode(mode)
	m.setNotice("mode: "+string(mode), false)
	return *m, nil
}

func handleEditCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	return *m, m.openEditor()
}

func handleTradesCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if m.lastResult == nil || len(m.lastResult.TradeHistory) == 0 {
		m.setNotice("no trades yet, run a backtest first", true)
		return *m, nil
	}
	opts, err := parseTableArgs(args)
	if err != nil {
		m.setNotice(err.Error()+", usage: /trades [page] [sort COL [desc]]", true)
		return *m, nil
	}
	tbl := components.TradesTable(m.lastResult.TradeHistory)
	if opts.sortKey != "" {
		if err := tbl.SortBy(opts.sortKey, opts.desc); err != nil {
			m.setNotice(err.Error(), true)
			return *m, nil
		}
	}
	m.showPanel("Trades", tbl.Render(m.theme, opts.page, m.pageSize()))
	return *m, nil
}

// =============================================================================
// MARKET DATA COMMANDS
// =============================================================================

func handleMarketCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if len(args) > 0 && args[0] == "refresh" {
		if m.marketSrc == nil {
			m.setNotice("market data is not configured", true)
			return *m, nil
		}
		if !m.showMarket {
			m.showMarket = true
			m.layout()
			m.refreshViewport()
		}
		return *m, m.fetchMarketCmd()
	}
	return *m, m.toggleMarket()
}

// handleDataCommand fetches a price series through the backend debug
// endpoint. Without arguments the default range is used.
func handleDataCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if m.fetching {
		m.setNotice("a data fetch is already running", true)
		return *m, nil
	}
	req := backend.DefaultFetchDataRequest()
	req.Timeframe = m.seq.Params().Timeframe
	switch len(args) {
	case 0:
	case 2, 3:
		req.StartDate, req.EndDate = args[0], args[1]
		if len(args) == 3 {
			n, err := strconv.Atoi(args[2])
			if err != nil || n <= 0 {
				m.setNotice("max points must be a positive number", true)
				return *m, nil
			}
			req.MaxDataPoints = n
		}
	default:
		m.setNotice("usage: /data [START END [MAX]]", true)
		return *m, nil
	}
	if err := validateRange(req.StartDate, req.EndDate); err != nil {
		m.setNotice(err.Error(), true)
		return *m, nil
	}

	m.fetching = true
	m.store.Append(model.NewSystemMessage(fmt.Sprintf("/data %s %s", req.StartDate, req.EndDate)))
	return *m, FetchDataCmd(m.ctx, m.backend, req)
}

func handleCandlesCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if len(m.lastCandles) == 0 {
		m.setNotice("no price data yet, use /data first", true)
		return *m, nil
	}
	opts, err := parseTableArgs(args)
	if err != nil {
		m.setNotice(err.Error()+", usage: /candles [page] [sort COL [desc]]", true)
		return *m, nil
	}
	tbl := components.CandlesTable(m.lastCandles)
	if opts.sortKey != "" {
		if err := tbl.SortBy(opts.sortKey, opts.desc); err != nil {
			m.setNotice(err.Error(), true)
			return *m, nil
		}
	}
	m.showPanel("Price data", tbl.Render(m.theme, opts.page, m.pageSize()))
	return *m, nil
}

// =============================================================================
// SESSION MANAGEMENT COMMANDS
// =============================================================================

// handleClearCommand saves the current conversation and starts a new one.
func handleClearCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if m.busy || m.seq.IsLoading() {
		m.setNotice("wait for the current turn to finish", true)
		return *m, nil
	}
	save := m.saveCmd()
	m.reset()
	m.setNotice("new conversation", false)
	return *m, save
}

func handleHistoryCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if m.sessions == nil || m.cfg.Storage.Disabled {
		m.setNotice("session history is disabled", true)
		return *m, nil
	}
	return *m, ListSessionsCmd(m.ctx, m.sessions)
}

func handleResumeCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if m.sessions == nil || m.cfg.Storage.Disabled {
		m.setNotice("session history is disabled", true)
		return *m, nil
	}
	if len(args) != 1 {
		m.setNotice("usage: /resume N|ID (see /history)", true)
		return *m, nil
	}
	if m.busy || m.seq.IsLoading() {
		m.setNotice("wait for the current turn to finish", true)
		return *m, nil
	}
	return *m, sequence(m.saveCmd(), LoadSessionCmd(m.ctx, m.sessions, args[0]))
}

// =============================================================================
// HELPERS
// =============================================================================

// sequence runs the non-nil cmds in order.
func sequence(cmds ...tea.Cmd) tea.Cmd {
	var valid []tea.Cmd
	for _, c := range cmds {
		if c != nil {
			valid = append(valid, c)
		}
	}
	switch len(valid) {
	case 0:
		return nil
	case 1:
		return valid[0]
	}
	return tea.Sequence(valid...)
}

// tableArgs are the parsed arguments of /trades and /candles.
type tableArgs struct {
	page    int
	sortKey string
	desc    bool
}

// parseTableArgs parses "[page] [sort COL [asc|desc]]".
func parseTableArgs(args []string) (tableArgs, error) {
	opts := tableArgs{page: 1}
	for i := 0; i < len(args); i++ {
		switch arg := strings.ToLower(args[i]); arg {
		case "sort":
			if i+1 >= len(args) {
				return opts, fmt.Errorf("sort needs a column")
			}
			i++
			opts.sortKey = strings.ToLower(args[i])
			if i+1 < len(args) {
				switch strings.ToLower(args[i+1]) {
				case "desc":
					opts.desc = true
					i++
				case "asc":
					i++
				}
			}
		default:
			n, err := strconv.Atoi(arg)
			if err != nil || n < 1 {
				return opts, fmt.Errorf("invalid page %q", args[i])
			}
			opts.page = n
		}
	}
	return opts, nil
}

// validateRange checks a START END date pair.
func validateRange(start, end string) error {
	s, err := time.Parse(model.DateLayout, start)
	if err != nil {
		return fmt.Errorf("invalid start date %q (want YYYY-MM-DD)", start)
	}
	e, err := time.Parse(model.DateLayout, end)
	if err != nil {
		return fmt.Errorf("invalid end date %q (want YYYY-MM-DD)", end)
	}
	if !s.Before(e) {
		return fmt.Errorf("start date must be before end date")
	}
	return nil
}

func (m *Model) pageSize() int {
	if m.cfg.UI.PageSize > 0 {
		return m.cfg.UI.PageSize
	}
	return components.TradesPageSize
}

// formatParams lists the session parameters one per line.
func formatParams(p model.Params) string {
	var b strings.Builder
	for _, k := range model.ParamKeys {
		v, _ := p.Get(k)
		fmt.Fprintf(&b, "%-14s %s\n", k, v)
	}
	return strings.TrimRight(b.String(), "\n")
}
