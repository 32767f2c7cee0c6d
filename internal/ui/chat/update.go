// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/stratchat/internal/backend"
	"github.com/jeranaias/stratchat/internal/config"
	"github.com/jeranaias/stratchat/internal/market"
	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/storage"
	"github.com/jeranaias/stratchat/internal/turn"
	"github.com/jeranaias/stratchat/internal/ui/components"
	"github.com/jeranaias/stratchat/internal/util"
)

// saveTimeout bounds one autosave.
const saveTimeout = 5 * time.Second

// =============================================================================
// COMMAND CREATORS
// =============================================================================

// WaitForStore blocks until the store changes. Changes are coalesced, so one
// message may stand for many patches.
func WaitForStore(store *model.Store) tea.Cmd {
	return func() tea.Msg {
		<-store.Changes()
		return StoreChangedMsg{}
	}
}

// WaitForBacktest delivers the next finished backtest.
func WaitForBacktest(results <-chan turn.Result) tea.Cmd {
	return func() tea.Msg {
		return BacktestMsg{Result: <-results}
	}
}

// WaitForReload delivers the next config reload. It returns nil once the
// watcher is closed.
func WaitForReload(w *config.Watcher) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-w.Updates()
		if !ok {
			return nil
		}
		return ConfigReloadMsg{Reload: r}
	}
}

// SubmitCmd runs one turn. It blocks for the whole backend sequence.
func SubmitCmd(ctx context.Context, seq *turn.Sequencer, text string) tea.Cmd {
	return func() tea.Msg {
		return TurnDoneMsg{Err: seq.Submit(ctx, text)}
	}
}

// EditAndRerunCmd backtests edited code.
func EditAndRerunCmd(ctx context.Context, seq *turn.Sequencer, code string) tea.Cmd {
	return func() tea.Msg {
		return TurnDoneMsg{Err: seq.EditAndRerun(ctx, code)}
	}
}

// FetchMarketCmd loads the klines shown in the market panel.
func FetchMarketCmd(ctx context.Context, src MarketSource, cfg config.MarketConfig) tea.Cmd {
	return func() tea.Msg {
		candles, err := src.Klines(ctx, cfg.Symbol, cfg.Interval, cfg.Limit)
		return MarketSnapshotMsg{Candles: candles, Err: err}
	}
}

// SubscribeMarketCmd opens the live kline stream.
func SubscribeMarketCmd(ctx context.Context, cfg config.MarketConfig) tea.Cmd {
	return func() tea.Msg {
		stream, err := market.Subscribe(ctx, cfg.StreamURL, cfg.Symbol, cfg.Interval, nil)
		return MarketStreamMsg{Stream: stream, Err: err}
	}
}

// WaitForMarket delivers the next live kline.
func WaitForMarket(stream *market.Stream) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-stream.Updates()
		if !ok {
			return MarketClosedMsg{}
		}
		return MarketUpdateMsg{Update: u}
	}
}

// FetchDataCmd runs a debug price fetch.
func FetchDataCmd(ctx context.Context, b Backend, req backend.FetchDataRequest) tea.Cmd {
	return func() tea.Msg {
		res, err := b.FetchData(ctx, req)
		return DataFetchedMsg{Request: req, Result: res, Err: err}
	}
}

// ListSessionsCmd loads the saved session list.
func ListSessionsCmd(ctx context.Context, store SessionStore) tea.Cmd {
	return func() tea.Msg {
		metas, err := store.List(ctx)
		return SessionListMsg{Sessions: metas, Err: err}
	}
}

// LoadSessionCmd loads a session by list number (1-based) or id prefix.
func LoadSessionCmd(ctx context.Context, store SessionStore, ref string) tea.Cmd {
	return func() tea.Msg {
		if n, err := strconv.Atoi(ref); err == nil {
			sess, err := store.LoadByIndex(ctx, n-1)
			return SessionLoadedMsg{Session: sess, Err: err}
		}
		id, err := store.Resolve(ctx, ref)
		if err != nil {
			return SessionLoadedMsg{Err: err}
		}
		sess, err := store.Load(ctx, id)
		return SessionLoadedMsg{Session: sess, Err: err}
	}
}

// saveCmd snapshots the conversation now and writes it in the background.
// The write outlives the model context so the save on quit completes.
func (m *Model) saveCmd() tea.Cmd {
	if m.saver == nil || m.cfg.Storage.Disabled || !m.hasUserMessages() {
		return nil
	}
	sess := m.session()
	saver := m.saver
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		id, err := saver.save(ctx, sess)
		return SessionSavedMsg{ID: id, Err: err}
	}
}

func (m *Model) fetchMarketCmd() tea.Cmd {
	if m.marketSrc == nil {
		return nil
	}
	return FetchMarketCmd(m.ctx, m.marketSrc, m.cfg.Market)
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.animating() {
			m.refreshViewport()
		}
		return m, cmd

	case StoreChangedMsg:
		m.refreshViewport()
		return m, WaitForStore(m.store)

	case TurnDoneMsg:
		m.busy = false
		switch {
		case errors.Is(msg.Err, turn.ErrTurnInFlight):
			m.setNotice("a turn is already running", true)
		case errors.Is(msg.Err, turn.ErrNoCode):
			m.setNotice("no code to run", true)
		case msg.Err != nil && !errors.Is(msg.Err, turn.ErrEmptyInput):
			m.setNotice(msg.Err.Error(), true)
		}
		m.refreshViewport()
		return m, m.saveCmd()

	case BacktestMsg:
		m.lastResult = msg.Result.Backtest
		return m, tea.Batch(WaitForBacktest(m.backtests), m.saveCmd())

	case SessionSavedMsg:
		if msg.Err != nil {
			log.Printf("chat: autosave failed: %v", msg.Err)
			m.setNotice("could not save session", true)
		}
		return m, nil

	case SessionListMsg:
		if msg.Err != nil {
			m.setNotice(msg.Err.Error(), true)
			return m, nil
		}
		if len(msg.Sessions) == 0 {
			m.setNotice("no saved sessions", false)
			return m, nil
		}
		m.showPanel("History", storage.FormatSessionList(msg.Sessions)+
			"\n"+m.theme.InputHint.Render("/resume <number|id> to continue a session"))
		return m, nil

	case SessionLoadedMsg:
		if msg.Err != nil {
			if errors.Is(msg.Err, storage.ErrSessionNotFound) {
				m.setNotice("session not found", true)
			} else {
				m.setNotice(msg.Err.Error(), true)
			}
			return m, nil
		}
		m.applySession(msg.Session)
		m.overlay = overlayNone
		m.setNotice("resumed session "+msg.Session.ID[:min(8, len(msg.Session.ID))], false)
		return m, nil

	case MarketSnapshotMsg:
		if msg.Err != nil {
			log.Printf("chat: market snapshot failed: %v", msg.Err)
			m.marketErr = msg.Err
			return m, nil
		}
		m.candles = msg.Candles
		m.marketErr = nil
		if m.cfg.Market.Live && m.stream == nil && m.showMarket {
			ctx, cancel := context.WithCancel(m.ctx)
			m.stopStream = cancel
			return m, SubscribeMarketCmd(ctx, m.cfg.Market)
		}
		return m, nil

	case MarketStreamMsg:
		if msg.Err != nil {
			log.Printf("chat: market stream failed: %v", msg.Err)
			m.marketErr = msg.Err
			m.stopMarketStream()
			return m, nil
		}
		m.stream = msg.Stream
		m.marketLive = true
		return m, WaitForMarket(msg.Stream)

	case MarketUpdateMsg:
		if m.stream == nil {
			return m, nil
		}
		m.applyMarketUpdate(msg.Update)
		return m, WaitForMarket(m.stream)

	case MarketClosedMsg:
		m.marketLive = false
		m.stream = nil
		return m, nil

	case DataFetchedMsg:
		m.fetching = false
		if msg.Err != nil {
			m.store.Append(model.NewMessage(model.RoleError,
				fmt.Sprintf("데이터 조회 실패: %v", msg.Err)))
			return m, nil
		}
		m.lastCandles = msg.Result.Candles
		stats := model.ComputePriceStats(msg.Result.Candles)
		text := fmt.Sprintf("%s ~ %s 가격 데이터 %d개를 불러왔습니다. /candles 로 상세 데이터를 볼 수 있습니다.",
			msg.Request.StartDate, msg.Request.EndDate, len(msg.Result.Candles))
		reply := model.NewMessage(model.RoleSystem, text)
		if stats != nil {
			reply.Payload = stats
		}
		m.store.Append(reply)
		return m, nil

	case ConfigReloadMsg:
		if m.watcher != nil {
			cmds = append(cmds, WaitForReload(m.watcher))
		}
		if msg.Reload.Err != nil {
			log.Printf("chat: config reload: %v", msg.Reload.Err)
			m.setNotice("config reload failed: "+msg.Reload.Err.Error(), true)
		}
		if msg.Reload.Config != nil {
			wasShown := m.showMarket
			m.applyConfig(msg.Reload.Config)
			if msg.Reload.Err == nil {
				m.setNotice("config reloaded", false)
			}
			if m.showMarket && !wasShown {
				cmds = append(cmds, m.fetchMarketCmd())
			}
			if !m.showMarket && wasShown {
				m.stopMarketStream()
			}
		}
		return m, tea.Batch(cmds...)

	case components.ParamsSubmittedMsg:
		m.seq.SetParams(msg.Params)
		m.overlay = overlayNone
		m.input.Focus()
		m.setNotice("parameters updated", false)
		return m, nil

	case components.ParamsCancelledMsg:
		m.overlay = overlayNone
		m.input.Focus()
		return m, nil
	}

	if m.overlay == overlayParams {
		var cmd tea.Cmd
		m.paramsForm, cmd = m.paramsForm.Update(msg)
		return m, cmd
	}
	return m, nil
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keyMap.Quit) {
		return handleQuitCommand(&m, nil)
	}

	switch m.overlay {
	case overlayParams:
		var cmd tea.Cmd
		m.paramsForm, cmd = m.paramsForm.Update(msg)
		return m, cmd
	case overlayEdit:
		return m.handleEditorKey(msg)
	case overlayHelp, overlayPanel:
		switch {
		case key.Matches(msg, m.keyMap.Skip), key.Matches(msg, m.keyMap.Help):
			m.overlay = overlayNone
			return m, nil
		case key.Matches(msg, m.keyMap.Submit):
			// Typing a command while a panel is open replaces the panel.
			if strings.TrimSpace(m.input.Value()) == "" {
				m.overlay = overlayNone
				return m, nil
			}
			m.overlay = overlayNone
		}
	}

	switch {
	case key.Matches(msg, m.keyMap.Skip):
		if _, ok := m.reveal.Active(); ok {
			m.reveal.Finish()
			return m, nil
		}
		m.notice = ""
		return m, nil

	case key.Matches(msg, m.keyMap.Help):
		m.overlay = overlayHelp
		return m, nil

	case key.Matches(msg, m.keyMap.PageUp):
		m.viewport.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keyMap.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	case key.Matches(msg, m.keyMap.Top):
		m.viewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keyMap.Bottom):
		m.viewport.GotoBottom()
		return m, nil

	case key.Matches(msg, m.keyMap.Edit):
		return m, m.openEditor()
	case key.Matches(msg, m.keyMap.Params):
		return m, m.openParams()
	case key.Matches(msg, m.keyMap.Market):
		return m, m.toggleMarket()

	case key.Matches(msg, m.keyMap.Submit):
		return m.submitInput()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submitInput dispatches the input line as a command or a chat turn.
func (m Model) submitInput() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()
	m.notice = ""

	if strings.HasPrefix(text, "/") {
		return m.handleCommand(text)
	}
	if m.busy || m.seq.IsLoading() {
		m.setNotice("wait for the current turn to finish", true)
		return m, nil
	}
	// A new input skips whatever is still being typed.
	m.reveal.Finish()
	m.busy = true
	m.viewport.GotoBottom()
	return m, SubmitCmd(m.ctx, m.seq, text)
}

// handleEditorKey drives the code editor overlay: ctrl+s runs, esc closes.
func (m Model) handleEditorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.overlay = overlayNone
		m.editor.Blur()
		m.input.Focus()
		return m, nil
	case "ctrl+s":
		code := m.editor.Value()
		m.overlay = overlayNone
		m.editor.Blur()
		m.input.Focus()
		if strings.TrimSpace(code) == "" {
			m.setNotice("no code to run", true)
			return m, nil
		}
		if m.busy || m.seq.IsLoading() {
			m.setNotice("wait for the current turn to finish", true)
			return m, nil
		}
		m.reveal.Finish()
		m.busy = true
		m.viewport.GotoBottom()
		return m, EditAndRerunCmd(m.ctx, m.seq, code)
	}
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

// =============================================================================
// OVERLAYS AND PANELS
// =============================================================================

// openEditor shows the last generated code in the editor.
func (m *Model) openEditor() tea.Cmd {
	code := m.seq.LastCode()
	if code == "" {
		m.setNotice("no generated code yet", true)
		return nil
	}
	m.editor.SetValue(code)
	m.editor.CursorStart()
	m.overlay = overlayEdit
	m.input.Blur()
	return m.editor.Focus()
}

func (m *Model) openParams() tea.Cmd {
	m.paramsForm = components.NewParamsForm(m.theme, m.seq.Params())
	m.overlay = overlayParams
	m.input.Blur()
	return m.paramsForm.Init()
}

func (m *Model) showPanel(title, body string) {
	m.panelTitle = title
	m.panel = body
	m.overlay = overlayPanel
}

func (m *Model) toggleMarket() tea.Cmd {
	if m.marketSrc == nil {
		m.setNotice("market data is not configured", true)
		return nil
	}
	m.showMarket = !m.showMarket
	m.layout()
	m.refreshViewport()
	if !m.showMarket {
		m.stopMarketStream()
		return nil
	}
	return m.fetchMarketCmd()
}

func (m *Model) stopMarketStream() {
	if m.stopStream != nil {
		m.stopStream()
		m.stopStream = nil
	}
	m.stream = nil
	m.marketLive = false
}

// =============================================================================
// LAYOUT
// =============================================================================

// layout sizes the viewport to what the header, market panel, input and
// status bar leave over.
func (m *Model) layout() {
	m.theme.Width, m.theme.Height = m.width, m.height
	m.statusBar.Width = m.width
	m.input.Width = max(m.width-6, 10)
	m.editor.SetWidth(max(m.width-4, 20))
	m.editor.SetHeight(max(m.height-8, 5))

	chrome := lipgloss.Height(m.renderHeader()) +
		lipgloss.Height(m.renderInput()) +
		lipgloss.Height(m.statusBar.View())
	if m.showMarket {
		chrome += lipgloss.Height(m.marketPanel().Render(m.theme))
	}

	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-chrome, 3)
}

// updateStatusBar copies turn and reveal state into the status bar.
func (m *Model) updateStatusBar() {
	sb := m.statusBar
	sb.Confirm = m.seq.Config().Mode == turn.ModeConfirm
	sb.Spinner = m.spinner.View()
	sb.RevealPercent = -1

	switch {
	case m.noticeErr && m.notice != "":
		sb.Status = components.StatusError
	case m.busy || m.fetching || m.seq.IsLoading():
		sb.Status = components.StatusWorking
	default:
		if p, ok := m.reveal.Progress(); ok {
			sb.Status = components.StatusRevealing
			sb.RevealPercent = p * 100
		} else if m.seq.State() == turn.StateAwaitingConfirmation {
			sb.Status = components.StatusAwaiting
		} else {
			sb.Status = components.StatusReady
		}
	}
	sb.Notice = m.notice

	sb.Symbol, sb.Price = "", ""
	if sum, ok := market.Summarize(m.cfg.Market.Symbol, m.cfg.Market.Interval, m.candles); ok {
		sb.Symbol = sum.Symbol
		sb.Price = util.FormatAmount(sum.LastPrice)
	}
}
