// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/jeranaias/stratchat/internal/backend"
	"github.com/jeranaias/stratchat/internal/config"
	"github.com/jeranaias/stratchat/internal/market"
	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/reveal"
	"github.com/jeranaias/stratchat/internal/storage"
	"github.com/jeranaias/stratchat/internal/turn"
	"github.com/jeranaias/stratchat/internal/ui/components"
	"github.com/jeranaias/stratchat/internal/ui/styles"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Backend is the strategy service as seen by the chat view.
type Backend interface {
	turn.Backend
	FetchData(ctx context.Context, req backend.FetchDataRequest) (*backend.FetchDataResult, error)
}

// MarketSource loads klines for the market panel.
type MarketSource interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error)
}

// SessionStore persists conversations.
type SessionStore interface {
	Save(ctx context.Context, sess *storage.Session) (string, error)
	Load(ctx context.Context, id string) (*storage.Session, error)
	Resolve(ctx context.Context, prefix string) (string, error)
	LoadByIndex(ctx context.Context, index int) (*storage.Session, error)
	List(ctx context.Context) ([]storage.SessionMeta, error)
}

// Options wires the chat view. Only Config and Backend are required.
type Options struct {
	Config   *config.Config
	Backend  Backend
	Market   MarketSource
	Sessions SessionStore
	Watcher  *config.Watcher
	// Resume loads this saved conversation (list number or id prefix)
	// on start.
	Resume string
}

// =============================================================================
// CHAT MODEL
// =============================================================================

type overlay int

const (
	overlayNone overlay = iota
	overlayHelp
	overlayPanel
	overlayParams
	overlayEdit
)

// sessionSaver serializes autosaves of the conversation.
type sessionSaver struct {
	mu    sync.Mutex
	store SessionStore
}

func (s *sessionSaver) save(ctx context.Context, sess *storage.Session) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Save(ctx, sess)
}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg   *config.Config
	theme *styles.Theme

	// Dimensions
	width  int
	height int

	// Conversation
	store     *model.Store
	reveal    *reveal.Controller
	seq       *turn.Sequencer
	backend   Backend
	backtests chan turn.Result

	// Persistence
	sessions  SessionStore
	saver     *sessionSaver
	sessionID string
	resume    string

	watcher *config.Watcher

	// UI components
	viewport  viewport.Model
	input     textinput.Model
	editor    textarea.Model
	spinner   spinner.Model
	keyMap    KeyMap
	messages  *components.MessageList
	statusBar *components.StatusBar

	overlay    overlay
	panelTitle string
	panel      string
	paramsForm components.ParamsForm

	busy      bool
	fetching  bool
	notice    string
	noticeErr bool

	// Market panel
	marketSrc  MarketSource
	showMarket bool
	candles    []model.Candle
	marketLive bool
	marketErr  error
	stream     *market.Stream
	stopStream context.CancelFunc

	lastResult  *model.BacktestResult
	lastCandles []model.Candle
}

// New creates the chat model. The conversation starts with the welcome
// message.
func New(theme *styles.Theme, opts Options) Model {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	store := model.NewStore()
	ctrl := reveal.NewController(store, cfg.RevealSettings())
	seq := turn.New(store, opts.Backend, ctrl, cfg.TurnSettings())
	seq.SetParams(cfg.Defaults)

	// OnBacktest runs on the turn goroutine; never block it.
	backtests := make(chan turn.Result, 8)
	seq.OnBacktest(func(r turn.Result) {
		select {
		case backtests <- r:
		default:
		}
	})

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "트레이딩 전략을 입력하세요 (/help 도움말)"
	ti.CharLimit = 4096
	ti.Focus()

	editor := textarea.New()
	editor.ShowLineNumbers = true
	editor.CharLimit = 0
	editor.MaxHeight = 0

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: styles.LineSpinner.Frames,
		FPS:    styles.LineSpinner.Duration(),
	}

	messages := components.NewMessageList(theme)
	if cfg.UI.Markdown {
		messages.SetMarkdown(components.NewMarkdownRenderer(theme.IsDark))
	}

	m := Model{
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
		theme:      theme,
		width:      80,
		height:     24,
		store:      store,
		reveal:     ctrl,
		seq:        seq,
		backend:    opts.Backend,
		backtests:  backtests,
		sessions:   opts.Sessions,
		sessionID:  uuid.NewString(),
		resume:     opts.Resume,
		watcher:    opts.Watcher,
		viewport:   vp,
		input:      ti,
		editor:     editor,
		spinner:    sp,
		keyMap:     DefaultKeyMap(),
		messages:   messages,
		statusBar:  components.NewStatusBar(theme),
		marketSrc:  opts.Market,
		showMarket: cfg.UI.ShowMarket && opts.Market != nil,
	}
	if opts.Sessions != nil {
		m.saver = &sessionSaver{store: opts.Sessions}
	}

	store.Append(model.NewAssistantMessage(turn.WelcomeText))
	m.layout()
	m.refreshViewport()
	return m
}

// Init starts the background listeners.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		m.spinner.Tick,
		WaitForStore(m.store),
		WaitForBacktest(m.backtests),
	}
	if m.watcher != nil {
		cmds = append(cmds, WaitForReload(m.watcher))
	}
	if m.showMarket {
		cmds = append(cmds, m.fetchMarketCmd())
	}
	if m.resume != "" && m.sessions != nil && !m.cfg.Storage.Disabled {
		cmds = append(cmds, LoadSessionCmd(m.ctx, m.sessions, m.resume))
	}
	return tea.Batch(cmds...)
}

// Store returns the conversation store.
func (m Model) Store() *model.Store { return m.store }

// Sequencer returns the turn sequencer.
func (m Model) Sequencer() *turn.Sequencer { return m.seq }

// Reveal returns the typing animation controller.
func (m Model) Reveal() *reveal.Controller { return m.reveal }

// SessionID returns the id the conversation is saved under.
func (m Model) SessionID() string { return m.sessionID }

// Close stops background work. Pending reveals are abandoned.
func (m Model) Close() {
	if m.stopStream != nil {
		m.stopStream()
	}
	m.cancel()
	m.reveal.Close()
}

// =============================================================================
// HELPERS
// =============================================================================

// refreshViewport re-renders the conversation, following the bottom when
// the user has not scrolled up.
func (m *Model) refreshViewport() {
	atBottom := m.viewport.AtBottom()
	m.messages.Width = m.viewport.Width
	m.messages.Spinner = m.spinner.View()
	m.viewport.SetContent(m.messages.Render(m.store.Snapshot()))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// animating reports whether the conversation view changes on every frame.
func (m *Model) animating() bool {
	if m.busy || m.fetching {
		return true
	}
	_, ok := m.reveal.Active()
	return ok
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeErr = isErr
}

// session builds the persisted form of the conversation.
func (m *Model) session() *storage.Session {
	return &storage.Session{
		ID:       m.sessionID,
		Mode:     string(m.seq.Config().Mode),
		Params:   m.seq.Params(),
		LastCode: m.seq.LastCode(),
		Messages: m.store.Snapshot(),
	}
}

// hasUserMessages reports whether the conversation is worth saving.
func (m *Model) hasUserMessages() bool {
	_, ok := m.store.Last(func(msg model.Message) bool { return msg.Role == model.RoleUser })
	return ok
}

// =============================================================================
// SESSION
// =============================================================================

// applySession replaces the conversation with a saved one.
func (m *Model) applySession(sess *storage.Session) {
	m.reveal.Finish()
	m.store.Load(sess.Messages)
	m.seq.Restore(sess.Params, sess.LastCode)
	if mode, err := turn.ParseMode(sess.Mode); err == nil {
		m.seq.SetMode(mode)
	}
	m.sessionID = sess.ID

	m.lastResult = nil
	if msg, ok := m.store.Last(func(msg model.Message) bool {
		_, isBacktest := msg.Payload.(*model.BacktestResult)
		return isBacktest
	}); ok {
		m.lastResult = msg.Payload.(*model.BacktestResult)
	}
	m.refreshViewport()
	m.viewport.GotoBottom()
}

// reset starts a fresh conversation.
func (m *Model) reset() {
	m.reveal.Finish()
	m.store.Clear()
	m.seq.Reset()
	m.sessionID = uuid.NewString()
	m.lastResult = nil
	m.store.Append(model.NewAssistantMessage(turn.WelcomeText))
	m.refreshViewport()
}

// =============================================================================
// CONFIG RELOAD
// =============================================================================

// applyConfig applies a reloaded configuration. Reveal and turn settings
// take effect for the next animation and input.
func (m *Model) applyConfig(cfg *config.Config) {
	m.cfg = cfg
	m.reveal.SetConfig(cfg.RevealSettings())
	m.seq.SetConfig(cfg.TurnSettings())

	if cfg.UI.Markdown {
		m.messages.SetMarkdown(components.NewMarkdownRenderer(m.theme.IsDark))
	} else {
		m.messages.SetMarkdown(nil)
	}
	m.showMarket = cfg.UI.ShowMarket && m.marketSrc != nil
	m.layout()
	m.refreshViewport()
}

// =============================================================================
// MARKET
// =============================================================================

// marketPanel builds the panel for the current candles.
func (m *Model) marketPanel() components.MarketPanel {
	return components.MarketPanel{
		Symbol:   m.cfg.Market.Symbol,
		Interval: m.cfg.Market.Interval,
		Candles:  m.candles,
		Live:     m.marketLive,
		Err:      m.marketErr,
		Width:    m.width,
	}
}

func (m *Model) applyMarketUpdate(u market.Update) {
	m.candles = market.Merge(m.candles, u.Candle, m.cfg.Market.Limit)
	m.marketErr = nil
}
