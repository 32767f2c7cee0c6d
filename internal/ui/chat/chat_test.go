// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/stratchat/internal/backend"
	"github.com/jeranaias/stratchat/internal/config"
	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/storage"
	"github.com/jeranaias/stratchat/internal/turn"
	"github.com/jeranaias/stratchat/internal/ui/components"
	"github.com/jeranaias/stratchat/internal/ui/styles"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const testStrategy = "RSI가 30 이하일 때 매수하고, RSI가 70 이상일 때 매도한다."

type fakeBackend struct {
	mu    sync.Mutex
	calls []string
	codes []string

	result  *model.BacktestResult
	candles []model.Candle
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		result: &model.BacktestResult{
			TotalReturn: 8.5, NumTrades: 25, WinRate: 60, MaxDrawdown: 4.1, ProfitLossRatio: 1.7,
			TradeHistory: sampleTrades(25),
			EquityCurve:  model.EquityCurve{Labels: []string{"01-01", "03-31"}, Values: []float64{10000, 10850}},
		},
		candles: sampleCandles(30),
	}
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) ConfirmStrategy(ctx context.Context, strategy string, p model.Params) (*model.StrategyAnalysis, error) {
	f.record("confirm-strategy")
	return &model.StrategyAnalysis{Indicators: []string{"RSI"}, EntryConditions: "RSI < 30", ExitConditions: "RSI > 70"}, nil
}

func (f *fakeBackend) PrepareData(ctx context.Context, strategy string, p model.Params) (*model.DataPreparation, error) {
	f.record("prepare-data")
	return &model.DataPreparation{FileSaved: "btc_1h.csv", Rows: 2160}, nil
}

func (f *fakeBackend) GenerateCode(ctx context.Context, strategy string, p model.Params) (string, error) {
	f.record("generate-code")
	return "class Rsi(bt.Strategy):\n    pass\n", nil
}

func (f *fakeBackend) RunBacktest(ctx context.Context, code string, p model.Params) (*model.BacktestResult, error) {
	f.record("run-backtest")
	f.mu.Lock()
	f.codes = append(f.codes, code)
	f.mu.Unlock()
	return f.result, nil
}

func (f *fakeBackend) FetchData(ctx context.Context, req backend.FetchDataRequest) (*backend.FetchDataResult, error) {
	f.record("fetch-data")
	return &backend.FetchDataResult{Candles: f.candles}, nil
}

// memSessions is an in-memory SessionStore.
type memSessions struct {
	mu    sync.Mutex
	order []string
	byID  map[string]*storage.Session
}

func newMemSessions() *memSessions {
	return &memSessions{byID: make(map[string]*storage.Session)}
}

func (s *memSessions) Save(ctx context.Context, sess *storage.Session) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[sess.ID]; !ok {
		s.order = append([]string{sess.ID}, s.order...)
	}
	c := *sess
	s.byID[sess.ID] = &c
	return sess.ID, nil
}

func (s *memSessions) Load(ctx context.Context, id string) (*storage.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	c := *sess
	return &c, nil
}

func (s *memSessions) Resolve(ctx context.Context, prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if strings.HasPrefix(id, prefix) {
			return id, nil
		}
	}
	return "", storage.ErrSessionNotFound
}

func (s *memSessions) LoadByIndex(ctx context.Context, index int) (*storage.Session, error) {
	s.mu.Lock()
	if index < 0 || index >= len(s.order) {
		s.mu.Unlock()
		return nil, storage.ErrSessionNotFound
	}
	id := s.order[index]
	s.mu.Unlock()
	return s.Load(ctx, id)
}

func (s *memSessions) List(ctx context.Context) ([]storage.SessionMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	metas := make([]storage.SessionMeta, 0, len(s.order))
	for _, id := range s.order {
		metas = append(metas, storage.SessionMeta{ID: id, Summary: "session " + id[:4]})
	}
	return metas, nil
}

func (s *memSessions) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func sampleTrades(n int) []model.Trade {
	trades := make([]model.Trade, n)
	for i := range trades {
		trades[i] = model.Trade{
			EntryDate:  time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC).Format(model.DateLayout),
			ExitDate:   time.Date(2024, 1, 2+i, 0, 0, 0, 0, time.UTC).Format(model.DateLayout),
			EntryPrice: 42000,
			ExitPrice:  42000 + float64(i*10),
			PnL:        float64(i*10 - 50),
			PnLPct:     float64(i-5) / 1000,
		}
	}
	return trades
}

func sampleCandles(n int) []model.Candle {
	candles := make([]model.Candle, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		open := 42000 + float64(i*5)
		candles[i] = model.Candle{
			Time: start.Add(time.Duration(i) * time.Hour),
			Open: open, High: open + 20, Low: open - 20, Close: open + 5, Volume: 10,
		}
	}
	return candles
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Reveal.TextIntervalMs = 1
	cfg.Reveal.CodeIntervalMs = 1
	cfg.UI.Markdown = false
	cfg.UI.ShowMarket = false
	cfg.UI.PageSize = 10
	return cfg
}

func newTestModel(t *testing.T, b *fakeBackend, sessions SessionStore) Model {
	t.Helper()
	theme := styles.NewTheme("dark")
	theme.ColorProfile = termenv.Ascii
	m := New(theme, Options{Config: testConfig(), Backend: b, Sessions: sessions})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m = next.(Model)
	t.Cleanup(m.Close)
	return m
}

// submit types text, presses Enter, runs the resulting turn and feeds the
// result back. It returns the command produced by the finished turn.
func submit(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd, "submit should start a turn")
	assert.True(t, m.busy)
	next, cmd = m.Update(cmd())
	return next.(Model), cmd
}

// command runs a slash command and returns the model and its command.
func command(t *testing.T, m Model, line string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(line)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

// runBacktest drives a confirm-mode turn to a finished backtest.
func runBacktest(t *testing.T, m Model) Model {
	t.Helper()
	m, _ = submit(t, m, testStrategy)
	require.Equal(t, turn.StateAwaitingConfirmation, m.seq.State())
	m, _ = submit(t, m, "진행")

	next, _ := m.Update(WaitForBacktest(m.backtests)())
	return next.(Model)
}

// =============================================================================
// MODEL
// =============================================================================

func TestNew_StartsWithWelcome(t *testing.T) {
	m := newTestModel(t, newFakeBackend(), nil)

	msgs := m.Store().Snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleAssistant, msgs[0].Role)
	assert.Equal(t, turn.WelcomeText, msgs[0].Content)
	assert.NotEmpty(t, m.SessionID())
	assert.Equal(t, model.DefaultParams(), m.Sequencer().Params())
}

func TestSubmit_ConfirmFlowRunsBacktestAndSaves(t *testing.T) {
	b := newFakeBackend()
	sessions := newMemSessions()
	m := newTestModel(t, b, sessions)

	m, _ = submit(t, m, testStrategy)
	assert.False(t, m.busy)
	assert.Equal(t, []string{"confirm-strategy"}, b.callLog())

	m, save := submit(t, m, "진행")
	assert.Equal(t, []string{"confirm-strategy", "prepare-data", "generate-code", "run-backtest"}, b.callLog())

	next, _ := m.Update(WaitForBacktest(m.backtests)())
	m = next.(Model)
	require.NotNil(t, m.lastResult)
	assert.Equal(t, 25, m.lastResult.NumTrades)

	require.NotNil(t, save)
	saved, ok := save().(SessionSavedMsg)
	require.True(t, ok)
	require.NoError(t, saved.Err)
	assert.Equal(t, m.SessionID(), saved.ID)
	assert.Equal(t, 1, sessions.count())
}

func TestSubmit_WhileBusyIsRefused(t *testing.T) {
	m := newTestModel(t, newFakeBackend(), nil)
	m.busy = true

	m, cmd := command(t, m, testStrategy)
	assert.Nil(t, cmd)
	assert.True(t, m.noticeErr)
	assert.Equal(t, 1, m.Store().Len())
}

func TestSubmit_EmptyInputIgnored(t *testing.T) {
	m := newTestModel(t, newFakeBackend(), nil)
	m, cmd := command(t, m, "   ")
	assert.Nil(t, cmd)
	assert.False(t, m.busy)
	assert.Equal(t, 1, m.Store().Len())
}

func TestEsc_FinishesReveal(t *testing.T) {
	m := newTestModel(t, newFakeBackend(), nil)

	m, _ = command(t, m, "/guide")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)

	last, ok := m.Store().Last(func(model.Message) bool { return true })
	require.True(t, ok)
	assert.Equal(t, turn.GuideText(), last.Content)
	assert.False(t, last.IsRevealing)
}

// =============================================================================
// COMMANDS
// =============================================================================

func TestHandleCommand_Unknown(t *testing.T) {
	m := newTestModel(t, newFakeBackend(), nil)
	m, cmd := command(t, m, "/bogus")
	assert.Nil(t, cmd)
	assert.True(t, m.noticeErr)
	assert.Contains(t, m.notice, "/help")
}

func TestSetCommand(t *testing.T) {
	m := newTestModel(t, newFakeBackend(), nil)

	m, _ = command(t, m, "/set capital 5000")
	assert.False(t, m.noticeErr, m.notice)
	assert.Equal(t, 5000.0, m.seq.Params().Capital)

	m, _ = command(t, m, "/set timeframe 4h")
	assert.Equal(t, "4h", m.seq.Params().Timeframe)

	m, _ = command(t, m, "/set capital")
	assert.True(t, m.noticeErr)
	assert.Contains(t, m.notice, "usage")

	m, _ = command(t, m, "/set end_date 2023-01-01")
	assert.True(t, m.noticeErr)
	assert.Equal(t, model.DefaultParams().EndDate, m.seq.Params().EndDate)
}

func TestModeCommand(t *testing.T) {
	m := newTestModel(t, newFakeBackend(), nil)

	m, _ = command(t, m, "/mode simple")
	assert.Equal(t, turn.ModeSimple, m.seq.Config().Mode)

	m, _ = command(t, m, "/mode fast")
	assert.True(t, m.noticeErr)
	assert.Equal(t, turn.ModeSimple, m.seq.Config().Mode)

	m, _ = command(t, m, "/mode")
	assert.Equal(t, "mode: simple", m.notice)
}

func TestTradesCommand(t *testing.T) {
	m := newTestModel(t, newFakeBackend(), nil)

	m, _ = command(t, m, "/trades")
	assert.True(t, m.noticeErr)
	assert.Equal(t, overlayNone, m.overlay)

	m = runBacktest(t, m)
	m, _ = command(t, m, "/trades 2 sort pnl desc")
	require.Equal(t, overlayPanel, m.overlay, m.notice)
	assert.Equal(t, "Trades", m.panelTitle)
	assert.Contains(t, m.panel, "page 2/3")
	assert.Contains(t, m.panel, "sorted by pnl desc")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, overlayNone, next.(Model).overlay)

	m, _ = command(t, m, "/trades sort nope")
	assert.True(t, m.noticeErr)
	assert.Contains(t, m.notice, "unknown column")
}

func TestParseTableArgs(t *testing.T) {
	tests := []struct {
		args    string
		want    tableArgs
		wantErr bool
	}{
		{"", tableArgs{page: 1}, false},
		{"3", tableArgs{page: 3}, false},
		{"sort close", tableArgs{page: 1, sortKey: "close"}, false},
		{"2 sort PnL desc", tableArgs{page: 2, sortKey: "pnl", desc: true}, false},
		{"sort volume asc 4", tableArgs{page: 4, sortKey: "volume"}, false},
		{"sort", tableArgs{}, true},
		{"0", tableArgs{}, true},
		{"abc", tableArgs{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			got, err := parseTableArgs(strings.Fields(tt.args))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDataAndCandlesCommands(t *testing.T) {
	b := newFakeBackend()
	m := newTestModel(t, b, nil)

	m, cmd := command(t, m, "/data 2024-01-05 2024-01-01")
	assert.Nil(t, cmd)
	assert.True(t, m.noticeErr)

	m, cmd = command(t, m, "/data 2024-01-01 2024-01-03 500")
	require.NotNil(t, cmd)
	assert.True(t, m.fetching)

	fetched, ok := cmd().(DataFetchedMsg)
	require.True(t, ok)
	assert.Equal(t, 500, fetched.Request.MaxDataPoints)
	assert.Equal(t, "1h", fetched.Request.Timeframe)

	next, _ := m.Update(fetched)
	m = next.(Model)
	assert.False(t, m.fetching)
	assert.Len(t, m.lastCandles, 30)

	last, ok := m.Store().Last(func(msg model.Message) bool { return msg.Payload != nil })
	require.True(t, ok)
	stats, ok := last.Payload.(*model.PriceStats)
	require.True(t, ok)
	assert.Equal(t, 30, stats.DataPoints)

	m, _ = command(t, m, "/candles 3 sort close desc")
	require.Equal(t, overlayPanel, m.overlay, m.notice)
	assert.Contains(t, m.panel, "page 3/3")
}

func TestCandlesCommand_WithoutData(t *testing.T) {
	m := newTestModel(t, newFakeBackend(), nil)
	m, _ = command(t, m, "/candles")
	assert.True(t, m.noticeErr)
	assert.Contains(t, m.notice, "/data")
}

func TestParamsCommand(t *testing.T) {
	m := newTestModel(t, newFakeBackend(), nil)

	m, _ = command(t, m, "/params show")
	require.Equal(t, overlayPanel, m.overlay)
	assert.Contains(t, m.panel, "capital")
	assert.Contains(t, m.panel, "timeframe")

	m.overlay = overlayNone
	m, _ = command(t, m, "/params")
	require.Equal(t, overlayParams, m.overlay)

	p := m.seq.Params()
	p.Capital = 2500
	next, _ := m.Update(components.ParamsSubmittedMsg{Params: p})
	m = next.(Model)
	assert.Equal(t, overlayNone, m.overlay)
	assert.Equal(t, 2500.0, m.seq.Params().Capital)
}

func TestEditAndRerun(t *testing.T) {
	b := newFakeBackend()
	m := newTestModel(t, b, nil)

	m, _ = command(t, m, "/edit")
	assert.True(t, m.noticeErr, "no code yet")

	m = runBacktest(t, m)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlE})
	m = next.(Model)
	require.Equal(t, overlayEdit, m.overlay)
	assert.Equal(t, m.seq.LastCode(), m.editor.Value())

	m.editor.SetValue("class Edited(bt.Strategy):\n    pass\n")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.Equal(t, overlayNone, m.overlay)

	done, ok := cmd().(TurnDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.Err)

	b.mu.Lock()
	codes := append([]string(nil), b.codes...)
	b.mu.Unlock()
	require.Len(t, codes, 2)
	assert.Equal(t, "class Edited(bt.Strategy):\n    pass\n", codes[1])
	assert.Equal(t, "class Edited(bt.Strategy):\n    pass\n", m.seq.LastCode())
}

// =============================================================================
// SESSIONS
// =============================================================================

func TestClearCommand_SavesAndResets(t *testing.T) {
	sessions := newMemSessions()
	m := newTestModel(t, newFakeBackend(), sessions)
	m, _ = submit(t, m, testStrategy)
	oldID := m.SessionID()

	m, save := command(t, m, "/clear")
	require.NotNil(t, save)
	_, ok := save().(SessionSavedMsg)
	require.True(t, ok)

	assert.Equal(t, 1, sessions.count())
	assert.NotEqual(t, oldID, m.SessionID())
	assert.Equal(t, 1, m.Store().Len())
	assert.Equal(t, turn.StateReady, m.seq.State())
}

func TestClearCommand_NothingToSave(t *testing.T) {
	sessions := newMemSessions()
	m := newTestModel(t, newFakeBackend(), sessions)
	_, save := command(t, m, "/clear")
	assert.Nil(t, save)
}

func TestHistoryAndResume(t *testing.T) {
	sessions := newMemSessions()
	saved := &storage.Session{
		ID:       "abcd1234-0000-0000-0000-000000000000",
		Mode:     "simple",
		Params:   model.DefaultParams(),
		LastCode: "print(1)",
		Messages: []model.Message{
			model.NewUserMessage(testStrategy),
			func() model.Message {
				msg := model.NewAssistantMessage("done")
				msg.Payload = &model.BacktestResult{NumTrades: 3}
				return msg
			}(),
		},
	}
	saved.Params.Capital = 777
	_, err := sessions.Save(context.Background(), saved)
	require.NoError(t, err)

	m := newTestModel(t, newFakeBackend(), sessions)

	m, cmd := command(t, m, "/history")
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	m = next.(Model)
	require.Equal(t, overlayPanel, m.overlay)
	assert.Contains(t, m.panel, "abcd1234")

	for _, ref := range []string{"1", "abcd"} {
		t.Run(ref, func(t *testing.T) {
			m := newTestModel(t, newFakeBackend(), sessions)
			m, cmd := command(t, m, "/resume "+ref)
			require.NotNil(t, cmd)
			next, _ := m.Update(cmd())
			m = next.(Model)

			assert.Equal(t, saved.ID, m.SessionID())
			assert.Equal(t, 777.0, m.seq.Params().Capital)
			assert.Equal(t, "print(1)", m.seq.LastCode())
			assert.Equal(t, turn.ModeSimple, m.seq.Config().Mode)
			assert.Equal(t, 2, m.Store().Len())
			require.NotNil(t, m.lastResult)
			assert.Equal(t, 3, m.lastResult.NumTrades)
		})
	}

	m, cmd = command(t, m, "/resume zzzz")
	require.NotNil(t, cmd)
	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.True(t, m.noticeErr)
	assert.Equal(t, "session not found", m.notice)
}

func TestHistory_Disabled(t *testing.T) {
	m := newTestModel(t, newFakeBackend(), nil)
	m, cmd := command(t, m, "/history")
	assert.Nil(t, cmd)
	assert.Contains(t, m.notice, "disabled")
}

// =============================================================================
// CONFIG RELOAD
// =============================================================================

func TestConfigReload(t *testing.T) {
	m := newTestModel(t, newFakeBackend(), nil)

	cfg := testConfig()
	cfg.Reveal.TextIntervalMs = 7
	cfg.Turn.Mode = "simple"
	next, _ := m.Update(ConfigReloadMsg{Reload: config.Reload{Config: cfg}})
	m = next.(Model)

	assert.Equal(t, 7*time.Millisecond, m.reveal.Config().TextInterval)
	assert.Equal(t, turn.ModeSimple, m.seq.Config().Mode)
	assert.Equal(t, "config reloaded", m.notice)

	next, _ = m.Update(ConfigReloadMsg{Reload: config.Reload{Err: fmt.Errorf("bad toml")}})
	m = next.(Model)
	assert.True(t, m.noticeErr)
	assert.Equal(t, 7*time.Millisecond, m.reveal.Config().TextInterval)
}

// =============================================================================
// VIEW
// =============================================================================

func TestView(t *testing.T) {
	m := newTestModel(t, newFakeBackend(), nil)

	view := m.View()
	assert.Contains(t, view, "stratchat")
	assert.Contains(t, view, "Assistant")
	assert.Contains(t, view, "CONFIRM")

	m, _ = command(t, m, "/help")
	require.Equal(t, overlayHelp, m.overlay)
	help := m.View()
	assert.Contains(t, help, "/resume")
	assert.Contains(t, help, "toggle market panel")
}

func TestView_AwaitingConfirmationHint(t *testing.T) {
	m := newTestModel(t, newFakeBackend(), nil)
	m, _ = submit(t, m, testStrategy)
	assert.Contains(t, m.View(), "진행")
}
