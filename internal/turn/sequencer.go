// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package turn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/stratchat/internal/backend"
	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/reveal"
)

// =============================================================================
// INTERFACES
// =============================================================================

// Backend is the strategy/backtest service.
type Backend interface {
	ConfirmStrategy(ctx context.Context, strategy string, p model.Params) (*model.StrategyAnalysis, error)
	PrepareData(ctx context.Context, strategy string, p model.Params) (*model.DataPreparation, error)
	GenerateCode(ctx context.Context, strategy string, p model.Params) (string, error)
	RunBacktest(ctx context.Context, code string, p model.Params) (*model.BacktestResult, error)
}

// Revealer animates a message into the store.
type Revealer interface {
	Reveal(targetID uint64, text, code string, opts ...reveal.Option) <-chan struct{}
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Mode selects the turn flow.
type Mode string

const (
	ModeSimple  Mode = "simple"
	ModeConfirm Mode = "confirm"
)

// ParseMode converts a config or command string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSimple:
		return ModeSimple, nil
	case ModeConfirm:
		return ModeConfirm, nil
	}
	return "", fmt.Errorf("unknown mode %q (want simple or confirm)", s)
}

// DefaultCallTimeout bounds each backend call of a turn.
const DefaultCallTimeout = 3 * time.Minute

// Config controls turn behavior.
type Config struct {
	Mode              Mode
	AffirmativeTokens []string
	TradingKeywords   []string
	GuardNonTrading   bool
	CallTimeout       time.Duration
}

// DefaultConfig returns the confirm flow with the default token sets.
func DefaultConfig() Config {
	return Config{
		Mode:              ModeConfirm,
		AffirmativeTokens: DefaultAffirmativeTokens,
		TradingKeywords:   DefaultTradingKeywords,
		GuardNonTrading:   true,
		CallTimeout:       DefaultCallTimeout,
	}
}

// =============================================================================
// STATE
// =============================================================================

// State is where the sequencer is between turns.
type State int

const (
	// StateReady accepts a new strategy.
	StateReady State = iota
	// StateAwaitingConfirmation treats the next input as a yes/no reply.
	StateAwaitingConfirmation
)

// String returns the string representation of the state.
func (s State) String() string {
	if s == StateAwaitingConfirmation {
		return "awaiting-confirmation"
	}
	return "ready"
}

// Result is a finished backtest as seen by observers.
type Result struct {
	Strategy string
	Params   model.Params
	Backtest *model.BacktestResult
	Code     string
	Edited   bool
}

// Errors returned to callers. Backend failures are never returned: they
// end up as error messages in the store.
var (
	ErrTurnInFlight = errors.New("a turn is already in progress")
	ErrEmptyInput   = errors.New("empty input")
	ErrNoCode       = errors.New("no code to run")
)

// =============================================================================
// SEQUENCER
// =============================================================================

// Sequencer runs turns against a backend, writing to a store.
type Sequencer struct {
	store    *model.Store
	backend  Backend
	revealer Revealer

	loading atomic.Bool

	mu          sync.Mutex
	cfg         Config
	affirmative *Matcher
	trading     *Matcher
	params      model.Params
	state       State
	strategy    string // pending or last strategy text
	lastCode    string
	observers   []func(Result)
}

// New creates a sequencer.
func New(store *model.Store, backend Backend, revealer Revealer, cfg Config) *Sequencer {
	s := &Sequencer{
		store:    store,
		backend:  backend,
		revealer: revealer,
		params:   model.DefaultParams(),
	}
	s.SetConfig(cfg)
	return s
}

// SetConfig replaces the turn configuration. It takes effect on the next
// input.
func (s *Sequencer) SetConfig(cfg Config) {
	if cfg.Mode == "" {
		cfg.Mode = ModeConfirm
	}
	if len(cfg.AffirmativeTokens) == 0 {
		cfg.AffirmativeTokens = DefaultAffirmativeTokens
	}
	if len(cfg.TradingKeywords) == 0 {
		cfg.TradingKeywords = DefaultTradingKeywords
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.affirmative = NewMatcher(cfg.AffirmativeTokens)
	s.trading = NewMatcher(cfg.TradingKeywords)
}

// Config returns the current configuration.
func (s *Sequencer) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SetMode switches between the simple and confirm flows. A pending
// confirmation is dropped.
func (s *Sequencer) SetMode(mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Mode = mode
	s.state = StateReady
}

// SetParams replaces the backtest parameters used by later calls.
func (s *Sequencer) SetParams(p model.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p
}

// Params returns the current backtest parameters.
func (s *Sequencer) Params() model.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// State returns whether a confirmation reply is expected.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastCode returns the most recently generated or edited code.
func (s *Sequencer) LastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCode
}

// Reset drops any pending confirmation.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateReady
	s.strategy = ""
}

// Restore puts back the parameters and code of a resumed conversation.
func (s *Sequencer) Restore(p model.Params, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p
	s.lastCode = code
	s.state = StateReady
	s.strategy = ""
}

// IsLoading reports whether a turn is in flight.
func (s *Sequencer) IsLoading() bool {
	return s.loading.Load()
}

// OnBacktest registers fn to be called after every successful backtest.
func (s *Sequencer) OnBacktest(fn func(Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Sequencer) notify(r Result) {
	s.mu.Lock()
	observers := slices.Clone(s.observers)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(r)
	}
}

// begin claims the single in-flight slot.
func (s *Sequencer) begin() error {
	if !s.loading.CompareAndSwap(false, true) {
		return ErrTurnInFlight
	}
	return nil
}

// =============================================================================
// TURNS
// =============================================================================

// Submit handles one user input. It returns an error only when the input is
// refused (empty, or another turn is running); backend failures are turned
// into error messages.
func (s *Sequencer) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	if err := s.begin(); err != nil {
		return err
	}
	defer s.loading.Store(false)

	s.mu.Lock()
	state, cfg := s.state, s.cfg
	guard := cfg.GuardNonTrading && !s.trading.Match(text)
	s.mu.Unlock()

	if state == StateAwaitingConfirmation {
		s.confirm(ctx, text)
		return nil
	}

	s.store.Append(model.NewUserMessage(text))

	if guard {
		s.revealNew(model.RoleAssistant, NotTradingText, "")
		return nil
	}

	switch cfg.Mode {
	case ModeSimple:
		s.runSimple(ctx, text)
	default:
		s.runAnalysis(ctx, text)
	}
	return nil
}

// runSimple generates code in one call.
func (s *Sequencer) runSimple(ctx context.Context, strategy string) {
	s.store.Append(model.NewLoadingMessage(GeneratingText))

	code, err := callWithTimeout(ctx, s.Config().CallTimeout, func(ctx context.Context) (string, error) {
		return s.backend.GenerateCode(ctx, strategy, s.Params())
	})
	if err != nil {
		s.fail("generate-code", err, GenerateErrorText)
		return
	}

	s.mu.Lock()
	s.strategy = strategy
	s.lastCode = code
	s.mu.Unlock()

	s.store.RemoveLoading()
	s.revealNew(model.RoleAssistant, CodeReadyText, code)
}

// runAnalysis asks the backend to analyze the strategy and waits for a
// confirmation reply.
func (s *Sequencer) runAnalysis(ctx context.Context, strategy string) {
	s.store.Append(model.NewLoadingMessage(AnalyzingText))

	params := s.Params()
	analysis, err := callWithTimeout(ctx, s.Config().CallTimeout, func(ctx context.Context) (*model.StrategyAnalysis, error) {
		return s.backend.ConfirmStrategy(ctx, strategy, params)
	})
	if err != nil {
		s.fail("confirm-strategy", err, AnalyzeErrorText)
		return
	}

	s.mu.Lock()
	s.strategy = strategy
	s.state = StateAwaitingConfirmation
	s.mu.Unlock()

	s.store.RemoveLoading()
	s.revealNew(model.RoleAssistant, FormatConfirmation(analysis, params), "", reveal.WithPayload(analysis))
}

// confirm handles the reply to an analysis.
func (s *Sequencer) confirm(ctx context.Context, reply string) {
	s.store.Append(model.NewUserMessage(reply))

	s.mu.Lock()
	accepted := s.affirmative.Match(reply)
	strategy := s.strategy
	s.state = StateReady
	s.mu.Unlock()

	if !accepted {
		s.store.Append(model.NewAssistantMessage(CancelledText))
		return
	}

	timeout := s.Config().CallTimeout

	s.store.Append(model.NewLoadingMessage(PreparingText))
	prep, err := callWithTimeout(ctx, timeout, func(ctx context.Context) (*model.DataPreparation, error) {
		return s.backend.PrepareData(ctx, strategy, s.Params())
	})
	if err != nil {
		s.fail("prepare-data", err, BacktestErrorText)
		return
	}

	s.store.RemoveLoading()
	ready := model.NewAssistantMessage(FormatDataReady(prep))
	ready.Payload = prep
	s.store.Append(ready)

	s.store.Append(model.NewLoadingMessage(BacktestStartText))

	code, err := callWithTimeout(ctx, timeout, func(ctx context.Context) (string, error) {
		return s.backend.GenerateCode(ctx, strategy, s.Params())
	})
	if err != nil {
		s.fail("generate-code", err, BacktestErrorText)
		return
	}

	s.mu.Lock()
	s.lastCode = code
	s.mu.Unlock()

	params := s.Params()
	result, err := callWithTimeout(ctx, timeout, func(ctx context.Context) (*model.BacktestResult, error) {
		return s.backend.RunBacktest(ctx, code, params)
	})
	if err != nil {
		s.fail("run-backtest", err, BacktestErrorText)
		return
	}

	s.store.RemoveLoading()
	s.revealNew(model.RoleAssistant, FormatResult(result), code, reveal.WithPayload(result))

	s.notify(Result{Strategy: strategy, Params: params, Backtest: result, Code: code})
}

// EditAndRerun runs a backtest on edited code and appends the result at
// once, without animation.
func (s *Sequencer) EditAndRerun(ctx context.Context, code string) error {
	if strings.TrimSpace(code) == "" {
		return ErrNoCode
	}
	if err := s.begin(); err != nil {
		return err
	}
	defer s.loading.Store(false)

	s.mu.Lock()
	s.lastCode = code
	s.mu.Unlock()

	s.store.Append(model.NewLoadingMessage(RerunningText))

	params := s.Params()
	result, err := callWithTimeout(ctx, s.Config().CallTimeout, func(ctx context.Context) (*model.BacktestResult, error) {
		return s.backend.RunBacktest(ctx, code, params)
	})

	s.store.RemoveLoading()
	if err != nil {
		log.Printf("turn: run-backtest (edited) failed: %v", err)
		s.store.Append(model.NewMessage(model.RoleError, RerunErrorText))
		return nil
	}

	msg := model.NewAssistantMessage(FormatEditResult(result))
	msg.Code = code
	msg.Payload = result
	s.store.Append(msg)

	s.notify(Result{Strategy: EditedStrategyName, Params: params, Backtest: result, Code: code, Edited: true})
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// revealNew appends a placeholder and starts revealing into it.
func (s *Sequencer) revealNew(role model.Role, text, code string, opts ...reveal.Option) uint64 {
	id := s.store.Append(model.NewPlaceholder(role))
	s.revealer.Reveal(id, text, code, opts...)
	return id
}

// fail clears placeholders and reveals a fixed error message.
func (s *Sequencer) fail(step string, err error, text string) {
	log.Printf("turn: %s failed: %v", step, err)
	if backend.IsValidation(err) {
		text += "\n" + MalformedResponseText
	}
	s.store.RemoveLoading()
	s.revealNew(model.RoleError, text, "")
}

// callWithTimeout runs fn under a deadline derived from ctx.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}
