// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot strategy runs for scripts and pipelines.
//
// Usage:
//
//	stratchat ask "RSI가 30 아래면 매수, 70 위면 매도"
//	echo "strategy" | stratchat ask
//	stratchat ask --mode simple "strategy"     Code only, no backtest
//	stratchat ask --json "strategy"            Result as JSON
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/turn"
)

// maxStdinQuery bounds a strategy read from a pipe.
const maxStdinQuery = 64 * 1024

// AskResult is the --json payload of ask.
type AskResult struct {
	SessionID string                  `json:"session_id,omitempty"`
	Strategy  string                  `json:"strategy"`
	Mode      string                  `json:"mode"`
	Params    model.Params            `json:"params"`
	Analysis  *model.StrategyAnalysis `json:"analysis,omitempty"`
	Code      string                  `json:"code,omitempty"`
	Backtest  *model.BacktestResult   `json:"backtest,omitempty"`
}

// HandleAsk handles the "ask" command.
func HandleAsk(args Args) {
	exitOnError(HandleAskCommand(args))
}

// HandleAskCommand runs one strategy through the sequencer. In confirm mode
// the confirmation is answered automatically.
func HandleAskCommand(args Args) error {
	query := strings.TrimSpace(args.Query)
	if query == "" && !IsTTY() {
		data, err := io.ReadAll(io.LimitReader(os.Stdin, maxStdinQuery))
		if err != nil {
			return fmt.Errorf("read strategy from stdin: %w", err)
		}
		query = strings.TrimSpace(string(data))
	}
	if query == "" {
		return &UsageError{Msg: "no strategy given", Usage: `stratchat ask "strategy"`}
	}

	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	if !args.Verbose {
		if logs, err := RedirectLog(logPathOrEmpty(cfg), false); err == nil {
			defer logs.Close()
		}
	}

	sessions, err := OpenSessions(cfg)
	if err != nil {
		sessions = nil
	}
	if sessions != nil {
		defer sessions.Close()
	}

	out := stdout
	if args.JSON {
		out = io.Discard
	}
	s := newChatSession(cfg, NewBackend(cfg), sessions, out)
	if args.Mode != "" {
		mode, err := turn.ParseMode(args.Mode)
		if err != nil {
			return &ValidationError{Field: "--mode", Value: args.Mode, Reason: "must be simple or confirm"}
		}
		s.seq.SetMode(mode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := runAsk(ctx, s, query)
	if saveErr := s.save(context.Background()); saveErr != nil && !args.Quiet {
		fmt.Fprintf(stderr, "%s could not save conversation: %v\n", WarningStyle.Render("Warning:"), saveErr)
	}
	if err != nil {
		return err
	}
	if sessions != nil {
		result.SessionID = s.id
	}

	if args.JSON {
		return printJSON("ask", result)
	}
	return nil
}

// runAsk submits query and, in confirm mode, the confirmation. It fails
// with ErrTurnFailed when the conversation ends without code or a result.
func runAsk(ctx context.Context, s *chatSession, query string) (*AskResult, error) {
	var mu sync.Mutex
	var backtest *turn.Result
	s.seq.OnBacktest(func(r turn.Result) {
		mu.Lock()
		backtest = &r
		mu.Unlock()
	})

	if err := s.submit(ctx, query); err != nil {
		return nil, err
	}

	mode := s.seq.Config().Mode
	if mode == turn.ModeConfirm {
		if s.seq.State() != turn.StateAwaitingConfirmation {
			return nil, turnFailure(s.store)
		}
		if err := s.submit(ctx, confirmationReply(s.seq.Config())); err != nil {
			return nil, err
		}
	}

	result := &AskResult{
		Strategy: query,
		Mode:     string(mode),
		Params:   s.seq.Params(),
		Code:     s.seq.LastCode(),
		Analysis: lastPayload[*model.StrategyAnalysis](s.store),
	}

	mu.Lock()
	defer mu.Unlock()
	switch {
	case backtest != nil:
		result.Backtest = backtest.Backtest
		result.Code = backtest.Code
	case mode == turn.ModeConfirm || result.Code == "":
		return nil, turnFailure(s.store)
	}
	return result, nil
}

// confirmationReply is the first configured affirmative token.
func confirmationReply(cfg turn.Config) string {
	if tokens := turn.NewMatcher(cfg.AffirmativeTokens).Tokens(); len(tokens) > 0 {
		return tokens[0]
	}
	return turn.DefaultAffirmativeTokens[0]
}

// turnFailure wraps the last assistant or error message into ErrTurnFailed.
func turnFailure(store *model.Store) error {
	last, ok := store.Last(func(m model.Message) bool {
		return m.Role == model.RoleError || m.Role == model.RoleAssistant
	})
	if !ok {
		return ErrTurnFailed
	}
	return fmt.Errorf("%w: %s", ErrTurnFailed, last.Preview(120))
}

// lastPayload returns the newest payload of type T, or the zero T.
func lastPayload[T model.Payload](store *model.Store) T {
	var zero T
	msgs := store.Snapshot()
	for i := len(msgs) - 1; i >= 0; i-- {
		if p, ok := msgs[i].Payload.(T); ok {
			return p
		}
	}
	return zero
}
