// chat.go - Line-mode chat for terminals where the TUI is unwelcome.
//
// Usage:
//
//	stratchat chat                    Start a conversation
//	stratchat chat --mode simple      Generate code without confirmation
//	stratchat chat --resume 3f2a      Continue a saved conversation
//
// Commands (during chat):
//
//	/help            Show available commands
//	/guide           Show the usage guide
//	/params          Show backtest parameters
//	/set KEY VALUE   Change a parameter
//	/mode MODE       simple or confirm
//	/code            Print the last generated code
//	/run [FILE]      Backtest the last code, or the code in FILE
//	/clear           Save and start a new conversation
//	/quit            Save and exit
//	Ctrl+C           Cancel the running turn
//	Ctrl+D           Exit
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/peterh/liner"

	"github.com/jeranaias/stratchat/internal/config"
	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/storage"
	"github.com/jeranaias/stratchat/internal/turn"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides line editing and persistent input history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI with history loaded from the config
// directory.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(dir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory reads the history file, if any.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput prompts for one line and records it in the history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory writes the history file with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves the history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// saveTimeout bounds a history write.
const saveTimeout = 5 * time.Second

// chatSession is one line-mode conversation.
type chatSession struct {
	cfg      *config.Config
	store    *model.Store
	seq      *turn.Sequencer
	printer  *messagePrinter
	sessions *storage.Store // nil when history is disabled
	id       string
	quiet    bool

	mu     sync.Mutex
	cancel context.CancelFunc // cancels the running turn
}

func newChatSession(cfg *config.Config, b turn.Backend, sessions *storage.Store, w io.Writer) *chatSession {
	store := model.NewStore()
	seq := turn.New(store, b, instantRevealer{store: store}, cfg.TurnSettings())
	seq.SetParams(cfg.Defaults)

	return &chatSession{
		cfg:      cfg,
		store:    store,
		seq:      seq,
		printer:  newMessagePrinter(w, cfg),
		sessions: sessions,
		id:       uuid.NewString(),
	}
}

// run executes fn as the current turn, printing messages as they settle.
func (s *chatSession) run(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	followCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.printer.Follow(followCtx, s.store)
	}()

	err := fn(ctx)
	stop()
	<-done
	return err
}

// interrupt cancels the running turn. It reports whether one was running.
func (s *chatSession) interrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	return true
}

func (s *chatSession) submit(ctx context.Context, text string) error {
	return s.run(ctx, func(ctx context.Context) error {
		return s.seq.Submit(ctx, text)
	})
}

func (s *chatSession) rerun(ctx context.Context, code string) error {
	return s.run(ctx, func(ctx context.Context) error {
		return s.seq.EditAndRerun(ctx, code)
	})
}

// resume loads a saved conversation by list number or id prefix.
func (s *chatSession) resume(ctx context.Context, ref string) error {
	if s.sessions == nil {
		return errors.New("session history is disabled")
	}
	sess, err := loadSessionRef(ctx, s.sessions, ref)
	if err != nil {
		return err
	}

	s.store.Load(sess.Messages)
	s.seq.Restore(sess.Params, sess.LastCode)
	if mode, err := turn.ParseMode(sess.Mode); err == nil {
		s.seq.SetMode(mode)
	}
	s.id = sess.ID
	s.printer.Reset()
	s.printer.MarkPrinted(s.store.Snapshot())
	return nil
}

// save writes the conversation to history. Conversations without user
// input are not saved.
func (s *chatSession) save(ctx context.Context) error {
	if s.sessions == nil {
		return nil
	}
	msgs := s.store.Snapshot()
	hasUser := false
	for _, m := range msgs {
		if m.Role == model.RoleUser {
			hasUser = true
			break
		}
	}
	if !hasUser {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()
	cfg := s.seq.Config()
	_, err := s.sessions.Save(ctx, &storage.Session{
		ID:       s.id,
		Mode:     string(cfg.Mode),
		Params:   s.seq.Params(),
		LastCode: s.seq.LastCode(),
		Messages: msgs,
	})
	return err
}

// reset starts a fresh conversation with a new id.
func (s *chatSession) reset() {
	s.store.Clear()
	s.seq.Reset()
	s.printer.Reset()
	s.id = uuid.NewString()
}

// =============================================================================
// COMMAND HANDLERS
// =============================================================================

// HandleChat handles the "chat" command.
func HandleChat(args Args) {
	exitOnError(HandleChatCommand(args))
}

// HandleChatCommand runs the line-mode REPL until /quit or Ctrl+D.
func HandleChatCommand(args Args) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	if !args.Verbose {
		logs, err := RedirectLog(logPathOrEmpty(cfg), false)
		if err == nil {
			defer logs.Close()
		}
	}

	sessions, err := OpenSessions(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v (history disabled)\n", WarningStyle.Render("Warning:"), err)
		sessions = nil
	}
	if sessions != nil {
		defer sessions.Close()
	}

	s := newChatSession(cfg, NewBackend(cfg), sessions, stdout)
	s.quiet = args.Quiet
	if args.Mode != "" {
		mode, err := turn.ParseMode(args.Mode)
		if err != nil {
			return &ValidationError{Field: "--mode", Value: args.Mode, Reason: "must be simple or confirm"}
		}
		s.seq.SetMode(mode)
	}

	ctx := context.Background()
	if args.Resume != "" {
		if err := s.resume(ctx, args.Resume); err != nil {
			return wrapErr("chat", "resume", err)
		}
	}

	if !s.quiet {
		printChatWelcome(s)
	}

	input := NewChatCLI()
	defer input.Close()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			if s.interrupt() {
				fmt.Fprintln(stderr, "\n"+WarningStyle.Render("[Cancelled]"))
			}
		}
	}()

	defer func() {
		if err := s.save(ctx); err != nil {
			fmt.Fprintf(stderr, "%s could not save conversation: %v\n", WarningStyle.Render("Warning:"), err)
		} else if s.sessions != nil && !s.quiet {
			fmt.Fprintln(stdout, DimStyle.Render("Saved as "+shortID(s.id)))
		}
	}()

	for {
		line, err := input.ReadInput(PromptStyle.Render(promptFor(s.seq.State())))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or a closed stdin all end the chat.
			fmt.Fprintln(stdout)
			return nil
		}

		quit, err := s.handleLine(ctx, line)
		if err != nil {
			fmt.Fprintf(stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
		if quit {
			return nil
		}
	}
}

// handleLine runs one line of input. It reports whether the chat should
// end.
func (s *chatSession) handleLine(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if strings.HasPrefix(line, "/") {
		return s.handleSlashCommand(ctx, line)
	}
	if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
		return true, nil
	}
	return false, s.submit(ctx, line)
}

// handleSlashCommand runs a /command.
func (s *chatSession) handleSlashCommand(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	args := fields[1:]

	switch cmd {
	case "quit", "q", "exit":
		return true, nil

	case "help", "h", "?":
		fmt.Fprint(stdout, chatHelpText)

	case "guide":
		fmt.Fprintln(stdout, s.printer.renderText(turn.GuideText()))

	case "params":
		fmt.Fprintln(stdout, formatParams(s.seq.Params()))

	case "set":
		if len(args) < 2 {
			return false, &UsageError{Msg: "missing key or value", Usage: "/set KEY VALUE"}
		}
		p := s.seq.Params()
		if err := p.Set(args[0], strings.Join(args[1:], " ")); err != nil {
			return false, err
		}
		if err := p.Validate(); err != nil {
			return false, err
		}
		s.seq.SetParams(p)
		v, _ := p.Get(args[0])
		printSuccess(s.quiet, "%s = %s", args[0], v)

	case "mode":
		if len(args) == 0 {
			fmt.Fprintf(stdout, "mode: %s\n", s.seq.Config().Mode)
			return false, nil
		}
		mode, err := turn.ParseMode(args[0])
		if err != nil {
			return false, err
		}
		s.seq.SetMode(mode)
		printSuccess(s.quiet, "mode = %s", mode)

	case "code":
		code := s.seq.LastCode()
		if code == "" {
			return false, turn.ErrNoCode
		}
		fmt.Fprintln(stdout, s.printer.renderCode(code))

	case "run":
		code := s.seq.LastCode()
		if len(args) > 0 {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return false, fmt.Errorf("read code: %w", err)
			}
			code = string(data)
		}
		return false, s.rerun(ctx, code)

	case "clear", "new":
		if err := s.save(ctx); err != nil {
			return false, fmt.Errorf("save conversation: %w", err)
		}
		s.reset()
		printSuccess(s.quiet, "started a new conversation")

	default:
		msg := fmt.Sprintf("unknown command /%s, type /help for available commands", cmd)
		return false, &UsageError{Msg: msg}
	}
	return false, nil
}

// =============================================================================
// OUTPUT
// =============================================================================

const chatHelpText = `Commands:
  /help            Show this help
  /guide           Show the usage guide
  /params          Show backtest parameters
  /set KEY VALUE   Change a parameter (capital, stop_loss, start_date, ...)
  /mode MODE       simple or confirm
  /code            Print the last generated code
  /run [FILE]      Backtest the last code, or the code in FILE
  /clear           Save and start a new conversation
  /quit            Save and exit
  Ctrl+C cancels a running turn, Ctrl+D exits.
`

func printChatWelcome(s *chatSession) {
	fmt.Fprintln(stdout, TitleStyle.Render("stratchat")+DimStyle.Render("  "+s.cfg.Backend.URL))
	if s.store.Len() == 0 {
		fmt.Fprintln(stdout, turn.WelcomeText)
	} else {
		fmt.Fprintln(stdout, DimStyle.Render(fmt.Sprintf("Resumed %s with %d messages", shortID(s.id), s.store.Len())))
	}
	fmt.Fprintln(stdout, DimStyle.Render("Type /help for commands."))
	fmt.Fprintln(stdout)
}

// promptFor shows the sequencer state in the prompt.
func promptFor(state turn.State) string {
	if state == turn.StateAwaitingConfirmation {
		return "진행? > "
	}
	return "strategy> "
}

func formatParams(p model.Params) string {
	var b strings.Builder
	for _, key := range model.ParamKeys {
		v, _ := p.Get(key)
		b.WriteString(RenderLabel(key))
		b.WriteString(ValueStyle.Render(v))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// logPathOrEmpty resolves the log file, or "" when it cannot be resolved.
func logPathOrEmpty(cfg *config.Config) string {
	path, err := cfg.LogPath()
	if err != nil {
		return ""
	}
	return path
}
