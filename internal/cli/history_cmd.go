// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history_cmd.go - The "history" command: saved conversations.
//
// Usage:
//
//	stratchat history [list]          List saved conversations
//	stratchat history search TEXT     Search conversation text
//	stratchat history show ID         Print a conversation as markdown
//	stratchat history delete ID       Delete a conversation
//	stratchat history clear --confirm Delete every conversation
package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/storage"
	"github.com/jeranaias/stratchat/internal/ui/components"
	"github.com/jeranaias/stratchat/internal/ui/styles"
)

// SessionStore is the part of storage.Store the history command uses.
type SessionStore interface {
	Load(ctx context.Context, id string) (*storage.Session, error)
	Resolve(ctx context.Context, prefix string) (string, error)
	LoadByIndex(ctx context.Context, index int) (*storage.Session, error)
	List(ctx context.Context) ([]storage.SessionMeta, error)
	Search(ctx context.Context, query string) ([]storage.SessionMeta, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// SessionExport is the --json payload of history show.
type SessionExport struct {
	ID        string          `json:"id"`
	Summary   string          `json:"summary"`
	Mode      string          `json:"mode"`
	Params    model.Params    `json:"params"`
	LastCode  string          `json:"last_code,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Messages  []model.Message `json:"messages"`
}

// HandleHistory handles the "history" command.
func HandleHistory(args Args) {
	cfg, err := LoadConfig(args)
	exitOnError(err)

	store, err := OpenSessions(cfg)
	exitOnError(err)
	if store == nil {
		exitOnError(errors.New("session history is disabled (storage.disabled = true)"))
	}
	defer store.Close()

	exitOnError(runHistory(context.Background(), store, args, styles.NewTheme(cfg.UI.Theme).IsDark))
}

// runHistory dispatches a history subcommand.
func runHistory(ctx context.Context, store SessionStore, args Args, dark bool) error {
	p := NewArgParser(args.Raw, "confirm", "raw")
	sub := strings.ToLower(p.Subcommand())

	switch sub {
	case "", "list", "ls":
		metas, err := store.List(ctx)
		if err != nil {
			return wrapErr("history", "list", err)
		}
		return printSessionList(metas, args.JSON)

	case "search", "find":
		query := strings.Join(p.PositionalFrom(1), " ")
		if query == "" {
			return &UsageError{Msg: "missing search text", Usage: "stratchat history search TEXT"}
		}
		metas, err := store.Search(ctx, query)
		if err != nil {
			return wrapErr("history", "search", err)
		}
		return printSessionList(metas, args.JSON)

	case "show", "export":
		ref, err := p.RequirePositional(1, "session id")
		if err != nil {
			return err
		}
		sess, err := loadSessionRef(ctx, store, ref)
		if err != nil {
			return wrapErr("history", "show", err)
		}
		if args.JSON {
			return printJSON("history show", SessionExport{
				ID:        sess.ID,
				Summary:   sess.Summary,
				Mode:      sess.Mode,
				Params:    sess.Params,
				LastCode:  sess.LastCode,
				CreatedAt: sess.CreatedAt,
				UpdatedAt: sess.UpdatedAt,
				Messages:  sess.Messages,
			})
		}
		md := sess.ExportMarkdown()
		if !p.BoolFlag("raw") && ColorsEnabled() {
			md = components.NewMarkdownRenderer(dark).Render(md, GetTerminalWidth())
		}
		fmt.Fprintln(stdout, md)
		return nil

	case "delete", "rm":
		ref, err := p.RequirePositional(1, "session id")
		if err != nil {
			return err
		}
		id, err := store.Resolve(ctx, ref)
		if err != nil {
			return wrapErr("history", "delete", err)
		}
		if err := store.Delete(ctx, id); err != nil {
			return wrapErr("history", "delete", err)
		}
		printSuccess(args.Quiet, "deleted %s", shortID(id))
		return nil

	case "clear":
		if !p.BoolFlag("confirm") {
			return &UsageError{Msg: "refusing to delete every conversation without --confirm", Usage: "stratchat history clear --confirm"}
		}
		if err := store.Clear(ctx); err != nil {
			return wrapErr("history", "clear", err)
		}
		printSuccess(args.Quiet, "history cleared")
		return nil

	default:
		return &UsageError{Msg: fmt.Sprintf("unknown history subcommand %q", sub), Usage: "stratchat history [list|search|show|delete|clear]"}
	}
}

func printSessionList(metas []storage.SessionMeta, asJSON bool) error {
	if asJSON {
		if metas == nil {
			metas = []storage.SessionMeta{}
		}
		return printJSON("history", metas)
	}
	fmt.Fprint(stdout, storage.FormatSessionList(metas))
	if len(metas) == 0 {
		fmt.Fprintln(stdout)
	}
	return nil
}

// loadSessionRef loads a session by 1-based list number or id prefix. A
// number past the end of the list is tried as a prefix.
func loadSessionRef(ctx context.Context, store SessionStore, ref string) (*storage.Session, error) {
	if n, err := strconv.Atoi(ref); err == nil && n > 0 {
		sess, err := store.LoadByIndex(ctx, n-1)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, storage.ErrSessionNotFound) {
			return nil, err
		}
	}
	id, err := store.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return store.Load(ctx, id)
}
