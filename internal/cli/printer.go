// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// printer.go - Line-mode rendering of conversation messages.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jeranaias/stratchat/internal/config"
	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/reveal"
	"github.com/jeranaias/stratchat/internal/ui/components"
	"github.com/jeranaias/stratchat/internal/ui/styles"
)

// =============================================================================
// INSTANT REVEAL
// =============================================================================

// instantRevealer commits every reveal in one patch. Line mode prints whole
// messages, so there is nothing to animate.
type instantRevealer struct {
	store *model.Store
}

func (r instantRevealer) Reveal(id uint64, text, code string, opts ...reveal.Option) <-chan struct{} {
	s := reveal.NewSession(text, code, reveal.DefaultConfig())
	for _, opt := range opts {
		opt(s)
	}
	r.store.Patch(id, s.Final())

	done := make(chan struct{})
	close(done)
	return done
}

// =============================================================================
// MESSAGE PRINTER
// =============================================================================

// messagePrinter prints each settled message once, in store order.
type messagePrinter struct {
	w        io.Writer
	theme    *styles.Theme
	markdown *components.MarkdownRenderer // nil prints content as is
	width    int
	showUser bool

	mu        sync.Mutex
	printed   map[uint64]bool
	announced map[uint64]bool
}

// newMessagePrinter creates a printer using the terminal width and the
// config's theme and markdown settings.
func newMessagePrinter(w io.Writer, cfg *config.Config) *messagePrinter {
	theme := styles.NewTheme(cfg.UI.Theme)
	theme.ColorProfile = GetColorProfile()

	p := &messagePrinter{
		w:         w,
		theme:     theme,
		width:     GetTerminalWidth(),
		printed:   make(map[uint64]bool),
		announced: make(map[uint64]bool),
	}
	if cfg.UI.Markdown && ColorsEnabled() {
		p.markdown = components.NewMarkdownRenderer(theme.IsDark)
	}
	return p
}

// MarkPrinted records msgs as already shown, e.g. after a resume.
func (p *messagePrinter) MarkPrinted(msgs []model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		p.printed[m.ID] = true
	}
}

// Reset forgets what was printed.
func (p *messagePrinter) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.printed)
	clear(p.announced)
}

// Flush prints messages not yet shown. It stops at the first unsettled
// message so output order matches the conversation; a loading placeholder
// is announced once as a dim progress line.
func (p *messagePrinter) Flush(msgs []model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range msgs {
		if p.printed[m.ID] {
			continue
		}
		if m.Loading {
			if !p.announced[m.ID] {
				p.announced[m.ID] = true
				fmt.Fprintln(p.w, DimStyle.Render("... "+m.Content))
			}
			return
		}
		if !m.IsSettled() {
			return
		}
		p.printed[m.ID] = true
		if m.Role == model.RoleUser && !p.showUser {
			continue
		}
		fmt.Fprintln(p.w, p.render(m))
	}
}

// Follow flushes on every store change until ctx is done, then flushes once
// more.
func (p *messagePrinter) Follow(ctx context.Context, store *model.Store) {
	for {
		select {
		case <-ctx.Done():
			p.Flush(store.Snapshot())
			return
		case <-store.Changes():
			p.Flush(store.Snapshot())
		}
	}
}

func (p *messagePrinter) render(m model.Message) string {
	var b strings.Builder
	switch m.Role {
	case model.RoleUser:
		b.WriteString(UserStyle.Render("> ") + m.Content)
	case model.RoleSystem:
		b.WriteString(SystemStyle.Render(m.Content))
	case model.RoleError:
		b.WriteString(ErrorStyle.Render(styles.StatusIndicators.Error+" ") + m.Content)
	default:
		b.WriteString(AssistantStyle.Render("stratchat"))
		b.WriteString("\n")
		b.WriteString(p.renderText(m.Content))
	}

	if m.Code != "" {
		b.WriteString("\n\n")
		b.WriteString(p.renderCode(m.Code))
	}
	if m.Payload != nil {
		if s := components.RenderPayload(p.theme, m.Payload, p.width); s != "" {
			b.WriteString("\n\n")
			b.WriteString(s)
		}
	}
	b.WriteString("\n")
	return b.String()
}

func (p *messagePrinter) renderCode(code string) string {
	return components.Highlight(code, "python", p.theme)
}

func (p *messagePrinter) renderText(s string) string {
	if p.markdown == nil {
		return s
	}
	return strings.TrimRight(p.markdown.Render(s, p.width), "\n")
}
