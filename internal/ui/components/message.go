// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/ui/styles"
)

// =============================================================================
// MESSAGE BUBBLE
// =============================================================================

// MessageBubble renders one conversation message.
type MessageBubble struct {
	Message       model.Message
	Width         int
	ShowTimestamp bool
	// Markdown renders settled assistant text; nil keeps plain text.
	Markdown *MarkdownRenderer
	// Spinner is the current frame shown on loading placeholders.
	Spinner string
	theme   *styles.Theme
}

// NewMessageBubble creates a bubble for msg.
func NewMessageBubble(msg model.Message, theme *styles.Theme) *MessageBubble {
	return &MessageBubble{
		Message:       msg,
		Width:         80,
		ShowTimestamp: true,
		theme:         theme,
	}
}

// View renders the bubble: a header line, the text, the code block and any
// structured result.
func (b *MessageBubble) View() string {
	msg := b.Message
	contentWidth := max(b.Width-4, 20)

	parts := []string{b.renderHeader()}

	if msg.Loading {
		frame := b.Spinner
		if frame == "" {
			frame = styles.LineSpinner.Frames[0]
		}
		parts = append(parts, b.theme.LoadingText.Render(frame+" "+msg.Content))
		return b.bubbleStyle().Render(strings.Join(parts, "\n"))
	}

	if text := b.renderText(contentWidth); text != "" {
		parts = append(parts, text)
	}

	if msg.Code != "" {
		block := NewCodeBlock(msg.Code)
		block.MaxWidth = contentWidth
		block.Cursor = msg.IsCodeRevealing
		parts = append(parts, block.Render(b.theme))
	}

	if msg.IsSettled() && msg.Payload != nil {
		if view := RenderPayload(b.theme, msg.Payload, contentWidth); view != "" {
			parts = append(parts, view)
		}
	}

	return b.bubbleStyle().Render(strings.Join(parts, "\n"))
}

func (b *MessageBubble) renderHeader() string {
	var label lipgloss.Style
	switch b.Message.Role {
	case model.RoleUser:
		label = b.theme.UserLabel
	case model.RoleSystem:
		label = b.theme.SystemLabel
	case model.RoleError:
		label = b.theme.ErrorLabel
	default:
		label = b.theme.AssistantLabel
	}
	header := label.Render(b.Message.Role.DisplayName())
	if b.ShowTimestamp {
		if ts := formatTimestamp(b.Message.CreatedAt, time.Now()); ts != "" {
			header += " " + b.theme.Timestamp.Render(ts)
		}
	}
	return header
}

func (b *MessageBubble) renderText(width int) string {
	msg := b.Message
	if msg.IsRevealing {
		return wordWrap(msg.Content, width) + b.theme.Cursor.Render(styles.TypingCursor)
	}
	if msg.Content == "" {
		return ""
	}
	if b.Markdown != nil && msg.Role == model.RoleAssistant {
		return b.Markdown.Render(msg.Content, width)
	}
	return wordWrap(msg.Content, width)
}

func (b *MessageBubble) bubbleStyle() lipgloss.Style {
	switch b.Message.Role {
	case model.RoleUser:
		return b.theme.UserBubble
	case model.RoleSystem:
		return b.theme.SystemBubble
	case model.RoleError:
		return b.theme.ErrorBubble
	default:
		return b.theme.AssistantBubble
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// wordWrap wraps text at word boundaries, measuring cell width so Hangul
// lines break in the right place.
func wordWrap(text string, width int) string {
	if width <= 0 || text == "" {
		return text
	}
	lines := strings.Split(lipgloss.NewStyle().Width(width).Render(text), "\n")
	for i, line := range lines {
		// Width pads every line; the typing cursor must follow the text.
		lines[i] = strings.TrimRight(line, " ")
	}
	return strings.Join(lines, "\n")
}

// formatTimestamp shows the time for today and the date otherwise.
func formatTimestamp(ts, now time.Time) string {
	if ts.IsZero() {
		return ""
	}
	ts = ts.Local()
	now = now.Local()
	if ts.Year() == now.Year() && ts.YearDay() == now.YearDay() {
		return ts.Format("15:04")
	}
	return ts.Format("Jan 2 15:04")
}

// =============================================================================
// MESSAGE LIST
// =============================================================================

type bubbleKey struct {
	id         uint64
	width      int
	contentLen int
	codeLen    int
}

// MessageList renders the whole conversation. Settled messages are cached
// so typing animation frames only re-render the message being revealed.
type MessageList struct {
	Width          int
	ShowTimestamps bool
	Markdown       *MarkdownRenderer
	Spinner        string
	theme          *styles.Theme
	cache          map[bubbleKey]string
}

// NewMessageList creates a list.
func NewMessageList(theme *styles.Theme) *MessageList {
	return &MessageList{
		Width:          80,
		ShowTimestamps: true,
		theme:          theme,
		cache:          make(map[bubbleKey]string),
	}
}

// SetMarkdown switches markdown rendering and drops cached output.
func (ml *MessageList) SetMarkdown(r *MarkdownRenderer) {
	ml.Markdown = r
	ml.Invalidate()
}

// Invalidate drops all cached bubbles.
func (ml *MessageList) Invalidate() {
	clear(ml.cache)
}

// Render renders msgs separated by blank lines.
func (ml *MessageList) Render(msgs []model.Message) string {
	if len(msgs) == 0 {
		return lipgloss.NewStyle().
			Foreground(styles.TextMuted).
			Italic(true).
			Width(ml.Width).
			Align(lipgloss.Center).
			Padding(2, 0).
			Render("No messages yet. Describe a trading strategy to begin.")
	}

	live := make(map[bubbleKey]struct{}, len(msgs))
	out := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		key := bubbleKey{id: msg.ID, width: ml.Width, contentLen: len(msg.Content), codeLen: len(msg.Code)}
		cacheable := msg.IsSettled() && !msg.Loading
		if cacheable {
			live[key] = struct{}{}
			if view, ok := ml.cache[key]; ok {
				out = append(out, view)
				continue
			}
		}

		bubble := NewMessageBubble(msg, ml.theme)
		bubble.Width = ml.Width
		bubble.ShowTimestamp = ml.ShowTimestamps
		bubble.Markdown = ml.Markdown
		bubble.Spinner = ml.Spinner
		view := bubble.View()
		if cacheable {
			ml.cache[key] = view
		}
		out = append(out, view)
	}

	for key := range ml.cache {
		if _, ok := live[key]; !ok {
			delete(ml.cache, key)
		}
	}
	return strings.Join(out, "\n\n")
}
