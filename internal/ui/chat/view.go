// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/stratchat/internal/turn"
	"github.com/jeranaias/stratchat/internal/util"
)

// =============================================================================
// MAIN RENDER
// =============================================================================

// View renders the chat view.
func (m Model) View() string {
	m.updateStatusBar()

	parts := []string{m.renderHeader()}
	if m.showMarket {
		parts = append(parts, m.marketPanel().Render(m.theme))
	}

	switch m.overlay {
	case overlayHelp:
		parts = append(parts, m.fit(m.renderHelpOverlay()))
	case overlayPanel:
		parts = append(parts, m.fit(m.renderPanel()))
	case overlayParams:
		parts = append(parts, m.fit(m.paramsForm.View()))
	case overlayEdit:
		parts = append(parts, m.fit(m.renderEditor()))
	default:
		parts = append(parts, m.viewport.View())
	}

	parts = append(parts, m.renderInput(), m.statusBar.View())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// fit clips an overlay to the viewport height so the input and status bar
// stay on screen.
func (m Model) fit(s string) string {
	lines := strings.Split(s, "\n")
	if h := m.viewport.Height; h > 0 && len(lines) > h {
		lines = lines[:h]
	}
	return lipgloss.NewStyle().Height(m.viewport.Height).Render(strings.Join(lines, "\n"))
}

// =============================================================================
// HEADER
// =============================================================================

// renderHeader shows the title, the session parameters and the session id.
func (m Model) renderHeader() string {
	p := m.seq.Params()
	title := m.theme.HeaderTitle.Render("stratchat")
	info := fmt.Sprintf("%s  %s~%s  %s",
		util.FormatMoney(p.Capital), p.StartDate, p.EndDate, p.Timeframe)
	if m.width >= 100 {
		info += fmt.Sprintf("  SL %s  TP %s", util.FormatPercent(p.StopLoss), util.FormatPercent(p.TakeProfit))
	}
	right := m.theme.HeaderInfo.Render(util.RunePrefix([]rune(m.sessionID), 8))

	left := title + "  " + m.theme.HeaderInfo.Render(info)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		return m.theme.Header.Width(m.width).Render(util.TruncateWidth(left, max(m.width-2, 1)))
	}
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

// =============================================================================
// INPUT AREA
// =============================================================================

func (m Model) renderInput() string {
	var hint string
	switch m.overlay {
	case overlayEdit:
		hint = "Ctrl+S run backtest  Esc cancel"
	case overlayParams:
		hint = "Tab next  Ctrl+S save  Esc cancel"
	case overlayHelp, overlayPanel:
		hint = "Esc close"
	default:
		if m.seq.State() == turn.StateAwaitingConfirmation {
			hint = "진행하시려면 \"진행\"을 입력하세요"
		}
	}
	view := m.input.View()
	if hint != "" {
		view += "\n" + m.theme.InputHint.Render(hint)
	}
	return m.theme.InputContainer.Width(max(m.width-2, 10)).Render(view)
}

// =============================================================================
// OVERLAYS
// =============================================================================

// renderHelpOverlay lists the slash commands and the key bindings.
func (m Model) renderHelpOverlay() string {
	var b strings.Builder
	b.WriteString(m.theme.SectionTitle.Render("Commands"))
	b.WriteString("\n")

	width := 0
	for _, c := range commandList {
		width = max(width, lipgloss.Width(c.Usage))
	}
	for _, c := range commandList {
		b.WriteString(m.theme.ShortcutKey.Render(util.PadRight(c.Usage, width)))
		b.WriteString("  ")
		b.WriteString(m.theme.ShortcutDesc.Render(c.Desc))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.theme.SectionTitle.Render("Keys"))
	b.WriteString("\n")
	h := help.New()
	h.ShowAll = true
	h.Width = m.width
	b.WriteString(h.View(m.keyMap))
	return b.String()
}

func (m Model) renderPanel() string {
	return m.theme.SectionTitle.Render(m.panelTitle) + "\n" + m.panel
}

func (m Model) renderEditor() string {
	return m.theme.SectionTitle.Render("Edit code") + "\n" + m.editor.View()
}
