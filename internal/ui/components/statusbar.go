// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/stratchat/internal/ui/styles"
	"github.com/jeranaias/stratchat/internal/util"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is what the conversation is doing right now.
type Status int

const (
	StatusReady Status = iota
	StatusWorking
	StatusRevealing
	StatusAwaiting
	StatusError
)

// String returns the display string for the status.
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "Ready"
	case StatusWorking:
		return "Working"
	case StatusRevealing:
		return "Typing"
	case StatusAwaiting:
		return "Awaiting confirmation"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Icon pairs each status with a marker so it reads without color.
func (s Status) Icon() string {
	switch s {
	case StatusReady:
		return styles.StatusIndicators.Success
	case StatusWorking, StatusRevealing:
		return styles.StatusIndicators.Live
	case StatusAwaiting:
		return styles.StatusIndicators.Pending
	case StatusError:
		return styles.StatusIndicators.Error
	default:
		return "?"
	}
}

// =============================================================================
// STATUS BAR
// =============================================================================

// StatusBar is the bottom line of the chat view.
type StatusBar struct {
	Confirm bool
	Status  Status
	Spinner string
	// RevealPercent is the typing progress, negative when nothing reveals.
	RevealPercent float64
	Symbol        string
	Price         string
	Notice        string
	Width         int
	ShowShortcuts bool
	theme         *styles.Theme
}

// NewStatusBar creates a status bar.
func NewStatusBar(theme *styles.Theme) *StatusBar {
	return &StatusBar{
		Status:        StatusReady,
		RevealPercent: -1,
		Width:         80,
		ShowShortcuts: true,
		theme:         theme,
	}
}

// View renders the status bar for the current width.
func (s *StatusBar) View() string {
	left := []string{s.modeBadge(), s.statusText()}

	if s.RevealPercent >= 0 && s.Width >= 60 {
		left = append(left, s.theme.StatusIdle.Render(
			"["+styles.RenderProgressBar(10, s.RevealPercent)+"]"))
	}
	if s.Notice != "" {
		left = append(left, s.theme.Notice.Render(util.SingleLine(s.Notice)))
	}

	var right []string
	if s.Price != "" && s.Width >= 60 {
		right = append(right, s.theme.MarketSymbol.Render(s.Symbol)+" "+s.theme.MarketPrice.Render(s.Price))
	}
	if s.ShowShortcuts && s.Width >= 100 {
		right = append(right, s.shortcuts())
	}

	leftStr := strings.Join(left, " ")
	rightStr := strings.Join(right, "  ")
	gap := s.Width - lipgloss.Width(leftStr) - lipgloss.Width(rightStr) - 2
	if gap < 1 {
		// Drop the right side before truncating the status.
		rightStr = ""
		gap = 1
	}
	return s.theme.StatusBar.Width(s.Width).Render(leftStr + strings.Repeat(" ", gap) + rightStr)
}

func (s *StatusBar) modeBadge() string {
	if s.Confirm {
		return s.theme.ModeConfirm.Render("CONFIRM")
	}
	return s.theme.ModeSimple.Render("SIMPLE")
}

func (s *StatusBar) statusText() string {
	text := s.Status.Icon() + " " + s.Status.String()
	switch s.Status {
	case StatusWorking, StatusRevealing:
		if s.Spinner != "" {
			text += " " + s.Spinner
		}
		return s.theme.StatusBusy.Render(text)
	default:
		return s.theme.StatusIdle.Render(text)
	}
}

func (s *StatusBar) shortcuts() string {
	pairs := [][2]string{{"Enter", "send"}, {"Esc", "skip"}, {"/help", "commands"}, {"Ctrl+C", "quit"}}
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = s.theme.ShortcutKey.Render(p[0]) + " " + s.theme.ShortcutDesc.Render(p[1])
	}
	return strings.Join(parts, " ")
}
