// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Lipgloss styles for non-TUI command output.
package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/stratchat/internal/ui/styles"
)

func init() {
	// Piped output gets no escape codes.
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// CLI STYLES
// =============================================================================

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.Brand)

	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.TextPrimary).
			MarginTop(1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary).
			Width(18)

	ValueStyle = lipgloss.NewStyle().
			Foreground(styles.TextPrimary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(styles.Gain).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(styles.Loss).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(styles.Caution)

	DimStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted)

	PromptStyle = lipgloss.NewStyle().
			Foreground(styles.Brand).
			Bold(true)

	UserStyle = lipgloss.NewStyle().
			Foreground(styles.UserBorder).
			Bold(true)

	AssistantStyle = lipgloss.NewStyle().
			Foreground(styles.AssistantBorder).
			Bold(true)

	SystemStyle = lipgloss.NewStyle().
			Foreground(styles.SystemBorder)
)

// =============================================================================
// HELPERS
// =============================================================================

// RenderSeparator returns a horizontal rule, 60 columns unless given.
func RenderSeparator(width ...int) string {
	w := 60
	if len(width) > 0 && width[0] > 0 {
		w = width[0]
	}
	return DimStyle.Render(strings.Repeat("-", w))
}

// RenderLabel renders a fixed-width label column.
func RenderLabel(label string) string {
	return LabelStyle.Render(label)
}

// printKV prints an aligned "label  value" line.
func printKV(label string, value interface{}) {
	fmt.Fprintf(stdout, "%s%s\n", RenderLabel(label), ValueStyle.Render(fmt.Sprint(value)))
}

// printSuccess prints a green [OK] line unless quiet.
func printSuccess(quiet bool, format string, a ...interface{}) {
	if quiet {
		return
	}
	fmt.Fprintf(stdout, "%s %s\n", SuccessStyle.Render(styles.StatusIndicators.Success), fmt.Sprintf(format, a...))
}
