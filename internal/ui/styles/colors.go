// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// ACCENT COLORS
// =============================================================================

// Brand - Header, prompt, commands
var Brand = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

// Accent - Assistant messages, selections, chart line
var Accent = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

// =============================================================================
// SEMANTIC COLORS
// =============================================================================

// Gain - Price up, positive returns, success
var Gain = lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#22C55E"}

// Loss - Price down, negative returns, errors
var Loss = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#EF4444"}

// Caution - Warnings, pending confirmation
var Caution = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// Info - Neutral notices
var Info = lipgloss.AdaptiveColor{Light: "#2563EB", Dark: "#60A5FA"}

// =============================================================================
// SURFACE AND TEXT
// =============================================================================

var (
	SurfaceDim    = lipgloss.AdaptiveColor{Light: "#F5F5F5", Dark: "#181825"}
	SurfaceBright = lipgloss.AdaptiveColor{Light: "#FAFAFA", Dark: "#313244"}
	Overlay       = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}
	OverlayDim    = lipgloss.AdaptiveColor{Light: "#D4D4D4", Dark: "#45475A"}

	TextPrimary   = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}
	TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}
	TextMuted     = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}
	TextInverse   = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#1E1E2E"}
)

// =============================================================================
// MESSAGE COLORS
// =============================================================================

// User messages - blue
var (
	UserFg     = lipgloss.AdaptiveColor{Light: "#1E40AF", Dark: "#E0F2FE"}
	UserBorder = lipgloss.AdaptiveColor{Light: "#3B82F6", Dark: "#3B82F6"}
)

// Assistant messages - muted violet
var (
	AssistantFg     = lipgloss.AdaptiveColor{Light: "#5B4B8A", Dark: "#E9E4F5"}
	AssistantBorder = lipgloss.AdaptiveColor{Light: "#C4B5FD", Dark: "#A78BFA"}
)

// System notices - amber
var (
	SystemFg     = lipgloss.AdaptiveColor{Light: "#92400E", Dark: "#FEF3C7"}
	SystemBorder = lipgloss.AdaptiveColor{Light: "#F59E0B", Dark: "#F59E0B"}
)

// Error messages - rose
var (
	ErrorFg     = lipgloss.AdaptiveColor{Light: "#991B1B", Dark: "#FECACA"}
	ErrorBorder = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}
)

// =============================================================================
// STATUS INDICATORS
// =============================================================================

// StatusIndicatorSet holds the text markers shown next to colored status.
type StatusIndicatorSet struct {
	Success string
	Error   string
	Warning string
	Info    string
	Pending string
	Live    string
}

// StatusIndicators are ASCII so they survive any terminal font.
var StatusIndicators = StatusIndicatorSet{
	Success: "[OK]",
	Error:   "[X]",
	Warning: "[!]",
	Info:    "[i]",
	Pending: "[ ]",
	Live:    "[*]",
}

// RenderSuccess renders a success line.
func RenderSuccess(message string) string {
	return lipgloss.NewStyle().Foreground(Gain).Bold(true).
		Render(StatusIndicators.Success + " " + message)
}

// RenderError renders an error line.
func RenderError(message string) string {
	return lipgloss.NewStyle().Foreground(Loss).Bold(true).
		Render(StatusIndicators.Error + " " + message)
}

// RenderWarning renders a warning line.
func RenderWarning(message string) string {
	return lipgloss.NewStyle().Foreground(Caution).Bold(true).
		Render(StatusIndicators.Warning + " " + message)
}

// RenderInfo renders an informational line.
func RenderInfo(message string) string {
	return lipgloss.NewStyle().Foreground(Info).
		Render(StatusIndicators.Info + " " + message)
}

// ChangeColor picks the gain or loss color by sign. Zero is muted.
func ChangeColor(v float64) lipgloss.TerminalColor {
	switch {
	case v > 0:
		return Gain
	case v < 0:
		return Loss
	default:
		return TextSecondary
	}
}

// RenderChange colors text by the sign of v.
func RenderChange(v float64, text string) string {
	return lipgloss.NewStyle().Foreground(ChangeColor(v)).Render(text)
}
