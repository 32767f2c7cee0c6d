// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme names accepted by NewTheme.
const (
	ThemeAuto  = "auto"
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Theme holds the styled components for the application.
type Theme struct {
	Name         string
	IsDark       bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// HEADER AND STATUS BAR
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderInfo  lipgloss.Style

	StatusBar    lipgloss.Style
	ModeSimple   lipgloss.Style
	ModeConfirm  lipgloss.Style
	StatusBusy   lipgloss.Style
	StatusIdle   lipgloss.Style
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style

	// ==========================================================================
	// MESSAGES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	ErrorLabel     lipgloss.Style
	Timestamp      lipgloss.Style

	UserBubble      lipgloss.Style
	AssistantBubble lipgloss.Style
	SystemBubble    lipgloss.Style
	ErrorBubble     lipgloss.Style
	LoadingText     lipgloss.Style
	Cursor          lipgloss.Style

	// ==========================================================================
	// INPUT
	// ==========================================================================

	InputContainer   lipgloss.Style
	InputPrompt      lipgloss.Style
	InputPlaceholder lipgloss.Style
	InputHint        lipgloss.Style

	// ==========================================================================
	// CODE, TABLES, CHARTS
	// ==========================================================================

	CodeBlock     lipgloss.Style
	CodeLangBadge lipgloss.Style
	CodeLineNum   lipgloss.Style

	SectionTitle lipgloss.Style
	MetricLabel  lipgloss.Style
	MetricValue  lipgloss.Style

	TableHeader   lipgloss.Style
	TableCell     lipgloss.Style
	TableSelected lipgloss.Style
	TableFooter   lipgloss.Style

	ChartLine lipgloss.Style
	ChartAxis lipgloss.Style

	// ==========================================================================
	// PANELS
	// ==========================================================================

	MarketPanel  lipgloss.Style
	MarketSymbol lipgloss.Style
	MarketPrice  lipgloss.Style
	MarketMuted  lipgloss.Style

	FormBox        lipgloss.Style
	FormLabel      lipgloss.Style
	FormLabelFocus lipgloss.Style
	FormError      lipgloss.Style

	Notice lipgloss.Style
}

// NewTheme creates a theme. name is auto, dark or light; anything else is
// treated as auto, which asks the terminal for its background.
func NewTheme(name string) *Theme {
	name = strings.ToLower(strings.TrimSpace(name))

	var isDark bool
	switch name {
	case ThemeDark:
		isDark = true
	case ThemeLight:
		isDark = false
	default:
		name = ThemeAuto
		isDark = termenv.HasDarkBackground()
	}
	// AdaptiveColor resolves against the global renderer.
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		Name:         name,
		IsDark:       isDark,
		ColorProfile: termenv.ColorProfile(),
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	// Header and status bar
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().Bold(true).Foreground(Brand)
	t.HeaderInfo = lipgloss.NewStyle().Foreground(TextSecondary)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)
	t.ModeSimple = lipgloss.NewStyle().Foreground(Info).Bold(true)
	t.ModeConfirm = lipgloss.NewStyle().Foreground(Accent).Bold(true)
	t.StatusBusy = lipgloss.NewStyle().Foreground(Caution)
	t.StatusIdle = lipgloss.NewStyle().Foreground(Gain)
	t.ShortcutKey = lipgloss.NewStyle().Foreground(Brand).Bold(true)
	t.ShortcutDesc = lipgloss.NewStyle().Foreground(TextMuted)

	// Messages
	t.UserLabel = lipgloss.NewStyle().Foreground(UserBorder).Bold(true)
	t.AssistantLabel = lipgloss.NewStyle().Foreground(Accent).Bold(true)
	t.SystemLabel = lipgloss.NewStyle().Foreground(SystemBorder).Bold(true)
	t.ErrorLabel = lipgloss.NewStyle().Foreground(ErrorBorder).Bold(true)
	t.Timestamp = lipgloss.NewStyle().Foreground(TextMuted)

	bubble := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		PaddingLeft(1)
	t.UserBubble = bubble.Foreground(UserFg).BorderForeground(UserBorder)
	t.AssistantBubble = bubble.Foreground(AssistantFg).BorderForeground(AssistantBorder)
	t.SystemBubble = bubble.Foreground(SystemFg).BorderForeground(SystemBorder)
	t.ErrorBubble = bubble.Foreground(ErrorFg).BorderForeground(ErrorBorder)
	t.LoadingText = lipgloss.NewStyle().Foreground(TextSecondary).Italic(true)
	t.Cursor = lipgloss.NewStyle().Foreground(Brand).Bold(true)

	// Input
	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.InputPrompt = lipgloss.NewStyle().Foreground(Brand).Bold(true)
	t.InputPlaceholder = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)
	t.InputHint = lipgloss.NewStyle().Foreground(TextMuted)

	// Code, tables, charts
	t.CodeBlock = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.CodeLangBadge = lipgloss.NewStyle().
		Foreground(TextMuted).
		Background(OverlayDim).
		Padding(0, 1).
		Bold(true)
	t.CodeLineNum = lipgloss.NewStyle().
		Foreground(TextMuted).
		Width(4).
		Align(lipgloss.Right).
		MarginRight(1)

	t.SectionTitle = lipgloss.NewStyle().Foreground(Brand).Bold(true)
	t.MetricLabel = lipgloss.NewStyle().Foreground(TextSecondary)
	t.MetricValue = lipgloss.NewStyle().Foreground(TextPrimary).Bold(true)

	t.TableHeader = lipgloss.NewStyle().
		Foreground(Brand).
		Bold(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(Overlay)
	t.TableCell = lipgloss.NewStyle().Foreground(TextPrimary)
	t.TableSelected = lipgloss.NewStyle().Foreground(TextInverse).Background(Accent)
	t.TableFooter = lipgloss.NewStyle().Foreground(TextMuted)

	t.ChartLine = lipgloss.NewStyle().Foreground(Accent)
	t.ChartAxis = lipgloss.NewStyle().Foreground(TextMuted)

	// Panels
	t.MarketPanel = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.MarketSymbol = lipgloss.NewStyle().Foreground(Brand).Bold(true)
	t.MarketPrice = lipgloss.NewStyle().Foreground(TextPrimary).Bold(true)
	t.MarketMuted = lipgloss.NewStyle().Foreground(TextMuted)

	t.FormBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Accent).
		Padding(0, 1)
	t.FormLabel = lipgloss.NewStyle().Foreground(TextSecondary).Width(14)
	t.FormLabelFocus = lipgloss.NewStyle().Foreground(Brand).Bold(true).Width(14)
	t.FormError = lipgloss.NewStyle().Foreground(Loss)

	t.Notice = lipgloss.NewStyle().Foreground(Caution)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)

// GetLayoutMode returns the layout mode for the current width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}
