// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/muesli/termenv"

	"github.com/jeranaias/stratchat/internal/ui/styles"
)

// =============================================================================
// CODE BLOCK RENDERER
// =============================================================================

// CodeBlock is a highlighted block of generated strategy code.
type CodeBlock struct {
	Language    string
	Code        string
	MaxWidth    int
	LineNumbers bool
	// Cursor marks the block as still being revealed.
	Cursor bool
}

// NewCodeBlock creates a Python code block with line numbers.
func NewCodeBlock(code string) CodeBlock {
	return CodeBlock{
		Language:    "python",
		Code:        code,
		MaxWidth:    80,
		LineNumbers: true,
	}
}

// Render renders the block with syntax highlighting.
func (c CodeBlock) Render(theme *styles.Theme) string {
	code := strings.TrimRight(c.Code, "\n")
	highlighted := Highlight(code, c.Language, theme)
	lines := strings.Split(highlighted, "\n")

	var b strings.Builder
	if c.Language != "" {
		b.WriteString(theme.CodeLangBadge.Render(c.Language))
		b.WriteString("\n")
	}
	for i, line := range lines {
		if i > 0 {
			b.WriteString("\n")
		}
		if c.LineNumbers {
			b.WriteString(theme.CodeLineNum.Render(strconv.Itoa(i + 1)))
		}
		b.WriteString(line)
	}
	if c.Cursor {
		b.WriteString(theme.Cursor.Render(styles.TypingCursor))
	}

	width := max(c.MaxWidth-2, 20)
	return theme.CodeBlock.MaxWidth(width).Render(b.String())
}

// =============================================================================
// SYNTAX HIGHLIGHTING
// =============================================================================

// chromaStyleFor picks a chroma style that reads on the theme's background.
func chromaStyleFor(theme *styles.Theme) *chroma.Style {
	name := "monokai"
	if theme != nil && !theme.IsDark {
		name = "github"
	}
	if s := chromaStyles.Get(name); s != nil {
		return s
	}
	return chromaStyles.Fallback
}

// chromaFormatterFor matches the formatter to the terminal's color depth.
func chromaFormatterFor(theme *styles.Theme) chroma.Formatter {
	name := "terminal256"
	if theme != nil {
		switch theme.ColorProfile {
		case termenv.TrueColor:
			name = "terminal16m"
		case termenv.ANSI:
			name = "terminal16"
		case termenv.Ascii:
			return nil
		}
	}
	if f := formatters.Get(name); f != nil {
		return f
	}
	return formatters.Fallback
}

// Highlight applies syntax highlighting for language. It returns code
// unchanged when highlighting is unavailable or fails.
func Highlight(code, language string, theme *styles.Theme) string {
	formatter := chromaFormatterFor(theme)
	if formatter == nil || code == "" {
		return code
	}

	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, chromaStyleFor(theme), iterator); err != nil {
		return code
	}
	return trimTrailingNewline(buf.String())
}

// trimTrailingNewline drops the line break lexers append to the last line,
// including one wrapped in a color reset.
func trimTrailingNewline(s string) string {
	const reset = "\x1b[0m"
	for {
		switch {
		case strings.HasSuffix(s, "\n"):
			s = strings.TrimSuffix(s, "\n")
		case strings.HasSuffix(s, "\n"+reset):
			s = strings.TrimSuffix(s, "\n"+reset) + reset
		default:
			return s
		}
	}
}
