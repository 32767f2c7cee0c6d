// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the stratchat TUI.

All colors are Lip Gloss AdaptiveColor values. The theme name from the config
(auto, dark or light) decides which half of each pair is used; auto asks the
terminal through termenv.

# Color System (colors.go)

  - Brand - header, prompt and command highlights
  - Accent - assistant messages and the equity chart
  - Gain / Loss - price and return direction, success and failure
  - Caution - warnings and pending confirmations

Status helpers pair every color with an ASCII marker ([OK], [X], [!], [i]) so
the meaning survives monochrome terminals:

	fmt.Println(styles.RenderSuccess("config saved"))
	fmt.Println(styles.RenderChange(-1.2, "-1.20%"))

# Theme (theme.go)

Theme groups the lipgloss styles used by the chat view, the components and
the CLI:

	theme := styles.NewTheme(cfg.UI.Theme)
	theme.SetSize(width, height)

# Animations (animations.go)

Spinner frames for loading placeholders, the typing cursor shown while a
message is revealed, and a text progress bar.
*/
package styles
