// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/ui/styles"
)

// =============================================================================
// PARAMS FORM
// =============================================================================

// ParamsSubmittedMsg carries validated parameters out of the form.
type ParamsSubmittedMsg struct {
	Params model.Params
}

// ParamsCancelledMsg is sent when the form is closed without saving.
type ParamsCancelledMsg struct{}

// paramHints are shown as placeholders.
var paramHints = map[string]string{
	"capital":     "starting capital, e.g. 10000",
	"capital_pct": "fraction per trade, 0-1",
	"stop_loss":   "percent, e.g. 5",
	"take_profit": "percent, e.g. 10",
	"start_date":  model.DateLayout,
	"end_date":    model.DateLayout,
	"commission":  "fraction, e.g. 0.001",
	"timeframe":   strings.Join(model.Timeframes, " "),
}

// ParamsForm edits backtest parameters one field per key.
type ParamsForm struct {
	base   model.Params
	inputs []textinput.Model
	focus  int
	err    error
	theme  *styles.Theme
}

// NewParamsForm creates a form filled with p.
func NewParamsForm(theme *styles.Theme, p model.Params) ParamsForm {
	inputs := make([]textinput.Model, len(model.ParamKeys))
	for i, key := range model.ParamKeys {
		in := textinput.New()
		in.Prompt = ""
		in.CharLimit = 32
		in.Width = 24
		in.Placeholder = paramHints[key]
		if v, ok := p.Get(key); ok {
			in.SetValue(v)
		}
		inputs[i] = in
	}
	inputs[0].Focus()
	return ParamsForm{base: p, inputs: inputs, theme: theme}
}

// Init starts the cursor blinking.
func (f ParamsForm) Init() tea.Cmd {
	return textinput.Blink
}

// Focused returns the key of the focused field.
func (f ParamsForm) Focused() string {
	return model.ParamKeys[f.focus]
}

// Err returns the last validation error.
func (f ParamsForm) Err() error {
	return f.err
}

// Result applies every field to the original parameters and validates them.
func (f ParamsForm) Result() (model.Params, error) {
	p := f.base
	for i, key := range model.ParamKeys {
		if err := p.Set(key, f.inputs[i].Value()); err != nil {
			return f.base, err
		}
	}
	if err := p.Validate(); err != nil {
		return f.base, err
	}
	return p, nil
}

// Update handles navigation: tab and arrows move between fields, enter on
// the last field or ctrl+s submits, esc cancels.
func (f ParamsForm) Update(msg tea.Msg) (ParamsForm, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc":
			return f, func() tea.Msg { return ParamsCancelledMsg{} }
		case "ctrl+s":
			return f.submit()
		case "enter":
			if f.focus == len(f.inputs)-1 {
				return f.submit()
			}
			return f.move(1), nil
		case "tab", "down":
			return f.move(1), nil
		case "shift+tab", "up":
			return f.move(-1), nil
		}
	}

	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return f, cmd
}

func (f ParamsForm) submit() (ParamsForm, tea.Cmd) {
	p, err := f.Result()
	if err != nil {
		f.err = err
		return f, nil
	}
	f.err = nil
	return f, func() tea.Msg { return ParamsSubmittedMsg{Params: p} }
}

func (f ParamsForm) move(delta int) ParamsForm {
	// Copy so the caller's form keeps its own focus state.
	inputs := make([]textinput.Model, len(f.inputs))
	copy(inputs, f.inputs)
	inputs[f.focus].Blur()
	f.focus = (f.focus + delta + len(inputs)) % len(inputs)
	inputs[f.focus].Focus()
	f.inputs = inputs
	return f
}

// View renders the form.
func (f ParamsForm) View() string {
	var b strings.Builder
	b.WriteString(f.theme.SectionTitle.Render("Backtest parameters"))
	b.WriteString("\n")
	for i, key := range model.ParamKeys {
		label := f.theme.FormLabel
		if i == f.focus {
			label = f.theme.FormLabelFocus
		}
		b.WriteString(label.Render(key))
		b.WriteString(f.inputs[i].View())
		b.WriteString("\n")
	}
	if f.err != nil {
		b.WriteString(f.theme.FormError.Render(styles.StatusIndicators.Error + " " + f.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(f.theme.InputHint.Render("tab next  enter save on last field  ctrl+s save  esc cancel"))
	return f.theme.FormBox.Render(b.String())
}
