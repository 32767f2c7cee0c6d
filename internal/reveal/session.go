// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reveal

import (
	"time"

	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/util"
)

// =============================================================================
// STATE
// =============================================================================

// State is the phase of a reveal session.
type State int

const (
	StateIdle State = iota
	StateTextRevealing
	StateCodeRevealing
	StateDone
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTextRevealing:
		return "text"
	case StateCodeRevealing:
		return "code"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// =============================================================================
// SESSION
// =============================================================================

// Session is the pure stepper behind one reveal. It never reads the store:
// every prefix is derived from its own counters.
type Session struct {
	text    []rune
	code    []rune
	hasCode bool
	payload model.Payload

	cfg   Config
	state State
	pos   int // runes revealed in the current phase
}

// NewSession creates a session for the given full text and code. An empty
// code string means there is no code phase and the message's code field is
// left unchanged.
func NewSession(text, code string, cfg Config) *Session {
	cfg = cfg.normalized()
	return &Session{
		text:    []rune(text),
		code:    []rune(code),
		hasCode: code != "",
		cfg:     cfg,
	}
}

// State returns the current phase.
func (s *Session) State() State {
	return s.state
}

// Start moves the session from Idle to TextRevealing and returns the patch
// that resets the target for revealing.
func (s *Session) Start() model.Patch {
	if s.state != StateIdle {
		return model.Patch{}
	}
	s.state = StateTextRevealing
	s.pos = 0

	p := model.Patch{
		Content:     model.String(""),
		IsRevealing: model.Bool(true),
	}
	if s.hasCode {
		p.Code = model.String("")
		p.IsCodeRevealing = model.Bool(false)
	}
	return p
}

// Next returns the next tick's patch and the delay before it should be
// applied. ok is false once both phases are complete; the caller then
// applies Final.
func (s *Session) Next() (patch model.Patch, wait time.Duration, ok bool) {
	if s.state == StateIdle {
		s.Start()
	}

	if s.state == StateTextRevealing {
		if s.pos < len(s.text) {
			s.pos++
			return model.Patch{
				Content:     model.String(string(s.text[:s.pos])),
				IsRevealing: model.Bool(true),
			}, s.cfg.TextInterval, true
		}
		s.pos = 0
		if s.hasCode {
			s.state = StateCodeRevealing
		} else {
			s.state = StateDone
		}
	}

	if s.state == StateCodeRevealing {
		if s.pos < len(s.code) {
			s.pos = min(s.pos+s.cfg.CodeChunk, len(s.code))
			return model.Patch{
				Code:            model.String(util.RunePrefix(s.code, s.pos)),
				IsCodeRevealing: model.Bool(true),
			}, s.cfg.CodeInterval, true
		}
		s.state = StateDone
	}

	return model.Patch{}, 0, false
}

// Progress returns the fraction of text and code runes revealed so far.
func (s *Session) Progress() float64 {
	total := len(s.text) + len(s.code)
	if total == 0 || s.state == StateDone {
		return 1
	}
	switch s.state {
	case StateTextRevealing:
		return float64(s.pos) / float64(total)
	case StateCodeRevealing:
		return float64(len(s.text)+s.pos) / float64(total)
	}
	return 0
}

// Final returns the single commit patch: full text, full code when present,
// reveal flags cleared and the payload attached.
func (s *Session) Final() model.Patch {
	s.state = StateDone

	p := model.Patch{
		Content:         model.String(string(s.text)),
		IsRevealing:     model.Bool(false),
		IsCodeRevealing: model.Bool(false),
		Payload:         s.payload,
	}
	if s.hasCode {
		p.Code = model.String(string(s.code))
	}
	return p
}
