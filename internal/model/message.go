// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleError:
		return "Error"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleError, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one entry in the conversation log.
//
// Content and Code may be partially revealed while IsRevealing is set. Once
// Payload is attached the message no longer accepts patches.
type Message struct {
	ID        uint64    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Code      string    `json:"code,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Reveal state (not persisted)
	IsRevealing     bool `json:"-"`
	IsCodeRevealing bool `json:"-"`

	// Loading marks a transient placeholder shown while a backend call is in
	// flight. Placeholders are removed, never patched into real answers.
	Loading bool `json:"-"`

	Payload Payload `json:"-"`
}

// NewMessage creates a message with the given role and content. The store
// assigns the ID on append.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewPlaceholder creates an empty assistant or error message that a reveal
// will fill in.
func NewPlaceholder(role Role) Message {
	msg := NewMessage(role, "")
	msg.IsRevealing = true
	return msg
}

// NewLoadingMessage creates a transient "working on it" placeholder.
func NewLoadingMessage(content string) Message {
	msg := NewAssistantMessage(content)
	msg.Loading = true
	return msg
}

// IsSettled reports whether the message is fully revealed.
func (m Message) IsSettled() bool {
	return !m.IsRevealing && !m.IsCodeRevealing && !m.Loading
}

// Preview returns a single-line, rune-truncated preview of the content.
func (m Message) Preview(maxLen int) string {
	runes := []rune(strings.Join(strings.Fields(m.Content), " "))
	if len(runes) <= maxLen {
		return string(runes)
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// clone returns a copy whose payload does not alias the original.
func (m Message) clone() Message {
	if m.Payload != nil {
		m.Payload = m.Payload.clonePayload()
	}
	return m
}

// =============================================================================
// PATCH TYPE
// =============================================================================

// Patch is a partial update to a message. Nil fields are left unchanged.
type Patch struct {
	Content         *string
	Code            *string
	IsRevealing     *bool
	IsCodeRevealing *bool
	Loading         *bool
	Payload         Payload
}

// String returns a pointer to s, for building patches.
func String(s string) *string { return &s }

// Bool returns a pointer to b, for building patches.
func Bool(b bool) *bool { return &b }

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Content == nil && p.Code == nil && p.IsRevealing == nil &&
		p.IsCodeRevealing == nil && p.Loading == nil && p.Payload == nil
}

// apply merges p into m.
func (p Patch) apply(m *Message) {
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.Code != nil {
		m.Code = *p.Code
	}
	if p.IsRevealing != nil {
		m.IsRevealing = *p.IsRevealing
	}
	if p.IsCodeRevealing != nil {
		m.IsCodeRevealing = *p.IsCodeRevealing
	}
	if p.Loading != nil {
		m.Loading = *p.Loading
	}
	if p.Payload != nil {
		m.Payload = p.Payload.clonePayload()
	}
}
