// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sync"
	"time"
)

// MaxMessages is the most messages a store keeps. Oldest non-system
// messages are pruned first.
const MaxMessages = 1000

// Store is the ordered conversation log. All mutations run under the store
// lock against the current state and emit a change notification.
type Store struct {
	mu       sync.RWMutex
	messages []Message
	nextID   uint64
	changes  chan struct{}
}

// NewStore creates an empty store. The first appended message gets id 1.
func NewStore() *Store {
	return &Store{
		messages: make([]Message, 0, 32),
		changes:  make(chan struct{}, 1),
	}
}

// Changes returns a channel that receives after mutations. Notifications are
// coalesced: a receiver that falls behind sees one signal for many changes.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Append adds msg with a freshly allocated id and returns the id. Any id set
// on msg is ignored.
func (s *Store) Append(msg Message) uint64 {
	s.mu.Lock()
	s.nextID++
	msg.ID = s.nextID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.messages = append(s.messages, msg.clone())
	s.pruneLocked()
	s.mu.Unlock()

	s.notify()
	return msg.ID
}

// Patch merges p into the message with the given id. It returns false when
// the id is unknown or the message already carries a payload.
func (s *Store) Patch(id uint64, p Patch) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 || s.messages[idx].Payload != nil {
		s.mu.Unlock()
		return false
	}
	if p.IsEmpty() {
		// Nothing changes, so observers are not woken.
		s.mu.Unlock()
		return true
	}
	p.apply(&s.messages[idx])
	s.mu.Unlock()

	s.notify()
	return true
}

// RemoveWhere drops every message matching pred and returns how many were
// removed.
func (s *Store) RemoveWhere(pred func(Message) bool) int {
	s.mu.Lock()
	kept := s.messages[:0]
	removed := 0
	for _, m := range s.messages {
		if pred(m) {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	clear(s.messages[len(kept):])
	s.messages = kept
	s.mu.Unlock()

	if removed > 0 {
		s.notify()
	}
	return removed
}

// RemoveLoading drops all loading placeholders.
func (s *Store) RemoveLoading() int {
	return s.RemoveWhere(func(m Message) bool { return m.Loading })
}

// Clear removes every message. Ids keep increasing after a clear.
func (s *Store) Clear() {
	s.mu.Lock()
	s.messages = s.messages[:0]
	s.mu.Unlock()
	s.notify()
}

// Load replaces the log with msgs, reassigning ids in order. Used when a
// saved session is resumed.
func (s *Store) Load(msgs []Message) {
	s.mu.Lock()
	s.messages = s.messages[:0]
	for _, m := range msgs {
		s.nextID++
		m.ID = s.nextID
		m.IsRevealing, m.IsCodeRevealing, m.Loading = false, false, false
		s.messages = append(s.messages, m.clone())
	}
	s.pruneLocked()
	s.mu.Unlock()
	s.notify()
}

// pruneLocked drops the oldest non-system messages above MaxMessages.
func (s *Store) pruneLocked() {
	excess := len(s.messages) - MaxMessages
	if excess <= 0 {
		return
	}
	kept := make([]Message, 0, MaxMessages)
	for _, m := range s.messages {
		if excess > 0 && m.Role != RoleSystem {
			excess--
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns a copy of the message with the given id.
func (s *Store) Get(id uint64) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return Message{}, false
	}
	return s.messages[idx].clone(), true
}

// Exists reports whether a message with the given id is in the log.
func (s *Store) Exists(id uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(id) >= 0
}

// Snapshot returns deep copies of all messages in order.
func (s *Store) Snapshot() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.clone()
	}
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Last returns the most recent message matching pred.
func (s *Store) Last(pred func(Message) bool) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if pred(s.messages[i]) {
			return s.messages[i].clone(), true
		}
	}
	return Message{}, false
}

// indexLocked finds id by binary search; ids are strictly increasing.
func (s *Store) indexLocked(id uint64) int {
	lo, hi := 0, len(s.messages)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case s.messages[mid].ID == id:
			return mid
		case s.messages[mid].ID < id:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return -1
}
