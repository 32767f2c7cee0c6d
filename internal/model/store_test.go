// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AppendAssignsIncreasingIDs(t *testing.T) {
	s := NewStore()

	// Several appends in one turn, including after a removal, must never
	// reuse an id.
	ids := []uint64{
		s.Append(NewUserMessage("RSI가 30 이하일 때 매수")),
		s.Append(NewLoadingMessage("전략을 분석 중입니다...")),
	}
	s.RemoveLoading()
	ids = append(ids, s.Append(NewPlaceholder(RoleAssistant)))
	ids = append(ids, s.Append(NewPlaceholder(RoleAssistant)))

	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, ids[0], snap[0].ID)
	assert.Equal(t, ids[3], snap[2].ID)
}

func TestStore_AppendIgnoresCallerID(t *testing.T) {
	s := NewStore()
	msg := NewUserMessage("hi")
	msg.ID = 99
	id := s.Append(msg)
	assert.Equal(t, uint64(1), id)
}

func TestStore_ConcurrentAppendsAreUnique(t *testing.T) {
	s := NewStore()
	const n = 200

	var wg sync.WaitGroup
	ids := make(chan uint64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- s.Append(NewUserMessage("x"))
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool, n)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)

	snap := s.Snapshot()
	for i := 1; i < len(snap); i++ {
		assert.Greater(t, snap[i].ID, snap[i-1].ID)
	}
}

func TestStore_Patch(t *testing.T) {
	s := NewStore()
	id := s.Append(NewPlaceholder(RoleAssistant))

	ok := s.Patch(id, Patch{Content: String("AB"), IsRevealing: Bool(true)})
	require.True(t, ok)

	msg, found := s.Get(id)
	require.True(t, found)
	assert.Equal(t, "AB", msg.Content)
	assert.True(t, msg.IsRevealing)
	assert.Empty(t, msg.Code, "nil fields are left unchanged")

	assert.False(t, s.Patch(id+100, Patch{Content: String("x")}), "unknown id is a no-op")
}

func TestStore_EmptyPatchDoesNotNotify(t *testing.T) {
	s := NewStore()
	id := s.Append(NewPlaceholder(RoleAssistant))
	<-s.Changes()

	assert.True(t, s.Patch(id, Patch{}))
	select {
	case <-s.Changes():
		t.Fatal("empty patch should not notify")
	default:
	}
	assert.False(t, s.Patch(id+1, Patch{}), "unknown id is still reported")
}

func TestStore_PayloadMakesMessageImmutable(t *testing.T) {
	s := NewStore()
	id := s.Append(NewPlaceholder(RoleAssistant))

	result := &BacktestResult{TotalReturn: 12.5, NumTrades: 3}
	require.True(t, s.Patch(id, Patch{
		Content:     String("done"),
		IsRevealing: Bool(false),
		Payload:     result,
	}))

	assert.False(t, s.Patch(id, Patch{Content: String("changed")}))

	// Mutating the caller's value must not leak into the store.
	result.NumTrades = 100

	msg, _ := s.Get(id)
	assert.Equal(t, "done", msg.Content)
	got, ok := msg.Payload.(*BacktestResult)
	require.True(t, ok)
	assert.Equal(t, 3, got.NumTrades)
}

func TestStore_RemoveWhere(t *testing.T) {
	s := NewStore()
	s.Append(NewUserMessage("a"))
	s.Append(NewLoadingMessage("loading 1"))
	s.Append(NewLoadingMessage("loading 2"))
	s.Append(NewAssistantMessage("b"))

	assert.Equal(t, 2, s.RemoveLoading())
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 0, s.RemoveLoading())

	for _, m := range s.Snapshot() {
		assert.False(t, m.Loading)
	}
}

func TestStore_SnapshotIsDeepCopy(t *testing.T) {
	s := NewStore()
	id := s.Append(NewAssistantMessage("x"))
	s.Patch(id, Patch{Payload: &StrategyAnalysis{Indicators: []string{"RSI"}}})

	snap := s.Snapshot()
	snap[0].Content = "mutated"
	snap[0].Payload.(*StrategyAnalysis).Indicators[0] = "MACD"

	msg, _ := s.Get(id)
	assert.Equal(t, "x", msg.Content)
	assert.Equal(t, "RSI", msg.Payload.(*StrategyAnalysis).Indicators[0])
}

func TestStore_ChangesCoalesce(t *testing.T) {
	s := NewStore()
	s.Append(NewUserMessage("a"))
	s.Append(NewUserMessage("b"))

	select {
	case <-s.Changes():
	default:
		t.Fatal("expected a change notification")
	}
	select {
	case <-s.Changes():
		t.Fatal("notifications should coalesce")
	default:
	}
}

func TestStore_Prune(t *testing.T) {
	s := NewStore()
	s.Append(NewSystemMessage("welcome"))
	for i := 0; i < MaxMessages+5; i++ {
		s.Append(NewUserMessage("m"))
	}

	snap := s.Snapshot()
	assert.Len(t, snap, MaxMessages)
	assert.Equal(t, RoleSystem, snap[0].Role, "system messages survive pruning")
}

func TestStore_ClearKeepsCounter(t *testing.T) {
	s := NewStore()
	first := s.Append(NewUserMessage("a"))
	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Greater(t, s.Append(NewUserMessage("b")), first)
}

func TestStore_Load(t *testing.T) {
	s := NewStore()
	s.Append(NewUserMessage("old"))

	msgs := []Message{NewUserMessage("q"), NewAssistantMessage("a")}
	msgs[1].IsRevealing = true
	s.Load(msgs)

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "q", snap[0].Content)
	assert.False(t, snap[1].IsRevealing)
	assert.Greater(t, snap[1].ID, snap[0].ID)
}

func TestStore_Last(t *testing.T) {
	s := NewStore()
	s.Append(Message{Role: RoleAssistant, Content: "first", Code: "a = 1"})
	s.Append(Message{Role: RoleAssistant, Content: "second", Code: "b = 2"})
	s.Append(NewUserMessage("q"))

	msg, ok := s.Last(func(m Message) bool { return m.Code != "" })
	require.True(t, ok)
	assert.Equal(t, "b = 2", msg.Code)

	_, ok = s.Last(func(m Message) bool { return m.Role == RoleError })
	assert.False(t, ok)
}
