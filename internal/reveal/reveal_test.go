// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reveal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/stratchat/internal/model"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// manualClock hands every pending delay to the test, which fires it.
type manualClock struct {
	waits chan chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{waits: make(chan chan time.Time, 256)}
}

func (c *manualClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.waits <- ch
	return ch
}

// tick fires the next pending delay.
func (c *manualClock) tick(t *testing.T) {
	t.Helper()
	select {
	case w := <-c.waits:
		w <- time.Now()
	case <-time.After(2 * time.Second):
		t.Fatal("no pending tick")
	}
}

// instantClock fires every delay immediately.
type instantClock struct{}

func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// recordingStore records the id of every patch applied to the wrapped store.
type recordingStore struct {
	*model.Store
	mu  sync.Mutex
	ids []uint64
}

func (r *recordingStore) Patch(id uint64, p model.Patch) bool {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
	return r.Store.Patch(id, p)
}

func (r *recordingStore) patchedIDs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.ids...)
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reveal did not finish")
	}
}

func instantConfig() Config {
	cfg := DefaultConfig()
	cfg.Clock = instantClock{}
	return cfg
}

// =============================================================================
// CONTROLLER TESTS
// =============================================================================

func TestController_RevealText(t *testing.T) {
	store := model.NewStore()
	ctrl := NewController(store, instantConfig())
	defer ctrl.Close()

	id := store.Append(model.NewPlaceholder(model.RoleAssistant))
	waitDone(t, ctrl.Reveal(id, "ABC", ""))

	msg, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, "ABC", msg.Content)
	assert.False(t, msg.IsRevealing)
	assert.False(t, msg.IsCodeRevealing)
	assert.Empty(t, msg.Code)
}

func TestController_RevealCodeInChunks(t *testing.T) {
	store := model.NewStore()
	clock := newManualClock()
	cfg := DefaultConfig()
	cfg.Clock = clock
	ctrl := NewController(store, cfg)
	defer ctrl.Close()

	id := store.Append(model.NewPlaceholder(model.RoleAssistant))
	done := ctrl.Reveal(id, "", "CODE1234567890")

	clock.tick(t)
	require.Eventually(t, func() bool {
		msg, _ := store.Get(id)
		return msg.Code == "CODE123456"
	}, time.Second, time.Millisecond)

	msg, _ := store.Get(id)
	assert.True(t, msg.IsCodeRevealing)
	assert.True(t, msg.IsRevealing)

	clock.tick(t)
	waitDone(t, done)

	msg, _ = store.Get(id)
	assert.Equal(t, "CODE1234567890", msg.Code)
	assert.Equal(t, "", msg.Content)
	assert.False(t, msg.IsCodeRevealing)
	assert.False(t, msg.IsRevealing)
}

func TestController_UnknownTargetIsNoop(t *testing.T) {
	store := model.NewStore()
	ctrl := NewController(store, instantConfig())
	defer ctrl.Close()

	done := ctrl.Reveal(42, "text", "")
	select {
	case <-done:
	default:
		t.Fatal("expected a closed channel for an unknown target")
	}
	assert.Equal(t, 0, store.Len())
}

func TestController_SwitchFinalizesPreviousTarget(t *testing.T) {
	rec := &recordingStore{Store: model.NewStore()}
	clock := newManualClock()
	cfg := DefaultConfig()
	cfg.Clock = clock
	ctrl := NewController(rec, cfg)
	defer ctrl.Close()

	idA := rec.Append(model.NewPlaceholder(model.RoleAssistant))
	idB := rec.Append(model.NewPlaceholder(model.RoleAssistant))

	ctrl.Reveal(idA, "ABCDEF", "a = 1")
	clock.tick(t)
	clock.tick(t)

	doneB := ctrl.Reveal(idB, "XYZ", "")
	switchedAt := len(rec.patchedIDs())

	msgA, _ := rec.Get(idA)
	assert.Equal(t, "ABCDEF", msgA.Content, "previous target is finalized, not truncated")
	assert.Equal(t, "a = 1", msgA.Code)
	assert.False(t, msgA.IsRevealing)

	for {
		select {
		case w := <-clock.waits:
			w <- time.Now()
			continue
		case <-doneB:
		}
		break
	}

	for _, id := range rec.patchedIDs()[switchedAt:] {
		assert.Equal(t, idB, id, "no tick touches the previous target after the switch")
	}

	msgA, _ = rec.Get(idA)
	assert.Equal(t, "ABCDEF", msgA.Content)
	msgB, _ := rec.Get(idB)
	assert.Equal(t, "XYZ", msgB.Content)
	assert.False(t, msgB.IsRevealing)
}

func TestController_PayloadAttachedAtCompletion(t *testing.T) {
	store := model.NewStore()
	clock := newManualClock()
	cfg := DefaultConfig()
	cfg.Clock = clock
	ctrl := NewController(store, cfg)
	defer ctrl.Close()

	id := store.Append(model.NewPlaceholder(model.RoleAssistant))
	done := ctrl.Reveal(id, "OK", "", WithPayload(&model.BacktestResult{NumTrades: 7}))

	clock.tick(t)
	msg, _ := store.Get(id)
	assert.Nil(t, msg.Payload, "payload never appears mid-reveal")

	clock.tick(t)
	waitDone(t, done)

	msg, _ = store.Get(id)
	require.NotNil(t, msg.Payload)
	assert.Equal(t, 7, msg.Payload.(*model.BacktestResult).NumTrades)
}

func TestController_CloseStopsWithoutFinalizing(t *testing.T) {
	store := model.NewStore()
	clock := newManualClock()
	cfg := DefaultConfig()
	cfg.Clock = clock
	ctrl := NewController(store, cfg)

	id := store.Append(model.NewPlaceholder(model.RoleAssistant))
	done := ctrl.Reveal(id, "ABCDEF", "")
	clock.tick(t)

	ctrl.Close()
	waitDone(t, done)

	msg, _ := store.Get(id)
	assert.True(t, msg.IsRevealing)
	assert.NotEqual(t, "ABCDEF", msg.Content)

	after := ctrl.Reveal(id, "again", "")
	waitDone(t, after)
	msg, _ = store.Get(id)
	assert.NotEqual(t, "again", msg.Content, "closed controller ignores new reveals")
}

func TestController_FinishCommitsImmediately(t *testing.T) {
	store := model.NewStore()
	clock := newManualClock()
	cfg := DefaultConfig()
	cfg.Clock = clock
	ctrl := NewController(store, cfg)
	defer ctrl.Close()

	id := store.Append(model.NewPlaceholder(model.RoleAssistant))
	ctrl.Reveal(id, "long text", "x = 1")

	active, ok := ctrl.Active()
	assert.True(t, ok)
	assert.Equal(t, id, active)

	ctrl.Finish()

	msg, _ := store.Get(id)
	assert.Equal(t, "long text", msg.Content)
	assert.Equal(t, "x = 1", msg.Code)
	assert.False(t, msg.IsRevealing)

	_, ok = ctrl.Active()
	assert.False(t, ok)
}

func TestController_Wait(t *testing.T) {
	store := model.NewStore()
	ctrl := NewController(store, instantConfig())
	defer ctrl.Close()

	assert.NoError(t, ctrl.Wait(context.Background()))

	id := store.Append(model.NewPlaceholder(model.RoleAssistant))
	ctrl.Reveal(id, "hello world", "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ctrl.Wait(ctx))

	msg, _ := store.Get(id)
	assert.Equal(t, "hello world", msg.Content)
}

func TestController_WaitHonorsContext(t *testing.T) {
	store := model.NewStore()
	cfg := DefaultConfig()
	cfg.Clock = newManualClock()
	ctrl := NewController(store, cfg)
	defer ctrl.Close()

	id := store.Append(model.NewPlaceholder(model.RoleAssistant))
	ctrl.Reveal(id, "stuck", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ctrl.Wait(ctx), context.Canceled)
}

func TestConfig_Normalized(t *testing.T) {
	cfg := Config{TextInterval: -1, CodeChunk: 0}.normalized()
	assert.Equal(t, time.Duration(0), cfg.TextInterval)
	assert.Equal(t, DefaultCodeChunk, cfg.CodeChunk)
	assert.NotNil(t, cfg.Clock)
}

func TestController_Progress(t *testing.T) {
	store := model.NewStore()
	clock := newManualClock()
	cfg := DefaultConfig()
	cfg.Clock = clock
	ctrl := NewController(store, cfg)
	defer ctrl.Close()

	_, ok := ctrl.Progress()
	assert.False(t, ok)

	id := store.Append(model.NewPlaceholder(model.RoleAssistant))
	done := ctrl.Reveal(id, "ABCD", "")

	clock.tick(t)
	require.Eventually(t, func() bool {
		p, ok := ctrl.Progress()
		return ok && p == 0.25
	}, time.Second, time.Millisecond)

	ctrl.Finish()
	waitDone(t, done)
	_, ok = ctrl.Progress()
	assert.False(t, ok)
}
