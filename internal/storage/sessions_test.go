// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/stratchat/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSession() *Session {
	analysis := model.NewAssistantMessage("전략 분석 결과")
	analysis.Payload = &model.StrategyAnalysis{
		Indicators:   []string{"RSI"},
		StrategyType: "mean reversion",
	}

	result := model.NewAssistantMessage("백테스트 결과")
	result.Code = "print('hi')"
	result.Payload = &model.BacktestResult{
		TotalReturn: 12.5,
		NumTrades:   3,
		TradeHistory: []model.Trade{
			{EntryDate: "2024-01-02", ExitDate: "2024-01-03", EntryPrice: 100, ExitPrice: 110, PnL: 10, PnLPct: 0.1},
		},
		EquityCurve: model.EquityCurve{Labels: []string{"a", "b"}, Values: []float64{100, 110}},
	}

	loading := model.NewLoadingMessage("잠시만요")

	return &Session{
		Mode:     "confirm",
		Params:   model.DefaultParams(),
		LastCode: "print('hi')",
		Messages: []model.Message{
			model.NewUserMessage("RSI 30 이하에서 매수\n70 이상에서 매도"),
			analysis,
			loading,
			result,
		},
	}
}

func TestSaveAndLoad(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	sess := sampleSession()
	sess.Params.StopLoss = 3
	id, err := store.Save(ctx, sess)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, "RSI 30 이하에서 매수 70 이상에서 매도", sess.Summary)

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "confirm", loaded.Mode)
	assert.Equal(t, 3.0, loaded.Params.StopLoss)
	assert.Equal(t, "print('hi')", loaded.LastCode)

	// The loading placeholder is not persisted.
	require.Len(t, loaded.Messages, 3)
	assert.Equal(t, model.RoleUser, loaded.Messages[0].Role)

	analysis, ok := loaded.Messages[1].Payload.(*model.StrategyAnalysis)
	require.True(t, ok)
	assert.Equal(t, []string{"RSI"}, analysis.Indicators)

	bt, ok := loaded.Messages[2].Payload.(*model.BacktestResult)
	require.True(t, ok)
	assert.Equal(t, 12.5, bt.TotalReturn)
	require.Len(t, bt.TradeHistory, 1)
	assert.Equal(t, 110.0, bt.TradeHistory[0].ExitPrice)
	assert.Equal(t, "print('hi')", loaded.Messages[2].Code)
}

func TestSave_UpdatesExisting(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	sess := sampleSession()
	id, err := store.Save(ctx, sess)
	require.NoError(t, err)
	created := sess.CreatedAt

	sess.Messages = append(sess.Messages, model.NewUserMessage("진행"))
	id2, err := store.Save(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Len(t, loaded.Messages, 4)
	assert.Equal(t, created.UnixMilli(), loaded.CreatedAt.UnixMilli())

	metas, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, metas, 1)
}

func TestLoad_NotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLoad_RejectsUnknownRole(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Save(ctx, sampleSession())
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, `UPDATE messages SET role = 'tool' WHERE session_id = ?`, id)
	require.NoError(t, err)

	_, err = store.Load(ctx, id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown role "tool"`)
}

func TestList_MostRecentFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := store.Save(ctx, &Session{Messages: []model.Message{model.NewUserMessage("strategy")}})
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(5 * time.Millisecond)
	}

	metas, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 3)
	assert.Equal(t, ids[2], metas[0].ID)
	assert.Equal(t, ids[0], metas[2].ID)
	assert.Equal(t, 1, metas[0].MessageCount)

	sess, err := store.LoadByIndex(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, ids[2], sess.ID)

	_, err = store.LoadByIndex(ctx, 3)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSave_EnforcesLimit(t *testing.T) {
	store := openTestStore(t)
	store.MaxSessions = 2
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := store.Save(ctx, &Session{Summary: "s"})
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(5 * time.Millisecond)
	}

	metas, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, ids[3], metas[0].ID)
	assert.Equal(t, ids[2], metas[1].ID)

	_, err = store.Load(ctx, ids[0])
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSearch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, sampleSession())
	require.NoError(t, err)
	_, err = store.Save(ctx, &Session{Messages: []model.Message{
		model.NewUserMessage("MACD golden cross"),
		model.NewAssistantMessage("100% allocation"),
	}})
	require.NoError(t, err)

	got, err := store.Search(ctx, "macd")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Summary, "MACD")

	got, err = store.Search(ctx, "백테스트")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// Wildcards in the query are literal.
	got, err = store.Search(ctx, "%")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = store.Search(ctx, "")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestResolve(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Save(ctx, &Session{ID: "abc123", Summary: "one"})
	require.NoError(t, err)
	_, err = store.Save(ctx, &Session{ID: "abd456", Summary: "two"})
	require.NoError(t, err)

	got, err := store.Resolve(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = store.Resolve(ctx, "ab")
	assert.ErrorIs(t, err, ErrAmbiguousID)

	_, err = store.Resolve(ctx, "zz")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = store.Resolve(ctx, "  ")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteAndClear(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Save(ctx, sampleSession())
	require.NoError(t, err)
	_, err = store.Save(ctx, sampleSession())
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, id))
	assert.ErrorIs(t, store.Delete(ctx, id), ErrSessionNotFound)

	// Messages go with their session.
	var n int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM messages WHERE session_id = ?", id).Scan(&n))
	assert.Zero(t, n)

	require.NoError(t, store.Clear(ctx))
	metas, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestDecodePayload_UnknownKind(t *testing.T) {
	_, err := decodePayload("mystery", []byte("{}"))
	assert.Error(t, err)
}

func TestFormatSessionList(t *testing.T) {
	assert.Equal(t, "No sessions found.", FormatSessionList(nil))

	out := FormatSessionList([]SessionMeta{{
		ID:           "0123456789abcdef",
		Summary:      "RSI strategy",
		UpdatedAt:    time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		MessageCount: 7,
	}})
	assert.Contains(t, out, "01234567 ")
	assert.NotContains(t, out, "0123456789")
	assert.Contains(t, out, "2024-03-01 09:30")
	assert.Contains(t, out, "RSI strategy")
}

func TestExportMarkdown(t *testing.T) {
	sess := sampleSession()
	md := sess.ExportMarkdown()
	assert.True(t, strings.HasPrefix(md, "# Session "))
	assert.Contains(t, md, "```python\nprint('hi')\n```")
}
