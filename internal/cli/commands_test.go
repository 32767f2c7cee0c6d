// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/stratchat/internal/backend"
	"github.com/jeranaias/stratchat/internal/config"
	"github.com/jeranaias/stratchat/internal/market"
	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/storage"
)

// testConfig returns defaults rooted in a temporary STRATCHAT_HOME.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.HomeEnv, dir)
	for _, key := range []string{"STRATCHAT_BACKEND_URL", "STRATCHAT_MODE", "STRATCHAT_NO_MARKET", "STRATCHAT_LOG"} {
		t.Setenv(key, "")
	}
	cfg := config.Default()
	cfg.SetDefaults()
	cfg.Storage.Path = filepath.Join(dir, "sessions.db")
	cfg.Log.Path = filepath.Join(dir, "stratchat.log")
	cfg.Defaults.StartDate = "2024-01-01"
	cfg.Defaults.EndDate = "2024-01-05"
	return cfg
}

func testCandles(n int) []model.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, n)
	for i := range candles {
		open := 42000 + float64(i)*10
		candles[i] = model.Candle{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   open,
			High:   open + 50,
			Low:    open - 50,
			Close:  open + 5,
			Volume: 100 + float64(i),
		}
	}
	return candles
}

// =============================================================================
// CONFIG COMMAND
// =============================================================================

func TestConfig_SetThenGet(t *testing.T) {
	testConfig(t)
	out, _ := captureOutput(t)

	require.NoError(t, runConfig(Args{Raw: []string{"set", "turn.mode", "simple"}, Quiet: true}))

	path, err := config.ConfigPathTOML()
	require.NoError(t, err)
	assert.FileExists(t, path)

	require.NoError(t, runConfig(Args{Raw: []string{"get", "turn.mode"}}))
	assert.Equal(t, "simple\n", out.String())
}

func TestConfig_SetRejectsInvalidValue(t *testing.T) {
	testConfig(t)
	captureOutput(t)

	err := runConfig(Args{Raw: []string{"set", "backend.url", "not a url"}})
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))
}

func TestConfig_UnknownKey(t *testing.T) {
	testConfig(t)
	captureOutput(t)

	err := runConfig(Args{Raw: []string{"get", "backend.nope"}})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Example, "backend.url")
}

func TestConfig_MissingArguments(t *testing.T) {
	testConfig(t)
	captureOutput(t)

	assert.Equal(t, ExitUsageError, GetExitCode(runConfig(Args{Raw: []string{"get"}})))
	assert.Equal(t, ExitUsageError, GetExitCode(runConfig(Args{Raw: []string{"set", "turn.mode"}})))
	assert.Equal(t, ExitUsageError, GetExitCode(runConfig(Args{Raw: []string{"frobnicate"}})))
}

func TestConfig_PathAndShow(t *testing.T) {
	testConfig(t)
	out, _ := captureOutput(t)

	require.NoError(t, runConfig(Args{Raw: []string{"path"}}))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out.String()), "config.toml"))

	out.Reset()
	require.NoError(t, runConfig(Args{Raw: []string{"show"}}))
	assert.Contains(t, out.String(), "[backend]")
	assert.Contains(t, out.String(), "[turn]")
}

// =============================================================================
// HISTORY COMMAND
// =============================================================================

func openTestSessions(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func saveTestSession(t *testing.T, store *storage.Store, text string) string {
	t.Helper()
	now := time.Now()
	id, err := store.Save(context.Background(), &storage.Session{
		Mode:   "confirm",
		Params: model.DefaultParams(),
		Messages: []model.Message{
			{Role: model.RoleUser, Content: text, CreatedAt: now},
			{Role: model.RoleAssistant, Content: "분석 결과", CreatedAt: now},
		},
	})
	require.NoError(t, err)
	return id
}

func TestHistory_ListAndSearch(t *testing.T) {
	store := openTestSessions(t)
	out, _ := captureOutput(t)
	ctx := context.Background()

	require.NoError(t, runHistory(ctx, store, Args{}, true))
	assert.Equal(t, "No sessions found.\n", out.String())

	id := saveTestSession(t, store, "골든 크로스 매수")
	saveTestSession(t, store, "RSI 과매도 매수")

	out.Reset()
	require.NoError(t, runHistory(ctx, store, Args{Raw: []string{"list"}}, true))
	assert.Contains(t, out.String(), id[:8])

	out.Reset()
	require.NoError(t, runHistory(ctx, store, Args{Raw: []string{"search", "골든"}, JSON: true}, true))
	var metas []storage.SessionMeta
	decodeJSON(t, out.Bytes(), &metas)
	require.Len(t, metas, 1)
	assert.Equal(t, id, metas[0].ID)
}

func TestHistory_ShowByIndexAndPrefix(t *testing.T) {
	store := openTestSessions(t)
	out, _ := captureOutput(t)
	ctx := context.Background()
	id := saveTestSession(t, store, "볼린저 밴드 하단 매수")

	require.NoError(t, runHistory(ctx, store, Args{Raw: []string{"show", "1", "--raw"}}, true))
	assert.Contains(t, out.String(), "# Session "+id)
	assert.Contains(t, out.String(), "볼린저 밴드 하단 매수")

	out.Reset()
	require.NoError(t, runHistory(ctx, store, Args{Raw: []string{"show", id[:6]}, JSON: true}, true))
	var exp SessionExport
	decodeJSON(t, out.Bytes(), &exp)
	assert.Equal(t, id, exp.ID)
	assert.Len(t, exp.Messages, 2)
}

func TestHistory_ShowMissing(t *testing.T) {
	store := openTestSessions(t)
	captureOutput(t)

	err := runHistory(context.Background(), store, Args{Raw: []string{"show", "99"}}, true)
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))
}

func TestHistory_DeleteAndClear(t *testing.T) {
	store := openTestSessions(t)
	captureOutput(t)
	ctx := context.Background()
	id := saveTestSession(t, store, "MACD 골든 크로스")
	saveTestSession(t, store, "이동평균 돌파")

	require.NoError(t, runHistory(ctx, store, Args{Raw: []string{"delete", id[:8]}, Quiet: true}, true))
	metas, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, metas, 1)

	err = runHistory(ctx, store, Args{Raw: []string{"clear"}}, true)
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	require.NoError(t, runHistory(ctx, store, Args{Raw: []string{"clear", "--confirm"}, Quiet: true}, true))
	metas, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, metas)
}

// =============================================================================
// DATA COMMAND
// =============================================================================

type fakeFetcher struct {
	res *backend.FetchDataResult
	err error
	req backend.FetchDataRequest
}

func (f *fakeFetcher) FetchData(_ context.Context, req backend.FetchDataRequest) (*backend.FetchDataResult, error) {
	f.req = req
	return f.res, f.err
}

func TestParseDataArgs(t *testing.T) {
	cfg := testConfig(t)

	opts, err := parseDataArgs(cfg, Args{Raw: []string{"--start", "2024-02-01", "--end=2024-02-03", "--max", "100", "--desc", "--sort", "Volume"}})
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", opts.Request.StartDate)
	assert.Equal(t, "2024-02-03", opts.Request.EndDate)
	assert.Equal(t, 100, opts.Request.MaxDataPoints)
	assert.Equal(t, "volume", opts.Sort)
	assert.True(t, opts.Desc)
	assert.Equal(t, cfg.UI.PageSize, opts.PageSize)

	bad := [][]string{
		{"--start", "01/02/2024"},
		{"--start", "2024-02-03", "--end", "2024-02-01"},
		{"--timeframe", "7m"},
		{"--max", "0"},
		{"--page", "two"},
	}
	for _, raw := range bad {
		_, err := parseDataArgs(cfg, Args{Raw: raw})
		assert.Equal(t, ExitUsageError, GetExitCode(err), raw)
	}
}

func TestRunData_JSON(t *testing.T) {
	cfg := testConfig(t)
	out, _ := captureOutput(t)
	src := &fakeFetcher{res: &backend.FetchDataResult{
		Summary: backend.FetchDataSummary{StartDate: "2024-01-01", EndDate: "2024-01-01"},
		Candles: testCandles(5),
		Logs:    []string{"fetched 5 rows"},
	}}

	opts, err := parseDataArgs(cfg, Args{})
	require.NoError(t, err)
	opts.JSON = true
	require.NoError(t, runData(context.Background(), cfg, src, opts))

	var data DataResult
	resp := decodeJSON(t, out.Bytes(), &data)
	assert.True(t, resp.Success)
	assert.Len(t, data.Candles, 5)
	require.NotNil(t, data.Stats)
	assert.Equal(t, 5, data.Stats.DataPoints)
	assert.Empty(t, data.Logs, "logs need --logs")
	assert.Equal(t, backend.DefaultFetchDataRequest(), src.req)
}

func TestRunData_Table(t *testing.T) {
	cfg := testConfig(t)
	out, _ := captureOutput(t)
	src := &fakeFetcher{res: &backend.FetchDataResult{
		Summary: backend.FetchDataSummary{StartDate: "2024-01-01", EndDate: "2024-01-01"},
		Candles: testCandles(3),
		Logs:    []string{"fetched 3 rows"},
	}}

	opts, err := parseDataArgs(cfg, Args{Raw: []string{"--logs", "--sort", "close", "--desc"}})
	require.NoError(t, err)
	require.NoError(t, runData(context.Background(), cfg, src, opts))
	assert.Contains(t, out.String(), "BTCUSDT 1h")
	assert.Contains(t, out.String(), "fetched 3 rows")
}

func TestRunData_Errors(t *testing.T) {
	cfg := testConfig(t)
	captureOutput(t)
	ctx := context.Background()

	src := &fakeFetcher{err: &backend.APIError{Status: http.StatusInternalServerError, Detail: "boom"}}
	opts, err := parseDataArgs(cfg, Args{})
	require.NoError(t, err)
	assert.Equal(t, ExitBackendError, GetExitCode(runData(ctx, cfg, src, opts)))

	src = &fakeFetcher{res: &backend.FetchDataResult{Candles: testCandles(2)}}
	opts.Sort = "color"
	assert.Equal(t, ExitUsageError, GetExitCode(runData(ctx, cfg, src, opts)))
}

func TestRunData_Empty(t *testing.T) {
	cfg := testConfig(t)
	out, _ := captureOutput(t)
	src := &fakeFetcher{res: &backend.FetchDataResult{}}

	opts, err := parseDataArgs(cfg, Args{})
	require.NoError(t, err)
	require.NoError(t, runData(context.Background(), cfg, src, opts))
	assert.Contains(t, out.String(), "No data in range.")
}

// =============================================================================
// MARKET COMMAND
// =============================================================================

type fakeMarket struct {
	candles []model.Candle
	err     error
	limit   int
}

func (f *fakeMarket) Klines(_ context.Context, _, _ string, limit int) ([]model.Candle, error) {
	f.limit = limit
	return f.candles, f.err
}

func TestParseMarketArgs(t *testing.T) {
	cfg := testConfig(t)

	opts, err := parseMarketArgs(cfg, Args{Raw: []string{"--interval", "4h", "--limit", "50", "--live"}})
	require.NoError(t, err)
	assert.Equal(t, "4h", opts.Interval)
	assert.Equal(t, 50, opts.Limit)
	assert.True(t, opts.Live)
	assert.Equal(t, cfg.Market.Symbol, opts.Symbol)

	_, err = parseMarketArgs(cfg, Args{Raw: []string{"--limit", "5000"}})
	assert.Equal(t, ExitUsageError, GetExitCode(err))
	_, err = parseMarketArgs(cfg, Args{Raw: []string{"--interval", "2w"}})
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestRunMarket_JSONSnapshot(t *testing.T) {
	cfg := testConfig(t)
	out, _ := captureOutput(t)
	src := &fakeMarket{candles: testCandles(24)}

	opts, err := parseMarketArgs(cfg, Args{Raw: []string{"--limit", "24"}})
	require.NoError(t, err)
	opts.JSON = true
	require.NoError(t, runMarket(context.Background(), cfg, src, opts))

	var data MarketData
	decodeJSON(t, out.Bytes(), &data)
	assert.Equal(t, 24, src.limit)
	assert.Equal(t, src.candles[23].Close, data.LastPrice)
	assert.Len(t, data.Candles, 24)
}

func TestRunMarket_Panel(t *testing.T) {
	cfg := testConfig(t)
	out, _ := captureOutput(t)
	src := &fakeMarket{candles: testCandles(24)}

	opts, err := parseMarketArgs(cfg, Args{})
	require.NoError(t, err)
	require.NoError(t, runMarket(context.Background(), cfg, src, opts))
	assert.Contains(t, out.String(), cfg.Market.Symbol)
}

func TestRunMarket_NoData(t *testing.T) {
	cfg := testConfig(t)
	captureOutput(t)

	opts, err := parseMarketArgs(cfg, Args{})
	require.NoError(t, err)
	err = runMarket(context.Background(), cfg, &fakeMarket{}, opts)
	assert.True(t, errors.Is(err, market.ErrNoData))
}

// =============================================================================
// SERVE-STUB COMMAND
// =============================================================================

func TestParseServeArgs(t *testing.T) {
	opts, err := parseServeArgs(Args{Raw: []string{"--addr", ":9000", "--latency", "50ms", "--fault", "/run-backtest=503"}})
	require.NoError(t, err)
	assert.Equal(t, ":9000", opts.Addr)
	assert.Equal(t, 50*time.Millisecond, opts.Latency)
	assert.Equal(t, map[string]int{"/run-backtest": 503}, opts.Faults)

	for _, spec := range []string{"/run-backtest", "/run-backtest=200", "/x=abc"} {
		_, err := parseServeArgs(Args{Raw: []string{"--fault", spec}})
		assert.Equal(t, ExitUsageError, GetExitCode(err), spec)
	}
}

func TestServeBanner(t *testing.T) {
	out, _ := captureOutput(t)
	printServeBanner(":8000")
	assert.Contains(t, out.String(), "http://127.0.0.1:8000")
	assert.Contains(t, out.String(), "ws://127.0.0.1:8000/ws")
}

// =============================================================================
// DOCTOR COMMAND
// =============================================================================

type fakeProber struct{ err error }

func (f fakeProber) Health(context.Context) error { return f.err }

func TestRunDoctor_Healthy(t *testing.T) {
	cfg := testConfig(t)
	out, _ := captureOutput(t)
	deps := doctorDeps{Backend: fakeProber{}, Market: &fakeMarket{candles: testCandles(1)}}

	require.NoError(t, runDoctor(context.Background(), cfg, nil, deps, true))

	var data DoctorData
	resp := decodeJSON(t, out.Bytes(), &data)
	assert.True(t, resp.Success)
	assert.True(t, data.Healthy)
	assert.Equal(t, 5, data.Passed)
	for _, c := range data.Checks {
		assert.Equal(t, "pass", c.State, c.Name)
	}
}

func TestRunDoctor_Failures(t *testing.T) {
	cfg := testConfig(t)
	out, _ := captureOutput(t)
	deps := doctorDeps{
		Backend: fakeProber{err: errors.New("connection refused")},
		Market:  &fakeMarket{err: errors.New("timeout")},
	}

	err := runDoctor(context.Background(), cfg, nil, deps, false)
	require.Error(t, err)
	assert.Contains(t, out.String(), "connection refused")
	assert.Contains(t, out.String(), "stratchat serve-stub")
	assert.Contains(t, out.String(), "1 warning")
	assert.Contains(t, out.String(), "1 failed")
}

func TestRunDoctor_BadConfigAndUnwritableHistory(t *testing.T) {
	cfg := testConfig(t)
	captureOutput(t)

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))
	cfg.Storage.Path = filepath.Join(blocker, "sessions.db")
	deps := doctorDeps{Backend: fakeProber{}, Market: &fakeMarket{candles: testCandles(1)}}

	check := checkHistoryWritable(cfg)
	assert.Equal(t, CheckFail, check.Status)

	check = checkConfigValid(errors.New("invalid config: backend.url: empty"))
	assert.Equal(t, CheckFail, check.Status)

	assert.Error(t, runDoctor(context.Background(), cfg, nil, deps, false))
}
