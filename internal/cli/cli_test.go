// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/stratchat/internal/backend"
	"github.com/jeranaias/stratchat/internal/config"
	"github.com/jeranaias/stratchat/internal/storage"
	"github.com/jeranaias/stratchat/internal/turn"
)

// captureOutput redirects stdout and stderr for the rest of the test.
func captureOutput(t *testing.T) (out, errOut *bytes.Buffer) {
	t.Helper()
	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	oldOut, oldErr := stdout, stderr
	stdout, stderr = out, errOut
	t.Cleanup(func() {
		stdout, stderr = oldOut, oldErr
	})
	return out, errOut
}

// decodeJSON unwraps a JSONResponse envelope into data.
func decodeJSON(t *testing.T, raw []byte, data interface{}) JSONResponse {
	t.Helper()
	var env struct {
		JSONResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env.JSONResponse
}

// =============================================================================
// PARSE TESTS
// =============================================================================

func TestParseArgs_Commands(t *testing.T) {
	tests := []struct {
		argv []string
		want Command
	}{
		{nil, CmdTUI},
		{[]string{"tui"}, CmdTUI},
		{[]string{"chat"}, CmdChat},
		{[]string{"ask", "RSI"}, CmdAsk},
		{[]string{"market"}, CmdMarket},
		{[]string{"data"}, CmdData},
		{[]string{"history"}, CmdHistory},
		{[]string{"hist"}, CmdHistory},
		{[]string{"sessions", "list"}, CmdHistory},
		{[]string{"config", "show"}, CmdConfig},
		{[]string{"serve-stub"}, CmdServeStub},
		{[]string{"stub"}, CmdServeStub},
		{[]string{"doctor"}, CmdDoctor},
		{[]string{"version"}, CmdVersion},
		{[]string{"--version"}, CmdVersion},
		{[]string{"help"}, CmdHelp},
		{[]string{"-h"}, CmdHelp},
		{[]string{"CHAT"}, CmdChat},
		{[]string{"backtest"}, CmdUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.argv), func(t *testing.T) {
			cmd, _ := ParseArgs(tt.argv)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestParseArgs_GlobalFlagsAnywhere(t *testing.T) {
	cmd, args := ParseArgs([]string{"--json", "history", "show", "-q", "--config=/tmp/c.toml", "abc", "--backend", "http://x"})
	assert.Equal(t, CmdHistory, cmd)
	assert.True(t, args.JSON)
	assert.True(t, args.Quiet)
	assert.Equal(t, "/tmp/c.toml", args.ConfigPath)
	assert.Equal(t, "http://x", args.BackendURL)
	assert.Equal(t, []string{"show", "abc"}, args.Raw)
	assert.Equal(t, "show", args.Subcommand)
}

func TestParseArgs_Ask(t *testing.T) {
	cmd, args := ParseArgs([]string{"ask", "--mode", "simple", "골든", "크로스", "매수", "-v"})
	assert.Equal(t, CmdAsk, cmd)
	assert.Equal(t, "simple", args.Mode)
	assert.Equal(t, "골든 크로스 매수", args.Query)
	assert.True(t, args.Verbose)
}

func TestParseArgs_ChatResume(t *testing.T) {
	_, args := ParseArgs([]string{"chat", "-r", "3", "--theme", "light"})
	assert.Equal(t, "3", args.Resume)
	assert.Equal(t, "light", args.Theme)

	_, args = ParseArgs([]string{"tui", "--resume=ab12"})
	assert.Equal(t, "ab12", args.Resume)
}

func TestParseArgs_UnknownKeepsName(t *testing.T) {
	cmd, args := ParseArgs([]string{"Histroy"})
	assert.Equal(t, CmdUnknown, cmd)
	assert.Equal(t, "Histroy", args.Name)
}

// =============================================================================
// SUGGESTION TESTS
// =============================================================================

func TestSuggestCommand(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"histroy", "history"},
		{"markt", "market"},
		{"confg", "config"},
		{"doctr", "doctor"},
		{"qqqqqqqq", ""},
		{"x", ""},
		{"chat", ""}, // exact match needs no suggestion
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, SuggestCommand(tt.input))
		})
	}
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("ask", "ask"))
	assert.Equal(t, 3, levenshtein("", "ask"))
	assert.Equal(t, 1, levenshtein("ask", "asks"))
	assert.Equal(t, 2, levenshtein("data", "dtaa"))
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", &UsageError{Msg: "bad"}, ExitUsageError},
		{"validation", &ValidationError{Field: "--limit"}, ExitUsageError},
		{"empty input", turn.ErrEmptyInput, ExitUsageError},
		{"no code", wrapErr("chat", "run", turn.ErrNoCode), ExitUsageError},
		{"config", fmt.Errorf("invalid config: %w", config.ValidationError{Field: "backend.url"}), ExitConfigError},
		{"not found", wrapErr("history", "show", storage.ErrSessionNotFound), ExitNotFoundError},
		{"ambiguous", storage.ErrAmbiguousID, ExitNotFoundError},
		{"timeout", wrapErr("data", "fetch", context.DeadlineExceeded), ExitTimeoutError},
		{"api", wrapErr("data", "fetch", &backend.APIError{Status: 500}), ExitBackendError},
		{"turn", fmt.Errorf("%w: boom", ErrTurnFailed), ExitBackendError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	uerr := &UsageError{Msg: "missing key", Usage: "stratchat config get KEY"}
	assert.Equal(t, "missing key\nUsage: stratchat config get KEY", uerr.Error())

	verr := &ValidationError{Field: "--limit", Value: "0", Reason: "must be between 1 and 1000", Example: "--limit 100"}
	assert.Equal(t, "invalid --limit: must be between 1 and 1000 (got: 0)\nExample: --limit 100", verr.Error())

	cerr := wrapErr("history", "delete", storage.ErrSessionNotFound)
	assert.Contains(t, cerr.Error(), "history delete: ")
	assert.True(t, errors.Is(cerr, storage.ErrSessionNotFound))
	assert.Nil(t, wrapErr("x", "y", nil))
}

// =============================================================================
// OUTPUT TESTS
// =============================================================================

func TestHandleVersion_JSON(t *testing.T) {
	out, _ := captureOutput(t)
	HandleVersion(Args{JSON: true})

	var data VersionData
	resp := decodeJSON(t, out.Bytes(), &data)
	assert.True(t, resp.Success)
	assert.Equal(t, "version", resp.Command)
	assert.Equal(t, Version, data.Version)
	assert.NotEmpty(t, data.GoVersion)
}

func TestPrintUsage(t *testing.T) {
	out, _ := captureOutput(t)
	HandleHelp()
	assert.Contains(t, out.String(), "stratchat ask")
	assert.Contains(t, out.String(), "Version: "+Version)
}

func TestJSONErrorResponse(t *testing.T) {
	resp := NewJSONErrorResponse("data", errors.New("boom"))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "boom", *resp.Error)
}
