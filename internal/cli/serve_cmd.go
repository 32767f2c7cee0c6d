// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve_cmd.go - The "serve-stub" command: local synthetic backtest service.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jeranaias/stratchat/internal/server"
)

// shutdownTimeout bounds the graceful stop of serve-stub.
const shutdownTimeout = 5 * time.Second

// serveOptions are the parsed serve-stub flags.
type serveOptions struct {
	Addr    string
	Latency time.Duration
	Tick    time.Duration
	Faults  map[string]int
}

// HandleServeStub handles the "serve-stub" command.
func HandleServeStub(args Args) {
	opts, err := parseServeArgs(args)
	exitOnError(err)

	srv := newStubServer(opts)
	if !args.Quiet {
		printServeBanner(srv.Addr())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		exitOnError(wrapErr("serve-stub", "listen", err))
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		exitOnError(srv.Shutdown(shutdownCtx))
		printSuccess(args.Quiet, "stopped after %d requests", srv.Stats().TotalRequests)
	}
}

func parseServeArgs(args Args) (serveOptions, error) {
	p := NewArgParser(args.Raw)
	opts := serveOptions{
		Addr:   p.FlagOrDefault("addr", server.DefaultAddr),
		Faults: map[string]int{},
	}

	var err error
	if opts.Latency, err = p.FlagDuration("latency", 0); err != nil {
		return opts, err
	}
	if opts.Tick, err = p.FlagDuration("tick", server.DefaultTickInterval); err != nil {
		return opts, err
	}

	// --fault /run-backtest=500 makes one route fail, for testing error paths.
	if spec := p.Flag("fault"); spec != "" {
		path, code, ok := strings.Cut(spec, "=")
		status, convErr := strconv.Atoi(code)
		if !ok || convErr != nil || status < 400 || status > 599 {
			return opts, &ValidationError{Field: "--fault", Value: spec, Reason: "want PATH=STATUS", Example: "--fault /run-backtest=500"}
		}
		opts.Faults[path] = status
	}
	return opts, nil
}

func newStubServer(opts serveOptions) *server.Server {
	srv := server.New(opts.Addr).WithLatency(opts.Latency).WithTickInterval(opts.Tick)
	for path, status := range opts.Faults {
		srv.WithFault(path, status)
	}
	return srv
}

func printServeBanner(addr string) {
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	fmt.Fprintln(stdout, TitleStyle.Render("stratchat stub service"))
	printKV("Listening", addr)
	printKV("Backend URL", "http://"+host)
	printKV("Exchange REST", "http://"+host)
	printKV("Exchange stream", "ws://"+host+"/ws")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, DimStyle.Render("Point the client at it with:"))
	fmt.Fprintln(stdout, DimStyle.Render("  stratchat config set backend.url http://"+host))
	fmt.Fprintln(stdout, DimStyle.Render("  stratchat config set market.rest_url http://"+host))
	fmt.Fprintln(stdout, DimStyle.Render("  stratchat config set market.stream_url ws://"+host+"/ws"))
	fmt.Fprintln(stdout, DimStyle.Render("Ctrl+C stops the server."))
}
