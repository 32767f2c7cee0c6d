// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr matches the client's default backend URL.
	DefaultAddr = "127.0.0.1:8000"

	// MaxRequestBodySize bounds request bodies.
	MaxRequestBodySize = "1M"

	// MaxBars bounds how many candles a single request may synthesize.
	MaxBars = 50000

	// DefaultTickInterval is how often the kline stream pushes an update.
	DefaultTickInterval = time.Second

	// Version is the stub server version.
	Version = "0.1.0"
)

// ============================================================================
// STATS
// ============================================================================

// Stats tracks request counts per route.
type Stats struct {
	TotalRequests int64            `json:"total_requests"`
	Errors        int64            `json:"errors"`
	ByRoute       map[string]int64 `json:"by_route"`
	StartTime     time.Time        `json:"start_time"`
}

type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{stats: Stats{ByRoute: map[string]int64{}, StartTime: time.Now()}}
}

func (r *statsRecorder) record(route string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.TotalRequests++
	r.stats.ByRoute[route]++
	if status >= 400 {
		r.stats.Errors++
	}
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.ByRoute = make(map[string]int64, len(r.stats.ByRoute))
	for k, v := range r.stats.ByRoute {
		s.ByRoute[k] = v
	}
	return s
}

// ============================================================================
// SERVER
// ============================================================================

// Server is a local stand-in for the strategy/backtest service and for the
// exchange's kline REST and websocket endpoints. Responses are synthetic and
// deterministic.
type Server struct {
	echo  *echo.Echo
	addr  string
	stats *statsRecorder

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	latency time.Duration
	faults  map[string]int
	tick    time.Duration
	now     func() time.Time
}

// New creates a Server listening on addr. An empty addr uses DefaultAddr.
func New(addr string) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		echo:  echo.New(),
		addr:  addr,
		stats: newStatsRecorder(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		faults: map[string]int{},
		tick:   DefaultTickInterval,
		now:    time.Now,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = errorHandler
	s.setupRoutes()
	return s
}

// WithLatency delays every backend response by d.
func (s *Server) WithLatency(d time.Duration) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
	return s
}

// WithFault makes path answer with status until cleared with status 0.
func (s *Server) WithFault(path string, status int) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.faults, path)
	} else {
		s.faults[path] = status
	}
	return s
}

// WithTickInterval sets how often the kline stream pushes updates.
func (s *Server) WithTickInterval(d time.Duration) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.tick = d
	}
	return s
}

// withClock replaces the time source. Used in tests.
func (s *Server) withClock(now func() time.Time) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the HTTP handler, for embedding or httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Stats returns a copy of the request counters.
func (s *Server) Stats() Stats {
	return s.stats.snapshot()
}

func (s *Server) setupRoutes() {
	e := s.echo
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(MaxRequestBodySize))
	e.Use(s.requestLogger)
	e.Use(s.faultInjector)

	e.POST("/confirm-strategy", s.handleConfirmStrategy)
	e.POST("/prepare-data", s.handlePrepareData)
	e.POST("/generate-code", s.handleGenerateCode)
	e.POST("/run-backtest", s.handleRunBacktest)
	e.POST("/debug/fetch-data", s.handleFetchData)

	e.GET("/api/v3/klines", s.handleKlines)
	e.GET("/ws/:stream", s.handleKlineStream)

	e.GET("/health", s.handleHealth)
	e.GET("/stats", s.handleStats)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens and serves until Shutdown. A clean shutdown returns nil.
func (s *Server) Start() error {
	log.Printf("SERVER_START | addr=%s version=%s", s.addr, Version)
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Printf("SERVER_SHUTDOWN | requests=%d", s.stats.snapshot().TotalRequests)
	return s.echo.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}
