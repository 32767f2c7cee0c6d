// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// requestLogger logs one line per request and feeds the stats counters.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		route := c.Path()
		if route == "" {
			route = c.Request().URL.Path
		}
		status := c.Response().Status
		s.stats.record(route, status)
		log.Printf("REQUEST | method=%s path=%s status=%d duration=%s",
			c.Request().Method, c.Request().URL.Path, status, time.Since(start).Round(time.Millisecond))
		return nil
	}
}

// faultInjector applies configured latency and forced failures to the
// backend routes. Exchange and health routes are never delayed.
func (s *Server) faultInjector(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Method != http.MethodPost {
			return next(c)
		}

		s.mu.RLock()
		latency := s.latency
		status, faulty := s.faults[c.Request().URL.Path]
		s.mu.RUnlock()

		if latency > 0 {
			timer := time.NewTimer(latency)
			select {
			case <-timer.C:
			case <-c.Request().Context().Done():
				timer.Stop()
				return c.Request().Context().Err()
			}
		}
		if faulty {
			return echo.NewHTTPError(status, "injected failure: "+http.StatusText(status))
		}
		return next(c)
	}
}

// errorHandler renders every error as the service does: {"detail": "..."}.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	msg := http.StatusText(status)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		msg = fmt.Sprint(he.Message)
	} else {
		log.Printf("ERROR: %v", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, map[string]string{"detail": msg})
	}
	if err != nil {
		log.Printf("ERROR: writing error response: %v", err)
	}
}
