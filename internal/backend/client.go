// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/stratchat/internal/model"
)

// Configuration constants for the backtest service.
const (
	// DefaultBaseURL is the local development address of the service.
	DefaultBaseURL = "http://127.0.0.1:8000"

	// DefaultTimeout bounds a single HTTP exchange. Backtests can be slow.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 2

	// DefaultRequestsPerSecond caps the request rate toward the service.
	DefaultRequestsPerSecond = 5

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 32 * 1024 * 1024
)

// Client talks to the strategy/backtest service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	limiter    *rate.Limiter
	retryDelay time.Duration
}

// NewClient creates a client for the service at baseURL. An empty baseURL
// uses DefaultBaseURL.
func NewClient(baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		maxRetries: DefaultMaxRetries,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), DefaultRequestsPerSecond),
		retryDelay: retryBaseDelay,
	}
}

// WithTimeout sets the per-exchange timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithMaxRetries sets the number of retries after the first attempt.
func (c *Client) WithMaxRetries(maxRetries int) *Client {
	if maxRetries >= 0 {
		c.maxRetries = maxRetries
	}
	return c
}

// WithRateLimit caps requests per second. Zero or negative disables the cap.
func (c *Client) WithRateLimit(perSecond float64) *Client {
	if perSecond <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return c
	}
	burst := max(1, int(perSecond))
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// BaseURL returns the service address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// ENDPOINTS
// =============================================================================

// ConfirmStrategy asks the service to analyze a strategy description.
func (c *Client) ConfirmStrategy(ctx context.Context, strategy string, p model.Params) (*model.StrategyAnalysis, error) {
	var resp confirmResponse
	if err := c.post(ctx, "/confirm-strategy", NewStrategyRequest(strategy, p), &resp); err != nil {
		return nil, err
	}
	if resp.Analysis == nil {
		return nil, &ValidationError{Endpoint: "confirm-strategy", Field: "analysis", Reason: "is missing"}
	}
	return resp.Analysis, nil
}

// PrepareData asks the service to download candles and add indicators.
func (c *Client) PrepareData(ctx context.Context, strategy string, p model.Params) (*model.DataPreparation, error) {
	var resp prepareResponse
	if err := c.post(ctx, "/prepare-data", NewStrategyRequest(strategy, p), &resp); err != nil {
		return nil, err
	}
	if resp.Rows == nil {
		return nil, &ValidationError{Endpoint: "prepare-data", Field: "rows", Reason: "is missing"}
	}
	return &model.DataPreparation{
		FileSaved:       resp.FileSaved,
		Rows:            *resp.Rows,
		IndicatorsAdded: resp.IndicatorsAdded,
	}, nil
}

// GenerateCode turns a strategy description into Python code.
func (c *Client) GenerateCode(ctx context.Context, strategy string, p model.Params) (string, error) {
	var resp generateResponse
	if err := c.post(ctx, "/generate-code", NewStrategyRequest(strategy, p), &resp); err != nil {
		return "", err
	}
	if resp.Code == nil {
		return "", &ValidationError{Endpoint: "generate-code", Field: "code", Reason: "is missing"}
	}
	return *resp.Code, nil
}

// RunBacktest executes code against historical candles.
func (c *Client) RunBacktest(ctx context.Context, code string, p model.Params) (*model.BacktestResult, error) {
	var resp backtestResponse
	if err := c.post(ctx, "/run-backtest", NewBacktestRequest(code, p), &resp); err != nil {
		return nil, err
	}
	result, err := resp.toResult()
	if err != nil {
		return nil, err
	}
	result.Code = code
	return result, nil
}

// FetchData downloads raw candles for inspection.
func (c *Client) FetchData(ctx context.Context, req FetchDataRequest) (*FetchDataResult, error) {
	var resp fetchDataResponse
	if err := c.post(ctx, "/debug/fetch-data", req, &resp); err != nil {
		return nil, err
	}
	return resp.toResult()
}

// Health checks that the service answers GET /health. It does not retry.
func (c *Client) Health(ctx context.Context) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	_, err := c.do(ctx, http.MethodGet, c.baseURL+"/health", nil)
	return err
}

// =============================================================================
// TRANSPORT
// =============================================================================

// post sends body as JSON and decodes a 2xx answer into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	data, err := c.doWithRetry(ctx, http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &ValidationError{Endpoint: strings.TrimPrefix(path, "/"), Field: "body", Reason: err.Error()}
	}
	return nil
}

// doWithRetry performs the request, retrying transport errors, 429 and 5xx
// with exponential backoff. It returns the body of a 2xx response.
func (c *Client) doWithRetry(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff(attempt - 1)):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		data, err := c.do(ctx, method, url, payload)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// do performs one exchange.
func (c *Client) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "stratchat")

	log.Printf("API Request: %s %s", req.Method, req.URL.Path)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	log.Printf("API Response: %s (%v)", resp.Status, time.Since(start).Round(time.Millisecond))

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

// readResponse reads the body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts an error answer to an error value.
func handleErrorResponse(status int, body []byte) error {
	apiErr := &APIError{Status: status, Detail: strings.TrimSpace(string(body))}

	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Detail != nil {
		switch d := parsed.Detail.(type) {
		case string:
			apiErr.Detail = d
		default:
			if raw, err := json.Marshal(d); err == nil {
				apiErr.Detail = string(raw)
			}
		}
	}

	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, apiErr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRateLimited, apiErr)
	default:
		return apiErr
	}
}

// isRetryable reports whether err is worth another attempt.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	if errors.Is(err, ErrResponseTooLarge) {
		return false
	}
	// Transport errors (connection refused, reset) are retried.
	return true
}

// backoff returns the delay before retry number attempt (zero based).
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.retryDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
