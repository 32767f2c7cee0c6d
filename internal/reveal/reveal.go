// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reveal

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/stratchat/internal/model"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

const (
	// DefaultTextInterval is the delay between revealed text runes.
	DefaultTextInterval = 15 * time.Millisecond

	// DefaultCodeInterval is the delay between revealed code chunks.
	DefaultCodeInterval = 30 * time.Millisecond

	// DefaultCodeChunk is the number of code runes revealed per tick.
	DefaultCodeChunk = 10
)

// Clock supplies tick delays. Tests substitute a manual clock.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Config controls reveal cadence.
type Config struct {
	TextInterval time.Duration
	CodeInterval time.Duration
	CodeChunk    int
	Clock        Clock
}

// DefaultConfig returns the standard cadence: one rune every 15ms, then ten
// code runes every 30ms.
func DefaultConfig() Config {
	return Config{
		TextInterval: DefaultTextInterval,
		CodeInterval: DefaultCodeInterval,
		CodeChunk:    DefaultCodeChunk,
		Clock:        realClock{},
	}
}

func (c Config) normalized() Config {
	if c.TextInterval < 0 {
		c.TextInterval = 0
	}
	if c.CodeInterval < 0 {
		c.CodeInterval = 0
	}
	if c.CodeChunk <= 0 {
		c.CodeChunk = DefaultCodeChunk
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	return c
}

// Option configures a single reveal.
type Option func(*Session)

// WithPayload attaches p in the final patch, so it appears atomically when
// the reveal completes.
func WithPayload(p model.Payload) Option {
	return func(s *Session) {
		s.payload = p
	}
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Target is the part of the message store a controller writes to.
type Target interface {
	Patch(id uint64, p model.Patch) bool
	Exists(id uint64) bool
}

// run is one active reveal session.
type run struct {
	id        uint64
	session   *Session
	cancel    context.CancelFunc
	done      chan struct{}
	completed bool          // set before done is closed when Final was applied
	progress  atomic.Uint64 // math.Float64bits of the session progress
}

// Controller runs at most one reveal session at a time.
type Controller struct {
	mu     sync.Mutex
	target Target
	cfg    Config
	active *run
	closed bool
}

// NewController creates a controller writing to target.
func NewController(target Target, cfg Config) *Controller {
	return &Controller{
		target: target,
		cfg:    cfg.normalized(),
	}
}

// SetConfig changes the cadence for subsequent reveals.
func (c *Controller) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg.normalized()
}

// Config returns the current cadence.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Reveal starts revealing text and code into the message with id targetID.
// The returned channel is closed when the session is done or abandoned.
//
// A session already running is stopped first and its target finalized with
// its full text, code and payload. When targetID does not exist the call is
// a no-op and the returned channel is already closed.
func (c *Controller) Reveal(targetID uint64, text, code string, opts ...Option) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked(true)

	if c.closed || !c.target.Exists(targetID) {
		done := make(chan struct{})
		close(done)
		return done
	}

	session := NewSession(text, code, c.cfg)
	for _, opt := range opts {
		opt(session)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:      targetID,
		session: session,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.active = r

	go c.loop(ctx, r, c.cfg.Clock)
	return r.done
}

// loop applies ticks until the session completes or ctx is cancelled.
func (c *Controller) loop(ctx context.Context, r *run, clock Clock) {
	defer close(r.done)

	c.target.Patch(r.id, r.session.Start())
	for {
		patch, wait, ok := r.session.Next()
		if !ok {
			break
		}
		if wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-clock.After(wait):
			}
		}
		if ctx.Err() != nil {
			return
		}
		c.target.Patch(r.id, patch)
		r.progress.Store(math.Float64bits(r.session.Progress()))
	}

	if ctx.Err() != nil {
		return
	}
	c.target.Patch(r.id, r.session.Final())
	r.completed = true
}

// stopLocked cancels the active session and waits for its loop to exit.
// When finalize is set and the session had not completed, its final patch is
// applied so the previous target is never left truncated.
func (c *Controller) stopLocked(finalize bool) {
	r := c.active
	if r == nil {
		return
	}
	c.active = nil

	r.cancel()
	<-r.done

	if finalize && !r.completed {
		c.target.Patch(r.id, r.session.Final())
	}
}

// Active returns the id of the message currently being revealed.
func (c *Controller) Active() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return 0, false
	}
	select {
	case <-c.active.done:
		return 0, false
	default:
		return c.active.id, true
	}
}

// Progress returns how much of the active reveal is on screen, from 0 to 1.
func (c *Controller) Progress() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return 0, false
	}
	select {
	case <-c.active.done:
		return 0, false
	default:
		return math.Float64frombits(c.active.progress.Load()), true
	}
}

// Finish stops the running session immediately and commits its final state.
func (c *Controller) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked(true)
}

// Wait blocks until the current session finishes or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()
	if r == nil {
		return nil
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops any running session without further store updates. Later
// calls to Reveal are no-ops.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked(false)
	c.closed = true
}
