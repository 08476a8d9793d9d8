// Package buffer keeps the ready-question bank filled. A single
// background build runs at a time, generating questions one by one and
// saving each as it lands. Interactive chat has priority over the
// generation backend: it cancels the running build, holds the backend
// semaphore for the duration of the stream, and re-checks the buffer on
// release.
package buffer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"lexvoss/internal/store"
	"lexvoss/pkg/vocab"
)

// PreemptWait bounds how long preemption and shutdown wait for a
// cancelled build to wind down.
const PreemptWait = 2 * time.Second

// Generator produces one question per call. A nil question with nil
// error means generation gave up within its retry budget.
type Generator interface {
	GenerateOne(ctx context.Context) (*vocab.Question, error)
}

// ShortfallFunc reports how many more questions active sessions still
// need beyond what they hold.
type ShortfallFunc func() int

// Controller owns background question generation.
//
// The buffer target is minReady plus the active-session shortfall, so a
// session that could not be filled to its size keeps generation running
// until it can be extended.
type Controller struct {
	store     store.QuestionStore
	gen       Generator
	minReady  int
	shortfall ShortfallFunc
	log       *slog.Logger

	// sem serializes access to the generation backend between
	// background builds and interactive chat.
	sem *semaphore.Weighted

	mu       sync.Mutex
	inFlight bool
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool
}

// NewController builds a Controller. shortfall may be nil when no
// session composer is attached yet.
func NewController(st store.QuestionStore, gen Generator, minReady int, shortfall ShortfallFunc, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if shortfall == nil {
		shortfall = func() int { return 0 }
	}
	return &Controller{
		store:     st,
		gen:       gen,
		minReady:  minReady,
		shortfall: shortfall,
		log:       log,
		sem:       semaphore.NewWeighted(1),
	}
}

// SetShortfall attaches the active-session shortfall source. Called once
// during wiring, before any Check.
func (c *Controller) SetShortfall(fn ShortfallFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn != nil {
		c.shortfall = fn
	}
}

// SetMinReady updates the ready-bank floor at runtime. Takes effect on
// the next Check.
func (c *Controller) SetMinReady(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > 0 {
		c.minReady = n
	}
}

// Generating reports whether a background build is in flight.
func (c *Controller) Generating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Check starts a background build when the ready bank is below target.
// It is cheap and idempotent: while a build runs, further checks are
// no-ops. The build itself re-checks on completion, so one Check after
// any bank-draining event suffices.
func (c *Controller) Check(ctx context.Context) error {
	c.mu.Lock()
	if c.inFlight || c.closed {
		c.mu.Unlock()
		return nil
	}
	minReady := c.minReady
	c.mu.Unlock()

	ready, err := c.store.ReadyQuestionCount(ctx)
	if err != nil {
		return fmt.Errorf("buffer: ready count: %w", err)
	}
	shortfall := c.shortfall()
	target := minReady + shortfall
	c.log.Info("buffer check",
		"ready", ready, "target", target,
		"min_ready", minReady, "session_shortfall", shortfall)
	if ready >= target {
		return nil
	}
	need := target - ready

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight || c.closed {
		return nil
	}
	buildCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.inFlight = true
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(buildCtx, c.done, need)
	return nil
}

// run is the background build goroutine. It holds the backend semaphore
// for the whole build and saves each question as it is produced.
func (c *Controller) run(ctx context.Context, done chan struct{}, need int) {
	defer close(done)

	cancelled := false
	produced := 0

	if err := c.sem.Acquire(ctx, 1); err != nil {
		cancelled = true
	} else {
		c.log.Info("background generation starting", "count", need)
		for i := 0; i < need; i++ {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			q, err := c.gen.GenerateOne(ctx)
			if err != nil {
				if ctx.Err() != nil {
					cancelled = true
					break
				}
				c.log.Warn("background generation attempt failed", "attempt", i+1, "error", err)
				continue
			}
			if q == nil {
				c.log.Warn("background generation produced nothing", "attempt", i+1, "have", produced)
				continue
			}
			// A finished question survives preemption.
			if err := c.store.SaveQuestion(context.WithoutCancel(ctx), q); err != nil {
				c.log.Warn("saving generated question failed", "question", q.ID, "error", err)
				continue
			}
			produced++
		}
		c.sem.Release(1)
	}

	if cancelled {
		c.log.Info("background generation cancelled", "produced", produced)
	} else {
		c.log.Info("background generation finished", "produced", produced, "requested", need)
	}

	c.mu.Lock()
	c.inFlight = false
	c.cancel = nil
	c.done = nil
	closed := c.closed
	c.mu.Unlock()

	// The bank may still be short (failed attempts, sessions started
	// mid-build). A cancelled build leaves the re-check to whoever
	// preempted it.
	if !cancelled && !closed {
		if err := c.Check(context.Background()); err != nil {
			c.log.Warn("post-build buffer check failed", "error", err)
		}
	}
}

// AcquireForChat hands the generation backend to interactive chat: it
// cancels any running build, waits up to PreemptWait for it to wind
// down, and takes the backend semaphore. Callers must pair it with
// ReleaseChat.
func (c *Controller) AcquireForChat(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		c.log.Info("preempting background generation for chat")
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(PreemptWait):
			c.log.Warn("background generation did not stop within preempt window")
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("buffer: acquire backend for chat: %w", err)
	}
	return nil
}

// ReleaseChat returns the backend after a chat stream and resumes
// buffer filling.
func (c *Controller) ReleaseChat(ctx context.Context) {
	c.sem.Release(1)
	if err := c.Check(ctx); err != nil {
		c.log.Warn("post-chat buffer check failed", "error", err)
	}
}

// Shutdown cancels any running build and waits up to PreemptWait for it
// to finish. The controller accepts no new builds afterwards.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(PreemptWait):
			c.log.Warn("background generation did not stop before shutdown deadline")
		}
	}
}
