package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` to prevent goroutine leaks and crashes.
// A zero timeout leaves fn running until parentCtx is done.
//
// Example:
//
//	SafeGo(ctx, logger, 30*time.Second, "analytics submission", func(ctx context.Context) error {
//	    _, err := svc.TriggerSubmission(ctx, false)
//	    return err
//	})
func SafeGo(parentCtx context.Context, logger logrus.FieldLogger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go run(parentCtx, logger, timeout, taskName, fn)
}

func run(parentCtx context.Context, logger logrus.FieldLogger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parentCtx, timeout)
	} else {
		ctx, cancel = context.WithCancel(parentCtx)
	}
	defer cancel()

	log := logger.WithField("task", taskName)
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("PANIC in background task")
		}
	}()

	// Errors are logged, never propagated; the caller decides what is critical
	if err := fn(ctx); err != nil {
		log.WithError(err).Warn("Background task failed")
	}
}

// Group runs SafeGo tasks and lets the owner wait for the ones in flight,
// typically during shutdown.
type Group struct {
	logger  logrus.FieldLogger
	timeout time.Duration
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

// NewGroup creates a group whose tasks each run under timeout
func NewGroup(logger logrus.FieldLogger, timeout time.Duration) *Group {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Group{logger: logger, timeout: timeout}
}

// Go starts fn in the background. It returns false, without running fn,
// once the group is closed.
func (g *Group) Go(ctx context.Context, taskName string, fn func(context.Context) error) bool {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return false
	}
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		run(ctx, g.logger, g.timeout, taskName, fn)
	}()
	return true
}

// Wait blocks until every started task returns or ctx is done
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for background tasks: %w", ctx.Err())
	}
}

// Close stops the group from accepting tasks and waits for the running ones
func (g *Group) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	return g.Wait(ctx)
}
