package gateway

import (
	"context"
	"fmt"

	"github.com/user/taskpilot/internal/state"
	"github.com/user/taskpilot/internal/types"
)

// Gateway turns inbound events into runs. It resolves the conversation
// handle through the session router, wraps each event in a Run, and
// enqueues the run on the handle's lane.
type Gateway struct {
	router *state.SessionRouter
	Queue  *Queue

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Gateway over router with the given concurrency limit for
// simultaneous run processing (default 2).
func New(router *state.SessionRouter, maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 2
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	return &Gateway{
		router: router,
		Queue:  NewQueue(concurrency),
	}
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context and waits for the queue to drain its
// in-flight runs.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
}

// Router returns the session router the gateway resolves handles with.
func (g *Gateway) Router() *state.SessionRouter {
	return g.router
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnComplete sets a callback invoked when the run produces a final response.
func WithOnComplete(fn func(string)) RunOption {
	return func(r *Run) { r.OnComplete = fn }
}

// HandleInbound resolves the conversation handle for the event, wraps it in
// a Run, and enqueues it for processing. The run belongs to the queue once
// enqueued; callers learn its outcome through WithOnComplete.
func (g *Gateway) HandleInbound(ctx context.Context, event *types.InboundEvent, opts ...RunOption) (types.RunID, error) {
	handle, err := g.router.Resolve(ctx, event.SessionKey)
	if err != nil {
		return "", fmt.Errorf("resolve session: %w", err)
	}
	run := NewRun(handle, event)
	for _, opt := range opts {
		opt(run)
	}
	if err := g.Queue.Enqueue(run); err != nil {
		return "", err
	}
	return run.ID, nil
}
