package gateway

import (
	"context"
	"time"

	"github.com/user/taskpilot/internal/types"
)

// FailureReply is delivered to OnComplete when a run's processor fails.
const FailureReply = "Sorry, something went wrong processing your message."

// RunStatus is where a Run is in its lifecycle.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Done reports whether s is a final status.
func (s RunStatus) Done() bool {
	return s == RunStatusComplete || s == RunStatusFailed
}

// Run is one inbound message being answered within a conversation. The
// queue owns a Run's lifecycle fields once it has been enqueued.
type Run struct {
	ID         types.RunID
	Handle     types.ConversationHandle
	Event      *types.InboundEvent
	Status     RunStatus
	Attempts   int
	CreatedAt  time.Time
	StartedAt  *time.Time
	EndedAt    *time.Time
	Error      error
	Ctx        context.Context
	OnComplete func(response string)
}

// NewRun creates a queued Run for event on handle.
func NewRun(handle types.ConversationHandle, event *types.InboundEvent) *Run {
	return &Run{
		ID:        types.NewRunID(),
		Handle:    handle,
		Event:     event,
		Status:    RunStatusQueued,
		CreatedAt: time.Now(),
	}
}

func (r *Run) begin(ctx context.Context) {
	now := time.Now()
	r.Ctx = ctx
	r.Status = RunStatusRunning
	r.StartedAt = &now
	r.Attempts++
}

func (r *Run) end(err error) {
	now := time.Now()
	r.EndedAt = &now
	if err != nil {
		r.Status = RunStatusFailed
		r.Error = err
		return
	}
	r.Status = RunStatusComplete
}

// Duration is how long the processor ran, or zero if it has not finished.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(*r.StartedAt)
}
