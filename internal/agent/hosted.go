package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/taskpilot/internal/runtime"
	"github.com/user/taskpilot/internal/state"
	"github.com/user/taskpilot/internal/types"
)

// Remote run states reported by a hosted backend.
const (
	RunQueued         = "queued"
	RunInProgress     = "in_progress"
	RunRequiresAction = "requires_action"
	RunCancelling     = "cancelling"
	RunCancelled      = "cancelled"
	RunFailed         = "failed"
	RunCompleted      = "completed"
	RunIncomplete     = "incomplete"
	RunExpired        = "expired"
)

// DefaultPollInterval is how often a remote run's status is checked.
const DefaultPollInterval = time.Second

// PendingToolCall is a tool call a remote run is waiting on.
type PendingToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolOutput answers one PendingToolCall.
type ToolOutput struct {
	CallID string
	Output string
}

// RemoteRun is a snapshot of a remote run.
type RemoteRun struct {
	ID        string
	Status    string
	ToolCalls []PendingToolCall
	LastError string
}

// HostedBackend is a remote assistant service that keeps conversation state
// in threads.
type HostedBackend interface {
	CreateThread(ctx context.Context) (string, error)
	AddUserMessage(ctx context.Context, threadID, text string) error
	StartRun(ctx context.Context, threadID string) (*RemoteRun, error)
	GetRun(ctx context.Context, threadID, runID string) (*RemoteRun, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*RemoteRun, error)
	LatestReply(ctx context.Context, threadID, runID string) (string, error)
}

// HostedOptions configures a HostedAgent.
type HostedOptions struct {
	PollInterval time.Duration
	// PerSessionThreads gives each session key its own remote thread.
	// Otherwise one thread created at startup is shared by every caller.
	PerSessionThreads bool
}

// HostedAgent runs messages on a remote assistant and answers its tool
// calls from the local registry.
type HostedAgent struct {
	backend  HostedBackend
	registry *runtime.Registry
	router   *state.SessionRouter
	opts     HostedOptions

	mu      sync.Mutex
	shared  string
	threads map[string]*sync.Mutex
}

// NewHostedAgent creates the agent and, in shared-thread mode, the shared
// thread. A thread that cannot be created now is retried on first use.
func NewHostedAgent(ctx context.Context, backend HostedBackend, registry *runtime.Registry, router *state.SessionRouter, opts HostedOptions) *HostedAgent {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if router == nil {
		router = state.NewSessionRouter(nil)
	}
	a := &HostedAgent{
		backend:  backend,
		registry: registry,
		router:   router,
		opts:     opts,
		threads:  make(map[string]*sync.Mutex),
	}
	if !opts.PerSessionThreads {
		if _, err := a.sharedThread(ctx); err != nil {
			slog.Warn("create hosted thread", "error", err)
		}
	}
	return a
}

func (a *HostedAgent) sharedThread(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.shared != "" {
		return a.shared, nil
	}
	id, err := a.backend.CreateThread(ctx)
	if err != nil {
		return "", &types.UpstreamError{Op: "create thread", Err: err}
	}
	slog.Info("hosted thread created", "thread", id)
	a.shared = id
	return id, nil
}

func (a *HostedAgent) thread(ctx context.Context, key types.SessionKey) (string, error) {
	if !a.opts.PerSessionThreads {
		return a.sharedThread(ctx)
	}
	handle, err := a.router.ResolveOrCreate(ctx, key, func(ctx context.Context, _ types.SessionKey) (types.ConversationHandle, error) {
		id, err := a.backend.CreateThread(ctx)
		if err != nil {
			return "", &types.UpstreamError{Op: "create thread", Err: err}
		}
		return types.ConversationHandle(id), nil
	})
	return string(handle), err
}

// threadLock serializes runs on one thread; a thread accepts one active run.
func (a *HostedAgent) threadLock(threadID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.threads[threadID]
	if !ok {
		l = &sync.Mutex{}
		a.threads[threadID] = l
	}
	return l
}

// ProcessMessage posts message to the thread, runs the assistant to
// completion, and returns its newest reply. sessionKey is ignored unless
// PerSessionThreads is set. A caller whose ctx ends gets FailureReply while
// the run carries on.
func (a *HostedAgent) ProcessMessage(ctx context.Context, message string, sessionKey types.SessionKey) (types.ChatMessage, error) {
	if err := validateMessage(message); err != nil {
		return types.ChatMessage{}, err
	}

	// The remote run must reach a final state before the thread accepts
	// another one, so it outlives a caller who stops waiting.
	type result struct {
		reply string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := a.process(context.WithoutCancel(ctx), message, sessionKey)
		if err != nil {
			slog.Error("hosted agent failed", "variant", VariantHosted, "error", err)
		}
		done <- result{reply, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return types.AssistantMessage(FailureReply), nil
		}
		return types.AssistantMessage(r.reply), nil
	case <-ctx.Done():
		slog.Warn("caller left before hosted run finished", "variant", VariantHosted, "error", ctx.Err())
		return types.AssistantMessage(FailureReply), nil
	}
}

func (a *HostedAgent) process(ctx context.Context, message string, sessionKey types.SessionKey) (string, error) {
	threadID, err := a.thread(ctx, sessionKey)
	if err != nil {
		return "", err
	}

	lock := a.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	if err := a.backend.AddUserMessage(ctx, threadID, message); err != nil {
		return "", &types.UpstreamError{Op: "add message", Err: err}
	}
	run, err := a.backend.StartRun(ctx, threadID)
	if err != nil {
		return "", &types.UpstreamError{Op: "start run", Err: err}
	}

	run, err = a.await(ctx, threadID, run)
	if err != nil {
		return "", err
	}

	reply, err := a.backend.LatestReply(ctx, threadID, run.ID)
	if err != nil {
		return "", &types.UpstreamError{Op: "read reply", Err: err}
	}
	return reply, nil
}

// await polls run until it completes, answering tool calls along the way.
func (a *HostedAgent) await(ctx context.Context, threadID string, run *RemoteRun) (*RemoteRun, error) {
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	for {
		switch run.Status {
		case RunCompleted:
			return run, nil
		case RunRequiresAction:
			outputs := a.answer(ctx, run.ToolCalls)
			next, err := a.backend.SubmitToolOutputs(ctx, threadID, run.ID, outputs)
			if err != nil {
				return nil, &types.UpstreamError{Op: "submit tool outputs", Err: err}
			}
			run = next
			continue
		case RunFailed, RunCancelled, RunExpired, RunIncomplete:
			reason := run.LastError
			if reason == "" {
				reason = "no error detail"
			}
			return nil, &types.UpstreamError{Op: "run " + run.Status, Err: errors.New(reason)}
		}

		select {
		case <-ctx.Done():
			return nil, &types.UpstreamError{Op: "await run", Err: ctx.Err()}
		case <-ticker.C:
		}

		next, err := a.backend.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return nil, &types.UpstreamError{Op: "get run", Err: err}
		}
		run = next
	}
}

func (a *HostedAgent) answer(ctx context.Context, calls []PendingToolCall) []ToolOutput {
	outputs := make([]ToolOutput, 0, len(calls))
	for _, call := range calls {
		result, err := a.registry.Invoke(ctx, call.Name, call.Arguments)
		if err != nil {
			slog.Warn("tool call failed", "variant", VariantHosted, "tool", call.Name, "error", err)
			result = fmt.Sprintf("error: %v", err)
		}
		outputs = append(outputs, ToolOutput{CallID: call.ID, Output: result})
	}
	return outputs
}
