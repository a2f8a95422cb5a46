package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	ctxengine "github.com/user/taskpilot/internal/context"
	"github.com/user/taskpilot/internal/gateway"
	"github.com/user/taskpilot/internal/types"
	"github.com/user/taskpilot/pkg/llm"
)

const historyLimit = 100

// EmptyReply stands in for a provider answer with neither text nor tool calls.
const EmptyReply = "I don't have anything to add."

// Runtime implements the agentic turn loop.
type Runtime struct {
	provider  llm.Provider
	engine    *ctxengine.Engine
	events    types.EventStore
	registry  *Registry
	retry     *gateway.RetryPolicy
	maxRounds int
	stream    bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithRetryPolicy overrides the retry policy applied to provider calls.
func WithRetryPolicy(p *gateway.RetryPolicy) Option {
	return func(rt *Runtime) { rt.retry = p }
}

// WithStreaming makes provider calls over Stream, collecting the deltas into
// one response.
func WithStreaming() Option {
	return func(rt *Runtime) { rt.stream = true }
}

// New creates a Runtime with the given dependencies.
func New(
	provider llm.Provider,
	engine *ctxengine.Engine,
	events types.EventStore,
	registry *Registry,
	maxRounds int,
	opts ...Option,
) *Runtime {
	if maxRounds <= 0 {
		maxRounds = 10
	}
	rt := &Runtime{
		provider:  provider,
		engine:    engine,
		events:    events,
		registry:  registry,
		retry:     gateway.DefaultRetryPolicy(),
		maxRounds: maxRounds,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Runtime) record(ctx context.Context, run *gateway.Run, typ, source string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return rt.events.Append(ctx, &types.Event{
		ID:      types.NewEventID(),
		Handle:  run.Handle,
		RunID:   run.ID,
		Type:    typ,
		Source:  source,
		At:      time.Now(),
		Payload: data,
	})
}

// complete calls the provider under the retry policy.
func (rt *Runtime) complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	var resp *llm.Response
	err := rt.retry.Do(ctx, func() error {
		if !rt.stream {
			var callErr error
			resp, callErr = rt.provider.Complete(ctx, messages, tools)
			return callErr
		}
		deltas, callErr := rt.provider.Stream(ctx, messages, tools)
		if callErr != nil {
			return callErr
		}
		resp, callErr = llm.Collect(ctx, deltas)
		return callErr
	})
	if err != nil {
		return nil, &types.UpstreamError{Op: "llm complete", Err: err}
	}
	return resp, nil
}

// ProcessRun executes the agentic turn loop for a single run.
// This is the function passed to Queue.SetProcessor.
func (rt *Runtime) ProcessRun(run *gateway.Run) error {
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	source := ""
	text := ""
	if run.Event != nil {
		source = run.Event.Source
		text = run.Event.Text
	}

	// 1. Record user_message event
	if err := rt.record(ctx, run, types.EventUserMessage, source, map[string]string{"text": text}); err != nil {
		return fmt.Errorf("record user message: %w", err)
	}

	toolNames := rt.registry.Names()
	llmTools := rt.registry.AsLLMTools()

	for round := 0; round < rt.maxRounds; round++ {
		// 2. Load recent events
		events, err := rt.events.Tail(ctx, run.Handle, historyLimit)
		if err != nil {
			return fmt.Errorf("load events: %w", err)
		}

		// 3. Build prompt
		messages, err := rt.engine.BuildPrompt(ctx, run.Handle, events, toolNames)
		if err != nil {
			return fmt.Errorf("build prompt: %w", err)
		}

		// 4. Call LLM
		resp, err := rt.complete(ctx, messages, llmTools)
		if err != nil {
			return err
		}

		// 5. If tool calls, execute them
		if len(resp.ToolCalls) > 0 {
			for _, tc := range resp.ToolCalls {
				if err := rt.record(ctx, run, types.EventToolCall, "runtime", map[string]any{
					"tool":      tc.Function.Name,
					"call_id":   tc.ID,
					"arguments": argumentsOrEmpty(tc.Function.Arguments),
				}); err != nil {
					return fmt.Errorf("record tool call: %w", err)
				}

				result, execErr := rt.registry.Invoke(ctx, tc.Function.Name, tc.Function.Arguments)
				if execErr != nil {
					slog.Warn("tool call failed", "handle", string(run.Handle), "run_id", string(run.ID), "tool", tc.Function.Name, "error", execErr)
					result = fmt.Sprintf("error: %v", execErr)
				} else {
					slog.Debug("tool call", "handle", string(run.Handle), "run_id", string(run.ID), "tool", tc.Function.Name)
				}

				if err := rt.record(ctx, run, types.EventToolResult, "runtime", map[string]any{
					"tool":    tc.Function.Name,
					"call_id": tc.ID,
					"result":  result,
				}); err != nil {
					return fmt.Errorf("record tool result: %w", err)
				}
			}
			continue // Loop back for next LLM call
		}

		// 6. Text response -- done
		reply := resp.Content
		if reply == "" {
			slog.Warn("provider returned an empty reply", "handle", string(run.Handle), "run_id", string(run.ID))
			reply = EmptyReply
		}
		if err := rt.record(ctx, run, types.EventAssistantMessage, "runtime", map[string]string{"text": reply}); err != nil {
			return fmt.Errorf("record assistant message: %w", err)
		}
		if run.OnComplete != nil {
			run.OnComplete(reply)
		}
		return nil
	}

	limitErr := fmt.Errorf("max tool rounds (%d) exceeded", rt.maxRounds)
	if err := rt.record(ctx, run, types.EventError, "runtime", map[string]string{"error": limitErr.Error()}); err != nil {
		slog.Warn("record error event", "handle", string(run.Handle), "run_id", string(run.ID), "error", err)
	}
	return limitErr
}

// argumentsOrEmpty keeps the recorded payload valid JSON when a provider
// returns no or malformed arguments.
func argumentsOrEmpty(args json.RawMessage) json.RawMessage {
	if len(args) == 0 || !json.Valid(args) {
		return json.RawMessage(`{}`)
	}
	return args
}
