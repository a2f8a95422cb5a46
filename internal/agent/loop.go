package agent

import (
	"context"
	"log/slog"

	"github.com/user/taskpilot/internal/gateway"
	"github.com/user/taskpilot/internal/runtime"
	"github.com/user/taskpilot/internal/types"
)

// LoopAgent runs messages through the local tool-calling loop. Each session
// key maps to its own conversation handle and queue lane.
type LoopAgent struct {
	gw     *gateway.Gateway
	source string
}

// NewLoopAgent installs rt as the gateway's run processor and returns an
// agent that submits to it. The gateway must be started separately.
func NewLoopAgent(gw *gateway.Gateway, rt *runtime.Runtime, source string) *LoopAgent {
	gw.Queue.SetProcessor(rt.ProcessRun)
	if source == "" {
		source = VariantLoop
	}
	return &LoopAgent{gw: gw, source: source}
}

// ProcessMessage enqueues message on the session's lane and waits for the
// reply. The run continues if ctx ends first; the caller then gets
// FailureReply.
func (a *LoopAgent) ProcessMessage(ctx context.Context, message string, sessionKey types.SessionKey) (types.ChatMessage, error) {
	if err := validateMessage(message); err != nil {
		return types.ChatMessage{}, err
	}

	reply := make(chan string, 1)
	runID, err := a.gw.HandleInbound(ctx, &types.InboundEvent{
		Source:     a.source,
		SessionKey: sessionKey.OrDefault(),
		Text:       message,
	}, gateway.WithOnComplete(func(text string) {
		select {
		case reply <- text:
		default:
		}
	}))
	if err != nil {
		slog.Error("enqueue run", "session_key", string(sessionKey), "error", err)
		return types.AssistantMessage(FailureReply), nil
	}

	select {
	case text := <-reply:
		return types.AssistantMessage(text), nil
	case <-ctx.Done():
		slog.Warn("caller left before reply", "run_id", string(runID), "error", ctx.Err())
		return types.AssistantMessage(FailureReply), nil
	}
}
