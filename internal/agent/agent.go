// Package agent adapts the conversational runtimes to one message-in,
// message-out interface.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/user/taskpilot/internal/gateway"
	"github.com/user/taskpilot/internal/types"
)

const (
	VariantHosted = "hosted"
	VariantLoop   = "loop"
)

// FailureReply is returned in place of an answer when the runtime fails.
const FailureReply = gateway.FailureReply

// Agent answers one user message within a session.
type Agent interface {
	// ProcessMessage returns the assistant's reply. Runtime failures are
	// reported in the reply text; the error is reserved for bad input.
	ProcessMessage(ctx context.Context, message string, sessionKey types.SessionKey) (types.ChatMessage, error)
}

// Degraded is an Agent whose runtime could not be built. Every call
// returns the same explanatory message.
type Degraded struct {
	reply string
}

// NewDegraded logs cause and returns an agent that explains it on every call.
func NewDegraded(variant string, cause *types.ConfigurationError) *Degraded {
	slog.Warn("agent degraded", "variant", variant, "error", cause)
	return &Degraded{
		reply: fmt.Sprintf("The %s agent is not available: %s is not configured (%s).", variant, cause.Component, cause.Reason),
	}
}

func (d *Degraded) ProcessMessage(context.Context, string, types.SessionKey) (types.ChatMessage, error) {
	return types.AssistantMessage(d.reply), nil
}

// ChatObserver is notified after every Gateway.Chat call with an outcome of
// "ok" or "invalid".
type ChatObserver func(variant, outcome string, elapsed time.Duration)

// Gateway selects an Agent by variant name.
type Gateway struct {
	agents   map[string]Agent
	observer ChatObserver
}

// NewGateway creates a selector over agents keyed by variant.
func NewGateway(agents map[string]Agent) *Gateway {
	g := &Gateway{agents: make(map[string]Agent, len(agents))}
	for name, a := range agents {
		g.agents[name] = a
	}
	return g
}

// Observe installs fn as the chat observer.
func (g *Gateway) Observe(fn ChatObserver) {
	g.observer = fn
}

// Variants returns the registered variant names, sorted.
func (g *Gateway) Variants() []string {
	names := make([]string, 0, len(g.agents))
	for name := range g.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chat routes message to the named variant.
func (g *Gateway) Chat(ctx context.Context, variant, message string, sessionKey types.SessionKey) (types.ChatMessage, error) {
	start := time.Now()
	reply, err := g.chat(ctx, variant, message, sessionKey)
	if g.observer != nil {
		outcome := "ok"
		if err != nil {
			outcome = "invalid"
		}
		g.observer(variant, outcome, time.Since(start))
	}
	return reply, err
}

func (g *Gateway) chat(ctx context.Context, variant, message string, sessionKey types.SessionKey) (types.ChatMessage, error) {
	a, ok := g.agents[variant]
	if !ok {
		return types.ChatMessage{}, &types.ValidationError{
			Field:  "variant",
			Reason: fmt.Sprintf("unknown agent %q (want one of %s)", variant, strings.Join(g.Variants(), ", ")),
		}
	}
	if err := validateMessage(message); err != nil {
		return types.ChatMessage{}, err
	}
	return a.ProcessMessage(ctx, message, sessionKey)
}

func validateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return &types.ValidationError{Field: "message", Reason: "must not be empty"}
	}
	return nil
}
