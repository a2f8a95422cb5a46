package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/taskpilot/internal/agent"
	"github.com/user/taskpilot/internal/config"
	ctxengine "github.com/user/taskpilot/internal/context"
	"github.com/user/taskpilot/internal/gateway"
	"github.com/user/taskpilot/internal/metrics"
	"github.com/user/taskpilot/internal/runtime"
	"github.com/user/taskpilot/internal/runtime/tools"
	"github.com/user/taskpilot/internal/state"
	"github.com/user/taskpilot/internal/types"
	"github.com/user/taskpilot/pkg/llm"
)

// app holds the components shared by serve, chat and mcp.
type app struct {
	cfg      *config.Config
	tasks    *state.TaskStore
	router   *state.SessionRouter
	events   *state.EventStore
	registry *runtime.Registry
	metrics  *metrics.Metrics
	gw       *gateway.Gateway
	loop     agent.Agent
	agents   *agent.Gateway
}

// buildCore creates the task store and the tool registry over it.
func buildCore(ctx context.Context, cfg *config.Config) (*app, error) {
	tasks, err := state.NewTaskStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	registry := runtime.NewRegistry()
	if err := tools.RegisterTaskTools(registry, tasks); err != nil {
		tasks.Close()
		return nil, fmt.Errorf("register task tools: %w", err)
	}
	return &app{
		cfg:      cfg,
		tasks:    tasks,
		router:   state.NewSessionRouter(nil),
		events:   state.NewEventStore(),
		registry: registry,
	}, nil
}

// buildApp wires both agents behind the selector. The gateway queue is not
// started; callers start it with the lifetime they need.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a, err := buildCore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.metrics = metrics.New()
	a.registry.Observe(a.metrics.ObserveTool)

	a.gw = gateway.New(a.router, int64(cfg.MaxConcurrent))
	a.metrics.GaugeFunc("queue_active_runs", "Agent runs executing now.", func() float64 {
		return float64(a.gw.Queue.Active())
	})

	a.loop = a.buildLoop()
	a.agents = agent.NewGateway(map[string]agent.Agent{
		agent.VariantLoop:   a.loop,
		agent.VariantHosted: a.buildHosted(ctx),
	})
	a.agents.Observe(a.metrics.ObserveChat)
	return a, nil
}

func (a *app) buildLoop() agent.Agent {
	cfg := a.cfg
	provider, err := agent.NewProvider(cfg.LLM.Provider, llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		var ce *types.ConfigurationError
		if errors.As(err, &ce) {
			return agent.NewDegraded(agent.VariantLoop, ce)
		}
		return agent.NewDegraded(agent.VariantLoop, &types.ConfigurationError{Component: "llm", Reason: err.Error()})
	}

	engine, err := ctxengine.New(cfg.LLM.Model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		return agent.NewDegraded(agent.VariantLoop, &types.ConfigurationError{Component: "llm.max_context_tokens", Reason: err.Error()})
	}

	var opts []runtime.Option
	if cfg.LLM.Stream {
		opts = append(opts, runtime.WithStreaming())
	}
	rt := runtime.New(provider, engine, a.events, a.registry, cfg.MaxToolRounds, opts...)
	slog.Info("loop agent ready", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model, "stream", cfg.LLM.Stream)
	return agent.NewLoopAgent(a.gw, rt, agent.VariantLoop)
}

func (a *app) buildHosted(ctx context.Context) agent.Agent {
	h := a.cfg.Hosted
	if ce := agent.CheckHosted(h.APIKey, h.AssistantID); ce != nil {
		return agent.NewDegraded(agent.VariantHosted, ce)
	}
	backend := agent.NewAssistants(h.BaseURL, h.APIKey, h.AssistantID)
	// The hosted agent keeps its own router: its handles are remote thread
	// ids, not session keys.
	return agent.NewHostedAgent(ctx, backend, a.registry, state.NewSessionRouter(nil), agent.HostedOptions{
		PollInterval:      time.Duration(h.PollIntervalMS) * time.Millisecond,
		PerSessionThreads: h.PerSessionThreads,
	})
}

func (a *app) close() {
	if err := a.tasks.Close(); err != nil {
		slog.Warn("close task store", "error", err)
	}
}
