// Package mcp exposes the task tools over the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/user/taskpilot/internal/runtime"
)

// Version is reported to MCP clients during initialization.
var Version = "dev"

// NewServer creates an MCP server with one MCP tool per registry tool.
// Calls are dispatched through registry.Invoke, so arguments are validated
// exactly as they are for the agents.
func NewServer(registry *runtime.Registry) (*mcpsdk.Server, error) {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "taskpilot",
		Version: Version,
	}, nil)

	for _, t := range registry.All() {
		var schema map[string]any
		if err := json.Unmarshal(t.Parameters(), &schema); err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", t.Name(), err)
		}
		server.AddTool(&mcpsdk.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: schema,
		}, toolHandler(registry, t.Name()))
		slog.Debug("mcp tool registered", "tool", t.Name())
	}
	return server, nil
}

func toolHandler(registry *runtime.Registry, name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args json.RawMessage
		if req.Params != nil {
			args = req.Params.Arguments
		}
		result, err := registry.Invoke(ctx, name, args)
		if err != nil {
			slog.Debug("mcp tool error", "tool", name, "error", err)
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
			}, nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: result}},
		}, nil
	}
}

// ServeStdio runs the server on stdin/stdout until ctx ends or the client
// disconnects.
func ServeStdio(ctx context.Context, registry *runtime.Registry) error {
	server, err := NewServer(registry)
	if err != nil {
		return err
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}
