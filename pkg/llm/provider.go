package llm

import (
	"context"
	"strings"
)

// Provider defines the interface for interacting with LLM backends.
// Implementations handle protocol-specific details such as request formatting,
// authentication, and response parsing.
type Provider interface {
	// Complete sends a chat completion request and returns the full response.
	Complete(ctx context.Context, messages []Message, tools []Tool) (*Response, error)

	// Stream sends a chat completion request and returns a channel of incremental deltas.
	Stream(ctx context.Context, messages []Message, tools []Tool) (<-chan Delta, error)
}

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// Collect drains a delta stream into a single Response. Text is
// concatenated in arrival order and tool calls are appended. A stream that
// fails returns its error.
func Collect(ctx context.Context, stream <-chan Delta) (*Response, error) {
	var text strings.Builder
	resp := &Response{}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case d, ok := <-stream:
			if !ok {
				resp.Content = text.String()
				return resp, nil
			}
			if d.Err != nil {
				return nil, d.Err
			}
			text.WriteString(d.Content)
			resp.ToolCalls = append(resp.ToolCalls, d.ToolCalls...)
		}
	}
}
