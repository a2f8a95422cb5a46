package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/user/taskpilot/pkg/llm"
)

// DefaultHost is the local Ollama server address.
const DefaultHost = "http://127.0.0.1:11434"

// Client implements llm.Provider over the Ollama chat API.
type Client struct {
	client *api.Client
	config *llm.Config
}

// New creates an Ollama client. An empty BaseURL targets DefaultHost.
func New(config *llm.Config) (*Client, error) {
	host := config.BaseURL
	if host == "" {
		host = DefaultHost
	}
	base, err := url.Parse(strings.TrimSuffix(host, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	return &Client{
		client: api.NewClient(base, http.DefaultClient),
		config: config,
	}, nil
}

// wire types mirror the Ollama chat JSON and are converted to the api
// package types by a JSON round trip.
type wireMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id,omitempty"`
	Function struct {
		Index     int             `json:"index,omitempty"`
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type wireRequest struct {
	Model    string         `json:"model"`
	Messages []wireMessage  `json:"messages"`
	Tools    []llm.Tool     `json:"tools,omitempty"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type wireResponse struct {
	Message         wireMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

func (c *Client) buildRequest(messages []llm.Message, tools []llm.Tool, stream bool) (*api.ChatRequest, error) {
	wire := wireRequest{
		Model:  c.config.Model,
		Tools:  tools,
		Stream: stream,
	}
	options := map[string]any{}
	if c.config.Temperature > 0 {
		options["temperature"] = c.config.Temperature
	}
	if c.config.MaxTokens > 0 {
		options["num_predict"] = c.config.MaxTokens
	}
	if len(options) > 0 {
		wire.Options = options
	}

	for _, msg := range messages {
		wm := wireMessage{Role: msg.Role, Content: msg.Content}
		switch msg.Role {
		case llm.RoleAssistant:
			for _, tc := range msg.Tools {
				var call wireToolCall
				call.ID = tc.ID
				call.Function.Name = tc.Function.Name
				call.Function.Arguments = tc.Function.Arguments
				if len(call.Function.Arguments) == 0 {
					call.Function.Arguments = json.RawMessage(`{}`)
				}
				wm.ToolCalls = append(wm.ToolCalls, call)
			}
		case llm.RoleTool:
			wm.ToolName = msg.ToolName()
		}
		wire.Messages = append(wire.Messages, wm)
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode ollama request: %w", err)
	}
	var req api.ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode ollama request: %w", err)
	}
	return &req, nil
}

func decodeResponse(resp api.ChatResponse) (wireResponse, error) {
	var out wireResponse
	data, err := json.Marshal(resp)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(data, &out)
	return out, err
}

func toToolCalls(calls []wireToolCall) []llm.ToolCall {
	out := make([]llm.ToolCall, 0, len(calls))
	for i, tc := range calls {
		id := tc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		out = append(out, llm.ToolCall{
			ID:   id,
			Type: "function",
			Function: llm.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out
}

// Complete sends a non-streaming chat request and returns the full response.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	req, err := c.buildRequest(messages, tools, false)
	if err != nil {
		return nil, err
	}

	var final wireResponse
	var content strings.Builder
	var calls []wireToolCall
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		decoded, err := decodeResponse(resp)
		if err != nil {
			return err
		}
		content.WriteString(decoded.Message.Content)
		calls = append(calls, decoded.Message.ToolCalls...)
		if decoded.Done {
			final = decoded
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	return &llm.Response{
		Content:   content.String(),
		ToolCalls: toToolCalls(calls),
		Usage: llm.Usage{
			InputTokens:  final.PromptEvalCount,
			OutputTokens: final.EvalCount,
			TotalTokens:  final.PromptEvalCount + final.EvalCount,
		},
	}, nil
}

// Stream sends a streaming chat request and emits each chunk as a delta.
func (c *Client) Stream(ctx context.Context, messages []llm.Message, tools []llm.Tool) (<-chan llm.Delta, error) {
	req, err := c.buildRequest(messages, tools, true)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.Delta, 64)
	go func() {
		defer close(ch)
		err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			decoded, err := decodeResponse(resp)
			if err != nil {
				return err
			}
			delta := llm.Delta{Content: decoded.Message.Content}
			if len(decoded.Message.ToolCalls) > 0 {
				delta.ToolCalls = toToolCalls(decoded.Message.ToolCalls)
			}
			if delta.Content == "" && len(delta.ToolCalls) == 0 {
				return nil
			}
			select {
			case ch <- delta:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && ctx.Err() == nil {
			select {
			case ch <- llm.Delta{Err: fmt.Errorf("ollama stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

var _ llm.Provider = (*Client)(nil)
