package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/user/taskpilot/pkg/llm"
)

const defaultMaxTokens = 1024

// Client implements llm.Provider over the Anthropic Messages API.
type Client struct {
	client anthropic.Client
	config *llm.Config
}

// New creates an Anthropic client. SDK-level retries are disabled; callers
// apply their own retry policy.
func New(config *llm.Config) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	return &Client{
		client: anthropic.NewClient(opts...),
		config: config,
	}
}

func (c *Client) buildParams(messages []llm.Message, tools []llm.Tool) anthropic.MessageNewParams {
	maxTokens := c.config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	system, turns := toMessageParams(messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		Messages:  turns,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if c.config.Temperature > 0 {
		params.Temperature = param.NewOpt(float64(c.config.Temperature))
	}
	if len(tools) > 0 {
		params.Tools = toToolParams(tools)
	}
	return params
}

// toMessageParams splits out system text and folds the remaining messages
// into alternating user/assistant turns. Tool results travel as user turns.
func toMessageParams(messages []llm.Message) (string, []anthropic.MessageParam) {
	var system string
	var turns []anthropic.MessageParam
	var role anthropic.MessageParamRole
	var blocks []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if role == anthropic.MessageParamRoleAssistant {
			turns = append(turns, anthropic.NewAssistantMessage(blocks...))
		} else {
			turns = append(turns, anthropic.NewUserMessage(blocks...))
		}
		blocks = nil
	}
	add := func(r anthropic.MessageParamRole, b ...anthropic.ContentBlockParamUnion) {
		if r != role {
			flush()
			role = r
		}
		blocks = append(blocks, b...)
	}

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		case llm.RoleUser:
			add(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(msg.Content))
		case llm.RoleAssistant:
			var b []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				b = append(b, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.Tools {
				input := tc.Function.Arguments
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				b = append(b, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
			}
			if len(b) > 0 {
				add(anthropic.MessageParamRoleAssistant, b...)
			}
		case llm.RoleTool:
			add(anthropic.MessageParamRoleUser, anthropic.NewToolResultBlock(msg.CallID(), msg.Content, false))
		}
	}
	flush()
	return system, turns
}

func toToolParams(tools []llm.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		if len(t.Function.Parameters) > 0 {
			if err := json.Unmarshal(t.Function.Parameters, &schema); err != nil {
				slog.Warn("anthropic: skipping tool with bad schema", "tool", t.Function.Name, "error", err)
				continue
			}
		}
		if schema.Properties == nil {
			schema.Properties = map[string]any{}
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Function.Name,
				Description: param.NewOpt(t.Function.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema.Properties,
					Required:   schema.Required,
				},
			},
		})
	}
	return out
}

func fromMessage(msg *anthropic.Message) *llm.Response {
	resp := &llm.Response{
		Usage: llm.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: llm.FunctionCall{
					Name:      block.Name,
					Arguments: block.Input,
				},
			})
		}
	}
	return resp
}

// Complete sends a messages request and returns the full response.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	msg, err := c.client.Messages.New(ctx, c.buildParams(messages, tools))
	if err != nil {
		return nil, fmt.Errorf("anthropic chat: %w", err)
	}
	return fromMessage(msg), nil
}

// Stream sends a streaming messages request. Text arrives as deltas; tool
// calls are delivered once the message is complete.
func (c *Client) Stream(ctx context.Context, messages []llm.Message, tools []llm.Tool) (<-chan llm.Delta, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.buildParams(messages, tools))
	ch := make(chan llm.Delta, 64)

	go func() {
		defer close(ch)
		var acc anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				slog.Warn("anthropic: accumulate stream event", "error", err)
				continue
			}
			if event.Type == "content_block_delta" && event.Delta.Type == "text_delta" {
				select {
				case ch <- llm.Delta{Content: event.Delta.Text}:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case ch <- llm.Delta{Err: fmt.Errorf("anthropic stream: %w", err)}:
			case <-ctx.Done():
			}
			return
		}
		if calls := fromMessage(&acc).ToolCalls; len(calls) > 0 {
			select {
			case ch <- llm.Delta{ToolCalls: calls}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

var _ llm.Provider = (*Client)(nil)
