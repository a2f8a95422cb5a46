package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/user/taskpilot/pkg/llm"
)

// Client implements llm.Provider over the OpenAI chat completions API.
type Client struct {
	client openai.Client
	config *llm.Config
}

// New creates an OpenAI client. An empty BaseURL targets api.openai.com.
// SDK-level retries are disabled; callers apply their own retry policy.
func New(config *llm.Config) *Client {
	return &Client{
		client: openai.NewClient(RequestOptions(config.BaseURL, config.APIKey)...),
		config: config,
	}
}

// RequestOptions builds the SDK options shared by chat and assistants clients.
func RequestOptions(baseURL, apiKey string) []option.RequestOption {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return opts
}

func (c *Client) buildParams(messages []llm.Message, tools []llm.Tool) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.config.Model),
		Messages: toMessageParams(messages),
	}
	if c.config.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.config.MaxTokens))
	}
	if c.config.Temperature > 0 {
		params.Temperature = openai.Float(float64(c.config.Temperature))
	}
	if len(tools) > 0 {
		toolParams, err := toToolParams(tools)
		if err != nil {
			return params, err
		}
		params.Tools = toolParams
	}
	return params, nil
}

func toMessageParams(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case llm.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case llm.RoleAssistant:
			if len(msg.Tools) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCall, 0, len(msg.Tools))
			for _, tc := range msg.Tools {
				calls = append(calls, openai.ChatCompletionMessageToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      tc.Function.Name,
						Arguments: string(tc.Function.Arguments),
					},
				})
			}
			assistant := openai.ChatCompletionMessage{
				Role:      "assistant",
				Content:   msg.Content,
				ToolCalls: calls,
			}
			out = append(out, assistant.ToParam())
		case llm.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.CallID()))
		}
	}
	return out
}

func toToolParams(tools []llm.Tool) ([]openai.ChatCompletionToolParam, error) {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if len(t.Function.Parameters) > 0 {
			if err := json.Unmarshal(t.Function.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("tool %s parameters: %w", t.Function.Name, err)
			}
		}
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Function.Name,
				Description: openai.String(t.Function.Description),
				Parameters:  openai.FunctionParameters(schema),
			},
		})
	}
	return out, nil
}

// Complete sends a chat completion request and returns the full response.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	params, err := c.buildParams(messages, tools)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai chat: no choices in response")
	}

	choice := resp.Choices[0]
	out := &llm.Response{
		Content: choice.Message.Content,
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: llm.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			},
		})
	}
	return out, nil
}

// Stream sends a streaming chat completion request. Content arrives as
// incremental deltas; each tool call is delivered once its arguments are
// complete.
func (c *Client) Stream(ctx context.Context, messages []llm.Message, tools []llm.Tool) (<-chan llm.Delta, error) {
	params, err := c.buildParams(messages, tools)
	if err != nil {
		return nil, err
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	ch := make(chan llm.Delta, 64)

	go func() {
		defer close(ch)
		defer stream.Close()

		acc := openai.ChatCompletionAccumulator{}
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				select {
				case ch <- llm.Delta{Content: chunk.Choices[0].Delta.Content}:
				case <-ctx.Done():
					return
				}
			}
			if tool, ok := acc.JustFinishedToolCall(); ok {
				select {
				case ch <- llm.Delta{ToolCalls: []llm.ToolCall{{
					ID:   tool.ID,
					Type: "function",
					Function: llm.FunctionCall{
						Name:      tool.Name,
						Arguments: json.RawMessage(tool.Arguments),
					},
				}}}:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case ch <- llm.Delta{Err: fmt.Errorf("openai stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

var _ llm.Provider = (*Client)(nil)
