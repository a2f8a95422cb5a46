// internal/context/engine.go
package context

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/taskpilot/internal/types"
	"github.com/user/taskpilot/pkg/llm"
)

// TokenCounter returns the number of tokens text occupies.
type TokenCounter func(text string) int

// EstimateTokens approximates a token count at four characters per token.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// Engine assembles token-budgeted prompts for the LLM.
type Engine struct {
	count     TokenCounter
	maxTokens int
	reserve   int
	prompt    *template.Template
}

// New creates a context engine with the specified token budget.
// model is used to select the appropriate tokenizer (e.g. "gpt-4").
// maxTokens is the model's context window size.
// reserve is the number of tokens to reserve for the model's response.
// When no tokenizer can be loaded the engine falls back to EstimateTokens.
func New(model string, maxTokens, reserve int) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		slog.Warn("tokenizer unavailable, estimating token counts", "model", model, "error", err)
		return NewWithCounter(EstimateTokens, maxTokens, reserve)
	}
	return NewWithCounter(func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, maxTokens, reserve)
}

// NewWithCounter creates a context engine that counts tokens with count.
func NewWithCounter(count TokenCounter, maxTokens, reserve int) (*Engine, error) {
	if maxTokens <= reserve {
		return nil, fmt.Errorf("context window %d must exceed output reserve %d", maxTokens, reserve)
	}
	e := &Engine{count: count, maxTokens: maxTokens, reserve: reserve}
	if err := e.SetPrompt(DefaultPrompt); err != nil {
		return nil, err
	}
	return e, nil
}

// SetPrompt replaces the system prompt template.
func (e *Engine) SetPrompt(text string) error {
	tmpl, err := template.New("system").Parse(text)
	if err != nil {
		return fmt.Errorf("parse prompt: %w", err)
	}
	e.prompt = tmpl
	return nil
}

// BuildPrompt assembles a token-budgeted prompt from a conversation's events.
// The newest events are kept when the history does not fit. toolNames is an
// optional list of available tool names for the system prompt.
func (e *Engine) BuildPrompt(
	ctx context.Context,
	handle types.ConversationHandle,
	events []*types.Event,
	toolNames []string,
) ([]llm.Message, error) {
	inputBudget := e.maxTokens - e.reserve

	// 1. System prompt
	sysPrompt, err := e.renderSystemPrompt(handle, toolNames)
	if err != nil {
		return nil, err
	}
	remaining := inputBudget - e.count(sysPrompt)

	// 90% for events, 10% safety margin
	eventBudget := int(float64(remaining) * 0.9)

	// 2. Convert events to messages, newest first, respecting budget
	var kept []llm.Message
	usedTokens := 0

	for i := len(events) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg, ok := eventToMessage(events[i])
		if !ok {
			continue
		}

		msgTokens := e.count(msg.Content)
		for _, tc := range msg.Tools {
			msgTokens += e.count(tc.Function.Name)
			msgTokens += e.count(string(tc.Function.Arguments))
		}

		if usedTokens+msgTokens > eventBudget {
			break
		}

		kept = append(kept, msg)
		usedTokens += msgTokens
	}

	// Restore chronological order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}

	// A tool result is only meaningful after its call.
	for len(kept) > 0 && kept[0].Role == llm.RoleTool {
		kept = kept[1:]
	}

	// 3. Assemble: system + events
	messages := make([]llm.Message, 0, 1+len(kept))
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: sysPrompt})
	messages = append(messages, kept...)

	return messages, nil
}

func (e *Engine) renderSystemPrompt(handle types.ConversationHandle, toolNames []string) (string, error) {
	var buf bytes.Buffer
	err := e.prompt.Execute(&buf, PromptData{
		Time:   time.Now().Format(time.RFC3339),
		Handle: string(handle),
		Tools:  strings.Join(toolNames, ", "),
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

type eventPayload struct {
	Text      string          `json:"text"`
	Tool      string          `json:"tool"`
	CallID    string          `json:"call_id"`
	Arguments json.RawMessage `json:"arguments"`
	Result    string          `json:"result"`
}

func eventToMessage(event *types.Event) (llm.Message, bool) {
	var payload eventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return llm.Message{}, false
	}

	switch event.Type {
	case types.EventUserMessage:
		return llm.Message{Role: llm.RoleUser, Content: payload.Text}, true

	case types.EventAssistantMessage:
		return llm.Message{Role: llm.RoleAssistant, Content: payload.Text}, true

	case types.EventToolCall:
		return llm.ToolCallMessage(payload.CallID, payload.Tool, payload.Arguments), true

	case types.EventToolResult:
		return llm.ToolResultMessage(payload.CallID, payload.Tool, payload.Result), true

	default:
		return llm.Message{}, false
	}
}
