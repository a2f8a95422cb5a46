package llm

import "encoding/json"

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a chat message in a conversation. An assistant message
// carries the calls it requested in Tools; a tool message carries the single
// call it answers.
type Message struct {
	Role    string     `json:"role"`
	Content string     `json:"content"`
	Tools   []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCallMessage is an assistant turn requesting one function call.
func ToolCallMessage(callID, name string, args json.RawMessage) Message {
	return Message{
		Role: RoleAssistant,
		Tools: []ToolCall{{
			ID:       callID,
			Type:     "function",
			Function: FunctionCall{Name: name, Arguments: args},
		}},
	}
}

// ToolResultMessage answers the call callID with content.
func ToolResultMessage(callID, name, content string) Message {
	return Message{
		Role:    RoleTool,
		Content: content,
		Tools:   []ToolCall{{ID: callID, Function: FunctionCall{Name: name}}},
	}
}

// CallID returns the id of the call a tool message answers, or "".
func (m Message) CallID() string {
	if m.Role != RoleTool || len(m.Tools) == 0 {
		return ""
	}
	return m.Tools[0].ID
}

// ToolName returns the function name a tool message answers, or "".
func (m Message) ToolName() string {
	if m.Role != RoleTool || len(m.Tools) == 0 {
		return ""
	}
	return m.Tools[0].Function.Name
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall contains the function name and arguments for a tool call.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Tool describes a tool that can be provided to the model.
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function describes a callable function including its parameters schema.
type Function struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Response represents a complete response from an LLM provider.
type Response struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// Usage tracks token consumption for a request/response pair.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Delta represents an incremental update during streaming. A delta with
// Err set is the last one sent on a failed stream.
type Delta struct {
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Err       error      `json:"-"`
}
