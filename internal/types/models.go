// internal/types/models.go
package types

import (
	"encoding/json"
	"time"
)

// Task is a single entry in the task list.
type Task struct {
	ID         TaskID `json:"id"`
	Title      string `json:"title"`
	IsComplete bool   `json:"isComplete"`
}

// Status renders the completion flag the way tool results and the CLI show it.
func (t *Task) Status() string {
	if t.IsComplete {
		return "Complete"
	}
	return "Incomplete"
}

// TaskPatch carries a partial update. Nil fields are left unchanged.
type TaskPatch struct {
	Title      *string `json:"title,omitempty"`
	IsComplete *bool   `json:"isComplete,omitempty"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the only externally visible unit of agent output.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AssistantMessage builds an assistant ChatMessage.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// Event types recorded in a conversation log.
const (
	EventUserMessage      = "user_message"
	EventAssistantMessage = "assistant_message"
	EventToolCall         = "tool_call"
	EventToolResult       = "tool_result"
	EventError            = "error"
)

type Event struct {
	ID      EventID            `json:"id"`
	Handle  ConversationHandle `json:"handle"`
	RunID   RunID              `json:"run_id,omitempty"`
	Seq     int64              `json:"seq"`
	Type    string             `json:"type"`
	Source  string             `json:"source"`
	At      time.Time          `json:"at"`
	Payload json.RawMessage    `json:"payload"`
}

// Session is the router's record of one session key.
type Session struct {
	SessionKey SessionKey         `json:"session_key"`
	Handle     ConversationHandle `json:"handle"`
	CreatedAt  time.Time          `json:"created_at"`
	LastSeenAt time.Time          `json:"last_seen_at"`
}

type InboundEvent struct {
	Source     string          `json:"source"`
	SessionKey SessionKey      `json:"session_key"`
	UserID     string          `json:"user_id"`
	Text       string          `json:"text"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}
