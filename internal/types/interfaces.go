// internal/types/interfaces.go
package types

import (
	"context"
)

// TaskStore is the authoritative CRUD surface over tasks. Absence is
// reported through nil/false results, never through an error.
type TaskStore interface {
	ListTasks(ctx context.Context) ([]*Task, error)
	CreateTask(ctx context.Context, title string, isComplete bool) (*Task, error)
	GetTask(ctx context.Context, id TaskID) (*Task, error)
	UpdateTask(ctx context.Context, id TaskID, patch TaskPatch) (bool, error)
	DeleteTask(ctx context.Context, id TaskID) (bool, error)
}

// SessionBacking holds the session key to handle mapping behind the router.
// Implementations must be safe for concurrent use.
type SessionBacking interface {
	Load(ctx context.Context, key SessionKey) (*Session, bool, error)
	Store(ctx context.Context, session *Session) error
	All(ctx context.Context) ([]*Session, error)
}

type EventStore interface {
	Append(ctx context.Context, event *Event) error
	Tail(ctx context.Context, handle ConversationHandle, limit int) ([]*Event, error)
	Count(ctx context.Context, handle ConversationHandle) (int64, error)
}
