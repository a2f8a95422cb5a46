// internal/state/event.go
package state

import (
	"context"
	"sync"

	"github.com/user/taskpilot/internal/types"
)

// EventStore is an in-memory append-only conversation log, one ordered
// slice per conversation handle.
type EventStore struct {
	mu     sync.RWMutex
	events map[types.ConversationHandle][]*types.Event
}

// NewEventStore creates an empty EventStore.
func NewEventStore() *EventStore {
	return &EventStore{events: make(map[types.ConversationHandle][]*types.Event)}
}

// Append adds an event to the handle's log with an auto-incremented sequence number.
func (e *EventStore) Append(_ context.Context, event *types.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	log := e.events[event.Handle]
	event.Seq = int64(len(log)) + 1
	stored := *event
	e.events[event.Handle] = append(log, &stored)
	return nil
}

// Tail returns the last N events for the given handle.
func (e *EventStore) Tail(_ context.Context, handle types.ConversationHandle, limit int) ([]*types.Event, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	log := e.events[handle]
	if len(log) > limit {
		log = log[len(log)-limit:]
	}
	out := make([]*types.Event, len(log))
	for i, ev := range log {
		c := *ev
		out[i] = &c
	}
	return out, nil
}

// Count returns the number of events for the given handle.
func (e *EventStore) Count(_ context.Context, handle types.ConversationHandle) (int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return int64(len(e.events[handle])), nil
}
