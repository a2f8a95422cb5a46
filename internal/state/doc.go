// Package state provides the volatile stores behind the task assistant:
// the SQLite task table, the session router and the conversation log.
package state

import "github.com/user/taskpilot/internal/types"

// Compile-time interface compliance checks.
var _ types.TaskStore = (*TaskStore)(nil)
var _ types.SessionBacking = (*MemorySessions)(nil)
var _ types.EventStore = (*EventStore)(nil)
