// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultSessionKey is shared by every caller that does not supply a session key.
const DefaultSessionKey SessionKey = "default-session"

type SessionKey string
type ConversationHandle string
type RunID string
type EventID string
type TaskID int64

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func NewEventID() EventID {
	return EventID(uuid.New().String())
}

func NewSessionKey(parts ...string) SessionKey {
	return SessionKey(strings.Join(parts, ":"))
}

// OrDefault returns k, or DefaultSessionKey when k is blank.
func (k SessionKey) OrDefault() SessionKey {
	if strings.TrimSpace(string(k)) == "" {
		return DefaultSessionKey
	}
	return k
}
