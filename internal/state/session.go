// internal/state/session.go
package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/user/taskpilot/internal/types"
)

// MintFunc produces the conversation handle for a session key seen for the
// first time.
type MintFunc func(ctx context.Context, key types.SessionKey) (types.ConversationHandle, error)

// KeyAsHandle makes the session key its own handle.
func KeyAsHandle(_ context.Context, key types.SessionKey) (types.ConversationHandle, error) {
	return types.ConversationHandle(key), nil
}

// SessionRouter maps session keys to conversation handles. A mapping is
// created on first contact and kept for the life of the router.
type SessionRouter struct {
	backing types.SessionBacking
	mu      sync.Mutex
}

// NewSessionRouter creates a router over the given backing. A nil backing
// gets a fresh in-memory map.
func NewSessionRouter(backing types.SessionBacking) *SessionRouter {
	if backing == nil {
		backing = NewMemorySessions()
	}
	return &SessionRouter{backing: backing}
}

// Resolve returns the handle for key. A present key is its own handle;
// a blank key resolves to the shared default session.
func (r *SessionRouter) Resolve(ctx context.Context, key types.SessionKey) (types.ConversationHandle, error) {
	return r.ResolveOrCreate(ctx, key, KeyAsHandle)
}

// ResolveOrCreate returns the stored handle for key, calling mint only the
// first time the key is seen.
func (r *SessionRouter) ResolveOrCreate(ctx context.Context, key types.SessionKey, mint MintFunc) (types.ConversationHandle, error) {
	key = key.OrDefault()

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	sess, ok, err := r.backing.Load(ctx, key)
	if err != nil {
		return "", err
	}
	if ok {
		sess.LastSeenAt = now
		if err := r.backing.Store(ctx, sess); err != nil {
			return "", err
		}
		return sess.Handle, nil
	}

	handle, err := mint(ctx, key)
	if err != nil {
		return "", err
	}
	sess = &types.Session{
		SessionKey: key,
		Handle:     handle,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := r.backing.Store(ctx, sess); err != nil {
		return "", err
	}
	return handle, nil
}

// List returns all known sessions, most recently seen first.
func (r *SessionRouter) List(ctx context.Context) ([]*types.Session, error) {
	sessions, err := r.backing.All(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastSeenAt.After(sessions[j].LastSeenAt)
	})
	return sessions, nil
}

// MemorySessions is a map-backed SessionBacking.
type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[types.SessionKey]types.Session
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[types.SessionKey]types.Session)}
}

func (m *MemorySessions) Load(_ context.Context, key types.SessionKey) (*types.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[key]
	if !ok {
		return nil, false, nil
	}
	return &sess, true, nil
}

func (m *MemorySessions) Store(_ context.Context, session *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.SessionKey] = *session
	return nil
}

func (m *MemorySessions) All(_ context.Context) ([]*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		s := sess
		out = append(out, &s)
	}
	return out, nil
}
