package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/user/taskpilot/internal/types"
)

// chatRequest is the JSON body for POST /api/chat/{variant}.
type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	variant := chi.URLParam(r, "variant")
	reply, err := s.chat.Chat(r.Context(), variant, req.Message, types.SessionKey(req.SessionID))
	if err != nil {
		writeFailure(w, "chat", err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type sessionResponse struct {
	SessionKey string `json:"session_key"`
	Handle     string `json:"handle"`
	CreatedAt  string `json:"created_at"`
	LastSeenAt string `json:"last_seen_at"`
	EventCount int64  `json:"event_count"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "session listing not configured")
		return
	}
	ctx := r.Context()
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		writeFailure(w, "list sessions", err)
		return
	}

	result := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		var count int64
		if s.events != nil {
			if count, err = s.events.Count(ctx, sess.Handle); err != nil {
				slog.Warn("count events failed", "handle", string(sess.Handle), "error", err)
			}
		}
		result = append(result, sessionResponse{
			SessionKey: string(sess.SessionKey),
			Handle:     string(sess.Handle),
			CreatedAt:  sess.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			LastSeenAt: sess.LastSeenAt.Format("2006-01-02T15:04:05Z07:00"),
			EventCount: count,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event log not configured")
		return
	}
	handle := types.ConversationHandle(chi.URLParam(r, "handle"))

	limit := 200
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := s.events.Tail(r.Context(), handle, limit)
	if err != nil {
		writeFailure(w, "tail events", err)
		return
	}
	if events == nil {
		events = []*types.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
