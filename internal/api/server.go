// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/user/taskpilot/internal/metrics"
	"github.com/user/taskpilot/internal/types"
)

// Chatter routes a chat message to an agent variant.
type Chatter interface {
	Chat(ctx context.Context, variant, message string, sessionKey types.SessionKey) (types.ChatMessage, error)
}

// SessionLister lists known conversation sessions.
type SessionLister interface {
	List(ctx context.Context) ([]*types.Session, error)
}

// Server is the HTTP transport over the task store and the agent gateway.
type Server struct {
	tasks    types.TaskStore
	chat     Chatter
	sessions SessionLister
	events   types.EventStore
	router   chi.Router
	http     *http.Server
}

// NewServer builds the router. sessions, events and m may be nil; the
// endpoints that need them then answer 503 or are not mounted.
func NewServer(tasks types.TaskStore, chat Chatter, sessions SessionLister, events types.EventStore, m *metrics.Metrics) *Server {
	s := &Server{
		tasks:    tasks,
		chat:     chat,
		sessions: sessions,
		events:   events,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	if m != nil {
		r.Use(m.Middleware)
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Post("/", s.handleCreateTask)
		r.Get("/{id}", s.handleGetTask)
		r.Put("/{id}", s.handleUpdateTask)
		r.Delete("/{id}", s.handleDeleteTask)
	})

	r.Post("/api/chat/{variant}", s.handleChat)
	r.Get("/api/sessions", s.handleSessions)
	r.Get("/api/sessions/{handle}/events", s.handleSessionEvents)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.http = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("http api listening", "addr", ln.Addr().String())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeFailure maps err to 400 for validation problems and 500 otherwise.
func writeFailure(w http.ResponseWriter, op string, err error) {
	var ve *types.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, ve.Error())
		return
	}
	slog.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
