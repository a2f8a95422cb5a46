package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/user/taskpilot/internal/types"
)

type createTaskRequest struct {
	Title      string `json:"title"`
	IsComplete bool   `json:"isComplete"`
}

func taskID(r *http.Request) (types.TaskID, error) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &types.ValidationError{Field: "id", Reason: fmt.Sprintf("%q is not an integer", raw)}
	}
	return types.TaskID(n), nil
}

func notFound(w http.ResponseWriter, id types.TaskID) {
	writeError(w, http.StatusNotFound, fmt.Sprintf("Task with ID %d not found.", id))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.ListTasks(r.Context())
	if err != nil {
		writeFailure(w, "list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []*types.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	task, err := s.tasks.CreateTask(r.Context(), req.Title, req.IsComplete)
	if err != nil {
		writeFailure(w, "create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeFailure(w, "get task", err)
		return
	}
	task, err := s.tasks.GetTask(r.Context(), id)
	if err != nil {
		writeFailure(w, "get task", err)
		return
	}
	if task == nil {
		notFound(w, id)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeFailure(w, "update task", err)
		return
	}
	var patch types.TaskPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ok, err := s.tasks.UpdateTask(r.Context(), id, patch)
	if err != nil {
		writeFailure(w, "update task", err)
		return
	}
	if !ok {
		notFound(w, id)
		return
	}
	task, err := s.tasks.GetTask(r.Context(), id)
	if err != nil {
		writeFailure(w, "update task", err)
		return
	}
	if task == nil {
		// Deleted between the update and the read.
		notFound(w, id)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeFailure(w, "delete task", err)
		return
	}
	ok, err := s.tasks.DeleteTask(r.Context(), id)
	if err != nil {
		writeFailure(w, "delete task", err)
		return
	}
	if !ok {
		notFound(w, id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Task %d deleted successfully.", id)})
}
