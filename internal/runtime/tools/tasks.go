package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/user/taskpilot/internal/runtime"
	"github.com/user/taskpilot/internal/types"
)

// RegisterTaskTools registers the five task tools against store.
func RegisterTaskTools(r *runtime.Registry, store types.TaskStore) error {
	for _, t := range TaskTools(store) {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// TaskTools returns the task tools bound to store.
func TaskTools(store types.TaskStore) []runtime.Tool {
	return []runtime.Tool{
		&CreateTask{store: store},
		&GetTasks{store: store},
		&GetTask{store: store},
		&UpdateTask{store: store},
		&DeleteTask{store: store},
	}
}

var idField = runtime.Field{Name: "id", Type: runtime.FieldInteger, Required: true, Description: "The ID of the task"}

// taskID reads an integral id, accepting forms like 3.0 that JSON Schema
// treats as integers.
func taskID(n json.Number) (types.TaskID, error) {
	if i, err := n.Int64(); err == nil {
		return types.TaskID(i), nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) {
		return 0, &types.ValidationError{Field: "id", Reason: "must be an integer"}
	}
	return types.TaskID(f), nil
}

func decode(args json.RawMessage, v any) error {
	dec := json.NewDecoder(strings.NewReader(string(args)))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return &types.ValidationError{Field: "arguments", Reason: err.Error()}
	}
	return nil
}

func notFound(id types.TaskID) string {
	return fmt.Sprintf("Task with ID %d not found.", id)
}

// CreateTask adds a task.
type CreateTask struct{ store types.TaskStore }

func (t *CreateTask) Name() string        { return "createTask" }
func (t *CreateTask) Description() string { return "Create a new task" }
func (t *CreateTask) Parameters() json.RawMessage {
	return runtime.Schema{
		{Name: "title", Type: runtime.FieldString, Required: true, MinLength: 1, Description: "The title of the task"},
		{Name: "isComplete", Type: runtime.FieldBoolean, Description: "Whether the task is complete"},
	}.JSON()
}

func (t *CreateTask) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var p struct {
		Title      string `json:"title"`
		IsComplete bool   `json:"isComplete"`
	}
	if err := decode(args, &p); err != nil {
		return "", err
	}
	task, err := t.store.CreateTask(ctx, p.Title, p.IsComplete)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Task created successfully: \"%s\" (ID: %d)", task.Title, task.ID), nil
}

// GetTasks lists every task.
type GetTasks struct{ store types.TaskStore }

func (t *GetTasks) Name() string                { return "getTasks" }
func (t *GetTasks) Description() string         { return "Get all tasks" }
func (t *GetTasks) Parameters() json.RawMessage { return runtime.Schema{}.JSON() }

func (t *GetTasks) Execute(ctx context.Context, _ json.RawMessage) (string, error) {
	tasks, err := t.store.ListTasks(ctx)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "No tasks found.", nil
	}
	lines := make([]string, len(tasks))
	for i, task := range tasks {
		lines[i] = fmt.Sprintf("%d: %s (%s)", task.ID, task.Title, task.Status())
	}
	return strings.Join(lines, "\n"), nil
}

// GetTask shows one task.
type GetTask struct{ store types.TaskStore }

func (t *GetTask) Name() string        { return "getTask" }
func (t *GetTask) Description() string { return "Get a specific task by ID" }
func (t *GetTask) Parameters() json.RawMessage {
	return runtime.Schema{idField}.JSON()
}

func (t *GetTask) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var p struct {
		ID json.Number `json:"id"`
	}
	if err := decode(args, &p); err != nil {
		return "", err
	}
	id, err := taskID(p.ID)
	if err != nil {
		return "", err
	}
	task, err := t.store.GetTask(ctx, id)
	if err != nil {
		return "", err
	}
	if task == nil {
		return notFound(id), nil
	}
	return fmt.Sprintf("Task %d: \"%s\" - Status: %s", task.ID, task.Title, task.Status()), nil
}

// UpdateTask changes the title or completion flag of a task.
type UpdateTask struct{ store types.TaskStore }

func (t *UpdateTask) Name() string        { return "updateTask" }
func (t *UpdateTask) Description() string { return "Update an existing task" }
func (t *UpdateTask) Parameters() json.RawMessage {
	return runtime.Schema{
		idField,
		{Name: "title", Type: runtime.FieldString, MinLength: 1, Description: "The new title of the task"},
		{Name: "isComplete", Type: runtime.FieldBoolean, Description: "Whether the task is complete"},
	}.JSON()
}

func (t *UpdateTask) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var p struct {
		ID         json.Number `json:"id"`
		Title      *string     `json:"title"`
		IsComplete *bool       `json:"isComplete"`
	}
	if err := decode(args, &p); err != nil {
		return "", err
	}
	id, err := taskID(p.ID)
	if err != nil {
		return "", err
	}
	ok, err := t.store.UpdateTask(ctx, id, types.TaskPatch{Title: p.Title, IsComplete: p.IsComplete})
	if err != nil {
		return "", err
	}
	if !ok {
		return notFound(id), nil
	}
	return fmt.Sprintf("Task %d updated successfully.", id), nil
}

// DeleteTask removes a task.
type DeleteTask struct{ store types.TaskStore }

func (t *DeleteTask) Name() string        { return "deleteTask" }
func (t *DeleteTask) Description() string { return "Delete a task" }
func (t *DeleteTask) Parameters() json.RawMessage {
	return runtime.Schema{idField}.JSON()
}

func (t *DeleteTask) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var p struct {
		ID json.Number `json:"id"`
	}
	if err := decode(args, &p); err != nil {
		return "", err
	}
	id, err := taskID(p.ID)
	if err != nil {
		return "", err
	}
	ok, err := t.store.DeleteTask(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return notFound(id), nil
	}
	return fmt.Sprintf("Task %d deleted successfully.", id), nil
}
