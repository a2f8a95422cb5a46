// internal/state/tasks.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/user/taskpilot/internal/types"
)

const tasksSchema = `CREATE TABLE IF NOT EXISTS tasks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	title       TEXT    NOT NULL,
	is_complete INTEGER NOT NULL DEFAULT 0
)`

// TaskStore keeps tasks in an in-memory SQLite database. The data lives
// only as long as the process.
//
// The handle is pinned to a single connection: every ":memory:" connection
// is its own database, and one connection also makes SQLite run queued
// statements in submission order.
type TaskStore struct {
	db *sql.DB
}

// NewTaskStore opens an empty in-memory task table.
func NewTaskStore(ctx context.Context) (*TaskStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open task database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.ExecContext(ctx, tasksSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tasks table: %w", err)
	}
	return &TaskStore{db: db}, nil
}

// Close releases the database. All tasks are lost.
func (s *TaskStore) Close() error {
	return s.db.Close()
}

// ListTasks returns every task ordered by id ascending.
func (s *TaskStore) ListTasks(ctx context.Context) ([]*types.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, is_complete FROM tasks ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*types.Task{}
	for rows.Next() {
		var task types.Task
		if err := rows.Scan(&task.ID, &task.Title, &task.IsComplete); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, &task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// CreateTask inserts a task under the next identity. Identities are never
// reused, even after the highest one is deleted.
func (s *TaskStore) CreateTask(ctx context.Context, title string, isComplete bool) (*types.Task, error) {
	if err := validateTitle(title); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO tasks (title, is_complete) VALUES (?, ?)`, title, isComplete)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read task id: %w", err)
	}
	return &types.Task{ID: types.TaskID(id), Title: title, IsComplete: isComplete}, nil
}

// GetTask returns the task with the given id, or nil if there is none.
func (s *TaskStore) GetTask(ctx context.Context, id types.TaskID) (*types.Task, error) {
	var task types.Task
	err := s.db.QueryRowContext(ctx, `SELECT id, title, is_complete FROM tasks WHERE id = ?`, int64(id)).
		Scan(&task.ID, &task.Title, &task.IsComplete)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task %d: %w", id, err)
	}
	return &task, nil
}

// UpdateTask applies the non-nil fields of patch. It reports false when no
// task has that id, and true on any match, including a no-op patch.
func (s *TaskStore) UpdateTask(ctx context.Context, id types.TaskID, patch types.TaskPatch) (bool, error) {
	var title sql.NullString
	if patch.Title != nil {
		if err := validateTitle(*patch.Title); err != nil {
			return false, err
		}
		title = sql.NullString{String: *patch.Title, Valid: true}
	}
	var done sql.NullBool
	if patch.IsComplete != nil {
		done = sql.NullBool{Bool: *patch.IsComplete, Valid: true}
	}

	// SQLite counts matched rows as changed even when the values are equal.
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET title = COALESCE(?, title), is_complete = COALESCE(?, is_complete) WHERE id = ?`,
		title, done, int64(id))
	if err != nil {
		return false, fmt.Errorf("update task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("read update result: %w", err)
	}
	return n > 0, nil
}

// DeleteTask removes the task and reports whether it existed.
func (s *TaskStore) DeleteTask(ctx context.Context, id types.TaskID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, int64(id))
	if err != nil {
		return false, fmt.Errorf("delete task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("read delete result: %w", err)
	}
	return n > 0, nil
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return &types.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	return nil
}
