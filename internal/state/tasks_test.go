// internal/state/tasks_test.go
package state

import (
	"context"
	"sync"
	"testing"

	"github.com/user/taskpilot/internal/types"
)

func newTestTaskStore(t *testing.T) *TaskStore {
	t.Helper()
	store, err := NewTaskStore(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func ptr[T any](v T) *T { return &v }

func TestCreateAndGetTask(t *testing.T) {
	store := newTestTaskStore(t)
	ctx := context.Background()

	task, err := store.CreateTask(ctx, "Buy milk", false)
	if err != nil {
		t.Fatal(err)
	}
	if task.ID <= 0 {
		t.Errorf("expected positive id, got %d", task.ID)
	}

	got, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected task, got nil")
	}
	if got.Title != "Buy milk" || got.IsComplete {
		t.Errorf("unexpected task: %+v", got)
	}

	list, err := store.ListTasks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != task.ID {
		t.Fatalf("expected exactly one task with id %d, got %+v", task.ID, list)
	}
}

func TestCreateTaskRejectsEmptyTitle(t *testing.T) {
	store := newTestTaskStore(t)
	ctx := context.Background()

	for _, title := range []string{"", "   "} {
		if _, err := store.CreateTask(ctx, title, false); !types.IsValidation(err) {
			t.Errorf("expected validation error for %q, got %v", title, err)
		}
	}

	list, err := store.ListTasks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("expected no tasks after rejected creates, got %d", len(list))
	}
}

func TestGetTaskNotFound(t *testing.T) {
	store := newTestTaskStore(t)
	got, err := store.GetTask(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing task, got %+v", got)
	}
}

func TestListTasksEmpty(t *testing.T) {
	store := newTestTaskStore(t)
	list, err := store.ListTasks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", list)
	}
}

func TestIdentityNeverReused(t *testing.T) {
	store := newTestTaskStore(t)
	ctx := context.Background()

	var maxSeen types.TaskID
	for i := 0; i < 5; i++ {
		task, err := store.CreateTask(ctx, "task", false)
		if err != nil {
			t.Fatal(err)
		}
		if task.ID <= maxSeen {
			t.Fatalf("id %d not greater than previous max %d", task.ID, maxSeen)
		}
		maxSeen = task.ID

		// Deleting the newest row must not free its id.
		if i%2 == 0 {
			if ok, err := store.DeleteTask(ctx, task.ID); err != nil || !ok {
				t.Fatalf("delete %d: ok=%v err=%v", task.ID, ok, err)
			}
		}
	}
}

func TestListTasksOrderedByID(t *testing.T) {
	store := newTestTaskStore(t)
	ctx := context.Background()

	var ids []types.TaskID
	for _, title := range []string{"c", "a", "b", "d"} {
		task, err := store.CreateTask(ctx, title, false)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, task.ID)
	}
	if _, err := store.DeleteTask(ctx, ids[1]); err != nil {
		t.Fatal(err)
	}
	if _, err := store.CreateTask(ctx, "e", false); err != nil {
		t.Fatal(err)
	}

	list, err := store.ListTasks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].ID >= list[i].ID {
			t.Fatalf("list not ascending at %d: %d >= %d", i, list[i-1].ID, list[i].ID)
		}
	}
	if len(list) != 4 {
		t.Errorf("expected 4 tasks, got %d", len(list))
	}
}

func TestUpdateTaskPartial(t *testing.T) {
	store := newTestTaskStore(t)
	ctx := context.Background()

	task, err := store.CreateTask(ctx, "Walk dog", false)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := store.UpdateTask(ctx, task.ID, types.TaskPatch{IsComplete: ptr(true)})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected update to match")
	}

	got, _ := store.GetTask(ctx, task.ID)
	if !got.IsComplete {
		t.Error("expected task to be complete")
	}
	if got.Title != "Walk dog" {
		t.Errorf("title should be unchanged, got %q", got.Title)
	}

	ok, err = store.UpdateTask(ctx, task.ID, types.TaskPatch{Title: ptr("Walk the dog")})
	if err != nil || !ok {
		t.Fatalf("title update: ok=%v err=%v", ok, err)
	}
	got, _ = store.GetTask(ctx, task.ID)
	if got.Title != "Walk the dog" || !got.IsComplete {
		t.Errorf("unexpected task after title update: %+v", got)
	}
}

func TestUpdateTaskSetFalseLeavesTitle(t *testing.T) {
	store := newTestTaskStore(t)
	ctx := context.Background()

	task, _ := store.CreateTask(ctx, "Read", true)
	ok, err := store.UpdateTask(ctx, task.ID, types.TaskPatch{IsComplete: ptr(false)})
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	got, _ := store.GetTask(ctx, task.ID)
	if got.IsComplete || got.Title != "Read" {
		t.Errorf("unexpected task: %+v", got)
	}
}

func TestUpdateTaskNoChangeStillMatches(t *testing.T) {
	store := newTestTaskStore(t)
	ctx := context.Background()

	task, _ := store.CreateTask(ctx, "Same", false)
	ok, err := store.UpdateTask(ctx, task.ID, types.TaskPatch{Title: ptr("Same"), IsComplete: ptr(false)})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected true for a matching id even when values are equal")
	}

	ok, err = store.UpdateTask(ctx, task.ID, types.TaskPatch{})
	if err != nil || !ok {
		t.Fatalf("empty patch: ok=%v err=%v", ok, err)
	}
}

func TestUpdateTaskNotFound(t *testing.T) {
	store := newTestTaskStore(t)
	ok, err := store.UpdateTask(context.Background(), 999, types.TaskPatch{IsComplete: ptr(true)})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected false for missing task")
	}
}

func TestUpdateTaskRejectsEmptyTitle(t *testing.T) {
	store := newTestTaskStore(t)
	ctx := context.Background()

	task, _ := store.CreateTask(ctx, "Keep me", false)
	if _, err := store.UpdateTask(ctx, task.ID, types.TaskPatch{Title: ptr("")}); !types.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got, _ := store.GetTask(ctx, task.ID)
	if got.Title != "Keep me" {
		t.Errorf("title changed by rejected update: %q", got.Title)
	}
}

func TestDeleteTaskTwice(t *testing.T) {
	store := newTestTaskStore(t)
	ctx := context.Background()

	task, _ := store.CreateTask(ctx, "Once", false)

	ok, err := store.DeleteTask(ctx, task.ID)
	if err != nil || !ok {
		t.Fatalf("first delete: ok=%v err=%v", ok, err)
	}
	ok, err = store.DeleteTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("second delete should report false")
	}
}

func TestDeleteTaskMissingLeavesStore(t *testing.T) {
	store := newTestTaskStore(t)
	ctx := context.Background()

	store.CreateTask(ctx, "Stay", false)
	ok, err := store.DeleteTask(ctx, 999)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected false for id never assigned")
	}
	list, _ := store.ListTasks(ctx)
	if len(list) != 1 {
		t.Errorf("store changed by missing delete: %d tasks", len(list))
	}
}

func TestTaskStoreConcurrentCreates(t *testing.T) {
	store := newTestTaskStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan types.TaskID, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := store.CreateTask(ctx, "parallel", false)
			if err != nil {
				t.Error(err)
				return
			}
			ids <- task.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[types.TaskID]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != 50 {
		t.Errorf("expected 50 distinct ids, got %d", len(seen))
	}
}
