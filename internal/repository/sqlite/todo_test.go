package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sakif/todo-tracker/internal/apperror"
	"github.com/sakif/todo-tracker/internal/model"
	"github.com/sakif/todo-tracker/internal/repository"
)

// TESTING WITH IN-MEMORY SQLITE:
// Using ":memory:" creates a fresh database that exists only during the test.
// The engine keeps a single connection open, so the database lives exactly as
// long as the *DB does.
//
// The `t.Helper()` call tells Go's test framework to report errors at the CALLER's
// line number, not inside this function.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(MemoryPath)
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestTodo creates a todo and fails the test if it errors.
func createTestTodo(t *testing.T, db *DB, title string, priority int) *model.Todo {
	t.Helper()
	todo := &model.Todo{Title: title, Priority: priority}
	if err := db.Create(context.Background(), todo); err != nil {
		t.Fatalf("failed to create test todo: %v", err)
	}
	return todo
}

func ptr[T any](v T) *T { return &v }

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreate(t *testing.T) {
	db := newTestDB(t)

	due := model.NewDate(2024, 1, 20)
	todo := &model.Todo{Title: "  Buy milk  ", Priority: model.PriorityHigh, DueDate: &due}

	if err := db.Create(context.Background(), todo); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if todo.ID != 1 {
		t.Errorf("ID = %d, want 1", todo.ID)
	}
	if todo.Title != "Buy milk" {
		t.Errorf("Title = %q, want %q (trimmed)", todo.Title, "Buy milk")
	}

	found, err := db.GetByID(context.Background(), todo.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Title != "Buy milk" || found.Completed || found.Priority != model.PriorityHigh {
		t.Errorf("GetByID() = %+v, want Buy milk / not completed / high", found)
	}
	if found.DueDate == nil || found.DueDate.String() != "2024-01-20" {
		t.Errorf("DueDate = %v, want 2024-01-20", found.DueDate)
	}
}

func TestCreate_DefaultsPriorityToMedium(t *testing.T) {
	db := newTestDB(t)
	todo := createTestTodo(t, db, "no priority", 0)

	if todo.Priority != model.PriorityMedium {
		t.Errorf("Priority = %d, want %d", todo.Priority, model.PriorityMedium)
	}
	if todo.DueDate != nil {
		t.Errorf("DueDate = %v, want nil", todo.DueDate)
	}
}

func TestCreate_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		priority int
		field    string
	}{
		{"empty title", "", 0, "title"},
		{"whitespace title", "   \t ", 0, "title"},
		{"title too long", strings.Repeat("a", model.MaxTitleLength+1), 0, "title"},
		{"priority too high", "ok", 4, "priority"},
		{"priority negative", "ok", -1, "priority"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			err := db.Create(context.Background(), &model.Todo{Title: tt.title, Priority: tt.priority})
			if !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Create() error = %v, want ErrValidation", err)
			}
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.field)
			}

			// Nothing was committed.
			todos, err := db.List(context.Background(), repository.ListFilter{})
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(todos) != 0 {
				t.Errorf("List() returned %d todos after failed create, want 0", len(todos))
			}
		})
	}
}

func TestCreate_TitleAtLimit(t *testing.T) {
	db := newTestDB(t)
	// 200 multi-byte runes is still 200 characters.
	title := strings.Repeat("é", model.MaxTitleLength)
	todo := createTestTodo(t, db, title, 0)
	if todo.Title != title {
		t.Error("title at the limit was altered")
	}
}

func TestCreate_IDsAreNeverReused(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := createTestTodo(t, db, "first", 0)
	second := createTestTodo(t, db, "second", 0)
	if err := db.Delete(ctx, second.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	third := createTestTodo(t, db, "third", 0)
	if third.ID <= second.ID {
		t.Errorf("third.ID = %d, want > %d (ids must never be reused)", third.ID, second.ID)
	}
	if first.ID >= second.ID {
		t.Errorf("ids not increasing: %d then %d", first.ID, second.ID)
	}
}

// =========================================================================
// GET BY ID TESTS
// =========================================================================

func TestGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByID(context.Background(), 999)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestList_Empty(t *testing.T) {
	db := newTestDB(t)

	todos, err := db.List(context.Background(), repository.ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	// Must be an empty slice, not nil, so it encodes as [].
	if todos == nil || len(todos) != 0 {
		t.Errorf("List() = %#v, want empty non-nil slice", todos)
	}
}

func TestList_OrderAndFilters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	low := createTestTodo(t, db, "low", model.PriorityLow)
	highOld := createTestTodo(t, db, "high old", model.PriorityHigh)
	medium := createTestTodo(t, db, "medium", model.PriorityMedium)
	highNew := createTestTodo(t, db, "high new", model.PriorityHigh)

	if _, err := db.Update(ctx, highOld.ID, model.TodoPatch{Completed: model.Some(true)}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	tests := []struct {
		name    string
		filter  repository.ListFilter
		wantIDs []int64
	}{
		{"no filter", repository.ListFilter{}, []int64{highNew.ID, highOld.ID, medium.ID, low.ID}},
		{"completed only", repository.ListFilter{Completed: ptr(true)}, []int64{highOld.ID}},
		{"open only", repository.ListFilter{Completed: ptr(false)}, []int64{highNew.ID, medium.ID, low.ID}},
		{"high priority", repository.ListFilter{Priority: ptr(model.PriorityHigh)}, []int64{highNew.ID, highOld.ID}},
		{"open and high", repository.ListFilter{Completed: ptr(false), Priority: ptr(model.PriorityHigh)}, []int64{highNew.ID}},
		{"nothing matches", repository.ListFilter{Completed: ptr(true), Priority: ptr(model.PriorityLow)}, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			todos, err := db.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			got := make([]int64, len(todos))
			for i, todo := range todos {
				got[i] = todo.ID
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("List() ids = %v, want %v", got, tt.wantIDs)
			}
			for i := range got {
				if got[i] != tt.wantIDs[i] {
					t.Fatalf("List() ids = %v, want %v", got, tt.wantIDs)
				}
			}
		})
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdate_Partial(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	due := model.NewDate(2024, 2, 1)
	original := &model.Todo{Title: "Buy milk", Priority: model.PriorityLow, DueDate: &due}
	if err := db.Create(ctx, original); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := db.Update(ctx, original.ID, model.TodoPatch{Completed: model.Some(true)})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if !updated.Completed {
		t.Error("Completed = false, want true")
	}
	// Absent fields are untouched.
	if updated.Title != "Buy milk" || updated.Priority != model.PriorityLow {
		t.Errorf("Update() changed untouched fields: %+v", updated)
	}
	if updated.DueDate == nil || updated.DueDate.String() != "2024-02-01" {
		t.Errorf("DueDate = %v, want 2024-02-01", updated.DueDate)
	}

	found, _ := db.GetByID(ctx, original.ID)
	if !found.Completed {
		t.Error("update was not persisted")
	}
}

func TestUpdate_ExplicitFalseAndNullDueDate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	due := model.NewDate(2024, 2, 1)
	todo := &model.Todo{Title: "t", DueDate: &due}
	if err := db.Create(ctx, todo); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := db.Update(ctx, todo.ID, model.TodoPatch{Completed: model.Some(true)}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	updated, err := db.Update(ctx, todo.ID, model.TodoPatch{
		Completed: model.Some(false),
		DueDate:   model.Null[model.Date](),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Completed {
		t.Error("explicit false did not un-complete the todo")
	}
	if updated.DueDate != nil {
		t.Errorf("DueDate = %v, want nil after explicit null", updated.DueDate)
	}
}

func TestUpdate_EmptyPatchIsNoop(t *testing.T) {
	db := newTestDB(t)
	todo := createTestTodo(t, db, "same", model.PriorityHigh)

	updated, err := db.Update(context.Background(), todo.ID, model.TodoPatch{})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if *updated != *todo {
		t.Errorf("Update({}) = %+v, want %+v", updated, todo)
	}
}

func TestUpdate_InvalidLeavesRowUnchanged(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	todo := createTestTodo(t, db, "keep me", model.PriorityMedium)

	_, err := db.Update(ctx, todo.ID, model.TodoPatch{
		Completed: model.Some(true),
		Title:     model.Some("   "),
	})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Update() error = %v, want ErrValidation", err)
	}

	found, _ := db.GetByID(ctx, todo.ID)
	if found.Title != "keep me" || found.Completed {
		t.Errorf("row changed after rejected update: %+v", found)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Update(ctx, 42, model.TodoPatch{Title: model.Some("ghost")})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}

	// No upsert.
	todos, _ := db.List(ctx, repository.ListFilter{})
	if len(todos) != 0 {
		t.Errorf("Update() on missing id inserted a row: %+v", todos)
	}
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	todo := createTestTodo(t, db, "delete me", 0)

	if err := db.Delete(ctx, todo.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := db.GetByID(ctx, todo.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() after delete: error = %v, want ErrNotFound", err)
	}

	// Deleting twice is NotFound, not a silent success.
	if err := db.Delete(ctx, todo.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// LIFECYCLE
// =========================================================================

// TestTodoLifecycle walks one todo through create → complete → list → delete.
func TestTodoLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	todo := createTestTodo(t, db, "Buy milk", model.PriorityMedium)
	if todo.ID != 1 {
		t.Fatalf("ID = %d, want 1 on a fresh database", todo.ID)
	}

	if _, err := db.Update(ctx, todo.ID, model.TodoPatch{Completed: model.Some(true)}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	done, err := db.List(ctx, repository.ListFilter{Completed: ptr(true)})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(done) != 1 || done[0].Title != "Buy milk" {
		t.Fatalf("List(completed) = %+v, want [Buy milk]", done)
	}

	if err := db.Delete(ctx, todo.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	all, _ := db.List(ctx, repository.ListFilter{})
	if len(all) != 0 {
		t.Errorf("List() after delete = %+v, want empty", all)
	}
}

// =========================================================================
// CONCURRENCY TESTS
// =========================================================================
// The server handles every request on its own goroutine, so these hit one *DB
// from many goroutines at once. Run them with -race.

func TestCreate_Concurrent(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "database.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	const n = 50
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			todo := &model.Todo{Title: fmt.Sprintf("todo %d", i)}
			if err := db.Create(context.Background(), todo); err != nil {
				t.Errorf("Create(%d) error = %v", i, err)
				return
			}
			ids[i] = todo.ID
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for i, id := range ids {
		if id == 0 {
			t.Errorf("todo %d got no id", i)
			continue
		}
		if seen[id] {
			t.Errorf("id %d handed out twice", id)
		}
		seen[id] = true
	}

	todos, err := db.List(context.Background(), repository.ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(todos) != n {
		t.Errorf("List() returned %d todos, want %d", len(todos), n)
	}
}

func TestUpdateAndDelete_Concurrent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	const n = 20
	var ids []int64
	for i := 0; i < n; i++ {
		ids = append(ids, createTestTodo(t, db, fmt.Sprintf("todo %d", i), 0).ID)
	}

	// Even ids get completed, odd ids get deleted, all at once.
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if id%2 == 0 {
				if _, err := db.Update(ctx, id, model.TodoPatch{Completed: model.Some(true)}); err != nil {
					t.Errorf("Update(%d) error = %v", id, err)
				}
				return
			}
			if err := db.Delete(ctx, id); err != nil {
				t.Errorf("Delete(%d) error = %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	todos, err := db.List(ctx, repository.ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(todos) != n/2 {
		t.Fatalf("List() returned %d todos, want %d", len(todos), n/2)
	}
	for _, todo := range todos {
		if todo.ID%2 != 0 {
			t.Errorf("todo %d should have been deleted", todo.ID)
		}
		if !todo.Completed {
			t.Errorf("todo %d: Completed = false, want true", todo.ID)
		}
	}

	// Racing a delete against an update of the same row: exactly one outcome.
	victim := createTestTodo(t, db, "contested", 0)
	errs := make(chan error, 2)
	go func() {
		_, err := db.Update(ctx, victim.ID, model.TodoPatch{Title: model.Some("renamed")})
		errs <- err
	}()
	go func() { errs <- db.Delete(ctx, victim.ID) }()
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil && !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("unexpected error = %v", err)
		}
	}
	if _, err := db.GetByID(ctx, victim.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
}
