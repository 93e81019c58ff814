// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// THE DEPENDENCY CHAIN:
//
//	main.go creates:  DB → Service → Handler
//	At runtime:       Handler calls Service calls Repository calls DB
//
// TodoService takes a repository.TodoRepository (interface), NOT a *sqlite.DB,
// so tests pass a mock and the service never imports the sqlite package.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/todo-tracker/internal/apperror"
	"github.com/sakif/todo-tracker/internal/clock"
	"github.com/sakif/todo-tracker/internal/metrics"
	"github.com/sakif/todo-tracker/internal/model"
	"github.com/sakif/todo-tracker/internal/repository"
)

// Operation names, used as the "op" metric label.
const (
	OpCreate = "create"
	OpGet    = "get"
	OpList   = "list"
	OpUpdate = "update"
	OpDelete = "delete"
)

// TodoService handles business logic for todos.
//
// Every call is a single attempt: the service never retries, and storage
// failures reach the caller unchanged (wrapped with the operation name).
type TodoService struct {
	repo    repository.TodoRepository
	logger  *slog.Logger
	clock   clock.Clock
	metrics *metrics.Metrics
	onFatal func(error)
}

// Option customizes a TodoService.
type Option func(*TodoService)

// WithClock sets the clock used to derive priorities from due dates.
func WithClock(c clock.Clock) Option {
	return func(s *TodoService) { s.clock = c }
}

// WithMetrics counts every call's outcome.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *TodoService) { s.metrics = m }
}

// WithFatalHandler registers fn to be called with any storage failure that
// isn't a cancelled or timed-out request. The server uses it to shut down
// rather than keep serving from a store that may be corrupted.
func WithFatalHandler(fn func(error)) Option {
	return func(s *TodoService) { s.onFatal = fn }
}

// NewTodoService creates a new TodoService.
func NewTodoService(repo repository.TodoRepository, logger *slog.Logger, opts ...Option) *TodoService {
	s := &TodoService{
		repo:   repo,
		logger: logger,
		clock:  clock.Real{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// finish records the outcome of op and escalates fatal storage errors.
func (s *TodoService) finish(op string, err error) {
	s.metrics.ObserveOperation(op, err)
	if !apperror.IsFatal(err) {
		return
	}
	s.logger.Error("storage failure",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	if s.onFatal != nil {
		s.onFatal(err)
	}
}

func (s *TodoService) today() model.Date {
	return model.DateOf(s.clock.Now())
}

func validateID(id int64) error {
	if id <= 0 {
		return apperror.ValidationFailed("id", "todo ID must be a positive integer")
	}
	return nil
}

// Create validates and saves a new todo. The new todo is never completed.
//
// PRIORITY:
// An explicit priority wins. Without one, the priority follows the due date
// (see model.PriorityForDueDate), and a todo with neither is medium.
func (s *TodoService) Create(ctx context.Context, in model.TodoCreate) (todo *model.Todo, err error) {
	defer func() { s.finish(OpCreate, err) }()

	title, err := model.NormalizeTitle(in.Title)
	if err != nil {
		return nil, err
	}

	priority := model.PriorityForDueDate(in.DueDate, s.today())
	if in.Priority != nil {
		if err := model.ValidatePriority(*in.Priority); err != nil {
			return nil, err
		}
		priority = *in.Priority
	}

	todo = &model.Todo{
		Title:    title,
		Priority: priority,
		DueDate:  in.DueDate,
	}
	if err := s.repo.Create(ctx, todo); err != nil {
		return nil, fmt.Errorf("creating todo: %w", err)
	}

	s.logger.Info("todo created",
		slog.Int64("id", todo.ID),
		slog.String("title", todo.Title),
		slog.Int("priority", todo.Priority),
	)
	return todo, nil
}

// GetByID retrieves a todo by its ID.
// Returns apperror.ErrNotFound if the todo doesn't exist.
func (s *TodoService) GetByID(ctx context.Context, id int64) (todo *model.Todo, err error) {
	defer func() { s.finish(OpGet, err) }()

	if err := validateID(id); err != nil {
		return nil, err
	}
	// NotFound is already a proper apperror; pass it through as is.
	return s.repo.GetByID(ctx, id)
}

// List returns every todo matching filter, highest priority first, newest
// first within the same priority.
func (s *TodoService) List(ctx context.Context, filter repository.ListFilter) (todos []model.Todo, err error) {
	defer func() { s.finish(OpList, err) }()

	if filter.Priority != nil {
		if err := model.ValidatePriority(*filter.Priority); err != nil {
			return nil, err
		}
	}

	todos, err = s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing todos: %w", err)
	}
	return todos, nil
}

// Update applies a partial update.
//
// FIELD RULES:
//   - title, completed: absent → unchanged, value → set, null → ValidationError
//   - priority: value → validated and set, absent or null → unchanged
//   - dueDate: value → set, null → cleared
//
// When the due date changes and no priority is given, the priority is
// recomputed from the new due date, the same way Create derives it.
func (s *TodoService) Update(ctx context.Context, id int64, patch model.TodoPatch) (todo *model.Todo, err error) {
	defer func() { s.finish(OpUpdate, err) }()

	if err := validateID(id); err != nil {
		return nil, err
	}

	if patch.Title.IsNull() {
		return nil, apperror.ValidationFailed("title", "title cannot be null")
	}
	if title, ok := patch.Title.Get(); ok {
		title, err := model.NormalizeTitle(title)
		if err != nil {
			return nil, err
		}
		patch.Title = model.Some(title)
	}

	if patch.Completed.IsNull() {
		return nil, apperror.ValidationFailed("completed", "completed cannot be null")
	}

	if patch.Priority.IsNull() {
		patch.Priority = model.Optional[int]{}
	}
	if priority, ok := patch.Priority.Get(); ok {
		if err := model.ValidatePriority(priority); err != nil {
			return nil, err
		}
	}

	if patch.DueDate.IsSet() && !patch.Priority.IsSet() {
		var due *model.Date
		if d, ok := patch.DueDate.Get(); ok {
			due = &d
		}
		patch.Priority = model.Some(model.PriorityForDueDate(due, s.today()))
	}

	todo, err = s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("updating todo %d: %w", id, err)
	}

	s.logger.Info("todo updated",
		slog.Int64("id", todo.ID),
		slog.Bool("completed", todo.Completed),
	)
	return todo, nil
}

// Delete removes a todo by its ID.
// Returns apperror.ErrNotFound if the todo doesn't exist.
func (s *TodoService) Delete(ctx context.Context, id int64) (err error) {
	defer func() { s.finish(OpDelete, err) }()

	if err := validateID(id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting todo %d: %w", id, err)
	}

	s.logger.Info("todo deleted", slog.Int64("id", id))
	return nil
}
