package repository

import (
	"context"

	"github.com/sakif/todo-tracker/internal/model"
)

// ListFilter narrows List. A nil field means "don't filter on it".
type ListFilter struct {
	Completed *bool
	Priority  *int
}

// TodoRepository is the persistence contract for todos. Every method runs as
// one transaction: either its whole effect is committed or none of it is.
//
// Errors: apperror.ErrNotFound for unknown ids, apperror.ErrValidation for a
// bad title on Create, apperror.ErrStorage for everything the database reports.
type TodoRepository interface {
	Create(ctx context.Context, todo *model.Todo) error
	GetByID(ctx context.Context, id int64) (*model.Todo, error)
	// List returns todos ordered by priority (high first), then newest id first.
	List(ctx context.Context, filter ListFilter) ([]model.Todo, error)
	Update(ctx context.Context, id int64, patch model.TodoPatch) (*model.Todo, error)
	Delete(ctx context.Context, id int64) error
}
