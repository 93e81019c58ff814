package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/sakif/todo-tracker/internal/apperror"
	"github.com/sakif/todo-tracker/internal/model"
	"github.com/sakif/todo-tracker/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// If *DB stops implementing repository.TodoRepository, this line fails to
// compile — long before anything tries to pass a *DB to the service.
var _ repository.TodoRepository = (*DB)(nil)

const todoColumns = `id, title, completed, priority, due_date`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTodo reads one row in todoColumns order.
//
// due_date is nullable, so we scan into a **model.Date: database/sql sets the
// pointer to nil for NULL and allocates + calls Date.Scan otherwise.
func scanTodo(row rowScanner) (*model.Todo, error) {
	var t model.Todo
	if err := row.Scan(&t.ID, &t.Title, &t.Completed, &t.Priority, &t.DueDate); err != nil {
		return nil, err
	}
	return &t, nil
}

func todoID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Create inserts a new todo and fills in todo.ID.
//
// The title is normalized (trimmed) and validated here as well as in the
// service, so nothing that violates the 1..200 rule can reach a commit no
// matter who calls the repository. A zero Priority defaults to medium.
// Completed is stored as given, which is false for every todo the service creates.
func (db *DB) Create(ctx context.Context, todo *model.Todo) error {
	title, err := model.NormalizeTitle(todo.Title)
	if err != nil {
		return err
	}
	priority := todo.Priority
	if priority == 0 {
		priority = model.PriorityMedium
	}
	if err := model.ValidatePriority(priority); err != nil {
		return err
	}

	var id int64
	err = db.WithSession(ctx, func(s *Session) error {
		result, err := s.ExecContext(ctx,
			`INSERT INTO todo (title, completed, priority, due_date)
			 VALUES (?, ?, ?, ?)`,
			title,
			todo.Completed,
			priority,
			todo.DueDate,
		)
		if err != nil {
			return storageError("sqlite: creating todo", err)
		}
		// LastInsertId is the AUTOINCREMENT rowid the database just assigned.
		id, err = result.LastInsertId()
		if err != nil {
			return storageError("sqlite: reading new todo id", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Only touch the caller's struct once the row is committed.
	todo.ID = id
	todo.Title = title
	todo.Priority = priority
	return nil
}

// GetByID returns the todo with the given id, or apperror.ErrNotFound.
func (db *DB) GetByID(ctx context.Context, id int64) (*model.Todo, error) {
	var todo *model.Todo
	err := db.WithSession(ctx, func(s *Session) error {
		var err error
		todo, err = getTodo(ctx, s, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return todo, nil
}

func getTodo(ctx context.Context, s *Session, id int64) (*model.Todo, error) {
	todo, err := scanTodo(s.QueryRowContext(ctx,
		`SELECT `+todoColumns+` FROM todo WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("todo", todoID(id))
		}
		return nil, storageError("sqlite: getting todo "+todoID(id), err)
	}
	return todo, nil
}

// List returns every todo matching filter, highest priority first and newest
// first within a priority. The result is never nil, so it encodes as [] not null.
//
// BUILDING A WHERE CLAUSE SAFELY:
// Only fixed SQL fragments are concatenated; every value goes through a ?
// placeholder, so there is no way for input to change the query's shape.
func (db *DB) List(ctx context.Context, filter repository.ListFilter) ([]model.Todo, error) {
	var (
		where []string
		args  []any
	)
	if filter.Completed != nil {
		where = append(where, "completed = ?")
		args = append(args, *filter.Completed)
	}
	if filter.Priority != nil {
		where = append(where, "priority = ?")
		args = append(args, *filter.Priority)
	}

	query := `SELECT ` + todoColumns + ` FROM todo`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY priority DESC, id DESC`

	todos := []model.Todo{}
	err := db.WithSession(ctx, func(s *Session) error {
		rows, err := s.QueryContext(ctx, query, args...)
		if err != nil {
			return storageError("sqlite: listing todos", err)
		}
		// CRITICAL: rows holds the connection until closed.
		defer rows.Close()

		for rows.Next() {
			todo, err := scanTodo(rows)
			if err != nil {
				return storageError("sqlite: scanning todo row", err)
			}
			todos = append(todos, *todo)
		}
		if err := rows.Err(); err != nil {
			return storageError("sqlite: iterating todos", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return todos, nil
}

// Update applies patch to an existing todo and returns the result.
//
// READ-MODIFY-WRITE IN ONE SESSION:
// The current row is read, the supplied fields are applied, and the row is
// written back — all inside one BEGIN IMMEDIATE transaction, so no other
// writer can slip in between the read and the write. Fields absent from the
// patch are written back with the values just read, i.e. unchanged.
//
// An unknown id returns apperror.ErrNotFound and never inserts (no upsert).
func (db *DB) Update(ctx context.Context, id int64, patch model.TodoPatch) (*model.Todo, error) {
	var updated *model.Todo
	err := db.WithSession(ctx, func(s *Session) error {
		todo, err := getTodo(ctx, s, id)
		if err != nil {
			return err
		}

		patch.Apply(todo)

		if todo.Title, err = model.NormalizeTitle(todo.Title); err != nil {
			return err
		}
		if err := model.ValidatePriority(todo.Priority); err != nil {
			return err
		}

		_, err = s.ExecContext(ctx,
			`UPDATE todo
			 SET title = ?, completed = ?, priority = ?, due_date = ?
			 WHERE id = ?`,
			todo.Title,
			todo.Completed,
			todo.Priority,
			todo.DueDate,
			todo.ID,
		)
		if err != nil {
			return storageError("sqlite: updating todo "+todoID(id), err)
		}
		updated = todo
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a todo permanently. RowsAffected == 0 means the id did not exist.
func (db *DB) Delete(ctx context.Context, id int64) error {
	return db.WithSession(ctx, func(s *Session) error {
		result, err := s.ExecContext(ctx, `DELETE FROM todo WHERE id = ?`, id)
		if err != nil {
			return storageError("sqlite: deleting todo "+todoID(id), err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return storageError("sqlite: checking rows affected", err)
		}
		if rowsAffected == 0 {
			return apperror.NotFound("todo", todoID(id))
		}
		return nil
	})
}
