package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/todo-tracker/internal/apperror"
	"github.com/sakif/todo-tracker/internal/model"
	"github.com/sakif/todo-tracker/internal/repository"
)

// maxBodyBytes caps request bodies. A todo is a title and three small fields.
const maxBodyBytes = 64 << 10

// TodoService is what the handler needs from the service layer.
// *service.TodoService satisfies it; tests can pass a stub.
type TodoService interface {
	Create(ctx context.Context, in model.TodoCreate) (*model.Todo, error)
	GetByID(ctx context.Context, id int64) (*model.Todo, error)
	List(ctx context.Context, filter repository.ListFilter) ([]model.Todo, error)
	Update(ctx context.Context, id int64, patch model.TodoPatch) (*model.Todo, error)
	Delete(ctx context.Context, id int64) error
}

// TodoHandler exposes the todo service as JSON over HTTP.
// It only parses and encodes; every rule lives in the service.
type TodoHandler struct {
	service TodoService
	logger  *slog.Logger
}

func NewTodoHandler(svc TodoService, logger *slog.Logger) *TodoHandler {
	return &TodoHandler{service: svc, logger: logger}
}

// Routes registers the todo endpoints on r:
//
//	GET    /todos        list (query: completed, priority)
//	POST   /todos        create
//	GET    /todos/{id}   get one
//	PUT    /todos/{id}   partial update
//	DELETE /todos/{id}   delete
func (h *TodoHandler) Routes(r chi.Router) {
	r.Get("/todos", h.HandleList)
	r.Post("/todos", h.HandleCreate)
	r.Get("/todos/{id}", h.HandleGetByID)
	r.Put("/todos/{id}", h.HandleUpdate)
	r.Delete("/todos/{id}", h.HandleDelete)
}

// HandleList returns todos, highest priority first.
//
// HTTP: GET /api/todos?completed=true&priority=3
//
// Both query parameters are optional. The response is always a JSON array,
// [] when nothing matches.
func (h *TodoHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var filter repository.ListFilter
	q := r.URL.Query()

	if v := q.Get("completed"); v != "" {
		completed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, apperror.ValidationFailed("completed", "completed must be true or false"))
			return
		}
		filter.Completed = &completed
	}
	if v := q.Get("priority"); v != "" {
		priority, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, apperror.ValidationFailed("priority", "priority must be an integer"))
			return
		}
		filter.Priority = &priority
	}

	todos, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, todos)
}

// HandleCreate adds a todo.
//
// HTTP: POST /api/todos
// REQUEST BODY: {"title": "Buy milk", "priority": 3, "dueDate": "2024-01-20"}
// Only title is required. Responds 201 with the stored todo.
func (h *TodoHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in model.TodoCreate
	if err := h.decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	todo, err := h.service.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, todo)
}

// HandleGetByID returns one todo.
//
// HTTP: GET /api/todos/{id}
func (h *TodoHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	todo, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, todo)
}

// HandleUpdate applies a partial update.
//
// HTTP: PUT /api/todos/{id}
// REQUEST BODY: any subset of {"title", "completed", "priority", "dueDate"}.
// A missing key leaves the field alone; "dueDate": null clears the due date;
// {"completed": false} un-completes the todo.
func (h *TodoHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var patch model.TodoPatch
	if err := h.decode(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}

	todo, err := h.service.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, todo)
}

// HandleDelete removes a todo.
//
// HTTP: DELETE /api/todos/{id}
// Responds 204 No Content on success, 404 if the id doesn't exist.
func (h *TodoHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseID reads the {id} URL parameter. Range checks belong to the service.
func parseID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperror.ValidationFailed("id", "todo ID must be an integer")
	}
	return id, nil
}

// decode reads one JSON object from the body into dst.
// Malformed JSON, wrong field types and oversized bodies are validation errors.
func (h *TodoHandler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		h.logger.Warn("invalid request body",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)

		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("", "request body is required")
		case errors.As(err, &typeErr) && typeErr.Field != "":
			return apperror.ValidationFailed(typeErr.Field,
				typeErr.Field+" must be a "+typeErr.Type.String())
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("", "request body too large")
		default:
			return apperror.ValidationFailed("", "invalid JSON body: "+err.Error())
		}
	}
	return nil
}
