package handler

import (
	"context"
	"net/http"
	"todo_service/internal/app/service"
	"todo_service/internal/common"
	"todo_service/internal/domain/model"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type TodoManager interface {
	List(ctx context.Context, principal *model.Principal) ([]model.TodoResponse, error)
	Create(ctx context.Context, principal *model.Principal, req service.TodoRequest) (*model.TodoResponse, error)
	ToggleCompletion(ctx context.Context, principal *model.Principal, id int64) (*model.TodoResponse, error)
	Delete(ctx context.Context, principal *model.Principal, id int64) error
}

type TodoHandler struct {
	todos TodoManager
	log   *logrus.Logger
}

func NewTodoHandler(todos TodoManager, log *logrus.Logger) *TodoHandler {
	return &TodoHandler{todos: todos, log: log}
}

func (h *TodoHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Put("/{id}", h.toggle)
	r.Delete("/{id}", h.delete)
}

func (h *TodoHandler) list(w http.ResponseWriter, r *http.Request) {
	todos, err := h.todos.List(r.Context(), principal(r))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, todos)
}

func (h *TodoHandler) create(w http.ResponseWriter, r *http.Request) {
	var req service.TodoRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	todo, err := h.todos.Create(r.Context(), principal(r), req)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, todo)
}

func (h *TodoHandler) toggle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	todo, err := h.todos.ToggleCompletion(r.Context(), principal(r), id)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, todo)
}

func (h *TodoHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if err := h.todos.Delete(r.Context(), principal(r), id); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	common.RespondNoContent(w)
}
