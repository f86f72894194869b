package service

import (
	"context"
	"errors"
	"strings"
	"todo_service/internal/common"
	"todo_service/internal/domain/model"
	"todo_service/internal/domain/repository"
	"unicode/utf8"

	"github.com/gosimple/slug"
	"github.com/sirupsen/logrus"
)

// TodoService exposes todos scoped to the calling principal. A todo owned by
// someone else is reported as not found.
type TodoService struct {
	todoRepo repository.TodoRepository
	log      *logrus.Logger
}

func NewTodoService(todoRepo repository.TodoRepository, log *logrus.Logger) *TodoService {
	return &TodoService{todoRepo: todoRepo, log: log}
}

type TodoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

var errTodoNotFound = common.Errorf("todo not found: %w", common.ErrNotFound)

func (s *TodoService) List(ctx context.Context, principal *model.Principal) ([]model.TodoResponse, error) {
	if principal == nil {
		return nil, common.ErrUnauthorized
	}
	todos, err := s.todoRepo.ListByOwner(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	out := make([]model.TodoResponse, 0, len(todos))
	for i := range todos {
		out = append(out, model.NewTodoResponse(&todos[i]))
	}
	return out, nil
}

func (s *TodoService) Create(ctx context.Context, principal *model.Principal, req TodoRequest) (*model.TodoResponse, error) {
	if principal == nil {
		return nil, common.ErrUnauthorized
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if req.Title == "" || req.Description == "" {
		return nil, common.Errorf("title and description are required: %w", common.ErrValidation)
	}
	if utf8.RuneCountInString(req.Title) > model.MaxTitleLength {
		return nil, common.Errorf("title must be at most 255 characters: %w", common.ErrValidation)
	}
	if req.Priority < model.MinPriority || req.Priority > model.MaxPriority {
		return nil, common.Errorf("priority must be between 1 and 5: %w", common.ErrValidation)
	}

	todo := &model.Todo{
		Title:       req.Title,
		Slug:        makeSlug(req.Title),
		Description: req.Description,
		Priority:    req.Priority,
		Complete:    false,
		OwnerID:     principal.ID,
	}
	if err := s.todoRepo.Create(ctx, todo); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"todo_id":  todo.ID,
		"owner_id": todo.OwnerID,
	}).Debug("todo created")
	resp := model.NewTodoResponse(todo)
	return &resp, nil
}

// makeSlug keeps the slug within the column limit; transliteration can make
// it longer than the title.
func makeSlug(title string) string {
	out := slug.Make(title)
	if len(out) > model.MaxTitleLength {
		out = strings.TrimRight(out[:model.MaxTitleLength], "-")
	}
	return out
}

func (s *TodoService) ToggleCompletion(ctx context.Context, principal *model.Principal, id int64) (*model.TodoResponse, error) {
	if principal == nil {
		return nil, common.ErrUnauthorized
	}
	todo, err := s.todoRepo.ToggleComplete(ctx, id, principal.ID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, errTodoNotFound
		}
		return nil, err
	}
	resp := model.NewTodoResponse(todo)
	return &resp, nil
}

func (s *TodoService) Delete(ctx context.Context, principal *model.Principal, id int64) error {
	if principal == nil {
		return common.ErrUnauthorized
	}
	if err := s.todoRepo.Delete(ctx, id, principal.ID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return errTodoNotFound
		}
		return err
	}
	return nil
}
