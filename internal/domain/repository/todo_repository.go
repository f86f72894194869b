package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"todo_service/internal/common"
	"todo_service/internal/domain/model"
)

// TodoRepository persists todos. Every lookup that targets a single todo is
// filtered by owner, so another account's todo is indistinguishable from a
// missing one.
type TodoRepository interface {
	Create(ctx context.Context, todo *model.Todo) error
	ListByOwner(ctx context.Context, ownerID int64) ([]model.Todo, error)
	ToggleComplete(ctx context.Context, id, ownerID int64) (*model.Todo, error)
	Delete(ctx context.Context, id, ownerID int64) error
}

type pgTodoRepository struct {
	db *sql.DB
}

func NewPgTodoRepository(db *sql.DB) TodoRepository {
	return &pgTodoRepository{db: db}
}

const todoColumns = `id, title, slug, description, priority, complete, owner_id, created_at, updated_at`

func (r *pgTodoRepository) Create(ctx context.Context, t *model.Todo) error {
	query := `INSERT INTO todos (title, slug, description, priority, complete, owner_id)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, t.Title, t.Slug, t.Description, t.Priority, t.Complete, t.OwnerID).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgTodoRepository.Create: %w", err)
	}
	return nil
}

func (r *pgTodoRepository) ListByOwner(ctx context.Context, ownerID int64) ([]model.Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos WHERE owner_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("pgTodoRepository.ListByOwner: %w", err)
	}
	defer rows.Close()

	todos := make([]model.Todo, 0)
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("pgTodoRepository.ListByOwner: %w", err)
		}
		todos = append(todos, *todo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgTodoRepository.ListByOwner: %w", err)
	}
	return todos, nil
}

// ToggleComplete flips the completion flag in a single statement.
func (r *pgTodoRepository) ToggleComplete(ctx context.Context, id, ownerID int64) (*model.Todo, error) {
	query := `UPDATE todos SET complete = NOT complete, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $1 AND owner_id = $2
	          RETURNING ` + todoColumns
	todo, err := scanTodo(r.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgTodoRepository.ToggleComplete: %w", err)
	}
	return todo, nil
}

func (r *pgTodoRepository) Delete(ctx context.Context, id, ownerID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM todos WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("pgTodoRepository.Delete: %w", err)
	}
	ok, err := anyRowAffected(res)
	if err != nil {
		return fmt.Errorf("pgTodoRepository.Delete: %w", err)
	}
	if !ok {
		return common.ErrNotFound
	}
	return nil
}

func scanTodo(row rowScanner) (*model.Todo, error) {
	t := &model.Todo{}
	err := row.Scan(&t.ID, &t.Title, &t.Slug, &t.Description, &t.Priority, &t.Complete, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}
