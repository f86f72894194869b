// Package repotest provides in-memory repositories for tests.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"
	"todo_service/internal/common"
	"todo_service/internal/domain/model"
	"todo_service/internal/domain/repository"
)

// UserRepo is an in-memory repository.UserRepository. WithinTx serializes
// callers the way the Postgres advisory lock does.
type UserRepo struct {
	// Cascade, when set, receives the ON DELETE CASCADE of account deletes.
	Cascade *TodoRepo

	txMu   sync.Mutex
	mu     sync.Mutex
	users  map[int64]*model.User
	nextID int64
}

var _ repository.UserRepository = (*UserRepo)(nil)

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[int64]*model.User)}
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.Roles = append([]model.Role(nil), u.Roles...)
	return &c
}

func (r *UserRepo) WithinTx(ctx context.Context, fn func(repo repository.UserRepository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return fn(r)
}

func (r *UserRepo) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return common.Errorf("email already in use: %w", common.ErrValidation)
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.Roles = model.NormalizeRoles(user.Roles)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *UserRepo) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users), nil
}

func (r *UserRepo) CountAdmins(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.users {
		if u.IsAdmin() {
			n++
		}
	}
	return n, nil
}

func (r *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *UserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hashedPassword string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return common.ErrNotFound
	}
	u.HashedPassword = hashedPassword
	u.UpdatedAt = time.Now()
	return nil
}

func (r *UserRepo) UpdateRoles(ctx context.Context, id int64, roles []model.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return common.ErrNotFound
	}
	u.Roles = model.NormalizeRoles(roles)
	u.UpdatedAt = time.Now()
	return nil
}

func (r *UserRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return common.ErrNotFound
	}
	delete(r.users, id)
	if r.Cascade != nil {
		r.Cascade.deleteOwnedBy(id)
	}
	return nil
}

// Get returns a copy of the stored account, or nil.
func (r *UserRepo) Get(id int64) *model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return cloneUser(u)
	}
	return nil
}

// TodoRepo is an in-memory repository.TodoRepository.
type TodoRepo struct {
	mu     sync.Mutex
	todos  map[int64]*model.Todo
	nextID int64
}

var _ repository.TodoRepository = (*TodoRepo)(nil)

func NewTodoRepo() *TodoRepo {
	return &TodoRepo{todos: make(map[int64]*model.Todo)}
}

func (r *TodoRepo) Create(ctx context.Context, todo *model.Todo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	todo.ID = r.nextID
	c := *todo
	r.todos[todo.ID] = &c
	return nil
}

func (r *TodoRepo) ListByOwner(ctx context.Context, ownerID int64) ([]model.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Todo, 0)
	for _, t := range r.todos {
		if t.OwnerID == ownerID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *TodoRepo) ToggleComplete(ctx context.Context, id, ownerID int64) (*model.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.todos[id]
	if !ok || t.OwnerID != ownerID {
		return nil, common.ErrNotFound
	}
	t.Complete = !t.Complete
	c := *t
	return &c, nil
}

func (r *TodoRepo) Delete(ctx context.Context, id, ownerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.todos[id]
	if !ok || t.OwnerID != ownerID {
		return common.ErrNotFound
	}
	delete(r.todos, id)
	return nil
}

// Get returns a copy of the stored todo, or nil.
func (r *TodoRepo) Get(id int64) *model.Todo {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.todos[id]; ok {
		c := *t
		return &c
	}
	return nil
}

func (r *TodoRepo) deleteOwnedBy(ownerID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.todos {
		if t.OwnerID == ownerID {
			delete(r.todos, id)
		}
	}
}
