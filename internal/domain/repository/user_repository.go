package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"todo_service/internal/common"
	"todo_service/internal/domain/model"
)

type UserRepository interface {
	// WithinTx runs fn against a repository bound to a transaction that is
	// serialized with every other WithinTx caller.
	WithinTx(ctx context.Context, fn func(repo UserRepository) error) error

	Create(ctx context.Context, user *model.User) error
	Count(ctx context.Context) (int, error)
	CountAdmins(ctx context.Context) (int, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	UpdatePassword(ctx context.Context, id int64, hashedPassword string) error
	UpdateRoles(ctx context.Context, id int64, roles []model.Role) error
	Delete(ctx context.Context, id int64) error
}

type pgUserRepository struct {
	db *sql.DB
	q  querier
}

func NewPgUserRepository(db *sql.DB) UserRepository {
	return &pgUserRepository{db: db, q: db}
}

const selectUser = `SELECT u.id, u.first_name, u.last_name, u.email, u.hashed_password, u.created_at, u.updated_at,
	          COALESCE(string_agg(r.role, ',' ORDER BY r.role), '')
	          FROM users u LEFT JOIN user_roles r ON r.user_id = u.id`

func (r *pgUserRepository) WithinTx(ctx context.Context, fn func(repo UserRepository) error) error {
	if _, inTx := r.q.(*sql.Tx); inTx {
		return fn(r)
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, accountInvariantLockKey); err != nil {
			return fmt.Errorf("pgUserRepository.WithinTx: %w", err)
		}
		return fn(&pgUserRepository{db: r.db, q: tx})
	})
}

func (r *pgUserRepository) Create(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (first_name, last_name, email, hashed_password)
	          VALUES ($1, $2, $3, $4)
	          RETURNING id, created_at, updated_at`
	err := r.q.QueryRowContext(ctx, query, user.FirstName, user.LastName, user.Email, user.HashedPassword).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return fmt.Errorf("email already in use: %w", common.ErrValidation)
		}
		return fmt.Errorf("pgUserRepository.Create: %w", err)
	}
	return r.insertRoles(ctx, user.ID, user.Roles)
}

func (r *pgUserRepository) insertRoles(ctx context.Context, userID int64, roles []model.Role) error {
	for _, role := range model.NormalizeRoles(roles) {
		if _, err := r.q.ExecContext(ctx, `INSERT INTO user_roles (user_id, role) VALUES ($1, $2)`, userID, string(role)); err != nil {
			return fmt.Errorf("pgUserRepository.insertRoles: %w", err)
		}
	}
	return nil
}

func (r *pgUserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgUserRepository.Count: %w", err)
	}
	return n, nil
}

func (r *pgUserRepository) CountAdmins(ctx context.Context) (int, error) {
	var n int
	query := `SELECT COUNT(DISTINCT user_id) FROM user_roles WHERE role = $1`
	if err := r.q.QueryRowContext(ctx, query, string(model.RoleAdmin)).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgUserRepository.CountAdmins: %w", err)
	}
	return n, nil
}

func (r *pgUserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`
	if err := r.q.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("pgUserRepository.EmailExists: %w", err)
	}
	return exists, nil
}

func (r *pgUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.q.QueryRowContext(ctx, selectUser+` WHERE u.email = $1 GROUP BY u.id`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgUserRepository.FindByEmail: %w", err)
	}
	return user, nil
}

func (r *pgUserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := scanUser(r.q.QueryRowContext(ctx, selectUser+` WHERE u.id = $1 GROUP BY u.id`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgUserRepository.FindByID: %w", err)
	}
	return user, nil
}

func (r *pgUserRepository) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.q.QueryContext(ctx, selectUser+` GROUP BY u.id ORDER BY u.id`)
	if err != nil {
		return nil, fmt.Errorf("pgUserRepository.List: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("pgUserRepository.List: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgUserRepository.List: %w", err)
	}
	return users, nil
}

func (r *pgUserRepository) UpdatePassword(ctx context.Context, id int64, hashedPassword string) error {
	query := `UPDATE users SET hashed_password = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`
	res, err := r.q.ExecContext(ctx, query, hashedPassword, id)
	if err != nil {
		return fmt.Errorf("pgUserRepository.UpdatePassword: %w", err)
	}
	ok, err := anyRowAffected(res)
	if err != nil {
		return fmt.Errorf("pgUserRepository.UpdatePassword: %w", err)
	}
	if !ok {
		return common.ErrNotFound
	}
	return nil
}

// UpdateRoles replaces the role set of an account. Callers should run it
// inside WithinTx so the delete and inserts land together.
func (r *pgUserRepository) UpdateRoles(ctx context.Context, id int64, roles []model.Role) error {
	res, err := r.q.ExecContext(ctx, `UPDATE users SET updated_at = CURRENT_TIMESTAMP WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgUserRepository.UpdateRoles: %w", err)
	}
	ok, err := anyRowAffected(res)
	if err != nil {
		return fmt.Errorf("pgUserRepository.UpdateRoles: %w", err)
	}
	if !ok {
		return common.ErrNotFound
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("pgUserRepository.UpdateRoles: %w", err)
	}
	return r.insertRoles(ctx, id, roles)
}

// Delete removes an account; user_roles and todos rows cascade.
func (r *pgUserRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgUserRepository.Delete: %w", err)
	}
	ok, err := anyRowAffected(res)
	if err != nil {
		return fmt.Errorf("pgUserRepository.Delete: %w", err)
	}
	if !ok {
		return common.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var roles string
	err := row.Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.HashedPassword,
		&user.CreatedAt, &user.UpdatedAt, &roles,
	)
	if err != nil {
		return nil, err
	}
	user.Roles = parseRoles(roles)
	return user, nil
}

func parseRoles(csv string) []model.Role {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	roles := make([]model.Role, 0, len(parts))
	for _, p := range parts {
		roles = append(roles, model.Role(p))
	}
	return model.NormalizeRoles(roles)
}
