package service

import (
	"context"
	"errors"
	"todo_service/internal/common"
	"todo_service/internal/domain/model"
	"todo_service/internal/domain/repository"
	"todo_service/internal/platform/observability"

	"github.com/sirupsen/logrus"
)

// AdminService manages other accounts. Callers are restricted to
// administrators by the route policy, not here.
type AdminService struct {
	userRepo repository.UserRepository
	log      *logrus.Logger
	metrics  *observability.Metrics
}

func NewAdminService(userRepo repository.UserRepository, log *logrus.Logger, metrics *observability.Metrics) *AdminService {
	return &AdminService{userRepo: userRepo, log: log, metrics: metrics}
}

func (s *AdminService) ListAccounts(ctx context.Context) ([]model.UserResponse, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.UserResponse, 0, len(users))
	for i := range users {
		out = append(out, model.NewUserResponse(&users[i]))
	}
	return out, nil
}

// Promote makes targetID an administrator, replacing its previous roles.
func (s *AdminService) Promote(ctx context.Context, targetID int64) (*model.UserResponse, error) {
	var promoted *model.User
	err := s.userRepo.WithinTx(ctx, func(repo repository.UserRepository) error {
		user, err := findTarget(ctx, repo, targetID)
		if err != nil {
			return err
		}
		if user.IsAdmin() {
			return common.Errorf("user is already an admin: %w", common.ErrValidation)
		}
		if err := repo.UpdateRoles(ctx, user.ID, model.AdminRoles()); err != nil {
			return err
		}
		promoted, err = repo.FindByID(ctx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveAccountEvent("promoted")
	s.log.WithField("user_id", promoted.ID).Info("account promoted")
	resp := model.NewUserResponse(promoted)
	return &resp, nil
}

// DeleteAccount removes a non-admin account. Administrators cannot be
// deleted through this path at all, whatever the admin count.
func (s *AdminService) DeleteAccount(ctx context.Context, targetID int64) error {
	err := s.userRepo.WithinTx(ctx, func(repo repository.UserRepository) error {
		user, err := findTarget(ctx, repo, targetID)
		if err != nil {
			return err
		}
		if user.IsAdmin() {
			return common.Errorf("admin accounts cannot be deleted: %w", common.ErrValidation)
		}
		return repo.Delete(ctx, user.ID)
	})
	if err != nil {
		return err
	}

	s.metrics.ObserveAccountEvent("deleted")
	s.log.WithField("user_id", targetID).Info("account deleted by admin")
	return nil
}

func findTarget(ctx context.Context, repo repository.UserRepository, id int64) (*model.User, error) {
	user, err := repo.FindByID(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.Errorf("user not found: %w", common.ErrNotFound)
	}
	return user, err
}
