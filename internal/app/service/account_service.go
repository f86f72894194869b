package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"todo_service/internal/common"
	"todo_service/internal/common/security"
	"todo_service/internal/domain/model"
	"todo_service/internal/domain/repository"
	"todo_service/internal/platform/observability"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// TokenIssuer mints bearer credentials for a login identifier.
type TokenIssuer interface {
	Issue(subject string, ttl time.Duration) (string, error)
}

type AccountService struct {
	userRepo repository.UserRepository
	hasher   security.PasswordHasher
	tokens   TokenIssuer
	tokenTTL time.Duration
	log      *logrus.Logger
	metrics  *observability.Metrics
}

func NewAccountService(
	userRepo repository.UserRepository,
	hasher security.PasswordHasher,
	tokens TokenIssuer,
	tokenTTL time.Duration,
	log *logrus.Logger,
	metrics *observability.Metrics,
) *AccountService {
	return &AccountService{
		userRepo: userRepo,
		hasher:   hasher,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		log:      log,
		metrics:  metrics,
	}
}

type RegisterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
}

type PasswordUpdateRequest struct {
	OldPassword  string `json:"old_password"`
	NewPassword  string `json:"new_password"`
	NewPassword2 string `json:"new_password2"`
}

var errPasswordTooLong = common.Errorf("password must be at most 72 bytes: %w", common.ErrValidation)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account. The first account ever created is also made
// an administrator; the count and insert run under the account lock so two
// concurrent first registrations cannot both become admin.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = normalizeEmail(req.Email)

	if req.FirstName == "" || req.LastName == "" || req.Email == "" || req.Password == "" {
		return nil, common.Errorf("first name, last name, email and password are required: %w", common.ErrValidation)
	}
	if !strings.Contains(req.Email, "@") {
		return nil, common.Errorf("email is not valid: %w", common.ErrValidation)
	}
	if utf8.RuneCountInString(req.FirstName) > model.MaxNameLength || utf8.RuneCountInString(req.LastName) > model.MaxNameLength {
		return nil, common.Errorf("first and last name must be at most 100 characters: %w", common.ErrValidation)
	}
	if utf8.RuneCountInString(req.Email) > model.MaxEmailLength {
		return nil, common.Errorf("email must be at most 255 characters: %w", common.ErrValidation)
	}
	if len(req.Password) > security.MaxPasswordBytes {
		return nil, errPasswordTooLong
	}

	hashedPassword, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		HashedPassword: hashedPassword,
	}

	err = s.userRepo.WithinTx(ctx, func(repo repository.UserRepository) error {
		taken, err := repo.EmailExists(ctx, user.Email)
		if err != nil {
			return err
		}
		if taken {
			return common.Errorf("email already in use: %w", common.ErrValidation)
		}

		count, err := repo.Count(ctx)
		if err != nil {
			return err
		}
		user.Roles = model.InitialRoles(count == 0)
		return repo.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveAccountEvent("registered")
	s.log.WithFields(logrus.Fields{
		"user_id": user.ID,
		"admin":   user.IsAdmin(),
	}).Info("user registered")
	return user, nil
}

// Login verifies credentials and returns a fresh token. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		s.metrics.ObserveLogin("failure")
		return nil, common.Errorf("invalid credentials: %w", common.ErrUnauthorized)
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.metrics.ObserveLogin("failure")
			return nil, common.Errorf("invalid credentials: %w", common.ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if !s.hasher.Verify(req.Password, user.HashedPassword) {
		s.metrics.ObserveLogin("failure")
		s.log.WithField("user_id", user.ID).Info("login rejected")
		return nil, common.Errorf("invalid credentials: %w", common.ErrUnauthorized)
	}

	token, err := s.tokens.Issue(user.Email, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	s.metrics.ObserveLogin("success")
	return &AuthResponse{Token: token}, nil
}

// Profile returns the caller's own account.
func (s *AccountService) Profile(ctx context.Context, principal *model.Principal) (*model.UserResponse, error) {
	if principal == nil {
		return nil, common.ErrUnauthorized
	}
	user, err := s.userRepo.FindByID(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	resp := model.NewUserResponse(user)
	return &resp, nil
}

// ChangePassword replaces the caller's password. All three checks run before
// anything is written, and the check and the write share one transaction so
// two concurrent changes cannot both pass against the same old password.
func (s *AccountService) ChangePassword(ctx context.Context, principal *model.Principal, req PasswordUpdateRequest) error {
	if principal == nil {
		return common.ErrUnauthorized
	}

	err := s.userRepo.WithinTx(ctx, func(repo repository.UserRepository) error {
		user, err := repo.FindByID(ctx, principal.ID)
		if err != nil {
			return err
		}

		if !s.hasher.Verify(req.OldPassword, user.HashedPassword) {
			return common.Errorf("current password is incorrect: %w", common.ErrValidation)
		}
		if req.NewPassword != req.NewPassword2 {
			return common.Errorf("new passwords do not match: %w", common.ErrValidation)
		}
		if req.OldPassword == req.NewPassword {
			return common.Errorf("old and new passwords must be different: %w", common.ErrValidation)
		}
		if len(req.NewPassword) > security.MaxPasswordBytes {
			return errPasswordTooLong
		}

		hashedPassword, err := s.hasher.Hash(req.NewPassword)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		return repo.UpdatePassword(ctx, user.ID, hashedPassword)
	})
	if err != nil {
		return err
	}

	s.log.WithField("user_id", principal.ID).Info("password changed")
	return nil
}

// DeleteSelf removes the caller's account and its todos. The last remaining
// administrator cannot delete itself.
func (s *AccountService) DeleteSelf(ctx context.Context, principal *model.Principal) error {
	if principal == nil {
		return common.ErrUnauthorized
	}

	err := s.userRepo.WithinTx(ctx, func(repo repository.UserRepository) error {
		user, err := repo.FindByID(ctx, principal.ID)
		if err != nil {
			return err
		}
		if user.IsAdmin() {
			admins, err := repo.CountAdmins(ctx)
			if err != nil {
				return err
			}
			if admins <= 1 {
				return common.Errorf("admin cannot delete itself: %w", common.ErrInvariant)
			}
		}
		return repo.Delete(ctx, user.ID)
	})
	if err != nil {
		return err
	}

	s.metrics.ObserveAccountEvent("deleted")
	s.log.WithField("user_id", principal.ID).Info("user deleted own account")
	return nil
}
