// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/carterperez-dev/templates/users-service/internal/core"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
}

// StatusPublisher announces isActive transitions to other services.
type StatusPublisher interface {
	PublishUserStatusChanged(ctx context.Context, userID string, isActive bool) error
}

// Service implements administrative user management.
type Service struct {
	repo   Repository
	hasher PasswordHasher
	events StatusPublisher
	logger *slog.Logger
}

func NewService(
	repo Repository,
	hasher PasswordHasher,
	events StatusPublisher,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		hasher: hasher,
		events: events,
		logger: logger,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) ListUsers(
	ctx context.Context,
	params ListUsersParams,
) ([]User, int, error) {
	params.Normalize()
	users, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, 0, oops.Code("USER_LIST_FAILED").Wrap(err)
	}
	return users, total, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("user_id", id).Wrap(err)
	}
	if user == nil {
		return nil, errUserNotFound(id)
	}
	return user, nil
}

func (s *Service) GetMe(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, oops.Code("USER_UNAUTHENTICATED").Wrap(core.ErrUnauthorized)
	}
	return s.GetUser(ctx, userID)
}

func (s *Service) CreateUser(
	ctx context.Context,
	req CreateUserRequest,
) (*User, error) {
	role := RoleUser
	if req.Role != "" {
		parsed, err := ParseRole(req.Role)
		if err != nil {
			return nil, oops.Code("USER_INVALID_ROLE").
				Public(err.Error()).
				Wrap(core.ErrValidation)
		}
		role = parsed
	}

	email := NormalizeEmail(req.Email)
	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").With("operation", "GetByEmail").Wrap(err)
	}
	if existing != nil {
		return nil, errEmailTaken()
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").With("operation", "Hash").Wrap(err)
	}

	user := &User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, errEmailTaken()
		}
		return nil, oops.Code("USER_CREATE_FAILED").With("operation", "Create").Wrap(err)
	}

	return user, nil
}

// UpdateUser applies a partial update. A change to IsActive is announced
// through the status publisher after the row is persisted; a publish
// failure is logged and does not fail the update.
func (s *Service) UpdateUser(
	ctx context.Context,
	id string,
	req UpdateUserRequest,
) (*User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}

	if req.Email != nil {
		email := NormalizeEmail(*req.Email)
		if email != user.Email {
			other, lookupErr := s.repo.GetByEmail(ctx, email)
			if lookupErr != nil {
				return nil, oops.Code("USER_UPDATE_FAILED").
					With("operation", "GetByEmail").
					Wrap(lookupErr)
			}
			if other != nil {
				return nil, errEmailTaken()
			}
			user.Email = email
		}
	}

	if req.Role != nil {
		role, parseErr := ParseRole(*req.Role)
		if parseErr != nil {
			return nil, oops.Code("USER_INVALID_ROLE").
				Public(parseErr.Error()).
				Wrap(core.ErrValidation)
		}
		user.Role = role
	}

	statusChanged := req.IsActive != nil && *req.IsActive != user.IsActive
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, core.ErrDuplicateKey):
			return nil, errEmailTaken()
		case errors.Is(err, core.ErrStaleRecord):
			return nil, oops.Code("USER_UPDATE_CONFLICT").
				With("user_id", id).
				Public("user was modified concurrently, retry").
				Wrap(errors.Join(core.ErrConflict, err))
		case errors.Is(err, core.ErrNotFound):
			return nil, errUserNotFound(id)
		}
		return nil, oops.Code("USER_UPDATE_FAILED").With("user_id", id).Wrap(err)
	}

	if statusChanged && s.events != nil {
		if pubErr := s.events.PublishUserStatusChanged(ctx, user.ID, user.IsActive); pubErr != nil {
			core.LogError(s.logger, "publish user status change", oops.
				Code("USER_STATUS_PUBLISH_FAILED").
				With("user_id", user.ID, "is_active", user.IsActive).
				Wrap(pubErr))
		}
	}

	return user, nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return errUserNotFound(id)
		}
		return oops.Code("USER_DELETE_FAILED").With("user_id", id).Wrap(err)
	}
	return nil
}

// CanDeleteUser lets an admin delete any account except another admin's.
func (s *Service) CanDeleteUser(
	ctx context.Context,
	requesterID, targetID string,
) error {
	if requesterID == targetID {
		return nil
	}

	target, err := s.GetUser(ctx, targetID)
	if err != nil {
		return err
	}

	if target.IsAdmin() {
		return oops.Code("USER_DELETE_FORBIDDEN").
			Public("cannot delete another admin").
			Wrap(core.ErrForbidden)
	}

	return nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return Stats{}, oops.Code("USER_STATS_FAILED").Wrap(err)
	}
	return stats, nil
}

func errUserNotFound(id string) error {
	return oops.Code("USER_NOT_FOUND").
		With("user_id", id).
		Public("user not found").
		Wrap(core.ErrNotFound)
}

func errEmailTaken() error {
	return oops.Code("USER_EMAIL_TAKEN").
		Public("user with this email already exists").
		Wrap(core.ErrValidation)
}
