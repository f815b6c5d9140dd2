package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/peakpoint/backend/internal/models"
	"github.com/peakpoint/backend/pkg/logger"
	"github.com/peakpoint/backend/pkg/utils"
)

type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Actor is the authenticated caller of a user operation.
type Actor struct {
	UserID  uuid.UUID
	IsAdmin bool
}

func (a Actor) canAccess(id uuid.UUID) bool {
	return a.IsAdmin || a.UserID == id
}

type UserService struct {
	Store UserStore
	Admin *AdminPolicy
}

func NewUserService(store UserStore, admin *AdminPolicy) *UserService {
	return &UserService{Store: store, Admin: admin}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if s.Admin.IsAdminEmail(email) {
		return nil, ErrForbidden
	}

	_, err := s.Store.FindUserByEmail(ctx, email)
	if err == nil {
		return nil, ErrConflict
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
	}
	if err := s.Store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	logger.InfoWithUser(user.ID.String(), "user_registered", nil)
	return user, nil
}

func (s *UserService) List(ctx context.Context, actor Actor) ([]models.User, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	users, err := s.Store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return users, nil
}

func (s *UserService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.User, error) {
	if !actor.canAccess(id) {
		return nil, ErrForbidden
	}
	user, err := s.Store.FindUserByID(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return user, nil
}

func (s *UserService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	if !actor.canAccess(id) {
		return ErrForbidden
	}
	err := s.Store.DeleteUser(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	logger.InfoWithUser(actor.UserID.String(), "user_deleted", map[string]interface{}{
		"target_user_id": id.String(),
	})
	return nil
}

func (s *UserService) DeleteAll(ctx context.Context, actor Actor) (int64, error) {
	if !actor.IsAdmin {
		return 0, ErrForbidden
	}
	deleted, err := s.Store.DeleteAllUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	logger.InfoWithUser(actor.UserID.String(), "users_deleted_all", map[string]interface{}{
		"count": deleted,
	})
	return deleted, nil
}
