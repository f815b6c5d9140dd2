package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/peakpoint/backend/internal/models"
)

// UserStore is the persistence contract the auth services depend on.
// Lookups return ErrUserNotFound when no row matches; CreateUser returns
// ErrConflict on a duplicate email or provider id.
type UserStore interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByProviderID(ctx context.Context, provider models.OAuthProvider, providerID string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	LinkProvider(ctx context.Context, userID uuid.UUID, provider models.OAuthProvider, providerID string) error
	UpdatePasswordHash(ctx context.Context, userID uuid.UUID, hash string) error

	SetPendingTwoFactorSecret(ctx context.Context, userID uuid.UUID, encryptedSecret string) error
	// EnableTwoFactor promotes pendingSecret only if it is still the stored
	// pending value and replaces the recovery batch in the same transaction.
	EnableTwoFactor(ctx context.Context, userID uuid.UUID, pendingSecret string, codeHashes []string) error
	ConsumeRecoveryCode(ctx context.Context, userID uuid.UUID, codeHash string) (bool, error)
	CountUnusedRecoveryCodes(ctx context.Context, userID uuid.UUID) (int64, error)
	DisableTwoFactor(ctx context.Context, userID uuid.UUID) error

	ListUsers(ctx context.Context) ([]models.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	DeleteAllUsers(ctx context.Context) (int64, error)
}
