package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/peakpoint/backend/internal/models"
	"github.com/peakpoint/backend/pkg/logger"
	"github.com/peakpoint/backend/pkg/utils"
)

type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeInvalidPassword
	OutcomeValid
	OutcomeAdmin
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdmin:
		return "admin"
	case OutcomeValid:
		return "valid"
	case OutcomeInvalidPassword:
		return "invalid_password"
	default:
		return "not_found"
	}
}

// Verification carries the user for OutcomeAdmin and OutcomeValid only.
type Verification struct {
	Outcome Outcome
	User    *models.User
}

type CredentialVerifier struct {
	Store UserStore
	Admin *AdminPolicy

	// dummyHash is compared against when the email is unknown so both
	// failure paths cost one bcrypt comparison.
	dummyHash string
}

func NewCredentialVerifier(store UserStore, admin *AdminPolicy) *CredentialVerifier {
	dummy, err := utils.UnusablePasswordHash()
	if err != nil {
		logger.Warn("dummy_hash_generation_failed", map[string]interface{}{"error": err.Error()})
	}
	return &CredentialVerifier{Store: store, Admin: admin, dummyHash: dummy}
}

func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (Verification, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if v.Admin.MatchesCredentials(email, password) {
		admin, err := v.ensureAdmin(ctx, email, password)
		if err != nil {
			return Verification{}, err
		}
		return Verification{Outcome: OutcomeAdmin, User: admin}, nil
	}

	user, err := v.Store.FindUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		if v.dummyHash != "" {
			utils.CheckPassword(password, v.dummyHash)
		}
		return Verification{Outcome: OutcomeNotFound}, nil
	}
	if err != nil {
		return Verification{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !utils.CheckPassword(password, user.PasswordHash) {
		return Verification{Outcome: OutcomeInvalidPassword}, nil
	}
	return Verification{Outcome: OutcomeValid, User: user}, nil
}

// ensureAdmin provisions the admin record on first admin login. A concurrent
// first login loses the insert and reads the winner's row. An existing row
// whose hash no longer matches the configured password is brought back in
// line, so admin scope follows ADMIN_PASSWORD.
func (v *CredentialVerifier) ensureAdmin(ctx context.Context, email, password string) (*models.User, error) {
	user, err := v.Store.FindUserByEmail(ctx, email)
	if err == nil {
		return v.syncAdminPassword(ctx, user, password)
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	admin := &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Admin",
		LastName:     "User",
	}
	if err := v.Store.CreateUser(ctx, admin); err != nil {
		if errors.Is(err, ErrConflict) {
			existing, findErr := v.Store.FindUserByEmail(ctx, email)
			if findErr == nil {
				return v.syncAdminPassword(ctx, existing, password)
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	logger.Info("admin_user_provisioned", map[string]interface{}{
		"user_id": admin.ID.String(),
	})
	return admin, nil
}

func (v *CredentialVerifier) syncAdminPassword(ctx context.Context, user *models.User, password string) (*models.User, error) {
	if utils.CheckPassword(password, user.PasswordHash) {
		return user, nil
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	if err := v.Store.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	user.PasswordHash = hash

	logger.Warn("admin_password_resynced", map[string]interface{}{
		"user_id": user.ID.String(),
	})
	return user, nil
}
