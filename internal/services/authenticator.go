package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/peakpoint/backend/internal/models"
	"github.com/peakpoint/backend/pkg/authtoken"
	"github.com/peakpoint/backend/pkg/logger"
)

// LoginResult is either a session (Token set) or a two-factor challenge
// (TwoFactorRequired with TempToken set).
type LoginResult struct {
	Token             string
	TempToken         string
	TwoFactorRequired bool
	User              *models.User
}

// Validation is the per-request outcome for a verified session token.
type Validation struct {
	Valid   bool
	User    *models.User
	IsAdmin bool
	Scope   []string
}

type Authenticator struct {
	Verifier *CredentialVerifier
	Codec    *authtoken.Codec
	Store    UserStore
	Admin    *AdminPolicy
}

func NewAuthenticator(verifier *CredentialVerifier, codec *authtoken.Codec, store UserStore, admin *AdminPolicy) *Authenticator {
	return &Authenticator{Verifier: verifier, Codec: codec, Store: store, Admin: admin}
}

func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (*LoginResult, error) {
	verification, err := a.Verifier.Verify(ctx, email, password)
	if err != nil {
		return nil, err
	}

	switch verification.Outcome {
	case OutcomeAdmin:
		return a.sessionFor(verification.User)
	case OutcomeValid:
		if verification.User.TwoFactorEnabled {
			return a.challengeFor(verification.User)
		}
		return a.sessionFor(verification.User)
	default:
		logger.Warn("login_rejected", map[string]interface{}{
			"reason": verification.Outcome.String(),
		})
		return nil, ErrUnauthorized
	}
}

func (a *Authenticator) sessionFor(user *models.User) (*LoginResult, error) {
	token, err := a.Codec.IssueSession(identityOf(user))
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	return &LoginResult{Token: token, User: user}, nil
}

func (a *Authenticator) challengeFor(user *models.User) (*LoginResult, error) {
	token, err := a.Codec.IssueChallenge(identityOf(user))
	if err != nil {
		return nil, fmt.Errorf("issue challenge token: %w", err)
	}
	return &LoginResult{TempToken: token, TwoFactorRequired: true, User: user}, nil
}

// Validate runs on every protected request after the session signature and
// expiry have been checked.
func (a *Authenticator) Validate(ctx context.Context, session *authtoken.Session) (Validation, error) {
	id, err := uuid.Parse(session.UserID)
	if err != nil {
		return Validation{Valid: false}, nil
	}

	user, err := a.Store.FindUserByID(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return Validation{Valid: false}, nil
	}
	if err != nil {
		return Validation{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	isAdmin := a.Admin.IsAdmin(user)
	scope := []string{ScopeUser}
	if isAdmin {
		scope = []string{ScopeAdmin}
	}
	return Validation{Valid: true, User: user, IsAdmin: isAdmin, Scope: scope}, nil
}

// ValidateToken verifies a raw session token and then validates it.
func (a *Authenticator) ValidateToken(ctx context.Context, raw string) (Validation, error) {
	session, err := a.Codec.VerifySession(raw)
	if err != nil {
		return Validation{Valid: false}, nil
	}
	return a.Validate(ctx, session)
}

func identityOf(user *models.User) authtoken.Identity {
	return authtoken.Identity{UserID: user.ID.String(), Email: user.Email}
}
