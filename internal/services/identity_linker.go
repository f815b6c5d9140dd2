package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/peakpoint/backend/internal/models"
	"github.com/peakpoint/backend/pkg/authtoken"
	"github.com/peakpoint/backend/pkg/logger"
	"github.com/peakpoint/backend/pkg/utils"
)

// ExternalProfile is what an OAuth provider told us about the caller.
type ExternalProfile struct {
	Provider    models.OAuthProvider
	ProviderID  string
	Email       string
	DisplayName string
	Username    string
	FirstName   string
	LastName    string
}

func (p ExternalProfile) name() (string, string) {
	if p.FirstName != "" {
		last := p.LastName
		if last == "" {
			last = "User"
		}
		return p.FirstName, last
	}
	display := p.DisplayName
	if strings.TrimSpace(display) == "" {
		display = p.Username
	}
	return SplitName(display)
}

type IdentityLinker struct {
	Store UserStore
	Codec *authtoken.Codec
	Admin *AdminPolicy
}

func NewIdentityLinker(store UserStore, codec *authtoken.Codec, admin *AdminPolicy) *IdentityLinker {
	return &IdentityLinker{Store: store, Codec: codec, Admin: admin}
}

// Link resolves the profile to a local account, creating or linking one as
// needed, and returns a session or a challenge. Every failure is reported as
// ErrOAuthFailed; the cause is logged.
func (l *IdentityLinker) Link(ctx context.Context, profile ExternalProfile) (*LoginResult, error) {
	user, err := l.resolve(ctx, profile)
	if err != nil {
		logger.Error("oauth_link_failed", err, map[string]interface{}{
			"provider": string(profile.Provider),
		})
		return nil, fmt.Errorf("%w: %v", ErrOAuthFailed, err)
	}

	id := identityOf(user)
	if user.TwoFactorEnabled {
		token, err := l.Codec.IssueChallenge(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOAuthFailed, err)
		}
		return &LoginResult{TempToken: token, TwoFactorRequired: true, User: user}, nil
	}

	token, err := l.Codec.IssueSession(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOAuthFailed, err)
	}
	return &LoginResult{Token: token, User: user}, nil
}

func (l *IdentityLinker) resolve(ctx context.Context, profile ExternalProfile) (*models.User, error) {
	if profile.ProviderID == "" {
		return nil, errors.New("profile has no provider id")
	}
	if _, ok := profile.Provider.Column(); !ok {
		return nil, fmt.Errorf("unknown provider %q", profile.Provider)
	}

	// The admin account is only reachable through the configured password.
	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if l.Admin.IsAdminEmail(email) {
		return nil, fmt.Errorf("%w: admin email cannot sign in through %s", ErrForbidden, profile.Provider)
	}

	user, err := l.Store.FindUserByProviderID(ctx, profile.Provider, profile.ProviderID)
	if err == nil {
		if l.Admin.IsAdminEmail(user.Email) {
			return nil, fmt.Errorf("%w: provider identity is linked to the admin account", ErrForbidden)
		}
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	if email != "" {
		user, err = l.Store.FindUserByEmail(ctx, email)
		switch {
		case err == nil:
			if err := l.Store.LinkProvider(ctx, user.ID, profile.Provider, profile.ProviderID); err != nil {
				return nil, err
			}
			logger.InfoWithUser(user.ID.String(), "oauth_account_linked", map[string]interface{}{
				"provider": string(profile.Provider),
			})
			return l.Store.FindUserByID(ctx, user.ID)
		case !errors.Is(err, ErrUserNotFound):
			return nil, err
		}
	}

	return l.create(ctx, profile, email)
}

func (l *IdentityLinker) create(ctx context.Context, profile ExternalProfile, email string) (*models.User, error) {
	hash, err := utils.UnusablePasswordHash()
	if err != nil {
		return nil, err
	}
	if email == "" {
		email = PlaceholderEmail(profile.Provider, profile.ProviderID)
	}

	first, last := profile.name()
	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    first,
		LastName:     last,
	}
	user.SetProviderID(profile.Provider, profile.ProviderID)

	if err := l.Store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			// Lost a race with a concurrent callback for the same identity.
			return l.Store.FindUserByProviderID(ctx, profile.Provider, profile.ProviderID)
		}
		return nil, err
	}

	logger.InfoWithUser(user.ID.String(), "oauth_user_created", map[string]interface{}{
		"provider": string(profile.Provider),
	})
	return user, nil
}

func PlaceholderEmail(provider models.OAuthProvider, providerID string) string {
	return fmt.Sprintf("%s-%s@no-email.local", provider, providerID)
}

// SplitName takes the first token as first name and the rest as last name.
func SplitName(display string) (string, string) {
	parts := strings.Fields(display)
	switch len(parts) {
	case 0:
		return "OAuth", "User"
	case 1:
		return parts[0], "User"
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// OAuthRedirectParams is the query payload handed to the front-end after a
// provider callback.
func OAuthRedirectParams(result *LoginResult) url.Values {
	params := url.Values{}
	params.Set("id", result.User.ID.String())
	params.Set("email", result.User.Email)
	params.Set("name", result.User.Name())
	if result.TwoFactorRequired {
		params.Set("twoFactorRequired", "true")
		params.Set("tempToken", result.TempToken)
	} else {
		params.Set("token", result.Token)
	}
	return params
}

// BuildRedirectURL appends params to base with "?" or "&" as appropriate.
func BuildRedirectURL(base string, params url.Values) string {
	joiner := "?"
	if strings.Contains(base, "?") {
		joiner = "&"
	}
	return base + joiner + params.Encode()
}
