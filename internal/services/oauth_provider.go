package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/peakpoint/backend/internal/config"
	"github.com/peakpoint/backend/internal/models"
	"github.com/peakpoint/backend/pkg/logger"
	"golang.org/x/oauth2"
)

const (
	oauthStateTTL      = 10 * time.Minute
	oauthStateAudience = "peakpoint-oauth-state"
)

var ErrProviderDisabled = errors.New("oauth provider is not enabled")

type OAuthProviderService struct {
	Cfg *config.Config

	// HTTPClient, when set, is used for token exchange, discovery and API calls.
	HTTPClient *http.Client

	stateSecret []byte

	oidcMu       sync.Mutex
	oidcProvider *oidc.Provider
}

func NewOAuthProviderService(cfg *config.Config) *OAuthProviderService {
	return &OAuthProviderService{Cfg: cfg, stateSecret: []byte(cfg.JWT.Secret)}
}

type OAuthState struct {
	Provider    models.OAuthProvider
	Nonce       string
	ExpiresAt   time.Time
	RedirectURL string
}

type stateClaims struct {
	Provider    string `json:"provider"`
	Nonce       string `json:"nonce"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	jwt.RegisteredClaims
}

func (s *OAuthProviderService) clientContext(ctx context.Context) context.Context {
	if s.HTTPClient == nil {
		return ctx
	}
	return oidc.ClientContext(ctx, s.HTTPClient)
}

func (s *OAuthProviderService) GetOAuthConfig(ctx context.Context, provider string) (*oauth2.Config, models.OAuthProvider, error) {
	switch models.OAuthProvider(strings.ToLower(provider)) {
	case models.ProviderGitHub:
		if !s.Cfg.SSO.GitHub.Enabled {
			return nil, "", fmt.Errorf("github: %w", ErrProviderDisabled)
		}
		return s.Cfg.SSO.GitHub.ClientConfig(ctx), models.ProviderGitHub, nil

	case models.ProviderGoogle:
		if !s.Cfg.SSO.Google.Enabled {
			return nil, "", fmt.Errorf("google: %w", ErrProviderDisabled)
		}
		return s.Cfg.SSO.Google.ClientConfig(ctx), models.ProviderGoogle, nil

	case models.ProviderOIDC:
		if !s.Cfg.SSO.OIDC.Enabled {
			return nil, "", fmt.Errorf("oidc: %w", ErrProviderDisabled)
		}
		provider, err := s.discoverOIDC(ctx)
		if err != nil {
			return nil, "", err
		}
		oauthCfg := s.Cfg.SSO.OIDC.ClientConfig(ctx)
		oauthCfg.Endpoint = provider.Endpoint()
		return oauthCfg, models.ProviderOIDC, nil

	default:
		return nil, "", errors.New("unknown oauth provider: " + provider)
	}
}

func (s *OAuthProviderService) discoverOIDC(ctx context.Context) (*oidc.Provider, error) {
	s.oidcMu.Lock()
	defer s.oidcMu.Unlock()
	if s.oidcProvider != nil {
		return s.oidcProvider, nil
	}
	provider, err := oidc.NewProvider(s.clientContext(ctx), s.Cfg.SSO.OIDC.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	s.oidcProvider = provider
	return provider, nil
}

// GenerateState returns the state and its signed form for the authorize URL.
// The nonce is also expected back in a cookie on the callback.
func (s *OAuthProviderService) GenerateState(provider models.OAuthProvider, redirectURL string) (*OAuthState, string, error) {
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, "", err
	}

	state := &OAuthState{
		Provider:    provider,
		Nonce:       base64.RawURLEncoding.EncodeToString(nonceBytes),
		ExpiresAt:   time.Now().Add(oauthStateTTL),
		RedirectURL: redirectURL,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, stateClaims{
		Provider:    string(state.Provider),
		Nonce:       state.Nonce,
		RedirectURL: state.RedirectURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{oauthStateAudience},
			ExpiresAt: jwt.NewNumericDate(state.ExpiresAt),
		},
	}).SignedString(s.stateSecret)
	if err != nil {
		return nil, "", err
	}
	return state, signed, nil
}

func (s *OAuthProviderService) ParseState(signed string) (*OAuthState, error) {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(signed, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.stateSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(oauthStateAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid oauth state: %w", err)
	}
	return &OAuthState{
		Provider:    models.OAuthProvider(claims.Provider),
		Nonce:       claims.Nonce,
		ExpiresAt:   claims.ExpiresAt.Time,
		RedirectURL: claims.RedirectURL,
	}, nil
}

func (s *OAuthProviderService) AuthCodeURL(ctx context.Context, provider string, state *OAuthState, signedState string) (string, error) {
	oauthCfg, _, err := s.GetOAuthConfig(ctx, provider)
	if err != nil {
		return "", err
	}
	if state.Provider == models.ProviderOIDC {
		return oauthCfg.AuthCodeURL(signedState, oidc.Nonce(state.Nonce)), nil
	}
	return oauthCfg.AuthCodeURL(signedState), nil
}

func (s *OAuthProviderService) ExchangeCode(ctx context.Context, provider string, code string) (*oauth2.Token, error) {
	oauthCfg, _, err := s.GetOAuthConfig(ctx, provider)
	if err != nil {
		return nil, err
	}

	token, err := oauthCfg.Exchange(s.clientContext(ctx), code)
	if err != nil {
		logger.Warn("oauth_exchange_failed", map[string]interface{}{
			"provider": provider,
			"error":    err.Error(),
		})
		return nil, errors.New("failed to exchange code for token")
	}

	return token, nil
}

// GetUserInfo fetches the caller's profile. nonce is checked against the
// OIDC ID token and ignored for plain OAuth providers.
func (s *OAuthProviderService) GetUserInfo(ctx context.Context, provider string, token *oauth2.Token, nonce string) (*ExternalProfile, error) {
	switch models.OAuthProvider(strings.ToLower(provider)) {
	case models.ProviderGitHub:
		return s.getGitHubUserInfo(ctx, token)
	case models.ProviderGoogle:
		return s.getGoogleUserInfo(ctx, token)
	case models.ProviderOIDC:
		return s.getOIDCUserInfo(ctx, token, nonce)
	default:
		return nil, errors.New("unknown provider: " + provider)
	}
}

func (s *OAuthProviderService) apiGet(ctx context.Context, oauthCfg *oauth2.Config, token *oauth2.Token, url string, out interface{}) error {
	client := oauthCfg.Client(s.clientContext(ctx), token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s returned status %d: %s", url, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *OAuthProviderService) getGitHubUserInfo(ctx context.Context, token *oauth2.Token) (*ExternalProfile, error) {
	cfg := s.Cfg.SSO.GitHub
	oauthCfg := cfg.ClientConfig(ctx)
	apiURL := strings.TrimRight(cfg.APIURL, "/")

	var data struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := s.apiGet(ctx, oauthCfg, token, apiURL+"/user", &data); err != nil {
		return nil, err
	}
	if data.ID == 0 {
		return nil, errors.New("github: user id missing from profile")
	}

	if data.Email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := s.apiGet(ctx, oauthCfg, token, apiURL+"/user/emails", &emails); err == nil {
			for _, e := range emails {
				if e.Primary && e.Verified {
					data.Email = e.Email
					break
				}
			}
		}
	}

	return &ExternalProfile{
		Provider:    models.ProviderGitHub,
		ProviderID:  strconv.FormatInt(data.ID, 10),
		Email:       data.Email,
		DisplayName: data.Name,
		Username:    data.Login,
	}, nil
}

func (s *OAuthProviderService) getGoogleUserInfo(ctx context.Context, token *oauth2.Token) (*ExternalProfile, error) {
	cfg := s.Cfg.SSO.Google

	var data struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		Name          string `json:"name"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		VerifiedEmail bool   `json:"verified_email"`
	}
	url := strings.TrimRight(cfg.APIURL, "/") + "/oauth2/v2/userinfo"
	if err := s.apiGet(ctx, cfg.ClientConfig(ctx), token, url, &data); err != nil {
		return nil, err
	}
	if data.ID == "" {
		return nil, errors.New("google: user id missing from profile")
	}

	email := data.Email
	if !data.VerifiedEmail {
		email = ""
	}
	return &ExternalProfile{
		Provider:    models.ProviderGoogle,
		ProviderID:  data.ID,
		Email:       email,
		DisplayName: data.Name,
		FirstName:   data.GivenName,
		LastName:    data.FamilyName,
	}, nil
}

func (s *OAuthProviderService) getOIDCUserInfo(ctx context.Context, token *oauth2.Token, nonce string) (*ExternalProfile, error) {
	provider, err := s.discoverOIDC(ctx)
	if err != nil {
		return nil, err
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("oidc: id_token missing from token response")
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: s.Cfg.SSO.OIDC.ClientID})
	idToken, err := verifier.Verify(s.clientContext(ctx), rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("oidc: %w", err)
	}
	if nonce == "" || idToken.Nonce != nonce {
		return nil, errors.New("oidc: nonce mismatch")
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("oidc: %w", err)
	}

	email := claims.Email
	if !claims.EmailVerified {
		email = ""
	}
	return &ExternalProfile{
		Provider:    models.ProviderOIDC,
		ProviderID:  idToken.Subject,
		Email:       email,
		DisplayName: claims.Name,
		FirstName:   claims.GivenName,
		LastName:    claims.FamilyName,
	}, nil
}
