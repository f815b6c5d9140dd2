package handlers

import (
	"crypto/subtle"
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/peakpoint/backend/internal/config"
	"github.com/peakpoint/backend/internal/services"
	"github.com/peakpoint/backend/pkg/logger"
	"github.com/peakpoint/backend/pkg/utils"
)

const (
	oauthNonceCookie = "peakpoint_oauth_nonce"
	oauthFailMessage = "OAuth failed"
)

type OAuthHandler struct {
	Cfg       *config.Config
	Providers *services.OAuthProviderService
	Linker    *services.IdentityLinker
}

func NewOAuthHandler(cfg *config.Config, providers *services.OAuthProviderService, linker *services.IdentityLinker) *OAuthHandler {
	return &OAuthHandler{Cfg: cfg, Providers: providers, Linker: linker}
}

func (h *OAuthHandler) ListProviders(c *fiber.Ctx) error {
	providers := []fiber.Map{}
	if h.Cfg.SSO.GitHub.Enabled {
		providers = append(providers, fiber.Map{"name": "github", "displayName": "GitHub"})
	}
	if h.Cfg.SSO.Google.Enabled {
		providers = append(providers, fiber.Map{"name": "google", "displayName": "Google"})
	}
	if h.Cfg.SSO.OIDC.Enabled {
		providers = append(providers, fiber.Map{"name": "oidc", "displayName": "OpenID Connect"})
	}
	return utils.JSON(c, fiber.StatusOK, providers)
}

// Start redirects the browser to the provider. An optional redirectTo query
// parameter overrides the front-end landing page if it shares its origin.
func (h *OAuthHandler) Start(c *fiber.Ctx) error {
	provider := c.Params("provider")

	_, providerName, err := h.Providers.GetOAuthConfig(c.UserContext(), provider)
	if err != nil {
		if errors.Is(err, services.ErrProviderDisabled) {
			return respondError(c, "oauth_start_failed", err)
		}
		return utils.Error(c, fiber.StatusNotFound, "unknown oauth provider")
	}

	redirectTo := c.Query("redirectTo")
	if redirectTo != "" && !sameOrigin(redirectTo, h.Cfg.Server.OAuthRedirectURL) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid redirect")
	}

	state, signed, err := h.Providers.GenerateState(providerName, redirectTo)
	if err != nil {
		return respondError(c, "oauth_state_failed", err)
	}
	authURL, err := h.Providers.AuthCodeURL(c.UserContext(), provider, state, signed)
	if err != nil {
		return respondError(c, "oauth_start_failed", err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     oauthNonceCookie,
		Value:    state.Nonce,
		Path:     "/",
		Expires:  state.ExpiresAt,
		HTTPOnly: true,
		Secure:   strings.HasPrefix(h.Cfg.Server.BackendURL, "https://"),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Redirect(authURL, fiber.StatusFound)
}

// Callback finishes the provider round trip and always answers with a
// redirect to the front-end, carrying either the login payload or an error.
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	provider := strings.ToLower(c.Params("provider"))
	nonce := c.Cookies(oauthNonceCookie)
	c.ClearCookie(oauthNonceCookie)

	fail := func(reason string, err error) error {
		details := map[string]interface{}{"provider": provider, "reason": reason}
		if err != nil {
			logger.Error("oauth_callback_failed", err, details)
		} else {
			logger.Warn("oauth_callback_failed", details)
		}
		params := url.Values{}
		params.Set("error", oauthFailMessage)
		return c.Redirect(services.BuildRedirectURL(h.Cfg.Server.OAuthRedirectURL, params), fiber.StatusFound)
	}

	if c.Query("error") != "" {
		return fail("provider_error", nil)
	}

	state, err := h.Providers.ParseState(c.Query("state"))
	if err != nil {
		return fail("invalid_state", err)
	}
	if string(state.Provider) != provider {
		return fail("provider_mismatch", nil)
	}
	if nonce == "" || subtle.ConstantTimeCompare([]byte(nonce), []byte(state.Nonce)) != 1 {
		return fail("nonce_mismatch", nil)
	}

	code := c.Query("code")
	if code == "" {
		return fail("missing_code", nil)
	}

	token, err := h.Providers.ExchangeCode(c.UserContext(), provider, code)
	if err != nil {
		return fail("exchange_failed", err)
	}
	profile, err := h.Providers.GetUserInfo(c.UserContext(), provider, token, state.Nonce)
	if err != nil {
		return fail("profile_failed", err)
	}
	result, err := h.Linker.Link(c.UserContext(), *profile)
	if err != nil {
		return fail("link_failed", err)
	}

	logger.InfoWithUser(result.User.ID.String(), "oauth_login_success", map[string]interface{}{
		"provider":            provider,
		"two_factor_required": result.TwoFactorRequired,
	})

	target := h.Cfg.Server.OAuthRedirectURL
	if state.RedirectURL != "" {
		target = state.RedirectURL
	}
	return c.Redirect(services.BuildRedirectURL(target, services.OAuthRedirectParams(result)), fiber.StatusFound)
}

func sameOrigin(candidate, reference string) bool {
	a, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	b, err := url.Parse(reference)
	if err != nil {
		return false
	}
	return a.Scheme != "" && a.Host != "" && strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}
