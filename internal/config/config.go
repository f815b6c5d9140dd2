package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

const (
	AdminPolicyEmailPassword = "email_password"
	AdminPolicyEmail         = "email"
)

type Config struct {
	DB     DBConfig
	Redis  RedisConfig
	JWT    JWTConfig
	Admin  AdminConfig
	MFA    MFAConfig
	Server ServerConfig
	SSO    SSOConfig
	Log    LogConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig is optional. An empty Addr keeps the challenge ledger in memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type JWTConfig struct {
	Secret       string
	SessionTTL   time.Duration
	ChallengeTTL time.Duration
}

type AdminConfig struct {
	Email    string
	Password string
	Policy   string
}

func (c AdminConfig) Configured() bool {
	return c.Email != "" && c.Password != ""
}

type MFAConfig struct {
	Issuer            string
	RecoveryCodeCount int
	EncryptionSecret  string
}

type ServerConfig struct {
	Port             string
	FrontendURL      string
	BackendURL       string
	OAuthRedirectURL string

	// LoginRateLimit caps login and second-factor attempts per client IP per
	// minute. Zero disables the limiter.
	LoginRateLimit int
}

type SSOConfig struct {
	GitHub OAuthProviderConfig
	Google OAuthProviderConfig
	OIDC   OIDCProviderConfig
}

type OAuthProviderConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       string
	Endpoint     oauth2.Endpoint
	APIURL       string
}

func (c OAuthProviderConfig) ClientConfig(_ context.Context) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       splitScopes(c.Scopes),
		Endpoint:     c.Endpoint,
	}
}

type OIDCProviderConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       string
	IssuerURL    string
}

// ClientConfig uses conventional endpoint paths under the issuer. Callers
// that ran discovery replace Endpoint with the advertised one.
func (c OIDCProviderConfig) ClientConfig(_ context.Context) *oauth2.Config {
	issuer := strings.TrimRight(c.IssuerURL, "/")
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       splitScopes(c.Scopes),
		Endpoint: oauth2.Endpoint{
			AuthURL:  issuer + "/authorize",
			TokenURL: issuer + "/token",
		},
	}
}

type LogConfig struct {
	Level       string
	Environment string
}

func Load() *Config {
	backendURL := strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8080/api"), "/")
	jwtSecret := getEnv("JWT_SECRET", "")

	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "peakpoint"),
			Password: getEnv("DB_PASSWORD", "peakpoint_secret"),
			Name:     getEnv("DB_NAME", "peakpoint"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:       jwtSecret,
			SessionTTL:   getEnvAsDuration("JWT_SESSION_TTL", time.Hour),
			ChallengeTTL: getEnvAsDuration("JWT_CHALLENGE_TTL", 5*time.Minute),
		},
		Admin: AdminConfig{
			Email:    strings.ToLower(strings.TrimSpace(getEnv("ADMIN_EMAIL", ""))),
			Password: getEnv("ADMIN_PASSWORD", ""),
			Policy:   getEnv("ADMIN_POLICY", AdminPolicyEmailPassword),
		},
		MFA: MFAConfig{
			Issuer:            getEnv("MFA_ISSUER", "PeakPoint"),
			RecoveryCodeCount: getEnvAsInt("MFA_RECOVERY_CODE_COUNT", 10),
			EncryptionSecret:  getEnv("MFA_ENCRYPTION_KEY", jwtSecret),
		},
		Server: ServerConfig{
			Port:             getEnv("SERVER_PORT", "8080"),
			FrontendURL:      getEnv("FRONTEND_URL", "http://localhost:5173"),
			BackendURL:       backendURL,
			OAuthRedirectURL: getEnv("OAUTH_REDIRECT_URL", "http://localhost:5173/oauth/callback"),
			LoginRateLimit:   getEnvAsInt("LOGIN_RATE_LIMIT", 20),
		},
		SSO: SSOConfig{
			GitHub: OAuthProviderConfig{
				Enabled:      getEnvAsBool("OAUTH_GITHUB_ENABLED", false),
				ClientID:     getEnv("OAUTH_GITHUB_CLIENT_ID", ""),
				ClientSecret: getEnv("OAUTH_GITHUB_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("OAUTH_GITHUB_REDIRECT_URL", backendURL+"/oauth/github/callback"),
				Scopes:       getEnv("OAUTH_GITHUB_SCOPES", "read:user,user:email"),
				Endpoint:     github.Endpoint,
				APIURL:       getEnv("OAUTH_GITHUB_API_URL", "https://api.github.com"),
			},
			Google: OAuthProviderConfig{
				Enabled:      getEnvAsBool("OAUTH_GOOGLE_ENABLED", false),
				ClientID:     getEnv("OAUTH_GOOGLE_CLIENT_ID", ""),
				ClientSecret: getEnv("OAUTH_GOOGLE_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("OAUTH_GOOGLE_REDIRECT_URL", backendURL+"/oauth/google/callback"),
				Scopes:       getEnv("OAUTH_GOOGLE_SCOPES", "openid,email,profile"),
				Endpoint:     google.Endpoint,
				APIURL:       getEnv("OAUTH_GOOGLE_API_URL", "https://www.googleapis.com"),
			},
			OIDC: OIDCProviderConfig{
				Enabled:      getEnvAsBool("OAUTH_OIDC_ENABLED", false),
				ClientID:     getEnv("OAUTH_OIDC_CLIENT_ID", ""),
				ClientSecret: getEnv("OAUTH_OIDC_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("OAUTH_OIDC_REDIRECT_URL", backendURL+"/oauth/oidc/callback"),
				Scopes:       getEnv("OAUTH_OIDC_SCOPES", "openid,email,profile"),
				IssuerURL:    getEnv("OAUTH_OIDC_ISSUER_URL", ""),
			},
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Environment: getEnv("APP_ENV", "development"),
		},
	}
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.Admin.Policy {
	case AdminPolicyEmailPassword, AdminPolicyEmail:
	default:
		errs = append(errs, fmt.Errorf("ADMIN_POLICY %q is not one of %q, %q",
			c.Admin.Policy, AdminPolicyEmailPassword, AdminPolicyEmail))
	}
	if c.MFA.RecoveryCodeCount <= 0 {
		errs = append(errs, errors.New("MFA_RECOVERY_CODE_COUNT must be positive"))
	}
	if c.SSO.OIDC.Enabled && c.SSO.OIDC.IssuerURL == "" {
		errs = append(errs, errors.New("OAUTH_OIDC_ISSUER_URL is required when OIDC is enabled"))
	}
	return errors.Join(errs...)
}

func splitScopes(scopes string) []string {
	var out []string
	for _, s := range strings.Split(scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
