package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/peakpoint/backend/internal/config"
	"github.com/peakpoint/backend/internal/database"
	"github.com/peakpoint/backend/internal/middleware"
	"github.com/peakpoint/backend/internal/services"
	"github.com/peakpoint/backend/pkg/authtoken"
	"github.com/peakpoint/backend/pkg/utils"
	"github.com/pquerna/otp/totp"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const (
	testAdminEmail    = "admin@peakpoint.io"
	testAdminPassword = "summit-admin-pass"
	testRedirectURL   = "http://localhost:5173/oauth/callback"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type fakeGitHub struct {
	server *httptest.Server

	mu   sync.Mutex
	user githubUser
}

func (f *fakeGitHub) setUser(u githubUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = u
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	fake := &fakeGitHub{user: githubUser{ID: 4242, Login: "octo", Name: "Octo Cat", Email: "octo@github.test"}}

	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "bad_verification_code"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "gho_test", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fake.mu.Lock()
		defer fake.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fake.user)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	})

	fake.server = httptest.NewServer(mux)
	t.Cleanup(fake.server.Close)
	return fake
}

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	clock  *testClock
	codec  *authtoken.Codec
	github *fakeGitHub
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating: %v", err)
	}

	github := newFakeGitHub(t)
	cfg := &config.Config{
		JWT:   config.JWTConfig{Secret: "handlers-test-secret"},
		Admin: config.AdminConfig{Email: testAdminEmail, Password: testAdminPassword, Policy: config.AdminPolicyEmailPassword},
		MFA:   config.MFAConfig{Issuer: "PeakPoint", RecoveryCodeCount: 10, EncryptionSecret: "handlers-test-encryption"},
		Server: config.ServerConfig{
			FrontendURL:      "http://localhost:5173",
			BackendURL:       "http://localhost:8080/api",
			OAuthRedirectURL: testRedirectURL,
		},
		SSO: config.SSOConfig{
			GitHub: config.OAuthProviderConfig{
				Enabled:      true,
				ClientID:     "github-client",
				ClientSecret: "github-secret",
				RedirectURL:  "http://localhost:8080/api/oauth/github/callback",
				Scopes:       "read:user,user:email",
				Endpoint: oauth2.Endpoint{
					AuthURL:  github.server.URL + "/login/oauth/authorize",
					TokenURL: github.server.URL + "/login/oauth/access_token",
				},
				APIURL: github.server.URL,
			},
		},
	}

	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}
	codec, err := authtoken.NewCodec(authtoken.Options{Secret: cfg.JWT.Secret, Now: clock.Now})
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	cipher, err := utils.NewSecretCipher(cfg.MFA.EncryptionSecret)
	if err != nil {
		t.Fatalf("NewSecretCipher() error = %v", err)
	}

	store := database.NewUserRepository(db)
	admin := services.NewAdminPolicy(cfg.Admin)
	verifier := services.NewCredentialVerifier(store, admin)
	authenticator := services.NewAuthenticator(verifier, codec, store, admin)
	twoFactor := services.NewTwoFactorService(store, codec, services.NewMemoryChallengeLedger(), cipher, cfg.MFA.Issuer, cfg.MFA.RecoveryCodeCount)
	twoFactor.Now = clock.Now

	app := NewApp(cfg.Server.FrontendURL)
	RegisterRoutes(app, Routes{
		Auth:      NewAuthHandler(authenticator),
		Users:     NewUsersHandler(services.NewUserService(store, admin)),
		TwoFactor: NewTwoFactorHandler(twoFactor),
		OAuth:     NewOAuthHandler(cfg, services.NewOAuthProviderService(cfg), services.NewIdentityLinker(store, codec, admin)),
		Guard:     middleware.NewAuthMiddleware(authenticator),
	})

	return &testEnv{app: app, db: db, clock: clock, codec: codec, github: github}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}, token string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed encoding body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// call performs the request and decodes a JSON object body.
func (e *testEnv) call(t *testing.T, method, path string, body interface{}, token string) (int, map[string]interface{}) {
	t.Helper()
	resp := e.request(t, method, path, body, token)
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if len(raw) == 0 {
		return resp.StatusCode, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("failed decoding %s %s body %q: %v", method, path, string(raw), err)
	}
	return resp.StatusCode, out
}

func (e *testEnv) callList(t *testing.T, method, path string, token string) (int, []map[string]interface{}) {
	t.Helper()
	resp := e.request(t, method, path, nil, token)
	defer resp.Body.Close()

	var out []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed decoding list body: %v", err)
	}
	return resp.StatusCode, out
}

func (e *testEnv) register(t *testing.T, email, password string) string {
	t.Helper()
	status, body := e.call(t, http.MethodPost, "/api/users", map[string]string{
		"firstName": "Test",
		"lastName":  "Hiker",
		"email":     email,
		"password":  password,
	}, "")
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201 registering %s, got %d: %v", email, status, body)
	}
	return body["id"].(string)
}

func (e *testEnv) login(t *testing.T, email, password string) map[string]interface{} {
	t.Helper()
	status, body := e.call(t, http.MethodPost, "/api/users/authenticate", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	if status != fiber.StatusCreated && status != fiber.StatusOK {
		t.Fatalf("expected login to succeed for %s, got %d: %v", email, status, body)
	}
	return body
}

func (e *testEnv) sessionToken(t *testing.T, email, password string) string {
	t.Helper()
	body := e.login(t, email, password)
	token, ok := body["token"].(string)
	if !ok || token == "" {
		t.Fatalf("expected session token, got %v", body)
	}
	return token
}

// enableTwoFactor runs setup and verify-setup and returns the secret and
// recovery codes.
func (e *testEnv) enableTwoFactor(t *testing.T, token string) (string, []string) {
	t.Helper()

	status, setup := e.call(t, http.MethodPost, "/api/2fa/setup", nil, token)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 from setup, got %d: %v", status, setup)
	}
	secret := setup["secret"].(string)

	status, verified := e.call(t, http.MethodPost, "/api/2fa/verify-setup", map[string]string{
		"code": e.code(t, secret),
	}, token)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 from verify-setup, got %d: %v", status, verified)
	}

	raw := verified["recoveryCodes"].([]interface{})
	codes := make([]string, len(raw))
	for i, c := range raw {
		codes[i] = c.(string)
	}
	return secret, codes
}

func (e *testEnv) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, e.clock.Now())
	if err != nil {
		t.Fatalf("GenerateCode() error = %v", err)
	}
	return code
}
