package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/peakpoint/backend/internal/config"
	"github.com/peakpoint/backend/internal/database"
	"github.com/peakpoint/backend/internal/models"
	"github.com/peakpoint/backend/internal/services"
	"github.com/peakpoint/backend/pkg/authtoken"
	"github.com/peakpoint/backend/pkg/utils"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"
)

const (
	testAdminEmail    = "admin@peakpoint.io"
	testAdminPassword = "summit-admin-pass"
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

type fixture struct {
	store     *database.UserRepository
	codec     *authtoken.Codec
	clock     *testClock
	admin     *services.AdminPolicy
	verifier  *services.CredentialVerifier
	auth      *services.Authenticator
	twoFactor *services.TwoFactorService
	linker    *services.IdentityLinker
	users     *services.UserService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithPolicy(t, config.AdminPolicyEmailPassword)
}

func newFixtureWithPolicy(t *testing.T, policy string) *fixture {
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

	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}
	codec, err := authtoken.NewCodec(authtoken.Options{Secret: "services-test-secret", Now: clock.Now})
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	cipher, err := utils.NewSecretCipher("services-test-encryption")
	if err != nil {
		t.Fatalf("NewSecretCipher() error = %v", err)
	}

	store := database.NewUserRepository(db)
	admin := services.NewAdminPolicy(config.AdminConfig{
		Email:    testAdminEmail,
		Password: testAdminPassword,
		Policy:   policy,
	})
	verifier := services.NewCredentialVerifier(store, admin)
	twoFactor := services.NewTwoFactorService(store, codec, services.NewMemoryChallengeLedger(), cipher, "PeakPoint", 10)
	twoFactor.Now = clock.Now

	return &fixture{
		store:     store,
		codec:     codec,
		clock:     clock,
		admin:     admin,
		verifier:  verifier,
		auth:      services.NewAuthenticator(verifier, codec, store, admin),
		twoFactor: twoFactor,
		linker:    services.NewIdentityLinker(store, codec, admin),
		users:     services.NewUserService(store, admin),
	}
}

func (f *fixture) createUser(t *testing.T, email, password string) *models.User {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}
	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
	}
	if err := f.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}
	return user
}

// enableTwoFactor runs setup and verify-setup, returning the TOTP secret and
// the recovery codes.
func (f *fixture) enableTwoFactor(t *testing.T, user *models.User) (string, []string) {
	t.Helper()
	ctx := context.Background()

	setup, err := f.twoFactor.Setup(ctx, user.ID)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	codes, err := f.twoFactor.VerifySetup(ctx, user.ID, f.code(t, setup.Secret))
	if err != nil {
		t.Fatalf("VerifySetup() error = %v", err)
	}
	return setup.Secret, codes
}

func (f *fixture) code(t *testing.T, secret string) string {
	t.Helper()
	return f.codeAt(t, secret, f.clock.Now())
}

func (f *fixture) codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, at)
	if err != nil {
		t.Fatalf("GenerateCode() error = %v", err)
	}
	return code
}
