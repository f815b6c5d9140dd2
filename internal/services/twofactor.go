package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/peakpoint/backend/internal/models"
	"github.com/peakpoint/backend/pkg/authtoken"
	"github.com/peakpoint/backend/pkg/logger"
	"github.com/peakpoint/backend/pkg/utils"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30
	totpSkew   = 1

	DefaultRecoveryCodeCount = 10
)

type SetupResult struct {
	OTPAuthURL string
	Secret     string
}

type TwoFactorStatus struct {
	Enabled                bool
	Pending                bool
	RecoveryCodesRemaining int64
}

// TwoFactorService moves a user through Disabled, PendingSetup and Enabled
// and completes challenge logins with a TOTP or recovery code.
type TwoFactorService struct {
	Store             UserStore
	Codec             *authtoken.Codec
	Ledger            ChallengeLedger
	Cipher            *utils.SecretCipher
	Issuer            string
	RecoveryCodeCount int
	Now               func() time.Time
}

func NewTwoFactorService(store UserStore, codec *authtoken.Codec, ledger ChallengeLedger, cipher *utils.SecretCipher, issuer string, recoveryCodeCount int) *TwoFactorService {
	if ledger == nil {
		ledger = NewMemoryChallengeLedger()
	}
	if recoveryCodeCount <= 0 {
		recoveryCodeCount = DefaultRecoveryCodeCount
	}
	return &TwoFactorService{
		Store:             store,
		Codec:             codec,
		Ledger:            ledger,
		Cipher:            cipher,
		Issuer:            issuer,
		RecoveryCodeCount: recoveryCodeCount,
		Now:               time.Now,
	}
}

func (s *TwoFactorService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Setup writes a fresh pending secret. Any earlier pending secret is
// replaced; an already confirmed secret stays active until VerifySetup.
func (s *TwoFactorService) Setup(ctx context.Context, userID uuid.UUID) (*SetupResult, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Email,
		Period:      totpPeriod,
		SecretSize:  20,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	sealed, err := s.seal(key.Secret())
	if err != nil {
		return nil, err
	}
	if err := s.Store.SetPendingTwoFactorSecret(ctx, user.ID, sealed); err != nil {
		return nil, s.storeErr(err)
	}

	logger.InfoWithUser(user.ID.String(), "two_factor_setup_started", nil)
	return &SetupResult{OTPAuthURL: key.URL(), Secret: key.Secret()}, nil
}

// VerifySetup confirms the pending secret and returns a fresh batch of
// recovery codes. The plaintext codes are never stored.
func (s *TwoFactorService) VerifySetup(ctx context.Context, userID uuid.UUID, code string) ([]string, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.PendingTwoFactorSecret == "" {
		return nil, ErrNoSecret
	}

	secret, err := s.open(user.PendingTwoFactorSecret)
	if err != nil {
		return nil, err
	}
	if !s.validateCode(code, secret) {
		logger.WarnWithUser(user.ID.String(), "two_factor_setup_code_rejected", nil)
		return nil, ErrInvalidCode
	}

	codes, hashes, err := GenerateRecoveryCodes(s.RecoveryCodeCount)
	if err != nil {
		return nil, err
	}
	if err := s.Store.EnableTwoFactor(ctx, user.ID, user.PendingTwoFactorSecret, hashes); err != nil {
		if errors.Is(err, ErrNoSecret) {
			return nil, ErrNoSecret
		}
		return nil, s.storeErr(err)
	}

	logger.InfoWithUser(user.ID.String(), "two_factor_enabled", map[string]interface{}{
		"recovery_codes": len(codes),
	})
	return codes, nil
}

func (s *TwoFactorService) VerifyLoginCode(ctx context.Context, challengeToken, code string) (*LoginResult, error) {
	challenge, user, err := s.openChallenge(ctx, challengeToken)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorSecret == "" {
		return nil, fmt.Errorf("%w: no confirmed secret", authtoken.ErrInvalidToken)
	}

	secret, err := s.open(user.TwoFactorSecret)
	if err != nil {
		return nil, err
	}
	if !s.validateCode(code, secret) {
		logger.WarnWithUser(user.ID.String(), "two_factor_login_code_rejected", nil)
		return nil, ErrInvalidCode
	}

	if err := s.reserveChallenge(ctx, challenge); err != nil {
		return nil, err
	}
	return s.issueSession(user, "totp")
}

func (s *TwoFactorService) VerifyRecoveryCode(ctx context.Context, challengeToken, recoveryCode string) (*LoginResult, error) {
	challenge, user, err := s.openChallenge(ctx, challengeToken)
	if err != nil {
		return nil, err
	}

	// The challenge is reserved first so that two requests racing on one
	// challenge cannot each burn a recovery code.
	if err := s.reserveChallenge(ctx, challenge); err != nil {
		return nil, err
	}

	ok, err := s.Store.ConsumeRecoveryCode(ctx, user.ID, HashRecoveryCode(recoveryCode))
	if err != nil {
		s.releaseChallenge(ctx, challenge, user)
		return nil, s.storeErr(err)
	}
	if !ok {
		s.releaseChallenge(ctx, challenge, user)
		logger.WarnWithUser(user.ID.String(), "recovery_code_rejected", nil)
		return nil, ErrInvalidCode
	}

	return s.issueSession(user, "recovery_code")
}

func (s *TwoFactorService) Status(ctx context.Context, userID uuid.UUID) (*TwoFactorStatus, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &TwoFactorStatus{
		Enabled: user.TwoFactorEnabled,
		Pending: user.PendingTwoFactorSecret != "",
	}
	if user.TwoFactorEnabled {
		remaining, err := s.Store.CountUnusedRecoveryCodes(ctx, user.ID)
		if err != nil {
			return nil, s.storeErr(err)
		}
		status.RecoveryCodesRemaining = remaining
	}
	return status, nil
}

// Disable requires the account password and clears every secret and code.
func (s *TwoFactorService) Disable(ctx context.Context, userID uuid.UUID, password string) error {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}
	if !utils.CheckPassword(password, user.PasswordHash) {
		return ErrUnauthorized
	}
	if err := s.Store.DisableTwoFactor(ctx, user.ID); err != nil {
		return s.storeErr(err)
	}

	logger.InfoWithUser(user.ID.String(), "two_factor_disabled", nil)
	return nil
}

// openChallenge checks everything that must hold before a second factor is
// even looked at. The challenge id is only consumed once a factor succeeds.
func (s *TwoFactorService) openChallenge(ctx context.Context, challengeToken string) (*authtoken.Challenge, *models.User, error) {
	challenge, err := s.Codec.VerifyChallenge(challengeToken)
	if err != nil {
		return nil, nil, err
	}

	consumed, err := s.Ledger.IsConsumed(ctx, challenge.ID)
	if err != nil {
		return nil, nil, err
	}
	if consumed {
		return nil, nil, fmt.Errorf("%w: challenge already used", authtoken.ErrInvalidToken)
	}

	// A challenge whose account was deleted or lost two-factor since it was
	// issued is reported like any other dead challenge.
	id, err := uuid.Parse(challenge.UserID)
	if err != nil {
		return nil, nil, authtoken.ErrInvalidToken
	}
	user, err := s.loadUser(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: account no longer exists", authtoken.ErrInvalidToken)
	}
	if err != nil {
		return nil, nil, err
	}
	if !user.TwoFactorEnabled {
		return nil, nil, fmt.Errorf("%w: two-factor no longer enabled", authtoken.ErrInvalidToken)
	}
	return challenge, user, nil
}

// reserveChallenge consumes the challenge id; only one caller can win it.
func (s *TwoFactorService) reserveChallenge(ctx context.Context, challenge *authtoken.Challenge) error {
	ttl := challenge.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		ttl = s.Codec.ChallengeTTL()
	}
	won, err := s.Ledger.Consume(ctx, challenge.ID, ttl)
	if err != nil {
		return err
	}
	if !won {
		return fmt.Errorf("%w: challenge already used", authtoken.ErrInvalidToken)
	}
	return nil
}

// releaseChallenge hands a reserved challenge back after a failed factor.
func (s *TwoFactorService) releaseChallenge(ctx context.Context, challenge *authtoken.Challenge, user *models.User) {
	if err := s.Ledger.Release(ctx, challenge.ID); err != nil {
		logger.ErrorWithUser(user.ID.String(), "challenge_release_failed", err, nil)
	}
}

func (s *TwoFactorService) issueSession(user *models.User, method string) (*LoginResult, error) {
	token, err := s.Codec.IssueSession(identityOf(user))
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}

	logger.InfoWithUser(user.ID.String(), "two_factor_login_completed", map[string]interface{}{
		"method": method,
	})
	return &LoginResult{Token: token, User: user}, nil
}

func (s *TwoFactorService) validateCode(code, secret string) bool {
	code = strings.TrimSpace(code)
	if code == "" || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, s.now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func (s *TwoFactorService) loadUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.Store.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.storeErr(err)
	}
	return user, nil
}

func (s *TwoFactorService) storeErr(err error) error {
	if errors.Is(err, ErrUserNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (s *TwoFactorService) seal(secret string) (string, error) {
	if s.Cipher == nil {
		return secret, nil
	}
	sealed, err := s.Cipher.Encrypt(secret)
	if err != nil {
		return "", fmt.Errorf("encrypt totp secret: %w", err)
	}
	return sealed, nil
}

func (s *TwoFactorService) open(stored string) (string, error) {
	if s.Cipher == nil {
		return stored, nil
	}
	return s.Cipher.DecryptOrPlaintext(stored), nil
}

// GenerateRecoveryCodes returns count codes formatted xxxx-xxxx and their digests.
func GenerateRecoveryCodes(count int) ([]string, []string, error) {
	codes := make([]string, 0, count)
	hashes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)

	for len(codes) < count {
		raw := make([]byte, 4)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, fmt.Errorf("generate recovery code: %w", err)
		}
		encoded := hex.EncodeToString(raw)
		code := encoded[:4] + "-" + encoded[4:]
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
		hashes = append(hashes, HashRecoveryCode(code))
	}
	return codes, hashes, nil
}

// HashRecoveryCode is SHA-256 over the trimmed, lower-cased code.
func HashRecoveryCode(code string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(code))))
	return hex.EncodeToString(sum[:])
}
