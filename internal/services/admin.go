package services

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"
	"sync"

	"github.com/peakpoint/backend/internal/config"
	"github.com/peakpoint/backend/internal/models"
	"github.com/peakpoint/backend/pkg/utils"
)

const (
	ScopeAdmin = "admin"
	ScopeUser  = "user"
)

// AdminPolicy decides admin status from configuration at request time.
// Nothing about it is persisted on the user.
type AdminPolicy struct {
	email    string
	password string
	mode     string

	// bcrypt results keyed by stored hash; the configured password never
	// changes for the life of the process.
	verified sync.Map
}

func NewAdminPolicy(cfg config.AdminConfig) *AdminPolicy {
	mode := cfg.Policy
	if mode == "" {
		mode = config.AdminPolicyEmailPassword
	}
	return &AdminPolicy{
		email:    strings.ToLower(strings.TrimSpace(cfg.Email)),
		password: cfg.Password,
		mode:     mode,
	}
}

func (p *AdminPolicy) Configured() bool {
	return p != nil && p.email != "" && p.password != ""
}

func (p *AdminPolicy) IsAdminEmail(email string) bool {
	return p != nil && p.email != "" && strings.EqualFold(strings.TrimSpace(email), p.email)
}

// MatchesCredentials compares a login attempt with the configured admin pair.
func (p *AdminPolicy) MatchesCredentials(email, password string) bool {
	if !p.Configured() || !p.IsAdminEmail(email) {
		return false
	}
	given := sha256.Sum256([]byte(password))
	want := sha256.Sum256([]byte(p.password))
	return subtle.ConstantTimeCompare(given[:], want[:]) == 1
}

func (p *AdminPolicy) IsAdmin(user *models.User) bool {
	if user == nil || !p.IsAdminEmail(user.Email) {
		return false
	}
	if p.mode == config.AdminPolicyEmail {
		return true
	}
	if p.password == "" || user.PasswordHash == "" {
		return false
	}
	if ok, cached := p.verified.Load(user.PasswordHash); cached {
		return ok.(bool)
	}
	ok := utils.CheckPassword(p.password, user.PasswordHash)
	p.verified.Store(user.PasswordHash, ok)
	return ok
}
