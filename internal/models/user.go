package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type OAuthProvider string

const (
	ProviderGitHub OAuthProvider = "github"
	ProviderGoogle OAuthProvider = "google"
	ProviderOIDC   OAuthProvider = "oidc"
)

// Column is the users column holding the external id for the provider.
func (p OAuthProvider) Column() (string, bool) {
	switch p {
	case ProviderGitHub:
		return "github_id", true
	case ProviderGoogle:
		return "google_id", true
	case ProviderOIDC:
		return "oidc_subject", true
	default:
		return "", false
	}
}

type User struct {
	BaseModel
	Email                  string         `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash           string         `json:"-" gorm:"type:text;not null"`
	FirstName              string         `json:"firstName" gorm:"type:varchar(100);not null"`
	LastName               string         `json:"lastName" gorm:"type:varchar(100);not null"`
	GitHubID               *string        `json:"-" gorm:"column:github_id;type:varchar(100);uniqueIndex"`
	GoogleID               *string        `json:"-" gorm:"column:google_id;type:varchar(100);uniqueIndex"`
	OIDCSubject            *string        `json:"-" gorm:"column:oidc_subject;type:varchar(255);uniqueIndex"`
	TwoFactorEnabled       bool           `json:"twoFactorEnabled" gorm:"not null;default:false"`
	TwoFactorSecret        string         `json:"-" gorm:"type:text"`
	PendingTwoFactorSecret string         `json:"-" gorm:"type:text"`
	RecoveryCodes          []RecoveryCode `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (u *User) Name() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) ProviderID(p OAuthProvider) *string {
	switch p {
	case ProviderGitHub:
		return u.GitHubID
	case ProviderGoogle:
		return u.GoogleID
	case ProviderOIDC:
		return u.OIDCSubject
	default:
		return nil
	}
}

func (u *User) SetProviderID(p OAuthProvider, id string) {
	switch p {
	case ProviderGitHub:
		u.GitHubID = &id
	case ProviderGoogle:
		u.GoogleID = &id
	case ProviderOIDC:
		u.OIDCSubject = &id
	}
}

// RecoveryCode stores only the digest of a one-time code.
type RecoveryCode struct {
	BaseModel
	UserID   uuid.UUID  `json:"-" gorm:"type:uuid;not null;uniqueIndex:idx_recovery_user_hash,priority:1"`
	Position int        `json:"position" gorm:"not null"`
	CodeHash string     `json:"-" gorm:"type:varchar(64);not null;uniqueIndex:idx_recovery_user_hash,priority:2"`
	UsedAt   *time.Time `json:"usedAt,omitempty"`
}
