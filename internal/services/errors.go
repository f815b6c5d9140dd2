package services

import "errors"

var (
	ErrUnauthorized        = errors.New("invalid credentials")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("already exists")
	ErrForbidden           = errors.New("forbidden")
	ErrUnavailable         = errors.New("service unavailable")
	ErrNoSecret            = errors.New("two-factor secret not set")
	ErrInvalidCode         = errors.New("invalid code")
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication is not enabled")
	ErrOAuthFailed         = errors.New("OAuth failed")

	// ErrUserNotFound is returned by UserStore lookups that match no row.
	ErrUserNotFound = errors.New("user not found")
)
