package authgate

import "errors"

var (
	// ErrInvalidCredentials covers both unknown email and wrong password.
	// The two cases are never distinguished in any response.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenNotFound is returned when no refresh record matches the
	// presented token.
	ErrTokenNotFound = errors.New("refresh token not found")
	// ErrTokenExpired is returned when the matching record's lifetime has
	// passed. Natural expiry requires no revocation bookkeeping.
	ErrTokenExpired = errors.New("refresh token expired")
	// ErrTokenReplayed is returned when an already-retired refresh token is
	// presented. By the time the caller sees it, the whole family has been
	// revoked.
	ErrTokenReplayed = errors.New("refresh token reuse detected")
	// ErrAccessInvalid is returned for access tokens that fail signature or
	// expiry validation.
	ErrAccessInvalid = errors.New("invalid access token")
	// ErrFamilyNotFound is returned by admin revocation of an unknown family.
	ErrFamilyNotFound = errors.New("token family not found")
	// ErrStorageUnavailable signals a refresh-store outage. Authentication
	// fails closed on it: availability is sacrificed for integrity.
	ErrStorageUnavailable = errors.New("auth storage unavailable")
	// ErrLoginRateLimited is returned when login attempts exceed the window
	// budget.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited is returned when refresh attempts exceed the
	// window budget.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrEngineNotReady is returned when the Engine is used before Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)
