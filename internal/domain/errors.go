package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so the interaction layer can pick a user-facing
// message without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
)

// Flow-state sentinels. These are terminal for the flow instance that hit
// them: the user (or admin) has to start over.
var (
	ErrRateLimited       = errors.New("rate limited")
	ErrNoSession         = errors.New("no pending verification")
	ErrSessionExpired    = errors.New("verification session expired")
	ErrAttemptsExhausted = errors.New("verification attempts exhausted")
	ErrNotConfigured     = errors.New("guild not configured")
	ErrDelivery          = errors.New("code delivery failed")
	ErrSetupExpired      = errors.New("setup session expired")
)
