package shared

import "errors"

var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates a failed login attempt.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing indicates a mutating request without a token.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch indicates a token that fails verification.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
