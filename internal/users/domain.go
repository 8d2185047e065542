package users

import (
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("users: user not found")
	ErrDuplicate  = errors.New("users: email already registered")
	ErrValidation = errors.New("users: validation failed")
)

// User represents a user account for management.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateInput carries fields for a new user account.
type CreateInput struct {
	Email    string
	Name     string
	Password string
	IsActive bool
}

// UpdateInput carries mutable fields of an existing account. A nil
// Password leaves the stored hash untouched.
type UpdateInput struct {
	Name     string
	IsActive bool
	Password string
}
