package users

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, email, name, passwordHash string, isActive bool) (User, error)
	UpdateUser(ctx context.Context, id int64, name string, isActive bool, passwordHash string) (User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// Service handles user business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns one user by id.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser registers a new account with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, input CreateInput) (User, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	input.Name = strings.TrimSpace(input.Name)
	if input.Email == "" || !strings.Contains(input.Email, "@") {
		return User{}, fmt.Errorf("%w: email is required", ErrValidation)
	}
	if input.Name == "" {
		return User{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(input.Password) < 8 {
		return User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	return s.repo.CreateUser(ctx, input.Email, input.Name, string(hash), input.IsActive)
}

// UpdateUser changes name, active flag and optionally the password.
func (s *Service) UpdateUser(ctx context.Context, id int64, input UpdateInput) (User, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return User{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	passwordHash := ""
	if input.Password != "" {
		if len(input.Password) < 8 {
			return User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			return User{}, fmt.Errorf("hash password: %w", err)
		}
		passwordHash = string(hash)
	}
	return s.repo.UpdateUser(ctx, id, input.Name, input.IsActive, passwordHash)
}

// DeleteUser removes an account.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	return s.repo.DeleteUser(ctx, id)
}
