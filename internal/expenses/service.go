package expenses

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Insert(ctx context.Context, expense Expense) (int64, error)
	Get(ctx context.Context, id int64) (Expense, error)
	List(ctx context.Context, filter ListFilter) ([]Expense, int, error)
	Delete(ctx context.Context, id int64) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service records expenses.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs expenses service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Record validates and stores one expense.
func (s *Service) Record(ctx context.Context, input Input) (Expense, error) {
	if input.WarehouseID == 0 || input.UserID == 0 {
		return Expense{}, fmt.Errorf("%w: warehouse and user required", ErrValidation)
	}
	category := strings.TrimSpace(input.Category)
	if category == "" {
		return Expense{}, fmt.Errorf("%w: category required", ErrValidation)
	}
	if !input.Amount.IsPositive() {
		return Expense{}, fmt.Errorf("%w: amount must be > 0", ErrValidation)
	}
	date := input.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	expense := Expense{
		Date:        date,
		WarehouseID: input.WarehouseID,
		UserID:      input.UserID,
		Category:    category,
		Description: strings.TrimSpace(input.Description),
		Amount:      input.Amount,
		CreatedAt:   time.Now().UTC(),
	}
	id, err := s.repo.Insert(ctx, expense)
	if err != nil {
		return Expense{}, err
	}
	expense.ID = id

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID: input.UserID, Action: "EXPENSE_RECORD", Entity: "expense",
			EntityID: fmt.Sprintf("%d", id),
			Meta:     map[string]any{"category": category, "amount": input.Amount},
		})
	}
	return expense, nil
}

// Get returns one expense.
func (s *Service) Get(ctx context.Context, id int64) (Expense, error) {
	return s.repo.Get(ctx, id)
}

// List returns expenses matching the filter plus a total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Expense, int, error) {
	return s.repo.List(ctx, filter)
}

// Delete removes one expense.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID: actorID, Action: "EXPENSE_DELETE", Entity: "expense",
			EntityID: fmt.Sprintf("%d", id),
		})
	}
	return nil
}
