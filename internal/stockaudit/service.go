package stockaudit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSubmission(ctx context.Context, id int64) (Submission, []Line, error)
	ListSubmissions(ctx context.Context, filter ListFilter) ([]Submission, int, error)
}

// TxRepository exposes transactional operations for the workflow. Ledger
// returns a ledger view bound to the same transaction, so status flips,
// price updates and stock adjustments commit as one unit.
type TxRepository interface {
	InsertSubmission(ctx context.Context, submission Submission) (int64, error)
	InsertLine(ctx context.Context, line Line) error
	// MarkResolved performs the conditional state transition. It reports
	// false when the submission was not pending, guarding against two
	// managers resolving the same submission concurrently.
	MarkResolved(ctx context.Context, id int64, status Status, managerID int64, notes string, at time.Time) (bool, error)
	UpdateProductPrices(ctx context.Context, productID int64, prices LinePrices) error
	DeleteSubmission(ctx context.Context, id int64) error
	Ledger() ledger.TxRepository
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the stock audit workflow.
type Service struct {
	repo        RepositoryPort
	approvals   *shared.ApprovalRecorder
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService constructs stockaudit service.
func NewService(repo RepositoryPort, approvals *shared.ApprovalRecorder, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, approvals: approvals, audit: audit, idempotency: idem}
}

// Submit records a controller's counted snapshot as a pending submission.
// It has no ledger effect.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (Submission, error) {
	if input.WarehouseID == 0 || input.ControllerID == 0 {
		return Submission{}, fmt.Errorf("%w: warehouse and controller required", ErrValidation)
	}
	if len(input.Lines) == 0 {
		return Submission{}, fmt.Errorf("%w: minimal 1 line", ErrValidation)
	}
	for _, line := range input.Lines {
		if line.ProductID == 0 {
			return Submission{}, fmt.Errorf("%w: product required", ErrValidation)
		}
		if line.CountedQty < 0 {
			return Submission{}, fmt.Errorf("%w: counted quantity must be >= 0", ErrValidation)
		}
		if line.ProposedPurchasePrice.IsNegative() || line.ProposedSalePrice.IsNegative() {
			return Submission{}, fmt.Errorf("%w: proposed prices must be >= 0", ErrValidation)
		}
	}

	submission := Submission{
		WarehouseID:     input.WarehouseID,
		ControllerID:    input.ControllerID,
		Status:          StatusPending,
		ControllerNotes: input.Notes,
		SubmittedAt:     time.Now().UTC(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if ok, err := tx.Ledger().WarehouseExists(ctx, input.WarehouseID); err != nil {
			return err
		} else if !ok {
			return ledger.ErrWarehouseNotFound
		}
		id, err := tx.InsertSubmission(ctx, submission)
		if err != nil {
			return err
		}
		submission.ID = id
		for _, line := range input.Lines {
			if ok, err := tx.Ledger().ProductExists(ctx, line.ProductID); err != nil {
				return err
			} else if !ok {
				return ledger.ErrProductNotFound
			}
			if err := tx.InsertLine(ctx, Line{
				SubmissionID:          id,
				ProductID:             line.ProductID,
				CountedQty:            line.CountedQty,
				ProposedPurchasePrice: line.ProposedPurchasePrice,
				ProposedSalePrice:     line.ProposedSalePrice,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Submission{}, err
	}
	if s.approvals != nil {
		_ = s.approvals.EnsureSubmit(ctx, "STOCK_AUDIT", submissionRef(submission.ID), input.ControllerID, fmt.Sprintf("audit for warehouse %d submitted", input.WarehouseID))
	}
	s.recordAudit(ctx, input.ControllerID, "AUDIT_SUBMIT", submission.ID, map[string]any{"warehouse_id": input.WarehouseID, "lines": len(input.Lines)})
	return submission, nil
}

// Resolve applies the manager's terminal decision. Approval re-reads the
// current ledger quantity per line under lock, applies counted-minus-current
// deltas, updates product prices and flips the status, all in one
// transaction. A submission already resolved fails with ErrInvalidState.
func (s *Service) Resolve(ctx context.Context, input ResolveInput) (Resolution, error) {
	if input.ManagerID == 0 {
		return Resolution{}, fmt.Errorf("%w: manager required", ErrValidation)
	}
	if input.Decision != DecisionApprove && input.Decision != DecisionReject {
		return Resolution{}, fmt.Errorf("%w: unknown decision", ErrValidation)
	}

	submission, lines, err := s.repo.GetSubmission(ctx, input.SubmissionID)
	if err != nil {
		return Resolution{}, err
	}
	if submission.Status != StatusPending {
		return Resolution{}, ErrInvalidState
	}
	if input.Decision == DecisionApprove {
		for _, line := range lines {
			prices, ok := input.Prices[line.ProductID]
			if !ok {
				return Resolution{}, fmt.Errorf("%w: prices required for product %d", ErrValidation, line.ProductID)
			}
			if prices.PurchasePrice.IsNegative() || prices.SalePrice.IsNegative() {
				return Resolution{}, fmt.Errorf("%w: prices must be >= 0", ErrValidation)
			}
		}
	}

	if input.Decision == DecisionReject {
		return s.reject(ctx, submission, input)
	}
	return s.approve(ctx, submission, lines, input)
}

func (s *Service) reject(ctx context.Context, submission Submission, input ResolveInput) (Resolution, error) {
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		flipped, err := tx.MarkResolved(ctx, submission.ID, StatusRejected, input.ManagerID, input.Notes, now)
		if err != nil {
			return err
		}
		if !flipped {
			return ErrInvalidState
		}
		return nil
	})
	if err != nil {
		return Resolution{}, err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module: "STOCK_AUDIT", RefID: submissionRef(submission.ID), ActorID: input.ManagerID,
			Action: shared.ApprovalReject, Note: input.Notes,
		})
	}
	s.recordAudit(ctx, input.ManagerID, "AUDIT_REJECT", submission.ID, nil)
	return Resolution{SubmissionID: submission.ID, Status: StatusRejected, Deltas: map[int64]int64{}}, nil
}

func (s *Service) approve(ctx context.Context, submission Submission, lines []Line, input ResolveInput) (Resolution, error) {
	key := fmt.Sprintf("audit:%d:resolve", submission.ID)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "stockaudit"); err != nil {
			return Resolution{}, err
		}
		insertedKey = true
	}

	now := time.Now().UTC()
	deltas := make(map[int64]int64, len(lines))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		flipped, err := tx.MarkResolved(ctx, submission.ID, StatusApproved, input.ManagerID, input.Notes, now)
		if err != nil {
			return err
		}
		if !flipped {
			return ErrInvalidState
		}
		for _, line := range lines {
			// Expected quantity is what the ledger says now, not what it
			// said at submission time; submissions can be stale.
			level, err := tx.Ledger().GetLevelForUpdate(ctx, line.ProductID, submission.WarehouseID)
			if err != nil && !errors.Is(err, ledger.ErrLevelNotFound) {
				return err
			}
			delta := line.CountedQty - level.Qty
			deltas[line.ProductID] = delta
			if delta != 0 {
				if _, err := ledger.ApplyTx(ctx, tx.Ledger(), ledger.AdjustmentInput{
					ProductID:   line.ProductID,
					WarehouseID: submission.WarehouseID,
					Delta:       delta,
					ActorID:     input.ManagerID,
					Reason:      ledger.ReasonTag("audit", submission.ID),
				}); err != nil {
					return err
				}
			}
			if err := tx.UpdateProductPrices(ctx, line.ProductID, input.Prices[line.ProductID]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Resolution{}, err
	}

	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module: "STOCK_AUDIT", RefID: submissionRef(submission.ID), ActorID: input.ManagerID,
			Action: shared.ApprovalApprove, Note: input.Notes,
		})
	}
	s.recordAudit(ctx, input.ManagerID, "AUDIT_APPROVE", submission.ID, map[string]any{"deltas": deltas})
	return Resolution{SubmissionID: submission.ID, Status: StatusApproved, Deltas: deltas}, nil
}

// Delete removes a pending or rejected submission. Approved submissions
// own ledger entries and are permanent.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	submission, _, err := s.repo.GetSubmission(ctx, id)
	if err != nil {
		return err
	}
	if submission.Status == StatusApproved {
		return ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteSubmission(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "AUDIT_DELETE", id, nil)
	return nil
}

// Get returns a submission with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Submission, []Line, error) {
	return s.repo.GetSubmission(ctx, id)
}

// List returns submissions matching the filter plus a total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Submission, int, error) {
	return s.repo.ListSubmissions(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID: actorID, Action: action, Entity: "stock_audit",
		EntityID: fmt.Sprintf("%d", entityID), Meta: meta,
	})
}

func submissionRef(id int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("STOCK_AUDIT:%d", id)))
}
