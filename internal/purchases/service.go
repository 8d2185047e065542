package purchases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchase(ctx context.Context, id int64) (Purchase, []Item, error)
	ListPurchases(ctx context.Context, filter ListFilter) ([]Purchase, int, error)
}

// TxRepository exposes transactional purchase operations. Ledger returns
// a ledger view bound to the same transaction, so headers, items and
// stock adjustments commit as one unit.
type TxRepository interface {
	// GetPurchaseForUpdate locks the header row so amendments and
	// cancellations of the same purchase serialize.
	GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, []Item, error)
	InsertPurchase(ctx context.Context, purchase Purchase) (int64, error)
	InsertItem(ctx context.Context, item Item) error
	DeleteItems(ctx context.Context, purchaseID int64) error
	UpdateTotal(ctx context.Context, id int64, total decimal.Decimal) error
	// SetStatus performs the conditional transition, reporting false
	// when the purchase was not in the expected state.
	SetStatus(ctx context.Context, id int64, from, to Status) (bool, error)
	Ledger() ledger.TxRepository
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates purchase intake against the stock ledger.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService constructs purchases service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// Record posts a purchase. One transaction inserts the header, its items
// and one positive ledger adjustment per item. A failure on any item
// leaves no rows behind.
func (s *Service) Record(ctx context.Context, input RecordInput) (Purchase, error) {
	if err := validateInput(input.WarehouseID, input.UserID, input.Items); err != nil {
		return Purchase{}, err
	}
	number := strings.TrimSpace(input.Number)
	if number == "" {
		return Purchase{}, fmt.Errorf("%w: number required", ErrValidation)
	}

	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, "purchase:"+number, "purchases"); err != nil {
			return Purchase{}, err
		}
		insertedKey = true
	}

	date := input.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	purchase := Purchase{
		Number:      number,
		Date:        date,
		WarehouseID: input.WarehouseID,
		UserID:      input.UserID,
		Status:      StatusCompleted,
		CreatedAt:   time.Now().UTC(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if ok, err := tx.Ledger().WarehouseExists(ctx, input.WarehouseID); err != nil {
			return err
		} else if !ok {
			return ledger.ErrWarehouseNotFound
		}
		id, err := tx.InsertPurchase(ctx, purchase)
		if err != nil {
			return err
		}
		purchase.ID = id
		total, err := s.applyItems(ctx, tx, purchase, input.Items, input.UserID, ledger.ReasonTag("purchase", id))
		if err != nil {
			return err
		}
		purchase.Total = total
		return tx.UpdateTotal(ctx, id, total)
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, "purchase:"+number)
		}
		return Purchase{}, err
	}

	s.recordAudit(ctx, input.UserID, "PURCHASE_RECORD", purchase.ID, map[string]any{
		"number": number, "warehouse_id": input.WarehouseID, "items": len(input.Items), "total": purchase.Total,
	})
	return purchase, nil
}

// Amend replaces the items of a completed purchase. The same transaction
// reverses every prior adjustment before applying the new ones, so the
// ledger never double-counts the old quantities.
func (s *Service) Amend(ctx context.Context, id int64, actorID int64, items []ItemInput) (Purchase, error) {
	if len(items) == 0 {
		return Purchase{}, fmt.Errorf("%w: minimal 1 item", ErrValidation)
	}
	for _, item := range items {
		if err := validateItem(item); err != nil {
			return Purchase{}, err
		}
	}

	var purchase Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var old []Item
		var err error
		purchase, old, err = tx.GetPurchaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if purchase.Status != StatusCompleted {
			return ErrInvalidState
		}
		if err := s.reverseItems(ctx, tx, purchase, old, actorID, ledger.ReasonTag("purchase", id)+":amend"); err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, id); err != nil {
			return err
		}
		total, err := s.applyItems(ctx, tx, purchase, items, actorID, ledger.ReasonTag("purchase", id))
		if err != nil {
			return err
		}
		purchase.Total = total
		return tx.UpdateTotal(ctx, id, total)
	})
	if err != nil {
		return Purchase{}, err
	}

	s.recordAudit(ctx, actorID, "PURCHASE_AMEND", id, map[string]any{"items": len(items), "total": purchase.Total})
	return purchase, nil
}

// Cancel reverses every item adjustment and marks the purchase
// cancelled, in one transaction. Only completed purchases cancel.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		purchase, items, err := tx.GetPurchaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		flipped, err := tx.SetStatus(ctx, id, StatusCompleted, StatusCancelled)
		if err != nil {
			return err
		}
		if !flipped {
			return ErrInvalidState
		}
		return s.reverseItems(ctx, tx, purchase, items, actorID, ledger.ReasonTag("purchase", id)+":cancel")
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, actorID, "PURCHASE_CANCEL", id, nil)
	return nil
}

// Get returns a purchase with its items.
func (s *Service) Get(ctx context.Context, id int64) (Purchase, []Item, error) {
	return s.repo.GetPurchase(ctx, id)
}

// List returns purchases matching the filter plus a total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Purchase, int, error) {
	return s.repo.ListPurchases(ctx, filter)
}

func (s *Service) applyItems(ctx context.Context, tx TxRepository, purchase Purchase, items []ItemInput, actorID int64, reason string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, item := range items {
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(item.Qty))
		if err := tx.InsertItem(ctx, Item{
			PurchaseID: purchase.ID,
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			UnitPrice:  item.UnitPrice,
			LineTotal:  lineTotal,
		}); err != nil {
			return decimal.Zero, err
		}
		if _, err := ledger.ApplyTx(ctx, tx.Ledger(), ledger.AdjustmentInput{
			ProductID:   item.ProductID,
			WarehouseID: purchase.WarehouseID,
			Delta:       item.Qty,
			ActorID:     actorID,
			Reason:      reason,
		}); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(lineTotal)
	}
	return total, nil
}

func (s *Service) reverseItems(ctx context.Context, tx TxRepository, purchase Purchase, items []Item, actorID int64, reason string) error {
	for _, item := range items {
		if _, err := ledger.ApplyTx(ctx, tx.Ledger(), ledger.AdjustmentInput{
			ProductID:   item.ProductID,
			WarehouseID: purchase.WarehouseID,
			Delta:       -item.Qty,
			ActorID:     actorID,
			Reason:      reason,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID: actorID, Action: action, Entity: "purchase",
		EntityID: fmt.Sprintf("%d", entityID), Meta: meta,
	})
}

func validateInput(warehouseID, userID int64, items []ItemInput) error {
	if warehouseID == 0 || userID == 0 {
		return fmt.Errorf("%w: warehouse and user required", ErrValidation)
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: minimal 1 item", ErrValidation)
	}
	for _, item := range items {
		if err := validateItem(item); err != nil {
			return err
		}
	}
	return nil
}

func validateItem(item ItemInput) error {
	if item.ProductID == 0 {
		return fmt.Errorf("%w: product required", ErrValidation)
	}
	if item.Qty <= 0 {
		return fmt.Errorf("%w: quantity must be > 0", ErrValidation)
	}
	if item.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price must be >= 0", ErrValidation)
	}
	return nil
}
