package sales

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
	GetSale(ctx context.Context, id int64) (Sale, []Line, error)
	GetExternalSale(ctx context.Context, id int64) (ExternalSale, []Line, error)
	ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error)
	ListExternalSales(ctx context.Context, filter ListFilter) ([]ExternalSale, int, error)
}

// TxRepository exposes transactional sale operations. Ledger returns a
// ledger view bound to the same transaction.
type TxRepository interface {
	InsertSale(ctx context.Context, sale Sale) (int64, error)
	InsertExternalSale(ctx context.Context, sale ExternalSale) (int64, error)
	InsertSaleLine(ctx context.Context, line Line) error
	InsertExternalLine(ctx context.Context, line Line) error
	UpdateSaleTotal(ctx context.Context, id int64, total decimal.Decimal) error
	UpdateExternalTotal(ctx context.Context, id int64, total decimal.Decimal) error
	// ListPrice returns the product's current sale price.
	ListPrice(ctx context.Context, productID int64) (decimal.Decimal, error)
	Ledger() ledger.TxRepository
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service records sales against the stock ledger.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs sales service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Record posts a regular sale. Lines always charge the product's list
// price; one transaction inserts the sale, its lines and one negative
// ledger adjustment per line.
func (s *Service) Record(ctx context.Context, input RecordInput) (Sale, error) {
	if err := validateLines(input.WarehouseID, input.UserID, input.Lines); err != nil {
		return Sale{}, err
	}

	sale := Sale{
		Date:        dateOrNow(input.Date),
		WarehouseID: input.WarehouseID,
		UserID:      input.UserID,
		CreatedAt:   time.Now().UTC(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if ok, err := tx.Ledger().WarehouseExists(ctx, input.WarehouseID); err != nil {
			return err
		} else if !ok {
			return ledger.ErrWarehouseNotFound
		}
		id, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = id
		total := decimal.Zero
		for _, line := range input.Lines {
			price, err := tx.ListPrice(ctx, line.ProductID)
			if err != nil {
				return err
			}
			lineTotal := price.Mul(decimal.NewFromInt(line.Qty))
			if err := tx.InsertSaleLine(ctx, Line{
				SaleID: id, ProductID: line.ProductID, Qty: line.Qty,
				UnitPrice: price, LineTotal: lineTotal,
			}); err != nil {
				return err
			}
			if _, err := ledger.ApplyTx(ctx, tx.Ledger(), ledger.AdjustmentInput{
				ProductID:   line.ProductID,
				WarehouseID: input.WarehouseID,
				Delta:       -line.Qty,
				ActorID:     input.UserID,
				Reason:      ledger.ReasonTag("sale", id),
			}); err != nil {
				return err
			}
			total = total.Add(lineTotal)
		}
		sale.Total = total
		return tx.UpdateSaleTotal(ctx, id, total)
	})
	if err != nil {
		return Sale{}, err
	}

	s.recordAudit(ctx, input.UserID, "SALE_RECORD", "sale", sale.ID, map[string]any{
		"warehouse_id": input.WarehouseID, "lines": len(input.Lines), "total": sale.Total,
	})
	return sale, nil
}

// RecordExternal posts a negotiated-price sale. Any line priced below
// the product's list price needs an authorizing manager; the manager id
// is stamped on the row.
func (s *Service) RecordExternal(ctx context.Context, input ExternalInput) (ExternalSale, error) {
	if err := validateLines(input.WarehouseID, input.UserID, input.Lines); err != nil {
		return ExternalSale{}, err
	}
	customer := strings.TrimSpace(input.CustomerName)
	if customer == "" {
		return ExternalSale{}, fmt.Errorf("%w: customer name required", ErrValidation)
	}
	for _, line := range input.Lines {
		if line.UnitPrice.IsNegative() {
			return ExternalSale{}, fmt.Errorf("%w: unit price must be >= 0", ErrValidation)
		}
	}

	sale := ExternalSale{
		Date:         dateOrNow(input.Date),
		WarehouseID:  input.WarehouseID,
		UserID:       input.UserID,
		CustomerName: customer,
		CreatedAt:    time.Now().UTC(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if ok, err := tx.Ledger().WarehouseExists(ctx, input.WarehouseID); err != nil {
			return err
		} else if !ok {
			return ledger.ErrWarehouseNotFound
		}

		undercut := false
		for _, line := range input.Lines {
			listPrice, err := tx.ListPrice(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if line.UnitPrice.LessThan(listPrice) {
				undercut = true
			}
		}
		if undercut {
			if input.AuthorizedBy == 0 {
				return ErrUnauthorizedPrice
			}
			sale.AuthorizedBy = input.AuthorizedBy
		}

		id, err := tx.InsertExternalSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = id
		total := decimal.Zero
		for _, line := range input.Lines {
			lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(line.Qty))
			if err := tx.InsertExternalLine(ctx, Line{
				SaleID: id, ProductID: line.ProductID, Qty: line.Qty,
				UnitPrice: line.UnitPrice, LineTotal: lineTotal,
			}); err != nil {
				return err
			}
			if _, err := ledger.ApplyTx(ctx, tx.Ledger(), ledger.AdjustmentInput{
				ProductID:   line.ProductID,
				WarehouseID: input.WarehouseID,
				Delta:       -line.Qty,
				ActorID:     input.UserID,
				Reason:      ledger.ReasonTag("external_sale", id),
			}); err != nil {
				return err
			}
			total = total.Add(lineTotal)
		}
		sale.Total = total
		return tx.UpdateExternalTotal(ctx, id, total)
	})
	if err != nil {
		return ExternalSale{}, err
	}

	s.recordAudit(ctx, input.UserID, "EXTERNAL_SALE_RECORD", "external_sale", sale.ID, map[string]any{
		"warehouse_id": input.WarehouseID, "customer": customer,
		"authorized_by": sale.AuthorizedBy, "total": sale.Total,
	})
	return sale, nil
}

// Get returns a sale with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Sale, []Line, error) {
	return s.repo.GetSale(ctx, id)
}

// GetExternal returns an external sale with its lines.
func (s *Service) GetExternal(ctx context.Context, id int64) (ExternalSale, []Line, error) {
	return s.repo.GetExternalSale(ctx, id)
}

// List returns sales matching the filter plus a total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	return s.repo.ListSales(ctx, filter)
}

// ListExternal returns external sales matching the filter plus a count.
func (s *Service) ListExternal(ctx context.Context, filter ListFilter) ([]ExternalSale, int, error) {
	return s.repo.ListExternalSales(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID: actorID, Action: action, Entity: entity,
		EntityID: fmt.Sprintf("%d", entityID), Meta: meta,
	})
}

func validateLines(warehouseID, userID int64, lines []LineInput) error {
	if warehouseID == 0 || userID == 0 {
		return fmt.Errorf("%w: warehouse and user required", ErrValidation)
	}
	if len(lines) == 0 {
		return fmt.Errorf("%w: minimal 1 line", ErrValidation)
	}
	for _, line := range lines {
		if line.ProductID == 0 {
			return fmt.Errorf("%w: product required", ErrValidation)
		}
		if line.Qty <= 0 {
			return fmt.Errorf("%w: quantity must be > 0", ErrValidation)
		}
	}
	return nil
}

func dateOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
