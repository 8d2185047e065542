package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CurrentQuantity(ctx context.Context, productID, warehouseID int64) (int64, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	ListLevels(ctx context.Context, warehouseID int64) ([]StockLevel, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort claims request keys before a write and releases them
// when the write rolls back.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service owns the stock ledger. All quantity changes in the system go
// through Adjust or ApplyTx; nothing else writes stock_levels.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	anomaly     func()
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// SetAnomalyRecorder registers a callback fired whenever an adjustment
// leaves a level negative. Wiring points it at a metrics counter.
func (s *Service) SetAnomalyRecorder(fn func()) {
	s.anomaly = fn
}

// serializationRetries bounds retries on concurrent adjustment conflicts.
const serializationRetries = 3

// Adjust applies one signed delta to a (product, warehouse) pair,
// appending a movement and updating the materialized level atomically.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput) (Movement, error) {
	if err := validateAdjustment(input); err != nil {
		return Movement{}, err
	}

	insertedKey := false
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "ledger"); err != nil {
			return Movement{}, err
		}
		insertedKey = true
	}

	var movement Movement
	var err error
	for attempt := 0; attempt < serializationRetries; attempt++ {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var applyErr error
			movement, applyErr = ApplyTx(ctx, tx, input)
			return applyErr
		})
		if !isSerializationFailure(err) {
			break
		}
	}
	if isSerializationFailure(err) {
		err = ErrConflict
	}
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return Movement{}, err
	}

	if movement.Anomaly && s.anomaly != nil {
		s.anomaly()
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "ledger:adjust",
			Entity:   "stock_movement",
			EntityID: fmt.Sprintf("%d", movement.ID),
			Meta: map[string]any{
				"product_id":    input.ProductID,
				"warehouse_id":  input.WarehouseID,
				"delta":         input.Delta,
				"resulting_qty": movement.ResultingQty,
				"reason":        input.Reason,
				"anomaly":       movement.Anomaly,
			},
		})
	}
	return movement, nil
}

// ApplyTx performs the read-modify-write under an existing transaction.
// Enclosing flows use this so header rows, lines and ledger entries
// commit or roll back as one unit.
func ApplyTx(ctx context.Context, tx TxRepository, input AdjustmentInput) (Movement, error) {
	if err := validateAdjustment(input); err != nil {
		return Movement{}, err
	}
	if ok, err := tx.ProductExists(ctx, input.ProductID); err != nil {
		return Movement{}, err
	} else if !ok {
		return Movement{}, ErrProductNotFound
	}
	if ok, err := tx.WarehouseExists(ctx, input.WarehouseID); err != nil {
		return Movement{}, err
	} else if !ok {
		return Movement{}, ErrWarehouseNotFound
	}

	level, err := tx.GetLevelForUpdate(ctx, input.ProductID, input.WarehouseID)
	if err != nil && !errors.Is(err, ErrLevelNotFound) {
		return Movement{}, err
	}

	level.Qty += input.Delta
	movement := Movement{
		ProductID:    input.ProductID,
		WarehouseID:  input.WarehouseID,
		Delta:        input.Delta,
		ResultingQty: level.Qty,
		ActorID:      input.ActorID,
		Reason:       reasonOrManual(input.Reason),
		CreatedAt:    time.Now().UTC(),
		Anomaly:      level.Qty < 0,
	}
	id, err := tx.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, err
	}
	movement.ID = id
	if err := tx.UpsertLevel(ctx, level); err != nil {
		return Movement{}, err
	}
	return movement, nil
}

// CurrentQuantity returns the quantity for one key, zero when untouched.
func (s *Service) CurrentQuantity(ctx context.Context, productID, warehouseID int64) (int64, error) {
	if productID == 0 || warehouseID == 0 {
		return 0, errors.New("ledger: product and warehouse required")
	}
	return s.repo.CurrentQuantity(ctx, productID, warehouseID)
}

// ListMovements lists ledger entries for one key and window.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.ProductID == 0 || filter.WarehouseID == 0 {
		return nil, errors.New("ledger: product and warehouse required")
	}
	return s.repo.ListMovements(ctx, filter)
}

// ListLevels lists materialized levels, optionally for one warehouse.
func (s *Service) ListLevels(ctx context.Context, warehouseID int64) ([]StockLevel, error) {
	return s.repo.ListLevels(ctx, warehouseID)
}

func validateAdjustment(input AdjustmentInput) error {
	if input.ProductID == 0 || input.WarehouseID == 0 {
		return errors.New("ledger: product and warehouse required")
	}
	if input.Delta == 0 {
		return ErrZeroDelta
	}
	return nil
}

func reasonOrManual(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "manual"
	}
	return reason
}

func isSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
