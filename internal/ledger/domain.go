package ledger

import (
	"errors"
	"fmt"
	"time"
)

// Movement is a single append-only ledger entry. Movements are never
// mutated or deleted; StockLevel is a projection of their sum.
type Movement struct {
	ID           int64
	ProductID    int64
	WarehouseID  int64
	Delta        int64
	ResultingQty int64
	ActorID      int64
	Reason       string
	CreatedAt    time.Time
	// Anomaly marks a movement whose resulting quantity went negative.
	// Negative stock is allowed but worth surfacing to callers.
	Anomaly bool
}

// StockLevel is the materialized quantity for one (product, warehouse)
// pair. It must always equal the sum of movement deltas for that key.
type StockLevel struct {
	ProductID   int64
	WarehouseID int64
	Qty         int64
	UpdatedAt   time.Time
}

// AdjustmentInput describes a request to apply one signed delta.
type AdjustmentInput struct {
	ProductID   int64
	WarehouseID int64
	Delta       int64
	ActorID     int64
	Reason      string
	// IdempotencyKey, when set, guards against double application of the
	// same adjustment across retries.
	IdempotencyKey string
}

// MovementFilter filters ledger entries for the stock card listing.
type MovementFilter struct {
	ProductID   int64
	WarehouseID int64
	From        time.Time
	To          time.Time
	Limit       int
}

var (
	// ErrZeroDelta indicates a no-op adjustment, rejected as a usage error.
	ErrZeroDelta = errors.New("ledger: delta must be non zero")
	// ErrProductNotFound indicates the referenced product does not exist.
	ErrProductNotFound = errors.New("ledger: product not found")
	// ErrWarehouseNotFound indicates the referenced warehouse does not exist.
	ErrWarehouseNotFound = errors.New("ledger: warehouse not found")
	// ErrConflict indicates the per-key serialization budget was exhausted.
	ErrConflict = errors.New("ledger: concurrent adjustment conflict")
)

// ReasonTag builds the canonical reason string for a source record,
// e.g. "purchase:42" or "audit:7".
func ReasonTag(source string, id int64) string {
	return fmt.Sprintf("%s:%d", source, id)
}
