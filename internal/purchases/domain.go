package purchases

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the purchase lifecycle.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusPending   Status = "PENDING"
	StatusCancelled Status = "CANCELLED"
)

// Purchase is an intake header. Total is derived from its items and
// recomputed on every amendment.
type Purchase struct {
	ID          int64
	Number      string
	Date        time.Time
	WarehouseID int64
	UserID      int64
	Status      Status
	Total       decimal.Decimal
	CreatedAt   time.Time
}

// Item is one purchased product line.
type Item struct {
	ID         int64
	PurchaseID int64
	ProductID  int64
	Qty        int64
	UnitPrice  decimal.Decimal
	LineTotal  decimal.Decimal
}

// ItemInput describes one line in an intake or amendment request.
type ItemInput struct {
	ProductID int64
	Qty       int64
	UnitPrice decimal.Decimal
}

// RecordInput describes a purchase intake request.
type RecordInput struct {
	Number      string
	Date        time.Time
	WarehouseID int64
	UserID      int64
	Items       []ItemInput
}

// ListFilter restricts purchase listings.
type ListFilter struct {
	WarehouseID int64
	Status      Status
	From        time.Time
	To          time.Time
	Page        int
	PerPage     int
}

var (
	// ErrNotFound indicates the purchase does not exist.
	ErrNotFound = errors.New("purchases: purchase not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("purchases: invalid input")
	// ErrInvalidState occurs when amending or cancelling a purchase whose
	// status forbids the action.
	ErrInvalidState = errors.New("purchases: invalid state transition")
)
