package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Sale is a point-of-sale transaction at list prices.
type Sale struct {
	ID          int64
	Date        time.Time
	WarehouseID int64
	UserID      int64
	Total       decimal.Decimal
	CreatedAt   time.Time
}

// ExternalSale is a negotiated-price sale to a named customer. When the
// negotiated price undercuts the product's list price, the manager who
// authorized the discount is recorded on the row.
type ExternalSale struct {
	ID           int64
	Date         time.Time
	WarehouseID  int64
	UserID       int64
	CustomerName string
	AuthorizedBy int64
	Total        decimal.Decimal
	CreatedAt    time.Time
}

// Line is one sold product within either sale kind.
type Line struct {
	ID        int64
	SaleID    int64
	ProductID int64
	Qty       int64
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// LineInput describes one product line in a sale request.
type LineInput struct {
	ProductID int64
	Qty       int64
	// UnitPrice is only honoured for external sales; regular sales
	// always charge the product's list price.
	UnitPrice decimal.Decimal
}

// RecordInput describes a regular sale request.
type RecordInput struct {
	Date        time.Time
	WarehouseID int64
	UserID      int64
	Lines       []LineInput
}

// ExternalInput describes an external sale request.
type ExternalInput struct {
	Date         time.Time
	WarehouseID  int64
	UserID       int64
	CustomerName string
	Lines        []LineInput
	// AuthorizedBy is the manager approving below-list pricing, zero
	// when no line undercuts the list price.
	AuthorizedBy int64
}

// ListFilter restricts sale listings.
type ListFilter struct {
	WarehouseID int64
	From        time.Time
	To          time.Time
	Page        int
	PerPage     int
}

var (
	// ErrNotFound indicates the sale does not exist.
	ErrNotFound = errors.New("sales: sale not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("sales: invalid input")
	// ErrUnauthorizedPrice occurs when a below-list price lacks manager
	// authorization.
	ErrUnauthorizedPrice = errors.New("sales: below-list price requires authorization")
)
