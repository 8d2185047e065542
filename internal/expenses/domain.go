package expenses

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Expense is a cash outflow outside purchasing, fed into the accounting
// summary.
type Expense struct {
	ID          int64
	Date        time.Time
	WarehouseID int64
	UserID      int64
	Category    string
	Description string
	Amount      decimal.Decimal
	CreatedAt   time.Time
}

// Input describes an expense to record.
type Input struct {
	Date        time.Time
	WarehouseID int64
	UserID      int64
	Category    string
	Description string
	Amount      decimal.Decimal
}

// ListFilter restricts expense listings.
type ListFilter struct {
	WarehouseID int64
	Category    string
	From        time.Time
	To          time.Time
	Page        int
	PerPage     int
}

var (
	// ErrNotFound indicates the expense does not exist.
	ErrNotFound = errors.New("expenses: expense not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("expenses: invalid input")
)
