package stockaudit

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the submission lifecycle. Pending is the only
// non-terminal state; a submission is resolved exactly once.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Decision is the manager's resolution choice.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// Submission is a controller's counted-stock snapshot awaiting resolution.
type Submission struct {
	ID              int64
	WarehouseID     int64
	ControllerID    int64
	Status          Status
	ControllerNotes string
	ManagerNotes    string
	ManagerID       int64
	SubmittedAt     time.Time
	ResolvedAt      time.Time
}

// Line is one counted product within a submission. Product identity is
// snapshotted so the line stays readable if the catalog changes later.
type Line struct {
	ID               int64
	SubmissionID     int64
	ProductID        int64
	ProductReference string
	ProductName      string
	CountedQty       int64
	// Proposed prices from the controller, optional; the manager sets the
	// authoritative prices at approval.
	ProposedPurchasePrice decimal.Decimal
	ProposedSalePrice     decimal.Decimal
}

// SubmitInput describes a controller submission.
type SubmitInput struct {
	WarehouseID  int64
	ControllerID int64
	Notes        string
	Lines        []SubmitLineInput
}

// SubmitLineInput is one counted product in a submission request.
type SubmitLineInput struct {
	ProductID             int64
	CountedQty            int64
	ProposedPurchasePrice decimal.Decimal
	ProposedSalePrice     decimal.Decimal
}

// ResolveInput describes the manager's terminal decision.
type ResolveInput struct {
	SubmissionID int64
	ManagerID    int64
	Decision     Decision
	Notes        string
	// Prices are required per line when approving, ignored when rejecting.
	Prices map[int64]LinePrices
}

// LinePrices carries the manager-approved prices for one product.
type LinePrices struct {
	PurchasePrice decimal.Decimal
	SalePrice     decimal.Decimal
}

// Resolution summarises what an approval changed.
type Resolution struct {
	SubmissionID int64
	Status       Status
	// Deltas maps product id to the ledger delta applied at approval.
	Deltas map[int64]int64
}

// ListFilter restricts submission listings.
type ListFilter struct {
	WarehouseID int64
	Status      Status
	Page        int
	PerPage     int
}

var (
	// ErrNotFound indicates the submission does not exist.
	ErrNotFound = errors.New("stockaudit: submission not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("stockaudit: invalid input")
	// ErrInvalidState occurs when resolving or deleting a submission in a
	// state that forbids the action.
	ErrInvalidState = errors.New("stockaudit: invalid state transition")
)
