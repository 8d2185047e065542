package reports

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrValidation = errors.New("reports: validation failed")

// StockLevelRow is one product x warehouse line of the stock view.
// Names fall back to "N/A" when the joined row is gone.
type StockLevelRow struct {
	ProductID     int64  `json:"product_id"`
	ProductRef    string `json:"product_ref"`
	ProductName   string `json:"product_name"`
	WarehouseID   int64  `json:"warehouse_id"`
	WarehouseName string `json:"warehouse_name"`
	Quantity      int64  `json:"quantity"`
	LowStockAt    int64  `json:"low_stock_at"`
	LowStock      bool   `json:"low_stock"`
	Anomaly       bool   `json:"anomaly"`
}

// StockFilter scopes the stock levels view.
type StockFilter struct {
	WarehouseID *int64
	LowOnly     bool
}

// Summary aggregates trading activity over a date window. Raw decimals
// carry the math, the string fields carry display formatting.
type Summary struct {
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	PurchaseTotal decimal.Decimal `json:"purchase_total"`
	SaleTotal     decimal.Decimal `json:"sale_total"`
	ExternalTotal decimal.Decimal `json:"external_total"`
	ExpenseTotal  decimal.Decimal `json:"expense_total"`
	Revenue       decimal.Decimal `json:"revenue"`
	GrossMargin   decimal.Decimal `json:"gross_margin"`

	PurchaseDisplay string `json:"purchase_display"`
	SaleDisplay     string `json:"sale_display"`
	ExternalDisplay string `json:"external_display"`
	ExpenseDisplay  string `json:"expense_display"`
	RevenueDisplay  string `json:"revenue_display"`
	MarginDisplay   string `json:"margin_display"`
}

// SummaryFilter scopes the accounting summary.
type SummaryFilter struct {
	From        time.Time
	To          time.Time
	WarehouseID *int64
	CategoryID  *int64
	UserID      *int64
}
