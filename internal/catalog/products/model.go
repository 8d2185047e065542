package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog product. Reference is the unique
// merchant-facing code; identity fields stay immutable after creation.
type Product struct {
	ID            int64           `json:"id"`
	Reference     string          `json:"reference"`
	Name          string          `json:"name"`
	CategoryID    int64           `json:"category_id"`
	Unit          string          `json:"unit"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	LowStockAt    int64           `json:"low_stock_at"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
