package products

import "github.com/shopspring/decimal"

type ProductForm struct {
	Reference     string          `json:"reference"`
	Name          string          `json:"name"`
	CategoryID    int64           `json:"category_id"`
	Unit          string          `json:"unit"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	LowStockAt    int64           `json:"low_stock_at"`
	IsActive      bool            `json:"is_active"`
}

type PriceForm struct {
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	LowStockAt    int64           `json:"low_stock_at"`
}
