package reports

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RepositoryPort defines the read-only queries behind the views.
type RepositoryPort interface {
	StockLevels(ctx context.Context, filter StockFilter) ([]StockLevelRow, error)
	AccountingTotals(ctx context.Context, filter SummaryFilter) (Totals, error)
}

// Totals carries the raw aggregates of one summary window.
type Totals struct {
	Purchases decimal.Decimal
	Sales     decimal.Decimal
	External  decimal.Decimal
	Expenses  decimal.Decimal
}

// Repository runs the view queries against PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// StockLevels joins levels against the catalog. LEFT JOIN keeps rows
// whose product or warehouse was removed so the view never fails on a
// missing join.
func (r *Repository) StockLevels(ctx context.Context, filter StockFilter) ([]StockLevelRow, error) {
	query := `SELECT sl.product_id,
       COALESCE(p.reference, 'N/A'),
       COALESCE(p.name, 'N/A'),
       sl.warehouse_id,
       COALESCE(w.name, 'N/A'),
       sl.qty,
       COALESCE(p.low_stock_at, 0)
FROM stock_levels sl
LEFT JOIN products p ON p.id = sl.product_id
LEFT JOIN warehouses w ON w.id = sl.warehouse_id`
	args := []any{}
	if filter.WarehouseID != nil {
		query += ` WHERE sl.warehouse_id = $1`
		args = append(args, *filter.WarehouseID)
	}
	query += ` ORDER BY sl.warehouse_id, sl.product_id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StockLevelRow
	for rows.Next() {
		var row StockLevelRow
		if err := rows.Scan(&row.ProductID, &row.ProductRef, &row.ProductName,
			&row.WarehouseID, &row.WarehouseName, &row.Quantity, &row.LowStockAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// AccountingTotals sums each transaction table over the window. Every
// aggregate uses COALESCE so an empty table yields zero instead of
// NULL.
func (r *Repository) AccountingTotals(ctx context.Context, filter SummaryFilter) (Totals, error) {
	var totals Totals
	if err := r.sumHeader(ctx, &totals.Purchases, "purchases", "purchase_items", "purchase_id", filter, ` AND h.status <> 'CANCELLED'`); err != nil {
		return Totals{}, err
	}
	if err := r.sumHeader(ctx, &totals.Sales, "sales", "sale_lines", "sale_id", filter, ``); err != nil {
		return Totals{}, err
	}
	if err := r.sumHeader(ctx, &totals.External, "external_sales", "external_sale_lines", "sale_id", filter, ``); err != nil {
		return Totals{}, err
	}
	if err := r.sumExpenses(ctx, &totals.Expenses, filter); err != nil {
		return Totals{}, err
	}
	return totals, nil
}

// sumHeader totals one header table, optionally narrowing by warehouse,
// user and, through the line table, product category.
func (r *Repository) sumHeader(ctx context.Context, dest *decimal.Decimal, header, lines, lineFK string, filter SummaryFilter, extra string) error {
	query := `SELECT COALESCE(SUM(h.total), 0) FROM ` + header + ` h WHERE h.date >= $1 AND h.date <= $2` + extra
	args := []any{filter.From, filter.To}
	if filter.WarehouseID != nil {
		args = append(args, *filter.WarehouseID)
		query += ` AND h.warehouse_id = $` + strconv.Itoa(len(args))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		query += ` AND h.user_id = $` + strconv.Itoa(len(args))
	}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		query += ` AND EXISTS (SELECT 1 FROM ` + lines + ` l JOIN products p ON p.id = l.product_id WHERE l.` + lineFK + ` = h.id AND p.category_id = $` + strconv.Itoa(len(args)) + `)`
	}
	return r.pool.QueryRow(ctx, query, args...).Scan(dest)
}

func (r *Repository) sumExpenses(ctx context.Context, dest *decimal.Decimal, filter SummaryFilter) error {
	query := `SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE date >= $1 AND date <= $2`
	args := []any{filter.From, filter.To}
	if filter.WarehouseID != nil {
		args = append(args, *filter.WarehouseID)
		query += ` AND warehouse_id = $` + strconv.Itoa(len(args))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		query += ` AND user_id = $` + strconv.Itoa(len(args))
	}
	return r.pool.QueryRow(ctx, query, args...).Scan(dest)
}
