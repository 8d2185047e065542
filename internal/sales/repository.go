package sales

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
)

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetSale loads a sale with its lines.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, []Line, error) {
	var sale Sale
	err := r.pool.QueryRow(ctx, `SELECT id, date, warehouse_id, user_id, total, created_at
FROM sales WHERE id=$1`, id).
		Scan(&sale.ID, &sale.Date, &sale.WarehouseID, &sale.UserID, &sale.Total, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, nil, ErrNotFound
		}
		return Sale{}, nil, err
	}
	lines, err := r.queryLines(ctx, `SELECT id, sale_id, product_id, qty, unit_price, line_total
FROM sale_lines WHERE sale_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Sale{}, nil, err
	}
	return sale, lines, nil
}

// GetExternalSale loads an external sale with its lines.
func (r *Repository) GetExternalSale(ctx context.Context, id int64) (ExternalSale, []Line, error) {
	var sale ExternalSale
	err := r.pool.QueryRow(ctx, `SELECT id, date, warehouse_id, user_id, customer_name, COALESCE(authorized_by, 0), total, created_at
FROM external_sales WHERE id=$1`, id).
		Scan(&sale.ID, &sale.Date, &sale.WarehouseID, &sale.UserID, &sale.CustomerName, &sale.AuthorizedBy, &sale.Total, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ExternalSale{}, nil, ErrNotFound
		}
		return ExternalSale{}, nil, err
	}
	lines, err := r.queryLines(ctx, `SELECT id, sale_id, product_id, qty, unit_price, line_total
FROM external_sale_lines WHERE sale_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return ExternalSale{}, nil, err
	}
	return sale, lines, nil
}

// ListSales returns sales matching the filter with a total count.
func (r *Repository) ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	perPage, offset := pageBounds(filter)
	const where = `WHERE ($1 = 0 OR warehouse_id = $1)
AND date BETWEEN COALESCE($2, '-infinity') AND COALESCE($3, 'infinity')`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales `+where,
		filter.WarehouseID, nullTime(filter.From), nullTime(filter.To)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, date, warehouse_id, user_id, total, created_at
FROM sales `+where+`
ORDER BY date DESC, id DESC LIMIT $4 OFFSET $5`,
		filter.WarehouseID, nullTime(filter.From), nullTime(filter.To), perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	sales := []Sale{}
	for rows.Next() {
		var sale Sale
		if err := rows.Scan(&sale.ID, &sale.Date, &sale.WarehouseID, &sale.UserID, &sale.Total, &sale.CreatedAt); err != nil {
			return nil, 0, err
		}
		sales = append(sales, sale)
	}
	return sales, total, rows.Err()
}

// ListExternalSales returns external sales matching the filter.
func (r *Repository) ListExternalSales(ctx context.Context, filter ListFilter) ([]ExternalSale, int, error) {
	perPage, offset := pageBounds(filter)
	const where = `WHERE ($1 = 0 OR warehouse_id = $1)
AND date BETWEEN COALESCE($2, '-infinity') AND COALESCE($3, 'infinity')`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM external_sales `+where,
		filter.WarehouseID, nullTime(filter.From), nullTime(filter.To)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, date, warehouse_id, user_id, customer_name, COALESCE(authorized_by, 0), total, created_at
FROM external_sales `+where+`
ORDER BY date DESC, id DESC LIMIT $4 OFFSET $5`,
		filter.WarehouseID, nullTime(filter.From), nullTime(filter.To), perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	sales := []ExternalSale{}
	for rows.Next() {
		var sale ExternalSale
		if err := rows.Scan(&sale.ID, &sale.Date, &sale.WarehouseID, &sale.UserID, &sale.CustomerName, &sale.AuthorizedBy, &sale.Total, &sale.CreatedAt); err != nil {
			return nil, 0, err
		}
		sales = append(sales, sale)
	}
	return sales, total, rows.Err()
}

func (r *txRepository) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales (date, warehouse_id, user_id, total, created_at)
VALUES ($1,$2,$3,0,$4) RETURNING id`,
		sale.Date, sale.WarehouseID, sale.UserID, sale.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertExternalSale(ctx context.Context, sale ExternalSale) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO external_sales (date, warehouse_id, user_id, customer_name, authorized_by, total, created_at)
VALUES ($1,$2,$3,$4,NULLIF($5,0),0,$6) RETURNING id`,
		sale.Date, sale.WarehouseID, sale.UserID, sale.CustomerName, sale.AuthorizedBy, sale.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertSaleLine(ctx context.Context, line Line) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO sale_lines (sale_id, product_id, qty, unit_price, line_total)
VALUES ($1,$2,$3,$4,$5)`, line.SaleID, line.ProductID, line.Qty, line.UnitPrice, line.LineTotal)
	return err
}

func (r *txRepository) InsertExternalLine(ctx context.Context, line Line) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO external_sale_lines (sale_id, product_id, qty, unit_price, line_total)
VALUES ($1,$2,$3,$4,$5)`, line.SaleID, line.ProductID, line.Qty, line.UnitPrice, line.LineTotal)
	return err
}

func (r *txRepository) UpdateSaleTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales SET total=$2 WHERE id=$1`, id, total)
	return err
}

func (r *txRepository) UpdateExternalTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE external_sales SET total=$2 WHERE id=$1`, id, total)
	return err
}

func (r *txRepository) ListPrice(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT sale_price FROM products WHERE id=$1`, productID).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ledger.ErrProductNotFound
		}
		return decimal.Zero, err
	}
	return price, nil
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(r.tx)
}

func (r *Repository) queryLines(ctx context.Context, sql string, saleID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, sql, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ProductID, &line.Qty, &line.UnitPrice, &line.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func pageBounds(filter ListFilter) (perPage, offset int) {
	perPage = filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	return perPage, (page - 1) * perPage
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
