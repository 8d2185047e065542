package purchases

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
)

// Repository persists purchases in PostgreSQL.
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
		return errors.New("purchases repository not initialised")
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

// GetPurchase loads a purchase header with its items.
func (r *Repository) GetPurchase(ctx context.Context, id int64) (Purchase, []Item, error) {
	if r == nil {
		return Purchase{}, nil, errors.New("purchases repository not initialised")
	}
	purchase, err := scanPurchase(r.pool.QueryRow(ctx, `SELECT id, number, date, warehouse_id, user_id, status, total, created_at
FROM purchases WHERE id=$1`, id))
	if err != nil {
		return Purchase{}, nil, err
	}
	items, err := queryItems(ctx, r.pool, id)
	if err != nil {
		return Purchase{}, nil, err
	}
	return purchase, items, nil
}

// ListPurchases returns purchases matching the filter with a total count.
func (r *Repository) ListPurchases(ctx context.Context, filter ListFilter) ([]Purchase, int, error) {
	if r == nil {
		return nil, 0, errors.New("purchases repository not initialised")
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * perPage

	const where = `WHERE ($1 = 0 OR warehouse_id = $1) AND ($2 = '' OR status = $2)
AND date BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchases `+where,
		filter.WarehouseID, string(filter.Status), nullTime(filter.From), nullTime(filter.To)).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, number, date, warehouse_id, user_id, status, total, created_at
FROM purchases `+where+`
ORDER BY date DESC, id DESC
LIMIT $5 OFFSET $6`, filter.WarehouseID, string(filter.Status), nullTime(filter.From), nullTime(filter.To), perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	purchases := []Purchase{}
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, 0, err
		}
		purchases = append(purchases, purchase)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return purchases, total, nil
}

func (r *txRepository) GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, []Item, error) {
	purchase, err := scanPurchase(r.tx.QueryRow(ctx, `SELECT id, number, date, warehouse_id, user_id, status, total, created_at
FROM purchases WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Purchase{}, nil, err
	}
	items, err := queryItems(ctx, r.tx, id)
	if err != nil {
		return Purchase{}, nil, err
	}
	return purchase, items, nil
}

func (r *txRepository) InsertPurchase(ctx context.Context, purchase Purchase) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchases (number, date, warehouse_id, user_id, status, total, created_at)
VALUES ($1,$2,$3,$4,$5,0,$6) RETURNING id`,
		purchase.Number, purchase.Date, purchase.WarehouseID, purchase.UserID, string(purchase.Status), purchase.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertItem(ctx context.Context, item Item) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_items (purchase_id, product_id, qty, unit_price, line_total)
VALUES ($1,$2,$3,$4,$5)`, item.PurchaseID, item.ProductID, item.Qty, item.UnitPrice, item.LineTotal)
	return err
}

func (r *txRepository) DeleteItems(ctx context.Context, purchaseID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM purchase_items WHERE purchase_id=$1`, purchaseID)
	return err
}

func (r *txRepository) UpdateTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchases SET total=$2 WHERE id=$1`, id, total)
	return err
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE purchases SET status=$3 WHERE id=$1 AND status=$2`,
		id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(r.tx)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanPurchase(row pgx.Row) (Purchase, error) {
	var purchase Purchase
	var status string
	err := row.Scan(&purchase.ID, &purchase.Number, &purchase.Date, &purchase.WarehouseID,
		&purchase.UserID, &status, &purchase.Total, &purchase.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, ErrNotFound
		}
		return Purchase{}, err
	}
	purchase.Status = Status(status)
	return purchase, nil
}

func queryItems(ctx context.Context, q querier, purchaseID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, purchase_id, product_id, qty, unit_price, line_total
FROM purchase_items WHERE purchase_id=$1 ORDER BY id ASC`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.PurchaseID, &item.ProductID, &item.Qty, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
