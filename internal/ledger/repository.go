package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the ledger operations valid inside a transaction.
type TxRepository interface {
	ProductExists(ctx context.Context, productID int64) (bool, error)
	WarehouseExists(ctx context.Context, warehouseID int64) (bool, error)
	GetLevelForUpdate(ctx context.Context, productID, warehouseID int64) (StockLevel, error)
	UpsertLevel(ctx context.Context, level StockLevel) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
}

// ErrLevelNotFound indicates no stock level row exists yet for the key.
var ErrLevelNotFound = errors.New("ledger: stock level not found")

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an existing transaction so enclosing flows
// (purchase intake, audit approval) share one atomic unit with the ledger.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
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

// CurrentQuantity reads the materialized quantity, zero for untouched pairs.
func (r *Repository) CurrentQuantity(ctx context.Context, productID, warehouseID int64) (int64, error) {
	if r == nil {
		return 0, errors.New("ledger repository not initialised")
	}
	var qty int64
	err := r.pool.QueryRow(ctx, `SELECT qty FROM stock_levels WHERE product_id=$1 AND warehouse_id=$2`, productID, warehouseID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return qty, nil
}

// ListMovements returns ledger entries for one key, oldest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, warehouse_id, delta, resulting_qty, actor_id, reason, created_at
FROM stock_movements
WHERE product_id=$1 AND warehouse_id=$2 AND created_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY created_at ASC, id ASC
LIMIT $5`, filter.ProductID, filter.WarehouseID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.WarehouseID, &m.Delta, &m.ResultingQty, &m.ActorID, &m.Reason, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Anomaly = m.ResultingQty < 0
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

// ListLevels returns every materialized stock level, for reporting.
func (r *Repository) ListLevels(ctx context.Context, warehouseID int64) ([]StockLevel, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT product_id, warehouse_id, qty, updated_at
FROM stock_levels
WHERE ($1 = 0 OR warehouse_id = $1)
ORDER BY warehouse_id ASC, product_id ASC`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	levels := []StockLevel{}
	for rows.Next() {
		var l StockLevel
		if err := rows.Scan(&l.ProductID, &l.WarehouseID, &l.Qty, &l.UpdatedAt); err != nil {
			return nil, err
		}
		levels = append(levels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return levels, nil
}

func (r *txRepository) ProductExists(ctx context.Context, productID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id=$1)`, productID).Scan(&exists)
	return exists, err
}

func (r *txRepository) WarehouseExists(ctx context.Context, warehouseID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM warehouses WHERE id=$1)`, warehouseID).Scan(&exists)
	return exists, err
}

func (r *txRepository) GetLevelForUpdate(ctx context.Context, productID, warehouseID int64) (StockLevel, error) {
	var level StockLevel
	err := r.tx.QueryRow(ctx, `SELECT product_id, warehouse_id, qty, updated_at FROM stock_levels
WHERE product_id=$1 AND warehouse_id=$2 FOR UPDATE`, productID, warehouseID).
		Scan(&level.ProductID, &level.WarehouseID, &level.Qty, &level.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLevel{ProductID: productID, WarehouseID: warehouseID}, ErrLevelNotFound
		}
		return StockLevel{}, err
	}
	return level, nil
}

func (r *txRepository) UpsertLevel(ctx context.Context, level StockLevel) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_levels (product_id, warehouse_id, qty, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (product_id, warehouse_id) DO UPDATE SET qty=EXCLUDED.qty, updated_at=NOW()`,
		level.ProductID, level.WarehouseID, level.Qty)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, warehouse_id, delta, resulting_qty, actor_id, reason, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		movement.ProductID, movement.WarehouseID, movement.Delta, movement.ResultingQty,
		nullInt(movement.ActorID), movement.Reason, movement.CreatedAt).Scan(&id)
	return id, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
