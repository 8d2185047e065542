package warehouses

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-pos/internal/catalog/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error)
	Get(ctx context.Context, id int64) (Warehouse, error)
	Create(ctx context.Context, warehouse Warehouse) (Warehouse, error)
	Update(ctx context.Context, id int64, warehouse Warehouse) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 0
	if filters.Search != "" {
		argCount++
		where += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR location ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM warehouses`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	_, limit, offset := filters.Bounds()
	query := `SELECT id, name, location, created_at, updated_at FROM warehouses` + where + ` ORDER BY name ASC`
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var warehouses []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Name, &w.Location, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, 0, err
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	err := r.db.QueryRow(ctx, `SELECT id, name, location, created_at, updated_at FROM warehouses WHERE id = $1`, id).
		Scan(&w.ID, &w.Name, &w.Location, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, shared.ErrNotFound
		}
		return Warehouse{}, err
	}
	return w, nil
}

func (r *repository) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `INSERT INTO warehouses (name, location, created_at, updated_at)
VALUES ($1, $2, $3, $4) RETURNING id`, warehouse.Name, warehouse.Location, now, now).Scan(&warehouse.ID)
	if err != nil {
		return Warehouse{}, err
	}
	warehouse.CreatedAt = now
	warehouse.UpdatedAt = now
	return warehouse, nil
}

func (r *repository) Update(ctx context.Context, id int64, warehouse Warehouse) error {
	tag, err := r.db.Exec(ctx, `UPDATE warehouses SET name = $1, location = $2, updated_at = $3 WHERE id = $4`,
		warehouse.Name, warehouse.Location, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete refuses to remove a warehouse that ledger history references.
func (r *repository) Delete(ctx context.Context, id int64) error {
	var movements int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE warehouse_id = $1`, id).Scan(&movements); err != nil {
		return err
	}
	if movements > 0 {
		return shared.ErrInUse
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM warehouses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
