package expenses

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists expenses in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, expense Expense) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO expenses (date, warehouse_id, user_id, category, description, amount, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		expense.Date, expense.WarehouseID, expense.UserID, expense.Category,
		expense.Description, expense.Amount, expense.CreatedAt).Scan(&id)
	return id, err
}

func (r *Repository) Get(ctx context.Context, id int64) (Expense, error) {
	var expense Expense
	err := r.pool.QueryRow(ctx, `SELECT id, date, warehouse_id, user_id, category, description, amount, created_at
FROM expenses WHERE id=$1`, id).
		Scan(&expense.ID, &expense.Date, &expense.WarehouseID, &expense.UserID,
			&expense.Category, &expense.Description, &expense.Amount, &expense.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrNotFound
		}
		return Expense{}, err
	}
	return expense, nil
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Expense, int, error) {
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * perPage

	const where = `WHERE ($1 = 0 OR warehouse_id = $1) AND ($2 = '' OR category = $2)
AND date BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM expenses `+where,
		filter.WarehouseID, filter.Category, nullTime(filter.From), nullTime(filter.To)).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, date, warehouse_id, user_id, category, description, amount, created_at
FROM expenses `+where+`
ORDER BY date DESC, id DESC LIMIT $5 OFFSET $6`,
		filter.WarehouseID, filter.Category, nullTime(filter.From), nullTime(filter.To), perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	expenses := []Expense{}
	for rows.Next() {
		var expense Expense
		if err := rows.Scan(&expense.ID, &expense.Date, &expense.WarehouseID, &expense.UserID,
			&expense.Category, &expense.Description, &expense.Amount, &expense.CreatedAt); err != nil {
			return nil, 0, err
		}
		expenses = append(expenses, expense)
	}
	return expenses, total, rows.Err()
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
