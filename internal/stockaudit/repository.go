package stockaudit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
)

// Repository persists audit submissions in PostgreSQL.
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
		return errors.New("stockaudit repository not initialised")
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

// GetSubmission loads a submission header and its lines.
func (r *Repository) GetSubmission(ctx context.Context, id int64) (Submission, []Line, error) {
	if r == nil {
		return Submission{}, nil, errors.New("stockaudit repository not initialised")
	}
	var sub Submission
	var status string
	var managerID *int64
	var resolvedAt *time.Time
	err := r.pool.QueryRow(ctx, `SELECT id, warehouse_id, controller_id, status, controller_notes, manager_notes, manager_id, submitted_at, resolved_at
FROM stock_audits WHERE id=$1`, id).
		Scan(&sub.ID, &sub.WarehouseID, &sub.ControllerID, &status, &sub.ControllerNotes, &sub.ManagerNotes, &managerID, &sub.SubmittedAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Submission{}, nil, ErrNotFound
		}
		return Submission{}, nil, err
	}
	sub.Status = Status(status)
	if managerID != nil {
		sub.ManagerID = *managerID
	}
	if resolvedAt != nil {
		sub.ResolvedAt = *resolvedAt
	}

	rows, err := r.pool.Query(ctx, `SELECT id, audit_id, product_id, product_reference, product_name, counted_qty, proposed_purchase_price, proposed_sale_price
FROM stock_audit_lines WHERE audit_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Submission{}, nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.SubmissionID, &line.ProductID, &line.ProductReference, &line.ProductName,
			&line.CountedQty, &line.ProposedPurchasePrice, &line.ProposedSalePrice); err != nil {
			return Submission{}, nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return Submission{}, nil, err
	}
	return sub, lines, nil
}

// ListSubmissions returns submissions matching the filter with a total count.
func (r *Repository) ListSubmissions(ctx context.Context, filter ListFilter) ([]Submission, int, error) {
	if r == nil {
		return nil, 0, errors.New("stockaudit repository not initialised")
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

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_audits
WHERE ($1 = 0 OR warehouse_id = $1) AND ($2 = '' OR status = $2)`, filter.WarehouseID, string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, warehouse_id, controller_id, status, controller_notes, manager_notes, COALESCE(manager_id, 0), submitted_at, COALESCE(resolved_at, 'epoch')
FROM stock_audits
WHERE ($1 = 0 OR warehouse_id = $1) AND ($2 = '' OR status = $2)
ORDER BY submitted_at DESC, id DESC
LIMIT $3 OFFSET $4`, filter.WarehouseID, string(filter.Status), perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	subs := []Submission{}
	for rows.Next() {
		var sub Submission
		var status string
		if err := rows.Scan(&sub.ID, &sub.WarehouseID, &sub.ControllerID, &status, &sub.ControllerNotes, &sub.ManagerNotes, &sub.ManagerID, &sub.SubmittedAt, &sub.ResolvedAt); err != nil {
			return nil, 0, err
		}
		sub.Status = Status(status)
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

func (r *txRepository) InsertSubmission(ctx context.Context, submission Submission) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_audits (warehouse_id, controller_id, status, controller_notes, manager_notes, submitted_at)
VALUES ($1,$2,$3,$4,'',$5) RETURNING id`,
		submission.WarehouseID, submission.ControllerID, string(submission.Status), submission.ControllerNotes, submission.SubmittedAt).Scan(&id)
	return id, err
}

// InsertLine snapshots product identity from the catalog at insert time.
func (r *txRepository) InsertLine(ctx context.Context, line Line) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_audit_lines (audit_id, product_id, product_reference, product_name, counted_qty, proposed_purchase_price, proposed_sale_price)
SELECT $1, p.id, p.reference, p.name, $3, $4, $5 FROM products p WHERE p.id = $2`,
		line.SubmissionID, line.ProductID, line.CountedQty, line.ProposedPurchasePrice, line.ProposedSalePrice)
	return err
}

func (r *txRepository) MarkResolved(ctx context.Context, id int64, status Status, managerID int64, notes string, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_audits
SET status=$2, manager_id=$3, manager_notes=$4, resolved_at=$5
WHERE id=$1 AND status=$6`, id, string(status), managerID, notes, at, string(StatusPending))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) UpdateProductPrices(ctx context.Context, productID int64, prices LinePrices) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET purchase_price=$2, sale_price=$3, updated_at=NOW() WHERE id=$1`,
		productID, prices.PurchasePrice, prices.SalePrice)
	return err
}

func (r *txRepository) DeleteSubmission(ctx context.Context, id int64) error {
	// Lock the header and re-check the status under the lock; a
	// concurrent approval must never race an unconditional delete.
	var status string
	err := r.tx.QueryRow(ctx, `SELECT status FROM stock_audits WHERE id=$1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if Status(status) == StatusApproved {
		return ErrInvalidState
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM stock_audit_lines WHERE audit_id=$1`, id); err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `DELETE FROM stock_audits WHERE id=$1`, id)
	return err
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(r.tx)
}
