package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ApprovalAction enumerates the decision states a workflow record moves
// through.
type ApprovalAction string

const (
	ApprovalSubmit  ApprovalAction = "SUBMIT"
	ApprovalApprove ApprovalAction = "APPROVE"
	ApprovalReject  ApprovalAction = "REJECT"
)

// ApprovalLog is one row of decision history for a workflow record.
type ApprovalLog struct {
	ID      int64
	Module  string
	RefID   uuid.UUID
	ActorID int64
	Action  ApprovalAction
	Note    string
	At      time.Time
}

// ApprovalRecorder keeps the who/when/what trail behind stock audit
// decisions in the approvals table.
type ApprovalRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewApprovalRecorder constructs ApprovalRecorder.
func NewApprovalRecorder(pool *pgxpool.Pool, logger *slog.Logger) *ApprovalRecorder {
	return &ApprovalRecorder{pool: pool, logger: logger}
}

func (l ApprovalLog) validate() error {
	switch {
	case l.Module == "":
		return errors.New("approval module required")
	case l.RefID == uuid.Nil:
		return errors.New("approval ref id required")
	case l.ActorID == 0:
		return errors.New("approval actor required")
	case l.Action == "":
		return errors.New("approval action required")
	}
	return nil
}

// Record appends one decision row.
func (r *ApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil {
		return errors.New("approval recorder not initialised")
	}
	if err := log.validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor_id, action, note, at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		log.Module, log.RefID, log.ActorID, string(log.Action), log.Note, timestampOrNil(log.At))
	if err != nil {
		r.logger.Error("record approval", slog.Any("error", err))
		return err
	}
	return nil
}

// List returns the decision history for one record, oldest first.
func (r *ApprovalRecorder) List(ctx context.Context, module string, ref uuid.UUID) ([]ApprovalLog, error) {
	if r == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, module, ref_id, actor_id, action, note, at
FROM approvals WHERE module = $1 AND ref_id = $2 ORDER BY at ASC`, module, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []ApprovalLog
	for rows.Next() {
		var entry ApprovalLog
		var action string
		if err := rows.Scan(&entry.ID, &entry.Module, &entry.RefID, &entry.ActorID, &action, &entry.Note, &entry.At); err != nil {
			return nil, err
		}
		entry.Action = ApprovalAction(action)
		history = append(history, entry)
	}
	return history, rows.Err()
}

// EnsureSubmit records the submit action once, no matter how often the
// caller retries.
func (r *ApprovalRecorder) EnsureSubmit(ctx context.Context, module string, ref uuid.UUID, actorID int64, note string) error {
	if r == nil {
		return errors.New("approval recorder not initialised")
	}
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT true FROM approvals WHERE module = $1 AND ref_id = $2 AND action = 'SUBMIT' LIMIT 1`, module, ref).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.Record(ctx, ApprovalLog{Module: module, RefID: ref, ActorID: actorID, Action: ApprovalSubmit, Note: note})
	}
	return err
}
