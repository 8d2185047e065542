package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskLowStockScan walks stock levels and records an alert per
	// product at or below its threshold.
	TaskLowStockScan = "stock:lowstock_scan"
	// TaskIdempotencyCleanup purges idempotency keys past retention.
	TaskIdempotencyCleanup = "ledger:idempotency_cleanup"
	// TaskSummaryWarmup precomputes the current-day accounting summary
	// into the report cache.
	TaskSummaryWarmup = "reports:summary_warmup"
)

// LowStockScanPayload scopes a low stock scan run.
type LowStockScanPayload struct {
	WarehouseID *int64 `json:"warehouse_id,omitempty"`
}

// NewLowStockScanTask constructs the scan task.
func NewLowStockScanTask(payload LowStockScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data), nil
}

// IdempotencyCleanupPayload controls key retention.
type IdempotencyCleanupPayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// SummaryWarmupPayload is currently empty, the job always warms the
// current day.
type SummaryWarmupPayload struct{}

// NewSummaryWarmupTask constructs the warmup task.
func NewSummaryWarmupTask() (*asynq.Task, error) {
	data, err := json.Marshal(SummaryWarmupPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSummaryWarmup, data), nil
}
