package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-pos/meridian-pos/internal/jobs"
	"github.com/meridian-pos/meridian-pos/internal/reports"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// StockLister resolves the stock view for scanning. Satisfied by the
// reports service.
type StockLister interface {
	StockLevels(ctx context.Context, filter reports.StockFilter) ([]reports.StockLevelRow, error)
}

// AuditRecorder persists alert entries. Satisfied by shared.AuditLogger.
type AuditRecorder interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// LowStockScanJob walks stock levels and raises an audit-log alert for
// every product at or below its threshold.
type LowStockScanJob struct {
	Stock   StockLister
	Audit   AuditRecorder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLowStockScanJob initialises the scan handler.
func NewLowStockScanJob(stock StockLister, audit AuditRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{
		Stock:   stock,
		Audit:   audit,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Stock == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskLowStockScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting low stock scan")

	rows, err := j.Stock.StockLevels(ctx, reports.StockFilter{WarehouseID: payload.WarehouseID, LowOnly: true})
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}

	for _, row := range rows {
		logger.Warn("low stock detected",
			slog.Int64("product_id", row.ProductID),
			slog.Int64("warehouse_id", row.WarehouseID),
			slog.Int64("quantity", row.Quantity),
			slog.Int64("threshold", row.LowStockAt),
			slog.Bool("anomaly", row.Anomaly),
		)
		j.metrics().AddLowStock(row.WarehouseID, 1)
		if j.Audit != nil {
			_ = j.Audit.Record(ctx, shared.AuditLog{
				Action:   "stock:lowstock_alert",
				Entity:   "stock_level",
				EntityID: fmt.Sprintf("%d:%d", row.ProductID, row.WarehouseID),
				Meta: map[string]any{
					"product_id":   row.ProductID,
					"warehouse_id": row.WarehouseID,
					"quantity":     row.Quantity,
					"threshold":    row.LowStockAt,
					"anomaly":      row.Anomaly,
				},
			})
		}
	}

	logger.Info("completed low stock scan",
		slog.Int("findings", len(rows)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *LowStockScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *LowStockScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
