package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-pos/internal/reports"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

type stubStock struct {
	rows []reports.StockLevelRow
}

func (s *stubStock) StockLevels(ctx context.Context, filter reports.StockFilter) ([]reports.StockLevelRow, error) {
	if !filter.LowOnly {
		return s.rows, nil
	}
	var out []reports.StockLevelRow
	for _, row := range s.rows {
		if row.LowStock {
			out = append(out, row)
		}
	}
	return out, nil
}

type stubAudit struct {
	entries []shared.AuditLog
}

func (s *stubAudit) Record(ctx context.Context, entry shared.AuditLog) error {
	s.entries = append(s.entries, entry)
	return nil
}

func TestLowStockScanRecordsAlerts(t *testing.T) {
	stock := &stubStock{rows: []reports.StockLevelRow{
		{ProductID: 1, WarehouseID: 1, Quantity: 2, LowStockAt: 5, LowStock: true},
		{ProductID: 2, WarehouseID: 1, Quantity: 50, LowStockAt: 5},
		{ProductID: 3, WarehouseID: 2, Quantity: -1, LowStockAt: 0, LowStock: true, Anomaly: true},
	}}
	audit := &stubAudit{}
	job := NewLowStockScanJob(stock, audit, nil, nil)

	payload, err := json.Marshal(LowStockScanPayload{})
	require.NoError(t, err)

	err = job.Handle(context.Background(), asynq.NewTask(TaskLowStockScan, payload))
	require.NoError(t, err)

	require.Len(t, audit.entries, 2)
	require.Equal(t, "stock:lowstock_alert", audit.entries[0].Action)
	require.Equal(t, "1:1", audit.entries[0].EntityID)
	require.Equal(t, true, audit.entries[1].Meta["anomaly"])
}

func TestLowStockScanBadPayloadSkipsRetry(t *testing.T) {
	job := NewLowStockScanJob(&stubStock{}, nil, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskLowStockScan, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
