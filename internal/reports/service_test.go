package reports

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	_ "github.com/meridian-pos/meridian-pos/testing"
)

type memoryRepo struct {
	levels []StockLevelRow
	totals Totals
	calls  int
}

func (m *memoryRepo) StockLevels(ctx context.Context, filter StockFilter) ([]StockLevelRow, error) {
	m.calls++
	if filter.WarehouseID == nil {
		return m.levels, nil
	}
	var out []StockLevelRow
	for _, row := range m.levels {
		if row.WarehouseID == *filter.WarehouseID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memoryRepo) AccountingTotals(ctx context.Context, filter SummaryFilter) (Totals, error) {
	m.calls++
	return m.totals, nil
}

func newService(t *testing.T, repo *memoryRepo) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, 10*time.Minute)
	formatter, err := NewMoneyFormatter("en-US", "USD")
	require.NoError(t, err)
	return NewService(repo, cache, formatter)
}

func TestStockLevelsFlags(t *testing.T) {
	repo := &memoryRepo{levels: []StockLevelRow{
		{ProductID: 1, ProductName: "Soap", WarehouseID: 1, WarehouseName: "Main", Quantity: 3, LowStockAt: 5},
		{ProductID: 2, ProductName: "N/A", WarehouseID: 1, WarehouseName: "Main", Quantity: -2, LowStockAt: 0},
		{ProductID: 3, ProductName: "Rice", WarehouseID: 1, WarehouseName: "Main", Quantity: 40, LowStockAt: 5},
	}}
	svc := newService(t, repo)

	rows, err := svc.StockLevels(context.Background(), StockFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.True(t, rows[0].LowStock)
	require.False(t, rows[0].Anomaly)

	require.True(t, rows[1].LowStock)
	require.True(t, rows[1].Anomaly)
	require.Equal(t, "N/A", rows[1].ProductName)

	require.False(t, rows[2].LowStock)
	require.False(t, rows[2].Anomaly)
}

func TestStockLevelsLowOnly(t *testing.T) {
	repo := &memoryRepo{levels: []StockLevelRow{
		{ProductID: 1, WarehouseID: 1, Quantity: 3, LowStockAt: 5},
		{ProductID: 2, WarehouseID: 1, Quantity: 40, LowStockAt: 5},
	}}
	svc := newService(t, repo)

	rows, err := svc.StockLevels(context.Background(), StockFilter{LowOnly: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0].ProductID)
}

func TestStockLevelsCached(t *testing.T) {
	repo := &memoryRepo{levels: []StockLevelRow{{ProductID: 1, WarehouseID: 1, Quantity: 10}}}
	svc := newService(t, repo)

	_, err := svc.StockLevels(context.Background(), StockFilter{})
	require.NoError(t, err)
	_, err = svc.StockLevels(context.Background(), StockFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls)

	require.NoError(t, svc.Invalidate(context.Background()))
	_, err = svc.StockLevels(context.Background(), StockFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)
}

func TestAccountingSummaryMath(t *testing.T) {
	repo := &memoryRepo{totals: Totals{
		Purchases: decimal.NewFromInt(4000),
		Sales:     decimal.NewFromInt(6000),
		External:  decimal.NewFromInt(1500),
		Expenses:  decimal.NewFromInt(500),
	}}
	svc := newService(t, repo)

	from, to := DayWindow(time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC))
	summary, err := svc.AccountingSummary(context.Background(), SummaryFilter{From: from, To: to})
	require.NoError(t, err)

	require.True(t, summary.Revenue.Equal(decimal.NewFromInt(7500)))
	require.True(t, summary.GrossMargin.Equal(decimal.NewFromInt(3000)))
	require.NotEmpty(t, summary.RevenueDisplay)
	require.Contains(t, summary.RevenueDisplay, "7,500")
}

func TestAccountingSummaryWindowValidation(t *testing.T) {
	svc := newService(t, &memoryRepo{})

	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	to := from.Add(-24 * time.Hour)
	_, err := svc.AccountingSummary(context.Background(), SummaryFilter{From: from, To: to})
	require.ErrorIs(t, err, ErrValidation)
}
