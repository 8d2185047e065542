package reports

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

// Service coordinates view queries with the cache layer. Concurrent
// requests for the same key collapse into one repository round trip.
type Service struct {
	repo      RepositoryPort
	cache     *Cache
	formatter *MoneyFormatter
	group     singleflight.Group
}

// NewService wires a RepositoryPort with a Cache and money formatting.
func NewService(repo RepositoryPort, cache *Cache, formatter *MoneyFormatter) *Service {
	return &Service{repo: repo, cache: cache, formatter: formatter}
}

// StockLevels resolves the stock view, cache-aware.
func (s *Service) StockLevels(ctx context.Context, filter StockFilter) ([]StockLevelRow, error) {
	key, err := s.cache.BuildKey(ctx, "reports", "stock", optionalToken(filter.WarehouseID), boolToken(filter.LowOnly))
	if err != nil {
		return nil, err
	}
	result, err := s.collapse(ctx, key, func(ctx context.Context) (interface{}, error) {
		var rows []StockLevelRow
		err := s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (interface{}, error) {
			raw, err := s.repo.StockLevels(ctx, filter)
			if err != nil {
				return nil, err
			}
			out := make([]StockLevelRow, 0, len(raw))
			for _, row := range raw {
				row.LowStock = row.Quantity <= row.LowStockAt
				row.Anomaly = row.Quantity < 0
				if filter.LowOnly && !row.LowStock {
					continue
				}
				out = append(out, row)
			}
			return out, nil
		})
		return rows, err
	})
	if err != nil {
		return nil, err
	}
	return result.([]StockLevelRow), nil
}

// AccountingSummary resolves the windowed totals view.
func (s *Service) AccountingSummary(ctx context.Context, filter SummaryFilter) (Summary, error) {
	if filter.To.Before(filter.From) {
		return Summary{}, fmt.Errorf("%w: window end precedes start", ErrValidation)
	}
	key, err := s.cache.BuildKey(ctx, "reports", "summary",
		filter.From.Format("2006-01-02"), filter.To.Format("2006-01-02"),
		optionalToken(filter.WarehouseID), optionalToken(filter.CategoryID), optionalToken(filter.UserID))
	if err != nil {
		return Summary{}, err
	}
	result, err := s.collapse(ctx, key, func(ctx context.Context) (interface{}, error) {
		var summary Summary
		err := s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (interface{}, error) {
			return s.buildSummary(ctx, filter)
		})
		return summary, err
	})
	if err != nil {
		return Summary{}, err
	}
	return result.(Summary), nil
}

// Invalidate drops every cached view ahead of the TTL, for callers
// that need the next read to hit the store.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) buildSummary(ctx context.Context, filter SummaryFilter) (Summary, error) {
	totals, err := s.repo.AccountingTotals(ctx, filter)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{
		From:          filter.From,
		To:            filter.To,
		PurchaseTotal: totals.Purchases,
		SaleTotal:     totals.Sales,
		ExternalTotal: totals.External,
		ExpenseTotal:  totals.Expenses,
	}
	summary.Revenue = totals.Sales.Add(totals.External)
	summary.GrossMargin = summary.Revenue.Sub(totals.Purchases).Sub(totals.Expenses)
	if s.formatter != nil {
		summary.PurchaseDisplay = s.formatter.Format(summary.PurchaseTotal)
		summary.SaleDisplay = s.formatter.Format(summary.SaleTotal)
		summary.ExternalDisplay = s.formatter.Format(summary.ExternalTotal)
		summary.ExpenseDisplay = s.formatter.Format(summary.ExpenseTotal)
		summary.RevenueDisplay = s.formatter.Format(summary.Revenue)
		summary.MarginDisplay = s.formatter.Format(summary.GrossMargin)
	}
	return summary, nil
}

func (s *Service) collapse(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	resultChan := s.group.DoChan(key, func() (interface{}, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		return res.Val, res.Err
	}
}

func optionalToken(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}

func boolToken(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// DayWindow expands one calendar day into a summary window.
func DayWindow(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return start, start.Add(24*time.Hour - time.Nanosecond)
}
