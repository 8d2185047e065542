package expenses

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	expenses map[int64]Expense
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{expenses: make(map[int64]Expense)}
}

func (r *memoryRepo) Insert(ctx context.Context, expense Expense) (int64, error) {
	r.nextID++
	expense.ID = r.nextID
	r.expenses[expense.ID] = expense
	return expense.ID, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Expense, error) {
	expense, ok := r.expenses[id]
	if !ok {
		return Expense{}, ErrNotFound
	}
	return expense, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Expense, int, error) {
	var result []Expense
	for _, expense := range r.expenses {
		result = append(result, expense)
	}
	return result, len(result), nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.expenses[id]; !ok {
		return ErrNotFound
	}
	delete(r.expenses, id)
	return nil
}

func TestRecordAndDelete(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	expense, err := svc.Record(context.Background(), Input{
		WarehouseID: 1,
		UserID:      5,
		Category:    "utilities",
		Description: "electricity march",
		Amount:      decimal.NewFromInt(250000),
	})
	require.NoError(t, err)
	require.NotZero(t, expense.ID)
	require.False(t, expense.Date.IsZero())

	require.NoError(t, svc.Delete(context.Background(), expense.ID, 5))
	_, err = svc.Get(context.Background(), expense.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecordValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Record(ctx, Input{UserID: 5, Category: "misc", Amount: decimal.NewFromInt(10)})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Record(ctx, Input{WarehouseID: 1, UserID: 5, Amount: decimal.NewFromInt(10)})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Record(ctx, Input{WarehouseID: 1, UserID: 5, Category: "misc", Amount: decimal.Zero})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Record(ctx, Input{WarehouseID: 1, UserID: 5, Category: "misc", Amount: decimal.NewFromInt(-5)})
	require.ErrorIs(t, err, ErrValidation)
}
