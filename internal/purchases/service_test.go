package purchases

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
)

type memoryState struct {
	purchases map[int64]Purchase
	items     map[int64][]Item
	nextID    int64

	products   map[int64]bool
	warehouses map[int64]bool
	levels     map[string]ledger.StockLevel
	movements  []ledger.Movement
}

type memoryRepo struct {
	state *memoryState
}

type memoryTx struct {
	state *memoryState
}

type memoryLedgerTx struct {
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memoryState{
		purchases:  make(map[int64]Purchase),
		items:      make(map[int64][]Item),
		products:   map[int64]bool{1: true, 2: true},
		warehouses: map[int64]bool{1: true},
		levels:     make(map[string]ledger.StockLevel),
	}}
}

func levelKey(productID, warehouseID int64) string {
	return fmt.Sprintf("%d:%d", productID, warehouseID)
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		purchases:  make(map[int64]Purchase, len(s.purchases)),
		items:      make(map[int64][]Item, len(s.items)),
		nextID:     s.nextID,
		products:   s.products,
		warehouses: s.warehouses,
		levels:     make(map[string]ledger.StockLevel, len(s.levels)),
		movements:  append([]ledger.Movement(nil), s.movements...),
	}
	for id, p := range s.purchases {
		c.purchases[id] = p
	}
	for id, items := range s.items {
		c.items[id] = append([]Item(nil), items...)
	}
	for key, level := range s.levels {
		c.levels[key] = level
	}
	return c
}

// WithTx runs the callback against a copy of the state and publishes the
// copy only on success, mimicking transactional rollback.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := r.state.clone()
	if err := fn(ctx, &memoryTx{state: staged}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *memoryRepo) GetPurchase(ctx context.Context, id int64) (Purchase, []Item, error) {
	purchase, ok := r.state.purchases[id]
	if !ok {
		return Purchase{}, nil, ErrNotFound
	}
	return purchase, r.state.items[id], nil
}

func (r *memoryRepo) ListPurchases(ctx context.Context, filter ListFilter) ([]Purchase, int, error) {
	var result []Purchase
	for _, purchase := range r.state.purchases {
		if filter.Status != "" && purchase.Status != filter.Status {
			continue
		}
		result = append(result, purchase)
	}
	return result, len(result), nil
}

func (tx *memoryTx) GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, []Item, error) {
	purchase, ok := tx.state.purchases[id]
	if !ok {
		return Purchase{}, nil, ErrNotFound
	}
	return purchase, tx.state.items[id], nil
}

func (tx *memoryTx) InsertPurchase(ctx context.Context, purchase Purchase) (int64, error) {
	tx.state.nextID++
	purchase.ID = tx.state.nextID
	tx.state.purchases[purchase.ID] = purchase
	return purchase.ID, nil
}

func (tx *memoryTx) InsertItem(ctx context.Context, item Item) error {
	tx.state.items[item.PurchaseID] = append(tx.state.items[item.PurchaseID], item)
	return nil
}

func (tx *memoryTx) DeleteItems(ctx context.Context, purchaseID int64) error {
	delete(tx.state.items, purchaseID)
	return nil
}

func (tx *memoryTx) UpdateTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	purchase := tx.state.purchases[id]
	purchase.Total = total
	tx.state.purchases[id] = purchase
	return nil
}

func (tx *memoryTx) SetStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	purchase, ok := tx.state.purchases[id]
	if !ok || purchase.Status != from {
		return false, nil
	}
	purchase.Status = to
	tx.state.purchases[id] = purchase
	return true, nil
}

func (tx *memoryTx) Ledger() ledger.TxRepository {
	return &memoryLedgerTx{state: tx.state}
}

func (tx *memoryLedgerTx) ProductExists(ctx context.Context, productID int64) (bool, error) {
	return tx.state.products[productID], nil
}

func (tx *memoryLedgerTx) WarehouseExists(ctx context.Context, warehouseID int64) (bool, error) {
	return tx.state.warehouses[warehouseID], nil
}

func (tx *memoryLedgerTx) GetLevelForUpdate(ctx context.Context, productID, warehouseID int64) (ledger.StockLevel, error) {
	if level, ok := tx.state.levels[levelKey(productID, warehouseID)]; ok {
		return level, nil
	}
	return ledger.StockLevel{ProductID: productID, WarehouseID: warehouseID}, ledger.ErrLevelNotFound
}

func (tx *memoryLedgerTx) UpsertLevel(ctx context.Context, level ledger.StockLevel) error {
	tx.state.levels[levelKey(level.ProductID, level.WarehouseID)] = level
	return nil
}

func (tx *memoryLedgerTx) InsertMovement(ctx context.Context, movement ledger.Movement) (int64, error) {
	movement.ID = int64(len(tx.state.movements) + 1)
	tx.state.movements = append(tx.state.movements, movement)
	return movement.ID, nil
}

func record(t *testing.T, svc *Service, number string, items ...ItemInput) Purchase {
	t.Helper()
	purchase, err := svc.Record(context.Background(), RecordInput{
		Number:      number,
		Date:        time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		WarehouseID: 1,
		UserID:      7,
		Items:       items,
	})
	require.NoError(t, err)
	return purchase
}

func TestRecordAppliesItemsAndLedger(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	purchase := record(t, svc, "PO-001",
		ItemInput{ProductID: 1, Qty: 10, UnitPrice: decimal.NewFromInt(1200)},
		ItemInput{ProductID: 2, Qty: 4, UnitPrice: decimal.NewFromFloat(99.50)},
	)

	require.Equal(t, StatusCompleted, purchase.Status)
	require.True(t, purchase.Total.Equal(decimal.NewFromInt(12398)))
	require.Len(t, repo.state.items[purchase.ID], 2)
	require.EqualValues(t, 10, repo.state.levels[levelKey(1, 1)].Qty)
	require.EqualValues(t, 4, repo.state.levels[levelKey(2, 1)].Qty)
	require.Len(t, repo.state.movements, 2)
	require.Equal(t, "purchase:"+fmt.Sprint(purchase.ID), repo.state.movements[0].Reason)
}

func TestRecordValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Record(ctx, RecordInput{Number: "PO-001", WarehouseID: 1, UserID: 7})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Record(ctx, RecordInput{
		Number: "PO-001", WarehouseID: 1, UserID: 7,
		Items: []ItemInput{{ProductID: 1, Qty: 0}},
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Record(ctx, RecordInput{
		Number: "", WarehouseID: 1, UserID: 7,
		Items: []ItemInput{{ProductID: 1, Qty: 1}},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestRecordFailingItemLeavesNothing(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.Record(context.Background(), RecordInput{
		Number: "PO-002", WarehouseID: 1, UserID: 7,
		Items: []ItemInput{
			{ProductID: 1, Qty: 5, UnitPrice: decimal.NewFromInt(100)},
			{ProductID: 99, Qty: 3, UnitPrice: decimal.NewFromInt(100)},
		},
	})
	require.ErrorIs(t, err, ledger.ErrProductNotFound)

	require.Empty(t, repo.state.purchases)
	require.Empty(t, repo.state.items)
	require.Empty(t, repo.state.movements)
	require.Empty(t, repo.state.levels)
}

func TestAmendReversesBeforeApplying(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	purchase := record(t, svc, "PO-003", ItemInput{ProductID: 1, Qty: 10, UnitPrice: decimal.NewFromInt(100)})
	require.EqualValues(t, 10, repo.state.levels[levelKey(1, 1)].Qty)

	amended, err := svc.Amend(context.Background(), purchase.ID, 8, []ItemInput{
		{ProductID: 1, Qty: 6, UnitPrice: decimal.NewFromInt(110)},
	})
	require.NoError(t, err)

	// 10 in, 10 reversed, 6 in. Without the reversal this would read 16.
	require.EqualValues(t, 6, repo.state.levels[levelKey(1, 1)].Qty)
	require.True(t, amended.Total.Equal(decimal.NewFromInt(660)))
	require.Len(t, repo.state.items[purchase.ID], 1)
	require.EqualValues(t, 6, repo.state.items[purchase.ID][0].Qty)

	reasons := make([]string, 0, len(repo.state.movements))
	for _, m := range repo.state.movements {
		reasons = append(reasons, m.Reason)
	}
	tag := "purchase:" + fmt.Sprint(purchase.ID)
	require.Equal(t, []string{tag, tag + ":amend", tag}, reasons)
}

func TestCancelReversesAndFlipsStatus(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	purchase := record(t, svc, "PO-004", ItemInput{ProductID: 1, Qty: 7, UnitPrice: decimal.NewFromInt(50)})

	require.NoError(t, svc.Cancel(context.Background(), purchase.ID, 8))
	require.Equal(t, StatusCancelled, repo.state.purchases[purchase.ID].Status)
	require.EqualValues(t, 0, repo.state.levels[levelKey(1, 1)].Qty)

	require.ErrorIs(t, svc.Cancel(context.Background(), purchase.ID, 8), ErrInvalidState)
}

func TestAmendCancelledFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	purchase := record(t, svc, "PO-005", ItemInput{ProductID: 1, Qty: 3, UnitPrice: decimal.NewFromInt(10)})
	require.NoError(t, svc.Cancel(context.Background(), purchase.ID, 8))

	_, err := svc.Amend(context.Background(), purchase.ID, 8, []ItemInput{
		{ProductID: 1, Qty: 1, UnitPrice: decimal.NewFromInt(10)},
	})
	require.ErrorIs(t, err, ErrInvalidState)
}
