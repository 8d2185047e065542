package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

type memoryRepo struct {
	levels     map[string]StockLevel
	movements  []Movement
	products   map[int64]bool
	warehouses map[int64]bool
	nextID     int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		levels:     make(map[string]StockLevel),
		products:   map[int64]bool{1: true, 2: true},
		warehouses: map[int64]bool{1: true, 2: true},
	}
}

func levelKey(productID, warehouseID int64) string {
	return fmt.Sprintf("%d:%d", productID, warehouseID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) CurrentQuantity(ctx context.Context, productID, warehouseID int64) (int64, error) {
	return r.levels[levelKey(productID, warehouseID)].Qty, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var result []Movement
	for _, m := range r.movements {
		if m.ProductID == filter.ProductID && m.WarehouseID == filter.WarehouseID {
			result = append(result, m)
		}
	}
	return result, nil
}

func (r *memoryRepo) ListLevels(ctx context.Context, warehouseID int64) ([]StockLevel, error) {
	var result []StockLevel
	for _, l := range r.levels {
		if warehouseID == 0 || l.WarehouseID == warehouseID {
			result = append(result, l)
		}
	}
	return result, nil
}

func (tx *memoryTx) ProductExists(ctx context.Context, productID int64) (bool, error) {
	return tx.repo.products[productID], nil
}

func (tx *memoryTx) WarehouseExists(ctx context.Context, warehouseID int64) (bool, error) {
	return tx.repo.warehouses[warehouseID], nil
}

func (tx *memoryTx) GetLevelForUpdate(ctx context.Context, productID, warehouseID int64) (StockLevel, error) {
	if level, ok := tx.repo.levels[levelKey(productID, warehouseID)]; ok {
		return level, nil
	}
	return StockLevel{ProductID: productID, WarehouseID: warehouseID}, ErrLevelNotFound
}

func (tx *memoryTx) UpsertLevel(ctx context.Context, level StockLevel) error {
	tx.repo.levels[levelKey(level.ProductID, level.WarehouseID)] = level
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	tx.repo.nextID++
	movement.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, movement)
	return movement.ID, nil
}

func TestAdjustAppendsMovementAndLevel(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	movement, err := svc.Adjust(ctx, AdjustmentInput{ProductID: 1, WarehouseID: 1, Delta: 7, ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, int64(7), movement.ResultingQty)
	require.Equal(t, "manual", movement.Reason)
	require.False(t, movement.Anomaly)

	qty, err := svc.CurrentQuantity(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, int64(7), qty)

	movement, err = svc.Adjust(ctx, AdjustmentInput{ProductID: 1, WarehouseID: 1, Delta: -3, Reason: "sale:12"})
	require.NoError(t, err)
	require.Equal(t, int64(4), movement.ResultingQty)

	movements, err := svc.ListMovements(ctx, MovementFilter{ProductID: 1, WarehouseID: 1})
	require.NoError(t, err)
	require.Len(t, movements, 2)
}

func TestLevelMatchesSumOfDeltas(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	deltas := []int64{10, -4, 3, -1, 5}
	var sum int64
	for _, d := range deltas {
		_, err := svc.Adjust(ctx, AdjustmentInput{ProductID: 2, WarehouseID: 1, Delta: d})
		require.NoError(t, err)
		sum += d
	}

	qty, err := svc.CurrentQuantity(ctx, 2, 1)
	require.NoError(t, err)
	require.Equal(t, sum, qty)

	movements, err := svc.ListMovements(ctx, MovementFilter{ProductID: 2, WarehouseID: 1})
	require.NoError(t, err)
	var ledgerSum int64
	for _, m := range movements {
		ledgerSum += m.Delta
	}
	require.Equal(t, qty, ledgerSum)
}

func TestAdjustRejectsZeroDelta(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	_, err := svc.Adjust(context.Background(), AdjustmentInput{ProductID: 1, WarehouseID: 1, Delta: 0})
	require.ErrorIs(t, err, ErrZeroDelta)
}

func TestAdjustRejectsUnknownEntities(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, AdjustmentInput{ProductID: 99, WarehouseID: 1, Delta: 1})
	require.ErrorIs(t, err, ErrProductNotFound)

	_, err = svc.Adjust(ctx, AdjustmentInput{ProductID: 1, WarehouseID: 99, Delta: 1})
	require.ErrorIs(t, err, ErrWarehouseNotFound)
}

func TestNegativeResultIsAnomalyNotError(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	movement, err := svc.Adjust(ctx, AdjustmentInput{ProductID: 1, WarehouseID: 2, Delta: -5, Reason: "sale:1"})
	require.NoError(t, err)
	require.Equal(t, int64(-5), movement.ResultingQty)
	require.True(t, movement.Anomaly)
}

func TestFailedAdjustLeavesNoPartialWrite(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, AdjustmentInput{ProductID: 99, WarehouseID: 1, Delta: 5})
	require.Error(t, err)
	require.Empty(t, repo.movements)
	require.Empty(t, repo.levels)
}

// contendedRepo fails the first failures transactions with a
// serialization error before letting them through.
type contendedRepo struct {
	*memoryRepo
	failures int
	attempts int
}

func (r *contendedRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.attempts++
	if r.attempts <= r.failures {
		return &pgconn.PgError{Code: "40001"}
	}
	return r.memoryRepo.WithTx(ctx, fn)
}

type memoryIdempotency struct {
	claimed map[string]bool
	deleted []string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{claimed: make(map[string]bool)}
}

func (s *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if s.claimed[key] {
		return shared.ErrIdempotencyConflict
	}
	s.claimed[key] = true
	return nil
}

func (s *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(s.claimed, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func TestAdjustRetriesSerializationFailures(t *testing.T) {
	repo := &contendedRepo{memoryRepo: newMemoryRepo(), failures: 2}
	svc := NewService(repo, nil, nil)

	movement, err := svc.Adjust(context.Background(), AdjustmentInput{ProductID: 1, WarehouseID: 1, Delta: 5})
	require.NoError(t, err)
	require.Equal(t, int64(5), movement.ResultingQty)
	require.Equal(t, 3, repo.attempts)
}

func TestAdjustGivesUpAfterRetryBudget(t *testing.T) {
	repo := &contendedRepo{memoryRepo: newMemoryRepo(), failures: 100}
	svc := NewService(repo, nil, nil)

	_, err := svc.Adjust(context.Background(), AdjustmentInput{ProductID: 1, WarehouseID: 1, Delta: 5})
	require.ErrorIs(t, err, ErrConflict)
	require.Equal(t, serializationRetries, repo.attempts)
	require.Empty(t, repo.movements)
}

func TestAdjustRejectsDuplicateIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo()
	idem := newMemoryIdempotency()
	svc := NewService(repo, nil, idem)
	ctx := context.Background()

	input := AdjustmentInput{ProductID: 1, WarehouseID: 1, Delta: 5, IdempotencyKey: "adjust-42"}
	_, err := svc.Adjust(ctx, input)
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.movements, 1)
	require.Empty(t, idem.deleted)
}

func TestAdjustReleasesKeyWhenWriteFails(t *testing.T) {
	repo := &contendedRepo{memoryRepo: newMemoryRepo(), failures: 100}
	idem := newMemoryIdempotency()
	svc := NewService(repo, nil, idem)
	ctx := context.Background()

	input := AdjustmentInput{ProductID: 1, WarehouseID: 1, Delta: 5, IdempotencyKey: "adjust-43"}
	_, err := svc.Adjust(ctx, input)
	require.ErrorIs(t, err, ErrConflict)
	require.Equal(t, []string{"adjust-43"}, idem.deleted)

	// The released key is claimable again once contention clears.
	repo.failures = 0
	repo.attempts = 0
	_, err = svc.Adjust(ctx, input)
	require.NoError(t, err)
}
