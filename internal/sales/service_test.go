package sales

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
)

type memoryRepo struct {
	sales     map[int64]Sale
	externals map[int64]ExternalSale
	lines     map[int64][]Line
	nextID    int64

	products   map[int64]decimal.Decimal
	warehouses map[int64]bool
	levels     map[string]ledger.StockLevel
	movements  []ledger.Movement
}

type memoryTx struct {
	repo *memoryRepo
}

type memoryLedgerTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		sales:     make(map[int64]Sale),
		externals: make(map[int64]ExternalSale),
		lines:     make(map[int64][]Line),
		products: map[int64]decimal.Decimal{
			1: decimal.NewFromInt(1500),
			2: decimal.NewFromInt(200),
		},
		warehouses: map[int64]bool{1: true},
		levels:     make(map[string]ledger.StockLevel),
	}
}

func levelKey(productID, warehouseID int64) string {
	return fmt.Sprintf("%d:%d", productID, warehouseID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetSale(ctx context.Context, id int64) (Sale, []Line, error) {
	sale, ok := r.sales[id]
	if !ok {
		return Sale{}, nil, ErrNotFound
	}
	return sale, r.lines[id], nil
}

func (r *memoryRepo) GetExternalSale(ctx context.Context, id int64) (ExternalSale, []Line, error) {
	sale, ok := r.externals[id]
	if !ok {
		return ExternalSale{}, nil, ErrNotFound
	}
	return sale, r.lines[id], nil
}

func (r *memoryRepo) ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	var result []Sale
	for _, sale := range r.sales {
		result = append(result, sale)
	}
	return result, len(result), nil
}

func (r *memoryRepo) ListExternalSales(ctx context.Context, filter ListFilter) ([]ExternalSale, int, error) {
	var result []ExternalSale
	for _, sale := range r.externals {
		result = append(result, sale)
	}
	return result, len(result), nil
}

func (tx *memoryTx) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	tx.repo.nextID++
	sale.ID = tx.repo.nextID
	tx.repo.sales[sale.ID] = sale
	return sale.ID, nil
}

func (tx *memoryTx) InsertExternalSale(ctx context.Context, sale ExternalSale) (int64, error) {
	tx.repo.nextID++
	sale.ID = tx.repo.nextID
	tx.repo.externals[sale.ID] = sale
	return sale.ID, nil
}

func (tx *memoryTx) InsertSaleLine(ctx context.Context, line Line) error {
	tx.repo.lines[line.SaleID] = append(tx.repo.lines[line.SaleID], line)
	return nil
}

func (tx *memoryTx) InsertExternalLine(ctx context.Context, line Line) error {
	tx.repo.lines[line.SaleID] = append(tx.repo.lines[line.SaleID], line)
	return nil
}

func (tx *memoryTx) UpdateSaleTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	sale := tx.repo.sales[id]
	sale.Total = total
	tx.repo.sales[id] = sale
	return nil
}

func (tx *memoryTx) UpdateExternalTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	sale := tx.repo.externals[id]
	sale.Total = total
	tx.repo.externals[id] = sale
	return nil
}

func (tx *memoryTx) ListPrice(ctx context.Context, productID int64) (decimal.Decimal, error) {
	price, ok := tx.repo.products[productID]
	if !ok {
		return decimal.Zero, ledger.ErrProductNotFound
	}
	return price, nil
}

func (tx *memoryTx) Ledger() ledger.TxRepository {
	return &memoryLedgerTx{repo: tx.repo}
}

func (tx *memoryLedgerTx) ProductExists(ctx context.Context, productID int64) (bool, error) {
	_, ok := tx.repo.products[productID]
	return ok, nil
}

func (tx *memoryLedgerTx) WarehouseExists(ctx context.Context, warehouseID int64) (bool, error) {
	return tx.repo.warehouses[warehouseID], nil
}

func (tx *memoryLedgerTx) GetLevelForUpdate(ctx context.Context, productID, warehouseID int64) (ledger.StockLevel, error) {
	if level, ok := tx.repo.levels[levelKey(productID, warehouseID)]; ok {
		return level, nil
	}
	return ledger.StockLevel{ProductID: productID, WarehouseID: warehouseID}, ledger.ErrLevelNotFound
}

func (tx *memoryLedgerTx) UpsertLevel(ctx context.Context, level ledger.StockLevel) error {
	tx.repo.levels[levelKey(level.ProductID, level.WarehouseID)] = level
	return nil
}

func (tx *memoryLedgerTx) InsertMovement(ctx context.Context, movement ledger.Movement) (int64, error) {
	movement.ID = int64(len(tx.repo.movements) + 1)
	tx.repo.movements = append(tx.repo.movements, movement)
	return movement.ID, nil
}

func TestRecordChargesListPriceAndDecrements(t *testing.T) {
	repo := newMemoryRepo()
	repo.levels[levelKey(1, 1)] = ledger.StockLevel{ProductID: 1, WarehouseID: 1, Qty: 20}
	svc := NewService(repo, nil)

	sale, err := svc.Record(context.Background(), RecordInput{
		WarehouseID: 1,
		UserID:      5,
		Lines:       []LineInput{{ProductID: 1, Qty: 3}},
	})
	require.NoError(t, err)

	require.True(t, sale.Total.Equal(decimal.NewFromInt(4500)))
	require.EqualValues(t, 17, repo.levels[levelKey(1, 1)].Qty)
	require.Len(t, repo.movements, 1)
	require.EqualValues(t, -3, repo.movements[0].Delta)
	require.Equal(t, "sale:"+fmt.Sprint(sale.ID), repo.movements[0].Reason)
}

func TestRecordOversellIsAnomalyNotError(t *testing.T) {
	repo := newMemoryRepo()
	repo.levels[levelKey(2, 1)] = ledger.StockLevel{ProductID: 2, WarehouseID: 1, Qty: 1}
	svc := NewService(repo, nil)

	_, err := svc.Record(context.Background(), RecordInput{
		WarehouseID: 1,
		UserID:      5,
		Lines:       []LineInput{{ProductID: 2, Qty: 4}},
	})
	require.NoError(t, err)
	require.EqualValues(t, -3, repo.levels[levelKey(2, 1)].Qty)
	require.True(t, repo.movements[0].Anomaly)
}

func TestExternalBelowListRequiresAuthorization(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	input := ExternalInput{
		WarehouseID:  1,
		UserID:       5,
		CustomerName: "PT Nusantara",
		Lines:        []LineInput{{ProductID: 1, Qty: 2, UnitPrice: decimal.NewFromInt(1000)}},
	}
	_, err := svc.RecordExternal(context.Background(), input)
	require.ErrorIs(t, err, ErrUnauthorizedPrice)
	require.Empty(t, repo.externals)
	require.Empty(t, repo.movements)

	input.AuthorizedBy = 9
	sale, err := svc.RecordExternal(context.Background(), input)
	require.NoError(t, err)
	require.EqualValues(t, 9, sale.AuthorizedBy)
	require.True(t, sale.Total.Equal(decimal.NewFromInt(2000)))
	require.Len(t, repo.movements, 1)
	require.Equal(t, "external_sale:"+fmt.Sprint(sale.ID), repo.movements[0].Reason)
}

func TestExternalAtListNeedsNoAuthorization(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	sale, err := svc.RecordExternal(context.Background(), ExternalInput{
		WarehouseID:  1,
		UserID:       5,
		CustomerName: "CV Andalas",
		Lines:        []LineInput{{ProductID: 1, Qty: 1, UnitPrice: decimal.NewFromInt(1500)}},
	})
	require.NoError(t, err)
	require.Zero(t, sale.AuthorizedBy)
}

func TestRecordValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Record(ctx, RecordInput{WarehouseID: 1, UserID: 5})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Record(ctx, RecordInput{
		WarehouseID: 1, UserID: 5,
		Lines: []LineInput{{ProductID: 1, Qty: 0}},
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.RecordExternal(ctx, ExternalInput{
		WarehouseID: 1, UserID: 5, CustomerName: "",
		Lines: []LineInput{{ProductID: 1, Qty: 1, UnitPrice: decimal.NewFromInt(1500)}},
	})
	require.ErrorIs(t, err, ErrValidation)
}
