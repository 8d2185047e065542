package products

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-pos/internal/catalog/shared"
)

type memoryRepo struct {
	products map[int64]Product
	byRef    map[string]int64
	inUse    map[int64]bool
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products: make(map[int64]Product),
		byRef:    make(map[string]int64),
		inUse:    make(map[int64]bool),
	}
}

func (r *memoryRepo) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	var result []Product
	for _, p := range r.products {
		result = append(result, p)
	}
	return result, len(result), nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) Create(ctx context.Context, product Product) (Product, error) {
	if _, ok := r.byRef[product.Reference]; ok {
		return Product{}, shared.ErrDuplicate
	}
	r.nextID++
	product.ID = r.nextID
	r.products[product.ID] = product
	r.byRef[product.Reference] = product.ID
	return product, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, product Product) error {
	existing, ok := r.products[id]
	if !ok {
		return shared.ErrNotFound
	}
	existing.Name = product.Name
	existing.CategoryID = product.CategoryID
	existing.Unit = product.Unit
	existing.LowStockAt = product.LowStockAt
	existing.IsActive = product.IsActive
	r.products[id] = existing
	return nil
}

func (r *memoryRepo) UpdatePrices(ctx context.Context, id int64, product Product) error {
	existing, ok := r.products[id]
	if !ok {
		return shared.ErrNotFound
	}
	existing.PurchasePrice = product.PurchasePrice
	existing.SalePrice = product.SalePrice
	existing.LowStockAt = product.LowStockAt
	r.products[id] = existing
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	if r.inUse[id] {
		return shared.ErrInUse
	}
	if _, ok := r.products[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.products, id)
	return nil
}

func validProduct() Product {
	return Product{
		Reference:     "SKU-001",
		Name:          "Beras 5kg",
		CategoryID:    1,
		Unit:          "pcs",
		PurchasePrice: decimal.NewFromInt(50000),
		SalePrice:     decimal.NewFromInt(62000),
		LowStockAt:    10,
		IsActive:      true,
	}
}

func TestCreateRejectsDuplicateReference(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)

	_, err := svc.Create(context.Background(), validProduct())
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), validProduct())
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestCreateValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	p := validProduct()
	p.Reference = " "
	_, err := svc.Create(ctx, p)
	require.ErrorIs(t, err, shared.ErrValidation)

	p = validProduct()
	p.SalePrice = decimal.NewFromInt(-1)
	_, err = svc.Create(ctx, p)
	require.ErrorIs(t, err, shared.ErrValidation)

	p = validProduct()
	p.LowStockAt = -5
	_, err = svc.Create(ctx, p)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeleteBlockedWhileReferenced(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)

	created, err := svc.Create(context.Background(), validProduct())
	require.NoError(t, err)
	repo.inUse[created.ID] = true

	require.ErrorIs(t, svc.Delete(context.Background(), created.ID), shared.ErrInUse)
}

func TestUpdatePrices(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)

	created, err := svc.Create(context.Background(), validProduct())
	require.NoError(t, err)

	err = svc.UpdatePrices(context.Background(), created.ID, Product{
		PurchasePrice: decimal.NewFromInt(52000),
		SalePrice:     decimal.NewFromInt(65000),
		LowStockAt:    8,
	})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.True(t, got.SalePrice.Equal(decimal.NewFromInt(65000)))
	require.EqualValues(t, 8, got.LowStockAt)

	err = svc.UpdatePrices(context.Background(), created.ID, Product{
		PurchasePrice: decimal.NewFromInt(-1),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}
