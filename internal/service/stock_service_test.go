package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-order-service/internal/entity"
	"retail-order-service/internal/repository"
)

type mapCache struct {
	levels      map[string]int
	invalidated []string
	getErr      error
}

func (c *mapCache) Get(_ context.Context, productID string) (int, bool, error) {
	if c.getErr != nil {
		return 0, false, c.getErr
	}
	q, ok := c.levels[productID]
	return q, ok, nil
}

func (c *mapCache) Set(_ context.Context, productID string, qty int) error {
	c.levels[productID] = qty
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, productIDs ...string) error {
	for _, id := range productIDs {
		delete(c.levels, id)
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

func TestStockServiceReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	_, err := NewCatalogService(store).RegisterProduct(ctx, entity.NewProduct{ID: "P", Name: "P", UnitPrice: decimal.NewFromInt(1), OpeningStock: 4})
	require.NoError(t, err)

	c := &mapCache{levels: map[string]int{}}
	s := NewStockService(store, c)

	qty, err := s.Available(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, 4, qty)
	assert.Equal(t, 4, c.levels["P"], "miss fills the cache")

	c.levels["P"] = 9
	qty, err = s.Available(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, 9, qty, "hit is served from the cache")

	s.invalidate(ctx, []entity.StockLine{{ProductID: "P", Quantity: 1}})
	assert.Equal(t, []string{"P"}, c.invalidated)

	c.getErr = errors.New("redis down")
	qty, err = s.Available(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, 4, qty, "cache errors fall back to the store")

	_, err = s.Available(ctx, "missing")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestIdentify(t *testing.T) {
	s := NewCustomerService(repository.NewMemoryStore(), "us")

	who, err := s.identify("Rosa", "")
	require.NoError(t, err)
	assert.False(t, who.Tracked)

	who, err = s.identify(" Walk-In ", "650 253 0000")
	require.NoError(t, err)
	assert.True(t, who.Tracked)
	assert.Equal(t, "+16502530000", who.Phone)
	assert.Empty(t, who.Name)

	_, err = s.identify("Rosa", "not a phone")
	var verr *entity.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestRegisterProductValidation(t *testing.T) {
	ctx := context.Background()
	s := NewCatalogService(repository.NewMemoryStore())

	_, err := s.RegisterProduct(ctx, entity.NewProduct{ID: "", Name: "x", UnitPrice: decimal.NewFromInt(1)})
	var verr *entity.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "id")

	_, err = s.RegisterProduct(ctx, entity.NewProduct{ID: "a", Name: "x", UnitPrice: decimal.RequireFromString("1.005")})
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "unit_price")

	_, err = s.RegisterProduct(ctx, entity.NewProduct{ID: "a", Name: "x", UnitPrice: decimal.NewFromInt(1), OpeningStock: -1})
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "opening_stock")
}
