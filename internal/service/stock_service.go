package service

import (
	"context"

	"retail-order-service/internal/entity"
	"retail-order-service/internal/repository"
)

// StockCache is an advisory read cache for stock levels.
type StockCache interface {
	Get(ctx context.Context, productID string) (int, bool, error)
	Set(ctx context.Context, productID string, qty int) error
	Invalidate(ctx context.Context, productIDs ...string) error
}

// StockService serves the advisory quantityAvailable reads collaborators use to disable
// "out of stock" buttons. The authoritative check is the reservation inside each order transaction.
type StockService struct {
	store repository.Store
	cache StockCache
}

// NewStockService accepts a nil cache.
func NewStockService(store repository.Store, cache StockCache) *StockService {
	return &StockService{store: store, cache: cache}
}

func (s *StockService) Available(ctx context.Context, productID string) (int, error) {
	if s.cache != nil {
		qty, ok, err := s.cache.Get(ctx, productID)
		if err != nil {
			logger.Error().Err(err).Msgf("Error getting stock for product %s from cache", productID)
		} else if ok {
			return qty, nil
		}
	}

	qty, err := s.store.StockAvailable(ctx, productID)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, productID, qty); err != nil {
			logger.Error().Err(err).Msgf("Error setting stock for product %s in cache", productID)
		}
	}
	return qty, nil
}

// invalidate drops cached levels once a committed transaction changed them.
func (s *StockService) invalidate(ctx context.Context, lines []entity.StockLine) {
	if s.cache == nil || len(lines) == 0 {
		return
	}
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		logger.Error().Err(err).Msgf("Error invalidating cached stock for %v", ids)
	}
}
