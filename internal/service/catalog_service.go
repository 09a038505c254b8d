package service

import (
	"context"

	"retail-order-service/internal/entity"
	"retail-order-service/internal/repository"
)

// CatalogService registers products together with their stock entry.
type CatalogService struct {
	store repository.Store
}

func NewCatalogService(store repository.Store) *CatalogService {
	return &CatalogService{store: store}
}

// RegisterProduct creates the catalog row and its stock entry with the opening quantity.
func (s *CatalogService) RegisterProduct(ctx context.Context, input entity.NewProduct) (*entity.Product, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	product := entity.Product{
		ID:        input.ID,
		Name:      input.Name,
		UnitPrice: input.UnitPrice,
		ImageRef:  input.ImageRef,
	}
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		return tx.InsertProduct(ctx, product, input.OpeningStock)
	})
	if err != nil {
		logger.Error().Err(err).Msgf("Error registering product %s", input.ID)
		return nil, err
	}
	return &product, nil
}
