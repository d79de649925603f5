package catalog

import (
	"context"
	"fmt"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/billable/billable/model"
)

const (
	cacheDefaultExpiration = 1 * time.Minute
	cacheCleanupInterval   = 5 * time.Minute
)

// Service contains catalog datastore and caching
type Service struct {
	Datastore Datastore
	cache     *cache.Cache
}

// InitService initializes the catalog service
func InitService(ctx context.Context, datastore Datastore) (*Service, error) {
	return &Service{
		Datastore: datastore,
		cache:     cache.New(cacheDefaultExpiration, cacheCleanupInterval),
	}, nil
}

// ListProducts returns all active products
func (service *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	return service.Datastore.ListProducts(ctx, true)
}

// GetProductByKey returns the active product for the normalized key
func (service *Service) GetProductByKey(ctx context.Context, key string) (*model.Product, error) {
	cacheKey := "product:" + model.NormalizeKey(key)
	if cached, found := service.cache.Get(cacheKey); found {
		product := cached.(model.Product)
		return &product, nil
	}
	product, err := service.Datastore.GetProductByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	service.cache.SetDefault(cacheKey, *product)
	return product, nil
}

// ListOffers returns all active offers
func (service *Service) ListOffers(ctx context.Context) ([]model.Offer, error) {
	return service.Datastore.ListOffers(ctx, true)
}

// GetOfferBySKU returns one offer by normalized sku. Inactive offers are
// returned only when activeOnly is false.
func (service *Service) GetOfferBySKU(ctx context.Context, sku string, activeOnly bool) (*model.Offer, error) {
	cacheKey := fmt.Sprintf("offer:%s:%t", model.NormalizeKey(sku), activeOnly)
	if cached, found := service.cache.Get(cacheKey); found {
		offer := cached.(model.Offer)
		return &offer, nil
	}
	offer, err := service.Datastore.GetOfferBySKU(ctx, sku, activeOnly)
	if err != nil {
		return nil, err
	}
	service.cache.SetDefault(cacheKey, *offer)
	return offer, nil
}

// ResolveOffersBySKUs resolves a caller-supplied sku list to active offers,
// preserving the caller's order and skipping skus with no match.
func (service *Service) ResolveOffersBySKUs(ctx context.Context, skus []string) ([]model.Offer, error) {
	offers := make([]model.Offer, 0, len(skus))
	for _, sku := range skus {
		offer, err := service.GetOfferBySKU(ctx, sku, true)
		if err != nil {
			if err == model.ErrOfferNotFound {
				continue
			}
			return nil, err
		}
		offers = append(offers, *offer)
	}
	return offers, nil
}
