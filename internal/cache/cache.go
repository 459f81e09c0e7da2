package cache

import (
	"context"
	"net/url"
	"time"

	"warungpos/backend/internal/domain"
)

// ProductCache caches tenant-scoped product listings. Invalidate
// clears everything a tenant has cached; it is called after any write
// that could change a listing.
type ProductCache interface {
	Get(ctx context.Context, key string) ([]domain.Product, bool, error)
	Set(ctx context.Context, key string, value []domain.Product, ttl time.Duration) error
	Invalidate(ctx context.Context, tenantID string) error
}

type NoopProductCache struct{}

func (NoopProductCache) Get(_ context.Context, _ string) ([]domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopProductCache) Set(_ context.Context, _ string, _ []domain.Product, _ time.Duration) error {
	return nil
}

func (NoopProductCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

// Key builds the cache key for one tenant's filtered product listing.
// The filter parts are escaped so a ':' inside a filter value cannot
// collide with the separator.
func Key(tenantID string, filter domain.ProductFilter) string {
	return "products:" + tenantID + ":" + url.QueryEscape(filter.CategoryID) + ":" + url.QueryEscape(filter.Search)
}
