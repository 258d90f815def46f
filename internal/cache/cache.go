package cache

import (
	"context"
	"strings"
	"time"

	"tokopos/backend/internal/domain"
)

// LookupKey builds the cache key for a barcode lookup. Item codes are stored
// uppercase, so the key is case-folded to match.
func LookupKey(code string) string {
	return "lookup:" + strings.ToUpper(strings.TrimSpace(code))
}

// LookupCache caches barcode-lookup results. Entries are invalidated whenever
// a ledger write can change the cached product's stock or price.
type LookupCache interface {
	Get(ctx context.Context, key string) (*domain.Product, bool, error)
	Set(ctx context.Context, key string, value *domain.Product, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type NoopLookupCache struct{}

func (NoopLookupCache) Get(_ context.Context, _ string) (*domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopLookupCache) Set(_ context.Context, _ string, _ *domain.Product, _ time.Duration) error {
	return nil
}

func (NoopLookupCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
