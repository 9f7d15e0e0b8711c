// Package assets stores captured static-asset responses grouped under
// versioned cache names.
package assets

import (
	"context"

	"github.com/dmitrijs2005/htgen/internal/client/models"
)

type Repository interface {
	// Get returns (nil, nil) when nothing is stored for url in cacheName.
	Get(ctx context.Context, cacheName, url string) (*models.CacheEntry, error)
	Put(ctx context.Context, e *models.CacheEntry) error
	// Match looks url up across every cache name, newest first.
	Match(ctx context.Context, url string) (*models.CacheEntry, error)
	// Keys returns the distinct cache names currently stored.
	Keys(ctx context.Context) ([]string, error)
	DeleteCache(ctx context.Context, cacheName string) error
}
