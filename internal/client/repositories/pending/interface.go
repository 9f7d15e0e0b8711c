// Package pending persists mutating requests that could not reach the
// network, so they survive restarts and can be replayed in insertion order.
package pending

import (
	"context"

	"github.com/dmitrijs2005/htgen/internal/client/models"
)

type Repository interface {
	// Insert stores req and returns the assigned ID.
	Insert(ctx context.Context, req *models.PendingRequest) (int64, error)
	// List returns every stored request ordered by ID.
	List(ctx context.Context) ([]*models.PendingRequest, error)
	Delete(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}
