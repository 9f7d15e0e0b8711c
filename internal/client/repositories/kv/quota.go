package kv

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/htgen/internal/common"
)

// QuotaRepository enforces a total byte budget across all values.
// A non-positive limit disables the check.
type QuotaRepository struct {
	Repository
	limit int64
}

func NewQuotaRepository(inner Repository, limitBytes int64) *QuotaRepository {
	return &QuotaRepository{Repository: inner, limit: limitBytes}
}

func (q *QuotaRepository) Set(ctx context.Context, key string, value []byte) error {
	if q.limit > 0 {
		used, err := q.Repository.UsedBytes(ctx, key)
		if err != nil {
			return err
		}
		if used+int64(len(value)) > q.limit {
			return fmt.Errorf("%w: kv[%s] needs %d bytes, %d of %d in use",
				common.ErrQuotaExceeded, key, len(value), used, q.limit)
		}
	}
	return q.Repository.Set(ctx, key, value)
}
