// Package kv is the durable key-value slot the history store lives in.
//
// SQLiteRepository is a plain key/value table. QuotaRepository wraps any
// Repository with a byte budget and fails writes that would exceed it with
// common.ErrQuotaExceeded, the way browser storage fails over its quota.
package kv

import (
	"context"
)

type Repository interface {
	// Get returns (nil, nil) when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// UsedBytes sums the value sizes of every key except exclude.
	UsedBytes(ctx context.Context, exclude string) (int64, error)
}
