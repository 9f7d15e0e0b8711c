package client

import (
	"context"
)

// GenerateRequest is one upload to the generation service.
type GenerateRequest struct {
	FileName string
	Content  []byte
	Language string
	// Topic is sent only when non-empty after trimming.
	Topic string
}

type Client interface {
	Close() error
	// Generate uploads an image and returns the sanitized hashtags.
	Generate(ctx context.Context, req GenerateRequest) ([]string, error)
	// Ping checks the upstream without going through the worker.
	Ping(ctx context.Context) error
}
