package repository

import (
	"context"
	"time"
)

// TransientStore is the expiring key-value store state tokens and credentials
// live in. Get returns (nil, nil) when the key is absent or expired.
type TransientStore interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
