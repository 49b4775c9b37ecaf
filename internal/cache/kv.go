package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or already expired.
var ErrMiss = errors.New("cache: key not found")

// KV is the narrow key-value surface the session store needs. The
// production implementation is Redis; tests use the in-memory one.
type KV interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}
