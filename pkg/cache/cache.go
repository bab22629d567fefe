package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service defines cache operations interface. Values are stored as JSON.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	// TryLock takes key for owner when it is free or expired.
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Refresh extends the lock when owner still holds it and reports whether it does.
	Refresh(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Unlock releases key only when owner still holds it.
	Unlock(ctx context.Context, key, owner string) error
	Close() error
}

var (
	_ Service = (*MemoryCache)(nil)
	_ Service = (*RedisCache)(nil)
	_ Service = (*LayeredCache)(nil)
)
