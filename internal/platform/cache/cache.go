package cache

import "context"

// Cache is a best-effort key-value layer. Implementations must never surface
// backend failures to callers: a failed read is a miss, a failed write or
// delete is a no-op. The identity store stays authoritative either way.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool)

	// Set stores value under key with the given TTL in seconds.
	Set(ctx context.Context, key, value string, ttlSeconds int)

	// Delete removes the given keys.
	Delete(ctx context.Context, keys ...string)

	// DeletePattern removes all keys matching a glob pattern.
	DeletePattern(ctx context.Context, pattern string)
}

// Nop is the null cache used when no backend is configured. Every read is a
// miss and every write is dropped.
type Nop struct{}

func NewNop() Nop { return Nop{} }

func (Nop) Get(ctx context.Context, key string) (string, bool)         { return "", false }
func (Nop) Set(ctx context.Context, key, value string, ttlSeconds int) {}
func (Nop) Delete(ctx context.Context, keys ...string)                 {}
func (Nop) DeletePattern(ctx context.Context, pattern string)          {}
