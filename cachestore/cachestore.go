// Package cachestore defines the byte store the repositories cache into.
//
// Implementations must be byte-for-byte transparent: Get returns exactly the []byte
// previously passed to Set for a key. Values are owned by the caller after Get.
//
// The keyspaces "book:", "books:search:", "library:" and "libraries:search:" are owned by
// shelfcache. External code should not write values under these prefixes; foreign values
// fail to decode and are deleted.
package cachestore

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("cachestore: closed")

// Store is a minimal byte store with TTLs and glob invalidation.
// Must be safe for concurrent use.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. A non-positive TTL means no expiry where supported.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)

	// Del removes keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// DelPattern removes every key matching the glob pattern (see Match) and
	// reports how many were removed.
	DelPattern(ctx context.Context, pattern string) (int, error)

	// Exists reports whether key currently holds a value.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases resources.
	Close(ctx context.Context) error
}
