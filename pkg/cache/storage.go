package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrNotCacheable is returned for writes that can never be stored
	// (non-GET keys, partial content)
	ErrNotCacheable = errors.New("request not cacheable")

	// ErrStorageClosed is returned by backends after Close
	ErrStorageClosed = errors.New("cache storage closed")
)

// Storage is a backend holding named cache generations. Each generation
// is an independent key/value area of request key → response snapshot.
//
// Implementations must be safe for concurrent use. Concurrent writes to the
// same key resolve as last-write-wins.
type Storage interface {
	// Open creates the generation if it does not exist yet. It is idempotent.
	Open(ctx context.Context, generation string) error

	// Put stores a copy of entry under key, replacing any previous entry.
	Put(ctx context.Context, generation string, key CacheKey, entry *CacheEntry) error

	// Get returns a copy of the entry stored under key.
	// Returns ErrCacheMiss if the generation or the key doesn't exist.
	Get(ctx context.Context, generation string, key CacheKey) (*CacheEntry, error)

	// Generations lists every existing generation name.
	Generations(ctx context.Context) ([]string, error)

	// DeleteGeneration removes a generation and all its entries.
	// It reports whether the generation existed.
	DeleteGeneration(ctx context.Context, generation string) (bool, error)

	// Close releases backend resources.
	Close() error
}
