package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/odam-offline-cache/pkg/logging"
)

// Store is the scoped accessor over a Storage backend. Reads and writes on
// the request path never fail the caller: backend errors are logged and
// reported as misses or dropped writes.
type Store struct {
	storage Storage
	logger  zerolog.Logger
	now     func() time.Time
}

// NewStore wraps a backend.
func NewStore(storage Storage, logger zerolog.Logger) *Store {
	if storage == nil {
		panic("cache storage cannot be nil")
	}
	return &Store{
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

// Storage returns the underlying backend.
func (s *Store) Storage() Storage {
	return s.storage
}

// Open returns a handle bound to generation, creating it on first use.
func (s *Store) Open(ctx context.Context, generation string) (*Handle, error) {
	if generation == "" {
		return nil, fmt.Errorf("generation name cannot be empty")
	}
	if err := s.storage.Open(ctx, generation); err != nil {
		return nil, fmt.Errorf("open generation %q: %w", generation, err)
	}
	return &Handle{store: s, generation: generation}, nil
}

// Match looks key up across every generation and returns the freshest
// write. Backend errors are logged and treated as misses.
func (s *Store) Match(ctx context.Context, key CacheKey) (*CacheEntry, bool) {
	if !key.Cacheable() {
		return nil, false
	}
	gens, err := s.storage.Generations(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str(logging.FieldKey, key.String()).Msg("Cache list error")
		return nil, false
	}

	var best *CacheEntry
	for _, gen := range gens {
		ent, err := s.storage.Get(ctx, gen, key)
		if err != nil {
			if !errors.Is(err, ErrCacheMiss) {
				s.logger.Warn().Err(err).Str(logging.FieldGeneration, gen).Str(logging.FieldKey, key.String()).Msg("Cache get error")
			}
			continue
		}
		if best == nil || ent.CachedAt.After(best.CachedAt) {
			best = ent
		}
	}
	if best == nil {
		s.logger.Debug().Str(logging.FieldKey, key.String()).Msg("Cache miss")
		return nil, false
	}
	s.logger.Debug().Str(logging.FieldKey, key.String()).Str(logging.FieldGeneration, best.Generation).Msg("Cache hit")
	return best, true
}

// Generations lists the existing generation names.
func (s *Store) Generations(ctx context.Context) ([]string, error) {
	return s.storage.Generations(ctx)
}

// Delete removes a whole generation. It is irreversible.
func (s *Store) Delete(ctx context.Context, generation string) (bool, error) {
	existed, err := s.storage.DeleteGeneration(ctx, generation)
	if err != nil {
		return false, fmt.Errorf("delete generation %q: %w", generation, err)
	}
	if existed {
		GenerationsDeleted.Inc()
		s.logger.Info().Str(logging.FieldGeneration, generation).Msg("Cache generation deleted")
	}
	return existed, nil
}

// Handle is a Store bound to one generation.
type Handle struct {
	store      *Store
	generation string
}

// Generation returns the generation name the handle writes to.
func (h *Handle) Generation() string {
	return h.generation
}

// Put stores entry under key, overwriting any existing entry. It never
// fails: a write that cannot be performed (non-GET request, partial content,
// backend error, quota) is logged and dropped.
func (h *Handle) Put(ctx context.Context, key CacheKey, entry *CacheEntry) {
	if err := h.put(ctx, key, entry); err != nil {
		if errors.Is(err, ErrNotCacheable) {
			h.store.logger.Debug().Str(logging.FieldKey, key.String()).Msg("Skipping non-cacheable write")
			return
		}
		CacheErrors.WithLabelValues("put").Inc()
		h.store.logger.Warn().
			Err(err).
			Str(logging.FieldGeneration, h.generation).
			Str(logging.FieldKey, key.String()).
			Msg("Cache write failed")
	}
}

// AddAll stores every entry and returns the first failure. Install uses
// it where a missing write must abort the deployment.
func (h *Handle) AddAll(ctx context.Context, entries map[CacheKey]*CacheEntry) error {
	for key, entry := range entries {
		if err := h.put(ctx, key, entry); err != nil {
			return fmt.Errorf("add %s: %w", key, err)
		}
	}
	return nil
}

func (h *Handle) put(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if !key.Cacheable() {
		return ErrNotCacheable
	}
	if entry == nil {
		return ErrInvalidEntry
	}
	if entry.StatusCode == http.StatusPartialContent {
		return ErrNotCacheable
	}
	stored := entry.Clone()
	stored.Generation = h.generation
	stored.Method = key.Method
	stored.URL = key.URI()
	if stored.CachedAt.IsZero() {
		stored.CachedAt = h.store.now()
	}
	if err := h.store.storage.Put(ctx, h.generation, key, stored); err != nil {
		return err
	}
	CacheStoredBytes.WithLabelValues(h.generation).Add(float64(stored.Size()))
	h.store.logger.Debug().
		Str(logging.FieldGeneration, h.generation).
		Str(logging.FieldKey, key.String()).
		Int("bytes", stored.Size()).
		Msg("Cached response")
	return nil
}

// Match looks key up in this generation only.
func (h *Handle) Match(ctx context.Context, key CacheKey) (*CacheEntry, bool) {
	if !key.Cacheable() {
		return nil, false
	}
	ent, err := h.store.storage.Get(ctx, h.generation, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			h.store.logger.Warn().Err(err).Str(logging.FieldGeneration, h.generation).Str(logging.FieldKey, key.String()).Msg("Cache get error")
		}
		return nil, false
	}
	return ent, true
}
