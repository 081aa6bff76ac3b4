package precache

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/odam-offline-cache/pkg/cache"
	"github.com/Sternrassler/odam-offline-cache/pkg/logging"
)

// Config holds precacher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel asset fetches.
	MaxConcurrency int

	// Timeout per asset fetch.
	Timeout time.Duration
}

// DefaultConfig returns the default configuration. Browsers open about
// six connections per origin; the precacher does the same.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 6,
		Timeout:        15 * time.Second,
	}
}

// AssetFetcher fetches one asset and requires a 2xx answer.
type AssetFetcher interface {
	FetchAsset(ctx context.Context, path string) (*http.Response, error)
}

// AssetError reports the asset that aborted a precache run.
type AssetError struct {
	Path string
	Err  error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("precache %s: %v", e.Path, e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}

// Assets holds fetched snapshots keyed by asset path.
type Assets map[string]*cache.CacheEntry

// Entries returns the assets keyed by their GET cache key.
func (a Assets) Entries() map[cache.CacheKey]*cache.CacheEntry {
	out := make(map[cache.CacheKey]*cache.CacheEntry, len(a))
	for path, entry := range a {
		out[cache.ParseKey(http.MethodGet, path)] = entry
	}
	return out
}

// Precacher fetches asset lists in parallel.
type Precacher struct {
	fetcher AssetFetcher
	config  Config
}

// New creates a precacher.
func New(fetcher AssetFetcher, config Config) *Precacher {
	d := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = d.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = d.Timeout
	}
	return &Precacher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAll fetches every path and returns all snapshots, or the first
// failure as an *AssetError. Duplicate paths are fetched once.
func (p *Precacher) FetchAll(ctx context.Context, paths []string) (Assets, error) {
	start := time.Now()

	unique := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		unique = append(unique, path)
	}

	log.Info().
		Int("assets", len(unique)).
		Int("max_concurrency", p.config.MaxConcurrency).
		Msg("Starting precache")

	results := make(Assets, len(unique))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxConcurrency)

	for _, path := range unique {
		g.Go(func() error {
			entry, err := p.fetchOne(gctx, path)
			if err != nil {
				log.Warn().Err(err).Str(logging.FieldPath, path).Msg("Precache fetch failed")
				return &AssetError{Path: path, Err: err}
			}
			mu.Lock()
			results[path] = entry
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info().
		Int("assets", len(results)).
		Dur(logging.FieldDuration, time.Since(start)).
		Msg("Precache complete")

	return results, nil
}

func (p *Precacher) fetchOne(ctx context.Context, path string) (*cache.CacheEntry, error) {
	assetCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	resp, err := p.fetcher.FetchAsset(assetCtx, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		return nil, err
	}
	entry.Method = http.MethodGet
	entry.URL = path
	return entry, nil
}
