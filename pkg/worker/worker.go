// Package worker runs the offline cache lifecycle: a Worker is one deployed
// cache generation that installs, activates and then answers intercepted
// requests; a Registration decides which worker controls the proxy.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/odam-offline-cache/pkg/cache"
	"github.com/Sternrassler/odam-offline-cache/pkg/client"
	"github.com/Sternrassler/odam-offline-cache/pkg/logging"
	"github.com/Sternrassler/odam-offline-cache/pkg/precache"
	"github.com/Sternrassler/odam-offline-cache/pkg/strategy"
)

// State is a worker's lifecycle position.
type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

// Origin is the network side of a worker: per-request forwarding plus the
// strict asset fetch used by install.
type Origin interface {
	client.Fetcher
	precache.AssetFetcher
}

// Config describes one deployment.
type Config struct {
	// Generation names the cache this worker owns. It must change with
	// every deployment that changes cached content.
	Generation string

	// CriticalAssets must all be cached before the worker installs.
	CriticalAssets []string

	// APIPrefix is the reserved path prefix of the site's API.
	APIPrefix string

	// Precache configures the install fetch pool.
	Precache precache.Config

	// TaskLimit and TaskTimeout bound background cache refreshes.
	TaskLimit   int
	TaskTimeout time.Duration
}

// CacheStatus is the worker's answer to a status query.
type CacheStatus struct {
	Version        string `json:"version"`
	CriticalAssets int    `json:"criticalAssets"`
}

// Worker is one deployed cache generation.
type Worker struct {
	config     Config
	store      *cache.Store
	precacher  *precache.Precacher
	classifier *strategy.Classifier
	runtime    *strategy.Runtime
	logger     zerolog.Logger

	mu        sync.RWMutex
	state     State
	installed bool

	// prewarmed counts critical assets stored by the last install.
	prewarmed atomic.Int64
}

// New creates a worker in the parsed state.
func New(cfg Config, store *cache.Store, origin Origin, logger zerolog.Logger) (*Worker, error) {
	if cfg.Generation == "" {
		return nil, fmt.Errorf("generation is required")
	}
	if store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if origin == nil {
		return nil, fmt.Errorf("origin is required")
	}

	logger = logger.With().Str(logging.FieldGeneration, cfg.Generation).Logger()

	return &Worker{
		config:     cfg,
		store:      store,
		precacher:  precache.New(origin, cfg.Precache),
		classifier: strategy.NewClassifier(cfg.CriticalAssets, cfg.APIPrefix),
		runtime: &strategy.Runtime{
			Store:   store,
			Fetcher: origin,
			Tasks:   strategy.NewTasks(cfg.TaskLimit, cfg.TaskTimeout, logger),
			Logger:  logger,
		},
		logger: logger,
		state:  StateParsed,
	}, nil
}

// Generation returns the cache generation the worker owns.
func (w *Worker) Generation() string {
	return w.config.Generation
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// transition moves to next if the current state is one of from.
func (w *Worker) transition(next State, from ...State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range from {
		if w.state == s {
			w.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: cannot enter %s from %s", ErrInvalidState, next, w.state)
}

// Install opens the worker's generation and stores every critical asset.
// All assets are fetched before any is written; one failure aborts the
// install, marks the worker redundant and returns an *InstallError.
// Installing again rewrites the same contents.
func (w *Worker) Install(ctx context.Context) error {
	if err := w.transition(StateInstalling, StateParsed, StateInstalled); err != nil {
		return err
	}
	start := time.Now()
	w.logger.Info().Int("assets", len(w.config.CriticalAssets)).Msg("Installing worker")

	fail := func(err error) error {
		w.setState(StateRedundant)
		w.logger.Error().Err(err).Dur(logging.FieldDuration, time.Since(start)).Msg("Install failed")
		return &InstallError{Generation: w.config.Generation, Err: err}
	}

	handle, err := w.store.Open(ctx, w.config.Generation)
	if err != nil {
		return fail(err)
	}

	assets, err := w.precacher.FetchAll(ctx, w.config.CriticalAssets)
	if err != nil {
		return fail(err)
	}

	if err := handle.AddAll(ctx, assets.Entries()); err != nil {
		return fail(err)
	}

	w.prewarmed.Store(int64(len(assets)))
	w.mu.Lock()
	w.runtime.Cache = handle
	w.installed = true
	w.state = StateInstalled
	w.mu.Unlock()

	w.logger.Info().
		Int("assets", len(assets)).
		Dur(logging.FieldDuration, time.Since(start)).
		Msg("Worker installed")
	return nil
}

// Activate deletes every generation except the worker's own and only then
// marks the worker activated.
func (w *Worker) Activate(ctx context.Context) error {
	if err := w.transition(StateActivating, StateInstalled); err != nil {
		return err
	}
	w.logger.Info().Msg("Activating worker")

	if err := w.deleteStale(ctx); err != nil {
		w.setState(StateInstalled)
		return fmt.Errorf("activate %s: %w", w.config.Generation, err)
	}

	w.setState(StateActivated)
	w.logger.Info().Msg("Worker activated")
	return nil
}

// deleteStale removes every generation other than the worker's own.
func (w *Worker) deleteStale(ctx context.Context) error {
	gens, err := w.store.Generations(ctx)
	if err != nil {
		return fmt.Errorf("list generations: %w", err)
	}
	for _, gen := range gens {
		if gen == w.config.Generation {
			continue
		}
		if _, err := w.store.Delete(ctx, gen); err != nil {
			return err
		}
	}
	return nil
}

// Handle answers an intercepted request with the strategy its kind is
// assigned to. A worker that never installed passes requests through.
func (w *Worker) Handle(ctx context.Context, req *http.Request) (*http.Response, error) {
	w.mu.RLock()
	installed := w.installed
	w.mu.RUnlock()

	kind := w.classifier.ClassifyRequest(req)
	s := strategy.For(kind)
	if !installed {
		s = strategy.PassThrough{}
	}

	w.logger.Debug().
		Str(logging.FieldPath, req.URL.Path).
		Str(logging.FieldKind, string(kind)).
		Str(logging.FieldStrategy, string(s.Name())).
		Msg("Request classified")

	return strategy.Run(ctx, w.runtime, s, req)
}

// ServeHTTP handles the request and writes the response.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	resp, err := w.Handle(r.Context(), r)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeResponse(rw, resp, w.logger)
}

// CacheStatus reports the worker's generation and how many critical assets
// its last install pre-warmed. ClearCache resets the count to zero.
func (w *Worker) CacheStatus(_ context.Context) CacheStatus {
	return CacheStatus{
		Version:        w.config.Generation,
		CriticalAssets: int(w.prewarmed.Load()),
	}
}

// ClearCache deletes the worker's generation. Offline support is gone until
// the next successful install.
func (w *Worker) ClearCache(ctx context.Context) error {
	if _, err := w.store.Delete(ctx, w.config.Generation); err != nil {
		return err
	}
	w.prewarmed.Store(0)
	w.logger.Info().Msg("Cache cleared")
	return nil
}

// retire marks the worker redundant and stops its cache writes.
func (w *Worker) retire() {
	w.runtime.Freeze()
	w.setState(StateRedundant)
}

// Close waits for the worker's background tasks.
func (w *Worker) Close(ctx context.Context) error {
	return w.runtime.Tasks.WaitContext(ctx)
}
