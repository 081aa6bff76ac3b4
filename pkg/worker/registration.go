package worker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/odam-offline-cache/pkg/client"
	"github.com/Sternrassler/odam-offline-cache/pkg/logging"
	"github.com/Sternrassler/odam-offline-cache/pkg/registry"
)

// Registration decides which worker controls the proxy. A new worker
// installs next to the active one, waits, and takes control on activation;
// a failed install leaves the active worker serving.
type Registration struct {
	// mu serializes lifecycle steps; request routing never takes it.
	mu      sync.Mutex
	active  atomic.Pointer[Worker]
	waiting *Worker

	skipWaiting bool
	tracker     registry.Tracker
	network     client.Fetcher
	logger      zerolog.Logger
}

// NewRegistration creates a registration with no controller. Until a
// worker activates, requests go straight to network. With skipWaiting a
// freshly installed worker activates at once.
func NewRegistration(tracker registry.Tracker, network client.Fetcher, skipWaiting bool, logger zerolog.Logger) *Registration {
	if tracker == nil {
		tracker = registry.NewMemoryTracker(logger)
	}
	return &Registration{
		skipWaiting: skipWaiting,
		tracker:     tracker,
		network:     network,
		logger:      logger,
	}
}

// Controller returns the active worker, or nil.
func (r *Registration) Controller() *Worker {
	return r.active.Load()
}

// Waiting returns the installed worker waiting to activate, or nil.
func (r *Registration) Waiting() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

// Register installs w. On success w waits; it activates immediately when
// skipWaiting is set or nothing is active yet. An install failure is
// returned as *InstallError and changes nothing for the active worker.
func (r *Registration) Register(ctx context.Context, w *Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.save(ctx, w.Generation(), registry.PhaseInstalling)

	if err := w.Install(ctx); err != nil {
		r.save(ctx, "", registry.PhaseInstallFailed)
		return err
	}

	if prev := r.waiting; prev != nil && prev != w {
		prev.retire()
		r.logger.Info().Str(logging.FieldGeneration, prev.Generation()).Msg("Waiting worker replaced")
	}
	r.waiting = w
	r.save(ctx, w.Generation(), registry.PhaseWaiting)

	if r.skipWaiting || r.active.Load() == nil {
		return r.activateLocked(ctx)
	}
	r.logger.Info().Str(logging.FieldGeneration, w.Generation()).Msg("Worker installed and waiting")
	return nil
}

// SkipWaiting activates the waiting worker.
func (r *Registration) SkipWaiting(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waiting == nil {
		return ErrNoWaitingWorker
	}
	return r.activateLocked(ctx)
}

// activateLocked runs the waiting worker's cleanup, then claims control.
// The previous worker is retired and drained, and whatever it wrote while
// draining is swept.
func (r *Registration) activateLocked(ctx context.Context) error {
	w := r.waiting
	r.save(ctx, w.Generation(), registry.PhaseActivating)

	if err := w.Activate(ctx); err != nil {
		r.save(ctx, w.Generation(), registry.PhaseWaiting)
		return err
	}

	prev := r.active.Swap(w)
	r.waiting = nil
	r.logger.Info().Str(logging.FieldGeneration, w.Generation()).Msg("Worker claimed control")

	if prev != nil && prev != w {
		prev.retire()
		if err := prev.Close(ctx); err != nil {
			r.logger.Warn().Err(err).Str(logging.FieldGeneration, prev.Generation()).Msg("Previous worker did not drain")
		}
		if err := w.deleteStale(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("Stale generation sweep failed")
		}
	}

	r.save(ctx, "", registry.PhaseActive)
	return nil
}

// save records the registration state. Tracker failures are logged; the
// lifecycle does not depend on them.
func (r *Registration) save(ctx context.Context, waiting string, phase registry.Phase) {
	state := &registry.State{Phase: phase, WaitingGeneration: waiting}
	if active := r.active.Load(); active != nil {
		state.ActiveGeneration = active.Generation()
	}
	if waiting == state.ActiveGeneration {
		state.WaitingGeneration = ""
	}
	if err := r.tracker.Save(ctx, state); err != nil {
		r.logger.Warn().Err(err).Str(logging.FieldPhase, string(phase)).Msg("Registration state not saved")
	}
}

// State returns the persisted registration state.
func (r *Registration) State(ctx context.Context) (*registry.State, error) {
	return r.tracker.GetState(ctx)
}

// ServeHTTP routes the request through the active worker, or straight to
// the network when there is none.
func (r *Registration) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if w := r.active.Load(); w != nil {
		w.ServeHTTP(rw, req)
		return
	}
	if r.network == nil {
		writeError(rw, client.ErrNetworkUnavailable)
		return
	}
	resp, err := r.network.Fetch(req.Context(), req)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeResponse(rw, resp, r.logger)
}

// CacheStatus reports the active worker's cache status.
func (r *Registration) CacheStatus(ctx context.Context) (CacheStatus, error) {
	w := r.active.Load()
	if w == nil {
		return CacheStatus{}, ErrNoController
	}
	return w.CacheStatus(ctx), nil
}

// ClearCache deletes the active worker's generation.
func (r *Registration) ClearCache(ctx context.Context) error {
	w := r.active.Load()
	if w == nil {
		return ErrNoController
	}
	return w.ClearCache(ctx)
}

// Close waits for the background tasks of every worker.
func (r *Registration) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if w := r.active.Load(); w != nil {
		errs = append(errs, w.Close(ctx))
	}
	if r.waiting != nil {
		errs = append(errs, r.waiting.Close(ctx))
	}
	return errors.Join(errs...)
}
