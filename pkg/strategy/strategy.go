// Package strategy decides how an intercepted request is answered: from the
// network, from the cache, or from both.
//
// A Classifier assigns every request a Kind, the Kind selects one of four
// strategies, and the strategy executes against a Runtime that carries the
// worker's cache, fetcher and background task tracker.
package strategy

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/odam-offline-cache/pkg/cache"
	"github.com/Sternrassler/odam-offline-cache/pkg/client"
	"github.com/Sternrassler/odam-offline-cache/pkg/logging"
)

const tracerName = "github.com/Sternrassler/odam-offline-cache/pkg/strategy"

// Name identifies a strategy.
type Name string

const (
	NameNetworkFirst         Name = "network-first"
	NameCacheFirst           Name = "cache-first"
	NameStaleWhileRevalidate Name = "stale-while-revalidate"
	NamePassThrough          Name = "pass-through"
)

// Assignments is the fixed Kind → strategy table.
var Assignments = map[Kind]Name{
	KindCritical: NameNetworkFirst,
	KindAssets:   NameStaleWhileRevalidate,
	KindImages:   NameCacheFirst,
	KindAPI:      NameNetworkFirst,
}

// Strategy answers one intercepted request. Execute fails only when
// neither the network nor the cache can produce a response.
type Strategy interface {
	Name() Name
	Execute(ctx context.Context, rt *Runtime, req *http.Request) (*http.Response, error)
}

// For returns the strategy assigned to kind. Unknown kinds pass through.
func For(kind Kind) Strategy {
	name, ok := Assignments[kind]
	if !ok {
		return PassThrough{}
	}
	return ByName(name)
}

// ByName returns the strategy called name, or PassThrough.
func ByName(name Name) Strategy {
	switch name {
	case NameNetworkFirst:
		return NetworkFirst{}
	case NameCacheFirst:
		return CacheFirst{}
	case NameStaleWhileRevalidate:
		return StaleWhileRevalidate{}
	default:
		return PassThrough{}
	}
}

// Runtime is the worker state every strategy executes against. It is
// created when a worker is built and shared by all its requests.
type Runtime struct {
	// Store reads across every generation.
	Store *cache.Store

	// Cache is the worker's own generation; all writes go here.
	Cache *cache.Handle

	// Fetcher performs network requests.
	Fetcher client.Fetcher

	// Tasks holds background refreshes open after the response is sent.
	Tasks *Tasks

	Logger zerolog.Logger

	revalidations singleflight.Group
	frozen        atomic.Bool
}

// Freeze stops every later cache write made through rt. A retired worker
// is frozen so that its stragglers cannot recreate a deleted generation.
func (rt *Runtime) Freeze() {
	rt.frozen.Store(true)
}

// Run executes s for req inside a trace span and records metrics.
func Run(ctx context.Context, rt *Runtime, s Strategy, req *http.Request) (*http.Response, error) {
	name := string(s.Name())
	key := cache.KeyFromRequest(req)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "strategy."+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("offline.strategy", name),
			attribute.String("offline.cache_key", key.String()),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := s.Execute(ctx, rt, req)
	strategyDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		strategyRequests.WithLabelValues(name, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		rt.Logger.Warn().
			Err(err).
			Str(logging.FieldStrategy, name).
			Str(logging.FieldKey, key.String()).
			Msg("No response from network or cache")
		return nil, err
	}

	source := sourceOf(resp)
	strategyRequests.WithLabelValues(name, source).Inc()
	span.SetAttributes(
		attribute.String("offline.source", source),
		attribute.Int("http.response.status_code", resp.StatusCode),
	)
	rt.Logger.Debug().
		Str(logging.FieldStrategy, name).
		Str(logging.FieldKey, key.String()).
		Str(logging.FieldSource, source).
		Int(logging.FieldStatusCode, resp.StatusCode).
		Dur(logging.FieldDuration, time.Since(start)).
		Msg("Request handled")
	return resp, nil
}

func sourceOf(resp *http.Response) string {
	if resp.Header.Get(cache.SourceHeader) == cache.SourceHit {
		return "cache"
	}
	return "network"
}

// store snapshots a live response into the worker's generation. The
// response body stays readable for the caller.
func (rt *Runtime) store(ctx context.Context, key cache.CacheKey, resp *http.Response) {
	if rt.frozen.Load() {
		return
	}
	if ok, reason := cache.Shareable(resp); !ok {
		rt.Logger.Debug().Str(logging.FieldKey, key.String()).Str("reason", reason).Msg("Response not shareable, skipping cache write")
		return
	}
	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		cache.CacheErrors.WithLabelValues("put").Inc()
		rt.Logger.Warn().Err(err).Str(logging.FieldKey, key.String()).Msg("Cache snapshot failed")
		return
	}
	rt.Cache.Put(ctx, key, entry)
}

// refreshDroppedHeaders would turn a background refresh into a partial or
// conditional fetch whose answer cannot replace a full entry.
var refreshDroppedHeaders = []string{
	"Range",
	"If-Range",
	"If-None-Match",
	"If-Modified-Since",
}

// revalidate refreshes key from the network in the background. Concurrent
// refreshes of one key collapse into a single fetch; failures are dropped.
func (rt *Runtime) revalidate(ctx context.Context, req *http.Request, key cache.CacheKey) {
	// The incoming request must not be touched after the handler returns.
	bg := req.Clone(context.Background())
	for _, h := range refreshDroppedHeaders {
		bg.Header.Del(h)
	}

	rt.Tasks.Go(ctx, "revalidate "+key.String(), func(ctx context.Context) {
		rt.revalidations.Do(key.String(), func() (any, error) {
			resp, err := rt.Fetcher.Fetch(ctx, bg.WithContext(ctx))
			if err != nil {
				revalidations.WithLabelValues("network_error").Inc()
				rt.Logger.Debug().Err(err).Str(logging.FieldKey, key.String()).Msg("Background refresh failed")
				return nil, nil
			}
			defer resp.Body.Close()

			if !client.IsOK(resp) {
				revalidations.WithLabelValues("not_ok").Inc()
				rt.Logger.Debug().
					Str(logging.FieldKey, key.String()).
					Int(logging.FieldStatusCode, resp.StatusCode).
					Msg("Background refresh returned non-2xx")
				return nil, nil
			}
			rt.store(ctx, key, resp)
			revalidations.WithLabelValues("updated").Inc()
			return nil, nil
		})
	})
}

// discard closes a response that will not be returned.
func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	resp.Body.Close()
}
