// Command offline-proxy serves a site through an offline cache: critical
// assets are pre-warmed at startup and every request is answered by the
// strategy its destination calls for.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/odam-offline-cache/pkg/cache"
	"github.com/Sternrassler/odam-offline-cache/pkg/client"
	"github.com/Sternrassler/odam-offline-cache/pkg/config"
	"github.com/Sternrassler/odam-offline-cache/pkg/control"
	"github.com/Sternrassler/odam-offline-cache/pkg/logging"
	"github.com/Sternrassler/odam-offline-cache/pkg/metrics"
	"github.com/Sternrassler/odam-offline-cache/pkg/precache"
	"github.com/Sternrassler/odam-offline-cache/pkg/registry"
	"github.com/Sternrassler/odam-offline-cache/pkg/tracing"
	"github.com/Sternrassler/odam-offline-cache/pkg/worker"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("OFFLINE_PROXY_CONFIG"), "path to the offline proxy manifest")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		Service: logging.DefaultService,
		Pretty:  cfg.Logging.Pretty,
		Output:  os.Stderr,
	})
	logger := logging.NewLogger("offline-proxy")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Offline proxy failed")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint: cfg.Tracing.Endpoint,
		Version:  cfg.Generation,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		a.close(context.Background())
		return fmt.Errorf("listen %s: %w", cfg.Addr(), err)
	}

	srv := &http.Server{
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Addr()).
			Str("origin", cfg.Server.Origin).
			Str(logging.FieldGeneration, cfg.Generation).
			Str("backend", cfg.Storage.Backend).
			Msg("Starting offline proxy")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Server shutdown incomplete")
	}
	a.close(shutdownCtx)
	logger.Info().Msg("Offline proxy stopped")
	return err
}

// app is the wired proxy: storage, registration and control surface.
type app struct {
	redis        *redis.Client
	storage      cache.Storage
	tracker      registry.Tracker
	registration *worker.Registration
	channel      *control.Channel
	logger       zerolog.Logger
}

// newApp builds the storage backend, installs the configured generation and
// wires the control channel. An install failure is logged, not returned:
// the proxy still forwards to the network and a later restart retries.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{logger: logging.NewLogger("offline-proxy")}

	if err := a.openStorage(ctx, cfg); err != nil {
		return nil, err
	}

	origin, err := client.New(client.DefaultConfig(cfg.Server.Origin))
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("origin client: %w", err)
	}

	store := cache.NewStore(a.storage, logging.NewLogger("cache"))
	w, err := worker.New(worker.Config{
		Generation:     cfg.Generation,
		CriticalAssets: cfg.CriticalAssets,
		APIPrefix:      cfg.APIPrefix,
		Precache: precache.Config{
			MaxConcurrency: cfg.Precache.MaxConcurrency,
			Timeout:        cfg.Precache.Timeout,
		},
	}, store, origin, logging.NewLogger("worker"))
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("worker: %w", err)
	}

	a.registration = worker.NewRegistration(a.tracker, origin, cfg.SkipWaiting, logging.NewLogger("registration"))
	a.channel = control.NewChannel(a.registration, nil, logging.NewLogger("control"))

	if err := a.registration.Register(ctx, w); err != nil {
		a.logger.Error().
			Err(err).
			Str(logging.FieldGeneration, cfg.Generation).
			Msg("Install failed, forwarding to network")
	}
	return a, nil
}

func (a *app) openStorage(ctx context.Context, cfg config.Config) error {
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.redis.Close()
			return fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		a.logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
		a.storage = cache.NewRedisStorage(a.redis)
		a.tracker = registry.NewRedisTracker(a.redis, logging.NewLogger("registry"))
	case config.BackendLevelDB:
		s, err := cache.OpenLevelDBStorage(cfg.Storage.LevelDBPath)
		if err != nil {
			return fmt.Errorf("open leveldb: %w", err)
		}
		a.storage = s
		a.tracker = registry.NewMemoryTracker(logging.NewLogger("registry"))
	default:
		a.storage = cache.NewMemoryStorage()
		a.tracker = registry.NewMemoryTracker(logging.NewLogger("registry"))
	}
	return nil
}

// handler routes the control surface, health and metrics; everything else
// goes through the registration.
func (a *app) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(control.PathPrefix, a.channel.Handler())
	mux.Handle("GET /health", registry.Handler(a.tracker))
	mux.Handle("GET "+metrics.Path, metrics.Handler())
	mux.Handle("/", a.registration)
	return mux
}

func (a *app) close(ctx context.Context) {
	if a.registration != nil {
		if err := a.registration.Close(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Registration did not drain")
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
