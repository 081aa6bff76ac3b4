package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/odam-offline-cache/pkg/logging"
)

// Prometheus metrics for registration tracking.
var (
	registrationPhase = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "offline_registration_phase",
		Help: "Current registration phase (1 for the current phase) by active generation",
	}, []string{"generation", "phase"})

	registrationUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_registration_updates_total",
		Help: "Total registration state updates by phase",
	}, []string{"phase"})
)

// Tracker loads and saves registration state.
type Tracker interface {
	// GetState returns the current state. A registry that was never
	// written returns a PhaseNone state.
	GetState(ctx context.Context) (*State, error)

	// Save replaces the current state and stamps LastUpdate.
	Save(ctx context.Context, state *State) error
}

func emptyState() *State {
	return &State{Phase: PhaseNone}
}

func observe(state *State) {
	registrationPhase.Reset()
	registrationPhase.WithLabelValues(state.ActiveGeneration, string(state.Phase)).Set(1)
	registrationUpdatesTotal.WithLabelValues(string(state.Phase)).Inc()
}

func logSaved(logger zerolog.Logger, state *State) {
	event := logger.Info()
	if state.Phase == PhaseInstallFailed {
		event = logger.Warn()
	}
	event.
		Str(logging.FieldGeneration, state.ActiveGeneration).
		Str("waiting_generation", state.WaitingGeneration).
		Str(logging.FieldPhase, string(state.Phase)).
		Msg("Registration state updated")
}

// RedisTracker keeps the state in Redis so every proxy instance sees the
// same registration.
type RedisTracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewRedisTracker creates a Redis-backed tracker.
func NewRedisTracker(redisClient *redis.Client, logger zerolog.Logger) *RedisTracker {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisTracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the registration state from Redis.
func (t *RedisTracker) GetState(ctx context.Context) (*State, error) {
	phase, err := t.redis.Get(ctx, RedisKeyPhase).Result()
	if errors.Is(err, redis.Nil) {
		t.logger.Debug().Msg("No registration state in Redis")
		return emptyState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get phase: %w", err)
	}

	active, err := t.redis.Get(ctx, RedisKeyActiveGeneration).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get active generation: %w", err)
	}

	waiting, err := t.redis.Get(ctx, RedisKeyWaitingGeneration).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get waiting generation: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	return &State{
		ActiveGeneration:  active,
		WaitingGeneration: waiting,
		Phase:             Phase(phase),
		LastUpdate:        lastUpdate,
	}, nil
}

// Save stores the state in Redis atomically.
func (t *RedisTracker) Save(ctx context.Context, state *State) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}
	state.LastUpdate = time.Now()

	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	pipe := t.redis.TxPipeline()
	pipe.Set(ctx, RedisKeyActiveGeneration, state.ActiveGeneration, 0)
	pipe.Set(ctx, RedisKeyWaitingGeneration, state.WaitingGeneration, 0)
	pipe.Set(ctx, RedisKeyPhase, string(state.Phase), 0)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store registration state in redis: %w", err)
	}

	observe(state)
	logSaved(t.logger, state)
	return nil
}

// MemoryTracker keeps the state in process memory.
type MemoryTracker struct {
	mu     sync.RWMutex
	state  State
	saved  bool
	logger zerolog.Logger
}

// NewMemoryTracker creates an in-memory tracker.
func NewMemoryTracker(logger zerolog.Logger) *MemoryTracker {
	return &MemoryTracker{logger: logger}
}

// GetState returns a copy of the current state.
func (t *MemoryTracker) GetState(_ context.Context) (*State, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.saved {
		return emptyState(), nil
	}
	s := t.state
	return &s, nil
}

// Save replaces the current state.
func (t *MemoryTracker) Save(_ context.Context, state *State) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}
	state.LastUpdate = time.Now()

	t.mu.Lock()
	t.state = *state
	t.saved = true
	t.mu.Unlock()

	observe(state)
	logSaved(t.logger, state)
	return nil
}
