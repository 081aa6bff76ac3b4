// Package logging configures the zerolog logger shared by the proxy's
// components and names the context fields they attach.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultService is stamped on every line when Config.Service is empty.
const DefaultService = "offline-proxy"

// LogLevel is a level name as it appears in the manifest.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	Level LogLevel

	// Service names the process in every line so the proxy's output can be
	// told apart from the origin's when both ship to one sink.
	Service string

	// Pretty switches to console output with a short clock.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns JSON output at info level for the proxy service.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Service: DefaultService,
		Output:  os.Stderr,
	}
}

// Setup installs the global logger described by cfg and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level.zerolog())

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	service := cfg.Service
	if service == "" {
		service = DefaultService
	}
	log.Logger = zerolog.New(out).With().Timestamp().Str(FieldService, service).Logger()
	return log.Logger
}

func (l LogLevel) zerolog() zerolog.Level {
	switch ParseLevel(string(l)) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel converts a level name from configuration, defaulting to info.
func ParseLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str(FieldComponent, component).Logger()
}

// Context field names shared by all components.
const (
	FieldService    = "service"
	FieldComponent  = "component"
	FieldGeneration = "generation"
	FieldKey        = "key"
	FieldStrategy   = "strategy"
	FieldSource     = "source"
	FieldKind       = "kind"
	FieldErrorClass = "error_class"
	FieldPath       = "path"
	FieldPhase      = "phase"
	FieldTag        = "tag"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration"
)

// Level use in the proxy:
//
// Debug: cache hits and misses, strategy decisions, skipped cache writes,
// background refresh results.
//
// Info: install and activation of a generation, stale generations deleted,
// control messages, server startup and shutdown.
//
// Warn: requests answered by neither network nor cache, failed cache writes
// (the response is still served), dropped refreshes, registration state that
// could not be persisted.
//
// Error: failed installs (the previous generation keeps serving), storage
// backend unavailable, configuration errors.
//
// Fields:
//   - service: process name (offline-proxy)
//   - component: origin-client, worker, registration, control, precache
//   - generation: cache generation name
//   - key: cache key (method and URI)
//   - strategy, source: strategy that answered and where the body came from
//   - kind: request classification (CRITICAL, ASSETS, IMAGES, API)
//   - error_class: origin failure class (client, server, network)
//   - path, status_code, duration: request details
//   - phase: registration phase
//   - tag: background sync tag
