// Package config loads the deployment manifest for the offline proxy.
//
// Configuration comes from a YAML file and is then overridden by environment
// variables. Both sources are optional; Default reproduces the site the
// proxy was built for.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory  = "memory"
	BackendRedis   = "redis"
	BackendLevelDB = "leveldb"
)

// DefaultGeneration is the cache generation shipped with the site.
const DefaultGeneration = "odam-music-v3.0.0"

// DefaultCriticalAssets lists the app shell pre-warmed at install.
var DefaultCriticalAssets = []string{
	"/",
	"/index.html",
	"/styles.css",
	"/script.js",
	"/global-config.js",
	"/logo.jpg",
	"/logo-192x192.png",
	"/logo-512x512.png",
	"/manifest.json",
}

// Config is the full deploy-time configuration.
type Config struct {
	Generation     string   `yaml:"generation"`
	CriticalAssets []string `yaml:"criticalAssets"`
	APIPrefix      string   `yaml:"apiPrefix"`
	SkipWaiting    bool     `yaml:"skipWaiting"`

	Server struct {
		Port   int    `yaml:"port"`
		Origin string `yaml:"origin"`
	} `yaml:"server"`

	Storage struct {
		Backend     string `yaml:"backend"`
		RedisURL    string `yaml:"redisURL"`
		LevelDBPath string `yaml:"leveldbPath"`
	} `yaml:"storage"`

	Precache struct {
		MaxConcurrency int           `yaml:"maxConcurrency"`
		Timeout        time.Duration `yaml:"timeout"`
	} `yaml:"precache"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`

	Tracing struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"tracing"`
}

// overrides maps environment variables onto Config. Pointer fields stay nil
// when the variable is unset so the manifest value survives.
type overrides struct {
	Port        *int    `env:"PORT"`
	Origin      *string `env:"ORIGIN_URL"`
	Generation  *string `env:"CACHE_GENERATION"`
	Backend     *string `env:"CACHE_BACKEND"`
	RedisURL    *string `env:"REDIS_URL"`
	LevelDBPath *string `env:"LEVELDB_PATH"`
	LogLevel    *string `env:"LOG_LEVEL"`
	LogPretty   *bool   `env:"LOG_PRETTY"`
	Tracing     *string `env:"OTEL_ENDPOINT"`
}

// Default returns the built-in configuration. Origin is left empty and must
// be supplied by the manifest or ORIGIN_URL.
func Default() Config {
	var cfg Config
	cfg.Generation = DefaultGeneration
	cfg.CriticalAssets = append([]string(nil), DefaultCriticalAssets...)
	cfg.APIPrefix = "/api/"
	cfg.SkipWaiting = true
	cfg.Server.Port = 8080
	cfg.Storage.Backend = BackendMemory
	cfg.Storage.RedisURL = "redis://localhost:6379"
	cfg.Storage.LevelDBPath = "./data/offline-cache"
	cfg.Precache.MaxConcurrency = 6
	cfg.Precache.Timeout = 15 * time.Second
	cfg.Logging.Level = "info"
	return cfg
}

// Load reads the manifest at path (skipped when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Server.Origin = strings.TrimRight(cfg.Server.Origin, "/")
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var o overrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	setInt(&cfg.Server.Port, o.Port)
	setString(&cfg.Server.Origin, o.Origin)
	setString(&cfg.Generation, o.Generation)
	setString(&cfg.Storage.Backend, o.Backend)
	setString(&cfg.Storage.RedisURL, o.RedisURL)
	setString(&cfg.Storage.LevelDBPath, o.LevelDBPath)
	setString(&cfg.Logging.Level, o.LogLevel)
	if o.LogPretty != nil {
		cfg.Logging.Pretty = *o.LogPretty
	}
	setString(&cfg.Tracing.Endpoint, o.Tracing)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Server.Origin == "" {
		return errors.New("server.origin is required")
	}
	if !strings.HasPrefix(c.Server.Origin, "http://") && !strings.HasPrefix(c.Server.Origin, "https://") {
		return fmt.Errorf("server.origin: unsupported scheme in %q", c.Server.Origin)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	if strings.TrimSpace(c.Generation) == "" {
		return errors.New("generation is required")
	}
	for i, p := range c.CriticalAssets {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("criticalAssets[%d]: %q is not root-relative", i, p)
		}
	}
	if c.APIPrefix != "" && !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("apiPrefix: %q is not root-relative", c.APIPrefix)
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			return errors.New("storage.redisURL is required for the redis backend")
		}
	case BackendLevelDB:
		if c.Storage.LevelDBPath == "" {
			return errors.New("storage.leveldbPath is required for the leveldb backend")
		}
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend)
	}
	if c.Precache.MaxConcurrency < 0 {
		return fmt.Errorf("precache.maxConcurrency: %d is negative", c.Precache.MaxConcurrency)
	}
	if c.Precache.Timeout < 0 {
		return fmt.Errorf("precache.timeout: %s is negative", c.Precache.Timeout)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
