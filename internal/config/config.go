// Package config reads shelfctl settings from SHELF_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultEnvFiles are loaded, in order, by Load when no files are given.
var DefaultEnvFiles = []string{".env", ".env.local"}

type Config struct {
	Store        string // memory | sqlite | postgres
	SQLitePath   string
	PostgresDSN  string
	Cache        string // none | redis | ristretto | bigcache
	RedisURL     string
	Codec        string // json | msgpack | cbor | protobuf
	Log          string // zap | logrus | slog
	LogLevel     string
	EntityTTL    time.Duration
	SearchTTL    time.Duration
	CacheTimeout time.Duration
	MetricsAddr  string // empty disables /metrics
}

func Default() Config {
	return Config{
		Store:      "memory",
		SQLitePath: "shelf.db",
		Cache:      "none",
		RedisURL:   "redis://localhost:6379/0",
		Codec:      "json",
		Log:        "slog",
		LogLevel:   "info",
	}
}

// Load reads the env files (missing files are skipped) without overriding variables
// already present in the process environment, then parses the environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, starting from Default.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("config: %s: invalid duration %q", key, v))
			return
		}
		*dst = d
	}

	str("SHELF_STORE", &c.Store)
	str("SHELF_SQLITE_PATH", &c.SQLitePath)
	str("SHELF_POSTGRES_DSN", &c.PostgresDSN)
	str("SHELF_CACHE", &c.Cache)
	str("SHELF_REDIS_URL", &c.RedisURL)
	str("SHELF_CODEC", &c.Codec)
	str("SHELF_LOG", &c.Log)
	str("SHELF_LOG_LEVEL", &c.LogLevel)
	str("SHELF_METRICS_ADDR", &c.MetricsAddr)
	dur("SHELF_ENTITY_TTL", &c.EntityTTL)
	dur("SHELF_SEARCH_TTL", &c.SearchTTL)
	dur("SHELF_CACHE_TIMEOUT", &c.CacheTimeout)

	errs = append(errs, c.Validate())
	return c, errors.Join(errs...)
}

// Validate checks the enumerated settings.
func (c Config) Validate() error {
	var errs []error
	oneOf := func(key, v string, allowed ...string) {
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("config: %s: %q is not one of %s", key, v, strings.Join(allowed, "|")))
	}
	oneOf("SHELF_STORE", c.Store, "memory", "sqlite", "postgres")
	oneOf("SHELF_CACHE", c.Cache, "none", "redis", "ristretto", "bigcache")
	oneOf("SHELF_CODEC", c.Codec, "json", "msgpack", "cbor", "protobuf")
	oneOf("SHELF_LOG", c.Log, "zap", "logrus", "slog")
	oneOf("SHELF_LOG_LEVEL", strings.ToLower(c.LogLevel), "debug", "info", "warn", "error")
	return errors.Join(errs...)
}
