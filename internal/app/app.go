// Package app assembles the repositories and their dependencies from a config.Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/shelfcache"
	"github.com/unkn0wn-root/shelfcache/cachestore"
	bigcachestore "github.com/unkn0wn-root/shelfcache/cachestore/bigcache"
	redisstore "github.com/unkn0wn-root/shelfcache/cachestore/redis"
	ristrettostore "github.com/unkn0wn-root/shelfcache/cachestore/ristretto"
	asynchook "github.com/unkn0wn-root/shelfcache/hooks/async"
	promhook "github.com/unkn0wn-root/shelfcache/hooks/prom"
	sloghook "github.com/unkn0wn-root/shelfcache/hooks/slog"
	"github.com/unkn0wn-root/shelfcache/internal/config"
	logrusadapter "github.com/unkn0wn-root/shelfcache/log/logrus"
	slogadapter "github.com/unkn0wn-root/shelfcache/log/slog"
	zapadapter "github.com/unkn0wn-root/shelfcache/log/zap"
	"github.com/unkn0wn-root/shelfcache/store"
	"github.com/unkn0wn-root/shelfcache/store/memory"
	"github.com/unkn0wn-root/shelfcache/store/postgres"
	"github.com/unkn0wn-root/shelfcache/store/sqlite"
)

// App owns every resource built by New. Close releases them in reverse order.
type App struct {
	Books     shelfcache.BookRepository
	Libraries shelfcache.LibraryRepository
	Store     store.Store
	Cache     cachestore.Store // nil when caching is off
	Logger    shelfcache.Logger
	// Registry is non-nil when metrics are enabled.
	Registry *prometheus.Registry

	closers []func(context.Context) error
}

// Option customises New.
type Option func(*options)

type options struct {
	logOut io.Writer
}

// WithLogOutput redirects every logger to w (default os.Stderr).
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOut = w }
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logOut: os.Stderr}
	for _, fn := range opts {
		fn(&o)
	}

	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	sl, err := a.buildLogger(cfg, o.logOut)
	if err != nil {
		return nil, err
	}
	hooks, err := a.buildHooks(cfg, sl)
	if err != nil {
		return nil, err
	}
	if a.Store, err = a.openStore(ctx, cfg); err != nil {
		return nil, err
	}
	if a.Cache, err = a.openCache(ctx, cfg); err != nil {
		return nil, err
	}
	codecs, err := shelfcache.CodecsFor(cfg.Codec)
	if err != nil {
		return nil, err
	}

	ro := shelfcache.Options{
		Cache:        a.Cache,
		Codecs:       codecs,
		Logger:       a.Logger,
		Hooks:        hooks,
		EntityTTL:    cfg.EntityTTL,
		SearchTTL:    cfg.SearchTTL,
		CacheTimeout: cfg.CacheTimeout,
	}
	if a.Books, err = shelfcache.NewBookRepository(a.Store, ro); err != nil {
		return nil, err
	}
	if a.Libraries, err = shelfcache.NewLibraryRepository(a.Store, a.Books, ro); err != nil {
		return nil, err
	}
	a.Logger.Info("shelfcache ready", shelfcache.Fields{"store": cfg.Store, "cache": cfg.Cache, "codec": cfg.Codec})
	return a, nil
}

func (a *App) onClose(fn func(context.Context) error) { a.closers = append(a.closers, fn) }

// Close runs the registered closers last to first and joins their errors.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for _, fn := range slices.Backward(a.closers) {
		errs = append(errs, fn(ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

// buildLogger sets a.Logger and returns the slog logger the hooks write to.
func (a *App) buildLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	level := strings.ToLower(cfg.LogLevel)
	var sLevel slog.Level
	if err := sLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("app: log level: %w", err)
	}
	sl := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: sLevel}))

	switch cfg.Log {
	case "zap":
		zl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("app: log level: %w", err)
		}
		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(w),
			zl,
		)
		l := zap.New(core)
		a.onClose(func(context.Context) error {
			_ = l.Sync() // fails on non-syncable writers such as a terminal
			return nil
		})
		a.Logger = zapadapter.New(l)
	case "logrus":
		ll, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("app: log level: %w", err)
		}
		l := logrus.New()
		l.SetOutput(w)
		l.SetLevel(ll)
		l.SetFormatter(&logrus.JSONFormatter{})
		a.Logger = logrusadapter.New(l)
	default:
		a.Logger = slogadapter.New(sl)
	}
	return sl, nil
}

func (a *App) buildHooks(cfg config.Config, sl *slog.Logger) (shelfcache.Hooks, error) {
	hooks := shelfcache.MultiHooks{sloghook.New(sl, sloghook.Options{HitEvery: 100, MissEvery: 100})}
	if cfg.MetricsAddr != "" {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		ph, err := promhook.New(a.Registry, "")
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, ph)
	}
	h := asynchook.New(hooks, 1, 1024)
	a.onClose(func(context.Context) error {
		h.Close()
		return nil
	})
	return h, nil
}

func (a *App) openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store {
	case "sqlite":
		st, err = sqlite.Open(ctx, cfg.SQLitePath)
	case "postgres":
		st, err = postgres.Open(ctx, cfg.PostgresDSN)
	default:
		st = memory.New()
	}
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return st.Close() })
	return st, nil
}

func (a *App) openCache(ctx context.Context, cfg config.Config) (cachestore.Store, error) {
	var (
		cs  cachestore.Store
		err error
	)
	switch cfg.Cache {
	case "redis":
		cs, err = redisstore.Dial(ctx, cfg.RedisURL)
	case "ristretto":
		rc := ristrettostore.DefaultConfig()
		rc.Metrics = cfg.MetricsAddr != ""
		cs, err = ristrettostore.New(rc)
	case "bigcache":
		cs, err = bigcachestore.New(bigcachestore.Config{LifeWindow: max(cfg.EntityTTL, cfg.SearchTTL)})
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("app: cache %s: %w", cfg.Cache, err)
	}
	a.onClose(cs.Close)
	return cs, nil
}
