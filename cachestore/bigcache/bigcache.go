// Package bigcache implements cachestore.Store on allegro/bigcache.
//
// BigCache has a single, global entry lifetime (LifeWindow); per-key TTLs passed to
// Set are ignored. Pattern deletes iterate the whole cache.
package bigcache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/shelfcache/cachestore"
)

type Store struct {
	c      *bc.BigCache
	closed atomic.Bool
}

var _ cachestore.Store = (*Store)(nil)

type Config struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	Shards             int // power of two
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Store, error) {
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = time.Hour
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (p *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	if p.closed.Load() {
		return nil, false, cachestore.ErrClosed
	}
	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	return b, err == nil, err
}

func (p *Store) Set(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	if p.closed.Load() {
		return false, cachestore.ErrClosed
	}
	// BigCache does not support per-entry TTL; uses global LifeWindow.
	return true, p.c.Set(key, value)
}

func (p *Store) Del(_ context.Context, keys ...string) error {
	if p.closed.Load() {
		return cachestore.ErrClosed
	}
	for _, k := range keys {
		if err := p.c.Delete(k); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
			return err
		}
	}
	return nil
}

func (p *Store) DelPattern(_ context.Context, pattern string) (int, error) {
	if p.closed.Load() {
		return 0, cachestore.ErrClosed
	}
	var matched []string
	it := p.c.Iterator()
	for it.SetNext() {
		e, err := it.Value()
		if err != nil {
			// entry vanished between SetNext and Value
			continue
		}
		if k := e.Key(); cachestore.Match(pattern, k) {
			matched = append(matched, k)
		}
	}
	removed := 0
	for _, k := range matched {
		err := p.c.Delete(k)
		switch {
		case err == nil:
			removed++
		case !errors.Is(err, bc.ErrEntryNotFound):
			return removed, err
		}
	}
	return removed, nil
}

func (p *Store) Exists(_ context.Context, key string) (bool, error) {
	if p.closed.Load() {
		return false, cachestore.ErrClosed
	}
	_, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (p *Store) Len() int { return p.c.Len() }

func (p *Store) Close(_ context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.c.Close()
}
