// Package ristretto implements cachestore.Store on dgraph-io/ristretto.
//
// Ristretto cannot enumerate its keys, so the store keeps a side index of live keys
// and their expiry for DelPattern. A sweep loop prunes expired index entries.
// Keys evicted by ristretto's admission policy linger in the index until they expire
// or are deleted; deleting an evicted key is a no-op.
package ristretto

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/shelfcache/cachestore"
)

type Store struct {
	c       *rc.Cache
	waitSet bool

	mu    sync.Mutex
	index map[string]time.Time // zero time = no expiry

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

var _ cachestore.Store = (*Store)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
	// SweepInterval prunes expired keys from the pattern index. 0 disables the loop.
	SweepInterval time.Duration
	// Synchronous waits for each Set to be applied, so a Get right after Set hits.
	Synchronous bool
	// Cost in Ristretto is the encoded value length.
}

// DefaultConfig sizes the cache for roughly 64MiB of values.
func DefaultConfig() Config {
	return Config{
		NumCounters:   1e6,
		MaxCost:       64 << 20,
		BufferItems:   64,
		SweepInterval: time.Minute,
	}
}

func New(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	s := &Store{c: c, waitSet: cfg.Synchronous, index: make(map[string]time.Time)}
	if cfg.SweepInterval > 0 {
		s.ticker = time.NewTicker(cfg.SweepInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Sweep(time.Now())
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, cachestore.ErrClosed
	}
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		s.c.Del(key)
		s.unindex(key)
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if s.closed.Load() {
		return false, cachestore.ErrClosed
	}
	if ttl < 0 {
		ttl = 0
	}
	v := append([]byte(nil), value...)
	ok := s.c.SetWithTTL(key, v, int64(len(v)), ttl)
	if !ok {
		return false, nil
	}
	if s.waitSet {
		s.c.Wait()
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.index[key] = exp
	s.mu.Unlock()
	return true, nil
}

func (s *Store) Del(_ context.Context, keys ...string) error {
	if s.closed.Load() {
		return cachestore.ErrClosed
	}
	for _, k := range keys {
		s.c.Del(k)
	}
	s.unindex(keys...)
	return nil
}

func (s *Store) DelPattern(_ context.Context, pattern string) (int, error) {
	if s.closed.Load() {
		return 0, cachestore.ErrClosed
	}
	now := time.Now()
	var matched []string
	s.mu.Lock()
	for k, exp := range s.index {
		if !exp.IsZero() && !exp.After(now) {
			delete(s.index, k)
			continue
		}
		if cachestore.Match(pattern, k) {
			matched = append(matched, k)
			delete(s.index, k)
		}
	}
	s.mu.Unlock()

	removed := 0
	for _, k := range matched {
		if _, ok := s.c.Get(k); ok {
			removed++
		}
		s.c.Del(k)
	}
	return removed, nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	if s.closed.Load() {
		return false, cachestore.ErrClosed
	}
	_, ok := s.c.Get(key)
	return ok, nil
}

// Sweep drops index entries that expired before now.
func (s *Store) Sweep(now time.Time) {
	s.mu.Lock()
	for k, exp := range s.index {
		if !exp.IsZero() && !exp.After(now) {
			delete(s.index, k)
		}
	}
	s.mu.Unlock()
}

// Indexed reports the number of keys tracked for pattern deletes.
func (s *Store) Indexed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

func (s *Store) unindex(keys ...string) {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.index, k)
	}
	s.mu.Unlock()
}

func (s *Store) Close(_ context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	if s.stopCh != nil {
		close(s.stopCh)
		s.ticker.Stop() // stop ticker before waiting
		s.wg.Wait()
	}
	s.c.Wait()
	s.c.Close()
	return nil
}

// Metrics exposes ristretto's counters when Config.Metrics is set.
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }
