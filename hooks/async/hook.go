// usage:
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{
//	    MissEvery:     100, // sample logs: ~every 100th miss
//	    SelfHealEvery: 1,   // log every self-heal
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	books, _ := shelfcache.NewBookRepository(st, shelfcache.Options{
//	    Cache: redisStore,
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/shelfcache"
)

// Hooks moves hook calls off the repository's goroutine. Events beyond the queue
// capacity are dropped and counted.
type Hooks struct {
	inner   shelfcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ shelfcache.Hooks = (*Hooks)(nil)

func New(inner shelfcache.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = shelfcache.NopHooks{}
	}
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for range workers {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped is the number of events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) CacheHit(k string)    { h.try(func() { h.inner.CacheHit(k) }) }
func (h *Hooks) CacheMiss(k string)   { h.try(func() { h.inner.CacheMiss(k) }) }
func (h *Hooks) SelfHeal(k, r string) { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) SetRejected(k string) { h.try(func() { h.inner.SetRejected(k) }) }
func (h *Hooks) CacheError(op, k string, err error) {
	h.try(func() { h.inner.CacheError(op, k, err) })
}
func (h *Hooks) PatternInvalidated(p string, n int) {
	h.try(func() { h.inner.PatternInvalidated(p, n) })
}
