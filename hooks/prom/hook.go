// Package promhook exports repository cache events as Prometheus counters.
// Keys are reduced to their kind (book, library, book_search, ...) to keep
// label cardinality bounded.
package promhook

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/shelfcache"
	"github.com/unkn0wn-root/shelfcache/internal/keys"
)

type Hooks struct {
	hits        *prometheus.CounterVec
	misses      *prometheus.CounterVec
	errors      *prometheus.CounterVec
	selfHeals   *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	invalidated *prometheus.CounterVec
}

var _ shelfcache.Hooks = (*Hooks)(nil)

// New registers the counters on reg under namespace (default "shelfcache").
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	if namespace == "" {
		namespace = "shelfcache"
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, labels)
	}
	h := &Hooks{
		hits:        counter("hits_total", "Reads served from the cache.", "kind"),
		misses:      counter("misses_total", "Reads that fell through to the store.", "kind"),
		errors:      counter("errors_total", "Swallowed cache failures.", "op", "kind"),
		selfHeals:   counter("self_heals_total", "Cached entries deleted because they could not be decoded.", "kind", "reason"),
		rejected:    counter("set_rejected_total", "Writes refused by the cache store.", "kind"),
		invalidated: counter("invalidated_keys_total", "Keys removed by pattern invalidation.", "kind"),
	}
	for _, c := range []prometheus.Collector{h.hits, h.misses, h.errors, h.selfHeals, h.rejected, h.invalidated} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// MustNew is New that panics on registration errors.
func MustNew(reg prometheus.Registerer, namespace string) *Hooks {
	h, err := New(reg, namespace)
	if err != nil {
		panic("promhook: " + err.Error())
	}
	return h
}

func (h *Hooks) CacheHit(key string)  { h.hits.WithLabelValues(keys.Kind(key)).Inc() }
func (h *Hooks) CacheMiss(key string) { h.misses.WithLabelValues(keys.Kind(key)).Inc() }
func (h *Hooks) CacheError(op, key string, _ error) {
	h.errors.WithLabelValues(op, keys.Kind(key)).Inc()
}
func (h *Hooks) SelfHeal(key, reason string) { h.selfHeals.WithLabelValues(keys.Kind(key), reason).Inc() }
func (h *Hooks) SetRejected(key string)      { h.rejected.WithLabelValues(keys.Kind(key)).Inc() }

// PatternInvalidated counts removed keys; the pattern is classified like a key.
func (h *Hooks) PatternInvalidated(pattern string, removed int) {
	if removed <= 0 {
		return
	}
	h.invalidated.WithLabelValues(keys.Kind(pattern)).Add(float64(removed))
}
