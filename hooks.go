package shelfcache

// Hooks lightweight callbacks for high-signal cache events.
// Implementations MUST be cheap and non-blocking.
// The repositories call them on hot paths.
type Hooks interface {
	// A read was served from the cache.
	CacheHit(key string)

	// A read found nothing usable in the cache and went to the store.
	CacheMiss(key string)

	// A cache call failed and was swallowed.
	// op ∈ {"get", "set", "del", "del_pattern"}
	CacheError(op, key string, err error)

	// A cached entry was deleted on read.
	// reason ∈ {"decode"}
	SelfHeal(key, reason string)

	// The cache store returned ok=false on Set (backpressure/eviction).
	SetRejected(key string)

	// A glob invalidation completed.
	PatternInvalidated(pattern string, removed int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) CacheHit(string)                  {}
func (NopHooks) CacheMiss(string)                 {}
func (NopHooks) CacheError(string, string, error) {}
func (NopHooks) SelfHeal(string, string)          {}
func (NopHooks) SetRejected(string)               {}
func (NopHooks) PatternInvalidated(string, int)   {}

// MultiHooks fans every event out to each member in order.
type MultiHooks []Hooks

func (m MultiHooks) CacheHit(key string) {
	for _, h := range m {
		h.CacheHit(key)
	}
}

func (m MultiHooks) CacheMiss(key string) {
	for _, h := range m {
		h.CacheMiss(key)
	}
}

func (m MultiHooks) CacheError(op, key string, err error) {
	for _, h := range m {
		h.CacheError(op, key, err)
	}
}

func (m MultiHooks) SelfHeal(key, reason string) {
	for _, h := range m {
		h.SelfHeal(key, reason)
	}
}

func (m MultiHooks) SetRejected(key string) {
	for _, h := range m {
		h.SetRejected(key)
	}
}

func (m MultiHooks) PatternInvalidated(pattern string, removed int) {
	for _, h := range m {
		h.PatternInvalidated(pattern, removed)
	}
}
