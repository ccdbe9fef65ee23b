package shelfcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/shelfcache/cachestore"
	"github.com/unkn0wn-root/shelfcache/model"
	"github.com/unkn0wn-root/shelfcache/store"
	"github.com/unkn0wn-root/shelfcache/store/memory"
)

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

// memProvider is a cachestore.Store that also records the calls it served.
type memProvider struct {
	mu   sync.Mutex
	m    map[string]memEntry
	sets []string
	dels []string
	pats []string
}

var _ cachestore.Store = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string]memEntry)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.v...), true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	p.m[key] = memEntry{v: append([]byte(nil), value...), exp: exp}
	p.sets = append(p.sets, key)
	return true, nil
}

func (p *memProvider) Del(_ context.Context, keys ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		delete(p.m, k)
	}
	p.dels = append(p.dels, keys...)
	return nil
}

func (p *memProvider) DelPattern(_ context.Context, pattern string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for k := range p.m {
		if cachestore.Match(pattern, k) {
			delete(p.m, k)
			n++
		}
	}
	p.pats = append(p.pats, pattern)
	return n, nil
}

func (p *memProvider) Exists(_ context.Context, key string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[key]
	return ok, nil
}

func (p *memProvider) Close(context.Context) error { return nil }

func (p *memProvider) has(key string) bool {
	ok, _ := p.Exists(context.Background(), key)
	return ok
}

func (p *memProvider) put(key string, raw []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[key] = memEntry{v: raw}
}

func (p *memProvider) writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sets) + len(p.dels) + len(p.pats)
}

func (p *memProvider) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.m)
}

var errCacheDown = errors.New("cache down")

// downCache fails every call, like an unreachable Redis.
type downCache struct{}

func (downCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errCacheDown }
func (downCache) Set(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errCacheDown
}
func (downCache) Del(context.Context, ...string) error            { return errCacheDown }
func (downCache) DelPattern(context.Context, string) (int, error) { return 0, errCacheDown }
func (downCache) Exists(context.Context, string) (bool, error)    { return false, errCacheDown }
func (downCache) Close(context.Context) error                     { return nil }

// countingStore counts book lookups that reach the store.
type countingStore struct {
	store.Store
	bookFinds atomic.Int64
}

func (s *countingStore) Books() store.BookCollection {
	return countingBooks{BookCollection: s.Store.Books(), n: &s.bookFinds}
}

type countingBooks struct {
	store.BookCollection
	n *atomic.Int64
}

func (c countingBooks) FindByID(ctx context.Context, id string) (model.Book, bool, error) {
	c.n.Add(1)
	return c.BookCollection.FindByID(ctx, id)
}

// faultyStore injects err into library deletes made inside a transaction.
type faultyStore struct {
	store.Store
	err error
}

func (s faultyStore) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return faultyTx{Tx: tx, err: s.err}, nil
}

type faultyTx struct {
	store.Tx
	err error
}

func (t faultyTx) Libraries() store.LibraryCollection {
	return faultyLibraries{LibraryCollection: t.Tx.Libraries(), err: t.err}
}

type faultyLibraries struct {
	store.LibraryCollection
	err error
}

func (l faultyLibraries) DeleteByID(context.Context, string) (bool, error) { return false, l.err }

// recordingHooks keeps a log of hook calls as "event key" strings.
type recordingHooks struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHooks) add(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, fmt.Sprintf(format, args...))
}

func (h *recordingHooks) CacheHit(key string)  { h.add("hit %s", key) }
func (h *recordingHooks) CacheMiss(key string) { h.add("miss %s", key) }
func (h *recordingHooks) CacheError(op, key string, _ error) {
	h.add("error %s %s", op, key)
}
func (h *recordingHooks) SelfHeal(key, reason string) { h.add("selfheal %s %s", key, reason) }
func (h *recordingHooks) SetRejected(key string)      { h.add("rejected %s", key) }
func (h *recordingHooks) PatternInvalidated(pattern string, removed int) {
	h.add("pattern %s %d", pattern, removed)
}

func (h *recordingHooks) seen(event string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.events {
		if e == event {
			return true
		}
	}
	return false
}

func (h *recordingHooks) count(prefix string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if len(e) >= len(prefix) && e[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// newMemoryStore returns a store whose clock advances one second per write and whose
// ids are id-001, id-002, ...
func newMemoryStore() *memory.Store {
	var (
		mu   sync.Mutex
		tick = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		seq  int
	)
	return memory.New(
		memory.WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			tick = tick.Add(time.Second)
			return tick
		}),
		memory.WithIDs(func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("id-%03d", seq)
		}),
	)
}

type fixture struct {
	st    store.Store
	cache *memProvider
	hooks *recordingHooks
	books BookRepository
	libs  LibraryRepository
}

func newFixture(t *testing.T, st store.Store, optsOpt func(*Options)) *fixture {
	t.Helper()
	f := &fixture{st: st, cache: newMemProvider(), hooks: &recordingHooks{}}
	opts := Options{Cache: f.cache, Hooks: f.hooks}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	var err error
	if f.books, err = NewBookRepository(st, opts); err != nil {
		t.Fatalf("NewBookRepository: %v", err)
	}
	if f.libs, err = NewLibraryRepository(st, f.books, opts); err != nil {
		t.Fatalf("NewLibraryRepository: %v", err)
	}
	return f
}

func (f *fixture) mustBook(t *testing.T, title, author, library string) model.Book {
	t.Helper()
	b, err := f.books.Create(context.Background(), model.BookInput{Title: title, Author: author, Library: library})
	if err != nil {
		t.Fatalf("Create book %q: %v", title, err)
	}
	return b
}

func (f *fixture) mustLibrary(t *testing.T, name string) model.Library {
	t.Helper()
	l, err := f.libs.Create(context.Background(), model.LibraryInput{Name: name, Address: name + " street"})
	if err != nil {
		t.Fatalf("Create library %q: %v", name, err)
	}
	return l
}
