// Package memory provides an in-process implementation of store.Store used by tests
// and ephemeral deployments.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/unkn0wn-root/shelfcache/model"
	"github.com/unkn0wn-root/shelfcache/store"
)

var _ store.Store = (*Store)(nil)

type state struct {
	books     map[string]model.Book
	libraries map[string]model.Library
}

func newState() state {
	return state{
		books:     make(map[string]model.Book),
		libraries: make(map[string]model.Library),
	}
}

func (s state) clone() state {
	out := state{
		books:     maps.Clone(s.books),
		libraries: make(map[string]model.Library, len(s.libraries)),
	}
	for id, l := range s.libraries {
		out.libraries[id] = cloneLibrary(l)
	}
	return out
}

func cloneLibrary(l model.Library) model.Library {
	l.Books = append(make([]string, 0, len(l.Books)), l.Books...)
	if l.BookDetails != nil {
		l.BookDetails = slices.Clone(l.BookDetails)
	}
	return l
}

// backend is where collection calls land: the live store or an open transaction.
type backend interface {
	read(fn func(st *state) error) error
	write(fn func(st *state) error) error
	now() time.Time
	newID() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for timestamps.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.nowFn = fn }
}

// WithIDs replaces the random id generator.
func WithIDs(fn func() string) Option {
	return func(s *Store) { s.idFn = fn }
}

// Store keeps both collections in memory behind a single lock.
type Store struct {
	mu    sync.RWMutex
	state state
	nowFn func() time.Time
	idFn  func() string
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		state: newState(),
		nowFn: time.Now,
		idFn:  func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Books() store.BookCollection        { return books{b: s} }
func (s *Store) Libraries() store.LibraryCollection { return libraries{b: s} }
func (s *Store) Close() error                       { return nil }

// Begin takes the store's write lock and hands out a private copy of the state.
// Other callers block until the transaction commits, which swaps the copy in, or aborts.
// Every transaction must be finished.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &tx{store: s, state: s.state.clone()}, nil
}

func (s *Store) read(fn func(st *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&s.state)
}

func (s *Store) write(op func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return op(&s.state)
}

func (s *Store) now() time.Time { return s.nowFn().UTC().Truncate(time.Microsecond) }
func (s *Store) newID() string  { return s.idFn() }

type tx struct {
	store *Store

	mu    sync.Mutex
	state state
	done  bool
}

var _ store.Tx = (*tx)(nil)

func (t *tx) Books() store.BookCollection        { return books{b: t} }
func (t *tx) Libraries() store.LibraryCollection { return libraries{b: t} }

// Commit publishes the transaction's state. A cancelled ctx aborts instead.
func (t *tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	defer t.store.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	t.store.state = t.state
	return nil
}

func (t *tx) Abort(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *tx) read(fn func(st *state) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return store.ErrTxDone
	}
	return fn(&t.state)
}

func (t *tx) write(fn func(st *state) error) error { return t.read(fn) }

func (t *tx) now() time.Time { return t.store.now() }
func (t *tx) newID() string  { return t.store.newID() }

// sortNewestFirst orders by CreatedAt descending, ties broken by id descending.
func sortNewestFirst[T any](items []T, created func(T) time.Time, id func(T) string) {
	slices.SortFunc(items, func(a, b T) int {
		if c := created(b).Compare(created(a)); c != 0 {
			return c
		}
		switch ia, ib := id(a), id(b); {
		case ia > ib:
			return -1
		case ia < ib:
			return 1
		}
		return 0
	})
}

func resolveMembers(st *state, l model.Library) []model.Book {
	return lo.FilterMap(l.Books, func(id string, _ int) (model.Book, bool) {
		b, ok := st.books[id]
		return b, ok
	})
}
