package shelfcache

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/shelfcache/cachestore"
	"github.com/unkn0wn-root/shelfcache/model"
	"github.com/unkn0wn-root/shelfcache/query"
	"github.com/unkn0wn-root/shelfcache/store"
)

// BookRepository is cache-aside access to books.
type BookRepository interface {
	Create(ctx context.Context, in model.BookInput) (model.Book, error)
	FindByID(ctx context.Context, id string) (b model.Book, found bool, err error)
	UpdateByID(ctx context.Context, id string, patch model.BookPatch) (b model.Book, found bool, err error)
	DeleteByID(ctx context.Context, id string) (deleted bool, err error)

	// DeleteAllInLibrary removes every book owned by libraryID inside tx. It neither
	// commits nor touches the cache; the caller owns both.
	DeleteAllInLibrary(ctx context.Context, tx store.Tx, libraryID string) (ids []string, err error)

	Search(ctx context.Context, f query.BookFilter, p query.Pagination) (model.BookPage, error)
}

// LibraryRepository is cache-aside access to libraries and their membership.
type LibraryRepository interface {
	Create(ctx context.Context, in model.LibraryInput) (model.Library, error)
	FindByID(ctx context.Context, id string) (l model.Library, found bool, err error)
	// FindByIDPopulated reads through to the store and fills BookDetails.
	FindByIDPopulated(ctx context.Context, id string) (l model.Library, found bool, err error)
	UpdateByID(ctx context.Context, id string, patch model.LibraryPatch) (l model.Library, found bool, err error)
	// DeleteByID deletes the library and every book it owns in one transaction.
	DeleteByID(ctx context.Context, id string) (deleted bool, err error)
	Search(ctx context.Context, f query.LibraryFilter, p query.Pagination) (model.LibraryPage, error)

	// AddBook and RemoveBook return an error matching ErrNotFound when the book
	// (AddBook only) or the library does not exist.
	AddBook(ctx context.Context, libraryID, bookID string) (model.Library, error)
	RemoveBook(ctx context.Context, libraryID, bookID string) (model.Library, error)

	// Books lists one page of the library's books. A missing library yields an empty page.
	Books(ctx context.Context, libraryID string, p query.Pagination) (model.BookPage, error)
}

// Options tune both repositories. Everything is optional.
type Options struct {
	Cache        cachestore.Store // nil disables caching
	Codecs       Codecs           // zero value => JSON
	Logger       Logger           // if nil, NopLogger is used
	Hooks        Hooks            // if nil, NopHooks is used
	EntityTTL    time.Duration    // book:{id}, library:{id}; 0 => 1h
	SearchTTL    time.Duration    // search and library book pages; 0 => 10m
	CacheTimeout time.Duration    // per cache call; 0 => caller's context only
	Disabled     bool             // bypass the cache entirely
}

var errNilStore = errors.New("shelfcache: store is required")

func NewBookRepository(st store.Store, opts Options) (BookRepository, error) {
	if st == nil {
		return nil, errNilStore
	}
	return &bookRepo{st: st, cache: newCacheLayer(opts), codecs: opts.Codecs.orDefault()}, nil
}

// NewLibraryRepository builds a LibraryRepository. books must operate on the same store.
func NewLibraryRepository(st store.Store, books BookRepository, opts Options) (LibraryRepository, error) {
	if st == nil {
		return nil, errNilStore
	}
	if books == nil {
		return nil, errors.New("shelfcache: book repository is required")
	}
	return &libraryRepo{st: st, books: books, cache: newCacheLayer(opts), codecs: opts.Codecs.orDefault()}, nil
}
