// Package store defines the persistent document store consumed by the repositories.
//
// A Store exposes two collections (books and libraries) and transactions. Collections
// obtained from a Tx read their own writes and apply them atomically on Commit.
// Implementations live in store/memory and store/sqlstore (sqlite, postgres).
package store

import (
	"context"

	"github.com/unkn0wn-root/shelfcache/model"
	"github.com/unkn0wn-root/shelfcache/query"
)

// Store is the persistent document store.
type Store interface {
	Collections
	// Begin starts a transaction. The caller must finish it with Commit or Abort.
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Collections gives access to the two collections, either directly or inside a Tx.
type Collections interface {
	Books() BookCollection
	Libraries() LibraryCollection
}

// Tx is a multi-document transaction. After Commit or Abort every call returns ErrTxDone.
type Tx interface {
	Collections
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// BookCollection is the books collection.
// Lookups return found=false (and a nil error) when the id does not resolve.
type BookCollection interface {
	// Create assigns ID, CreatedAt and UpdatedAt. Title and author are required.
	Create(ctx context.Context, b model.Book) (model.Book, error)
	FindByID(ctx context.Context, id string) (b model.Book, found bool, err error)
	// UpdateByID merges the non-nil patch fields and returns the new version.
	UpdateByID(ctx context.Context, id string, patch model.BookPatch) (b model.Book, found bool, err error)
	// SetLibrary sets the back-reference to libraryID; an empty id clears it.
	SetLibrary(ctx context.Context, id, libraryID string) (b model.Book, found bool, err error)
	// DeleteByID removes the book and returns the removed version.
	DeleteByID(ctx context.Context, id string) (b model.Book, found bool, err error)
	// DeleteByLibrary removes every book whose back-reference is libraryID and returns their ids.
	DeleteByLibrary(ctx context.Context, libraryID string) ([]string, error)
	// Find returns one page of matches ordered by CreatedAt descending.
	Find(ctx context.Context, f query.BookFilter, p query.Pagination) ([]model.Book, error)
	Count(ctx context.Context, f query.BookFilter) (int, error)
}

// LibraryCollection is the libraries collection.
type LibraryCollection interface {
	// Create assigns ID, CreatedAt and UpdatedAt and starts with an empty membership set.
	Create(ctx context.Context, l model.Library) (model.Library, error)
	FindByID(ctx context.Context, id string) (l model.Library, found bool, err error)
	UpdateByID(ctx context.Context, id string, patch model.LibraryPatch) (l model.Library, found bool, err error)
	// AddBook adds bookID to the membership set. Adding a present id changes nothing.
	AddBook(ctx context.Context, id, bookID string) (l model.Library, found bool, err error)
	// PullBook removes bookID from the membership set.
	PullBook(ctx context.Context, id, bookID string) (l model.Library, found bool, err error)
	DeleteByID(ctx context.Context, id string) (found bool, err error)
	// Find returns one page of matches ordered by CreatedAt descending.
	Find(ctx context.Context, f query.LibraryFilter, p query.Pagination) ([]model.Library, error)
	Count(ctx context.Context, f query.LibraryFilter) (int, error)
	// FindPopulated returns the library with BookDetails resolved from the books collection.
	FindPopulated(ctx context.Context, id string) (l model.Library, found bool, err error)
	// LookupBooks joins the membership set against the books collection and returns the
	// page slice plus the number of resolvable members.
	LookupBooks(ctx context.Context, id string, p query.Pagination) (books []model.Book, total int, found bool, err error)
}
