package shelfcache

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/shelfcache/internal/keys"
	"github.com/unkn0wn-root/shelfcache/model"
	"github.com/unkn0wn-root/shelfcache/query"
	"github.com/unkn0wn-root/shelfcache/store"
)

type bookRepo struct {
	st     store.Store
	cache  *cacheLayer
	codecs Codecs
}

var _ BookRepository = (*bookRepo)(nil)

// Create persists the book and caches it. A book created into a library joins the
// library's membership set in the same transaction.
func (r *bookRepo) Create(ctx context.Context, in model.BookInput) (model.Book, error) {
	doc := model.Book{Title: in.Title, Author: in.Author, Library: in.Library}
	if in.Library == "" {
		b, err := r.st.Books().Create(ctx, doc)
		if err != nil {
			return model.Book{}, err
		}
		setCached(ctx, r.cache, r.codecs.Book, keys.Book(b.ID), b, r.cache.entityTTL)
		r.cache.delPattern(ctx, keys.BookSearchPattern)
		return b, nil
	}

	var b model.Book
	err := store.WithTx(ctx, r.st, func(ctx context.Context, tx store.Tx) error {
		if _, ok, err := tx.Libraries().FindByID(ctx, in.Library); err != nil {
			return err
		} else if !ok {
			return libraryNotFound(in.Library)
		}
		var err error
		if b, err = tx.Books().Create(ctx, doc); err != nil {
			return err
		}
		_, _, err = tx.Libraries().AddBook(ctx, in.Library, b.ID)
		return err
	})
	if err != nil {
		return model.Book{}, err
	}
	setCached(ctx, r.cache, r.codecs.Book, keys.Book(b.ID), b, r.cache.entityTTL)
	r.cache.del(ctx, keys.Library(in.Library))
	r.cache.delPattern(ctx, keys.BookSearchPattern, keys.LibraryBooksPattern(in.Library), keys.LibrarySearchPattern)
	return b, nil
}

func (r *bookRepo) FindByID(ctx context.Context, id string) (model.Book, bool, error) {
	key := keys.Book(id)
	if b, ok := getCached(ctx, r.cache, r.codecs.Book, key); ok {
		return b, true, nil
	}
	b, ok, err := r.st.Books().FindByID(ctx, id)
	if err != nil || !ok {
		return model.Book{}, false, err
	}
	setCached(ctx, r.cache, r.codecs.Book, key, b, r.cache.entityTTL)
	return b, true, nil
}

func (r *bookRepo) UpdateByID(ctx context.Context, id string, patch model.BookPatch) (model.Book, bool, error) {
	b, ok, err := r.st.Books().UpdateByID(ctx, id, patch)
	if err != nil || !ok {
		return model.Book{}, false, err
	}
	setCached(ctx, r.cache, r.codecs.Book, keys.Book(id), b, r.cache.entityTTL)
	r.cache.delPattern(ctx, keys.BookSearchPattern)
	if b.Library != "" {
		r.cache.delPattern(ctx, keys.LibraryBooksPattern(b.Library))
	}
	return b, true, nil
}

// DeleteByID removes the book and pulls it from its owning library's membership set.
// Nothing is written to the cache when no book was removed.
func (r *bookRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	var removed model.Book
	var found bool
	err := store.WithTx(ctx, r.st, func(ctx context.Context, tx store.Tx) error {
		var err error
		removed, found, err = tx.Books().DeleteByID(ctx, id)
		if err != nil || !found || removed.Library == "" {
			return err
		}
		_, _, err = tx.Libraries().PullBook(ctx, removed.Library, id)
		return err
	})
	if err != nil || !found {
		return false, err
	}
	r.cache.del(ctx, keys.Book(id))
	r.cache.delPattern(ctx, keys.BookSearchPattern)
	if removed.Library != "" {
		r.cache.del(ctx, keys.Library(removed.Library))
		r.cache.delPattern(ctx, keys.LibraryBooksPattern(removed.Library), keys.LibrarySearchPattern)
	}
	return true, nil
}

func (r *bookRepo) DeleteAllInLibrary(ctx context.Context, tx store.Tx, libraryID string) ([]string, error) {
	return tx.Books().DeleteByLibrary(ctx, libraryID)
}

// Search serves one page of matching books, newest first. On a miss the page and
// the total count are queried concurrently.
func (r *bookRepo) Search(ctx context.Context, f query.BookFilter, p query.Pagination) (model.BookPage, error) {
	p = p.Normalize()
	key := keys.BookSearch(f, p)
	if page, ok := getCached(ctx, r.cache, r.codecs.BookPage, key); ok {
		return page, nil
	}

	var (
		books []model.Book
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		books, err = r.st.Books().Find(gctx, f, p)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = r.st.Books().Count(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.BookPage{}, err
	}

	page := model.BookPage{Books: books, TotalCount: total, TotalPages: p.TotalPages(total)}
	if page.Books == nil {
		page.Books = []model.Book{}
	}
	setCached(ctx, r.cache, r.codecs.BookPage, key, page, r.cache.searchTTL)
	return page, nil
}
