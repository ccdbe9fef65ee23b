package shelfcache

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/shelfcache/internal/keys"
	"github.com/unkn0wn-root/shelfcache/model"
	"github.com/unkn0wn-root/shelfcache/query"
	"github.com/unkn0wn-root/shelfcache/store"
)

type libraryRepo struct {
	st     store.Store
	books  BookRepository
	cache  *cacheLayer
	codecs Codecs
}

var _ LibraryRepository = (*libraryRepo)(nil)

func (r *libraryRepo) Create(ctx context.Context, in model.LibraryInput) (model.Library, error) {
	l, err := r.st.Libraries().Create(ctx, model.Library{Name: in.Name, Address: in.Address})
	if err != nil {
		return model.Library{}, err
	}
	setCached(ctx, r.cache, r.codecs.Library, keys.Library(l.ID), l, r.cache.entityTTL)
	r.cache.delPattern(ctx, keys.LibrarySearchPattern)
	return l, nil
}

func (r *libraryRepo) FindByID(ctx context.Context, id string) (model.Library, bool, error) {
	key := keys.Library(id)
	if l, ok := getCached(ctx, r.cache, r.codecs.Library, key); ok {
		return l, true, nil
	}
	l, ok, err := r.st.Libraries().FindByID(ctx, id)
	if err != nil || !ok {
		return model.Library{}, false, err
	}
	setCached(ctx, r.cache, r.codecs.Library, key, l, r.cache.entityTTL)
	return l, true, nil
}

func (r *libraryRepo) FindByIDPopulated(ctx context.Context, id string) (model.Library, bool, error) {
	return r.st.Libraries().FindPopulated(ctx, id)
}

func (r *libraryRepo) UpdateByID(ctx context.Context, id string, patch model.LibraryPatch) (model.Library, bool, error) {
	l, ok, err := r.st.Libraries().UpdateByID(ctx, id, patch)
	if err != nil || !ok {
		return model.Library{}, false, err
	}
	setCached(ctx, r.cache, r.codecs.Library, keys.Library(id), l, r.cache.entityTTL)
	r.cache.delPattern(ctx, keys.LibrarySearchPattern)
	return l, true, nil
}

// DeleteByID deletes the owned books and then the library in one transaction. Books
// still pointing at a library that is already gone are removed as well.
func (r *libraryRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	var (
		removed []string
		found   bool
	)
	err := store.WithTx(ctx, r.st, func(ctx context.Context, tx store.Tx) error {
		var err error
		if removed, err = r.books.DeleteAllInLibrary(ctx, tx, id); err != nil {
			return err
		}
		found, err = tx.Libraries().DeleteByID(ctx, id)
		return err
	})
	if err != nil {
		return false, err
	}

	if len(removed) > 0 {
		stale := make([]string, len(removed))
		for i, b := range removed {
			stale[i] = keys.Book(b)
		}
		r.cache.del(ctx, stale...)
		r.cache.delPattern(ctx, keys.BookSearchPattern)
	}
	if found {
		r.cache.del(ctx, keys.Library(id))
		r.cache.delPattern(ctx, keys.LibraryBooksPattern(id), keys.LibrarySearchPattern)
	}
	r.cache.log.Info("library deleted", Fields{"library": id, "found": found, "books": len(removed)})
	return found, nil
}

func (r *libraryRepo) Search(ctx context.Context, f query.LibraryFilter, p query.Pagination) (model.LibraryPage, error) {
	p = p.Normalize()
	key := keys.LibrarySearch(f, p)
	if page, ok := getCached(ctx, r.cache, r.codecs.LibraryPage, key); ok {
		return page, nil
	}

	var (
		libs  []model.Library
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		libs, err = r.st.Libraries().Find(gctx, f, p)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = r.st.Libraries().Count(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.LibraryPage{}, err
	}

	page := model.LibraryPage{Libraries: libs, TotalCount: total, TotalPages: p.TotalPages(total)}
	if page.Libraries == nil {
		page.Libraries = []model.Library{}
	}
	setCached(ctx, r.cache, r.codecs.LibraryPage, key, page, r.cache.searchTTL)
	return page, nil
}

// AddBook places bookID into the library. The membership set and the book's
// back-reference change together; a book owned by another library leaves it.
func (r *libraryRepo) AddBook(ctx context.Context, libraryID, bookID string) (model.Library, error) {
	if _, ok, err := r.books.FindByID(ctx, bookID); err != nil {
		return model.Library{}, err
	} else if !ok {
		return model.Library{}, bookNotFound(bookID)
	}

	var (
		lib      model.Library
		book     model.Book
		previous string
	)
	err := store.WithTx(ctx, r.st, func(ctx context.Context, tx store.Tx) error {
		var (
			ok  bool
			err error
		)
		if lib, ok, err = tx.Libraries().AddBook(ctx, libraryID, bookID); err != nil {
			return err
		} else if !ok {
			return libraryNotFound(libraryID)
		}
		current, ok, err := tx.Books().FindByID(ctx, bookID)
		if err != nil {
			return err
		} else if !ok {
			return bookNotFound(bookID)
		}
		if current.Library != "" && current.Library != libraryID {
			previous = current.Library
			if _, _, err := tx.Libraries().PullBook(ctx, previous, bookID); err != nil {
				return err
			}
		}
		book, _, err = tx.Books().SetLibrary(ctx, bookID, libraryID)
		return err
	})
	if err != nil {
		return model.Library{}, err
	}

	setCached(ctx, r.cache, r.codecs.Book, keys.Book(bookID), book, r.cache.entityTTL)
	r.invalidateMembership(ctx, libraryID)
	if previous != "" {
		r.invalidateMembership(ctx, previous)
	}
	return lib, nil
}

// RemoveBook pulls bookID from the library and clears the book's back-reference
// when it still points here.
func (r *libraryRepo) RemoveBook(ctx context.Context, libraryID, bookID string) (model.Library, error) {
	var (
		lib     model.Library
		book    model.Book
		cleared bool
	)
	err := store.WithTx(ctx, r.st, func(ctx context.Context, tx store.Tx) error {
		var (
			ok  bool
			err error
		)
		if lib, ok, err = tx.Libraries().PullBook(ctx, libraryID, bookID); err != nil {
			return err
		} else if !ok {
			return libraryNotFound(libraryID)
		}
		current, ok, err := tx.Books().FindByID(ctx, bookID)
		if err != nil || !ok || current.Library != libraryID {
			return err
		}
		book, cleared, err = tx.Books().SetLibrary(ctx, bookID, "")
		return err
	})
	if err != nil {
		return model.Library{}, err
	}

	if cleared {
		setCached(ctx, r.cache, r.codecs.Book, keys.Book(bookID), book, r.cache.entityTTL)
	}
	r.invalidateMembership(ctx, libraryID)
	return lib, nil
}

// invalidateMembership drops every cached value derived from the membership of libraryID.
func (r *libraryRepo) invalidateMembership(ctx context.Context, libraryID string) {
	r.cache.del(ctx, keys.Library(libraryID))
	r.cache.delPattern(ctx,
		keys.LibraryBooksPattern(libraryID),
		keys.LibrarySearchPattern,
		keys.BookSearchPattern,
	)
}

// Books lists the library's existing member books. Unknown libraries produce an
// empty page that is not cached.
func (r *libraryRepo) Books(ctx context.Context, libraryID string, p query.Pagination) (model.BookPage, error) {
	p = p.Normalize()
	key := keys.LibraryBooks(libraryID, p)
	if page, ok := getCached(ctx, r.cache, r.codecs.BookPage, key); ok {
		return page, nil
	}

	books, total, found, err := r.st.Libraries().LookupBooks(ctx, libraryID, p)
	if err != nil {
		return model.BookPage{}, err
	}
	if !found {
		return model.BookPage{Books: []model.Book{}}, nil
	}
	page := model.BookPage{Books: books, TotalCount: total, TotalPages: p.TotalPages(total)}
	if page.Books == nil {
		page.Books = []model.Book{}
	}
	setCached(ctx, r.cache, r.codecs.BookPage, key, page, r.cache.searchTTL)
	return page, nil
}
