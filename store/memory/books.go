package memory

import (
	"context"
	"time"

	"github.com/unkn0wn-root/shelfcache/model"
	"github.com/unkn0wn-root/shelfcache/query"
	"github.com/unkn0wn-root/shelfcache/store"
)

const booksCollection = "books"

type books struct{ b backend }

var _ store.BookCollection = books{}

func (c books) Create(ctx context.Context, in model.Book) (model.Book, error) {
	if err := ctx.Err(); err != nil {
		return model.Book{}, err
	}
	if err := store.RequireText(booksCollection, "title", in.Title); err != nil {
		return model.Book{}, err
	}
	if err := store.RequireText(booksCollection, "author", in.Author); err != nil {
		return model.Book{}, err
	}
	now := c.b.now()
	in.ID = c.b.newID()
	in.CreatedAt, in.UpdatedAt = now, now
	err := c.b.write(func(st *state) error {
		st.books[in.ID] = in
		return nil
	})
	if err != nil {
		return model.Book{}, err
	}
	return in, nil
}

func (c books) FindByID(ctx context.Context, id string) (model.Book, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Book{}, false, err
	}
	var (
		out   model.Book
		found bool
	)
	err := c.b.read(func(st *state) error {
		out, found = st.books[id]
		return nil
	})
	return out, found, err
}

func (c books) UpdateByID(ctx context.Context, id string, patch model.BookPatch) (model.Book, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Book{}, false, err
	}
	if patch.Title != nil {
		if err := store.RequireText(booksCollection, "title", *patch.Title); err != nil {
			return model.Book{}, false, err
		}
	}
	if patch.Author != nil {
		if err := store.RequireText(booksCollection, "author", *patch.Author); err != nil {
			return model.Book{}, false, err
		}
	}
	now := c.b.now()
	return c.modify(id, func(b *model.Book) {
		if patch.Title != nil {
			b.Title = *patch.Title
		}
		if patch.Author != nil {
			b.Author = *patch.Author
		}
		b.UpdatedAt = now
	})
}

func (c books) SetLibrary(ctx context.Context, id, libraryID string) (model.Book, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Book{}, false, err
	}
	now := c.b.now()
	return c.modify(id, func(b *model.Book) {
		b.Library = libraryID
		b.UpdatedAt = now
	})
}

func (c books) modify(id string, fn func(b *model.Book)) (model.Book, bool, error) {
	var (
		out   model.Book
		found bool
	)
	err := c.b.write(func(st *state) error {
		b, ok := st.books[id]
		found = ok
		if !ok {
			return nil
		}
		fn(&b)
		st.books[id] = b
		out = b
		return nil
	})
	return out, found, err
}

func (c books) DeleteByID(ctx context.Context, id string) (model.Book, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Book{}, false, err
	}
	var (
		out   model.Book
		found bool
	)
	err := c.b.write(func(st *state) error {
		out, found = st.books[id]
		delete(st.books, id)
		return nil
	})
	return out, found, err
}

func (c books) DeleteByLibrary(ctx context.Context, libraryID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ids []string
	err := c.b.write(func(st *state) error {
		removed := make([]string, 0)
		for id, b := range st.books {
			if libraryID != "" && b.Library == libraryID {
				removed = append(removed, id)
				delete(st.books, id)
			}
		}
		ids = removed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (c books) Find(ctx context.Context, f query.BookFilter, p query.Pagination) ([]model.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []model.Book
	err := c.b.read(func(st *state) error {
		matches := c.matching(st, f)
		lo, hi := p.Window(len(matches))
		out = append([]model.Book{}, matches[lo:hi]...)
		return nil
	})
	return out, err
}

func (c books) Count(ctx context.Context, f query.BookFilter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := c.b.read(func(st *state) error {
		for _, b := range st.books {
			if f.Matches(b) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (books) matching(st *state, f query.BookFilter) []model.Book {
	out := make([]model.Book, 0)
	for _, b := range st.books {
		if f.Matches(b) {
			out = append(out, b)
		}
	}
	sortNewestFirst(out,
		func(b model.Book) time.Time { return b.CreatedAt },
		func(b model.Book) string { return b.ID })
	return out
}
