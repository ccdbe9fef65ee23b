package memory

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/unkn0wn-root/shelfcache/model"
	"github.com/unkn0wn-root/shelfcache/query"
	"github.com/unkn0wn-root/shelfcache/store"
)

const librariesCollection = "libraries"

type libraries struct{ b backend }

var _ store.LibraryCollection = libraries{}

func (c libraries) Create(ctx context.Context, in model.Library) (model.Library, error) {
	if err := ctx.Err(); err != nil {
		return model.Library{}, err
	}
	if err := store.RequireText(librariesCollection, "name", in.Name); err != nil {
		return model.Library{}, err
	}
	now := c.b.now()
	in.ID = c.b.newID()
	in.Books = []string{}
	in.BookDetails = nil
	in.CreatedAt, in.UpdatedAt = now, now
	err := c.b.write(func(st *state) error {
		st.libraries[in.ID] = cloneLibrary(in)
		return nil
	})
	if err != nil {
		return model.Library{}, err
	}
	return in, nil
}

func (c libraries) FindByID(ctx context.Context, id string) (model.Library, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Library{}, false, err
	}
	var (
		out   model.Library
		found bool
	)
	err := c.b.read(func(st *state) error {
		l, ok := st.libraries[id]
		if ok {
			out, found = cloneLibrary(l), true
		}
		return nil
	})
	return out, found, err
}

func (c libraries) UpdateByID(ctx context.Context, id string, patch model.LibraryPatch) (model.Library, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Library{}, false, err
	}
	if patch.Name != nil {
		if err := store.RequireText(librariesCollection, "name", *patch.Name); err != nil {
			return model.Library{}, false, err
		}
	}
	now := c.b.now()
	return c.modify(id, func(l *model.Library) {
		if patch.Name != nil {
			l.Name = *patch.Name
		}
		if patch.Address != nil {
			l.Address = *patch.Address
		}
		l.UpdatedAt = now
	})
}

func (c libraries) AddBook(ctx context.Context, id, bookID string) (model.Library, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Library{}, false, err
	}
	now := c.b.now()
	return c.modify(id, func(l *model.Library) {
		if !lo.Contains(l.Books, bookID) {
			l.Books = append(l.Books, bookID)
		}
		l.UpdatedAt = now
	})
}

func (c libraries) PullBook(ctx context.Context, id, bookID string) (model.Library, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Library{}, false, err
	}
	now := c.b.now()
	return c.modify(id, func(l *model.Library) {
		l.Books = lo.Without(l.Books, bookID)
		l.UpdatedAt = now
	})
}

func (c libraries) modify(id string, fn func(l *model.Library)) (model.Library, bool, error) {
	var (
		out   model.Library
		found bool
	)
	err := c.b.write(func(st *state) error {
		l, ok := st.libraries[id]
		found = ok
		if !ok {
			return nil
		}
		l = cloneLibrary(l)
		fn(&l)
		st.libraries[id] = l
		out = cloneLibrary(l)
		return nil
	})
	return out, found, err
}

func (c libraries) DeleteByID(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := c.b.write(func(st *state) error {
		_, found = st.libraries[id]
		delete(st.libraries, id)
		return nil
	})
	return found, err
}

func (c libraries) Find(ctx context.Context, f query.LibraryFilter, p query.Pagination) ([]model.Library, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []model.Library
	err := c.b.read(func(st *state) error {
		matches := make([]model.Library, 0)
		for _, l := range st.libraries {
			if f.Matches(l) {
				matches = append(matches, cloneLibrary(l))
			}
		}
		sortNewestFirst(matches,
			func(l model.Library) time.Time { return l.CreatedAt },
			func(l model.Library) string { return l.ID })
		from, to := p.Window(len(matches))
		out = matches[from:to:to]
		return nil
	})
	return out, err
}

func (c libraries) Count(ctx context.Context, f query.LibraryFilter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := c.b.read(func(st *state) error {
		n = lo.CountBy(lo.Values(st.libraries), f.Matches)
		return nil
	})
	return n, err
}

func (c libraries) FindPopulated(ctx context.Context, id string) (model.Library, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Library{}, false, err
	}
	var (
		out   model.Library
		found bool
	)
	err := c.b.read(func(st *state) error {
		l, ok := st.libraries[id]
		if !ok {
			return nil
		}
		out, found = cloneLibrary(l), true
		out.BookDetails = resolveMembers(st, l)
		return nil
	})
	return out, found, err
}

func (c libraries) LookupBooks(ctx context.Context, id string, p query.Pagination) ([]model.Book, int, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, false, err
	}
	var (
		page  []model.Book
		total int
		found bool
	)
	err := c.b.read(func(st *state) error {
		l, ok := st.libraries[id]
		if !ok {
			return nil
		}
		found = true
		members := resolveMembers(st, l)
		total = len(members)
		from, to := p.Window(total)
		page = members[from:to:to]
		return nil
	})
	return page, total, found, err
}
