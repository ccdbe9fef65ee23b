package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"

	"github.com/unkn0wn-root/shelfcache/model"
	"github.com/unkn0wn-root/shelfcache/query"
	"github.com/unkn0wn-root/shelfcache/store"
)

const (
	librariesTable = "libraries"
	membersTable   = "library_books"
)

var libraryColumns = []string{"id", "name", "address", "created_at", "updated_at"}

type libraries struct {
	s *Store
	r runner
}

var _ store.LibraryCollection = libraries{}

func scanLibrary(row scanner) (model.Library, error) {
	var (
		l                model.Library
		created, updated int64
	)
	if err := row.Scan(&l.ID, &l.Name, &l.Address, &created, &updated); err != nil {
		return model.Library{}, err
	}
	l.CreatedAt, l.UpdatedAt = fromMicros(created), fromMicros(updated)
	l.Books = []string{}
	return l, nil
}

func (c libraries) Create(ctx context.Context, in model.Library) (model.Library, error) {
	if err := store.RequireText(librariesTable, "name", in.Name); err != nil {
		return model.Library{}, err
	}
	now := c.s.now()
	out := model.Library{
		ID:        c.s.idFn(),
		Name:      in.Name,
		Address:   in.Address,
		Books:     []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := exec(ctx, c.r, c.s.sb.Insert(librariesTable).
		Columns(libraryColumns...).
		Values(out.ID, out.Name, out.Address, micros(now), micros(now)))
	if err != nil {
		return model.Library{}, err
	}
	return out, nil
}

func (c libraries) FindByID(ctx context.Context, id string) (model.Library, bool, error) {
	row, err := queryRow(ctx, c.r, c.s.sb.Select(libraryColumns...).From(librariesTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return model.Library{}, false, err
	}
	l, err := scanLibrary(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.Library{}, false, nil
	case err != nil:
		return model.Library{}, false, err
	}
	members, err := c.members(ctx, id)
	if err != nil {
		return model.Library{}, false, err
	}
	l.Books = members[id]
	if l.Books == nil {
		l.Books = []string{}
	}
	return l, true, nil
}

// members returns the membership lists of ids in insertion order.
func (c libraries) members(ctx context.Context, ids ...string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := queryRows(ctx, c.r, c.s.sb.Select("library_id", "book_id").
		From(membersTable).
		Where(sq.Eq{"library_id": ids}).
		OrderBy("library_id", "position"))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var lib, book string
		if err := rows.Scan(&lib, &book); err != nil {
			return nil, err
		}
		out[lib] = append(out[lib], book)
	}
	return out, rows.Err()
}

func (c libraries) UpdateByID(ctx context.Context, id string, patch model.LibraryPatch) (model.Library, bool, error) {
	set := map[string]any{"updated_at": micros(c.s.now())}
	if patch.Name != nil {
		if err := store.RequireText(librariesTable, "name", *patch.Name); err != nil {
			return model.Library{}, false, err
		}
		set["name"] = *patch.Name
	}
	if patch.Address != nil {
		set["address"] = *patch.Address
	}
	return c.touch(ctx, id, set)
}

// touch applies set to the library row and reloads it.
func (c libraries) touch(ctx context.Context, id string, set map[string]any) (model.Library, bool, error) {
	n, err := exec(ctx, c.r, c.s.sb.Update(librariesTable).SetMap(set).Where(sq.Eq{"id": id}))
	if err != nil || n == 0 {
		return model.Library{}, false, err
	}
	return c.FindByID(ctx, id)
}

func (c libraries) AddBook(ctx context.Context, id, bookID string) (model.Library, bool, error) {
	ok, err := c.exists(ctx, id)
	if err != nil || !ok {
		return model.Library{}, false, err
	}
	next := sq.Expr("(SELECT COALESCE(MAX(position), 0) + 1 FROM "+membersTable+" WHERE library_id = ?)", id)
	_, err = exec(ctx, c.r, c.s.sb.Insert(membersTable).
		Columns("library_id", "book_id", "position").
		Values(id, bookID, next).
		Suffix("ON CONFLICT (library_id, book_id) DO NOTHING"))
	if err != nil {
		return model.Library{}, false, err
	}
	return c.touch(ctx, id, map[string]any{"updated_at": micros(c.s.now())})
}

func (c libraries) PullBook(ctx context.Context, id, bookID string) (model.Library, bool, error) {
	ok, err := c.exists(ctx, id)
	if err != nil || !ok {
		return model.Library{}, false, err
	}
	_, err = exec(ctx, c.r, c.s.sb.Delete(membersTable).Where(sq.Eq{"library_id": id, "book_id": bookID}))
	if err != nil {
		return model.Library{}, false, err
	}
	return c.touch(ctx, id, map[string]any{"updated_at": micros(c.s.now())})
}

func (c libraries) exists(ctx context.Context, id string) (bool, error) {
	n, err := count(ctx, c.r, c.s.sb.Select("COUNT(*)").From(librariesTable).Where(sq.Eq{"id": id}))
	return n > 0, err
}

// DeleteByID removes the library row and its membership rows. Member books are left alone.
func (c libraries) DeleteByID(ctx context.Context, id string) (bool, error) {
	if _, err := exec(ctx, c.r, c.s.sb.Delete(membersTable).Where(sq.Eq{"library_id": id})); err != nil {
		return false, err
	}
	n, err := exec(ctx, c.r, c.s.sb.Delete(librariesTable).Where(sq.Eq{"id": id}))
	return n > 0, err
}

func (c libraries) Find(ctx context.Context, f query.LibraryFilter, p query.Pagination) ([]model.Library, error) {
	limit, offset := limitOffset(p)
	rows, err := queryRows(ctx, c.r, c.s.sb.Select(libraryColumns...).
		From(librariesTable).
		Where(libraryWhere(f)).
		OrderBy("created_at DESC", "id DESC").
		Limit(limit).
		Offset(offset))
	if err != nil {
		return nil, err
	}
	out, err := func() ([]model.Library, error) {
		defer func() { _ = rows.Close() }()
		out := make([]model.Library, 0)
		for rows.Next() {
			l, err := scanLibrary(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, l)
		}
		return out, rows.Err()
	}()
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(out))
	for i, l := range out {
		ids[i] = l.ID
	}
	members, err := c.members(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if m, ok := members[out[i].ID]; ok {
			out[i].Books = m
		}
	}
	return out, nil
}

func (c libraries) Count(ctx context.Context, f query.LibraryFilter) (int, error) {
	return count(ctx, c.r, c.s.sb.Select("COUNT(*)").From(librariesTable).Where(libraryWhere(f)))
}

// FindPopulated reads the library and its member books from one snapshot.
func (c libraries) FindPopulated(ctx context.Context, id string) (out model.Library, found bool, err error) {
	err = c.s.snapshot(ctx, c.r, func(r runner) error {
		var err error
		out, found, err = libraries{s: c.s, r: r}.findPopulated(ctx, id)
		return err
	})
	if err != nil {
		return model.Library{}, false, err
	}
	return out, found, nil
}

func (c libraries) findPopulated(ctx context.Context, id string) (model.Library, bool, error) {
	l, ok, err := c.FindByID(ctx, id)
	if err != nil || !ok {
		return model.Library{}, ok, err
	}
	rows, err := queryRows(ctx, c.r, c.memberBooks(id).OrderBy("lb.position"))
	if err != nil {
		return model.Library{}, false, err
	}
	l.BookDetails, err = collectBooks(rows)
	if err != nil {
		return model.Library{}, false, err
	}
	return l, true, nil
}

// LookupBooks resolves one page of a library's existing member books. The count and
// the page are read from one snapshot, so the total always agrees with the page.
func (c libraries) LookupBooks(ctx context.Context, id string, p query.Pagination) (page []model.Book, total int, found bool, err error) {
	err = c.s.snapshot(ctx, c.r, func(r runner) error {
		var err error
		page, total, found, err = libraries{s: c.s, r: r}.lookupBooks(ctx, id, p)
		return err
	})
	if err != nil {
		return nil, 0, false, err
	}
	return page, total, found, nil
}

// lookupBooks groups the count by library so a missing library yields no row, which
// doubles as the existence check.
func (c libraries) lookupBooks(ctx context.Context, id string, p query.Pagination) ([]model.Book, int, bool, error) {
	row, err := queryRow(ctx, c.r, c.s.sb.Select("COUNT(b.id)").
		From(librariesTable+" l").
		LeftJoin(membersTable+" lb ON lb.library_id = l.id").
		LeftJoin(booksTable+" b ON b.id = lb.book_id").
		Where(sq.Eq{"l.id": id}).
		GroupBy("l.id"))
	if err != nil {
		return nil, 0, false, err
	}
	var total int
	switch err := row.Scan(&total); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, 0, false, nil
	case err != nil:
		return nil, 0, false, err
	}

	limit, offset := limitOffset(p)
	rows, err := queryRows(ctx, c.r, c.memberBooks(id).
		OrderBy("lb.position").
		Limit(limit).
		Offset(offset))
	if err != nil {
		return nil, 0, false, err
	}
	page, err := collectBooks(rows)
	if err != nil {
		return nil, 0, false, err
	}
	return page, total, true, nil
}

// memberBooks selects the existing books of library id. Dangling member ids drop out of the join.
func (c libraries) memberBooks(id string) sq.SelectBuilder {
	cols := make([]string, len(bookColumns))
	for i, col := range bookColumns {
		cols[i] = "b." + col
	}
	return c.s.sb.Select(cols...).
		From(membersTable + " lb").
		Join(booksTable + " b ON b.id = lb.book_id").
		Where(sq.Eq{"lb.library_id": id})
}

// libraryWhere translates f into a predicate equivalent to f.Matches.
func libraryWhere(f query.LibraryFilter) sq.Sqlizer {
	switch m := f.Match.(type) {
	case query.NameAddress:
		where := sq.And{}
		if m.Name != "" {
			where = append(where, containsFold("name", m.Name))
		}
		if m.Address != "" {
			where = append(where, containsFold("address", m.Address))
		}
		return where
	case query.FreeText:
		return sq.Or{containsFold("name", m.Text), containsFold("address", m.Text)}
	default:
		return sq.And{}
	}
}
