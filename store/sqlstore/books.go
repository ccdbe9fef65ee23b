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

const booksTable = "books"

var bookColumns = []string{"id", "title", "author", "library_id", "created_at", "updated_at"}

type books struct {
	s *Store
	r runner
}

var _ store.BookCollection = books{}

type scanner interface{ Scan(dest ...any) error }

func scanBook(row scanner) (model.Book, error) {
	var (
		b                model.Book
		created, updated int64
	)
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Library, &created, &updated); err != nil {
		return model.Book{}, err
	}
	b.CreatedAt, b.UpdatedAt = fromMicros(created), fromMicros(updated)
	return b, nil
}

func collectBooks(rows *sql.Rows) ([]model.Book, error) {
	defer func() { _ = rows.Close() }()
	out := make([]model.Book, 0)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (c books) Create(ctx context.Context, in model.Book) (model.Book, error) {
	if err := store.RequireText(booksTable, "title", in.Title); err != nil {
		return model.Book{}, err
	}
	if err := store.RequireText(booksTable, "author", in.Author); err != nil {
		return model.Book{}, err
	}
	now := c.s.now()
	in.ID = c.s.idFn()
	in.CreatedAt, in.UpdatedAt = now, now
	_, err := exec(ctx, c.r, c.s.sb.Insert(booksTable).
		Columns(bookColumns...).
		Values(in.ID, in.Title, in.Author, in.Library, micros(now), micros(now)))
	if err != nil {
		return model.Book{}, err
	}
	return in, nil
}

func (c books) FindByID(ctx context.Context, id string) (model.Book, bool, error) {
	row, err := queryRow(ctx, c.r, c.s.sb.Select(bookColumns...).From(booksTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return model.Book{}, false, err
	}
	b, err := scanBook(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.Book{}, false, nil
	case err != nil:
		return model.Book{}, false, err
	}
	return b, true, nil
}

func (c books) UpdateByID(ctx context.Context, id string, patch model.BookPatch) (model.Book, bool, error) {
	set := map[string]any{"updated_at": micros(c.s.now())}
	if patch.Title != nil {
		if err := store.RequireText(booksTable, "title", *patch.Title); err != nil {
			return model.Book{}, false, err
		}
		set["title"] = *patch.Title
	}
	if patch.Author != nil {
		if err := store.RequireText(booksTable, "author", *patch.Author); err != nil {
			return model.Book{}, false, err
		}
		set["author"] = *patch.Author
	}
	return c.update(ctx, id, set)
}

func (c books) SetLibrary(ctx context.Context, id, libraryID string) (model.Book, bool, error) {
	return c.update(ctx, id, map[string]any{
		"library_id": libraryID,
		"updated_at": micros(c.s.now()),
	})
}

func (c books) update(ctx context.Context, id string, set map[string]any) (model.Book, bool, error) {
	n, err := exec(ctx, c.r, c.s.sb.Update(booksTable).SetMap(set).Where(sq.Eq{"id": id}))
	if err != nil || n == 0 {
		return model.Book{}, false, err
	}
	return c.FindByID(ctx, id)
}

func (c books) DeleteByID(ctx context.Context, id string) (model.Book, bool, error) {
	b, ok, err := c.FindByID(ctx, id)
	if err != nil || !ok {
		return model.Book{}, false, err
	}
	n, err := exec(ctx, c.r, c.s.sb.Delete(booksTable).Where(sq.Eq{"id": id}))
	if err != nil || n == 0 {
		return model.Book{}, false, err
	}
	return b, true, nil
}

func (c books) DeleteByLibrary(ctx context.Context, libraryID string) ([]string, error) {
	if libraryID == "" {
		return []string{}, nil
	}
	rows, err := queryRows(ctx, c.r, c.s.sb.Select("id").From(booksTable).Where(sq.Eq{"library_id": libraryID}))
	if err != nil {
		return nil, err
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}
	if _, err := exec(ctx, c.r, c.s.sb.Delete(booksTable).Where(sq.Eq{"id": ids})); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c books) Find(ctx context.Context, f query.BookFilter, p query.Pagination) ([]model.Book, error) {
	limit, offset := limitOffset(p)
	rows, err := queryRows(ctx, c.r, c.s.sb.Select(bookColumns...).
		From(booksTable).
		Where(bookWhere(f)).
		OrderBy("created_at DESC", "id DESC").
		Limit(limit).
		Offset(offset))
	if err != nil {
		return nil, err
	}
	return collectBooks(rows)
}

func (c books) Count(ctx context.Context, f query.BookFilter) (int, error) {
	return count(ctx, c.r, c.s.sb.Select("COUNT(*)").From(booksTable).Where(bookWhere(f)))
}

// bookWhere translates f into a predicate equivalent to f.Matches.
func bookWhere(f query.BookFilter) sq.And {
	where := sq.And{}
	if f.Library != "" {
		where = append(where, sq.Eq{"library_id": f.Library})
	}
	switch m := f.Match.(type) {
	case query.TitleAuthor:
		if m.Title != "" {
			where = append(where, containsFold("title", m.Title))
		}
		if m.Author != "" {
			where = append(where, containsFold("author", m.Author))
		}
	case query.FreeText:
		if terms := m.Terms(); len(terms) > 0 {
			anyTerm := sq.Or{}
			for _, t := range terms {
				anyTerm = append(anyTerm, containsFold("title", t), containsFold("author", t))
			}
			where = append(where, anyTerm)
		}
	}
	return where
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	defer func() { _ = rows.Close() }()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
