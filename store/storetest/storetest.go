// Package storetest is a conformance suite run against every store.Store implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/shelfcache/model"
	"github.com/unkn0wn-root/shelfcache/query"
	"github.com/unkn0wn-root/shelfcache/store"
)

// Factory opens an empty store that takes its timestamps from clock and its ids from ids.
type Factory func(t *testing.T, clock func() time.Time, ids func() string) store.Store

// Clock returns a clock that advances one second on every call, and a counting id source.
func Clock() (func() time.Time, func() string) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick, seq int
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	ids := func() string {
		seq++
		return fmt.Sprintf("id-%04d", seq)
	}
	return clock, ids
}

// Run executes the suite.
func Run(t *testing.T, open Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"BookCRUD", testBookCRUD},
		{"BookValidation", testBookValidation},
		{"BookSearch", testBookSearch},
		{"BookPaging", testBookPaging},
		{"DeleteByLibrary", testDeleteByLibrary},
		{"LibraryCRUD", testLibraryCRUD},
		{"LibraryMembership", testLibraryMembership},
		{"LibrarySearch", testLibrarySearch},
		{"LibraryLookup", testLibraryLookup},
		{"TxCommit", testTxCommit},
		{"TxAbort", testTxAbort},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clock, ids := Clock()
			s := open(t, clock, ids)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func testBookCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()
	b, err := s.Books().Create(ctx, model.Book{Title: "Dune", Author: "Herbert"})
	require.NoError(t, err)
	require.NotEmpty(t, b.ID)
	assert.Equal(t, time.UTC, b.CreatedAt.Location())

	got, ok, err := s.Books().FindByID(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b, got)

	author := "Frank Herbert"
	up, ok, err := s.Books().UpdateByID(ctx, b.ID, model.BookPatch{Author: &author})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Dune", up.Title)
	assert.Equal(t, author, up.Author)
	assert.True(t, up.UpdatedAt.After(up.CreatedAt))

	up, ok, err = s.Books().SetLibrary(ctx, b.ID, "lib-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "lib-1", up.Library)

	removed, ok, err := s.Books().DeleteByID(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, up, removed)

	_, ok, err = s.Books().FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Books().DeleteByID(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Books().UpdateByID(ctx, b.ID, model.BookPatch{Author: &author})
	require.NoError(t, err)
	assert.False(t, ok)
}

func testBookValidation(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.Books().Create(ctx, model.Book{Title: "Dune"})
	var verr *store.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "author", verr.Field)

	b, err := s.Books().Create(ctx, model.Book{Title: "Dune", Author: "Herbert"})
	require.NoError(t, err)
	blank := ""
	_, _, err = s.Books().UpdateByID(ctx, b.ID, model.BookPatch{Title: &blank})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)
}

func seedBooks(t *testing.T, s store.Store, books ...model.Book) []model.Book {
	t.Helper()
	out := make([]model.Book, 0, len(books))
	for _, b := range books {
		created, err := s.Books().Create(context.Background(), b)
		require.NoError(t, err)
		out = append(out, created)
	}
	return out
}

func titles(books []model.Book) []string {
	out := make([]string, len(books))
	for i, b := range books {
		out[i] = b.Title
	}
	return out
}

func testBookSearch(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedBooks(t, s,
		model.Book{Title: "Dune", Author: "Frank Herbert", Library: "L1"},
		model.Book{Title: "Emma", Author: "Jane Austen", Library: "L1"},
		model.Book{Title: "Neuromancer", Author: "William Gibson", Library: "L2"},
		model.Book{Title: "100% Pure", Author: "Odd_Name"},
	)

	tests := []struct {
		name   string
		params query.BookParams
		want   []string
	}{
		{"all", query.BookParams{}, []string{"100% Pure", "Neuromancer", "Emma", "Dune"}},
		{"title", query.BookParams{Title: "DUN"}, []string{"Dune"}},
		{"title and author", query.BookParams{Title: "e", Author: "austen"}, []string{"Emma"}},
		{"library", query.BookParams{Library: "L1"}, []string{"Emma", "Dune"}},
		{"library and text", query.BookParams{Library: "L1", SearchText: "gibson austen"}, []string{"Emma"}},
		{"any term", query.BookParams{SearchText: "gibson austen"}, []string{"Neuromancer", "Emma"}},
		{"free text wins", query.BookParams{Title: "Dune", SearchText: "neuromancer"}, []string{"Neuromancer"}},
		{"literal percent", query.BookParams{Title: "0%"}, []string{"100% Pure"}},
		{"literal underscore", query.BookParams{Author: "d_n"}, []string{"100% Pure"}},
		{"wildcard is not special", query.BookParams{Author: "k_h"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := query.BookFilterFrom(tt.params)
			got, err := s.Books().Find(ctx, f, query.Page(1, 10))
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(got))

			n, err := s.Books().Count(ctx, f)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), n)
		})
	}
}

func testBookPaging(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := range 7 {
		seedBooks(t, s, model.Book{Title: fmt.Sprintf("B%d", i), Author: "A"})
	}
	p1, err := s.Books().Find(ctx, query.BookFilter{}, query.Page(1, 3))
	require.NoError(t, err)
	assert.Equal(t, []string{"B6", "B5", "B4"}, titles(p1))

	p3, err := s.Books().Find(ctx, query.BookFilter{}, query.Page(3, 3))
	require.NoError(t, err)
	assert.Equal(t, []string{"B0"}, titles(p3))

	p4, err := s.Books().Find(ctx, query.BookFilter{}, query.Page(4, 3))
	require.NoError(t, err)
	assert.Empty(t, p4)

	far, err := s.Books().Find(ctx, query.BookFilter{}, query.Page(math.MaxInt, 3))
	require.NoError(t, err)
	assert.Empty(t, far)
}

func testDeleteByLibrary(t *testing.T, s store.Store) {
	ctx := context.Background()
	seeded := seedBooks(t, s,
		model.Book{Title: "A", Author: "x", Library: "L1"},
		model.Book{Title: "B", Author: "x", Library: "L1"},
		model.Book{Title: "C", Author: "x"},
	)
	ids, err := s.Books().DeleteByLibrary(ctx, "L1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{seeded[0].ID, seeded[1].ID}, ids)

	ids, err = s.Books().DeleteByLibrary(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, ids)

	n, err := s.Books().Count(ctx, query.BookFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testLibraryCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()
	l, err := s.Libraries().Create(ctx, model.Library{Name: "Central", Address: "1 Main St"})
	require.NoError(t, err)
	assert.Equal(t, []string{}, l.Books)

	got, ok, err := s.Libraries().FindByID(ctx, l.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, l, got)

	addr := "2 Side St"
	up, ok, err := s.Libraries().UpdateByID(ctx, l.ID, model.LibraryPatch{Address: &addr})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Central", up.Name)
	assert.Equal(t, addr, up.Address)

	blank := " "
	_, _, err = s.Libraries().UpdateByID(ctx, l.ID, model.LibraryPatch{Name: &blank})
	var verr *store.ValidationError
	require.ErrorAs(t, err, &verr)

	ok, err = s.Libraries().DeleteByID(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Libraries().DeleteByID(ctx, l.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Libraries().FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testLibraryMembership(t *testing.T, s store.Store) {
	ctx := context.Background()
	l, err := s.Libraries().Create(ctx, model.Library{Name: "Central"})
	require.NoError(t, err)

	for _, id := range []string{"b1", "b2", "b1", "b3"} {
		_, ok, err := s.Libraries().AddBook(ctx, l.ID, id)
		require.NoError(t, err)
		require.True(t, ok)
	}
	got, _, err := s.Libraries().FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2", "b3"}, got.Books)
	assert.True(t, got.HasBook("b2"))

	got, ok, err := s.Libraries().PullBook(ctx, l.ID, "b2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"b1", "b3"}, got.Books)

	got, _, err = s.Libraries().PullBook(ctx, l.ID, "absent")
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b3"}, got.Books)

	_, ok, err = s.Libraries().AddBook(ctx, "missing", "b1")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Libraries().PullBook(ctx, "missing", "b1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testLibrarySearch(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, l := range []model.Library{
		{Name: "Central", Address: "1 Main St"},
		{Name: "Harbor Branch", Address: "9 Pier Rd"},
		{Name: "Westside", Address: "Main Square"},
	} {
		_, err := s.Libraries().Create(ctx, l)
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		params query.LibraryParams
		want   []string
	}{
		{"all", query.LibraryParams{}, []string{"Westside", "Harbor Branch", "Central"}},
		{"name", query.LibraryParams{Name: "branch"}, []string{"Harbor Branch"}},
		{"address", query.LibraryParams{Address: "main"}, []string{"Westside", "Central"}},
		{"text in name or address", query.LibraryParams{SearchText: "west"}, []string{"Westside"}},
		{"text is one phrase", query.LibraryParams{SearchText: "main st"}, []string{"Central"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := query.LibraryFilterFrom(tt.params)
			got, err := s.Libraries().Find(ctx, f, query.Page(1, 10))
			require.NoError(t, err)
			names := make([]string, len(got))
			for i, l := range got {
				names[i] = l.Name
			}
			assert.Equal(t, tt.want, names)

			n, err := s.Libraries().Count(ctx, f)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), n)
		})
	}
}

func testLibraryLookup(t *testing.T, s store.Store) {
	ctx := context.Background()
	l, err := s.Libraries().Create(ctx, model.Library{Name: "Central"})
	require.NoError(t, err)
	books := seedBooks(t, s,
		model.Book{Title: "A", Author: "x", Library: l.ID},
		model.Book{Title: "B", Author: "x", Library: l.ID},
		model.Book{Title: "C", Author: "x", Library: l.ID},
	)
	for _, id := range []string{books[2].ID, "dangling", books[0].ID, books[1].ID} {
		_, _, err := s.Libraries().AddBook(ctx, l.ID, id)
		require.NoError(t, err)
	}

	pop, ok, err := s.Libraries().FindPopulated(ctx, l.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, pop.Books, 4)
	assert.Equal(t, []string{"C", "A", "B"}, titles(pop.BookDetails))

	page, total, ok, err := s.Libraries().LookupBooks(ctx, l.ID, query.Page(2, 2))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"B"}, titles(page))

	page, total, ok, err = s.Libraries().LookupBooks(ctx, l.ID, query.Page(math.MaxInt, 2))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, total)
	assert.Empty(t, page)

	empty, err := s.Libraries().Create(ctx, model.Library{Name: "Empty"})
	require.NoError(t, err)
	page, total, ok, err = s.Libraries().LookupBooks(ctx, empty.ID, query.Page(1, 10))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, total)
	assert.Empty(t, page)

	_, _, ok, err = s.Libraries().LookupBooks(ctx, "missing", query.Page(1, 10))
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Libraries().FindPopulated(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testTxCommit(t *testing.T, s store.Store) {
	ctx := context.Background()
	l, err := s.Libraries().Create(ctx, model.Library{Name: "Central"})
	require.NoError(t, err)

	var b model.Book
	err = store.WithTx(ctx, s, func(ctx context.Context, tx store.Tx) error {
		var err error
		if b, err = tx.Books().Create(ctx, model.Book{Title: "Dune", Author: "Herbert", Library: l.ID}); err != nil {
			return err
		}
		_, _, err = tx.Libraries().AddBook(ctx, l.ID, b.ID)
		return err
	})
	require.NoError(t, err)

	got, _, err := s.Libraries().FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, got.Books)
}

func testTxAbort(t *testing.T, s store.Store) {
	ctx := context.Background()
	l, err := s.Libraries().Create(ctx, model.Library{Name: "Central"})
	require.NoError(t, err)
	boom := errors.New("boom")

	err = store.WithTx(ctx, s, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.Books().Create(ctx, model.Book{Title: "Dune", Author: "Herbert", Library: l.ID})
		if err != nil {
			return err
		}
		if _, _, err := tx.Libraries().AddBook(ctx, l.ID, b.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := s.Books().Count(ctx, query.BookFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
	got, _, err := s.Libraries().FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Books)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Abort(ctx))
	assert.ErrorIs(t, tx.Commit(ctx), store.ErrTxDone)
}
