package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/shelfcache/model"
	"github.com/unkn0wn-root/shelfcache/query"
	"github.com/unkn0wn-root/shelfcache/store"
)

// tickingStore returns a store whose clock advances one second per call and whose
// ids count up, so ordering in assertions is deterministic.
func tickingStore() *Store {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick, seq int
	return New(
		WithClock(func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		}),
		WithIDs(func() string {
			seq++
			return fmt.Sprintf("id-%03d", seq)
		}),
	)
}

func TestBooksCreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := tickingStore()

	b, err := s.Books().Create(ctx, model.Book{Title: "Dune", Author: "Herbert"})
	require.NoError(t, err)
	require.NotEmpty(t, b.ID)
	assert.Equal(t, b.CreatedAt, b.UpdatedAt)

	got, ok, err := s.Books().FindByID(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b, got)

	_, ok, err = s.Books().FindByID(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBooksCreateValidates(t *testing.T) {
	s := tickingStore()
	_, err := s.Books().Create(context.Background(), model.Book{Title: " ", Author: "x"})
	var verr *store.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)
}

func TestBooksUpdatePartial(t *testing.T) {
	ctx := context.Background()
	s := tickingStore()
	b, err := s.Books().Create(ctx, model.Book{Title: "Dune", Author: "Herbert"})
	require.NoError(t, err)

	title := "Dune Messiah"
	up, ok, err := s.Books().UpdateByID(ctx, b.ID, model.BookPatch{Title: &title})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Dune Messiah", up.Title)
	assert.Equal(t, "Herbert", up.Author)
	assert.True(t, up.UpdatedAt.After(b.UpdatedAt))

	_, ok, err = s.Books().UpdateByID(ctx, "missing", model.BookPatch{Title: &title})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBooksFindNewestFirstAndPaged(t *testing.T) {
	ctx := context.Background()
	s := tickingStore()
	for i := range 5 {
		_, err := s.Books().Create(ctx, model.Book{Title: fmt.Sprintf("Book %d", i), Author: "A"})
		require.NoError(t, err)
	}

	page, err := s.Books().Find(ctx, query.BookFilter{}, query.Page(1, 2))
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "Book 4", page[0].Title)
	assert.Equal(t, "Book 3", page[1].Title)

	last, err := s.Books().Find(ctx, query.BookFilter{}, query.Page(3, 2))
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "Book 0", last[0].Title)

	past, err := s.Books().Find(ctx, query.BookFilter{}, query.Page(9, 2))
	require.NoError(t, err)
	assert.Empty(t, past)

	n, err := s.Books().Count(ctx, query.BookFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestBooksFreeTextMatchesAnyTerm(t *testing.T) {
	ctx := context.Background()
	s := tickingStore()
	for _, b := range []model.Book{
		{Title: "Dune", Author: "Frank Herbert"},
		{Title: "Emma", Author: "Jane Austen"},
		{Title: "Neuromancer", Author: "William Gibson"},
	} {
		_, err := s.Books().Create(ctx, b)
		require.NoError(t, err)
	}

	f := query.BookFilterFrom(query.BookParams{SearchText: "austen GIBSON"})
	got, err := s.Books().Find(ctx, f, query.Page(1, 10))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Neuromancer", got[0].Title)
	assert.Equal(t, "Emma", got[1].Title)
}

func TestLibraryMembershipIsASet(t *testing.T) {
	ctx := context.Background()
	s := tickingStore()
	l, err := s.Libraries().Create(ctx, model.Library{Name: "Central"})
	require.NoError(t, err)
	assert.NotNil(t, l.Books)
	assert.Empty(t, l.Books)

	for range 2 {
		l, _, err = s.Libraries().AddBook(ctx, l.ID, "b1")
		require.NoError(t, err)
	}
	l, _, err = s.Libraries().AddBook(ctx, l.ID, "b2")
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2"}, l.Books)

	l, ok, err := s.Libraries().PullBook(ctx, l.ID, "b1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"b2"}, l.Books)

	_, ok, err = s.Libraries().PullBook(ctx, "missing", "b2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLibraryPopulatedSkipsDanglingMembers(t *testing.T) {
	ctx := context.Background()
	s := tickingStore()
	l, err := s.Libraries().Create(ctx, model.Library{Name: "Central"})
	require.NoError(t, err)
	b, err := s.Books().Create(ctx, model.Book{Title: "Dune", Author: "Herbert", Library: l.ID})
	require.NoError(t, err)
	_, _, err = s.Libraries().AddBook(ctx, l.ID, b.ID)
	require.NoError(t, err)
	_, _, err = s.Libraries().AddBook(ctx, l.ID, "gone")
	require.NoError(t, err)

	pop, ok, err := s.Libraries().FindPopulated(ctx, l.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{b.ID, "gone"}, pop.Books)
	require.Len(t, pop.BookDetails, 1)
	assert.Equal(t, b, pop.BookDetails[0])

	books, total, ok, err := s.Libraries().LookupBooks(ctx, l.ID, query.Page(1, 10))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, total)
	assert.Equal(t, []model.Book{b}, books)

	_, _, ok, err = s.Libraries().LookupBooks(ctx, "missing", query.Page(1, 10))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLibrarySearch(t *testing.T) {
	ctx := context.Background()
	s := tickingStore()
	for _, l := range []model.Library{
		{Name: "Central", Address: "1 Main St"},
		{Name: "Harbor Branch", Address: "9 Pier Rd"},
	} {
		_, err := s.Libraries().Create(ctx, l)
		require.NoError(t, err)
	}

	f := query.LibraryFilterFrom(query.LibraryParams{SearchText: "pier"})
	got, err := s.Libraries().Find(ctx, f, query.Page(1, 10))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Harbor Branch", got[0].Name)

	n, err := s.Libraries().Count(ctx, query.LibraryFilterFrom(query.LibraryParams{Name: "c"}))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDeleteByLibrary(t *testing.T) {
	ctx := context.Background()
	s := tickingStore()
	a, _ := s.Books().Create(ctx, model.Book{Title: "A", Author: "x", Library: "L1"})
	b, _ := s.Books().Create(ctx, model.Book{Title: "B", Author: "x", Library: "L1"})
	c, _ := s.Books().Create(ctx, model.Book{Title: "C", Author: "x", Library: "L2"})

	ids, err := s.Books().DeleteByLibrary(ctx, "L1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	_, ok, _ := s.Books().FindByID(ctx, c.ID)
	assert.True(t, ok)
	n, _ := s.Books().Count(ctx, query.BookFilter{})
	assert.Equal(t, 1, n)
}

func TestTxCommitApplies(t *testing.T) {
	ctx := context.Background()
	s := tickingStore()
	l, err := s.Libraries().Create(ctx, model.Library{Name: "Central"})
	require.NoError(t, err)

	var created model.Book
	err = store.WithTx(ctx, s, func(ctx context.Context, tx store.Tx) error {
		created, err = tx.Books().Create(ctx, model.Book{Title: "Dune", Author: "Herbert", Library: l.ID})
		if err != nil {
			return err
		}
		_, _, err = tx.Libraries().AddBook(ctx, l.ID, created.ID)
		return err
	})
	require.NoError(t, err)

	got, ok, err := s.Libraries().FindByID(ctx, l.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{created.ID}, got.Books)
	_, ok, _ = s.Books().FindByID(ctx, created.ID)
	assert.True(t, ok)
}

func TestTxAbortDiscards(t *testing.T) {
	ctx := context.Background()
	s := tickingStore()
	boom := errors.New("boom")

	err := store.WithTx(ctx, s, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Books().Create(ctx, model.Book{Title: "Dune", Author: "Herbert"}); err != nil {
			return err
		}
		// visible inside the transaction only
		n, err := tx.Books().Count(ctx, query.BookFilter{})
		require.NoError(t, err)
		require.Equal(t, 1, n)
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := s.Books().Count(ctx, query.BookFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTxFinished(t *testing.T) {
	ctx := context.Background()
	s := tickingStore()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	assert.ErrorIs(t, tx.Commit(ctx), store.ErrTxDone)
	assert.ErrorIs(t, tx.Abort(ctx), store.ErrTxDone)
	_, err = tx.Books().Create(ctx, model.Book{Title: "x", Author: "y"})
	assert.ErrorIs(t, err, store.ErrTxDone)
}

// TestTxSerializesWriters verifies that a library delete issued while a transaction
// links a book to it waits for the commit instead of slipping underneath it.
func TestTxSerializesWriters(t *testing.T) {
	ctx := context.Background()
	s := tickingStore()
	l, err := s.Libraries().Create(ctx, model.Library{Name: "Central"})
	require.NoError(t, err)
	b, err := s.Books().Create(ctx, model.Book{Title: "Dune", Author: "Herbert"})
	require.NoError(t, err)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, ok, err := tx.Libraries().AddBook(ctx, l.ID, b.ID)
	require.NoError(t, err)
	require.True(t, ok)
	_, _, err = tx.Books().SetLibrary(ctx, b.ID, l.ID)
	require.NoError(t, err)

	deleted := make(chan bool, 1)
	go func() {
		found, _ := s.Libraries().DeleteByID(ctx, l.ID)
		deleted <- found
	}()
	select {
	case <-deleted:
		t.Fatal("delete ran while the transaction was open")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, tx.Commit(ctx))
	assert.True(t, <-deleted, "delete should see the committed library")
	got, _, err := s.Books().FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, l.ID, got.Library)
}

func TestTxReleasesLockWhenFinished(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	ctx := context.Background()
	s := tickingStore()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Books().Create(ctx, model.Book{Title: "Dune", Author: "Herbert"})
	require.NoError(t, err)
	cancel()
	require.ErrorIs(t, tx.Commit(cancelled), context.Canceled)

	n, err := s.Books().Count(ctx, query.BookFilter{})
	require.NoError(t, err)
	assert.Zero(t, n, "cancelled commit must not publish")

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Abort(ctx))
	_, err = s.Books().Create(ctx, model.Book{Title: "Emma", Author: "Austen"})
	require.NoError(t, err)
}

func TestReturnedLibrariesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := tickingStore()
	l, err := s.Libraries().Create(ctx, model.Library{Name: "Central"})
	require.NoError(t, err)
	l, _, err = s.Libraries().AddBook(ctx, l.ID, "b1")
	require.NoError(t, err)

	l.Books[0] = "mutated"
	got, _, err := s.Libraries().FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, got.Books)
}
