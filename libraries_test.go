package shelfcache

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/unkn0wn-root/shelfcache/internal/keys"
	"github.com/unkn0wn-root/shelfcache/model"
	"github.com/unkn0wn-root/shelfcache/query"
)

func TestLibraryCreateUpdateSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newMemoryStore(), nil)
	lib := f.mustLibrary(t, "central")
	if lib.Books == nil || len(lib.Books) != 0 {
		t.Fatalf("new library should start with an empty set, got %#v", lib.Books)
	}
	if !f.cache.has(keys.Library(lib.ID)) {
		t.Fatalf("Create should cache the library")
	}

	filter := query.LibraryFilter{Match: query.NameAddress{Name: "CENT"}}
	p := query.Page(1, 10)
	page, err := f.libs.Search(ctx, filter, p)
	if err != nil || page.TotalCount != 1 || page.TotalPages != 1 {
		t.Fatalf("Search: %+v err=%v", page, err)
	}
	if !f.cache.has(keys.LibrarySearch(filter, p)) {
		t.Fatalf("search page should be cached")
	}

	got, ok, err := f.libs.UpdateByID(ctx, lib.ID, model.LibraryPatch{Name: strp("north")})
	if err != nil || !ok || got.Name != "north" || got.Address != lib.Address {
		t.Fatalf("UpdateByID: %+v ok=%v err=%v", got, ok, err)
	}
	if f.cache.has(keys.LibrarySearch(filter, p)) {
		t.Fatalf("search page survived the update")
	}
	if page, _ := f.libs.Search(ctx, filter, p); page.TotalCount != 0 || page.Libraries == nil {
		t.Fatalf("renamed library still matches: %+v", page)
	}
	cached, _, _ := f.libs.FindByID(ctx, lib.ID)
	if cached.Name != "north" {
		t.Fatalf("library entry not refreshed: %+v", cached)
	}

	if _, ok, err := f.libs.UpdateByID(ctx, "missing", model.LibraryPatch{Name: strp("x")}); err != nil || ok {
		t.Fatalf("update missing: ok=%v err=%v", ok, err)
	}
}

func TestLibraryFindByIDPopulated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newMemoryStore(), nil)
	lib := f.mustLibrary(t, "central")
	a := f.mustBook(t, "Emma", "Austen", lib.ID)
	b := f.mustBook(t, "Dune", "Herbert", lib.ID)

	before := f.cache.writes()
	got, ok, err := f.libs.FindByIDPopulated(ctx, lib.ID)
	if err != nil || !ok {
		t.Fatalf("FindByIDPopulated: ok=%v err=%v", ok, err)
	}
	if len(got.BookDetails) != 2 || got.BookDetails[0].ID != a.ID || got.BookDetails[1].ID != b.ID {
		t.Fatalf("BookDetails = %+v", got.BookDetails)
	}
	if f.cache.writes() != before {
		t.Fatalf("populated lookups must bypass the cache")
	}
	if _, ok, err := f.libs.FindByIDPopulated(ctx, "missing"); err != nil || ok {
		t.Fatalf("populated missing: ok=%v err=%v", ok, err)
	}
}

// TestLibraryDeleteCascades verifies that owned books go with the library and that
// every cached view of them is dropped.
func TestLibraryDeleteCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newMemoryStore(), nil)
	lib := f.mustLibrary(t, "central")
	owned := f.mustBook(t, "Emma", "Austen", lib.ID)
	free := f.mustBook(t, "Dune", "Herbert", "")
	if _, err := f.libs.Books(ctx, lib.ID, query.Page(1, 10)); err != nil {
		t.Fatalf("Books: %v", err)
	}

	deleted, err := f.libs.DeleteByID(ctx, lib.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteByID: deleted=%v err=%v", deleted, err)
	}
	for _, k := range []string{keys.Book(owned.ID), keys.Library(lib.ID), keys.LibraryBooks(lib.ID, query.Page(1, 10))} {
		if f.cache.has(k) {
			t.Fatalf("%s survived the cascade", k)
		}
	}
	if _, ok, _ := f.books.FindByID(ctx, owned.ID); ok {
		t.Fatalf("owned book survived the cascade")
	}
	if _, ok, _ := f.books.FindByID(ctx, free.ID); !ok {
		t.Fatalf("unrelated book was deleted")
	}
	if _, ok, _ := f.libs.FindByID(ctx, lib.ID); ok {
		t.Fatalf("library survived")
	}

	deleted, err = f.libs.DeleteByID(ctx, lib.ID)
	if err != nil || deleted {
		t.Fatalf("second DeleteByID: deleted=%v err=%v", deleted, err)
	}
}

// TestLibraryDeleteRollsBack verifies that a failing library delete leaves both
// collections as they were.
func TestLibraryDeleteRollsBack(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryStore()
	seed := newFixture(t, mem, nil)
	lib := seed.mustLibrary(t, "central")
	owned := seed.mustBook(t, "Emma", "Austen", lib.ID)

	boom := errors.New("boom")
	f := newFixture(t, faultyStore{Store: mem, err: boom}, nil)
	deleted, err := f.libs.DeleteByID(ctx, lib.ID)
	if !errors.Is(err, boom) || deleted {
		t.Fatalf("DeleteByID: deleted=%v err=%v, want boom", deleted, err)
	}
	if f.cache.writes() != 0 {
		t.Fatalf("aborted delete touched the cache")
	}

	if _, ok, _ := mem.Books().FindByID(ctx, owned.ID); !ok {
		t.Fatalf("book deleted despite abort")
	}
	got, ok, _ := mem.Libraries().FindByID(ctx, lib.ID)
	if !ok || !got.HasBook(owned.ID) {
		t.Fatalf("library changed despite abort: %+v ok=%v", got, ok)
	}
}

func TestLibraryAddBookNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newMemoryStore(), nil)
	lib := f.mustLibrary(t, "central")
	b := f.mustBook(t, "Dune", "Herbert", "")

	_, err := f.libs.AddBook(ctx, lib.ID, "ghost")
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Entity != "book" || !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing book: got %v", err)
	}
	got, _, _ := f.libs.FindByID(ctx, lib.ID)
	if len(got.Books) != 0 {
		t.Fatalf("membership changed: %v", got.Books)
	}

	_, err = f.libs.AddBook(ctx, "ghost", b.ID)
	if !errors.As(err, &nf) || nf.Entity != "library" {
		t.Fatalf("missing library: got %v", err)
	}
	book, _, _ := f.books.FindByID(ctx, b.ID)
	if book.Library != "" {
		t.Fatalf("back-reference set despite failure: %+v", book)
	}
}

func TestLibraryAddBookIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newMemoryStore(), nil)
	lib := f.mustLibrary(t, "central")
	b := f.mustBook(t, "Dune", "Herbert", "")
	if _, err := f.libs.Books(ctx, lib.ID, query.Page(1, 10)); err != nil {
		t.Fatalf("Books: %v", err)
	}

	for range 2 {
		got, err := f.libs.AddBook(ctx, lib.ID, b.ID)
		if err != nil {
			t.Fatalf("AddBook: %v", err)
		}
		if len(got.Books) != 1 || got.Books[0] != b.ID {
			t.Fatalf("Books = %v, want [%s]", got.Books, b.ID)
		}
	}
	if f.cache.has(keys.Library(lib.ID)) || f.cache.has(keys.LibraryBooks(lib.ID, query.Page(1, 10))) {
		t.Fatalf("membership change left library entries cached")
	}

	book, _, _ := f.books.FindByID(ctx, b.ID)
	if book.Library != lib.ID {
		t.Fatalf("back-reference = %q, want %q", book.Library, lib.ID)
	}
	page, err := f.libs.Books(ctx, lib.ID, query.Page(1, 10))
	if err != nil || page.TotalCount != 1 || page.Books[0].ID != b.ID {
		t.Fatalf("Books after add: %+v err=%v", page, err)
	}
}

func TestLibraryAddBookMovesBetweenLibraries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newMemoryStore(), nil)
	from := f.mustLibrary(t, "central")
	to := f.mustLibrary(t, "north")
	b := f.mustBook(t, "Dune", "Herbert", from.ID)

	if _, err := f.libs.AddBook(ctx, to.ID, b.ID); err != nil {
		t.Fatalf("AddBook: %v", err)
	}
	old, _, _ := f.libs.FindByID(ctx, from.ID)
	if old.HasBook(b.ID) {
		t.Fatalf("book still listed by its previous library")
	}
	book, _, _ := f.books.FindByID(ctx, b.ID)
	if book.Library != to.ID {
		t.Fatalf("back-reference = %q, want %q", book.Library, to.ID)
	}
}

// TestLibraryAddBookRacingDelete checks that a book never ends up pointing at a library
// that a concurrent delete removed.
func TestLibraryAddBookRacingDelete(t *testing.T) {
	ctx := context.Background()
	for range 20 {
		f := newFixture(t, newMemoryStore(), nil)
		lib := f.mustLibrary(t, "central")
		b := f.mustBook(t, "Dune", "Herbert", "")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.libs.AddBook(ctx, lib.ID, b.ID)
		}()
		go func() {
			defer wg.Done()
			_, _ = f.libs.DeleteByID(ctx, lib.ID)
		}()
		wg.Wait()

		got, ok, err := f.st.Books().FindByID(ctx, b.ID)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if ok && got.Library != "" {
			if _, exists, _ := f.st.Libraries().FindByID(ctx, got.Library); !exists {
				t.Fatalf("book %s points at deleted library %s", b.ID, got.Library)
			}
		}
	}
}

func TestLibraryRemoveBook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newMemoryStore(), nil)
	lib := f.mustLibrary(t, "central")
	b := f.mustBook(t, "Dune", "Herbert", lib.ID)

	got, err := f.libs.RemoveBook(ctx, lib.ID, b.ID)
	if err != nil || got.HasBook(b.ID) {
		t.Fatalf("RemoveBook: %+v err=%v", got, err)
	}
	book, ok, _ := f.books.FindByID(ctx, b.ID)
	if !ok || book.Library != "" {
		t.Fatalf("back-reference not cleared: %+v", book)
	}

	// removing an absent member is a no-op
	if _, err := f.libs.RemoveBook(ctx, lib.ID, b.ID); err != nil {
		t.Fatalf("second RemoveBook: %v", err)
	}
	if _, err := f.libs.RemoveBook(ctx, "ghost", b.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing library: got %v", err)
	}
}

func TestLibraryBooks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newMemoryStore(), nil)
	lib := f.mustLibrary(t, "central")
	for _, title := range []string{"A", "B", "C"} {
		f.mustBook(t, title, "Author", lib.ID)
	}

	p := query.Page(2, 2)
	page, err := f.libs.Books(ctx, lib.ID, p)
	if err != nil || len(page.Books) != 1 || page.TotalCount != 3 || page.TotalPages != 2 {
		t.Fatalf("Books page 2: %+v err=%v", page, err)
	}
	if page.Books[0].Title != "C" {
		t.Fatalf("membership order: got %q, want C", page.Books[0].Title)
	}
	if !f.cache.has(keys.LibraryBooks(lib.ID, p)) {
		t.Fatalf("library book page should be cached")
	}

	far, err := f.libs.Books(ctx, lib.ID, query.Pagination{Page: math.MaxInt, Limit: 2})
	if err != nil || far.Books == nil || len(far.Books) != 0 || far.TotalCount != 3 || far.TotalPages != 2 {
		t.Fatalf("huge page: %+v err=%v", far, err)
	}
	if page, err := f.libs.Search(ctx, query.LibraryFilter{}, query.Pagination{Page: math.MaxInt, Limit: 10}); err != nil || len(page.Libraries) != 0 || page.TotalCount != 1 {
		t.Fatalf("huge library search page: %+v err=%v", page, err)
	}

	empty, err := f.libs.Books(ctx, "ghost", p)
	if err != nil || empty.Books == nil || len(empty.Books) != 0 || empty.TotalCount != 0 || empty.TotalPages != 0 {
		t.Fatalf("missing library: %+v err=%v", empty, err)
	}
	if f.cache.has(keys.LibraryBooks("ghost", p)) {
		t.Fatalf("missing library page must not be cached")
	}
}
