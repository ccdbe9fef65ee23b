package shelfcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unkn0wn-root/shelfcache/codec"
	"github.com/unkn0wn-root/shelfcache/internal/keys"
	"github.com/unkn0wn-root/shelfcache/model"
	"github.com/unkn0wn-root/shelfcache/query"
)

// ==============================
// Best-effort cache behaviour
// ==============================

// TestCacheOutageIsTransparent runs every operation against a cache that fails
// every call and expects the same results as without a cache.
func TestCacheOutageIsTransparent(t *testing.T) {
	ctx := context.Background()
	hooks := &recordingHooks{}
	f := newFixture(t, newMemoryStore(), func(o *Options) {
		o.Cache = downCache{}
		o.Hooks = hooks
		o.CacheTimeout = 50 * time.Millisecond
	})

	lib := f.mustLibrary(t, "central")
	b := f.mustBook(t, "Dune", "Herbert", lib.ID)
	if _, ok, err := f.books.FindByID(ctx, b.ID); err != nil || !ok {
		t.Fatalf("FindByID: ok=%v err=%v", ok, err)
	}
	if _, ok, err := f.books.UpdateByID(ctx, b.ID, model.BookPatch{Author: strp("F. Herbert")}); err != nil || !ok {
		t.Fatalf("UpdateByID: ok=%v err=%v", ok, err)
	}
	if page, err := f.books.Search(ctx, query.BookFilter{}, query.Page(1, 10)); err != nil || page.TotalCount != 1 {
		t.Fatalf("Search: %+v err=%v", page, err)
	}
	if page, err := f.libs.Books(ctx, lib.ID, query.Page(1, 10)); err != nil || page.TotalCount != 1 {
		t.Fatalf("Books: %+v err=%v", page, err)
	}
	if _, err := f.libs.RemoveBook(ctx, lib.ID, b.ID); err != nil {
		t.Fatalf("RemoveBook: %v", err)
	}
	if _, err := f.libs.AddBook(ctx, lib.ID, b.ID); err != nil {
		t.Fatalf("AddBook: %v", err)
	}
	if deleted, err := f.libs.DeleteByID(ctx, lib.ID); err != nil || !deleted {
		t.Fatalf("DeleteByID: deleted=%v err=%v", deleted, err)
	}
	if _, ok, err := f.books.FindByID(ctx, b.ID); err != nil || ok {
		t.Fatalf("cascaded book: ok=%v err=%v", ok, err)
	}

	for _, op := range []string{"error get", "error set", "error del", "error del_pattern"} {
		if hooks.count(op) == 0 {
			t.Fatalf("expected %q hook events, got %v", op, hooks.events)
		}
	}
	if hooks.count("hit") != 0 {
		t.Fatalf("a failing cache cannot produce hits")
	}
}

// TestUndecodableEntrySelfHeals verifies that garbage under an owned key is deleted
// and the value is reloaded from the store.
func TestUndecodableEntrySelfHeals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newMemoryStore(), nil)
	b := f.mustBook(t, "Dune", "Herbert", "")

	key := keys.Book(b.ID)
	f.cache.put(key, []byte{0xc1})
	got, ok, err := f.books.FindByID(ctx, b.ID)
	if err != nil || !ok || got.Title != "Dune" {
		t.Fatalf("FindByID: %+v ok=%v err=%v", got, ok, err)
	}
	if !f.hooks.seen("selfheal " + key + " decode") {
		t.Fatalf("expected self-heal, got %v", f.hooks.events)
	}

	// the repaired entry decodes again
	if _, ok, _ := f.books.FindByID(ctx, b.ID); !ok || !f.hooks.seen("hit "+key) {
		t.Fatalf("entry was not repopulated")
	}
}

func TestOversizedEntryIsDropped(t *testing.T) {
	ctx := context.Background()
	codecs, err := CodecsFor("json")
	if err != nil {
		t.Fatalf("CodecsFor: %v", err)
	}
	f := newFixture(t, newMemoryStore(), func(o *Options) { o.Codecs = codecs.Limit(16) })
	b := f.mustBook(t, "Dune", "Herbert", "")

	if _, ok, err := f.books.FindByID(ctx, b.ID); err != nil || !ok {
		t.Fatalf("FindByID: ok=%v err=%v", ok, err)
	}
	if !f.hooks.seen("selfheal " + keys.Book(b.ID) + " decode") {
		t.Fatalf("oversized entry should be treated as undecodable, got %v", f.hooks.events)
	}
}

func TestDisabledCacheIsBypassed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newMemoryStore(), func(o *Options) { o.Disabled = true })
	b := f.mustBook(t, "Dune", "Herbert", "")
	if _, ok, err := f.books.FindByID(ctx, b.ID); err != nil || !ok {
		t.Fatalf("FindByID: ok=%v err=%v", ok, err)
	}
	if f.cache.writes() != 0 || len(f.hooks.events) != 0 {
		t.Fatalf("disabled cache was used: writes=%d hooks=%v", f.cache.writes(), f.hooks.events)
	}
}

func TestCacheTTLs(t *testing.T) {
	f := newFixture(t, newMemoryStore(), func(o *Options) {
		o.EntityTTL = time.Nanosecond
	})
	b := f.mustBook(t, "Dune", "Herbert", "")
	time.Sleep(time.Millisecond)
	if _, ok, _ := f.cache.Get(context.Background(), keys.Book(b.ID)); ok {
		t.Fatalf("entry outlived its TTL")
	}

	c := newCacheLayer(Options{})
	if c.entityTTL != DefaultEntityTTL || c.searchTTL != DefaultSearchTTL || c.enabled {
		t.Fatalf("defaults: %+v", c)
	}
}

func TestConstructorsRequireStore(t *testing.T) {
	if _, err := NewBookRepository(nil, Options{}); !errors.Is(err, errNilStore) {
		t.Fatalf("NewBookRepository(nil): %v", err)
	}
	if _, err := NewLibraryRepository(nil, nil, Options{}); !errors.Is(err, errNilStore) {
		t.Fatalf("NewLibraryRepository(nil): %v", err)
	}
	if _, err := NewLibraryRepository(newMemoryStore(), nil, Options{}); err == nil {
		t.Fatalf("NewLibraryRepository without books should fail")
	}
}

// ==============================
// Codecs
// ==============================

// TestCodecBundles runs a create/find round trip through every named bundle and
// checks that the cached copy equals the stored one.
func TestCodecBundles(t *testing.T) {
	for _, name := range []string{"json", "msgpack", "cbor", "protobuf"} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			codecs, err := CodecsFor(name)
			if err != nil {
				t.Fatalf("CodecsFor: %v", err)
			}
			f := newFixture(t, newMemoryStore(), func(o *Options) { o.Codecs = codecs })
			lib := f.mustLibrary(t, "central")
			b := f.mustBook(t, "Dune", "Herbert", lib.ID)

			got, ok, err := f.books.FindByID(ctx, b.ID)
			if err != nil || !ok {
				t.Fatalf("FindByID: ok=%v err=%v", ok, err)
			}
			if !f.hooks.seen("hit " + keys.Book(b.ID)) {
				t.Fatalf("expected a cache hit, got %v", f.hooks.events)
			}
			if got.ID != b.ID || got.Title != b.Title || got.Library != b.Library ||
				!got.CreatedAt.Equal(b.CreatedAt) || !got.UpdatedAt.Equal(b.UpdatedAt) {
				t.Fatalf("round trip: got %+v, want %+v", got, b)
			}

			if _, _, err := f.libs.FindByID(ctx, lib.ID); err != nil {
				t.Fatalf("FindByID library: %v", err)
			}
			l, _, err := f.libs.FindByID(ctx, lib.ID)
			if err != nil || len(l.Books) != 1 || l.Books[0] != b.ID {
				t.Fatalf("library round trip: %+v err=%v", l, err)
			}

			p := query.Page(1, 10)
			for range 2 {
				page, err := f.books.Search(ctx, query.BookFilter{}, p)
				if err != nil || page.TotalCount != 1 || page.TotalPages != 1 || len(page.Books) != 1 {
					t.Fatalf("search round trip: %+v err=%v", page, err)
				}
			}
			if !f.hooks.seen("hit " + keys.BookSearch(query.BookFilter{}, p)) {
				t.Fatalf("second search should hit")
			}
		})
	}

	if _, err := CodecsFor("xml"); err == nil {
		t.Fatalf("unknown codec should fail")
	}
}

func TestCodecsDefaultToJSON(t *testing.T) {
	c := Codecs{}.orDefault()
	if _, ok := c.Book.(codec.JSON[model.Book]); !ok {
		t.Fatalf("Book codec = %T", c.Book)
	}
	if _, ok := c.LibraryPage.(codec.JSON[model.LibraryPage]); !ok {
		t.Fatalf("LibraryPage codec = %T", c.LibraryPage)
	}
	if got := c.Limit(0); got.Book != c.Book {
		t.Fatalf("Limit(0) should be a no-op")
	}
}
