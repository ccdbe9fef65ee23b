// Package keys derives every cache key and invalidation pattern used by the repositories.
package keys

import (
	"strconv"
	"strings"

	"github.com/unkn0wn-root/shelfcache/cachestore"
	"github.com/unkn0wn-root/shelfcache/query"
)

const (
	bookPrefix          = "book:"
	libraryPrefix       = "library:"
	bookSearchPrefix    = "books:search:"
	librarySearchPrefix = "libraries:search:"

	// BookSearchPattern matches every cached book search page.
	BookSearchPattern = bookSearchPrefix + "*"
	// LibrarySearchPattern matches every cached library search page.
	LibrarySearchPattern = librarySearchPrefix + "*"
)

// Book is the key of a single book: book:{id}.
func Book(id string) string { return bookPrefix + id }

// Library is the key of a single library: library:{id}.
func Library(id string) string { return libraryPrefix + id }

// BookSearch is books:search:{serializedFilter}:{page}:{limit}.
func BookSearch(f query.BookFilter, p query.Pagination) string {
	return page(bookSearchPrefix+query.Quote(f.Canonical()), p)
}

// LibrarySearch is libraries:search:{serializedFilter}:{page}:{limit}.
func LibrarySearch(f query.LibraryFilter, p query.Pagination) string {
	return page(librarySearchPrefix+query.Quote(f.Canonical()), p)
}

// LibraryBooks is library:{id}:books:{page}:{limit}.
func LibraryBooks(id string, p query.Pagination) string {
	return page(libraryPrefix+id+":books", p)
}

// LibraryBooksPattern matches every cached page of one library's books. The id is
// escaped so that glob characters in it match literally.
func LibraryBooksPattern(id string) string {
	return libraryPrefix + cachestore.Escape(id) + ":books:*"
}

func page(prefix string, p query.Pagination) string {
	var b strings.Builder
	b.Grow(len(prefix) + 8)
	b.WriteString(prefix)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(p.Page))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(p.Limit))
	return b.String()
}

// Kind classifies a key for metrics: "book", "library", "book_search",
// "library_search", "library_books" or "other".
func Kind(key string) string {
	switch {
	case strings.HasPrefix(key, bookSearchPrefix):
		return "book_search"
	case strings.HasPrefix(key, librarySearchPrefix):
		return "library_search"
	case strings.HasPrefix(key, bookPrefix):
		return "book"
	case strings.HasPrefix(key, libraryPrefix):
		if strings.Contains(key[len(libraryPrefix):], ":books") {
			return "library_books"
		}
		return "library"
	default:
		return "other"
	}
}
