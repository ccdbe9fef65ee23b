// Package shelfcache implements cache-aside repositories for books and libraries.
//
// Components:
//   - store.Store: the persistent document store (memory, SQLite or Postgres).
//   - cachestore.Store: byte cache with TTLs and glob deletes (Redis, Ristretto, BigCache).
//   - Codecs: (de)serialize entities and pages to cache bytes.
//
// Reads consult the cache first and populate it on a miss. Writes go to the store first;
// the cache is then refreshed or invalidated. The cache is best effort: a cache failure
// is logged and reported to Hooks, never returned to the caller.
//
// Keys:
//
//	book:{id}
//	library:{id}
//	library:{id}:books:{page}:{limit}
//	books:search:{filter}:{page}:{limit}
//	libraries:search:{filter}:{page}:{limit}
//
// Usage:
//
//	books, _ := shelfcache.NewBookRepository(st, shelfcache.Options{Cache: rc})
//	libs, _ := shelfcache.NewLibraryRepository(st, books, shelfcache.Options{Cache: rc})
//	page, _ := books.Search(ctx, query.BookFilterFrom(params), query.Page(1, 10))
package shelfcache
