// Command shelfctl drives the book and library repositories from the command line.
//
// Settings come from SHELF_* environment variables and the .env/.env.local files
// (see internal/config). Results are printed as JSON.
//
//	shelfctl seed -libraries 3 -books 20
//	shelfctl books -q "dune herbert" -page 1 -limit 10
//	shelfctl add-book -library <id> -book <id>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unkn0wn-root/shelfcache"
	"github.com/unkn0wn-root/shelfcache/internal/app"
	"github.com/unkn0wn-root/shelfcache/internal/config"
	"github.com/unkn0wn-root/shelfcache/model"
	"github.com/unkn0wn-root/shelfcache/query"
)

var exitFunc = os.Exit

const usage = `usage: shelfctl <command> [flags]

commands:
  seed            create sample libraries and books
  book            show (-id) or create (-title -author [-library]) a book
  update-book     change a book's title or author
  delete-book     delete a book
  books           search books
  library         show (-id [-populated]) or create (-name [-address]) a library
  libraries       search libraries
  library-books   list one page of a library's books
  add-book        place a book into a library
  remove-book     take a book out of a library
  delete-library  delete a library and every book it owns
  metrics         serve /metrics on SHELF_METRICS_ADDR until interrupted
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, config.Load)
	stop()
	exitFunc(code)
}

type loader func(files ...string) (config.Config, error)

func run(ctx context.Context, args []string, stdout, stderr io.Writer, load loader) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "shelfctl: unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	cfg, err := load()
	if err != nil {
		fmt.Fprintf(stderr, "shelfctl: %v\n", err)
		return 1
	}
	a, err := app.New(ctx, cfg, app.WithLogOutput(stderr))
	if err != nil {
		fmt.Fprintf(stderr, "shelfctl: %v\n", err)
		return 1
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	out, err := cmd(ctx, env{app: a, cfg: cfg, fs: fs}, args[1:])
	switch {
	case errors.Is(err, flag.ErrHelp):
		return 2
	case errors.Is(err, shelfcache.ErrNotFound):
		fmt.Fprintf(stderr, "shelfctl: %v\n", err)
		return 3
	case err != nil:
		fmt.Fprintf(stderr, "shelfctl: %v\n", err)
		return 1
	}
	if out == nil {
		return 0
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stderr, "shelfctl: %v\n", err)
		return 1
	}
	return 0
}

type env struct {
	app *app.App
	cfg config.Config
	fs  *flag.FlagSet
}

type command func(ctx context.Context, e env, args []string) (any, error)

var commands = map[string]command{
	"seed":           seed,
	"book":           book,
	"update-book":    updateBook,
	"delete-book":    deleteBook,
	"books":          books,
	"library":        library,
	"libraries":      libraries,
	"library-books":  libraryBooks,
	"add-book":       addBook,
	"remove-book":    removeBook,
	"delete-library": deleteLibrary,
	"metrics":        metrics,
}

var errMissingID = errors.New("-id is required")

func pageFlags(fs *flag.FlagSet) (page, limit *int) {
	return fs.Int("page", query.DefaultPage, "page number (1-based)"),
		fs.Int("limit", query.DefaultLimit, "page size (max 100)")
}

func seed(ctx context.Context, e env, args []string) (any, error) {
	nLibs := e.fs.Int("libraries", 2, "libraries to create")
	nBooks := e.fs.Int("books", 10, "books to create, spread over the libraries")
	if err := e.fs.Parse(args); err != nil {
		return nil, err
	}
	libs := make([]model.Library, 0, *nLibs)
	for i := range *nLibs {
		l, err := e.app.Libraries.Create(ctx, model.LibraryInput{
			Name:    fmt.Sprintf("Library %d", i+1),
			Address: fmt.Sprintf("%d Main Street", i+1),
		})
		if err != nil {
			return nil, err
		}
		libs = append(libs, l)
	}
	created := 0
	for i := range *nBooks {
		in := model.BookInput{Title: fmt.Sprintf("Book %d", i+1), Author: fmt.Sprintf("Author %d", i%5+1)}
		if len(libs) > 0 {
			in.Library = libs[i%len(libs)].ID
		}
		if _, err := e.app.Books.Create(ctx, in); err != nil {
			return nil, err
		}
		created++
	}
	return map[string]int{"libraries": len(libs), "books": created}, nil
}

func book(ctx context.Context, e env, args []string) (any, error) {
	id := e.fs.String("id", "", "book id to show")
	title := e.fs.String("title", "", "title of a new book")
	author := e.fs.String("author", "", "author of a new book")
	lib := e.fs.String("library", "", "library to create the book in")
	if err := e.fs.Parse(args); err != nil {
		return nil, err
	}
	if *id == "" {
		return e.app.Books.Create(ctx, model.BookInput{Title: *title, Author: *author, Library: *lib})
	}
	b, ok, err := e.app.Books.FindByID(ctx, *id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &shelfcache.NotFoundError{Entity: "book", ID: *id}
	}
	return b, nil
}

func updateBook(ctx context.Context, e env, args []string) (any, error) {
	id := e.fs.String("id", "", "book id")
	var patch model.BookPatch
	e.fs.Func("title", "new title", func(s string) error { patch.Title = &s; return nil })
	e.fs.Func("author", "new author", func(s string) error { patch.Author = &s; return nil })
	if err := e.fs.Parse(args); err != nil {
		return nil, err
	}
	if *id == "" {
		return nil, errMissingID
	}
	if patch.Empty() {
		return nil, errors.New("nothing to update: pass -title and/or -author")
	}
	b, ok, err := e.app.Books.UpdateByID(ctx, *id, patch)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &shelfcache.NotFoundError{Entity: "book", ID: *id}
	}
	return b, nil
}

func deleteBook(ctx context.Context, e env, args []string) (any, error) {
	id := e.fs.String("id", "", "book id")
	if err := e.fs.Parse(args); err != nil {
		return nil, err
	}
	if *id == "" {
		return nil, errMissingID
	}
	deleted, err := e.app.Books.DeleteByID(ctx, *id)
	if err != nil {
		return nil, err
	}
	return map[string]bool{"deleted": deleted}, nil
}

func books(ctx context.Context, e env, args []string) (any, error) {
	title := e.fs.String("title", "", "title substring")
	author := e.fs.String("author", "", "author substring")
	q := e.fs.String("q", "", "free text over title and author; overrides -title/-author")
	lib := e.fs.String("library", "", "only books owned by this library")
	page, limit := pageFlags(e.fs)
	if err := e.fs.Parse(args); err != nil {
		return nil, err
	}
	f := query.BookFilterFrom(query.BookParams{Title: *title, Author: *author, SearchText: *q, Library: *lib})
	return e.app.Books.Search(ctx, f, query.Pagination{Page: *page, Limit: *limit})
}

func library(ctx context.Context, e env, args []string) (any, error) {
	id := e.fs.String("id", "", "library id to show")
	populated := e.fs.Bool("populated", false, "resolve the member books")
	name := e.fs.String("name", "", "name of a new library")
	address := e.fs.String("address", "", "address of a new library")
	if err := e.fs.Parse(args); err != nil {
		return nil, err
	}
	if *id == "" {
		return e.app.Libraries.Create(ctx, model.LibraryInput{Name: *name, Address: *address})
	}
	find := e.app.Libraries.FindByID
	if *populated {
		find = e.app.Libraries.FindByIDPopulated
	}
	l, ok, err := find(ctx, *id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &shelfcache.NotFoundError{Entity: "library", ID: *id}
	}
	return l, nil
}

func libraries(ctx context.Context, e env, args []string) (any, error) {
	name := e.fs.String("name", "", "name substring")
	address := e.fs.String("address", "", "address substring")
	q := e.fs.String("q", "", "free text over name and address; overrides -name/-address")
	page, limit := pageFlags(e.fs)
	if err := e.fs.Parse(args); err != nil {
		return nil, err
	}
	f := query.LibraryFilterFrom(query.LibraryParams{Name: *name, Address: *address, SearchText: *q})
	return e.app.Libraries.Search(ctx, f, query.Pagination{Page: *page, Limit: *limit})
}

func libraryBooks(ctx context.Context, e env, args []string) (any, error) {
	id := e.fs.String("id", "", "library id")
	page, limit := pageFlags(e.fs)
	if err := e.fs.Parse(args); err != nil {
		return nil, err
	}
	if *id == "" {
		return nil, errMissingID
	}
	return e.app.Libraries.Books(ctx, *id, query.Pagination{Page: *page, Limit: *limit})
}

func membership(e env, args []string) (libraryID, bookID string, err error) {
	lib := e.fs.String("library", "", "library id")
	b := e.fs.String("book", "", "book id")
	if err := e.fs.Parse(args); err != nil {
		return "", "", err
	}
	if *lib == "" || *b == "" {
		return "", "", errors.New("-library and -book are required")
	}
	return *lib, *b, nil
}

func addBook(ctx context.Context, e env, args []string) (any, error) {
	lib, b, err := membership(e, args)
	if err != nil {
		return nil, err
	}
	return e.app.Libraries.AddBook(ctx, lib, b)
}

func removeBook(ctx context.Context, e env, args []string) (any, error) {
	lib, b, err := membership(e, args)
	if err != nil {
		return nil, err
	}
	return e.app.Libraries.RemoveBook(ctx, lib, b)
}

func deleteLibrary(ctx context.Context, e env, args []string) (any, error) {
	id := e.fs.String("id", "", "library id")
	if err := e.fs.Parse(args); err != nil {
		return nil, err
	}
	if *id == "" {
		return nil, errMissingID
	}
	deleted, err := e.app.Libraries.DeleteByID(ctx, *id)
	if err != nil {
		return nil, err
	}
	return map[string]bool{"deleted": deleted}, nil
}

func metrics(ctx context.Context, e env, args []string) (any, error) {
	if err := e.fs.Parse(args); err != nil {
		return nil, err
	}
	if e.app.Registry == nil {
		return nil, errors.New("metrics are disabled: set SHELF_METRICS_ADDR")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.app.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:              e.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		return nil, err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return nil, srv.Shutdown(shutdownCtx)
}
