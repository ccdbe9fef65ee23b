// Package sqlstore implements store.Store on top of database/sql. Dialect specific
// details are limited to placeholders, so the same code serves SQLite and Postgres.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/unkn0wn-root/shelfcache/query"
	"github.com/unkn0wn-root/shelfcache/store"
)

var _ store.Store = (*Store)(nil)

// Dialect selects the SQL flavour of the underlying database.
type Dialect struct {
	Name        string
	Placeholder sq.PlaceholderFormat
	// Snapshot are the options of read transactions that must see one consistent state.
	Snapshot *sql.TxOptions
}

var (
	// SQLite transactions are serializable already.
	SQLite   = Dialect{Name: "sqlite", Placeholder: sq.Question}
	Postgres = Dialect{
		Name:        "postgres",
		Placeholder: sq.Dollar,
		Snapshot:    &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
	}
)

const schema = `
CREATE TABLE IF NOT EXISTS libraries (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS books (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	author     TEXT NOT NULL,
	library_id TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS books_library_idx ON books (library_id);
CREATE INDEX IF NOT EXISTS books_created_idx ON books (created_at);
CREATE INDEX IF NOT EXISTS libraries_created_idx ON libraries (created_at);
CREATE TABLE IF NOT EXISTS library_books (
	library_id TEXT NOT NULL,
	book_id    TEXT NOT NULL,
	position   BIGINT NOT NULL,
	PRIMARY KEY (library_id, book_id)
);
`

// runner is satisfied by both *sql.DB and *sql.Tx.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for timestamps.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.nowFn = fn }
}

// WithIDs replaces the random id generator.
func WithIDs(fn func() string) Option {
	return func(s *Store) { s.idFn = fn }
}

// WithCloser registers fn to run after the database handle is closed.
func WithCloser(fn func() error) Option {
	return func(s *Store) { s.closers = append(s.closers, fn) }
}

// Store is a store.Store backed by a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
	nowFn   func() time.Time
	idFn    func() string
	closers []func() error
}

// New wraps db. Call Migrate before first use on an empty database.
func New(db *sql.DB, d Dialect, opts ...Option) *Store {
	s := &Store{
		db:      db,
		dialect: d,
		sb:      sq.StatementBuilder.PlaceholderFormat(d.Placeholder),
		nowFn:   time.Now,
		idFn:    func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Migrate creates the tables and indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: migrate %s: %w", s.dialect.Name, err)
		}
	}
	return nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Books() store.BookCollection        { return books{s: s, r: s.db} }
func (s *Store) Libraries() store.LibraryCollection { return libraries{s: s, r: s.db} }

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	t, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &tx{s: s, tx: t}, nil
}

func (s *Store) Close() error {
	errs := []error{s.db.Close()}
	for _, fn := range s.closers {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}

func (s *Store) now() time.Time { return s.nowFn().UTC().Truncate(time.Microsecond) }

type tx struct {
	s  *Store
	tx *sql.Tx
}

var _ store.Tx = (*tx)(nil)

func (t *tx) Books() store.BookCollection        { return books{s: t.s, r: t.tx} }
func (t *tx) Libraries() store.LibraryCollection { return libraries{s: t.s, r: t.tx} }

func (t *tx) Commit(context.Context) error { return txErr(t.tx.Commit()) }
func (t *tx) Abort(context.Context) error  { return txErr(t.tx.Rollback()) }

// snapshot runs fn on a read transaction when r is the bare database handle. Inside a
// store transaction fn runs on that transaction.
func (s *Store) snapshot(ctx context.Context, r runner, fn func(r runner) error) error {
	db, ok := r.(*sql.DB)
	if !ok {
		return fn(r)
	}
	t, err := db.BeginTx(ctx, s.dialect.Snapshot)
	if err != nil {
		return err
	}
	if err := fn(t); err != nil {
		_ = t.Rollback()
		return err
	}
	return t.Commit()
}

func txErr(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return store.ErrTxDone
	}
	return err
}

func exec(ctx context.Context, r runner, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	res, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func queryRow(ctx context.Context, r runner, b sq.Sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return r.QueryRowContext(ctx, query, args...), nil
}

func queryRows(ctx context.Context, r runner, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return r.QueryContext(ctx, query, args...)
}

func count(ctx context.Context, r runner, b sq.Sqlizer) (int, error) {
	row, err := queryRow(ctx, r, b)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// likeArg returns a lowercased LIKE pattern matching sub anywhere.
func likeArg(sub string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(sub)) + "%"
}

func containsFold(col, sub string) sq.Sqlizer {
	return sq.Expr("LOWER("+col+") LIKE ? ESCAPE '\\'", likeArg(sub))
}

func micros(t time.Time) int64     { return t.UnixMicro() }
func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

func limitOffset(p query.Pagination) (uint64, uint64) {
	return uint64(max(p.Limit, 0)), uint64(max(p.Offset(), 0))
}
