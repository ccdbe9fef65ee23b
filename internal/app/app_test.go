package app

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/shelfcache/internal/config"
	"github.com/unkn0wn-root/shelfcache/model"
	"github.com/unkn0wn-root/shelfcache/query"
)

func TestNewMemoryWithoutCache(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	a, err := New(ctx, config.Default(), WithLogOutput(&logs))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(ctx) })

	assert.Nil(t, a.Cache)
	assert.Nil(t, a.Registry)

	lib, err := a.Libraries.Create(ctx, model.LibraryInput{Name: "central"})
	require.NoError(t, err)
	b, err := a.Books.Create(ctx, model.BookInput{Title: "Dune", Author: "Herbert", Library: lib.ID})
	require.NoError(t, err)

	page, err := a.Libraries.Books(ctx, lib.ID, query.Page(1, 10))
	require.NoError(t, err)
	require.Len(t, page.Books, 1)
	assert.Equal(t, b.ID, page.Books[0].ID)
	assert.Contains(t, logs.String(), "shelfcache ready")
}

func TestNewSQLiteRistrettoWithMetrics(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Store = "sqlite"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "shelf.db")
	cfg.Cache = "ristretto"
	cfg.Codec = "msgpack"
	cfg.Log = "zap"
	cfg.MetricsAddr = ":0"

	a, err := New(ctx, cfg, WithLogOutput(&bytes.Buffer{}))
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close(ctx)) }()

	require.NotNil(t, a.Cache)
	require.NotNil(t, a.Registry)

	b, err := a.Books.Create(ctx, model.BookInput{Title: "Dune", Author: "Herbert"})
	require.NoError(t, err)
	got, ok, err := a.Books.FindByID(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Dune", got.Title)

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewBigcacheLogrus(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Cache = "bigcache"
	cfg.Log = "logrus"
	cfg.LogLevel = "debug"

	var logs bytes.Buffer
	a, err := New(ctx, cfg, WithLogOutput(&logs))
	require.NoError(t, err)
	_, err = a.Libraries.Create(ctx, model.LibraryInput{Name: "central"})
	require.NoError(t, err)
	require.NoError(t, a.Close(ctx))
	assert.Contains(t, logs.String(), `"component":"shelfcache"`)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Codec = "xml"
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestCloseRunsInReverse(t *testing.T) {
	var order []int
	a := &App{}
	for i := range 3 {
		a.onClose(func(context.Context) error {
			order = append(order, i)
			if i == 1 {
				return errors.New("closer 1")
			}
			return nil
		})
	}
	err := a.Close(context.Background())
	assert.EqualError(t, err, "closer 1")
	assert.Equal(t, []int{2, 1, 0}, order)
	assert.NoError(t, a.Close(context.Background()))
}
