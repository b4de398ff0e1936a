package retention

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/basekick-labs/welllog/internal/catalog"
	"github.com/basekick-labs/welllog/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	catalog *catalog.Catalog
	store   storage.Backend
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	cat, err := catalog.New(filepath.Join(dir, "welllog.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	store, err := storage.NewLocalBackend(filepath.Join(dir, "objects"), zerolog.Nop())
	require.NoError(t, err)

	return &fixture{catalog: cat, store: store}
}

func (f *fixture) addWell(t *testing.T, name string, age time.Duration) string {
	t.Helper()
	ctx := context.Background()
	w := &catalog.Well{
		FileName:  name,
		RawPath:   "",
		CreatedAt: time.Now().Add(-age).UTC(),
	}
	w.ID = catalog.NewID()
	w.RawPath = storage.RawPath(w.ID, name)
	require.NoError(t, f.store.Write(ctx, w.RawPath, []byte("~A\n")))
	require.NoError(t, f.store.Write(ctx, storage.ArchivePath(w.ID), []byte("PAR1")))
	require.NoError(t, f.catalog.Insert(ctx, w))
	return w.ID
}

func TestNew_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := New(&Config{Storage: f.store, MaxAge: time.Hour})
	assert.Error(t, err, "catalog required")

	var disabled *catalog.Catalog
	_, err = New(&Config{Catalog: disabled, Storage: f.store, MaxAge: time.Hour})
	assert.Error(t, err, "nil catalog pointer")

	_, err = New(&Config{Catalog: f.catalog, Storage: f.store})
	assert.Error(t, err, "max age required")

	_, err = New(&Config{Catalog: f.catalog, Storage: f.store, MaxAge: time.Hour, Schedule: "not a cron"})
	assert.Error(t, err)

	s, err := New(&Config{Catalog: f.catalog, Storage: f.store, MaxAge: time.Hour, Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.Equal(t, "0 3 * * *", s.schedule)
	assert.Equal(t, 1, s.maxConcurrent)
}

func TestRunOnce_PurgesExpiredWells(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old1 := f.addWell(t, "old1.las", 48*time.Hour)
	old2 := f.addWell(t, "old2.las", 72*time.Hour)
	fresh := f.addWell(t, "fresh.las", time.Minute)

	var mu sync.Mutex
	var purged []string
	s, err := New(&Config{
		Catalog:       f.catalog,
		Storage:       f.store,
		MaxAge:        24 * time.Hour,
		MaxConcurrent: 2,
		OnPurge: func(id string) {
			mu.Lock()
			purged = append(purged, id)
			mu.Unlock()
		},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	result, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Candidates)
	assert.Equal(t, 2, result.WellsPurged)
	assert.Equal(t, 4, result.ObjectsDeleted)
	assert.Equal(t, 0, result.Errors)
	assert.ElementsMatch(t, []string{old1, old2}, purged)

	for _, id := range []string{old1, old2} {
		_, err := f.catalog.Get(ctx, id)
		assert.ErrorIs(t, err, catalog.ErrNotFound)
		exists, err := f.store.Exists(ctx, storage.ArchivePath(id))
		require.NoError(t, err)
		assert.False(t, exists)
	}

	_, err = f.catalog.Get(ctx, fresh)
	assert.NoError(t, err)
	exists, err := f.store.Exists(ctx, storage.ArchivePath(fresh))
	require.NoError(t, err)
	assert.True(t, exists)

	result, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Candidates)
}

type failingCatalog struct{}

func (failingCatalog) ListOlderThan(context.Context, time.Time) ([]catalog.Well, error) {
	return nil, errors.New("database is locked")
}

func (failingCatalog) Delete(context.Context, string) error { return nil }

func TestRunOnce_CatalogError(t *testing.T) {
	f := newFixture(t)
	s, err := New(&Config{Catalog: failingCatalog{}, Storage: f.store, MaxAge: time.Hour, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.ErrorContains(t, err, "database is locked")
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	s, err := New(&Config{Catalog: f.catalog, Storage: f.store, MaxAge: time.Hour, Schedule: "*/5 * * * *", Logger: zerolog.Nop()})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	require.NoError(t, s.Start())

	status := s.Status()
	assert.Equal(t, true, status["running"])
	assert.Equal(t, "*/5 * * * *", status["schedule"])
	assert.Contains(t, status, "next_run")

	require.NoError(t, s.Close())
	assert.False(t, s.IsRunning())
	s.Stop()
}
