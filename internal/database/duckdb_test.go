package database

import (
	"context"
	"os"
	"testing"

	"github.com/basekick-labs/welllog/internal/archive"
	"github.com/basekick-labs/welllog/internal/config"
	"github.com/basekick-labs/welllog/internal/las"
	"github.com/basekick-labs/welllog/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statsLAS = `~Well
NULL. -999.25 : NULL VALUE
~Curve
DEPT.M : DEPTH
GR.GAPI : GAMMA RAY
RHOB.G/C3 : DENSITY
~A
100.0 50.0 -999.25
100.5 -999.25 -999.25
101.0 70.0 -999.25
101.5 60.0 -999.25
`

func TestEscapeSQLString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "no quotes", input: "./data/archive/a/curves.parquet", expected: "./data/archive/a/curves.parquet"},
		{name: "single quote", input: "o'brien.parquet", expected: "o''brien.parquet"},
		{name: "injection attempt", input: "x'); DROP TABLE t; --", expected: "x''); DROP TABLE t; --"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeSQLString(tt.input); got != tt.expected {
				t.Errorf("escapeSQLString(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"GR"`, quoteIdent("GR"))
	assert.Equal(t, `"A""B"`, quoteIdent(`A"B`))
}

func newTestDuckDB(t *testing.T) *DuckDB {
	t.Helper()
	db, err := New(config.DatabaseConfig{MemoryLimit: "256MB", ThreadCount: 1}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func writeArchive(t *testing.T, store storage.Backend, wellID string) {
	t.Helper()
	doc, err := las.Parse(statsLAS)
	require.NoError(t, err)

	data, err := archive.NewWriter(config.ArchiveConfig{Compression: "snappy"}, zerolog.Nop()).WriteParquet(doc)
	require.NoError(t, err)
	require.NoError(t, store.Write(context.Background(), storage.ArchivePath(wellID), data))
}

func assertStats(t *testing.T, stats *TableStats) {
	t.Helper()
	assert.Equal(t, int64(4), stats.Rows)
	require.Len(t, stats.Curves, 3)

	dept := stats.Curves[0]
	assert.Equal(t, "DEPT", dept.Column)
	assert.Equal(t, int64(4), dept.Count)
	require.NotNil(t, dept.Min)
	assert.Equal(t, 100.0, *dept.Min)
	assert.Equal(t, 101.5, *dept.Max)

	gr := stats.Curves[1]
	assert.Equal(t, int64(3), gr.Count)
	assert.Equal(t, int64(1), gr.Nulls)
	require.NotNil(t, gr.Avg)
	assert.InDelta(t, 60.0, *gr.Avg, 1e-9)

	rhob := stats.Curves[2]
	assert.Equal(t, int64(0), rhob.Count)
	assert.Equal(t, int64(4), rhob.Nulls)
	assert.Nil(t, rhob.Min)
	assert.Nil(t, rhob.Avg)
}

func TestDuckDB_Ping(t *testing.T) {
	db := newTestDuckDB(t)
	require.NoError(t, db.Ping(context.Background()))
}

func TestParquetStats(t *testing.T) {
	db := newTestDuckDB(t)
	store, err := storage.NewLocalBackend(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	writeArchive(t, store, "w1")

	path, ok := storage.LocalFilePath(store, storage.ArchivePath("w1"))
	require.True(t, ok)

	stats, err := db.ParquetStats(context.Background(), path)
	require.NoError(t, err)
	assertStats(t, stats)
}

// remoteBackend hides the local backend so the service downloads archives.
type remoteBackend struct {
	storage.Backend
}

func TestStatsService_WellStats(t *testing.T) {
	db := newTestDuckDB(t)
	local, err := storage.NewLocalBackend(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	writeArchive(t, local, "w1")

	t.Run("local", func(t *testing.T) {
		cache := NewStatsCache(0, 0)
		svc := NewStatsService(db, local, "", cache, zerolog.Nop())

		stats, err := svc.WellStats(context.Background(), "w1")
		require.NoError(t, err)
		assertStats(t, stats)
		assert.Equal(t, 1, cache.Size())

		svc.Invalidate("w1")
		assert.Equal(t, 0, cache.Size())
	})

	t.Run("downloaded", func(t *testing.T) {
		scratch := t.TempDir()
		svc := NewStatsService(db, remoteBackend{local}, scratch, nil, zerolog.Nop())

		stats, err := svc.WellStats(context.Background(), "w1")
		require.NoError(t, err)
		assertStats(t, stats)

		left, err := os.ReadDir(scratch)
		require.NoError(t, err)
		assert.Empty(t, left, "scratch file should be removed")
	})

	t.Run("missing archive", func(t *testing.T) {
		svc := NewStatsService(db, local, t.TempDir(), nil, zerolog.Nop())
		_, err := svc.WellStats(context.Background(), "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}
