package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/basekick-labs/welllog/internal/metrics"
	"github.com/basekick-labs/welllog/internal/storage"
	"github.com/rs/zerolog"
)

// CurveStats summarises one archived curve. Min, Max and Avg are nil when
// the curve holds only nulls.
type CurveStats struct {
	Column string   `json:"column"`
	Count  int64    `json:"count"`
	Nulls  int64    `json:"nulls"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	Avg    *float64 `json:"avg"`
}

// TableStats summarises an archived Parquet file.
type TableStats struct {
	Rows   int64        `json:"rows"`
	Curves []CurveStats `json:"curves"`
}

// ParquetStats computes per-column count, min, max and avg over a local
// Parquet file in a single scan.
func (d *DuckDB) ParquetStats(ctx context.Context, path string) (*TableStats, error) {
	source := fmt.Sprintf("read_parquet('%s')", escapeSQLString(path))

	columns, err := d.describe(ctx, source)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT count(*)")
	for _, col := range columns {
		q := quoteIdent(col)
		fmt.Fprintf(&b, ", count(%s), min(%s), max(%s), avg(%s)", q, q, q, q)
	}
	b.WriteString(" FROM ")
	b.WriteString(source)

	rows, err := d.QueryContext(ctx, b.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("stats query returned no rows")
	}

	stats := &TableStats{Curves: make([]CurveStats, len(columns))}
	counts := make([]int64, len(columns))
	mins := make([]sql.NullFloat64, len(columns))
	maxs := make([]sql.NullFloat64, len(columns))
	avgs := make([]sql.NullFloat64, len(columns))

	dest := make([]interface{}, 0, 1+4*len(columns))
	dest = append(dest, &stats.Rows)
	for i := range columns {
		dest = append(dest, &counts[i], &mins[i], &maxs[i], &avgs[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to scan stats: %w", err)
	}

	for i, col := range columns {
		stats.Curves[i] = CurveStats{
			Column: col,
			Count:  counts[i],
			Nulls:  stats.Rows - counts[i],
			Min:    nullable(mins[i]),
			Max:    nullable(maxs[i]),
			Avg:    nullable(avgs[i]),
		}
	}
	return stats, rows.Err()
}

// describe returns the column names of a relation in order.
func (d *DuckDB) describe(ctx context.Context, source string) ([]string, error) {
	rows, err := d.QueryContext(ctx, "DESCRIBE SELECT * FROM "+source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var names []string
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		dest := make([]interface{}, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan column description: %w", err)
		}
		names = append(names, values[0].String)
	}
	return names, rows.Err()
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// StatsService computes curve statistics for archived wells, downloading the
// archive to a scratch file when storage is not local.
type StatsService struct {
	db      *DuckDB
	store   storage.Backend
	tempDir string
	cache   *StatsCache
	logger  zerolog.Logger
}

// NewStatsService creates a stats service. cache may be nil.
func NewStatsService(db *DuckDB, store storage.Backend, tempDir string, cache *StatsCache, logger zerolog.Logger) *StatsService {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &StatsService{
		db:      db,
		store:   store,
		tempDir: tempDir,
		cache:   cache,
		logger:  logger.With().Str("component", "stats").Logger(),
	}
}

// WellStats returns statistics for the archive of wellID. It returns an
// error wrapping storage.ErrNotFound when the well has no archive.
func (s *StatsService) WellStats(ctx context.Context, wellID string) (*TableStats, error) {
	if s.cache != nil {
		if stats, ok := s.cache.Get(wellID); ok {
			return stats, nil
		}
	}

	m := metrics.Get()
	m.IncStatsQueries()
	start := time.Now()

	stats, err := s.compute(ctx, wellID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.IncStatsQueryErrors()
		}
		return nil, err
	}

	s.logger.Debug().
		Str("well_id", wellID).
		Int64("rows", stats.Rows).
		Int("curves", len(stats.Curves)).
		Dur("elapsed", time.Since(start)).
		Msg("Computed curve statistics")

	if s.cache != nil {
		s.cache.Set(wellID, stats)
	}
	return stats, nil
}

func (s *StatsService) compute(ctx context.Context, wellID string) (*TableStats, error) {
	objectPath := storage.ArchivePath(wellID)

	exists, err := s.store.Exists(ctx, objectPath)
	if err != nil {
		return nil, fmt.Errorf("check archive for %s: %w", wellID, err)
	}
	if !exists {
		return nil, fmt.Errorf("archive for %s: %w", wellID, storage.ErrNotFound)
	}

	if local, ok := storage.LocalFilePath(s.store, objectPath); ok {
		return s.db.ParquetStats(ctx, local)
	}

	tmp, err := os.CreateTemp(s.tempDir, "welllog-*.parquet")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := s.store.ReadTo(ctx, objectPath, tmp); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("download archive for %s: %w", wellID, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush scratch file: %w", err)
	}

	return s.db.ParquetStats(ctx, tmp.Name())
}

// Invalidate drops cached statistics for wellID.
func (s *StatsService) Invalidate(wellID string) {
	if s.cache != nil {
		s.cache.Invalidate(wellID)
	}
}
