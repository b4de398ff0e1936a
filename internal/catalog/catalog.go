package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/basekick-labs/welllog/internal/metrics"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no well has the requested id.
var ErrNotFound = errors.New("well not found")

// Well is one uploaded LAS file as recorded in the catalog.
type Well struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	WellName    string    `json:"well_name"`
	CurveCount  int       `json:"curve_count"`
	SampleCount int       `json:"sample_count"`
	Warnings    int       `json:"warnings"`
	SizeBytes   int64     `json:"size_bytes"`
	RawPath     string    `json:"raw_path"`
	ArchivePath string    `json:"archive_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Catalog stores well metadata in SQLite.
type Catalog struct {
	db     *sql.DB
	dbPath string
	logger zerolog.Logger
}

// New opens (and creates if needed) the catalog database at dbPath.
func New(dbPath string, logger zerolog.Logger) (*Catalog, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	c := &Catalog{
		db:     db,
		dbPath: dbPath,
		logger: logger.With().Str("component", "catalog").Logger(),
	}

	if err := c.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	count, err := c.Count(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	metrics.Get().SetCatalogWells(count)

	c.logger.Info().
		Str("db_path", dbPath).
		Int64("wells", count).
		Msg("Catalog initialized")

	return c, nil
}

func (c *Catalog) initDB() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS wells (
			id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			well_name TEXT,
			curve_count INTEGER NOT NULL,
			sample_count INTEGER NOT NULL,
			warnings INTEGER DEFAULT 0,
			size_bytes INTEGER NOT NULL,
			raw_path TEXT NOT NULL,
			archive_path TEXT,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create wells table: %w", err)
	}

	_, err = c.db.Exec(`CREATE INDEX IF NOT EXISTS idx_wells_created_at ON wells(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// NewID returns a fresh well id.
func NewID() string {
	return uuid.NewString()
}

// Insert records w. An empty ID is assigned with NewID and a zero CreatedAt
// is set to now.
func (c *Catalog) Insert(ctx context.Context, w *Well) error {
	if w.ID == "" {
		w.ID = NewID()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO wells (id, file_name, well_name, curve_count, sample_count, warnings, size_bytes, raw_path, archive_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.FileName, w.WellName, w.CurveCount, w.SampleCount, w.Warnings, w.SizeBytes, w.RawPath, w.ArchivePath, w.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert well %s: %w", w.ID, err)
	}

	c.refreshGauge(ctx)
	return nil
}

const selectColumns = `id, file_name, well_name, curve_count, sample_count, warnings, size_bytes, raw_path, archive_path, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanWell(s scanner) (Well, error) {
	var (
		w           Well
		wellName    sql.NullString
		archivePath sql.NullString
		createdAt   int64
	)
	if err := s.Scan(&w.ID, &w.FileName, &wellName, &w.CurveCount, &w.SampleCount, &w.Warnings,
		&w.SizeBytes, &w.RawPath, &archivePath, &createdAt); err != nil {
		return Well{}, err
	}
	w.WellName = wellName.String
	w.ArchivePath = archivePath.String
	w.CreatedAt = time.UnixMilli(createdAt).UTC()
	return w, nil
}

// Get returns the well with the given id.
func (c *Catalog) Get(ctx context.Context, id string) (*Well, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM wells WHERE id = ?`, id)
	w, err := scanWell(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get well %s: %w", id, err)
	}
	return &w, nil
}

// List returns wells newest first. A non-positive limit returns all rows.
func (c *Catalog) List(ctx context.Context, limit, offset int) ([]Well, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM wells ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list wells: %w", err)
	}
	return collect(rows)
}

// ListOlderThan returns wells created before cutoff, oldest first.
func (c *Catalog) ListOlderThan(ctx context.Context, cutoff time.Time) ([]Well, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM wells WHERE created_at < ? ORDER BY created_at`, cutoff.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to list expired wells: %w", err)
	}
	return collect(rows)
}

func collect(rows *sql.Rows) ([]Well, error) {
	defer rows.Close()

	wells := []Well{}
	for rows.Next() {
		w, err := scanWell(rows)
		if err != nil {
			return nil, err
		}
		wells = append(wells, w)
	}
	return wells, rows.Err()
}

// Delete removes the well with the given id.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM wells WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete well %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	c.refreshGauge(ctx)
	return nil
}

// Count returns the number of wells in the catalog.
func (c *Catalog) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wells`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count wells: %w", err)
	}
	return n, nil
}

func (c *Catalog) refreshGauge(ctx context.Context) {
	n, err := c.Count(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to refresh well count")
		return
	}
	metrics.Get().SetCatalogWells(n)
}

// Close closes the database.
// Ping checks that the catalog database is reachable.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Catalog) Close() error {
	return c.db.Close()
}
