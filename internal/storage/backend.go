package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/basekick-labs/welllog/internal/config"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned by Read and ReadTo when no object exists at path.
var ErrNotFound = errors.New("object not found")

// Backend stores uploaded LAS files and their Parquet archives (local, S3,
// MinIO, Azure Blob). Paths are slash separated and relative to the backend
// root.
type Backend interface {
	// Write writes data to the specified path, replacing any existing object
	Write(ctx context.Context, path string, data []byte) error

	// Read reads the whole object at path
	Read(ctx context.Context, path string) ([]byte, error)

	// ReadTo streams the object at path into writer
	ReadTo(ctx context.Context, path string, writer io.Writer) error

	// List lists all objects with the given prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete deletes the object at path. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error

	// Exists checks if an object exists at the specified path
	Exists(ctx context.Context, path string) (bool, error)

	// Close closes any resources held by the backend
	Close() error

	// Type returns the storage type identifier ("local", "s3", "azure")
	Type() string
}

// Object layout for one uploaded well.
const (
	rawPrefix     = "raw"
	archivePrefix = "archive"
	archiveName   = "curves.parquet"
)

// RawPath is where the uploaded file is kept.
func RawPath(wellID, filename string) string {
	return path.Join(rawPrefix, wellID, path.Base(strings.ReplaceAll(filename, "\\", "/")))
}

// ArchivePath is where the Parquet copy of the data table is kept.
func ArchivePath(wellID string) string {
	return path.Join(archivePrefix, wellID, archiveName)
}

// WellPrefixes lists every prefix holding objects for wellID.
func WellPrefixes(wellID string) []string {
	return []string{
		path.Join(rawPrefix, wellID) + "/",
		path.Join(archivePrefix, wellID) + "/",
	}
}

// ParseObjectPath splits a path built by RawPath or ArchivePath into its
// kind ("raw" or "archive") and well id.
func ParseObjectPath(p string) (kind, wellID string, ok bool) {
	parts := strings.SplitN(strings.TrimPrefix(p, "/"), "/", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	switch parts[0] {
	case rawPrefix, archivePrefix:
		return parts[0], parts[1], true
	}
	return "", "", false
}

// objectMetadata tags remote objects with the well they belong to.
func objectMetadata(p string) map[string]string {
	kind, wellID, ok := ParseObjectPath(p)
	if !ok {
		return nil
	}
	return map[string]string{"well_id": wellID, "kind": kind}
}

// contentType picks the stored MIME type from the object name.
func contentType(p string) string {
	switch {
	case strings.HasSuffix(p, ".parquet"):
		return "application/vnd.apache.parquet"
	case strings.HasSuffix(strings.ToLower(p), ".las"):
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

// DeleteWell removes every object stored for wellID and returns how many
// were deleted.
func DeleteWell(ctx context.Context, b Backend, wellID string) (int, error) {
	deleted := 0
	for _, prefix := range WellPrefixes(wellID) {
		paths, err := b.List(ctx, prefix)
		if err != nil {
			return deleted, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, p := range paths {
			if err := b.Delete(ctx, p); err != nil {
				return deleted, fmt.Errorf("delete %s: %w", p, err)
			}
			deleted++
		}
	}
	return deleted, nil
}

// New creates the backend selected by cfg.Backend. Remote backends are
// wrapped with retries and a circuit breaker; every backend reports to the
// storage metrics.
func New(cfg config.StorageConfig, logger zerolog.Logger) (Backend, error) {
	var (
		backend Backend
		err     error
	)

	switch cfg.Backend {
	case "local", "":
		backend, err = NewLocalBackend(cfg.LocalPath, logger)
	case "s3", "minio":
		var s3b *S3Backend
		s3b, err = NewS3Backend(&S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			PathStyle: cfg.S3PathStyle,
		}, logger)
		if err == nil {
			backend = NewResilientBackend(s3b, nil, logger)
		}
	case "azure", "azblob":
		var azb *AzureBlobBackend
		azb, err = NewAzureBlobBackend(&AzureBlobConfig{
			ConnectionString:   cfg.AzureConnectionString,
			AccountName:        cfg.AzureAccountName,
			AccountKey:         cfg.AzureAccountKey,
			SASToken:           cfg.AzureSASToken,
			ContainerName:      cfg.AzureContainer,
			Endpoint:           cfg.AzureEndpoint,
			UseManagedIdentity: cfg.AzureUseManagedIdentity,
		}, logger)
		if err == nil {
			backend = NewResilientBackend(azb, nil, logger)
		}
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s storage backend: %w", cfg.Backend, err)
	}

	return &meteredBackend{Backend: backend}, nil
}
