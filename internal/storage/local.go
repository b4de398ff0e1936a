package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

const (
	localDirMode  = 0o700
	localFileMode = 0o600
	tempPattern   = ".welllog-*.tmp"
)

// LocalBackend keeps well objects as plain files below basePath, mirroring
// the raw/<id>/ and archive/<id>/ layout on disk.
type LocalBackend struct {
	basePath string
	logger   zerolog.Logger
}

// NewLocalBackend creates basePath if needed and returns a backend rooted at
// its absolute form.
func NewLocalBackend(basePath string, logger zerolog.Logger) (*LocalBackend, error) {
	root, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	if err := os.MkdirAll(root, localDirMode); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	return &LocalBackend{
		basePath: root,
		logger:   logger.With().Str("component", "local-storage").Logger(),
	}, nil
}

// Write replaces the object at path. Readers never observe a partial file.
func (b *LocalBackend) Write(ctx context.Context, path string, data []byte) error {
	target, err := b.resolve(path)
	if err != nil {
		return err
	}
	if err := writeAtomic(target, data); err != nil {
		return err
	}

	b.logger.Debug().Str("object", path).Int("bytes", len(data)).Msg("Stored object")
	return nil
}

func writeAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, localDirMode); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(localFileMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move object into place: %w", err)
	}
	return nil
}

func (b *LocalBackend) Read(ctx context.Context, path string) ([]byte, error) {
	target, err := b.resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func (b *LocalBackend) ReadTo(ctx context.Context, path string, writer io.Writer) error {
	target, err := b.resolve(path)
	if err != nil {
		return err
	}

	f, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(writer, f); err != nil {
		return fmt.Errorf("failed to copy %s: %w", path, err)
	}
	return nil
}

// List returns the objects below prefix in lexical order. Dot files,
// including in-flight temp files, are skipped. A missing prefix yields an
// empty list.
func (b *LocalBackend) List(ctx context.Context, prefix string) ([]string, error) {
	start, err := b.resolve(prefix)
	if err != nil {
		return nil, err
	}

	objects := []string{}
	walkErr := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil
		case err != nil:
			return err
		case d.IsDir(), strings.HasPrefix(d.Name(), "."):
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, err := filepath.Rel(b.basePath, p)
		if err != nil {
			return err
		}
		objects = append(objects, filepath.ToSlash(rel))
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, walkErr)
	}

	sort.Strings(objects)
	return objects, nil
}

// Delete removes the object and prunes directories it leaves empty, so a
// purged well leaves no raw/<id> or archive/<id> directory behind.
func (b *LocalBackend) Delete(ctx context.Context, path string) error {
	target, err := b.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	b.pruneEmptyDirs(filepath.Dir(target))

	b.logger.Debug().Str("object", path).Msg("Deleted object")
	return nil
}

func (b *LocalBackend) pruneEmptyDirs(dir string) {
	for dir != b.basePath && strings.HasPrefix(dir, b.basePath+string(filepath.Separator)) {
		// Remove refuses non-empty directories.
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (b *LocalBackend) Exists(ctx context.Context, path string) (bool, error) {
	target, err := b.resolve(path)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(target)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
}

func (b *LocalBackend) Close() error { return nil }

// GetFullPath returns the file backing path, or "" when path would land
// outside the base directory.
func (b *LocalBackend) GetFullPath(path string) string {
	target, err := b.resolve(path)
	if err != nil {
		return ""
	}
	return target
}

func (b *LocalBackend) GetBasePath() string { return b.basePath }

func (b *LocalBackend) Type() string { return "local" }

// LocalFilePath returns the file backing an object when backend is, or
// wraps, a LocalBackend. DuckDB reads archives in place through it.
func LocalFilePath(backend Backend, path string) (string, bool) {
	for {
		switch b := backend.(type) {
		case *LocalBackend:
			target := b.GetFullPath(path)
			return target, target != ""
		case interface{ Unwrap() Backend }:
			backend = b.Unwrap()
		default:
			return "", false
		}
	}
}

// sanitizePath drops leading slashes, ".." sequences and NUL bytes from an
// object path.
func sanitizePath(path string) string {
	path = strings.TrimLeft(path, "/")
	path = strings.ReplaceAll(path, "..", "_")
	return strings.ReplaceAll(path, "\x00", "")
}

// resolve maps an object path onto the filesystem and rejects anything that
// escapes basePath.
func (b *LocalBackend) resolve(path string) (string, error) {
	target, err := filepath.Abs(filepath.Join(b.basePath, sanitizePath(path)))
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	rel, err := filepath.Rel(b.basePath, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path %q: escapes base directory", path)
	}
	return target, nil
}
