package storage

import (
	"context"
	"errors"
	"io"

	"github.com/basekick-labs/welllog/internal/metrics"
)

// meteredBackend counts operations and bytes in the process metrics.
type meteredBackend struct {
	Backend
}

func (m *meteredBackend) Write(ctx context.Context, path string, data []byte) error {
	err := m.Backend.Write(ctx, path, data)
	mt := metrics.Get()
	if err != nil {
		mt.IncStorageErrors()
		return err
	}
	mt.IncStorageWrites()
	mt.IncStorageWriteBytes(int64(len(data)))
	return nil
}

func (m *meteredBackend) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := m.Backend.Read(ctx, path)
	mt := metrics.Get()
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			mt.IncStorageErrors()
		}
		return nil, err
	}
	mt.IncStorageReads()
	mt.IncStorageReadBytes(int64(len(data)))
	return data, nil
}

func (m *meteredBackend) ReadTo(ctx context.Context, path string, writer io.Writer) error {
	cw := &countingWriter{w: writer}
	err := m.Backend.ReadTo(ctx, path, cw)
	mt := metrics.Get()
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			mt.IncStorageErrors()
		}
		return err
	}
	mt.IncStorageReads()
	mt.IncStorageReadBytes(cw.n)
	return nil
}

func (m *meteredBackend) Delete(ctx context.Context, path string) error {
	if err := m.Backend.Delete(ctx, path); err != nil {
		metrics.Get().IncStorageErrors()
		return err
	}
	metrics.Get().IncStorageDeletes()
	return nil
}

// Unwrap returns the backend being metered.
func (m *meteredBackend) Unwrap() Backend {
	return m.Backend
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
