package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// errTooLarge is returned when a payload exceeds its size ceiling.
var errTooLarge = errors.New("payload too large")

// klauspost gzip.Reader carries ~32KB of state that Reset reuses.
var gzipReaderPool = sync.Pool{}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// compressionSuffixes are stripped from uploaded file names before the
// extension check.
var compressionSuffixes = []string{".gz", ".gzip", ".zst", ".zstd"}

// compression names the codec detected from the payload's magic bytes, or
// "" for plain data.
func compression(data []byte) string {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		return "gzip"
	case bytes.HasPrefix(data, zstdMagic):
		return "zstd"
	default:
		return ""
	}
}

// decompress returns data unchanged unless it starts with a gzip or zstd
// header, in which case it is decoded. The decoded size may not exceed
// maxSize bytes.
func decompress(data []byte, maxSize int64) ([]byte, error) {
	var (
		reader io.Reader
		closer func()
	)

	switch compression(data) {
	case "gzip":
		var gz *gzip.Reader
		var err error
		if pooled := gzipReaderPool.Get(); pooled != nil {
			gz = pooled.(*gzip.Reader)
			err = gz.Reset(bytes.NewReader(data))
		} else {
			gz, err = gzip.NewReader(bytes.NewReader(data))
		}
		if err != nil {
			if gz != nil {
				gzipReaderPool.Put(gz)
			}
			return nil, fmt.Errorf("invalid gzip data: %w", err)
		}
		reader = gz
		closer = func() { gzipReaderPool.Put(gz) }
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("invalid zstd data: %w", err)
		}
		reader = zr
		closer = zr.Close
	default:
		return data, nil
	}
	defer closer()

	out, err := io.ReadAll(io.LimitReader(reader, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	if int64(len(out)) > maxSize {
		return nil, errTooLarge
	}
	return out, nil
}

// stripCompressionSuffix removes a trailing .gz or .zst from name.
func stripCompressionSuffix(name string) string {
	lower := strings.ToLower(name)
	for _, suffix := range compressionSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return name[:len(name)-len(suffix)]
		}
	}
	return name
}

// hasAllowedExtension reports whether name, after removing a compression
// suffix, ends with one of the allowed extensions (case-insensitive).
func hasAllowedExtension(name string, allowed []string) bool {
	lower := strings.ToLower(stripCompressionSuffix(name))
	for _, ext := range allowed {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
