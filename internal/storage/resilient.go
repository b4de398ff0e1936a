package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrCircuitOpen is returned while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("storage circuit breaker is open")

// ResilientConfig holds retry and circuit breaker settings.
type ResilientConfig struct {
	// Circuit breaker settings
	MaxFailures int           // consecutive failures before opening
	Timeout     time.Duration // time open before a trial call is let through

	// Retry settings
	MaxRetries    int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
}

// DefaultResilientConfig returns default resilient backend configuration
func DefaultResilientConfig() *ResilientConfig {
	return &ResilientConfig{
		MaxFailures:   5,
		Timeout:       30 * time.Second,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
		RetryMaxDelay: 5 * time.Second,
	}
}

// ResilientBackend wraps a remote backend with retries and a circuit
// breaker so a storage outage fails uploads fast instead of stalling them.
type ResilientBackend struct {
	backend Backend
	cfg     ResilientConfig
	logger  zerolog.Logger

	mu       sync.Mutex
	failures int
	openedAt time.Time // zero while closed
}

// NewResilientBackend creates a new resilient storage backend
func NewResilientBackend(backend Backend, cfg *ResilientConfig, logger zerolog.Logger) *ResilientBackend {
	if cfg == nil {
		cfg = DefaultResilientConfig()
	}
	return &ResilientBackend{
		backend: backend,
		cfg:     *cfg,
		logger:  logger.With().Str("component", "resilient-storage").Str("backend", backend.Type()).Logger(),
	}
}

// allow reports whether a call may proceed. Once Timeout has passed an open
// breaker lets calls through again; the next result decides its state.
func (r *ResilientBackend) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openedAt.IsZero() || time.Since(r.openedAt) > r.cfg.Timeout
}

func (r *ResilientBackend) record(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err == nil || errors.Is(err, ErrNotFound) {
		if !r.openedAt.IsZero() {
			r.logger.Info().Msg("Storage circuit breaker closed")
		}
		r.failures = 0
		r.openedAt = time.Time{}
		return
	}

	r.failures++
	if r.failures >= r.cfg.MaxFailures {
		if r.openedAt.IsZero() {
			r.logger.Warn().Int("failures", r.failures).Msg("Storage circuit breaker opened")
		}
		r.openedAt = time.Now()
	}
}

// IsCircuitOpen reports whether calls are currently being rejected.
func (r *ResilientBackend) IsCircuitOpen() bool {
	return !r.allow()
}

// do runs fn with retries and exponential backoff. ErrNotFound and context
// cancellation are returned immediately.
func (r *ResilientBackend) do(ctx context.Context, op, path string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if !r.allow() {
			r.logger.Warn().Str("op", op).Str("path", path).Msg("Storage call rejected - circuit breaker open")
			return ErrCircuitOpen
		}

		err := fn()
		r.record(err)
		if err == nil || errors.Is(err, ErrNotFound) {
			return err
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == r.cfg.MaxRetries {
			break
		}

		delay := min(r.cfg.RetryDelay*time.Duration(1<<uint(attempt)), r.cfg.RetryMaxDelay)
		r.logger.Warn().
			Err(err).
			Str("op", op).
			Str("path", path).
			Int("attempt", attempt+1).
			Dur("retry_delay", delay).
			Msg("Storage call failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("storage %s failed after %d retries: %w", op, r.cfg.MaxRetries, lastErr)
}

func (r *ResilientBackend) Write(ctx context.Context, path string, data []byte) error {
	return r.do(ctx, "write", path, func() error {
		return r.backend.Write(ctx, path, data)
	})
}

func (r *ResilientBackend) Read(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := r.do(ctx, "read", path, func() error {
		var err error
		data, err = r.backend.Read(ctx, path)
		return err
	})
	return data, err
}

// ReadTo is not retried: a partial copy may already have reached writer.
func (r *ResilientBackend) ReadTo(ctx context.Context, path string, writer io.Writer) error {
	if !r.allow() {
		return ErrCircuitOpen
	}
	err := r.backend.ReadTo(ctx, path, writer)
	r.record(err)
	return err
}

func (r *ResilientBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	err := r.do(ctx, "list", prefix, func() error {
		var err error
		paths, err = r.backend.List(ctx, prefix)
		return err
	})
	return paths, err
}

func (r *ResilientBackend) Delete(ctx context.Context, path string) error {
	return r.do(ctx, "delete", path, func() error {
		return r.backend.Delete(ctx, path)
	})
}

func (r *ResilientBackend) Exists(ctx context.Context, path string) (bool, error) {
	var ok bool
	err := r.do(ctx, "exists", path, func() error {
		var err error
		ok, err = r.backend.Exists(ctx, path)
		return err
	})
	return ok, err
}

func (r *ResilientBackend) Close() error {
	return r.backend.Close()
}

func (r *ResilientBackend) Type() string {
	return r.backend.Type()
}

// Unwrap returns the wrapped backend.
func (r *ResilientBackend) Unwrap() Backend {
	return r.backend
}
