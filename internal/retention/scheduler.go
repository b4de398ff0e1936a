package retention

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/basekick-labs/welllog/internal/catalog"
	"github.com/basekick-labs/welllog/internal/metrics"
	"github.com/basekick-labs/welllog/internal/storage"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Catalog is the subset of the well catalog the purger needs.
type Catalog interface {
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]catalog.Well, error)
	Delete(ctx context.Context, id string) error
}

// Scheduler purges wells older than MaxAge on a cron schedule.
type Scheduler struct {
	catalog       Catalog
	store         storage.Backend
	onPurge       func(wellID string)
	schedule      string
	maxAge        time.Duration
	maxConcurrent int
	cron          *cron.Cron
	running       bool
	mu            sync.Mutex
	logger        zerolog.Logger
}

// Config holds configuration for the retention scheduler.
type Config struct {
	Catalog       Catalog
	Storage       storage.Backend
	Schedule      string        // Cron schedule (e.g., "0 3 * * *")
	MaxAge        time.Duration // Wells created longer ago are purged
	MaxConcurrent int           // Wells purged in parallel
	OnPurge       func(wellID string)
	Logger        zerolog.Logger
}

// Result summarises one purge run.
type Result struct {
	Cutoff         time.Time     `json:"cutoff"`
	Candidates     int           `json:"candidates"`
	WellsPurged    int           `json:"wells_purged"`
	ObjectsDeleted int           `json:"objects_deleted"`
	Errors         int           `json:"errors"`
	Duration       time.Duration `json:"duration_ns"`
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// isNil also catches an interface holding a nil pointer, which is what a
// disabled *catalog.Catalog looks like once passed in.
func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Func:
		return rv.IsNil()
	}
	return false
}

// New validates cfg and creates a stopped scheduler.
func New(cfg *Config) (*Scheduler, error) {
	if isNil(cfg.Catalog) || isNil(cfg.Storage) {
		return nil, errors.New("retention requires a catalog and a storage backend")
	}
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("invalid retention max age: %s", cfg.MaxAge)
	}

	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	if _, err := cronParser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	s := &Scheduler{
		catalog:       cfg.Catalog,
		store:         cfg.Storage,
		onPurge:       cfg.OnPurge,
		schedule:      schedule,
		maxAge:        cfg.MaxAge,
		maxConcurrent: maxConcurrent,
		logger:        cfg.Logger.With().Str("component", "retention-scheduler").Logger(),
	}

	s.logger.Info().
		Str("schedule", schedule).
		Dur("max_age", cfg.MaxAge).
		Int("max_concurrent", maxConcurrent).
		Msg("Retention scheduler initialized")

	return s, nil
}

// Start starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn().Msg("Retention scheduler already running")
		return nil
	}

	s.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.Recover(cron.PrintfLogger(&s.logger))),
	)
	if _, err := s.cron.AddFunc(s.schedule, s.runScheduled); err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", s.schedule).
		Time("next_run", s.getNextRun()).
		Msg("Retention scheduler started")

	return nil
}

// Stop stops the cron loop and waits for a running purge to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}

	s.running = false
	s.logger.Info().Msg("Retention scheduler stopped")
}

// Close stops the scheduler.
func (s *Scheduler) Close() error {
	s.Stop()
	return nil
}

func (s *Scheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled retention failed")
	}
}

// RunOnce purges every well created before now minus MaxAge. Storage
// objects are removed before the catalog row, so a failed purge is retried
// on the next run.
func (s *Scheduler) RunOnce(ctx context.Context) (*Result, error) {
	start := time.Now()
	m := metrics.Get()
	m.IncRetentionRuns()

	result := &Result{Cutoff: start.Add(-s.maxAge).UTC()}

	wells, err := s.catalog.ListOlderThan(ctx, result.Cutoff)
	if err != nil {
		m.IncRetentionErrors()
		return nil, fmt.Errorf("list expired wells: %w", err)
	}
	result.Candidates = len(wells)

	if len(wells) == 0 {
		s.logger.Debug().Time("cutoff", result.Cutoff).Msg("No wells to purge")
		result.Duration = time.Since(start)
		return result, nil
	}

	sem := semaphore.NewWeighted(int64(s.maxConcurrent))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, well := range wells {
		if err := sem.Acquire(ctx, 1); err != nil {
			s.logger.Error().Err(err).Msg("Failed to acquire semaphore")
			break
		}

		wg.Add(1)
		go func(w catalog.Well) {
			defer wg.Done()
			defer sem.Release(1)

			deleted, err := s.purge(ctx, w.ID)

			mu.Lock()
			defer mu.Unlock()
			result.ObjectsDeleted += deleted
			if err != nil {
				s.logger.Error().
					Err(err).
					Str("well_id", w.ID).
					Str("file_name", w.FileName).
					Msg("Failed to purge well")
				result.Errors++
				m.IncRetentionErrors()
				return
			}
			result.WellsPurged++
		}(well)
	}

	wg.Wait()
	m.IncRetentionWellsPurged(int64(result.WellsPurged))
	result.Duration = time.Since(start)

	s.logger.Info().
		Time("cutoff", result.Cutoff).
		Int("candidates", result.Candidates).
		Int("wells_purged", result.WellsPurged).
		Int("objects_deleted", result.ObjectsDeleted).
		Int("errors", result.Errors).
		Dur("duration", result.Duration).
		Msg("Retention completed")

	return result, ctx.Err()
}

func (s *Scheduler) purge(ctx context.Context, wellID string) (int, error) {
	deleted, err := storage.DeleteWell(ctx, s.store, wellID)
	if err != nil {
		return deleted, err
	}
	if err := s.catalog.Delete(ctx, wellID); err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return deleted, err
	}
	if s.onPurge != nil {
		s.onPurge(wellID)
	}
	return deleted, nil
}

func (s *Scheduler) getNextRun() time.Time {
	schedule, err := cronParser.Parse(s.schedule)
	if err != nil {
		return time.Time{}
	}
	return schedule.Next(time.Now())
}

// Status reports whether the scheduler runs and when it fires next.
func (s *Scheduler) Status() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := map[string]interface{}{
		"running":        s.running,
		"schedule":       s.schedule,
		"max_age_hours":  s.maxAge.Hours(),
		"max_concurrent": s.maxConcurrent,
	}
	if s.running {
		status["next_run"] = s.getNextRun().Format(time.RFC3339)
	}
	return status
}

// IsRunning reports whether the cron loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
