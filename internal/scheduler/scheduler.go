// Package scheduler runs periodic API key maintenance inside the worker.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lumnicode/engine/pkg/logger"
)

const (
	JobUsageReset    = "usage-reset"
	JobKeyValidation = "key-validation"

	defaultJobTimeout = 10 * time.Minute
)

// KeyMaintenance is implemented by services.APIKeyService.
type KeyMaintenance interface {
	ResetMonthlyUsage(ctx context.Context) (int64, error)
	RevalidateActiveKeys(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron       *cron.Cron
	keys       KeyMaintenance
	jobTimeout time.Duration
	log        *zap.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(keys KeyMaintenance) *Scheduler {
	log := logger.Named("scheduler")
	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		keys:       keys,
		jobTimeout: defaultJobTimeout,
		log:        log,
		entries:    map[string]cron.EntryID{},
	}
}

// Register schedules both maintenance jobs. Specs use the standard five-field format.
func (s *Scheduler) Register(usageResetSpec, keyValidationSpec string) error {
	if err := s.add(JobUsageReset, usageResetSpec); err != nil {
		return err
	}
	return s.add(JobKeyValidation, keyValidationSpec)
}

func (s *Scheduler) add(name, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()
		if err := s.Run(ctx, name); err != nil {
			s.log.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s with spec %q: %w", name, spec, err)
	}
	s.entries[name] = id
	s.log.Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Run executes one job immediately.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	start := time.Now()
	switch name {
	case JobUsageReset:
		n, err := s.keys.ResetMonthlyUsage(ctx)
		if err != nil {
			return err
		}
		s.log.Info("monthly usage reset", zap.Int64("keys", n), zap.Duration("took", time.Since(start)))
	case JobKeyValidation:
		n, err := s.keys.RevalidateActiveKeys(ctx)
		if err != nil {
			return err
		}
		s.log.Info("active keys revalidated", zap.Int("keys", n), zap.Duration("took", time.Since(start)))
	default:
		return fmt.Errorf("unknown job %q", name)
	}
	return nil
}

// Next returns the next scheduled run of a registered job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	e := s.cron.Entry(id)
	return e.Next, e.Valid()
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
