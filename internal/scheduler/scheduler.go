// Package scheduler starts ingestion runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-ingest/internal/pipeline"
)

// DefaultSpec runs every six hours on the hour.
const DefaultSpec = "0 */6 * * *"

// Runner starts a run in the background.
type Runner interface {
	Trigger(limit int) error
}

// Config describes the schedule.
type Config struct {
	Spec     string
	Timezone string
	Limit    int
}

// Scheduler fires Runner.Trigger on each cron tick.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	limit   int
	runner  Runner
	logger  *zap.Logger
	entryID cron.EntryID
}

// Validate checks that spec is a standard five-field cron expression and tz a known zone.
func Validate(spec, tz string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	if _, err := loadLocation(tz); err != nil {
		return err
	}
	return nil
}

func loadLocation(tz string) (*time.Location, error) {
	if strings.TrimSpace(tz) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

// New registers the job. Call Start to begin firing.
func New(cfg Config, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if err := Validate(cfg.Spec, cfg.Timezone); err != nil {
		return nil, err
	}
	loc, _ := loadLocation(cfg.Timezone)
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		spec:   cfg.Spec,
		limit:  cfg.Limit,
		runner: runner,
		logger: logger,
	}
	id, err := s.cron.AddFunc(cfg.Spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("add cron job: %w", err)
	}
	s.entryID = id
	return s, nil
}

// Describe renders the schedule for status output.
func (s *Scheduler) Describe() string {
	return "Cron: " + s.spec
}

// Next returns the next fire time, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Start begins firing in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec), zap.Time("next", s.Next()))
}

// Stop halts the schedule and waits for a tick in progress to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

func (s *Scheduler) tick() {
	err := s.runner.Trigger(s.limit)
	switch {
	case errors.Is(err, pipeline.ErrAlreadyRunning):
		s.logger.Info("scheduled run skipped; previous run still active")
	case err != nil:
		s.logger.Error("scheduled run failed to start", zap.Error(err))
	default:
		s.logger.Info("scheduled run started", zap.Int("limit", s.limit))
	}
}
