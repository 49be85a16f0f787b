// Package pipeline runs ingestion: aggregate feeds, sample candidates, then drive each one
// through the duplicate guard, fetch, extract and save steps.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-ingest/internal/archive"
	"github.com/JakeFAU/recipe-ingest/internal/feed"
	"github.com/JakeFAU/recipe-ingest/internal/metrics"
	"github.com/JakeFAU/recipe-ingest/internal/publisher"
)

const (
	// DefaultLimit is the number of candidates sampled per run.
	DefaultLimit = 8
	// DefaultPacing is the pause after each saved recipe.
	DefaultPacing = 1500 * time.Millisecond
	// EventRunCompleted names the event published after every run.
	EventRunCompleted = "run.completed"

	publishTimeout = 10 * time.Second
)

// ErrAlreadyRunning is returned when a run is requested while another is active.
var ErrAlreadyRunning = errors.New("run already in progress")

// Config tunes the orchestrator.
type Config struct {
	DefaultLimit  int
	Pacing        time.Duration
	ArchivePrefix string
}

// Deps are the collaborators of a run. Archive and Publisher may be nil.
type Deps struct {
	Feeds     FeedSource
	Guard     DuplicateGuard
	Fetcher   PageFetcher
	Extractor RecipeExtractor
	Saver     RecipeSaver
	Archive   archive.Archive
	Publisher publisher.Publisher
	Clock     Clock
	IDs       IDGenerator
}

// RunCompleted is the payload of EventRunCompleted.
type RunCompleted struct {
	RunID      string    `json:"run_id"`
	Stats      RunStats  `json:"stats"`
	FinishedAt time.Time `json:"finished_at"`
}

// Orchestrator owns the run state and executes at most one run at a time.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	state  State

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New validates deps and builds an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Feeds == nil:
		return nil, fmt.Errorf("feed source is required")
	case deps.Guard == nil:
		return nil, fmt.Errorf("duplicate guard is required")
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("page fetcher is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("recipe extractor is required")
	case deps.Saver == nil:
		return nil, fmt.Errorf("recipe saver is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.Pacing < 0 {
		cfg.Pacing = 0
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "pages"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:    deps,
		cfg:     cfg,
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}, nil
}

// DefaultLimit returns the limit used when a caller passes a non-positive one.
func (o *Orchestrator) DefaultLimit() int {
	return o.cfg.DefaultLimit
}

// Snapshot returns a copy of the current run state.
func (o *Orchestrator) Snapshot() RunState {
	return o.state.Snapshot()
}

// SetNextRun records how the next run will be scheduled.
func (o *Orchestrator) SetNextRun(next string) {
	o.state.SetNextRun(next)
}

// Run executes one run synchronously. It returns ErrAlreadyRunning without doing any work
// if another run is active.
func (o *Orchestrator) Run(ctx context.Context, limit int) (RunStats, error) {
	if !o.state.TryStart() {
		metrics.ObserveRun("skipped", 0)
		return RunStats{}, ErrAlreadyRunning
	}
	return o.execute(ctx, o.limitOrDefault(limit)), nil
}

// Trigger reserves the run slot and starts the run in the background. The run is bound to
// the orchestrator's lifetime, not the caller's.
func (o *Orchestrator) Trigger(limit int) error {
	if !o.state.TryStart() {
		metrics.ObserveRun("skipped", 0)
		return ErrAlreadyRunning
	}
	limit = o.limitOrDefault(limit)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.execute(o.baseCtx, limit)
	}()
	return nil
}

// Shutdown cancels any background run and waits for it to record its result.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for run: %w", ctx.Err())
	}
}

func (o *Orchestrator) limitOrDefault(limit int) int {
	if limit <= 0 {
		return o.cfg.DefaultLimit
	}
	return limit
}

// execute assumes the run slot is held and always releases it.
func (o *Orchestrator) execute(ctx context.Context, limit int) (stats RunStats) {
	start := o.deps.Clock.Now()
	runID := o.newRunID(start)
	stats = RunStats{RunID: runID, Limit: limit}
	logger := o.logger.With(zap.String("run_id", runID))
	outcome := "completed"

	metrics.SetRunInProgress(true)
	logger.Info("run started", zap.Int("limit", limit))

	defer func() {
		if r := recover(); r != nil {
			stats.Errors++
			outcome = "panicked"
			logger.Error("run panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
		finished := o.deps.Clock.Now()
		elapsed := finished.Sub(start)
		stats.Duration = math.Round(elapsed.Seconds())
		o.state.Finish(stats, finished)

		metrics.SetRunInProgress(false)
		metrics.ObserveRun(outcome, elapsed)
		logger.Info("run finished",
			zap.String("outcome", outcome),
			zap.Int("extracted", stats.Extracted),
			zap.Int("duplicates", stats.Duplicates),
			zap.Int("errors", stats.Errors),
			zap.Float64("duration_s", stats.Duration))
		o.publish(ctx, logger, stats, finished)
	}()

	o.process(ctx, logger, limit, &stats)
	return stats
}

func (o *Orchestrator) process(ctx context.Context, logger *zap.Logger, limit int, stats *RunStats) {
	candidates := o.deps.Feeds.Fetch(ctx)
	if len(candidates) == 0 {
		logger.Info("no candidates found")
		return
	}
	selected := Shuffle(candidates)
	if len(selected) > limit {
		selected = selected[:limit]
	}
	stats.Candidates = len(selected)
	logger.Info("candidates selected",
		zap.Int("available", len(candidates)),
		zap.Int("selected", len(selected)))

	for i, c := range selected {
		if err := ctx.Err(); err != nil {
			logger.Warn("run cancelled", zap.Int("remaining", len(selected)-i), zap.Error(err))
			return
		}
		saved := o.processCandidate(ctx, logger, i+1, c, stats)
		if saved && i < len(selected)-1 {
			if err := o.deps.Clock.Sleep(ctx, o.cfg.Pacing); err != nil {
				logger.Warn("run cancelled during pacing", zap.Error(err))
				return
			}
		}
	}
}

// processCandidate reports whether a recipe was saved.
func (o *Orchestrator) processCandidate(
	ctx context.Context,
	logger *zap.Logger,
	position int,
	c feed.Candidate,
	stats *RunStats,
) bool {
	log := logger.With(zap.String("url", c.URL), zap.String("source", c.Source))

	if o.deps.Guard.IsDuplicate(ctx, c.URL) {
		stats.Duplicates++
		metrics.ObserveCandidate("duplicate")
		log.Debug("skipping duplicate")
		return false
	}

	html, err := o.deps.Fetcher.Fetch(ctx, c.URL)
	if err != nil {
		stats.Errors++
		metrics.ObserveCandidate("fetch_error")
		log.Warn("fetch failed", zap.Error(err))
		return false
	}
	o.archivePage(ctx, log, stats.RunID, position, c.URL, html)

	rec, err := o.deps.Extractor.Extract(html, c.URL)
	if err != nil {
		stats.Errors++
		metrics.ObserveCandidate("extract_error")
		log.Warn("extraction rejected", zap.Error(err))
		return false
	}

	id, err := o.deps.Saver.Save(ctx, *rec)
	if err != nil {
		stats.Errors++
		metrics.ObserveCandidate("save_error")
		log.Error("save failed", zap.Error(err))
		return false
	}
	stats.Extracted++
	metrics.ObserveCandidate("extracted")
	log.Info("recipe saved", zap.String("id", id), zap.String("focus_keyword", rec.FocusKeyword))
	return true
}

func (o *Orchestrator) archivePage(ctx context.Context, logger *zap.Logger, runID string, position int, url, html string) {
	if o.deps.Archive == nil {
		return
	}
	objectPath := archive.ObjectPath(o.cfg.ArchivePrefix, runID, position, url)
	uri, err := o.deps.Archive.PutObject(ctx, objectPath, archive.ContentTypeHTML, bytes.NewBufferString(html))
	if err != nil {
		logger.Warn("archive page failed", zap.String("path", objectPath), zap.Error(err))
		return
	}
	logger.Debug("page archived", zap.String("uri", uri))
}

func (o *Orchestrator) publish(ctx context.Context, logger *zap.Logger, stats RunStats, finished time.Time) {
	if o.deps.Publisher == nil {
		return
	}
	// The run may have ended because ctx was cancelled; the event still goes out.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	id, err := o.deps.Publisher.Publish(pubCtx, publisher.Event{
		Name:       EventRunCompleted,
		Attributes: map[string]string{"run_id": stats.RunID},
		Payload:    RunCompleted{RunID: stats.RunID, Stats: stats, FinishedAt: finished},
	})
	if err != nil {
		logger.Warn("publish run event failed", zap.Error(err))
		return
	}
	logger.Debug("run event published", zap.String("message_id", id))
}

func (o *Orchestrator) newRunID(at time.Time) string {
	id, err := o.deps.IDs.NewID()
	if err != nil {
		o.logger.Warn("run id generation failed", zap.Error(err))
		return fmt.Sprintf("run-%d", at.UnixNano())
	}
	return id
}
