// Package server provides dependency wiring and the application lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-ingest/internal/api"
	"github.com/JakeFAU/recipe-ingest/internal/archive"
	gcsarchive "github.com/JakeFAU/recipe-ingest/internal/archive/gcs"
	localarchive "github.com/JakeFAU/recipe-ingest/internal/archive/local"
	memoryarchive "github.com/JakeFAU/recipe-ingest/internal/archive/memory"
	"github.com/JakeFAU/recipe-ingest/internal/clock/system"
	"github.com/JakeFAU/recipe-ingest/internal/config"
	"github.com/JakeFAU/recipe-ingest/internal/feed"
	"github.com/JakeFAU/recipe-ingest/internal/id/uuid"
	"github.com/JakeFAU/recipe-ingest/internal/keyword"
	"github.com/JakeFAU/recipe-ingest/internal/metrics"
	"github.com/JakeFAU/recipe-ingest/internal/pipeline"
	"github.com/JakeFAU/recipe-ingest/internal/publisher"
	memorypublisher "github.com/JakeFAU/recipe-ingest/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/recipe-ingest/internal/publisher/pubsub"
	"github.com/JakeFAU/recipe-ingest/internal/recipe"
	"github.com/JakeFAU/recipe-ingest/internal/renderer"
	"github.com/JakeFAU/recipe-ingest/internal/renderer/browserless"
	"github.com/JakeFAU/recipe-ingest/internal/renderer/headless"
	"github.com/JakeFAU/recipe-ingest/internal/scheduler"
	"github.com/JakeFAU/recipe-ingest/internal/store"
	"github.com/JakeFAU/recipe-ingest/internal/store/baserow"
	memorystore "github.com/JakeFAU/recipe-ingest/internal/store/memory"
	pgstore "github.com/JakeFAU/recipe-ingest/internal/store/postgres"
)

// SchedulerDisabled is reported as the next run when no cron trigger is configured.
const SchedulerDisabled = "Scheduler disabled"

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	Orchestrator *pipeline.Orchestrator
	Fetcher      *renderer.Fetcher
	Store        store.Store

	apiServer    *api.Server
	scheduler    *scheduler.Scheduler
	headless     *headless.Renderer
	pgStore      *pgstore.Store
	pubsubClient *pubsub.Client
	gcpPublisher *gcppublisher.Publisher
	storage      *storage.Client
}

// Build creates the application's dependencies from cfg.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeInfrastructure()
		}
	}()

	logger.Info("building application dependencies",
		zap.String("renderer", cfg.Renderer.Provider),
		zap.String("store", cfg.Store.Provider),
		zap.String("archive", cfg.Archive.Provider),
		zap.String("publisher", cfg.Publisher.Provider),
	)

	if err = app.setupRenderer(); err != nil {
		return nil, err
	}
	if err = app.setupStore(ctx); err != nil {
		return nil, err
	}
	blobs, err := app.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	events, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	feeds := feed.New(cfg.Feeds.Sources, feed.Config{
		UserAgent: cfg.Feeds.UserAgent,
		MaxItems:  cfg.Feeds.MaxItemsPerFeed,
		Timeout:   cfg.Feeds.Timeout,
	}, logger.Named("feed"))
	extractor := recipe.NewExtractor(keyword.New(cfg.Keyword.StopWords), cfg.Pipeline.MinRecipeLength)
	clock := system.New()
	ids := uuid.New()

	app.Orchestrator, err = pipeline.New(pipeline.Deps{
		Feeds:     feeds,
		Guard:     store.NewGuard(app.Store, logger.Named("guard")),
		Fetcher:   app.Fetcher,
		Extractor: extractor,
		Saver:     app.Store,
		Archive:   blobs,
		Publisher: events,
		Clock:     clock,
		IDs:       ids,
	}, pipeline.Config{
		DefaultLimit:  cfg.Pipeline.DefaultLimit,
		Pacing:        cfg.Pipeline.Pacing,
		ArchivePrefix: cfg.Archive.Prefix,
	}, logger.Named("pipeline"))
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}

	app.Orchestrator.SetNextRun(SchedulerDisabled)
	if cfg.Scheduler.Enabled {
		app.scheduler, err = scheduler.New(scheduler.Config{
			Spec:     cfg.Scheduler.Cron,
			Timezone: cfg.Scheduler.Timezone,
			Limit:    cfg.Pipeline.DefaultLimit,
		}, app.Orchestrator, logger.Named("scheduler"))
		if err != nil {
			return nil, fmt.Errorf("scheduler init failed: %w", err)
		}
		app.Orchestrator.SetNextRun(app.scheduler.Describe())
	}

	app.apiServer = api.NewServer(api.Deps{
		Runner:    app.Orchestrator,
		Renderer:  app.Fetcher,
		Store:     app.Store,
		Counter:   app.Store,
		Clock:     clock,
		RequestID: ids.NewRequestID,
	}, api.Options{
		AuthEnabled:    cfg.Auth.Enabled,
		APIKey:         cfg.Auth.APIKey,
		RequestTimeout: cfg.Server.RequestTimeout,
		CronSchedule:   cfg.Scheduler.Cron,
	}, logger.Named("api"))

	return app, nil
}

// Handler exposes the HTTP control surface.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and the cron trigger until ctx is canceled, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	if a.scheduler != nil {
		a.scheduler.Start()
		a.logger.Info("scheduler started", zap.String("schedule", a.scheduler.Describe()))
	}

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close stops the scheduler, waits for an active run, and releases clients.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	if a.Orchestrator != nil {
		if err := a.Orchestrator.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop orchestrator: %w", err))
		}
	}
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure() {
	if a.gcpPublisher != nil {
		a.gcpPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	if a.headless != nil {
		a.headless.Close()
	}
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 30 * time.Second
}

func (a *App) setupRenderer() error {
	rc := a.cfg.Renderer
	var backend renderer.Renderer
	switch rc.Provider {
	case "headless":
		r, err := headless.New(headless.Config{
			MaxParallel:       rc.Headless.MaxParallel,
			UserAgent:         rc.Headless.UserAgent,
			WaitFor:           rc.Headless.WaitFor,
			NavigationTimeout: rc.Headless.NavigationTimeout,
		})
		if err != nil {
			return fmt.Errorf("headless renderer init failed: %w", err)
		}
		a.headless = r
		backend = r
		a.logger.Info("using headless renderer", zap.Int("max_parallel", rc.Headless.MaxParallel))
	default:
		c, err := browserless.New(browserless.Config{
			BaseURL:           rc.Browserless.URL,
			Token:             rc.Browserless.Token,
			WaitFor:           rc.Browserless.WaitFor,
			NavigationTimeout: rc.Browserless.NavigationTimeout,
		})
		if err != nil {
			return fmt.Errorf("browserless client init failed: %w", err)
		}
		backend = c
		a.logger.Info("using browserless renderer", zap.String("url", rc.Browserless.URL))
	}

	a.Fetcher = renderer.NewFetcher(backend, renderer.Config{
		Timeout:     rc.Timeout,
		MinLength:   rc.MinLength,
		Interval:    rc.Interval,
		MaxAttempts: rc.MaxAttempts,
		BaseDelay:   rc.BaseDelay,
	}, a.logger.Named("renderer"))
	return nil
}

func (a *App) setupStore(ctx context.Context) error {
	sc := a.cfg.Store
	switch sc.Provider {
	case "memory":
		a.logger.Warn("using in-memory recipe store; recipes are lost on restart")
		a.Store = memorystore.New()
	case "postgres":
		s, err := pgstore.New(ctx, pgstore.Config{
			DSN:      sc.Postgres.DSN,
			Table:    sc.Postgres.Table,
			MaxConns: sc.Postgres.MaxConns,
			MinConns: sc.Postgres.MinConns,
		})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		a.pgStore = s
		a.Store = s
		a.logger.Info("using postgres recipe store", zap.String("table", sc.Postgres.Table))
	default:
		c, err := baserow.New(baserow.Config{
			BaseURL:  sc.Baserow.URL,
			Token:    sc.Baserow.Token,
			TableID:  sc.Baserow.TableID,
			URLField: sc.Baserow.URLField,
			RPS:      sc.Baserow.RPS,
			Burst:    sc.Baserow.Burst,
		})
		if err != nil {
			return fmt.Errorf("baserow client init failed: %w", err)
		}
		a.Store = c
		a.logger.Info("using baserow recipe store",
			zap.String("url", sc.Baserow.URL),
			zap.Int("table_id", sc.Baserow.TableID))
	}
	return nil
}

func (a *App) setupArchive(ctx context.Context) (archive.Archive, error) {
	ac := a.cfg.Archive
	switch ac.Provider {
	case "memory":
		a.logger.Info("archiving rendered pages in memory")
		return memoryarchive.New(), nil
	case "local":
		s, err := localarchive.New(localarchive.Config{BaseDir: ac.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("archiving rendered pages locally", zap.String("path", ac.LocalDir))
		return s, nil
	case "gcs":
		var err error
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		s, err := gcsarchive.New(a.storage, gcsarchive.Config{Bucket: ac.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.logger.Info("archiving rendered pages to GCS", zap.String("bucket", ac.GCSBucket))
		return s, nil
	default:
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (publisher.Publisher, error) {
	pc := a.cfg.Publisher
	switch pc.Provider {
	case "memory":
		a.logger.Info("publishing run events in memory")
		return memorypublisher.New(), nil
	case "pubsub":
		var err error
		a.pubsubClient, err = pubsub.NewClient(ctx, pc.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.gcpPublisher, err = gcppublisher.New(a.pubsubClient, pc.Topic)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", pc.ProjectID),
			zap.String("topic", pc.Topic))
		return a.gcpPublisher, nil
	default:
		return nil, nil
	}
}

// Check pings the renderer and the store once and reports each result.
func (a *App) Check(ctx context.Context) map[string]error {
	return map[string]error{
		"renderer": a.Fetcher.Ping(ctx),
		"store":    a.Store.Ping(ctx),
	}
}
