package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/recipe-ingest/internal/metrics"
	"github.com/JakeFAU/recipe-ingest/internal/pipeline"
)

const defaultProbeTimeout = 5 * time.Second

// Runner is the orchestrator as seen by HTTP handlers.
type Runner interface {
	Trigger(limit int) error
	Snapshot() pipeline.RunState
	DefaultLimit() int
}

// Pinger reports whether a downstream dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RecipeCounter reports how many recipes are stored.
type RecipeCounter interface {
	Count(ctx context.Context) (int, error)
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Runner   Runner
	Renderer Pinger
	Store    Pinger
	Counter  RecipeCounter
	Clock    interface{ Now() time.Time }
	// RequestID issues X-Request-ID values. Nil uses random UUIDs.
	RequestID func() string
}

// Options configures middleware and status output.
type Options struct {
	AuthEnabled    bool
	APIKey         string
	RequestTimeout time.Duration
	ProbeTimeout   time.Duration
	CronSchedule   string
}

// Server wires HTTP handlers to the orchestrator and its dependencies.
type Server struct {
	router chi.Router
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	s := &Server{deps: deps, opts: opts, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware(deps.RequestID))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/health", s.health)
	r.Get("/status", s.status)
	r.Get("/result", s.result)
	r.Handle("/metrics", metrics.Handler())
	r.Group(func(r chi.Router) {
		if opts.AuthEnabled {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Post("/trigger", s.trigger)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type scraperView struct {
	IsRunning  bool               `json:"isRunning"`
	LastRun    *time.Time         `json:"lastRun"`
	LastResult *pipeline.RunStats `json:"lastResult,omitempty"`
	NextRun    string             `json:"nextRun"`
}

type healthResponse struct {
	Status    string            `json:"status"`
	Services  map[string]string `json:"services"`
	Scraper   scraperView       `json:"scraper"`
	Timestamp time.Time         `json:"timestamp"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.ProbeTimeout)
	defer cancel()

	var rendererErr, storeErr error
	var g errgroup.Group
	g.Go(func() error {
		rendererErr = ping(ctx, s.deps.Renderer)
		return nil
	})
	g.Go(func() error {
		storeErr = ping(ctx, s.deps.Store)
		return nil
	})
	_ = g.Wait()

	resp := healthResponse{
		Status: "healthy",
		Services: map[string]string{
			"renderer": serviceStatus(rendererErr),
			"store":    serviceStatus(storeErr),
		},
		Timestamp: s.now(),
	}
	snap := s.deps.Runner.Snapshot()
	resp.Scraper = scraperView{IsRunning: snap.IsRunning, LastRun: snap.LastRun, NextRun: snap.NextRun}

	code := http.StatusOK
	if rendererErr != nil || storeErr != nil {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
		s.logger.Warn("health probe degraded",
			zap.NamedError("renderer_error", rendererErr),
			zap.NamedError("store_error", storeErr))
	}
	writeJSON(w, code, resp)
}

func ping(ctx context.Context, p Pinger) error {
	if p == nil {
		return errors.New("not configured")
	}
	return p.Ping(ctx)
}

func serviceStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

type statusResponse struct {
	Scraper  scraperView `json:"scraper"`
	Database struct {
		TotalRecipes *int `json:"totalRecipes"`
	} `json:"database"`
	Config struct {
		CronSchedule string `json:"cronSchedule"`
	} `json:"config"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Runner.Snapshot()
	var resp statusResponse
	resp.Scraper = scraperView{
		IsRunning:  snap.IsRunning,
		LastRun:    snap.LastRun,
		LastResult: snap.LastResult,
		NextRun:    snap.NextRun,
	}
	if s.deps.Counter != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.ProbeTimeout)
		defer cancel()
		if n, err := s.deps.Counter.Count(ctx); err == nil {
			resp.Database.TotalRecipes = &n
		} else {
			s.logger.Warn("count recipes failed", zap.Error(err))
		}
	}
	resp.Config.CronSchedule = s.opts.CronSchedule
	resp.Timestamp = s.now()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) trigger(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = s.deps.Runner.DefaultLimit()
	}

	if err := s.deps.Runner.Trigger(limit); err != nil {
		if errors.Is(err, pipeline.ErrAlreadyRunning) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":   "Scraper already running",
				"lastRun": s.deps.Runner.Snapshot().LastRun,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("run triggered via API", zap.Int("limit", limit))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":   "Scraper started",
		"limit":     limit,
		"timestamp": s.now(),
	})
}

func (s *Server) result(w http.ResponseWriter, _ *http.Request) {
	snap := s.deps.Runner.Snapshot()
	if snap.LastResult == nil {
		writeError(w, http.StatusNotFound, "No results yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lastRun": snap.LastRun,
		"result":  snap.LastResult,
	})
}

func (s *Server) now() time.Time {
	if s.deps.Clock == nil {
		return time.Now().UTC()
	}
	return s.deps.Clock.Now()
}
