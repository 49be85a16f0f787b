// Package renderer fetches rendered HTML through a pluggable rendering backend, gated by a
// shared throttle and a bounded retry policy.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-ingest/internal/fetchgate"
	"github.com/JakeFAU/recipe-ingest/internal/metrics"
)

// ErrShortContent marks a rendered body too small to be a real page.
var ErrShortContent = errors.New("rendered content too short")

// Renderer is implemented by the Browserless client and the chromedp renderer.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
	Ping(ctx context.Context) error
}

// Config tunes the gated fetcher.
type Config struct {
	Timeout     time.Duration
	MinLength   int
	Interval    time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultConfig mirrors the rendering service limits the pipeline was tuned against.
func DefaultConfig() Config {
	return Config{
		Timeout:     30 * time.Second,
		MinLength:   500,
		Interval:    fetchgate.DefaultInterval,
		MaxAttempts: fetchgate.DefaultMaxAttempts,
		BaseDelay:   fetchgate.DefaultBaseDelay,
	}
}

// Fetcher wraps a Renderer with the fetch gate.
type Fetcher struct {
	backend   Renderer
	gate      *fetchgate.Gate
	timeout   time.Duration
	minLength int
	logger    *zap.Logger
}

// NewFetcher builds a Fetcher around backend.
func NewFetcher(backend Renderer, cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		backend:   backend,
		timeout:   cfg.Timeout,
		minLength: cfg.MinLength,
		logger:    logger,
	}
	f.gate = fetchgate.NewGate(fetchgate.NewThrottle(cfg.Interval), fetchgate.LinearBackoff{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			f.logger.Warn("render attempt failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		},
	})
	return f
}

// Fetch returns the rendered HTML for url, or the last error once retries are exhausted.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	html, err := fetchgate.Do(ctx, f.gate, func(ctx context.Context) (string, error) {
		return f.attempt(ctx, url)
	})
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	f.logger.Debug("rendered page", zap.String("url", url), zap.Int("chars", len(html)))
	return html, nil
}

func (f *Fetcher) attempt(ctx context.Context, url string) (string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	html, err := f.backend.Render(ctx, url)
	if err != nil {
		metrics.ObserveRenderAttempt("error")
		return "", err
	}
	if len(html) < f.minLength {
		metrics.ObserveRenderAttempt("short")
		return "", fmt.Errorf("%w: %d chars", ErrShortContent, len(html))
	}
	metrics.ObserveRenderAttempt("ok")
	return html, nil
}

// Ping checks the backend.
func (f *Fetcher) Ping(ctx context.Context) error {
	return f.backend.Ping(ctx)
}
