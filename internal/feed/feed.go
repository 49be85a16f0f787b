// Package feed pulls candidate article links from the configured RSS and Atom feeds.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/recipe-ingest/internal/metrics"
)

const (
	// DefaultUserAgent identifies feed requests.
	DefaultUserAgent = "RecipeScraperElite/1.0"
	// DefaultMaxItems caps the items taken from a single feed.
	DefaultMaxItems = 20
	// DefaultTimeout bounds one feed GET.
	DefaultTimeout = 15 * time.Second
)

// Source is a named feed URL.
type Source struct {
	Name string `mapstructure:"name" json:"name"`
	URL  string `mapstructure:"url" json:"url"`
}

// DefaultSources is the stock feed list.
var DefaultSources = []Source{
	{Name: "glonfo", URL: "https://glonfo.com/feed/"},
	{Name: "flavornectar", URL: "https://flavornectar.com/feed/"},
	{Name: "recipessin", URL: "https://www.recipessin.com/feed/"},
	{Name: "melissarecipes", URL: "https://melissarecipes.com/feed/"},
	{Name: "recipesbyaria", URL: "https://recipesbyaria.com/feed/"},
}

// Candidate is one feed item worth fetching.
type Candidate struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source string `json:"source"`
}

// Config tunes the aggregator.
type Config struct {
	UserAgent  string
	MaxItems   int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Aggregator fetches every source concurrently and merges the results.
type Aggregator struct {
	sources []Source
	cfg     Config
	logger  *zap.Logger
}

// New builds an Aggregator over sources. Zero config fields take the package defaults.
func New(sources []Source, cfg Config, logger *zap.Logger) *Aggregator {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		sources: append([]Source(nil), sources...),
		cfg:     cfg,
		logger:  logger,
	}
}

// Sources returns a copy of the configured sources.
func (a *Aggregator) Sources() []Source {
	return append([]Source(nil), a.sources...)
}

// Fetch returns candidates from all sources in configuration order. A failing source is
// logged and contributes nothing.
func (a *Aggregator) Fetch(ctx context.Context) []Candidate {
	perSource := make([][]Candidate, len(a.sources))

	var g errgroup.Group
	for i, src := range a.sources {
		g.Go(func() error {
			items, err := a.fetchSource(ctx, src)
			if err != nil {
				a.logger.Warn("feed fetch failed",
					zap.String("source", src.Name),
					zap.String("url", src.URL),
					zap.Error(err))
				metrics.ObserveFeed(src.Name, "error", 0)
				return nil
			}
			metrics.ObserveFeed(src.Name, "ok", len(items))
			perSource[i] = items
			return nil
		})
	}
	_ = g.Wait()

	var out []Candidate
	for _, items := range perSource {
		out = append(out, items...)
	}
	a.logger.Info("feeds aggregated",
		zap.Int("sources", len(a.sources)),
		zap.Int("candidates", len(out)))
	return out
}

func (a *Aggregator) fetchSource(ctx context.Context, src Source) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", a.cfg.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := a.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get feed: unexpected status %d", resp.StatusCode)
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return a.candidates(src, parsed), nil
}

func (a *Aggregator) candidates(src Source, parsed *gofeed.Feed) []Candidate {
	items := parsed.Items
	if len(items) > a.cfg.MaxItems {
		items = items[:a.cfg.MaxItems]
	}
	out := make([]Candidate, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		title := strings.TrimSpace(item.Title)
		link := itemLink(item)
		if title == "" || link == "" {
			continue
		}
		out = append(out, Candidate{Title: title, URL: link, Source: src.Name})
	}
	return out
}

func itemLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	for _, l := range item.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}
