package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/recipe-ingest/internal/config"
	"github.com/JakeFAU/recipe-ingest/internal/feed"
	memorystore "github.com/JakeFAU/recipe-ingest/internal/store/memory"
)

const rssBody = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Kitchen</title>
<item><title>Lemon Chicken</title><link>https://kitchen.example/lemon-chicken/</link></item>
<item><title>Garlic Bread</title><link>https://kitchen.example/garlic-bread/</link></item>
</channel></rss>`

const recipePage = `<html><head><script type="application/ld+json">
{"@context":"https://schema.org","@type":"Recipe","name":"Lemon Chicken",
 "recipeIngredient":["1 lemon","4 chicken thighs","2 tbsp olive oil"],
 "recipeInstructions":[{"@type":"HowToStep","text":"Zest the lemon."},{"@type":"HowToStep","text":"Roast everything for 40 minutes."}]}
</script></head><body>dinner</body></html>`

func testConfig(t *testing.T) config.Config {
	t.Helper()

	feeds := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssBody)
	}))
	t.Cleanup(feeds.Close)

	browser := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pressure":
			w.WriteHeader(http.StatusOK)
		case "/content":
			fmt.Fprint(w, recipePage)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(browser.Close)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Feeds.Sources = []feed.Source{{Name: "kitchen", URL: feeds.URL}}
	cfg.Renderer.Browserless.URL = browser.URL
	cfg.Renderer.Interval = time.Millisecond
	cfg.Renderer.BaseDelay = time.Millisecond
	cfg.Renderer.MinLength = 10
	cfg.Store.Provider = "memory"
	cfg.Archive.Provider = "memory"
	cfg.Publisher.Provider = "memory"
	cfg.Pipeline.Pacing = 0
	cfg.Pipeline.MinRecipeLength = 10
	return cfg
}

func TestBuildWiresRunEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	app, err := Build(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	stats, err := app.Orchestrator.Run(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Extracted)
	assert.Equal(t, 0, stats.Errors)

	n, err := app.Store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	saved, ok := app.Store.(*memorystore.Store).Get("https://kitchen.example/lemon-chicken")
	require.True(t, ok)
	assert.Equal(t, "Lemon Chicken", saved.FocusKeyword)

	again, err := app.Orchestrator.Run(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Duplicates)
	assert.Equal(t, 0, again.Extracted)
}

func TestBuildServesControlSurface(t *testing.T) {
	cfg := testConfig(t)
	app, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/result", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"nextRun":"Cron: 0 */6 * * *"`)

	for name, err := range app.Check(context.Background()) {
		assert.NoError(t, err, name)
	}
}

func TestBuildWithSchedulerDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scheduler.Enabled = false
	app, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	assert.Equal(t, SchedulerDisabled, app.Orchestrator.Snapshot().NextRun)
}

func TestBuildRejectsBadRendererURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Renderer.Browserless.URL = ""
	_, err := Build(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "browserless client init failed")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second
	app, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
