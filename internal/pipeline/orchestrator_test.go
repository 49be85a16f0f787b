package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/recipe-ingest/internal/archive/memory"
	"github.com/JakeFAU/recipe-ingest/internal/feed"
	pubmemory "github.com/JakeFAU/recipe-ingest/internal/publisher/memory"
	"github.com/JakeFAU/recipe-ingest/internal/recipe"
)

type staticFeeds struct {
	candidates []feed.Candidate
}

func (s staticFeeds) Fetch(context.Context) []feed.Candidate { return s.candidates }

type setGuard struct {
	mu   sync.Mutex
	dups map[string]bool
	all  bool
}

func (g *setGuard) IsDuplicate(_ context.Context, url string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.all || g.dups[url]
}

type scriptedFetcher struct {
	calls   atomic.Int32
	fail    map[string]bool
	release chan struct{}
	started chan struct{}
	panicOn string
}

func (f *scriptedFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.calls.Add(1)
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if url == f.panicOn {
		panic("renderer exploded")
	}
	if f.fail[url] {
		return "", errors.New("render failed")
	}
	return "<html>" + url + "</html>", nil
}

type stubExtractor struct {
	reject map[string]bool
}

func (e stubExtractor) Extract(_, sourceURL string) (*recipe.NormalizedRecipe, error) {
	if e.reject[sourceURL] {
		return nil, recipe.ErrNoRecipe
	}
	return &recipe.NormalizedRecipe{FocusKeyword: "Dish", SourceURL: sourceURL}, nil
}

type recordingSaver struct {
	mu    sync.Mutex
	saved []string
	fail  map[string]bool
}

func (s *recordingSaver) Save(_ context.Context, rec recipe.NormalizedRecipe) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[rec.SourceURL] {
		return "", errors.New("store rejected row")
	}
	s.saved = append(s.saved, rec.SourceURL)
	return fmt.Sprint(len(s.saved)), nil
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	step   time.Duration
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) sleepCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleeps)
}

type seqIDs struct{ n atomic.Int32 }

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("run-%d", s.n.Add(1)), nil
}

func candidates(n int) []feed.Candidate {
	out := make([]feed.Candidate, n)
	for i := range out {
		out[i] = feed.Candidate{Title: fmt.Sprintf("Dish %d", i), URL: fmt.Sprintf("https://example.com/%d", i), Source: "test"}
	}
	return out
}

type harness struct {
	deps    Deps
	fetcher *scriptedFetcher
	guard   *setGuard
	saver   *recordingSaver
	clock   *fakeClock
}

func newHarness(n int) *harness {
	h := &harness{
		fetcher: &scriptedFetcher{fail: map[string]bool{}},
		guard:   &setGuard{dups: map[string]bool{}},
		saver:   &recordingSaver{fail: map[string]bool{}},
		clock:   &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), step: 400 * time.Millisecond},
	}
	h.deps = Deps{
		Feeds:     staticFeeds{candidates: candidates(n)},
		Guard:     h.guard,
		Fetcher:   h.fetcher,
		Extractor: stubExtractor{reject: map[string]bool{}},
		Saver:     h.saver,
		Clock:     h.clock,
		IDs:       &seqIDs{},
	}
	return h
}

func (h *harness) orchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	o, err := New(h.deps, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Shutdown(context.Background()) })
	return o
}

func TestRunAllDuplicatesNeverFetches(t *testing.T) {
	t.Parallel()

	h := newHarness(5)
	h.guard.all = true
	o := h.orchestrator(t, Config{})

	stats, err := o.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Extracted)
	assert.Equal(t, 5, stats.Duplicates)
	assert.Equal(t, 0, stats.Errors)
	assert.Zero(t, h.fetcher.calls.Load())
	assert.Zero(t, h.clock.sleepCount())
}

func TestRunCountsEachOutcome(t *testing.T) {
	t.Parallel()

	h := newHarness(5)
	h.guard.dups["https://example.com/0"] = true
	h.fetcher.fail["https://example.com/1"] = true
	h.deps.Extractor = stubExtractor{reject: map[string]bool{"https://example.com/2": true}}
	h.saver.fail["https://example.com/3"] = true
	o := h.orchestrator(t, Config{})

	stats, err := o.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Extracted)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 3, stats.Errors)
	assert.Equal(t, 5, stats.Candidates)
	assert.Equal(t, DefaultLimit, stats.Limit)
	assert.Equal(t, []string{"https://example.com/4"}, h.saver.saved)

	snap := o.Snapshot()
	assert.False(t, snap.IsRunning)
	require.NotNil(t, snap.LastRun)
	require.NotNil(t, snap.LastResult)
	assert.Equal(t, stats, *snap.LastResult)
}

func TestRunSamplesLimitAndPaces(t *testing.T) {
	t.Parallel()

	h := newHarness(20)
	o := h.orchestrator(t, Config{Pacing: 1500 * time.Millisecond})

	stats, err := o.Run(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Extracted)
	assert.EqualValues(t, 3, h.fetcher.calls.Load())
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 1500 * time.Millisecond}, h.clock.sleeps)
}

func TestRunWithNoCandidatesRecordsEmptyResult(t *testing.T) {
	t.Parallel()

	h := newHarness(0)
	o := h.orchestrator(t, Config{})

	stats, err := o.Run(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Extracted+stats.Duplicates+stats.Errors)
	require.NotNil(t, o.Snapshot().LastResult)
}

func TestRunDurationIsRoundedSeconds(t *testing.T) {
	t.Parallel()

	h := newHarness(0)
	h.clock.step = 2600 * time.Millisecond
	o := h.orchestrator(t, Config{})

	stats, err := o.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, float64(3), stats.Duration)
}

func TestRunRecoversFromPanic(t *testing.T) {
	t.Parallel()

	h := newHarness(1)
	h.fetcher.panicOn = "https://example.com/0"
	o := h.orchestrator(t, Config{})

	stats, err := o.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)

	snap := o.Snapshot()
	assert.False(t, snap.IsRunning)
	require.NotNil(t, snap.LastResult)
	assert.Equal(t, 1, snap.LastResult.Errors)

	_, err = o.Run(context.Background(), 1)
	require.NoError(t, err)
}

func TestTriggerRejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	h := newHarness(2)
	h.fetcher.release = make(chan struct{})
	h.fetcher.started = make(chan struct{}, 1)
	o := h.orchestrator(t, Config{})

	require.NoError(t, o.Trigger(2))
	<-h.fetcher.started
	assert.True(t, o.Snapshot().IsRunning)

	require.ErrorIs(t, o.Trigger(2), ErrAlreadyRunning)
	_, err := o.Run(context.Background(), 2)
	require.ErrorIs(t, err, ErrAlreadyRunning)

	close(h.fetcher.release)
	require.Eventually(t, func() bool { return !o.Snapshot().IsRunning }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, o.Snapshot().LastResult.Extracted)
}

func TestShutdownCancelsBackgroundRun(t *testing.T) {
	t.Parallel()

	h := newHarness(3)
	h.fetcher.release = make(chan struct{})
	h.fetcher.started = make(chan struct{}, 1)
	o, err := New(h.deps, Config{}, nil)
	require.NoError(t, err)

	require.NoError(t, o.Trigger(3))
	<-h.fetcher.started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))

	snap := o.Snapshot()
	assert.False(t, snap.IsRunning)
	require.NotNil(t, snap.LastResult)
	assert.Equal(t, 1, snap.LastResult.Errors)
	assert.EqualValues(t, 1, h.fetcher.calls.Load())
}

func TestRunArchivesAndPublishes(t *testing.T) {
	t.Parallel()

	h := newHarness(2)
	pages := memory.New()
	events := pubmemory.New()
	h.deps.Archive = pages
	h.deps.Publisher = events
	o := h.orchestrator(t, Config{ArchivePrefix: "html"})

	stats, err := o.Run(context.Background(), 2)
	require.NoError(t, err)

	paths := pages.Paths()
	require.Len(t, paths, 2)
	assert.Regexp(t, `^html/run-1/0[12]-\d\.html$`, paths[0])

	msgs := events.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, EventRunCompleted, msgs[0].Name)
	assert.Equal(t, stats.RunID, msgs[0].Attributes["run_id"])
	assert.Contains(t, string(msgs[0].Data), `"extracted":2`)
}

func TestNewRequiresDeps(t *testing.T) {
	t.Parallel()

	h := newHarness(1)
	deps := h.deps
	deps.Saver = nil
	_, err := New(deps, Config{}, nil)
	require.Error(t, err)
}
