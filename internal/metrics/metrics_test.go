package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIdempotent(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if feedFetchesTotal == nil || candidatesTotal == nil || runsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveFeed(t *testing.T) {
	before := testutil.ToFloat64(feedItemsTotalFor("metrics-test"))
	ObserveFeed("metrics-test", "ok", 3)
	ObserveFeed("metrics-test", "error", 0)

	if got := testutil.ToFloat64(feedItemsTotalFor("metrics-test")) - before; got != 3 {
		t.Errorf("expected 3 feed items, got %f", got)
	}
	if got := testutil.ToFloat64(feedFetchesTotal.WithLabelValues("metrics-test", "error")); got < 1 {
		t.Errorf("expected error fetch to be counted, got %f", got)
	}
}

func TestObserveRunAndCandidates(t *testing.T) {
	Init()
	beforeRuns := testutil.ToFloat64(runsTotal.WithLabelValues("completed"))
	beforeCandidates := testutil.ToFloat64(candidatesTotal.WithLabelValues("duplicate"))

	SetRunInProgress(true)
	if got := testutil.ToFloat64(runInProgress); got != 1 {
		t.Errorf("expected gauge at 1, got %f", got)
	}
	ObserveCandidate("duplicate")
	ObserveCandidate("duplicate")
	ObserveRun("completed", 2*time.Second)
	SetRunInProgress(false)

	if got := testutil.ToFloat64(runsTotal.WithLabelValues("completed")) - beforeRuns; got != 1 {
		t.Errorf("expected 1 completed run, got %f", got)
	}
	if got := testutil.ToFloat64(candidatesTotal.WithLabelValues("duplicate")) - beforeCandidates; got != 2 {
		t.Errorf("expected 2 duplicates, got %f", got)
	}
	if got := testutil.ToFloat64(runInProgress); got != 0 {
		t.Errorf("expected gauge at 0, got %f", got)
	}
}

func TestObserveStoreRequest(t *testing.T) {
	Init()
	before := testutil.ToFloat64(storeRequestsTotal.WithLabelValues("save", "error"))
	ObserveStoreRequest("save", errors.New("boom"))
	ObserveStoreRequest("save", nil)
	if got := testutil.ToFloat64(storeRequestsTotal.WithLabelValues("save", "error")) - before; got != 1 {
		t.Errorf("expected one failed save, got %f", got)
	}
}

func feedItemsTotalFor(source string) prometheus.Counter {
	Init()
	return feedItemsTotal.WithLabelValues(source)
}
