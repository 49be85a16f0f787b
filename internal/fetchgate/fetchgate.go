// Package fetchgate wraps fallible calls with minimum-interval throttling and bounded retries.
//
// The two behaviors compose: Do retries an operation under a LinearBackoff policy and
// passes every attempt through a shared Throttle, so a retry also respects the spacing
// between calls.
package fetchgate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/recipe-ingest/internal/metrics"
)

// Defaults used by the rendering pipeline.
const (
	DefaultInterval    = 2000 * time.Millisecond
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2000 * time.Millisecond
)

// Op is any context-aware fallible operation.
type Op[T any] func(ctx context.Context) (T, error)

// Throttle enforces a minimum gap between the end of one call and the start of the next.
// Calls between Wait and Done hold the throttle's single slot, so concurrent callers are
// admitted one at a time.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	lastEnd  time.Time
	now      func() time.Time
	slot     chan struct{}
}

// NewThrottle returns a Throttle with the given interval. A non-positive interval disables it.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval, now: time.Now, slot: make(chan struct{}, 1)}
}

// Wait blocks until no other call holds the throttle and the interval since the last
// recorded call end has elapsed. A nil return must be paired with a call to Done.
func (t *Throttle) Wait(ctx context.Context) error {
	if t.interval <= 0 {
		return nil
	}
	select {
	case t.slot <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("throttle wait: %w", ctx.Err())
	}

	t.mu.Lock()
	var delay time.Duration
	if !t.lastEnd.IsZero() {
		delay = t.interval - t.now().Sub(t.lastEnd)
	}
	t.mu.Unlock()

	if delay <= 0 {
		return nil
	}
	metrics.ObserveGateWait(delay)
	if err := Sleep(ctx, delay); err != nil {
		t.release()
		return err
	}
	return nil
}

// Done records the end of a call and frees the slot taken by Wait.
func (t *Throttle) Done() {
	t.mu.Lock()
	t.lastEnd = t.now()
	t.mu.Unlock()
	t.release()
}

func (t *Throttle) release() {
	select {
	case <-t.slot:
	default:
	}
}

// Throttled runs op once the throttle allows it and records when it finished,
// whether it succeeded or not.
func Throttled[T any](ctx context.Context, t *Throttle, op Op[T]) (T, error) {
	if err := t.Wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	defer t.Done()
	return op(ctx)
}

// LinearBackoff retries up to MaxAttempts times, waiting attempt*BaseDelay after each failure.
type LinearBackoff struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// ShouldRetry reports whether another attempt follows the given failed attempt (1-based).
func (p LinearBackoff) ShouldRetry(ctx context.Context, err error, attempt int) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	return attempt < p.attempts()
}

// Backoff returns the wait after the given failed attempt.
func (p LinearBackoff) Backoff(attempt int) time.Duration {
	return time.Duration(attempt) * p.BaseDelay
}

func (p LinearBackoff) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Retry runs op until it succeeds or the policy gives up, returning the last error.
func Retry[T any](ctx context.Context, policy LinearBackoff, op Op[T]) (T, error) {
	var (
		result T
		err    error
	)
	for attempt := 1; ; attempt++ {
		result, err = op(ctx)
		if err == nil {
			return result, nil
		}
		if !policy.ShouldRetry(ctx, err, attempt) {
			return result, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}
		delay := policy.Backoff(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err, delay)
		}
		if sleepErr := Sleep(ctx, delay); sleepErr != nil {
			return result, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}
	}
}

// Gate couples a shared Throttle with a retry policy.
type Gate struct {
	throttle *Throttle
	policy   LinearBackoff
}

// NewGate builds a Gate.
func NewGate(throttle *Throttle, policy LinearBackoff) *Gate {
	if throttle == nil {
		throttle = NewThrottle(0)
	}
	return &Gate{throttle: throttle, policy: policy}
}

// Do runs op through the gate: each attempt is throttled and failures are retried.
func Do[T any](ctx context.Context, g *Gate, op Op[T]) (T, error) {
	return Retry(ctx, g.policy, func(ctx context.Context) (T, error) {
		return Throttled(ctx, g.throttle, op)
	})
}

// Sleep pauses for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
