package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/tracksync/internal/shared"
)

// fakeClock advances instantly on Sleep and records every requested delay.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func apiErr(status int) error {
	return shared.NewAPIError("test", "GET", "/x", status, nil)
}

func newTestExecutor(clock Clock, opts ...Option) *Executor {
	opts = append([]Option{WithClock(clock), WithLogger(shared.DiscardLogger())}, opts...)
	return NewExecutor("test", shared.ServiceLimit{Ceiling: 100, Window: time.Minute}, opts...)
}

func equalDurations(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWindow(t *testing.T) {
	t.Run("never exceeds ceiling per window", func(t *testing.T) {
		clock := newFakeClock()
		start := clock.Now()
		const ceiling, size = 3, 10 * time.Second
		w := NewWindow(ceiling, size, clock)

		perWindow := map[int64]int{}
		for i := 0; i < 10; i++ {
			if err := w.Acquire(context.Background()); err != nil {
				t.Fatalf("acquire %d: %v", i, err)
			}
			bucket := int64(clock.Now().Sub(start) / size)
			perWindow[bucket]++
		}

		for bucket, n := range perWindow {
			if n > ceiling {
				t.Errorf("window %d executed %d calls, ceiling is %d", bucket, n, ceiling)
			}
		}
		if len(perWindow) != 4 {
			t.Errorf("expected 10 calls to span 4 windows, got %d", len(perWindow))
		}
	})

	t.Run("blocks until the window resets", func(t *testing.T) {
		clock := newFakeClock()
		w := NewWindow(2, 30*time.Second, clock)
		ctx := context.Background()

		_ = w.Acquire(ctx)
		clock.Sleep(ctx, 5*time.Second)
		_ = w.Acquire(ctx)
		if w.Used() != 2 {
			t.Errorf("expected 2 used, got %d", w.Used())
		}
		_ = w.Acquire(ctx)

		sleeps := clock.Sleeps()
		if got := sleeps[len(sleeps)-1]; got != 25*time.Second {
			t.Errorf("expected to wait 25s for the reset, got %v", got)
		}
		if w.Used() != 1 {
			t.Errorf("expected fresh window with 1 call, got %d", w.Used())
		}
	})

	t.Run("respects cancellation", func(t *testing.T) {
		w := NewWindow(1, time.Hour, nil)
		ctx, cancel := context.WithCancel(context.Background())
		if err := w.Acquire(ctx); err != nil {
			t.Fatal(err)
		}
		cancel()
		if err := w.Acquire(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("zero ceiling disables limiting", func(t *testing.T) {
		w := NewWindow(0, time.Second, newFakeClock())
		for i := 0; i < 100; i++ {
			if err := w.Acquire(context.Background()); err != nil {
				t.Fatal(err)
			}
		}
	})
}

func TestExecutor(t *testing.T) {
	ctx := context.Background()

	t.Run("success on first try", func(t *testing.T) {
		clock := newFakeClock()
		e := newTestExecutor(clock)
		calls := 0
		err := e.Do(ctx, "ok", func(context.Context) error { calls++; return nil })
		if err != nil || calls != 1 {
			t.Errorf("expected one successful call, got calls=%d err=%v", calls, err)
		}
		if len(clock.Sleeps()) != 0 {
			t.Errorf("expected no sleeps, got %v", clock.Sleeps())
		}
	})

	t.Run("transient retried on schedule", func(t *testing.T) {
		clock := newFakeClock()
		e := newTestExecutor(clock)
		calls := 0
		err := e.Do(ctx, "flaky", func(context.Context) error {
			calls++
			if calls <= 2 {
				return apiErr(http.StatusTooManyRequests)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
		if want := []time.Duration{time.Second, 3 * time.Second}; !equalDurations(clock.Sleeps(), want) {
			t.Errorf("sleeps = %v, want %v", clock.Sleeps(), want)
		}
	})

	t.Run("transient exhausted", func(t *testing.T) {
		clock := newFakeClock()
		e := newTestExecutor(clock)
		calls := 0
		err := e.Do(ctx, "down", func(context.Context) error {
			calls++
			return apiErr(http.StatusServiceUnavailable)
		})
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected wrapped 503, got %v", err)
		}
		if calls != 4 {
			t.Errorf("expected 1 call + 3 retries, got %d", calls)
		}
		if !equalDurations(clock.Sleeps(), DefaultBackoff) {
			t.Errorf("sleeps = %v, want %v", clock.Sleeps(), DefaultBackoff)
		}
	})

	t.Run("retry after honoured when longer", func(t *testing.T) {
		clock := newFakeClock()
		e := newTestExecutor(clock)
		calls := 0
		_ = e.Do(ctx, "throttled", func(context.Context) error {
			calls++
			if calls == 1 {
				err := shared.NewAPIError("test", "GET", "/x", http.StatusTooManyRequests, nil)
				err.RetryAfter = 10 * time.Second
				return err
			}
			return nil
		})
		if want := []time.Duration{10 * time.Second}; !equalDurations(clock.Sleeps(), want) {
			t.Errorf("sleeps = %v, want %v", clock.Sleeps(), want)
		}
	})

	t.Run("retry after clamped to the window", func(t *testing.T) {
		clock := newFakeClock()
		e := newTestExecutor(clock)
		calls := 0
		_ = e.Do(ctx, "throttled", func(context.Context) error {
			calls++
			if calls == 1 {
				err := shared.NewAPIError("test", "GET", "/x", http.StatusTooManyRequests, nil)
				err.RetryAfter = 24 * time.Hour
				return err
			}
			return nil
		})
		if want := []time.Duration{time.Minute}; !equalDurations(clock.Sleeps(), want) {
			t.Errorf("sleeps = %v, want %v", clock.Sleeps(), want)
		}
	})

	t.Run("retry after clamped to the configured max", func(t *testing.T) {
		clock := newFakeClock()
		e := NewExecutor("test", shared.ServiceLimit{Ceiling: 100, Window: time.Minute, MaxRetryAfter: 15 * time.Second},
			WithClock(clock), WithLogger(shared.DiscardLogger()))
		calls := 0
		_ = e.Do(ctx, "throttled", func(context.Context) error {
			calls++
			if calls == 1 {
				err := shared.NewAPIError("test", "GET", "/x", http.StatusTooManyRequests, nil)
				err.RetryAfter = 10 * time.Minute
				return err
			}
			return nil
		})
		if want := []time.Duration{15 * time.Second}; !equalDurations(clock.Sleeps(), want) {
			t.Errorf("sleeps = %v, want %v", clock.Sleeps(), want)
		}
	})

	t.Run("auth expired refreshes exactly once", func(t *testing.T) {
		refreshes := 0
		e := newTestExecutor(newFakeClock(), WithRefresher(func(context.Context) error {
			refreshes++
			return nil
		}))

		calls := 0
		err := e.Do(ctx, "auth", func(context.Context) error {
			calls++
			if calls == 1 {
				return apiErr(http.StatusUnauthorized)
			}
			return nil
		})
		if err != nil || calls != 2 || refreshes != 1 {
			t.Errorf("expected refresh+retry, got calls=%d refreshes=%d err=%v", calls, refreshes, err)
		}
	})

	t.Run("second auth failure surfaces", func(t *testing.T) {
		refreshes := 0
		e := newTestExecutor(newFakeClock())
		e.SetRefresher(func(context.Context) error { refreshes++; return nil })

		calls := 0
		err := e.Do(ctx, "auth", func(context.Context) error {
			calls++
			return apiErr(http.StatusUnauthorized)
		})
		if !shared.IsAuthExpired(err) {
			t.Errorf("expected auth error, got %v", err)
		}
		if calls != 2 || refreshes != 1 {
			t.Errorf("expected 2 calls and 1 refresh, got %d and %d", calls, refreshes)
		}
	})

	t.Run("refresh failure", func(t *testing.T) {
		e := newTestExecutor(newFakeClock(), WithRefresher(func(context.Context) error {
			return errors.New("invalid_grant")
		}))
		err := e.Do(ctx, "auth", func(context.Context) error { return apiErr(http.StatusUnauthorized) })
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}
	})

	t.Run("not found and fatal are not retried", func(t *testing.T) {
		for _, status := range []int{http.StatusNotFound, http.StatusBadRequest} {
			clock := newFakeClock()
			e := newTestExecutor(clock)
			calls := 0
			err := e.Do(ctx, "x", func(context.Context) error { calls++; return apiErr(status) })
			if err == nil || calls != 1 || len(clock.Sleeps()) != 0 {
				t.Errorf("status %d: expected single failed call, got calls=%d err=%v", status, calls, err)
			}
		}
	})

	t.Run("Call returns value", func(t *testing.T) {
		e := newTestExecutor(newFakeClock())
		calls := 0
		v, err := Call(ctx, e, "value", func(context.Context) (string, error) {
			calls++
			if calls == 1 {
				return "", apiErr(http.StatusBadGateway)
			}
			return "done", nil
		})
		if err != nil || v != "done" {
			t.Errorf("expected done, got %q %v", v, err)
		}
	})

	t.Run("custom backoff", func(t *testing.T) {
		clock := newFakeClock()
		e := NewExecutor("test", shared.ServiceLimit{Backoff: []time.Duration{time.Millisecond}},
			WithClock(clock), WithLogger(shared.DiscardLogger()))
		calls := 0
		_ = e.Do(ctx, "x", func(context.Context) error { calls++; return apiErr(http.StatusInternalServerError) })
		if calls != 2 {
			t.Errorf("expected 2 calls with one-step backoff, got %d", calls)
		}
	})
}
