// Package ratelimit gates and retries outbound calls to the catalog services.
//
// A [Window] caps the number of calls per fixed time window; an [Executor] wraps each call with the
// window, a transient-error backoff schedule and a single credential refresh on auth expiry.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time so tests can run without sleeping.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}

// Window is a rolling request counter that resets every fixed interval.
//
// When the counter reaches the ceiling, Acquire blocks until the current window ends.
type Window struct {
	mu      sync.Mutex
	ceiling int
	size    time.Duration
	start   time.Time
	count   int
	clock   Clock
}

// NewWindow allows ceiling calls per size. A non-positive ceiling disables limiting.
func NewWindow(ceiling int, size time.Duration, clock Clock) *Window {
	if clock == nil {
		clock = SystemClock
	}
	return &Window{ceiling: ceiling, size: size, clock: clock}
}

// Acquire reserves one call slot, blocking while the window is full.
func (w *Window) Acquire(ctx context.Context) error {
	_, err := w.acquire(ctx)
	return err
}

// acquire returns how long the caller waited.
func (w *Window) acquire(ctx context.Context) (time.Duration, error) {
	var waited time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return waited, err
		}

		w.mu.Lock()
		if w.ceiling <= 0 || w.size <= 0 {
			w.mu.Unlock()
			return waited, nil
		}

		now := w.clock.Now()
		if w.start.IsZero() || now.Sub(w.start) >= w.size {
			w.start = now
			w.count = 0
		}
		if w.count < w.ceiling {
			w.count++
			w.mu.Unlock()
			return waited, nil
		}
		wait := w.start.Add(w.size).Sub(now)
		w.mu.Unlock()

		if err := w.clock.Sleep(ctx, wait); err != nil {
			return waited, err
		}
		waited += wait
	}
}

// Used returns the number of calls made in the current window.
func (w *Window) Used() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.start.IsZero() || w.clock.Now().Sub(w.start) >= w.size {
		return 0
	}
	return w.count
}
