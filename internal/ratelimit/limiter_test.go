package ratelimit

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(clock *fakeClock, store Store) *Limiter {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLimiter(log, 3, time.Second, WithClock(clock.Now), WithStore(store))
}

func TestAllowFixedWindowBoundary(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock, nil)

	for i := 0; i < 3; i++ {
		if !l.Allow("5511", 3, 1000*time.Millisecond) {
			t.Fatalf("call %d should be allowed", i+1)
		}
		clock.Advance(100 * time.Millisecond)
	}
	if l.Allow("5511", 3, 1000*time.Millisecond) {
		t.Fatalf("4th call inside the window should be denied")
	}

	// Landing exactly on ResetAt still counts against the old window.
	clock.Advance(700 * time.Millisecond)
	if l.Allow("5511", 3, 1000*time.Millisecond) {
		t.Fatalf("call at the reset instant should still be denied")
	}

	clock.Advance(time.Millisecond)
	if !l.Allow("5511", 3, 1000*time.Millisecond) {
		t.Fatalf("call after the window elapsed should be allowed")
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	l := newTestLimiter(clock, nil)
	for i := 0; i < 3; i++ {
		l.AllowDefault("a")
	}
	if l.AllowDefault("a") {
		t.Fatalf("a should be limited")
	}
	if !l.AllowDefault("b") {
		t.Fatalf("b should not be affected by a")
	}
}

func TestAllowResetAtStrictlyIncreases(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(100, 0)}
	store := NewMemoryStore()
	l := newTestLimiter(clock, store)

	var last time.Time
	for i := 0; i < 5; i++ {
		l.AllowDefault("k")
		var resetAt time.Time
		store.Update("k", func(w *Window, _ bool) { resetAt = w.ResetAt })
		if i > 0 && !resetAt.After(last) {
			t.Fatalf("resetAt did not increase: %v -> %v", last, resetAt)
		}
		last = resetAt
		clock.Advance(2 * time.Second)
	}
}

func TestAllowConcurrentSameSender(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	l := newTestLimiter(clock, nil)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("same", 10, time.Minute) {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := allowed.Load(); got != 10 {
		t.Fatalf("expected exactly 10 allowed, got %d", got)
	}
}

func TestAllowDisabledLimits(t *testing.T) {
	t.Parallel()

	l := newTestLimiter(&fakeClock{now: time.Unix(0, 0)}, nil)
	for i := 0; i < 10; i++ {
		if !l.Allow("x", 0, time.Second) {
			t.Fatalf("zero max should disable limiting")
		}
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	store := NewMemoryStore()
	l := newTestLimiter(clock, store)
	l.AllowDefault("old")
	clock.Advance(2 * time.Second)
	l.AllowDefault("fresh")

	if removed := store.Sweep(clock.Now()); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 remaining key, got %d", store.Len())
	}
}

func TestStartSweeperRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	l := newTestLimiter(&fakeClock{now: time.Unix(0, 0)}, nil)
	if err := l.StartSweeper("not a schedule"); err == nil {
		t.Fatalf("expected schedule parse error")
	}
	if err := l.StartSweeper("@every 1h"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.StopSweeper()
}
