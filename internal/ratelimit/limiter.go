// Package ratelimit implements the per-sender fixed-window throttle consulted
// before any expensive inbound processing.
package ratelimit

import (
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Limiter applies fixed-window limits over a Store.
type Limiter struct {
	store      Store
	now        func() time.Time
	maxCount   int
	window     time.Duration
	logger     *slog.Logger
	sweepStore *MemoryStore
	cron       *cron.Cron
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithStore overrides the default in-memory store.
func WithStore(store Store) Option {
	return func(l *Limiter) {
		if store != nil {
			l.store = store
		}
	}
}

// NewLimiter creates a limiter whose AllowDefault uses maxCount per window.
func NewLimiter(log *slog.Logger, maxCount int, window time.Duration, opts ...Option) *Limiter {
	if log == nil {
		log = slog.Default()
	}
	l := &Limiter{
		now:      time.Now,
		maxCount: maxCount,
		window:   window,
		logger:   log.With(slog.String("component", "ratelimit")),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.store == nil {
		l.store = NewMemoryStore()
	}
	if ms, ok := l.store.(*MemoryStore); ok {
		l.sweepStore = ms
	}
	return l
}

// Allow counts one request for key and reports whether it is within
// maxCount for the current window. A window resets on first contact or once
// now is strictly after its ResetAt.
func (l *Limiter) Allow(key string, maxCount int, window time.Duration) bool {
	key = strings.TrimSpace(key)
	if maxCount <= 0 || window <= 0 {
		return true
	}
	now := l.now()
	allowed := false
	l.store.Update(key, func(w *Window, exists bool) {
		if !exists || now.After(w.ResetAt) {
			resetAt := now.Add(window)
			if exists && !resetAt.After(w.ResetAt) {
				resetAt = w.ResetAt.Add(time.Nanosecond)
			}
			w.Count = 1
			w.ResetAt = resetAt
			allowed = true
			return
		}
		w.Count++
		allowed = w.Count <= maxCount
	})
	if !allowed {
		l.logger.Debug("rate limited", slog.String("key", key))
	}
	return allowed
}

// AllowDefault is Allow with the limits the limiter was created with.
func (l *Limiter) AllowDefault(key string) bool {
	return l.Allow(key, l.maxCount, l.window)
}

// StartSweeper schedules periodic removal of expired windows. It is a no-op
// for stores other than MemoryStore.
func (l *Limiter) StartSweeper(schedule string) error {
	if l.sweepStore == nil || strings.TrimSpace(schedule) == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if removed := l.sweepStore.Sweep(l.now()); removed > 0 {
			l.logger.Debug("swept expired windows", slog.Int("removed", removed))
		}
	}); err != nil {
		return err
	}
	c.Start()
	l.cron = c
	return nil
}

// StopSweeper stops the sweep schedule and waits for a running sweep.
func (l *Limiter) StopSweeper() {
	if l.cron == nil {
		return
	}
	<-l.cron.Stop().Done()
	l.cron = nil
}
