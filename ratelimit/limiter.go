// Package ratelimit implements a bounded, fixed window request counter keyed
// by caller identifier.
package ratelimit

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const (
	DefaultWindow  = 60 * time.Second
	DefaultLimit   = 100
	DefaultMaxKeys = 100_000
)

// Config configures a Limiter. Zero values take the defaults.
type Config struct {
	Window  time.Duration
	Limit   int
	MaxKeys int
	Clock   func() time.Time
}

type window struct {
	key   string
	count int
	start time.Time
}

// Limiter admits at most Limit actions per identifier in each Window.
// A window restarts on the first call made more than Window after it
// started. At most MaxKeys windows are tracked; the least recently used
// window is dropped to make room for a new identifier.
type Limiter struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	maxKeys int
	now     func() time.Time

	entries map[string]*list.Element
	order   *list.List // front is most recently used
	evicted uint64
}

func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = DefaultMaxKeys
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Limiter{
		window:  cfg.Window,
		limit:   cfg.Limit,
		maxKeys: cfg.MaxKeys,
		now:     cfg.Clock,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Allow records one action for id and reports whether it is admitted.
func (l *Limiter) Allow(id string) bool {
	ok, _ := l.Reserve(id)
	return ok
}

// Reserve is Allow that also returns the time left in the current window.
// A rejected call does not change the counter.
func (l *Limiter) Reserve(id string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.touch(id, now)

	if now.Sub(w.start) > l.window {
		w.start = now
		w.count = 0
	}

	retryAfter := w.start.Add(l.window).Sub(now)
	if w.count >= l.limit {
		return false, retryAfter
	}
	w.count++
	return true, retryAfter
}

// touch returns the window for id, creating it and evicting the least
// recently used entry when at capacity. Caller holds l.mu.
func (l *Limiter) touch(id string, now time.Time) *window {
	if el, ok := l.entries[id]; ok {
		l.order.MoveToFront(el)
		return el.Value.(*window)
	}

	for len(l.entries) >= l.maxKeys {
		oldest := l.order.Back()
		if oldest == nil {
			break
		}
		l.order.Remove(oldest)
		delete(l.entries, oldest.Value.(*window).key)
		l.evicted++
	}

	w := &window{key: id, start: now}
	l.entries[id] = l.order.PushFront(w)
	return w
}

// Sweep drops windows that ended before now and returns how many were removed.
// A swept identifier starts a fresh window on its next call, exactly as
// it would have without the sweep.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for el := l.order.Back(); el != nil; {
		prev := el.Prev()
		w := el.Value.(*window)
		if now.Sub(w.start) > l.window {
			l.order.Remove(el)
			delete(l.entries, w.key)
			removed++
		}
		el = prev
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = l.window
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(l.now())
		}
	}
}

// Len returns the number of tracked identifiers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Evicted returns how many windows were dropped for capacity.
func (l *Limiter) Evicted() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.evicted
}

func (l *Limiter) Window() time.Duration { return l.window }
func (l *Limiter) Limit() int            { return l.limit }
