// Package ratelimit implements fixed-window admission control keyed by an
// arbitrary string (client ip, username, api-key hash).
//
// Known limitation: a burst straddling a window boundary can admit up to
// twice the limit in a short span. That is the price of the fixed window.
package ratelimit

import (
	"container/list"
	"sync"
	"time"
)

// DefaultMaxKeys bounds the number of tracked keys when none is configured.
const DefaultMaxKeys = 10000

type window struct {
	key       string
	count     int
	startedAt time.Time
	size      time.Duration
	elem      *list.Element
}

// Limiter is a process-local fixed-window counter table. The number of
// tracked keys never exceeds maxKeys: expired windows are pruned first, then
// the oldest-inserted keys are evicted (insertion order, not recency).
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	order   *list.List // insertion order of keys
	maxKeys int
	now     func() time.Time
}

func New(maxKeys int, now func() time.Time) *Limiter {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		windows: make(map[string]*window),
		order:   list.New(),
		maxKeys: maxKeys,
		now:     now,
	}
}

// CheckRateLimit counts one request for key and reports whether it is
// admitted: at most maxRequests per window. The window resets once
// windowSize has elapsed since it started.
func (l *Limiter) CheckRateLimit(key string, maxRequests int, windowSize time.Duration) bool {
	allowed, _ := l.Allow(key, maxRequests, windowSize)
	return allowed
}

// Allow is CheckRateLimit that also returns how long until the current
// window resets, for Retry-After style hints.
func (l *Limiter) Allow(key string, maxRequests int, windowSize time.Duration) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	w, ok := l.windows[key]
	if !ok {
		l.makeRoomLocked(now)
		w = &window{key: key, startedAt: now, size: windowSize}
		w.elem = l.order.PushBack(w)
		l.windows[key] = w
	} else if now.Sub(w.startedAt) >= windowSize {
		w.count = 0
		w.startedAt = now
		w.size = windowSize
	}

	w.count++
	retryAfter := w.startedAt.Add(windowSize).Sub(now)
	return w.count <= maxRequests, retryAfter
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Reset forgets key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.windows[key]; ok {
		l.removeLocked(w)
	}
}

// makeRoomLocked guarantees space for one more key.
func (l *Limiter) makeRoomLocked(now time.Time) {
	if len(l.windows) < l.maxKeys {
		return
	}

	for _, w := range l.windows {
		if now.Sub(w.startedAt) >= w.size {
			l.removeLocked(w)
		}
	}

	for len(l.windows) >= l.maxKeys {
		oldest := l.order.Front()
		if oldest == nil {
			return
		}
		l.removeLocked(oldest.Value.(*window))
	}
}

func (l *Limiter) removeLocked(w *window) {
	l.order.Remove(w.elem)
	delete(l.windows, w.key)
}
