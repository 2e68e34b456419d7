package engine

import (
	"sync"
	"time"
)

// warnLimiter allows at most one warning burst per key per window, so a
// flapping sensor cannot flood the log at every polling cycle.
type warnLimiter struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

func newWarnLimiter(window time.Duration) *warnLimiter {
	return &warnLimiter{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

func (l *warnLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.last[key]; ok && now.Sub(last) < l.window {
		return false
	}
	l.last[key] = now

	return true
}
