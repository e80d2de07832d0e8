/**
 * @description
 * Fixed-window request limiting keyed by client address, plus the helper that works out
 * which address a request came from behind proxies.
 *
 * Each key holds {count, resetAt}. A request with no record, or arriving after resetAt,
 * starts a new window with count=1. Otherwise it is rejected once count has reached the
 * maximum, and counted when it has not.
 *
 * @dependencies
 * - sync, time: shared window state.
 */
package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	DefaultMaxRequests = 50
	DefaultWindow      = 60 * time.Second
)

// Limiter decides whether one more request for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

type window struct {
	count   int
	resetAt time.Time
}

// WindowLimiter is the in-process fixed-window limiter. It is safe for concurrent use.
type WindowLimiter struct {
	max     int
	window  time.Duration
	now     func() time.Time
	mutex   sync.Mutex
	windows map[string]*window
}

// NewWindowLimiter returns a limiter allowing max requests per key per window. Non-positive
// arguments fall back to 50 requests per 60 seconds.
func NewWindowLimiter(max int, windowLength time.Duration) *WindowLimiter {
	if max <= 0 {
		max = DefaultMaxRequests
	}
	if windowLength <= 0 {
		windowLength = DefaultWindow
	}
	return &WindowLimiter{
		max:     max,
		window:  windowLength,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// WithClock swaps the time source. Tests use it to step past a window.
func (l *WindowLimiter) WithClock(now func() time.Time) *WindowLimiter {
	l.now = now
	return l
}

// Allow records a request for key and reports whether it is within the limit.
func (l *WindowLimiter) Allow(_ context.Context, key string) bool {
	now := l.now()

	l.mutex.Lock()
	defer l.mutex.Unlock()

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = &window{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if w.count >= l.max {
		return false
	}
	w.count++
	return true
}

// Prune drops windows that have already expired and returns how many were removed.
func (l *WindowLimiter) Prune() int {
	now := l.now()

	l.mutex.Lock()
	defer l.mutex.Unlock()

	removed := 0
	for key, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// ClientIP extracts the originating address of a request. The first X-Forwarded-For hop
// wins, then X-Real-IP, then the connection's remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
