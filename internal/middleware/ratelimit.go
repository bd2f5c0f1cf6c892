package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Limiter implements a fixed-window per-minute limit per client key
// (usually IP). A zero or negative perMin disables limiting.
type Limiter struct {
	perMin int

	mu sync.Mutex
	m  map[string]*bucket
}

type bucket struct {
	count int
	reset time.Time
}

func New(perMin int) *Limiter {
	return &Limiter{
		perMin: perMin,
		m:      make(map[string]*bucket),
	}
}

// Allow reports whether a request for the given key is allowed right now.
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.perMin <= 0 {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.m[key]
	if b == nil || now.After(b.reset) {
		b = &bucket{count: 0, reset: now.Add(time.Minute)}
		l.m[key] = b
	}
	if b.count >= l.perMin {
		return false
	}
	b.count++
	return true
}

// Middleware wraps an http.Handler with this limiter.
func (l *Limiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(KeyFromRequest(r)) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte("rate limit"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AllowWS checks allowance for a WebSocket upgrade request (use before
// Upgrader.Upgrade so rejected clients never cost a socket).
func (l *Limiter) AllowWS(r *http.Request) bool {
	return l.Allow(KeyFromRequest(r))
}

// StartJanitor prunes buckets whose window has passed, so a churn of
// one-shot clients does not grow the map without bound.
func (l *Limiter) StartJanitor(ctx context.Context) {
	if l == nil || l.perMin <= 0 {
		return
	}
	t := time.NewTicker(time.Minute)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				l.sweep(now)
			}
		}
	}()
}

func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	for k, b := range l.m {
		if now.After(b.reset) {
			delete(l.m, k)
		}
	}
	l.mu.Unlock()
}

// KeyFromRequest extracts a best-effort client key from the request.
// Prefers the first X-Forwarded-For entry (if present), else RemoteAddr host.
func KeyFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
