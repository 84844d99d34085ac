package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests a caller may make per Window.
	Max int
	// Window is the sliding window length.
	Window time.Duration
	// KeyFunc identifies the caller. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
	// Now replaces time.Now in tests.
	Now func() time.Time
}

// window holds request counts of the current and the previous fixed window.
// The effective count weights the previous window by how much of it still
// overlaps the sliding window ending now.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

// Limiter is a per-key sliding window rate limiter.
type Limiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	windows map[string]*window
}

// NewLimiter creates a Limiter. Zero Max or Window disable limiting.
func NewLimiter(cfg RateLimitConfig) *Limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{cfg: cfg, windows: make(map[string]*window)}
}

// Allow records a request for key and reports whether it is within the
// limit, how many requests remain and when the current window ends.
func (l *Limiter) Allow(key string) (ok bool, remaining int, reset time.Time) {
	now := l.cfg.Now()
	if l.cfg.Max <= 0 || l.cfg.Window <= 0 {
		return true, math.MaxInt32, now
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.cfg.Window)
	w, found := l.windows[key]
	switch {
	case !found:
		w = &window{start: start}
		l.windows[key] = w
	case !w.start.Equal(start):
		if start.Sub(w.start) == l.cfg.Window {
			w.prev = w.curr
		} else {
			w.prev = 0
		}
		w.curr = 0
		w.start = start
	}

	reset = w.start.Add(l.cfg.Window)
	overlap := 1 - float64(now.Sub(w.start))/float64(l.cfg.Window)
	count := w.prev*overlap + w.curr
	if count >= float64(l.cfg.Max) {
		return false, 0, reset
	}

	w.curr++
	remaining = l.cfg.Max - int(math.Ceil(count+1))
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining, reset
}

// Exceeded reports whether key has used up its limit, without recording a
// request.
func (l *Limiter) Exceeded(key string) bool {
	if l.cfg.Max <= 0 || l.cfg.Window <= 0 {
		return false
	}
	now := l.cfg.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, found := l.windows[key]
	if !found {
		return false
	}
	start := now.Truncate(l.cfg.Window)
	prev, curr := w.prev, w.curr
	if !w.start.Equal(start) {
		if start.Sub(w.start) == l.cfg.Window {
			prev = curr
		} else {
			prev = 0
		}
		curr = 0
	}
	overlap := 1 - float64(now.Sub(start))/float64(l.cfg.Window)
	return prev*overlap+curr >= float64(l.cfg.Max)
}

// KeyFor returns the limiter key of r.
func (l *Limiter) KeyFor(r *http.Request) string {
	return l.cfg.KeyFunc(r)
}

// Sweep drops keys idle for more than a full window.
func (l *Limiter) Sweep() {
	now := l.cfg.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if now.Sub(w.start) >= 2*l.cfg.Window {
			delete(l.windows, key)
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// RunSweeper calls Sweep every two windows until ctx is done.
func (l *Limiter) RunSweeper(ctx context.Context) {
	if l.cfg.Window <= 0 {
		return
	}
	ticker := time.NewTicker(2 * l.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Middleware enforces the limit. Every response carries X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset; rejected requests get 429
// with Retry-After.
func (l *Limiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, remaining, reset := l.Allow(l.cfg.KeyFunc(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !ok {
				wait := reset.Sub(l.cfg.Now())
				if wait < 0 {
					wait = 0
				}
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit returns a rate limiting middleware whose idle keys are swept
// until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := NewLimiter(cfg)
	go l.RunSweeper(ctx)
	return l.Middleware()
}

// ClientIP returns the host part of RemoteAddr. Client supplied headers are
// ignored, so a caller cannot choose its own rate limit bucket.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ForwardedClientIP returns the last X-Forwarded-For entry, which is the one
// appended by the reverse proxy directly in front of the server. Use it only
// behind exactly one trusted proxy. Without the header it falls back to
// ClientIP.
func ForwardedClientIP(r *http.Request) string {
	xff := r.Header.Values("X-Forwarded-For")
	if len(xff) == 0 {
		return ClientIP(r)
	}
	last := xff[len(xff)-1]
	if i := strings.LastIndexByte(last, ','); i >= 0 {
		last = last[i+1:]
	}
	if ip := strings.TrimSpace(last); ip != "" {
		return ip
	}
	return ClientIP(r)
}
