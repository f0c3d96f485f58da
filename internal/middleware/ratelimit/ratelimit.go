// Package ratelimit implements a keyed fixed-window counter.
//
// The same Limiter guards HTTP routes per client IP and bounds the
// assistant's automatic writes per shop.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type Limiter struct {
	mu           sync.Mutex
	windows      map[string]*window
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
	now          func() time.Time
	hits         atomic.Int64

	limit           int
	window          time.Duration
	cleanupInterval time.Duration
}

type window struct {
	start time.Time
	count int
}

// Config holds limiter configuration. Limit events are allowed per Window.
type Config struct {
	Limit           int
	Window          time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig allows 60 requests per minute.
func DefaultConfig() Config {
	return Config{
		Limit:           60,
		Window:          time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.Limit <= 0 {
		config.Limit = def.Limit
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}

	rl := &Limiter{
		windows:         make(map[string]*window),
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
		limit:           config.Limit,
		window:          config.Window,
		cleanupInterval: config.CleanupInterval,
	}
	go rl.startCleanup()
	return rl
}

// current returns the live window of key, resetting it when it elapsed. Caller holds mu.
func (rl *Limiter) current(key string, now time.Time) *window {
	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= rl.window {
		w = &window{start: now}
		rl.windows[key] = w
	}
	return w
}

// Allow consumes one slot for key and reports whether it was available.
func (rl *Limiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w := rl.current(key, rl.now())
	if w.count >= rl.limit {
		rl.hits.Add(1)
		return false
	}
	w.count++
	return true
}

// Remaining returns how many slots key has left in its current window without consuming one.
func (rl *Limiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= rl.window {
		return rl.limit
	}
	return max(rl.limit-w.count, 0)
}

// Reserve consumes one slot for key like Allow and returns a release func that gives
// the slot back, for callers that only want successful actions to count.
// Releasing after the window rolled over does nothing.
func (rl *Limiter) Reserve(key string) (release func(), ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w := rl.current(key, rl.now())
	if w.count >= rl.limit {
		rl.hits.Add(1)
		return func() {}, false
	}
	w.count++

	var once sync.Once
	return func() {
		once.Do(func() {
			rl.mu.Lock()
			defer rl.mu.Unlock()
			if rl.windows[key] == w && w.count > 0 {
				w.count--
			}
		})
	}, true
}

// RetryAfter returns the time until the window of key resets.
func (rl *Limiter) RetryAfter(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok {
		return 0
	}
	return max(rl.window-rl.now().Sub(w.start), 0)
}

func (rl *Limiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries drops windows that already elapsed.
func (rl *Limiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, w := range rl.windows {
		if now.Sub(w.start) >= rl.window {
			delete(rl.windows, key)
		}
	}
}

// ActiveKeys returns the number of tracked keys.
func (rl *Limiter) ActiveKeys() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

func (rl *Limiter) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// Metrics for monitoring rate limit pressure.
type Metrics struct {
	TotalHits int64
	KeyCount  int64
}

func (rl *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalHits: rl.hits.Load(),
		KeyCount:  int64(rl.ActiveKeys()),
	}
}

// Middleware rejects requests whose key exhausted its window.
func (rl *Limiter) Middleware(extractKey func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractKey(r)
			if !rl.Allow(key) {
				secs := int(rl.RetryAfter(key).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				if onLimit != nil {
					onLimit(w, r)
				} else {
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
