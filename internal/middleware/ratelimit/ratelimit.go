// Package ratelimit caps requests per client with a fixed one-minute window.
package ratelimit

import (
	"math"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const window = time.Minute

type (
	// Config selects the budget and which methods it applies to.
	Config struct {
		RequestsPerMinute int
		CleanupInterval   time.Duration

		// Methods limits only these HTTP methods; empty means all.
		Methods []string
	}

	Metrics struct {
		TotalHits   int64 `json:"totalHits"`
		ClientCount int64 `json:"clientCount"`
	}

	// Limiter counts requests per client key inside windows that open on the
	// client's first request and last one minute.
	Limiter struct {
		mu      sync.Mutex
		windows map[string]*clientWindow
		now     func() time.Time
		hits    atomic.Int64

		budget  int
		methods []string

		stop     chan struct{}
		stopOnce sync.Once
	}

	clientWindow struct {
		start time.Time
		count int
	}
)

// DefaultConfig allows 60 requests per minute and sweeps every 5 minutes.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   5 * time.Minute,
	}
}

// NewLimiter starts a limiter and its sweeper; call Stop to release it.
func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}

	rl := &Limiter{
		windows: make(map[string]*clientWindow),
		now:     time.Now,
		budget:  config.RequestsPerMinute,
		methods: slices.Clone(config.Methods),
		stop:    make(chan struct{}),
	}
	go rl.sweep(config.CleanupInterval)
	return rl
}

// Allow reports whether the client still has budget in its current window.
func (rl *Limiter) Allow(client string) bool {
	ok, _ := rl.Take(client)
	return ok
}

// Take spends one request from client's window. When the budget is spent it
// returns false and the time until the window closes.
func (rl *Limiter) Take(client string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[client]
	if !ok || now.Sub(w.start) >= window {
		rl.windows[client] = &clientWindow{start: now, count: 1}
		return true, 0
	}
	if w.count >= rl.budget {
		rl.hits.Add(1)
		return false, w.start.Add(window).Sub(now)
	}
	w.count++
	return true, 0
}

func (rl *Limiter) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stop:
			return
		}
	}
}

// cleanupStaleEntries drops windows that have already closed.
func (rl *Limiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for client, w := range rl.windows {
		if now.Sub(w.start) >= window {
			delete(rl.windows, client)
		}
	}
}

func (rl *Limiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *Limiter) GetMetrics() Metrics {
	rl.mu.Lock()
	clients := int64(len(rl.windows))
	rl.mu.Unlock()
	return Metrics{TotalHits: rl.hits.Load(), ClientCount: clients}
}

// Middleware limits the configured methods per client key. Refused requests
// carry Retry-After in whole seconds and go to onLimit, or a plain 429 when
// onLimit is nil.
func (rl *Limiter) Middleware(clientKey func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(rl.methods) > 0 && !slices.Contains(rl.methods, r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ok, wait := rl.Take(clientKey(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", retryAfterSeconds(wait))
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		})
	}
}

func retryAfterSeconds(d time.Duration) string {
	s := int64(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return strconv.FormatInt(s, 10)
}
