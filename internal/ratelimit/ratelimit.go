// Package ratelimit throttles write requests per client IP.
package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Limiter tracks request timestamps per key within a sliding window.
type Limiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	max     int
	window  time.Duration
	now     func() time.Time

	trustProxy bool
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithTrustProxy keys requests on the first X-Forwarded-For hop instead of
// RemoteAddr. Enable it only behind a proxy that overwrites the header.
func WithTrustProxy(trust bool) Option {
	return func(l *Limiter) {
		l.trustProxy = trust
	}
}

// New creates a Limiter allowing max requests per window for each key.
// A max of 0 allows everything.
func New(max int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		entries: make(map[string][]time.Time),
		max:     max,
		window:  window,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether key is under its limit and, if so, records the
// request.
func (l *Limiter) Allow(key string) bool {
	if l.max <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	valid := prune(l.entries[key], now.Add(-l.window))
	if len(valid) >= l.max {
		l.entries[key] = valid
		return false
	}
	l.entries[key] = append(valid, now)
	return true
}

// Prune drops keys with no requests inside the window so idle clients do
// not accumulate.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.window)
	for key, ts := range l.entries {
		if valid := prune(ts, cutoff); len(valid) == 0 {
			delete(l.entries, key)
		} else {
			l.entries[key] = valid
		}
	}
}

// Keys returns the number of tracked keys.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func prune(ts []time.Time, cutoff time.Time) []time.Time {
	valid := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}

// Middleware rejects requests over the limit with 429. onReject, if set,
// is called for every rejected request.
func (l *Limiter) Middleware(onReject func(r *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(l.Key(r)) {
				if onReject != nil {
					onReject(r)
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", retryAfter(l.window))
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": "Too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(window time.Duration) string {
	secs := int(window.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// Key returns the client address a request is counted under.
func (l *Limiter) Key(r *http.Request) string {
	if l.trustProxy {
		if ip := ForwardedIP(r); ip != "" {
			return ip
		}
	}
	return ClientIP(r)
}

// ForwardedIP returns the first X-Forwarded-For hop, or "" when the header
// is absent.
func ForwardedIP(r *http.Request) string {
	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	return strings.TrimSpace(first)
}

// ClientIP returns the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
