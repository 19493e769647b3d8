package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestAllowUnderLimit(t *testing.T) {
	l := New(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
}

func TestDenyOverLimit(t *testing.T) {
	l := New(3, time.Hour)

	for i := 0; i < 3; i++ {
		l.Allow("1.2.3.4")
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("4th request should be denied")
	}
}

func TestZeroMaxAllowsAll(t *testing.T) {
	l := New(0, time.Hour)
	for i := 0; i < 100; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed with limiting disabled", i+1)
		}
	}
}

func TestDifferentKeysIndependent(t *testing.T) {
	l := New(2, time.Hour)

	l.Allow("1.1.1.1")
	l.Allow("1.1.1.1")

	if l.Allow("1.1.1.1") {
		t.Fatal("1.1.1.1 should be denied")
	}
	if !l.Allow("2.2.2.2") {
		t.Fatal("2.2.2.2 should be allowed")
	}
}

func TestWindowExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(2, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("1.2.3.4")
	l.Allow("1.2.3.4")
	if l.Allow("1.2.3.4") {
		t.Fatal("should be denied before window expires")
	}

	now = now.Add(61 * time.Second)
	if !l.Allow("1.2.3.4") {
		t.Fatal("should be allowed after window expires")
	}
}

func TestPrune(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(5, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("1.1.1.1")
	now = now.Add(30 * time.Second)
	l.Allow("2.2.2.2")
	now = now.Add(45 * time.Second)

	l.Prune()
	if l.Keys() != 1 {
		t.Fatalf("expected 1 key after prune, got %d", l.Keys())
	}
}

func TestMiddleware(t *testing.T) {
	l := New(1, time.Minute)
	rejected := 0
	h := l.Middleware(func(*http.Request) { rejected++ })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	req.RemoteAddr = "10.0.0.1:5000"

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Errorf("expected Retry-After 60, got %q", w.Header().Get("Retry-After"))
	}
	if rejected != 1 {
		t.Errorf("expected 1 rejection callback, got %d", rejected)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if got := ClientIP(req); got != "10.0.0.1" {
		t.Errorf("expected 10.0.0.1, got %q", got)
	}
	if got := ForwardedIP(req); got != "203.0.113.7" {
		t.Errorf("expected forwarded IP, got %q", got)
	}
}

func TestKeyIgnoresForwardedByDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")

	if got := New(1, time.Minute).Key(req); got != "10.0.0.1" {
		t.Errorf("expected RemoteAddr key, got %q", got)
	}
	if got := New(1, time.Minute, WithTrustProxy(true)).Key(req); got != "203.0.113.7" {
		t.Errorf("expected forwarded key behind trusted proxy, got %q", got)
	}

	req.Header.Del("X-Forwarded-For")
	if got := New(1, time.Minute, WithTrustProxy(true)).Key(req); got != "10.0.0.1" {
		t.Errorf("expected RemoteAddr fallback without header, got %q", got)
	}
}

func TestSpoofedForwardedForStillLimited(t *testing.T) {
	l := New(1, time.Minute)
	h := l.Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	accepted := 0
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		req.Header.Set("X-Forwarded-For", "10.0.0."+strconv.Itoa(i))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code == http.StatusOK {
			accepted++
		}
	}
	if accepted != 1 {
		t.Errorf("expected 1 accepted request, got %d", accepted)
	}
}
