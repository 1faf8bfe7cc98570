package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// askFrom builds a POST /api/ask request attributed to the given remote address.
func askFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/ask", nil)
	req.RemoteAddr = addr
	return req
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(100, 5, slog.Default())
	defer stop()
	h := rl.middleware(okHandler)

	for i := range 5 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, askFrom("127.0.0.1:12345"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestRateLimit_BlocksOverLimit(t *testing.T) {
	t.Parallel()

	// With burst 2 and a negligible refill rate the third request from the
	// same address has no token available.
	rl, stop := newRateLimiter(0.001, 2, slog.Default())
	defer stop()
	h := rl.middleware(okHandler)

	rejected := false
	for range 10 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, askFrom("10.0.0.1:9999"))
		if w.Code == http.StatusTooManyRequests {
			rejected = true
			break
		}
	}
	if !rejected {
		t.Error("expected at least one 429 response, got none")
	}
}

func TestRateLimit_RetryAfterHeader(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 1, slog.Default())
	defer stop()
	h := rl.middleware(okHandler)

	// The first request spends the only burst token, so the second must be
	// rejected and carry a Retry-After hint.
	h.ServeHTTP(httptest.NewRecorder(), askFrom("10.0.0.2:1234"))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, askFrom("10.0.0.2:1234"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429 response")
	}
}

func TestRateLimit_PerIPIsolation(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 1, slog.Default())
	defer stop()
	h := rl.middleware(okHandler)

	for range 5 {
		h.ServeHTTP(httptest.NewRecorder(), askFrom("192.168.1.1:1111"))
	}

	// A different address keeps its own bucket and is still allowed.
	w := httptest.NewRecorder()
	h.ServeHTTP(w, askFrom("192.168.1.2:2222"))
	if w.Code != http.StatusOK {
		t.Errorf("second address: expected 200, got %d", w.Code)
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remoteAddr string
		want       string
	}{
		{"127.0.0.1:54321", "127.0.0.1"},
		{"10.0.0.1:80", "10.0.0.1"},
		{"::1:8080", "::1"},
		{"noport", "noport"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remoteAddr
		if got := clientIP(req); got != tc.want {
			t.Errorf("clientIP(%q) = %q, want %q", tc.remoteAddr, got, tc.want)
		}
	}
}
