package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimiterEnforcesBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"lending": {RequestsPerMinute: 1, Burst: 1},
	})
	handler := limiter.Middleware("lending")(okHandler())

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/lending/deposit", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(first, req)
	if first.Code != http.StatusOK {
		t.Fatalf("first request status %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/lending/deposit", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(second, req)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status %d, want 429", second.Code)
	}
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"lending": {RequestsPerMinute: 1, Burst: 1},
	})
	handler := limiter.Middleware("lending")(okHandler())

	for i, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/lending/deposit", nil)
		req.RemoteAddr = addr
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("client %d status %d, want 200", i, rec.Code)
		}
	}
}

func TestRateLimiterUnknownNamePassesThrough(t *testing.T) {
	limiter := NewRateLimiter(nil)
	handler := limiter.Middleware("unconfigured")(okHandler())
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/lending/deposit", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status %d, want 200", i, rec.Code)
		}
	}
}

func TestClientIDPrefersForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientID(req); got != "203.0.113.7" {
		t.Fatalf("clientID = %q, want forwarded address", got)
	}
	req.Header.Set("X-Real-IP", "198.51.100.4")
	if got := clientID(req); got != "198.51.100.4" {
		t.Fatalf("clientID = %q, want X-Real-IP", got)
	}
}
