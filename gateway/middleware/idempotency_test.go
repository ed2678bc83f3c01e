package middleware

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func newTestStore(t *testing.T, ttl time.Duration) *IdempotencyStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "idempotency.db")
	store, err := NewIdempotencyStore(path, ttl)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func countingHandler(calls *atomic.Int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"call":` + strconv.FormatInt(n, 10) + `}`))
	})
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	store := newTestStore(t, time.Hour)
	var calls atomic.Int64
	handler := store.Middleware()(countingHandler(&calls))

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/lending/deposit", nil)
	req.Header.Set("Idempotency-Key", "abc-123")
	handler.ServeHTTP(first, req)

	second := httptest.NewRecorder()
	retry := httptest.NewRequest(http.MethodPost, "/v1/lending/deposit", nil)
	retry.Header.Set("Idempotency-Key", "abc-123")
	handler.ServeHTTP(second, retry)

	if calls.Load() != 1 {
		t.Fatalf("handler ran %d times, want 1", calls.Load())
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("replay status %d, want %d", second.Code, http.StatusCreated)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replay body %q differs from original %q", second.Body.String(), first.Body.String())
	}
	if second.Header().Get("X-Idempotent-Replay") != "true" {
		t.Fatalf("missing replay marker header")
	}
}

func TestIdempotencyDistinctKeysExecuteSeparately(t *testing.T) {
	store := newTestStore(t, time.Hour)
	var calls atomic.Int64
	handler := store.Middleware()(countingHandler(&calls))

	for _, key := range []string{"key-a", "key-b"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/lending/deposit", nil)
		req.Header.Set("Idempotency-Key", key)
		handler.ServeHTTP(rec, req)
	}
	if calls.Load() != 2 {
		t.Fatalf("handler ran %d times, want 2", calls.Load())
	}
}

func TestIdempotencyIgnoresRequestsWithoutKey(t *testing.T) {
	store := newTestStore(t, time.Hour)
	var calls atomic.Int64
	handler := store.Middleware()(countingHandler(&calls))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/lending/deposit", nil))
	}
	if calls.Load() != 2 {
		t.Fatalf("handler ran %d times, want 2", calls.Load())
	}
}

func TestIdempotencySkipsServerErrors(t *testing.T) {
	store := newTestStore(t, time.Hour)
	var calls atomic.Int64
	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusBadGateway)
	})
	handler := store.Middleware()(failing)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/lending/deposit", nil)
		req.Header.Set("Idempotency-Key", "retry-me")
		handler.ServeHTTP(rec, req)
	}
	if calls.Load() != 2 {
		t.Fatalf("server errors should not be cached, handler ran %d times", calls.Load())
	}
}

func TestIdempotencyExpiresEntries(t *testing.T) {
	store := newTestStore(t, time.Minute)
	base := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return base }

	var calls atomic.Int64
	handler := store.Middleware()(countingHandler(&calls))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/lending/deposit", nil)
	req.Header.Set("Idempotency-Key", "stale")
	handler.ServeHTTP(rec, req)

	store.now = func() time.Time { return base.Add(2 * time.Minute) }
	if err := store.Prune(); err != nil {
		t.Fatalf("prune: %v", err)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/lending/deposit", nil)
	req.Header.Set("Idempotency-Key", "stale")
	handler.ServeHTTP(rec, req)

	if calls.Load() != 2 {
		t.Fatalf("expired key should re-execute, handler ran %d times", calls.Load())
	}
}
