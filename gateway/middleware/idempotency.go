package middleware

import (
	"bytes"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const idempotencySchema = `
CREATE TABLE IF NOT EXISTS idempotency (
    key          TEXT PRIMARY KEY,
    status       INTEGER NOT NULL,
    content_type TEXT NOT NULL,
    body         BLOB NOT NULL,
    created_at   INTEGER NOT NULL
);`

// IdempotencyStore caches responses to mutating requests keyed by the
// Idempotency-Key header so retried submissions replay the first outcome
// instead of executing twice.
type IdempotencyStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func NewIdempotencyStore(path string, ttl time.Duration) (*IdempotencyStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("idempotency store path required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open idempotency store: %w", err)
	}
	// Single connection keeps sqlite writes serialized.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(idempotencySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init idempotency schema: %w", err)
	}
	return &IdempotencyStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *IdempotencyStore) Close() error {
	return s.db.Close()
}

type cachedResponse struct {
	status      int
	contentType string
	body        []byte
}

func (s *IdempotencyStore) lookup(key string) (*cachedResponse, error) {
	cutoff := s.now().Add(-s.ttl).Unix()
	row := s.db.QueryRow(
		`SELECT status, content_type, body FROM idempotency WHERE key = ? AND created_at >= ?`,
		key, cutoff,
	)
	cached := &cachedResponse{}
	err := row.Scan(&cached.status, &cached.contentType, &cached.body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cached, nil
}

func (s *IdempotencyStore) store(key string, resp *cachedResponse) error {
	_, err := s.db.Exec(
		`INSERT INTO idempotency (key, status, content_type, body, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO NOTHING`,
		key, resp.status, resp.contentType, resp.body, s.now().Unix(),
	)
	return err
}

// Prune removes entries older than the TTL.
func (s *IdempotencyStore) Prune() error {
	cutoff := s.now().Add(-s.ttl).Unix()
	_, err := s.db.Exec(`DELETE FROM idempotency WHERE created_at < ?`, cutoff)
	return err
}

// Middleware replays cached responses for requests carrying an
// Idempotency-Key header. Requests without the header pass through, as do
// GET and HEAD which are already safe to retry.
func (s *IdempotencyStore) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > 255 {
				http.Error(w, "idempotency key too long", http.StatusBadRequest)
				return
			}
			cached, err := s.lookup(key)
			if err != nil {
				slog.Error("idempotency lookup failed", "err", err)
				http.Error(w, "idempotency store unavailable", http.StatusServiceUnavailable)
				return
			}
			if cached != nil {
				if cached.contentType != "" {
					w.Header().Set("Content-Type", cached.contentType)
				}
				w.Header().Set("X-Idempotent-Replay", "true")
				w.WriteHeader(cached.status)
				w.Write(cached.body)
				return
			}
			recorder := &bufferingRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			// 5xx responses stay uncached so the client can retry for real.
			if recorder.status < http.StatusInternalServerError {
				entry := &cachedResponse{
					status:      recorder.status,
					contentType: recorder.Header().Get("Content-Type"),
					body:        recorder.buf.Bytes(),
				}
				if err := s.store(key, entry); err != nil {
					slog.Error("idempotency store failed", "err", err, "key", key)
				}
			}
		})
	}
}

// bufferingRecorder captures the response while still streaming it to the
// client.
type bufferingRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
	buf    bytes.Buffer
}

func (b *bufferingRecorder) WriteHeader(code int) {
	if b.wrote {
		return
	}
	b.wrote = true
	b.status = code
	b.ResponseWriter.WriteHeader(code)
}

func (b *bufferingRecorder) Write(p []byte) (int, error) {
	if !b.wrote {
		b.WriteHeader(http.StatusOK)
	}
	b.buf.Write(p)
	return b.ResponseWriter.Write(p)
}
