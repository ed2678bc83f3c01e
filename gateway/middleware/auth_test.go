package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const testJWTSecret = "gateway-test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthDisabledPassesThrough(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: false})
	handler := auth.Middleware("lending:write")(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/lending/deposit", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testJWTSecret})
	handler := auth.Middleware()(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/lending/deposit", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rec.Code)
	}
}

func TestAuthAcceptsValidTokenWithScope(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{
		Enabled:    true,
		HMACSecret: testJWTSecret,
		Issuer:     "colend",
	})
	token := signToken(t, jwt.MapClaims{
		"iss":   "colend",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"scope": "lending:write bank:write",
	})
	handler := auth.Middleware("lending:write")(okHandler())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/lending/deposit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
}

func TestAuthRejectsMissingScope(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testJWTSecret})
	token := signToken(t, jwt.MapClaims{
		"exp":   time.Now().Add(time.Hour).Unix(),
		"scope": "bank:read",
	})
	handler := auth.Middleware("lending:write")(okHandler())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/lending/deposit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", rec.Code)
	}
}

func TestAuthRejectsWrongIssuer(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testJWTSecret, Issuer: "colend"})
	token := signToken(t, jwt.MapClaims{
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	handler := auth.Middleware()(okHandler())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/lending/deposit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rec.Code)
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{
		Enabled:    true,
		HMACSecret: testJWTSecret,
		ClockSkew:  time.Second,
	})
	token := signToken(t, jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	handler := auth.Middleware()(okHandler())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/lending/deposit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rec.Code)
	}
}
