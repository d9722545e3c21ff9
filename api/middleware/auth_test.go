package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgauth "github.com/angelmondragon/loyalty-backend/pkg/auth"
	"github.com/angelmondragon/loyalty-backend/pkg/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "loyalty-backend",
		ExpirationMinutes: 15,
	}
}

func TestAuthSeedsAccountContext(t *testing.T) {
	cfg := testJWTConfig()
	accountID := uuid.New()
	token, err := pkgauth.MintAccessToken(cfg, time.Now(), accountID)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	var seen string
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AccountIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/loyalty/summary", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if seen != accountID.String() {
		t.Fatalf("expected account %s in context, got %q", accountID, seen)
	}
}

func TestAuthRejectsBadCredentials(t *testing.T) {
	cfg := testJWTConfig()
	expired, err := pkgauth.MintAccessToken(cfg, time.Now().Add(-time.Hour), uuid.New())
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer not-a-jwt"},
		{"expired token", "Bearer " + expired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/loyalty/summary", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)

			if resp.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401 got %d", resp.Code)
			}
			if called {
				t.Fatalf("handler should not be reached")
			}
		})
	}
}

func TestInternalAuth(t *testing.T) {
	cfg := config.InternalAPIConfig{SharedSecret: "s3cret"}

	handler := InternalAuth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	ok := httptest.NewRequest(http.MethodPost, "/api/internal/v1/earn", nil)
	ok.Header.Set("X-Internal-Secret", "s3cret")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, ok)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", resp.Code)
	}

	bad := httptest.NewRequest(http.MethodPost, "/api/internal/v1/earn", nil)
	bad.Header.Set("X-Internal-Secret", "wrong")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, bad)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}

	disabled := InternalAuth(config.InternalAPIConfig{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	resp = httptest.NewRecorder()
	disabled.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/internal/v1/earn", nil))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when internal api disabled, got %d", resp.Code)
	}
}
