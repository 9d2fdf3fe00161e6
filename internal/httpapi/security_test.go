package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vendafacil/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "senha-errada"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 50, 200); got != 200 {
		t.Fatalf("expected capped limit 200, got %d", got)
	}
	if got := parsePositiveLimit("", 50, 200); got != 50 {
		t.Fatalf("expected fallback limit 50, got %d", got)
	}
	if got := parsePositiveLimit("invalid", 50, 200); got != 50 {
		t.Fatalf("expected fallback on invalid input, got %d", got)
	}
}
