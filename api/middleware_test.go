package api_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/garnizeh/campusfix/api"
	"github.com/garnizeh/campusfix/internal/ratelimit"
	"github.com/garnizeh/campusfix/pkg/models"
)

func TestLoggingMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})

	handler := api.LoggingMiddleware(next)
	req := httptest.NewRequest(http.MethodGet, "/log", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", res.StatusCode)
	}
	b, _ := io.ReadAll(res.Body)
	if string(b) != "ok" {
		t.Fatalf("unexpected body: %q", string(b))
	}
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := api.CORSMiddleware(next)

	// OPTIONS should return 204 and not call next
	reqOpt := httptest.NewRequest(http.MethodOptions, "/cors", nil)
	wOpt := httptest.NewRecorder()
	handler.ServeHTTP(wOpt, reqOpt)
	resOpt := wOpt.Result()
	defer resOpt.Body.Close()
	if resOpt.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 for OPTIONS, got %d", resOpt.StatusCode)
	}
	if got := resOpt.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected CORS header set, got %q", got)
	}

	reqGet := httptest.NewRequest(http.MethodGet, "/cors", nil)
	wGet := httptest.NewRecorder()
	handler.ServeHTTP(wGet, reqGet)
	resGet := wGet.Result()
	defer resGet.Body.Close()
	if resGet.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for GET, got %d", resGet.StatusCode)
	}
	if got := resGet.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PUT") {
		t.Fatalf("expected Allow-Methods to include PUT, got %q", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	pan := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := api.RecoveryMiddleware(pan)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	res := w.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 from panic recovery, got %d", res.StatusCode)
	}
	b, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(b), "Internal Server Error") {
		t.Fatalf("unexpected body for recovery: %s", string(b))
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	handler := api.RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if id := w.Header().Get("X-Request-ID"); len(id) != 36 {
		t.Fatalf("expected generated uuid, got %q", id)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if id := w.Header().Get("X-Request-ID"); id != "req-42" {
		t.Fatalf("expected caller id to be kept, got %q", id)
	}
}

func TestTracingMiddleware(t *testing.T) {
	called := false
	handler := api.TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/trace", nil))
	if !called || w.Code != http.StatusTeapot {
		t.Fatalf("expected pass-through, got called=%v status=%d", called, w.Code)
	}
}

func TestJWTAuthMiddlewareWithSecret(t *testing.T) {
	secret := "s3cr3t"
	var seen models.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = api.IdentityFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := api.JWTAuthMiddlewareWithSecret(secret)(next)

	sign := func(claims jwt.MapClaims, key string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		if err != nil {
			t.Fatalf("failed to sign token: %v", err)
		}
		return "Bearer " + s
	}
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{name: "MissingHeader", authHeader: "", wantStatus: http.StatusUnauthorized},
		{name: "EmptyBearer", authHeader: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "BadToken", authHeader: "Bearer bad.token.here", wantStatus: http.StatusUnauthorized},
		{name: "WrongSecret", authHeader: sign(jwt.MapClaims{"sub": "u1", "role": "staff", "exp": exp}, "other"), wantStatus: http.StatusUnauthorized},
		{name: "Expired", authHeader: sign(jwt.MapClaims{"sub": "u1", "role": "staff", "exp": time.Now().Add(-time.Hour).Unix()}, secret), wantStatus: http.StatusUnauthorized},
		{name: "MissingSubject", authHeader: sign(jwt.MapClaims{"role": "staff", "exp": exp}, secret), wantStatus: http.StatusUnauthorized},
		{name: "UnknownRole", authHeader: sign(jwt.MapClaims{"sub": "u1", "role": "root", "exp": exp}, secret), wantStatus: http.StatusUnauthorized},
		{name: "Valid", authHeader: sign(jwt.MapClaims{"sub": "u1", "role": "staff", "exp": exp}, secret), wantStatus: http.StatusOK},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/jwt", nil)
			if c.authHeader != "" {
				req.Header.Set("Authorization", c.authHeader)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Result().StatusCode != c.wantStatus {
				t.Fatalf("%s: want %d got %d", c.name, c.wantStatus, w.Result().StatusCode)
			}
		})
	}

	if seen.UserID != "u1" || seen.Role != models.RoleStaff {
		t.Fatalf("identity not propagated: %+v", seen)
	}
}

func TestRequireRole(t *testing.T) {
	handler := api.RequireRole(models.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name       string
		identity   *models.Identity
		wantStatus int
		wantError  string
	}{
		{name: "NoIdentity", wantStatus: http.StatusUnauthorized, wantError: `{"error":"unauthorized"}`},
		{name: "Staff", identity: &models.Identity{UserID: "s", Role: models.RoleStaff}, wantStatus: http.StatusForbidden, wantError: `{"error":"forbidden: role staff may not GET /"}`},
		{name: "Admin", identity: &models.Identity{UserID: "a", Role: models.RoleAdmin}, wantStatus: http.StatusOK},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if c.identity != nil {
				req = req.WithContext(context.WithValue(req.Context(), api.CtxIdentity, *c.identity))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != c.wantStatus {
				t.Fatalf("want %d got %d", c.wantStatus, w.Code)
			}
			if c.wantError != "" && strings.TrimSpace(w.Body.String()) != c.wantError {
				t.Fatalf("body = %s want %s", w.Body.String(), c.wantError)
			}
		})
	}
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis: connection refused")
}

func TestRateLimitMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusCreated) })
	withIdentity := func(uid string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/v1/issues", nil)
		return req.WithContext(context.WithValue(req.Context(), api.CtxIdentity, models.Identity{UserID: uid, Role: models.RoleStudent}))
	}

	limited := api.RateLimitMiddleware(ratelimit.NewMemory(1, time.Hour))(ok)
	w := httptest.NewRecorder()
	limited.ServeHTTP(w, withIdentity("u1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("first request: want 201 got %d", w.Code)
	}
	w = httptest.NewRecorder()
	limited.ServeHTTP(w, withIdentity("u1"))
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("second request: want 429 with Retry-After, got %d %v", w.Code, w.Header())
	}

	failOpen := api.RateLimitMiddleware(brokenLimiter{})(ok)
	w = httptest.NewRecorder()
	failOpen.ServeHTTP(w, withIdentity("u1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("limiter failure should not block, got %d", w.Code)
	}
}
