package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type limiterStub struct {
	count   int
	retry   int
	err     error
	subject string
}

func (l *limiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	l.subject = subject
	return l.count, l.retry, l.err
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestPublicRateLimitMiddleware_UnderLimitPasses(t *testing.T) {
	limiter := &limiterStub{count: 3}
	handler := PublicRateLimitMiddleware(limiter, "public", 60, time.Minute)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/convert", nil)
	req.RemoteAddr = "203.0.113.9:44321"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if limiter.subject != "203.0.113.9" {
		t.Fatalf("expected client IP as subject, got %q", limiter.subject)
	}
}

func TestPublicRateLimitMiddleware_OverLimitRejects(t *testing.T) {
	limiter := &limiterStub{count: 61, retry: 17}
	handler := PublicRateLimitMiddleware(limiter, "public", 60, time.Minute)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/convert", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "17" {
		t.Fatalf("expected Retry-After header, got %q", rec.Header().Get("Retry-After"))
	}
}

func TestPublicRateLimitMiddleware_LimiterOutageFailsOpen(t *testing.T) {
	limiter := &limiterStub{err: errors.New("redis down")}
	handler := PublicRateLimitMiddleware(limiter, "public", 60, time.Minute)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/convert", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected fail-open 200, got %d", rec.Code)
	}
}

func TestPublicRateLimitMiddleware_NilLimiterDisabled(t *testing.T) {
	handler := PublicRateLimitMiddleware(nil, "public", 60, time.Minute)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/convert", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without a limiter, got %d", rec.Code)
	}
}

func TestPublicRateLimitMiddleware_ForwardedForWins(t *testing.T) {
	limiter := &limiterStub{count: 1}
	handler := PublicRateLimitMiddleware(limiter, "public", 60, time.Minute)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/convert", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if limiter.subject != "198.51.100.7" {
		t.Fatalf("expected first forwarded address, got %q", limiter.subject)
	}
}

func TestInternalAPIKeyMiddleware(t *testing.T) {
	handler := InternalAPIKeyMiddleware("secret")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/internal/rates/invalidate", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/internal/rates/invalidate", nil)
	req.Header.Set("X-Internal-Api-Key", "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with wrong key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/internal/rates/invalidate", nil)
	req.Header.Set("X-Internal-Api-Key", "secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with correct key, got %d", rec.Code)
	}
}

func TestInternalAPIKeyMiddleware_EmptyConfiguredKeyAlwaysRejects(t *testing.T) {
	handler := InternalAPIKeyMiddleware("")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/internal/rates/invalidate", nil)
	req.Header.Set("X-Internal-Api-Key", "")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when no key is configured, got %d", rec.Code)
	}
}
