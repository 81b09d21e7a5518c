package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/classfit/gym-class-reservation/internal/config"
)

func limitedEcho(cfg config.RateLimitConfig) *echo.Echo {
	e := echo.New()
	e.Use(NewRateLimiter(cfg, nil))
	e.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})
	return e
}

func ping(e *echo.Echo, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":12345"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterDisabledPassesThrough(t *testing.T) {
	e := limitedEcho(config.RateLimitConfig{Enabled: false})
	for i := 0; i < 50; i++ {
		if rec := ping(e, "10.0.0.1"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: code=%d", i, rec.Code)
		}
	}
}

func TestLocalFallbackEnforcesBurst(t *testing.T) {
	e := limitedEcho(config.RateLimitConfig{
		Enabled:    true,
		Prefix:     "rl:test",
		LocalRPS:   0.001, // effectively no refill during the test
		LocalBurst: 3,
	})
	for i := 0; i < 3; i++ {
		if rec := ping(e, "10.0.0.1"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: code=%d, want 200", i, rec.Code)
		}
	}
	rec := ping(e, "10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("code=%d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("429 must carry Retry-After")
	}
	// A different caller has their own bucket.
	if rec := ping(e, "10.0.0.2"); rec.Code != http.StatusOK {
		t.Fatalf("other ip: code=%d, want 200", rec.Code)
	}
}

func TestRateKeyBucketsPerIPAndRoute(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.9:4242"
	// A bearer token must not change the bucket: the limiter runs before
	// JWT auth, so identity is the client IP.
	req.Header.Set(echo.HeaderAuthorization, "Bearer whatever")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/ping")

	if got, want := rateKey("rl", c), "rl:10.0.0.9:GET /ping"; got != want {
		t.Fatalf("key=%q, want %q", got, want)
	}
}

func TestLocalBucketsRefill(t *testing.T) {
	lb := newLocalBuckets(50, 1)
	if !lb.allow("k") {
		t.Fatal("first call must pass")
	}
	if lb.allow("k") {
		t.Fatal("burst of 1 must block the second call")
	}
	time.Sleep(40 * time.Millisecond)
	if !lb.allow("k") {
		t.Fatal("bucket must refill at 50 rps")
	}
}
