package trust

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestMiddlewareDeniesUnknownOrigin(t *testing.T) {
	t.Parallel()

	cache := New(nil, &fakeOriginSource{}, Options{
		TTL: time.Minute,
		Now: (&fakeClock{now: time.Unix(0, 0)}).Now,
	})
	_ = cache.Refresh(context.Background())

	e := echo.New()
	e.Use(Middleware(cache))
	e.GET("/chat", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	req.Header.Set(echo.HeaderOrigin, "https://unknown.example.com")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestMiddlewareAllowsApprovedAndAbsentOrigin(t *testing.T) {
	t.Parallel()

	cache := New(nil, &fakeOriginSource{}, Options{
		TTL:         time.Minute,
		BaseOrigins: []string{"https://example.com"},
		Now:         (&fakeClock{now: time.Unix(0, 0)}).Now,
	})

	e := echo.New()
	e.Use(Middleware(cache))
	e.GET("/chat", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	req.Header.Set(echo.HeaderOrigin, "https://example.com")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for approved origin, got %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "https://example.com" {
		t.Fatalf("expected allow-origin header, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/chat", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected absent origin to pass the gate, got %d", rec.Code)
	}
}
