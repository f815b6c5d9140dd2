package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/peakpoint/backend/pkg/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	restore := logger.Replace(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestRequestLogger(t *testing.T) {
	logs := observeLogs(t)

	app := fiber.New()
	app.Use(RequestLogger())
	app.Get("/ok", func(c *fiber.Ctx) error {
		c.Locals("userID", "user-123")
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ok", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}

	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one http_request entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["user_id"] != "user-123" {
		t.Fatalf("expected user_id field, got %v", fields)
	}
}

func TestSecurityLogger(t *testing.T) {
	logs := observeLogs(t)

	app := fiber.New()
	app.Use(SecurityLogger())
	app.Get("/denied", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusForbidden) })
	app.Get("/fine", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	_, _ = app.Test(httptest.NewRequest(http.MethodGet, "/denied", nil))
	_, _ = app.Test(httptest.NewRequest(http.MethodGet, "/fine", nil))
	_, _ = app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))

	if got := logs.FilterMessage("access_denied_unauthenticated").Len(); got != 1 {
		t.Fatalf("expected one access_denied entry, got %d", got)
	}
	if got := logs.FilterMessage("not_found_unauthenticated").Len(); got != 1 {
		t.Fatalf("expected one not_found entry, got %d", got)
	}
	if logs.Len() != 2 {
		t.Fatalf("expected only two entries, got %d", logs.Len())
	}
}
