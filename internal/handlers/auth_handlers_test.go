package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)
	status, body := env.call(t, http.MethodGet, "/health", nil, "")
	if status != fiber.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health response %d %v", status, body)
	}
}

func TestAuthenticate(t *testing.T) {
	env := setupTestEnv(t)
	id := env.register(t, "hiker@peakpoint.io", "correct-horse")

	t.Run("session for valid credentials", func(t *testing.T) {
		status, body := env.call(t, http.MethodPost, "/api/users/authenticate", map[string]string{
			"email":    "hiker@peakpoint.io",
			"password": "correct-horse",
		}, "")
		if status != fiber.StatusCreated {
			t.Fatalf("expected 201, got %d: %v", status, body)
		}
		if body["success"] != true || body["id"] != id || body["email"] != "hiker@peakpoint.io" || body["name"] != "Test Hiker" {
			t.Fatalf("unexpected body: %v", body)
		}
		if token, _ := body["token"].(string); token == "" {
			t.Fatal("expected token")
		}
		if _, ok := body["tempToken"]; ok {
			t.Fatal("session response must not carry a tempToken")
		}
	})

	t.Run("email is case-insensitive", func(t *testing.T) {
		status, _ := env.call(t, http.MethodPost, "/api/users/authenticate", map[string]string{
			"email":    "Hiker@PeakPoint.io",
			"password": "correct-horse",
		}, "")
		if status != fiber.StatusCreated {
			t.Fatalf("expected 201, got %d", status)
		}
	})

	t.Run("unknown email and wrong password look the same", func(t *testing.T) {
		statusA, bodyA := env.call(t, http.MethodPost, "/api/users/authenticate", map[string]string{
			"email":    "nobody@peakpoint.io",
			"password": "correct-horse",
		}, "")
		statusB, bodyB := env.call(t, http.MethodPost, "/api/users/authenticate", map[string]string{
			"email":    "hiker@peakpoint.io",
			"password": "wrong-horse",
		}, "")
		if statusA != fiber.StatusUnauthorized || statusB != fiber.StatusUnauthorized {
			t.Fatalf("expected 401 for both, got %d and %d", statusA, statusB)
		}
		if bodyA["error"] != bodyB["error"] || bodyA["error"] != "invalid credentials" {
			t.Fatalf("expected identical messages, got %v and %v", bodyA, bodyB)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		status, _ := env.call(t, http.MethodPost, "/api/users/authenticate", map[string]string{"email": "hiker@peakpoint.io"}, "")
		if status != fiber.StatusBadRequest {
			t.Fatalf("expected 400, got %d", status)
		}
	})

	t.Run("session token opens protected routes", func(t *testing.T) {
		token := env.sessionToken(t, "hiker@peakpoint.io", "correct-horse")
		status, body := env.call(t, http.MethodGet, "/api/users/"+id, nil, token)
		if status != fiber.StatusOK || body["id"] != id {
			t.Fatalf("expected own profile, got %d %v", status, body)
		}
		if _, leaked := body["passwordHash"]; leaked {
			t.Fatal("password hash must not be serialised")
		}
	})

	t.Run("expired session is rejected", func(t *testing.T) {
		token := env.sessionToken(t, "hiker@peakpoint.io", "correct-horse")
		env.clock.Advance(61 * time.Minute)
		status, _ := env.call(t, http.MethodGet, "/api/users/"+id, nil, token)
		if status != fiber.StatusUnauthorized {
			t.Fatalf("expected 401 after expiry, got %d", status)
		}
	})
}

func TestAdminBootstrap(t *testing.T) {
	env := setupTestEnv(t)

	first := env.login(t, testAdminEmail, testAdminPassword)
	second := env.login(t, testAdminEmail, testAdminPassword)
	if first["id"] == nil || first["id"] != second["id"] {
		t.Fatalf("expected the same admin record on repeated logins, got %v and %v", first["id"], second["id"])
	}
	if first["name"] != "Admin User" {
		t.Fatalf("expected bootstrap name, got %v", first["name"])
	}

	status, users := env.callList(t, http.MethodGet, "/api/users", first["token"].(string))
	if status != fiber.StatusOK {
		t.Fatalf("expected admin to list users, got %d", status)
	}
	if len(users) != 1 {
		t.Fatalf("expected exactly one admin record, got %d", len(users))
	}

	t.Run("wrong admin password is rejected", func(t *testing.T) {
		status, _ := env.call(t, http.MethodPost, "/api/users/authenticate", map[string]string{
			"email":    testAdminEmail,
			"password": "not-it",
		}, "")
		if status != fiber.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", status)
		}
	})
}
