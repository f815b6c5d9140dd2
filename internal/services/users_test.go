package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/peakpoint/backend/internal/services"
)

func TestUserService_Register(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.users.Register(ctx, services.RegisterInput{
		FirstName: " Reinhold ",
		LastName:  "Messner",
		Email:     "Reinhold@Example.com",
		Password:  "everest-1978",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.Email != "reinhold@example.com" || user.FirstName != "Reinhold" {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.PasswordHash == "everest-1978" {
		t.Fatal("password must be hashed")
	}

	t.Run("duplicate email conflicts", func(t *testing.T) {
		_, err := f.users.Register(ctx, services.RegisterInput{Email: "REINHOLD@example.com", Password: "x"})
		if !errors.Is(err, services.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("admin email is reserved", func(t *testing.T) {
		_, err := f.users.Register(ctx, services.RegisterInput{Email: "Admin@PeakPoint.io", Password: "x"})
		if !errors.Is(err, services.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("registered user can authenticate", func(t *testing.T) {
		if _, err := f.auth.Authenticate(ctx, "reinhold@example.com", "everest-1978"); err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
	})
}

func TestUserService_Access(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.createUser(t, "alice@example.com", "pw")
	bob := f.createUser(t, "bob@example.com", "pw")

	asAlice := services.Actor{UserID: alice.ID}
	asAdmin := services.Actor{UserID: uuid.New(), IsAdmin: true}

	if _, err := f.users.Get(ctx, asAlice, alice.ID); err != nil {
		t.Fatalf("expected self access, got %v", err)
	}
	if _, err := f.users.Get(ctx, asAlice, bob.ID); !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.users.Get(ctx, asAdmin, bob.ID); err != nil {
		t.Fatalf("expected admin access, got %v", err)
	}
	if _, err := f.users.Get(ctx, asAdmin, uuid.New()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.users.List(ctx, asAlice); !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for list, got %v", err)
	}

	if err := f.users.Delete(ctx, asAlice, bob.ID); !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := f.users.Delete(ctx, asAlice, alice.ID); err != nil {
		t.Fatalf("expected self delete, got %v", err)
	}

	users, err := f.users.List(ctx, asAdmin)
	if err != nil || len(users) != 1 {
		t.Fatalf("expected one remaining user, got %d (%v)", len(users), err)
	}

	if _, err := f.users.DeleteAll(ctx, asAlice); !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	deleted, err := f.users.DeleteAll(ctx, asAdmin)
	if err != nil || deleted != 1 {
		t.Fatalf("expected one deletion, got %d (%v)", deleted, err)
	}
}
