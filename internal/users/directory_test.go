package users_test

import (
	"context"
	"errors"
	"testing"

	"github.com/garnizeh/campusfix/internal/repository/memory"
	"github.com/garnizeh/campusfix/internal/users"
	"github.com/garnizeh/campusfix/pkg/models"
	"github.com/garnizeh/campusfix/pkg/repository"
)

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	d := users.New(memory.New(), nil)

	p := &models.UserProfile{ID: "u1", Email: "  Ana@Campus.EDU ", Name: "Ana", Role: models.RoleStudent}
	if err := d.CreateUser(ctx, p, "hash-1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Email != "ana@campus.edu" {
		t.Fatalf("email not normalized: %q", p.Email)
	}

	got, err := d.GetByEmail(ctx, "ANA@campus.edu")
	if err != nil || got.ID != "u1" || got.Name != "Ana" {
		t.Fatalf("get by email: %+v %v", got, err)
	}
	hash, err := d.PasswordHash(ctx, "u1")
	if err != nil || hash != "hash-1" {
		t.Fatalf("password hash: %q %v", hash, err)
	}

	dup := &models.UserProfile{ID: "u2", Email: "ana@campus.edu"}
	if err := d.CreateUser(ctx, dup, "hash-2"); !errors.Is(err, users.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if _, err := d.GetProfile(ctx, "u2"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("rejected signup must not store a profile, got %v", err)
	}

	if _, err := d.GetByEmail(ctx, "nobody@campus.edu"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDirectory_SetRole(t *testing.T) {
	ctx := context.Background()
	d := users.New(memory.New(), nil)
	if err := d.CreateUser(ctx, &models.UserProfile{ID: "u1", Email: "ana@campus.edu", Role: models.RoleStudent}, "h"); err != nil {
		t.Fatalf("create: %v", err)
	}

	p, err := d.SetRole(ctx, "u1", models.RoleStaff)
	if err != nil || p.Role != models.RoleStaff {
		t.Fatalf("set role: %+v %v", p, err)
	}
	if got, _ := d.GetByEmail(ctx, "ana@campus.edu"); got.Role != models.RoleStaff {
		t.Fatalf("role not persisted: %+v", got)
	}
	if p, err := d.SetRole(ctx, "u1", models.RoleStaff); err != nil || p.Role != models.RoleStaff {
		t.Fatalf("same role should be a no-op: %+v %v", p, err)
	}

	if _, err := d.SetRole(ctx, "u1", "janitor"); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := d.SetRole(ctx, "ghost", models.RoleAdmin); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
