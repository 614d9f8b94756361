// Package users stores user profiles and password hashes in the key-value store.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/garnizeh/campusfix/pkg/models"
	"github.com/garnizeh/campusfix/pkg/repository"
)

var _ repository.UserDirectory = (*Directory)(nil)

// ErrEmailTaken is returned when signing up with an email already registered.
var ErrEmailTaken = errors.New("email already registered")

const (
	userPrefix       = "user:"
	emailPrefix      = "user-email:"
	credentialPrefix = "credential:"
)

type credential struct {
	PasswordHash string `json:"passwordHash"`
}

type Directory struct {
	store  repository.Store
	logger *slog.Logger
}

func New(store repository.Store, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{store: store, logger: logger}
}

// NormalizeEmail lowercases and trims an address for use as a lookup key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser claims the email index first so two concurrent signups for the
// same address cannot both succeed.
func (d *Directory) CreateUser(ctx context.Context, p *models.UserProfile, passwordHash string) error {
	p.Email = NormalizeEmail(p.Email)
	idx, err := json.Marshal(p.ID)
	if err != nil {
		return err
	}
	if _, err := d.store.CompareAndSwap(ctx, emailPrefix+p.Email, 0, idx); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrEmailTaken
		}
		return err
	}

	if err := repository.SetJSON(ctx, d.store, credentialPrefix+p.ID, credential{PasswordHash: passwordHash}); err != nil {
		return err
	}
	if err := repository.SetJSON(ctx, d.store, userPrefix+p.ID, p); err != nil {
		return err
	}
	d.logger.Info("user created", "user_id", p.ID, "role", p.Role)
	return nil
}

func (d *Directory) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	return repository.GetJSON[models.UserProfile](ctx, d.store, userPrefix+userID)
}

func (d *Directory) GetByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	id, err := repository.GetJSON[string](ctx, d.store, emailPrefix+NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	p, err := d.GetProfile(ctx, *id)
	if err != nil {
		return nil, fmt.Errorf("profile for %s: %w", email, err)
	}
	return p, nil
}

func (d *Directory) PasswordHash(ctx context.Context, userID string) (string, error) {
	c, err := repository.GetJSON[credential](ctx, d.store, credentialPrefix+userID)
	if err != nil {
		return "", err
	}
	return c.PasswordHash, nil
}

// SetRole changes the role of an existing user. Tokens already issued keep the
// old role until they expire.
func (d *Directory) SetRole(ctx context.Context, userID string, role models.Role) (*models.UserProfile, error) {
	if !role.Valid() {
		return nil, &models.ValidationError{Fields: []string{"role"}}
	}
	p, err := repository.UpdateJSON(ctx, d.store, userPrefix+userID, func(cur *models.UserProfile) (*models.UserProfile, error) {
		if cur == nil {
			return nil, repository.ErrNotFound
		}
		if cur.Role == role {
			return nil, repository.ErrNoChange
		}
		cur.Role = role
		cur.UpdatedAt = time.Now().UTC()
		return cur, nil
	})
	if err != nil {
		return nil, err
	}
	d.logger.Info("user role changed", "user_id", userID, "role", role)
	return p, nil
}
