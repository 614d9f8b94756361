package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/garnizeh/campusfix/pkg/models"
)

// Repository interfaces for the key-value store and the domain components built on it.
// These are the public contracts consumers should depend on; concrete implementations
// live under internal/.

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("version conflict")
)

// StoreError wraps an opaque backend failure.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Entry is a stored value with its version. Versions start at 1 and grow on every write.
type Entry struct {
	Key     string
	Value   []byte
	Version int64
}

// Store is the key-value persistence capability the core runs on.
type Store interface {
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (Entry, error)
	// Set writes unconditionally and returns the new version.
	Set(ctx context.Context, key string, value []byte) (int64, error)
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key string) error
	// ScanPrefix returns all entries whose key starts with prefix, ordered by key.
	ScanPrefix(ctx context.Context, prefix string) ([]Entry, error)
	// CompareAndSwap writes value only if the stored version equals version
	// (0 meaning "absent") and returns ErrConflict otherwise.
	CompareAndSwap(ctx context.Context, key string, version int64, value []byte) (int64, error)
}

type IssueFilter struct {
	Status     models.IssueStatus
	Department string
}

type IssueLedger interface {
	Create(ctx context.Context, draft models.IssueDraft, reporter models.UserProfile) (*models.Issue, error)
	Get(ctx context.Context, id string) (*models.Issue, error)
	Update(ctx context.Context, id string, upd models.IssueUpdate) (*models.Issue, error)
	Reopen(ctx context.Context, id string) (*models.Issue, error)
	ListByReporter(ctx context.Context, userID string) ([]models.Issue, error)
	ListAll(ctx context.Context, f IssueFilter) ([]models.Issue, error)
	Upvote(ctx context.Context, id string) (*models.Issue, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type GamificationEngine interface {
	EnsureProfile(ctx context.Context, userID string) (*models.UserGamification, error)
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
	History(ctx context.Context, userID string) ([]models.PointsLogEntry, error)
}

type UserDirectory interface {
	CreateUser(ctx context.Context, p *models.UserProfile, passwordHash string) error
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	GetByEmail(ctx context.Context, email string) (*models.UserProfile, error)
	PasswordHash(ctx context.Context, userID string) (string, error)
	SetRole(ctx context.Context, userID string, role models.Role) (*models.UserProfile, error)
}
