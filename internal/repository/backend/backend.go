// Package backend opens the configured key-value store and moves its contents
// in and out of JSON dumps.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	dbfs "github.com/garnizeh/campusfix/db"
	"github.com/garnizeh/campusfix/internal/config"
	"github.com/garnizeh/campusfix/internal/db"
	"github.com/garnizeh/campusfix/internal/repository/memory"
	"github.com/garnizeh/campusfix/internal/repository/redisstore"
	"github.com/garnizeh/campusfix/internal/repository/sqlite"
	"github.com/garnizeh/campusfix/pkg/repository"
)

// Redis key prefixes. Rate limit counters live outside the store namespace so
// a full scan of the store only sees store entries.
const (
	Namespace          = "campusfix:"
	RateLimitNamespace = "campusfix-ratelimit:"
)

// Backend holds the store and the connections behind it. DB is set whenever the
// SQL database is needed, by the sqlite store or by the job queue.
type Backend struct {
	Store repository.Store
	DB    *db.DB
	Redis *redis.Client
}

// Open connects the backend selected by cfg.Store.Backend, applying migrations when
// cfg.MigrateOnStart is set.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{}

	if cfg.Store.Backend == "sqlite" || cfg.Jobs.Enabled {
		d, err := db.New(ctx, cfg.DatabasePath, logger)
		if err != nil {
			return nil, err
		}
		b.DB = d
		if cfg.MigrateOnStart {
			if err := db.Migrate(ctx, d, dbfs.Migrations); err != nil {
				_ = b.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
	}

	switch cfg.Store.Backend {
	case "redis":
		b.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		if err := b.Redis.Ping(ctx).Err(); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		b.Store = redisstore.New(b.Redis, Namespace, logger)
	case "memory":
		logger.Warn("using the in-memory store; data is lost on exit")
		b.Store = memory.New()
	case "sqlite", "":
		b.Store = sqlite.New(b.DB, logger)
	default:
		_ = b.Close()
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	return b, nil
}

func (b *Backend) Close() error {
	var errs []error
	if b.Redis != nil {
		errs = append(errs, b.Redis.Close())
	}
	if b.DB != nil {
		errs = append(errs, b.DB.Close())
	}
	return errors.Join(errs...)
}

const dumpFormat = 1

type dump struct {
	Format  int         `json:"format"`
	Entries []dumpEntry `json:"entries"`
}

type dumpEntry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Export writes every entry of s to w, ordered by key, and returns how many were written.
func Export(ctx context.Context, s repository.Store, w io.Writer) (int, error) {
	entries, err := s.ScanPrefix(ctx, "")
	if err != nil {
		return 0, err
	}
	d := dump{Format: dumpFormat, Entries: make([]dumpEntry, 0, len(entries))}
	for _, e := range entries {
		if !json.Valid(e.Value) {
			return 0, fmt.Errorf("export %q: value is not JSON", e.Key)
		}
		d.Entries = append(d.Entries, dumpEntry{Key: e.Key, Value: e.Value})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return 0, err
	}
	return len(d.Entries), nil
}

// Import writes every entry of a dump produced by Export into s, overwriting existing keys.
func Import(ctx context.Context, s repository.Store, r io.Reader) (int, error) {
	var d dump
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return 0, fmt.Errorf("decode dump: %w", err)
	}
	if d.Format != dumpFormat {
		return 0, fmt.Errorf("unsupported dump format %d", d.Format)
	}
	for i, e := range d.Entries {
		var buf bytes.Buffer
		if err := json.Compact(&buf, e.Value); err != nil {
			return i, fmt.Errorf("import %q: %w", e.Key, err)
		}
		if _, err := s.Set(ctx, e.Key, buf.Bytes()); err != nil {
			return i, err
		}
	}
	return len(d.Entries), nil
}
