package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/garnizeh/campusfix/internal/db"
	"github.com/garnizeh/campusfix/pkg/repository"
)

// Ensure Store implements the public interface.
var _ repository.Store = (*Store)(nil)

// Store keeps key-value entries in the kv_store table created by db/migrations.
type Store struct {
	conn   *db.DB
	logger *slog.Logger
}

func New(conn *db.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{conn: conn, logger: logger}
}

func now() int64 {
	return time.Now().UTC().Unix()
}

func (s *Store) Get(ctx context.Context, key string) (repository.Entry, error) {
	var (
		value   []byte
		version int64
	)
	row := s.conn.QueryRow(ctx, `SELECT value, version FROM kv_store WHERE key = ?`, key)
	if err := row.Scan(&value, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.Entry{}, repository.ErrNotFound
		}
		return repository.Entry{}, &repository.StoreError{Op: "get", Key: key, Err: err}
	}
	return repository.Entry{Key: key, Value: value, Version: version}, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) (int64, error) {
	var version int64
	row := s.conn.QueryRow(ctx, `INSERT INTO kv_store (key, value, version, updated) VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, version = kv_store.version + 1, updated = excluded.updated
		RETURNING version`, key, value, now())
	if err := row.Scan(&version); err != nil {
		return 0, &repository.StoreError{Op: "set", Key: key, Err: err}
	}
	return version, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.conn.Exec(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return &repository.StoreError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (s *Store) ScanPrefix(ctx context.Context, prefix string) ([]repository.Entry, error) {
	rows, err := s.conn.QueryRows(ctx, `SELECT key, value, version FROM kv_store
		WHERE key >= ? AND substr(key, 1, ?) = ? ORDER BY key`, prefix, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, &repository.StoreError{Op: "scan", Key: prefix, Err: err}
	}
	defer rows.Close()

	out := make([]repository.Entry, 0)
	for rows.Next() {
		var e repository.Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.Version); err != nil {
			return nil, &repository.StoreError{Op: "scan", Key: prefix, Err: err}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &repository.StoreError{Op: "scan", Key: prefix, Err: err}
	}
	return out, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, version int64, value []byte) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if version == 0 {
		res, err = s.conn.Exec(ctx, `INSERT INTO kv_store (key, value, version, updated) VALUES (?, ?, 1, ?)
			ON CONFLICT(key) DO NOTHING`, key, value, now())
	} else {
		res, err = s.conn.Exec(ctx, `UPDATE kv_store SET value = ?, version = version + 1, updated = ?
			WHERE key = ? AND version = ?`, value, now(), key, version)
	}
	if err != nil {
		return 0, &repository.StoreError{Op: "cas", Key: key, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &repository.StoreError{Op: "cas", Key: key, Err: err}
	}
	if n == 0 {
		s.logger.Debug("cas conflict", "key", key, "version", version)
		return 0, repository.ErrConflict
	}
	return version + 1, nil
}
