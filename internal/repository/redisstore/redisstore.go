package redisstore

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/garnizeh/campusfix/pkg/repository"
)

var _ repository.Store = (*Store)(nil)

const (
	fieldValue   = "v"
	fieldVersion = "ver"
	scanCount    = 200
)

// Store keeps each entry in a Redis hash holding the value and its version.
// Keys are namespaced so several deployments can share one Redis database.
type Store struct {
	client    *redis.Client
	namespace string
	logger    *slog.Logger
}

func New(client *redis.Client, namespace string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, namespace: namespace, logger: logger}
}

func (s *Store) redisKey(key string) string { return s.namespace + key }

func (s *Store) Get(ctx context.Context, key string) (repository.Entry, error) {
	vals, err := s.client.HMGet(ctx, s.redisKey(key), fieldValue, fieldVersion).Result()
	if err != nil {
		return repository.Entry{}, &repository.StoreError{Op: "get", Key: key, Err: err}
	}
	return decode(key, vals)
}

func decode(key string, vals []any) (repository.Entry, error) {
	if len(vals) != 2 || vals[0] == nil {
		return repository.Entry{}, repository.ErrNotFound
	}
	raw, _ := vals[0].(string)
	verStr, _ := vals[1].(string)
	ver, err := strconv.ParseInt(verStr, 10, 64)
	if err != nil {
		return repository.Entry{}, &repository.StoreError{Op: "get", Key: key, Err: err}
	}
	return repository.Entry{Key: key, Value: []byte(raw), Version: ver}, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) (int64, error) {
	rk := s.redisKey(key)
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, rk, fieldVersion, 1)
		pipe.HSet(ctx, rk, fieldValue, value)
		return nil
	})
	if err != nil {
		return 0, &repository.StoreError{Op: "set", Key: key, Err: err}
	}
	return incr.Val(), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return &repository.StoreError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (s *Store) ScanPrefix(ctx context.Context, prefix string) ([]repository.Entry, error) {
	match := escapeGlob(s.redisKey(prefix)) + "*"

	var rkeys []string
	iter := s.client.Scan(ctx, 0, match, scanCount).Iterator()
	for iter.Next(ctx) {
		rkeys = append(rkeys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, &repository.StoreError{Op: "scan", Key: prefix, Err: err}
	}
	sort.Strings(rkeys)

	cmds := make([]*redis.SliceCmd, len(rkeys))
	if len(rkeys) > 0 {
		_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, rk := range rkeys {
				cmds[i] = pipe.HMGet(ctx, rk, fieldValue, fieldVersion)
			}
			return nil
		})
		if err != nil {
			return nil, &repository.StoreError{Op: "scan", Key: prefix, Err: err}
		}
	}

	out := make([]repository.Entry, 0, len(rkeys))
	for i, rk := range rkeys {
		e, err := decode(strings.TrimPrefix(rk, s.namespace), cmds[i].Val())
		if errors.Is(err, repository.ErrNotFound) {
			// deleted between SCAN and HMGET
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, version int64, value []byte) (int64, error) {
	rk := s.redisKey(key)
	conflict := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, rk, fieldVersion).Int64()
		switch {
		case errors.Is(err, redis.Nil):
			cur = 0
		case err != nil:
			return err
		}
		if cur != version {
			conflict = true
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, rk, fieldValue, value, fieldVersion, version+1)
			return nil
		})
		return err
	}, rk)
	if errors.Is(err, redis.TxFailedErr) || (err == nil && conflict) {
		s.logger.Debug("cas conflict", "key", key, "version", version)
		return 0, repository.ErrConflict
	}
	if err != nil {
		return 0, &repository.StoreError{Op: "cas", Key: key, Err: err}
	}
	return version + 1, nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
