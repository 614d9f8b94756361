package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// MaxUpdateAttempts bounds the compare-and-swap retry loop in Update.
const MaxUpdateAttempts = 16

// ErrNoChange may be returned by an update function to leave the stored value as is.
var ErrNoChange = errors.New("no change")

// Update runs a read-modify-write on key, retrying when another writer got there first.
// fn receives the current value (nil when absent) and returns the value to store.
func Update(ctx context.Context, s Store, key string, fn func(cur []byte) ([]byte, error)) ([]byte, error) {
	for attempt := 0; attempt < MaxUpdateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var (
			cur     []byte
			version int64
		)
		e, err := s.Get(ctx, key)
		switch {
		case err == nil:
			cur, version = e.Value, e.Version
		case errors.Is(err, ErrNotFound):
		default:
			return nil, err
		}

		next, err := fn(cur)
		if errors.Is(err, ErrNoChange) {
			return cur, nil
		}
		if err != nil {
			return nil, err
		}

		if _, err := s.CompareAndSwap(ctx, key, version, next); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return nil, err
		}
		return next, nil
	}

	return nil, fmt.Errorf("update %q: %w", key, ErrConflict)
}

// GetJSON loads and decodes the value stored under key.
func GetJSON[T any](ctx context.Context, s Store, key string) (*T, error) {
	e, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(e.Value, &v); err != nil {
		return nil, fmt.Errorf("decode %q: %w", key, err)
	}
	return &v, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	_, err = s.Set(ctx, key, b)
	return err
}

// UpdateJSON is Update over a JSON-encoded T. fn sees a nil pointer when the key is absent
// and returns the value to store.
func UpdateJSON[T any](ctx context.Context, s Store, key string, fn func(cur *T) (*T, error)) (*T, error) {
	var out *T
	_, err := Update(ctx, s, key, func(raw []byte) ([]byte, error) {
		var cur *T
		if raw != nil {
			cur = new(T)
			if err := json.Unmarshal(raw, cur); err != nil {
				return nil, fmt.Errorf("decode %q: %w", key, err)
			}
		}
		next, err := fn(cur)
		if errors.Is(err, ErrNoChange) {
			out = cur
			return nil, err
		}
		if err != nil {
			return nil, err
		}
		out = next
		return json.Marshal(next)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
