package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/garnizeh/campusfix/pkg/repository"
)

var _ repository.Store = (*Store)(nil)

type item struct {
	value   []byte
	version int64
}

// Store keeps every entry in process memory. Useful for tests and throwaway runs.
type Store struct {
	mu    sync.RWMutex
	items map[string]item
}

func New() *Store {
	return &Store{items: make(map[string]item)}
}

func (s *Store) Get(ctx context.Context, key string) (repository.Entry, error) {
	if err := ctx.Err(); err != nil {
		return repository.Entry{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[key]
	if !ok {
		return repository.Entry{}, repository.ErrNotFound
	}
	return repository.Entry{Key: key, Value: clone(it.value), Version: it.version}, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.items[key].version + 1
	s.items[key] = item{value: clone(value), version: v}
	return v, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) ScanPrefix(ctx context.Context, prefix string) ([]repository.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]repository.Entry, 0)
	for k, it := range s.items {
		if strings.HasPrefix(k, prefix) {
			out = append(out, repository.Entry{Key: k, Value: clone(it.value), Version: it.version})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, version int64, value []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.items[key]
	switch {
	case !ok && version != 0, ok && cur.version != version:
		return 0, repository.ErrConflict
	}
	v := version + 1
	s.items[key] = item{value: clone(value), version: v}
	return v, nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
