package mock

import (
	"context"
	"sync"

	"github.com/garnizeh/campusfix/pkg/repository"
)

// Store wraps a real store and lets tests inject failures per operation.
type Store struct {
	repository.Store

	mu sync.Mutex
	// Conflicts makes the next n CompareAndSwap calls fail with ErrConflict.
	Conflicts int
	// GetErr, SetErr, ScanErr and CASErr, when set, are returned instead of calling the wrapped store.
	GetErr  error
	SetErr  error
	ScanErr error
	CASErr  error

	Calls map[string]int
}

func New(inner repository.Store) *Store {
	return &Store{Store: inner, Calls: map[string]int{}}
}

func (m *Store) record(op string) {
	m.mu.Lock()
	m.Calls[op]++
	m.mu.Unlock()
}

// CallCount returns how many times op was invoked.
func (m *Store) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[op]
}

func (m *Store) Get(ctx context.Context, key string) (repository.Entry, error) {
	m.record("get")
	if m.GetErr != nil {
		return repository.Entry{}, m.GetErr
	}
	return m.Store.Get(ctx, key)
}

func (m *Store) Set(ctx context.Context, key string, value []byte) (int64, error) {
	m.record("set")
	if m.SetErr != nil {
		return 0, m.SetErr
	}
	return m.Store.Set(ctx, key, value)
}

func (m *Store) ScanPrefix(ctx context.Context, prefix string) ([]repository.Entry, error) {
	m.record("scan")
	if m.ScanErr != nil {
		return nil, m.ScanErr
	}
	return m.Store.ScanPrefix(ctx, prefix)
}

func (m *Store) CompareAndSwap(ctx context.Context, key string, version int64, value []byte) (int64, error) {
	m.record("cas")
	m.mu.Lock()
	if m.Conflicts > 0 {
		m.Conflicts--
		m.mu.Unlock()
		return 0, repository.ErrConflict
	}
	m.mu.Unlock()
	if m.CASErr != nil {
		return 0, m.CASErr
	}
	return m.Store.CompareAndSwap(ctx, key, version, value)
}
