// Package storetest holds the behaviour every repository.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/garnizeh/campusfix/pkg/repository"
)

// Run exercises a fresh store returned by newStore in each subtest.
func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SetGetVersions", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		v1, err := s.Set(ctx, "k", []byte(`"a"`))
		if err != nil {
			t.Fatalf("set: %v", err)
		}
		v2, err := s.Set(ctx, "k", []byte(`"b"`))
		if err != nil {
			t.Fatalf("set: %v", err)
		}
		if v1 != 1 || v2 != 2 {
			t.Fatalf("expected versions 1,2 got %d,%d", v1, v2)
		}
		e, err := s.Get(ctx, "k")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if string(e.Value) != `"b"` || e.Version != 2 || e.Key != "k" {
			t.Fatalf("unexpected entry %+v", e)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.Set(ctx, "k", []byte(`1`)); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := s.Delete(ctx, "k"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := s.Delete(ctx, "k"); err != nil {
			t.Fatalf("delete of absent key should be a no-op: %v", err)
		}
		if _, err := s.Get(ctx, "k"); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("ScanPrefix", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, k := range []string{"issue:b", "issue:a", "user-issue:u1:a", "issue%x", "issue_y", "issues:z"} {
			if _, err := s.Set(ctx, k, []byte(`{}`)); err != nil {
				t.Fatalf("set %s: %v", k, err)
			}
		}
		got, err := s.ScanPrefix(ctx, "issue:")
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		if len(got) != 2 || got[0].Key != "issue:a" || got[1].Key != "issue:b" {
			t.Fatalf("unexpected scan result %+v", keys(got))
		}

		all, err := s.ScanPrefix(ctx, "")
		if err != nil {
			t.Fatalf("scan all: %v", err)
		}
		if len(all) != 6 {
			t.Fatalf("expected 6 entries, got %v", keys(all))
		}

		none, err := s.ScanPrefix(ctx, "gamification:")
		if err != nil {
			t.Fatalf("scan none: %v", err)
		}
		if len(none) != 0 {
			t.Fatalf("expected no entries, got %v", keys(none))
		}
	})

	t.Run("CompareAndSwap", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		v, err := s.CompareAndSwap(ctx, "k", 0, []byte(`1`))
		if err != nil || v != 1 {
			t.Fatalf("create via cas: v=%d err=%v", v, err)
		}
		if _, err := s.CompareAndSwap(ctx, "k", 0, []byte(`2`)); !errors.Is(err, repository.ErrConflict) {
			t.Fatalf("expected conflict creating existing key, got %v", err)
		}
		if _, err := s.CompareAndSwap(ctx, "k", 7, []byte(`2`)); !errors.Is(err, repository.ErrConflict) {
			t.Fatalf("expected conflict on stale version, got %v", err)
		}
		if _, err := s.CompareAndSwap(ctx, "missing", 3, []byte(`2`)); !errors.Is(err, repository.ErrConflict) {
			t.Fatalf("expected conflict on absent key with version, got %v", err)
		}
		v, err = s.CompareAndSwap(ctx, "k", 1, []byte(`2`))
		if err != nil || v != 2 {
			t.Fatalf("cas update: v=%d err=%v", v, err)
		}
		e, err := s.Get(ctx, "k")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if string(e.Value) != `2` {
			t.Fatalf("unexpected value %s", e.Value)
		}
	})

	t.Run("ConcurrentUpdate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		const writers = 8

		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repository.Update(ctx, s, "counter", func(cur []byte) ([]byte, error) {
					n := 0
					if cur != nil {
						n, _ = strconv.Atoi(string(cur))
					}
					return []byte(strconv.Itoa(n + 1)), nil
				})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("update: %v", err)
			}
		}

		e, err := s.Get(ctx, "counter")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if string(e.Value) != strconv.Itoa(writers) {
			t.Fatalf("expected %d after concurrent increments, got %s", writers, e.Value)
		}
	})
}

func keys(es []repository.Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Key
	}
	return out
}
