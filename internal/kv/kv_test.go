package kv

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type clockedStore interface {
	Store
	SetClock(func() time.Time)
}

func openTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// forEachStore runs fn against every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s clockedStore)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, openTestDB(t)) })
}

func TestGetSet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s clockedStore) {
		ctx := context.Background()
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.Set(ctx, "k", "v1", 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := s.Set(ctx, "k", "v2", 0); err != nil {
			t.Fatalf("Set overwrite: %v", err)
		}
		got, err := s.Get(ctx, "k")
		if err != nil || got != "v2" {
			t.Errorf("expected v2, got %q (%v)", got, err)
		}
		if err := s.Del(ctx, "k"); err != nil {
			t.Fatalf("Del: %v", err)
		}
		if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after Del, got %v", err)
		}
	})
}

func TestSetExpiry(t *testing.T) {
	forEachStore(t, func(t *testing.T, s clockedStore) {
		ctx := context.Background()
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		s.SetClock(func() time.Time { return now })

		s.Set(ctx, "k", "v", time.Hour)
		if _, err := s.Get(ctx, "k"); err != nil {
			t.Fatalf("expected live key, got %v", err)
		}
		now = now.Add(time.Hour)
		if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected expired key, got %v", err)
		}
	})
}

func TestSetNXBatch(t *testing.T) {
	forEachStore(t, func(t *testing.T, s clockedStore) {
		ctx := context.Background()
		got, err := s.SetNX(ctx, []string{"a", "b", "a"}, "1", time.Hour)
		if err != nil {
			t.Fatalf("SetNX: %v", err)
		}
		if want := []bool{true, true, false}; !reflect.DeepEqual(got, want) {
			t.Errorf("first batch: got %v, want %v", got, want)
		}

		got, _ = s.SetNX(ctx, []string{"a", "c"}, "1", time.Hour)
		if want := []bool{false, true}; !reflect.DeepEqual(got, want) {
			t.Errorf("second batch: got %v, want %v", got, want)
		}
	})
}

func TestSetNXReclaimsExpired(t *testing.T) {
	forEachStore(t, func(t *testing.T, s clockedStore) {
		ctx := context.Background()
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		s.SetClock(func() time.Time { return now })

		s.SetNX(ctx, []string{"seen"}, "1", 7*24*time.Hour)
		now = now.Add(6 * 24 * time.Hour)
		if got, _ := s.SetNX(ctx, []string{"seen"}, "1", 7*24*time.Hour); got[0] {
			t.Error("expected key to still be held within TTL")
		}
		now = now.Add(2 * 24 * time.Hour)
		if got, _ := s.SetNX(ctx, []string{"seen"}, "1", 7*24*time.Hour); !got[0] {
			t.Error("expected expired key to be reclaimed")
		}
	})
}

func TestListOps(t *testing.T) {
	forEachStore(t, func(t *testing.T, s clockedStore) {
		ctx := context.Background()
		n, err := s.LPush(ctx, "l", "a", "b")
		if err != nil || n != 2 {
			t.Fatalf("LPush: n=%d err=%v", n, err)
		}
		n, _ = s.LPush(ctx, "l", "c")
		if n != 3 {
			t.Errorf("expected length 3, got %d", n)
		}

		got, _ := s.LRange(ctx, "l", 0, -1)
		if want := []string{"c", "b", "a"}; !reflect.DeepEqual(got, want) {
			t.Errorf("LRange: got %v, want %v", got, want)
		}

		if err := s.LTrim(ctx, "l", 0, 1); err != nil {
			t.Fatalf("LTrim: %v", err)
		}
		got, _ = s.LRange(ctx, "l", 0, -1)
		if want := []string{"c", "b"}; !reflect.DeepEqual(got, want) {
			t.Errorf("after LTrim: got %v, want %v", got, want)
		}

		got, _ = s.LRange(ctx, "l", 5, 10)
		if len(got) != 0 {
			t.Errorf("expected empty out-of-range slice, got %v", got)
		}
	})
}

func TestNormalizeRange(t *testing.T) {
	tests := []struct {
		start, stop, n int
		lo, hi         int
		ok             bool
	}{
		{0, -1, 3, 0, 3, true},
		{0, 49, 3, 0, 3, true},
		{-2, -1, 3, 1, 3, true},
		{2, 1, 3, 0, 0, false},
		{0, -1, 0, 0, 0, false},
	}
	for _, tt := range tests {
		lo, hi, ok := normalizeRange(tt.start, tt.stop, tt.n)
		if lo != tt.lo || hi != tt.hi || ok != tt.ok {
			t.Errorf("normalizeRange(%d,%d,%d) = (%d,%d,%v), want (%d,%d,%v)",
				tt.start, tt.stop, tt.n, lo, hi, ok, tt.lo, tt.hi, tt.ok)
		}
	}
}

func TestMigrateNewDB(t *testing.T) {
	db := openTestDB(t)

	version, err := getSchemaVersion(db.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	db1, err := Open(dbPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db1.Close()

	db2, err := Open(dbPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()

	version, err := getSchemaVersion(db2.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}
