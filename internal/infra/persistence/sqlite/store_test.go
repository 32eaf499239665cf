package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"budgetcore/pkg/domain"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := NewStore(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	return store
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store := newTestStore(t, path)
	if err := store.SaveAll(ctx, domain.CollectionBudgets, []byte(`[{"year":2025}]`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveAll(ctx, domain.CollectionBudgets, []byte(`[{"year":2026}]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded := newTestStore(t, path)
	t.Cleanup(func() { _ = reloaded.Close() })
	got, err := reloaded.LoadAll(ctx, domain.CollectionBudgets)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != `[{"year":2026}]` {
		t.Fatalf("unexpected payload %s", got)
	}
	if reloaded.Path() != path || reloaded.Name() != "sqlite" {
		t.Fatalf("unexpected identity %s %s", reloaded.Name(), reloaded.Path())
	}
}

func TestSQLiteStoreMissingCollection(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "state.db"))
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.LoadAll(context.Background(), domain.CollectionChangeLogs); !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestSQLiteStoreCreatesCollectionsTable(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "state.db"))
	t.Cleanup(func() { _ = store.Close() })
	var name string
	if err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", "collections").Scan(&name); err != nil {
		t.Fatalf("lookup collections table: %v", err)
	}
	if name != "collections" {
		t.Fatalf("expected collections table, got %s", name)
	}
}

func TestSQLiteStoreErrorsAfterClose(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, filepath.Join(t.TempDir(), "state.db"))
	_ = store.Close()
	if err := store.SaveAll(ctx, "x", []byte("[]")); err == nil {
		t.Fatalf("expected save error after close")
	}
	if _, err := store.LoadAll(ctx, "x"); err == nil || errors.Is(err, domain.ErrCollectionNotFound) {
		t.Fatalf("expected read error after close, got %v", err)
	}
}
