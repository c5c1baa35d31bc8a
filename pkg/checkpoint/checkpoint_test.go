package checkpoint

import (
	"context"
	"path/filepath"
	"testing"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.Load(ctx, "echo_bot"); err != nil || ok {
		t.Fatalf("Load empty = (%v, %v), want (false, nil)", ok, err)
	}

	if err := store.Save(ctx, "echo_bot", 12); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := store.Save(ctx, "echo_bot", 9); err != nil {
		t.Fatalf("Save lower error: %v", err)
	}

	got, ok, err := store.Load(ctx, "echo_bot")
	if err != nil || !ok {
		t.Fatalf("Load = (%v, %v)", ok, err)
	}
	if got != 12 {
		t.Fatalf("cursor = %d, want 12 (saves never move backwards)", got)
	}

	if _, ok, _ := store.Load(ctx, "other_bot"); ok {
		t.Fatal("keys are not isolated")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "cursors.db")

	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	exerciseStore(t, store)
	if err := store.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	got, ok, err := reopened.Load(context.Background(), "echo_bot")
	if err != nil || !ok || got != 12 {
		t.Fatalf("Load after reopen = (%d, %v, %v), want (12, true, nil)", got, ok, err)
	}
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite(" "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
