package session

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_UnknownSessionIsEmpty(t *testing.T) {
	store := openTestStore(t)
	values, err := store.Load(context.Background(), "never-saved")
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 0 {
		t.Errorf("values = %v, want empty", values)
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	in := map[string]any{
		"step1": map[string]any{"count": float64(3)},
		"note":  "remember",
	}
	if err := store.Save(ctx, "s1", in); err != nil {
		t.Fatal(err)
	}

	out, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if out["note"] != "remember" {
		t.Errorf("note = %v", out["note"])
	}
	step1, ok := out["step1"].(map[string]any)
	if !ok || step1["count"] != float64(3) {
		t.Errorf("step1 = %v", out["step1"])
	}
}

func TestSQLiteStore_SaveOverwrites(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.Save(ctx, "s1", map[string]any{"v": "first"})
	store.Save(ctx, "s1", map[string]any{"v": "second"})

	out, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if out["v"] != "second" {
		t.Errorf("v = %v, want second", out["v"])
	}
	if len(out) != 1 {
		t.Errorf("out = %v, want single key", out)
	}
}
