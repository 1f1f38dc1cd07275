package localstore

import (
	"context"
	"testing"

	"github.com/spf13/afero"
)

// testKV runs the same get/set/remove contract against any KV.
func testKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := kv.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v; want false, nil", ok, err)
	}
	if err := kv.Set(ctx, "utegym.k", `{"a":1}`); err != nil {
		t.Fatal(err)
	}
	if err := kv.Set(ctx, "utegym.k", `{"a":2}`); err != nil {
		t.Fatal(err)
	}
	v, ok, err := kv.Get(ctx, "utegym.k")
	if err != nil || !ok || v != `{"a":2}` {
		t.Fatalf("Get = %q, %v, %v; want {\"a\":2}", v, ok, err)
	}
	if err := kv.Remove(ctx, "utegym.k"); err != nil {
		t.Fatal(err)
	}
	if err := kv.Remove(ctx, "utegym.k"); err != nil {
		t.Errorf("second Remove should be a no-op, got %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "utegym.k"); ok {
		t.Error("key still present after Remove")
	}
}

// TestSQLiteKV verifies the SQLite substrate and that data survives reopening.
func TestSQLiteKV(t *testing.T) {
	dir := t.TempDir()
	kv, err := OpenSQLite(dir)
	if err != nil {
		t.Fatal(err)
	}
	testKV(t, kv)

	if err := kv.Set(context.Background(), KeyCurrentRun, "persisted"); err != nil {
		t.Fatal(err)
	}
	kv.Close()

	reopened, err := OpenSQLite(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if v, ok, _ := reopened.Get(context.Background(), KeyCurrentRun); !ok || v != "persisted" {
		t.Errorf("after reopen Get = %q, %v", v, ok)
	}
}

// TestFileKV verifies the file substrate on an in-memory filesystem and that
// no temp files are left behind.
func TestFileKV(t *testing.T) {
	fs := afero.NewMemMapFs()
	kv := NewFileKV(fs, "/data/utegym")
	testKV(t, kv)

	if err := kv.Set(context.Background(), "a/b", "x"); err != nil {
		t.Fatal(err)
	}
	entries, err := afero.ReadDir(fs, "/data/utegym")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "a%2Fb.json" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("files = %v, want [a%%2Fb.json]", names)
	}
}
