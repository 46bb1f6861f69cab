package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStorage_PutWritesUnderBase(t *testing.T) {
	baseDir := t.TempDir()
	store, err := NewLocalStorage(baseDir)
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	ctx := context.Background()
	objectPath := "clicks/2024/03/01/05/batch-1.json"

	if err := store.Put(ctx, objectPath, []byte(`{"id":"1"}`+"\n")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(baseDir, "clicks", "2024", "03", "01", "05", "batch-1.json"))
	if err != nil {
		t.Fatalf("failed to read object: %v", err)
	}
	if string(data) != `{"id":"1"}`+"\n" {
		t.Errorf("content mismatch: got %q", data)
	}

	objects, err := store.ListObjects(ctx, "clicks/2024")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(objects) != 1 || objects[0] != objectPath {
		t.Errorf("expected only %s listed, got %v", objectPath, objects)
	}
}

func TestLocalStorage_PutOverwrites(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "a/b", []byte("first")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, "a/b", []byte("second")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(store.BasePath(), "a", "b"))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("expected overwrite, got %q", data)
	}
}

func TestLocalStorage_ListObjects(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	for _, p := range []string{
		"clicks/2024/03/01/06/b.json",
		"clicks/2024/03/01/05/a.json",
		"impressions/2024/03/01/05/c.json",
	} {
		if err := store.Put(ctx, p, []byte("x")); err != nil {
			t.Fatalf("Put %s failed: %v", p, err)
		}
	}

	objects, err := store.ListObjects(ctx, "clicks/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	want := []string{"clicks/2024/03/01/05/a.json", "clicks/2024/03/01/06/b.json"}
	if len(objects) != len(want) {
		t.Fatalf("expected %d objects, got %v", len(want), objects)
	}
	for i := range want {
		if objects[i] != want[i] {
			t.Errorf("object %d: got %s, want %s", i, objects[i], want[i])
		}
	}
}

func TestLocalStorage_ListMissingPrefix(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	objects, err := store.ListObjects(context.Background(), "missing/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(objects) != 0 {
		t.Errorf("expected no objects, got %v", objects)
	}
}

func TestLocalStorage_CancelledContext(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Put(ctx, "a", []byte("x")); err == nil {
		t.Error("expected error for cancelled context")
	}
	if _, err := store.ListObjects(ctx, ""); err == nil {
		t.Error("expected error for cancelled context")
	}
}
