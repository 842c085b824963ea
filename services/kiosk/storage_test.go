package kiosk

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")

	storage, err := NewFileStorage(path)
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}

	if _, ok := storage.Get("missing"); ok {
		t.Fatal("Get on empty storage returned a value")
	}

	if err := storage.Set("a", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := storage.Set("b", "2"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if got, ok := storage.Get("a"); !ok || got != "1" {
		t.Fatalf("Get(a) = %q, %v; want 1, true", got, ok)
	}

	// A fresh handle must observe the persisted entries.
	reopened, err := NewFileStorage(path)
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	if got, ok := reopened.Get("b"); !ok || got != "2" {
		t.Fatalf("Get(b) = %q, %v; want 2, true", got, ok)
	}

	if err := reopened.Delete("a", "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := reopened.Get("a"); ok {
		t.Fatal("Get(a) returned a value after Delete")
	}
}

func TestFileStorageLeavesNoTempFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	storage, err := NewFileStorage(path)
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	if err := storage.Set("a", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind after write: %v", err)
	}

	reopened, err := NewFileStorage(path)
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	if got, ok := reopened.Get("a"); !ok || got != "1" {
		t.Fatalf("Get(a) after rename = %q, %v; want 1, true", got, ok)
	}
}
