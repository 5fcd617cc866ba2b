package artifact

import (
	"bytes"
	"testing"
)

func TestNewStore_RequiresDirectory(t *testing.T) {
	t.Parallel()

	if _, err := NewStore("  "); err == nil {
		t.Fatal("expected error for blank directory")
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	document := []byte("%PDF-1.7 rendered report")
	if err := store.Save("b42f3c1e", document); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := store.Load("b42f3c1e")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(loaded, document) {
		t.Fatalf("expected %q, got %q", document, loaded)
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.Save("b1", []byte("first")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Save("b1", []byte("second")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := store.Load("b1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(loaded) != "second" {
		t.Fatalf("expected latest artifact, got %q", loaded)
	}
}

func TestStore_SaveRejectsEmptyArtifact(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.Save("b1", nil); err == nil {
		t.Fatal("expected error for empty artifact")
	}
}

func TestStore_RejectsPathTraversal(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	invalid := []string{"", "  ", "../escape", `b1\evil`}
	for _, id := range invalid {
		if err := store.Save(id, []byte("x")); err == nil {
			t.Fatalf("expected error for report id %q", id)
		}
		if _, err := store.Load(id); err == nil {
			t.Fatalf("expected error for report id %q", id)
		}
	}
}

func TestStore_LoadMissingArtifact(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := store.Load("missing"); err == nil {
		t.Fatal("expected error for missing artifact")
	}
}
