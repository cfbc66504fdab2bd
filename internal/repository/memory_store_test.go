package repository

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestMemoryStore_RoundTripAndIsolation(t *testing.T) {
	store := NewMemoryConversationStore(50, zap.NewNop())

	saved := testConversations(2)
	if err := store.Save(context.Background(), saved); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(loaded))
	}

	// Mutar lo cargado no debe afectar lo guardado.
	loaded[0].Title = "mutated"
	again, _ := store.Load(context.Background())
	if again[0].Title == "mutated" {
		t.Fatalf("expected store to hold its own copy")
	}
}

func TestMemoryStore_CapacityEviction(t *testing.T) {
	store := NewMemoryConversationStore(10, zap.NewNop())

	if err := store.Save(context.Background(), testConversations(11)); err != nil {
		t.Fatalf("save should absorb capacity failure, got %v", err)
	}

	loaded, _ := store.Load(context.Background())
	if len(loaded) != 9 {
		t.Fatalf("expected 9 conversations after eviction, got %d", len(loaded))
	}
}

func TestMemoryStore_SelectedID(t *testing.T) {
	store := NewMemoryConversationStore(10, zap.NewNop())

	id, err := store.LoadSelectedID(context.Background())
	if err != nil || id != "" {
		t.Fatalf("expected empty selection, got %q, %v", id, err)
	}
	if err := store.SaveSelectedID(context.Background(), "abc"); err != nil {
		t.Fatalf("save selected failed: %v", err)
	}
	id, _ = store.LoadSelectedID(context.Background())
	if id != "abc" {
		t.Fatalf("expected abc, got %q", id)
	}
}
