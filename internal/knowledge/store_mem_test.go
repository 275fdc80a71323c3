package knowledge

import (
	"context"
	"errors"
	"testing"
)

func seedStore() *MemoryStore {
	store := NewMemoryStore()
	store.Add(Entry{ID: "k1", Category: "gambling", Content: "Blackjack basic strategy reduces the house edge below 1%."})
	store.Add(Entry{ID: "k2", Category: "gambling", Content: "Poker pot odds compare the call price to the pot size."})
	store.Add(Entry{ID: "k3", Category: "creative", Content: "Three-act structure divides a story into setup, confrontation, resolution."})
	return store
}

func TestMemoryStore_Search(t *testing.T) {
	t.Parallel()

	store := seedStore()
	ctx := context.Background()

	got, err := store.Search(ctx, "gambling", "blackjack strategy", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Search() returned %d snippets, want 1", len(got))
	}

	// Category filters: the same query in another category finds nothing.
	got, err = store.Search(ctx, "creative", "blackjack", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Search(wrong category) returned %d snippets, want 0", len(got))
	}

	// Empty category searches everything.
	got, _ = store.Search(ctx, "", "story", 5)
	if len(got) != 1 {
		t.Errorf("Search(all categories) returned %d snippets, want 1", len(got))
	}
}

func TestMemoryStore_Search_Limit(t *testing.T) {
	t.Parallel()

	store := seedStore()

	got, _ := store.Search(context.Background(), "gambling", "the", 1)
	if len(got) != 1 {
		t.Errorf("Search(limit=1) returned %d snippets, want 1", len(got))
	}

	if got, _ := store.Search(context.Background(), "gambling", "the", 0); got != nil {
		t.Errorf("Search(limit=0) = %v, want nil", got)
	}
}

func TestMemoryStore_Search_BlankQuery(t *testing.T) {
	t.Parallel()

	store := seedStore()

	// A blank query browses the category.
	got, _ := store.Search(context.Background(), "gambling", "", 5)
	if len(got) != 2 {
		t.Errorf("Search(blank query) returned %d snippets, want 2", len(got))
	}
}

func TestMemoryStore_AddUpdateDelete(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()

	id := store.Add(Entry{Category: "general", Content: "original"})
	if id == "" {
		t.Fatal("Add() assigned empty ID")
	}
	if store.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", store.Len())
	}

	store.Add(Entry{ID: id, Category: "general", Content: "updated"})
	if store.Len() != 1 {
		t.Errorf("Len() after update = %d, want 1", store.Len())
	}
	got, _ := store.Search(context.Background(), "general", "updated", 1)
	if len(got) != 1 {
		t.Error("updated content not found")
	}

	if err := store.Delete(id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() after delete = %d, want 0", store.Len())
	}
	if err := store.Delete(id); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("second Delete() error = %v, want ErrEntryNotFound", err)
	}
}
