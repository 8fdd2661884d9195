package memory

import (
	"context"
	"testing"

	"tablemigrate/internal/storage"
)

func TestRepo_ReplaceInsertCount(t *testing.T) {
	ctx := context.Background()
	r := New()

	if err := r.ReplaceCollection(ctx, "orders"); err != nil {
		t.Fatalf("ReplaceCollection: %v", err)
	}
	docs := []storage.Document{
		{{Key: "id", Value: "1"}},
		{{Key: "id", Value: "2"}},
	}
	if n, err := r.InsertDocuments(ctx, "orders", docs); err != nil || n != 2 {
		t.Fatalf("InsertDocuments()=%d,%v", n, err)
	}
	if err := r.EnsureIndex(ctx, "orders", "id"); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}

	// Replacing empties the collection and drops its indexes.
	if err := r.ReplaceCollection(ctx, "orders"); err != nil {
		t.Fatalf("ReplaceCollection: %v", err)
	}
	if n, _ := r.CountDocuments(ctx, "orders"); n != 0 {
		t.Fatalf("CountDocuments()=%d after replace, want 0", n)
	}
	if len(r.Indexes("orders")) != 0 || r.Drops("orders") != 2 {
		t.Fatalf("indexes=%v drops=%d", r.Indexes("orders"), r.Drops("orders"))
	}
}

func TestRepo_EnsureIndexUnknownCollection(t *testing.T) {
	if err := New().EnsureIndex(context.Background(), "nope", "id"); err == nil {
		t.Fatalf("EnsureIndex() err=nil, want error")
	}
}

func TestRegistered(t *testing.T) {
	repo, err := storage.New(context.Background(), storage.Config{Kind: "memory"})
	if err != nil {
		t.Fatalf("storage.New(memory): %v", err)
	}
	if _, ok := repo.(*Repo); !ok {
		t.Fatalf("storage.New(memory) returned %T", repo)
	}
}
