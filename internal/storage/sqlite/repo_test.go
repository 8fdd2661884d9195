package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"tablemigrate/internal/storage"
)

func openTemp(t *testing.T) *Repo {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "docs.db")
	repo, err := New(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn, Database: "shop"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(repo.Close)
	return repo.(*Repo)
}

func TestRepo_RoundTripPreservesKeyOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := openTemp(t)

	if err := r.ReplaceCollection(ctx, "customers"); err != nil {
		t.Fatalf("ReplaceCollection: %v", err)
	}
	docs := []storage.Document{
		storage.NewDocument([]string{"id", "name", "city"}, []string{"2", "b", ""}, false),
		storage.NewDocument([]string{"id", "name", "city"}, []string{"1", "a", "X"}, false),
	}
	if n, err := r.InsertDocuments(ctx, "customers", docs); err != nil || n != 2 {
		t.Fatalf("InsertDocuments()=%d,%v", n, err)
	}
	if err := r.EnsureIndex(ctx, "customers", "id"); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}

	got, err := r.Documents(ctx, "customers")
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if !reflect.DeepEqual(got, docs) {
		t.Fatalf("Documents()=%v, want %v", got, docs)
	}
}

func TestRepo_ReplaceIsDestructive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := openTemp(t)

	for run := 0; run < 2; run++ {
		if err := r.ReplaceCollection(ctx, "orders"); err != nil {
			t.Fatalf("ReplaceCollection: %v", err)
		}
		docs := []storage.Document{{{Key: "id", Value: "1"}}, {{Key: "id", Value: "2"}}}
		if _, err := r.InsertDocuments(ctx, "orders", docs); err != nil {
			t.Fatalf("InsertDocuments: %v", err)
		}
	}
	n, err := r.CountDocuments(ctx, "orders")
	if err != nil || n != 2 {
		t.Fatalf("CountDocuments()=%d,%v want 2", n, err)
	}
}

func TestBuildIndexSQL(t *testing.T) {
	t.Parallel()

	got := buildIndexSQL("shop__orders", "unit price")
	if !strings.Contains(got, `ON "shop__orders" (json_extract(doc, '$."unit price"'))`) {
		t.Fatalf("buildIndexSQL=%q", got)
	}
}

func TestNew_EmptyDSNUsesDatabaseFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	repo, err := New(context.Background(), storage.Config{Kind: "sqlite", Database: "shop"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer repo.Close()
	if err := repo.ReplaceCollection(context.Background(), "items"); err != nil {
		t.Fatalf("ReplaceCollection: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "shop.db")); err != nil {
		t.Fatalf("default database file: %v", err)
	}

	if _, err := New(context.Background(), storage.Config{Kind: "sqlite"}); err == nil {
		t.Fatalf("New without DSN or database err=nil")
	}
}
