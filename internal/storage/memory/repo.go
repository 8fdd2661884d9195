// Package memory is an in-process document store. It backs tests and local
// smoke runs; data is lost when the process exits.
package memory

import (
	"context"
	"fmt"
	"sync"

	"tablemigrate/internal/storage"
)

func init() {
	storage.Register("memory", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return New(), nil
	})
}

// Repo keeps collections as document slices.
type Repo struct {
	mu          sync.Mutex
	collections map[string][]storage.Document
	indexes     map[string][]string
	drops       map[string]int
}

func New() *Repo {
	return &Repo{
		collections: map[string][]storage.Document{},
		indexes:     map[string][]string{},
		drops:       map[string]int{},
	}
}

func (r *Repo) Close() {}

func (r *Repo) ReplaceCollection(ctx context.Context, collection string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[collection] = []storage.Document{}
	delete(r.indexes, collection)
	r.drops[collection]++
	return nil
}

func (r *Repo) InsertDocuments(ctx context.Context, collection string, docs []storage.Document) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range docs {
		cp := make(storage.Document, len(d))
		copy(cp, d)
		r.collections[collection] = append(r.collections[collection], cp)
	}
	return int64(len(docs)), nil
}

func (r *Repo) EnsureIndex(ctx context.Context, collection, field string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.collections[collection]; !ok {
		return fmt.Errorf("memory: collection %q does not exist", collection)
	}
	r.indexes[collection] = append(r.indexes[collection], field)
	return nil
}

func (r *Repo) CountDocuments(ctx context.Context, collection string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.collections[collection])), nil
}

// Documents returns a copy of the collection contents in insertion order.
func (r *Repo) Documents(collection string) []storage.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	src := r.collections[collection]
	out := make([]storage.Document, len(src))
	copy(out, src)
	return out
}

// Indexes returns the indexed fields of a collection.
func (r *Repo) Indexes(collection string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.indexes[collection]...)
}

// Drops returns how many times the collection was replaced.
func (r *Repo) Drops(collection string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drops[collection]
}

var _ storage.Repository = (*Repo)(nil)
