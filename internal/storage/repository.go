package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a document store.
//
// Edge cases:
//   - Kind must match a registered backend kind.
//   - DSN is passed through to the backend; validation is backend-specific.
//   - Database is the target database (Mongo database, Postgres/MSSQL
//     schema, SQLite table prefix).
type Config struct {
	Kind     string
	DSN      string
	Database string
	Load     LoadOptions
}

// Repository is the document-store surface the importer needs. Each backend
// implements these semantics in its own idiomatic way.
type Repository interface {
	// Close releases backend resources. Call once.
	Close()

	// ReplaceCollection drops the collection and recreates it empty, so a
	// subsequent load fully replaces its contents.
	ReplaceCollection(ctx context.Context, collection string) error

	// InsertDocuments appends docs to the collection and returns the number
	// of documents written.
	InsertDocuments(ctx context.Context, collection string, docs []Document) (int64, error)

	// EnsureIndex creates an ascending index on one document field.
	EnsureIndex(ctx context.Context, collection, field string) error

	// CountDocuments returns the number of documents in the collection.
	CountDocuments(ctx context.Context, collection string) (int64, error)
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "mongo", "sqlite").
// Call it from an init() function in the backend package.
//
// Panics if kind is empty, f is nil, or kind is already registered.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a Repository using the registered backend factory.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
