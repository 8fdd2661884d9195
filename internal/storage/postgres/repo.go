package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tablemigrate/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

Each collection is a table in the schema named after the target database:

	CREATE TABLE "<db>"."<collection>" (seq bigserial PRIMARY KEY, doc json NOT NULL)

The column type is json rather than jsonb so key order survives the
round trip. Documents are loaded with COPY.
*/
type Repo struct {
	pool   *pgxpool.Pool
	schema string
}

func init() {
	storage.Register("postgres", New)
}

// New creates a pooled Postgres repository.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	if cfg.Database == "" {
		return nil, fmt.Errorf("postgres: target database (schema) is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Repo{pool: pool, schema: cfg.Database}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// ReplaceCollection recreates the collection table inside one transaction.
func (r *Repo) ReplaceCollection(ctx context.Context, collection string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, q := range buildReplaceSQL(r.schema, collection) {
		if _, err := tx.Exec(ctx, q); err != nil {
			return fmt.Errorf("postgres: replace %s: %w", collection, err)
		}
	}
	return tx.Commit(ctx)
}

// InsertDocuments loads docs with COPY ... FROM STDIN.
func (r *Repo) InsertDocuments(ctx context.Context, collection string, docs []storage.Document) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	rows := make([][]any, len(docs))
	for i, d := range docs {
		b, err := json.Marshal(d)
		if err != nil {
			return 0, err
		}
		rows[i] = []any{string(b)}
	}
	n, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{r.schema, collection},
		[]string{"doc"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return n, fmt.Errorf("postgres: copy into %s: %w", collection, err)
	}
	return n, nil
}

func (r *Repo) EnsureIndex(ctx context.Context, collection, field string) error {
	if _, err := r.pool.Exec(ctx, buildIndexSQL(r.schema, collection, field)); err != nil {
		return fmt.Errorf("postgres: index %s.%s: %w", collection, field, err)
	}
	return nil
}

func (r *Repo) CountDocuments(ctx context.Context, collection string) (int64, error) {
	var n int64
	q := "SELECT count(*) FROM " + qualified(r.schema, collection)
	if err := r.pool.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// buildReplaceSQL is pure so the DDL can be tested without a database.
func buildReplaceSQL(schema, collection string) []string {
	t := qualified(schema, collection)
	return []string{
		"CREATE SCHEMA IF NOT EXISTS " + pgIdent(schema),
		"DROP TABLE IF EXISTS " + t,
		"CREATE TABLE " + t + " (seq bigserial PRIMARY KEY, doc json NOT NULL)",
	}
}

func buildIndexSQL(schema, collection, field string) string {
	return fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s ((doc->>%s))",
		pgIdent(collection+"_"+field+"_idx"),
		qualified(schema, collection),
		pgLiteral(field),
	)
}

func qualified(schema, table string) string {
	return pgIdent(schema) + "." + pgIdent(table)
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func pgLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var _ storage.Repository = (*Repo)(nil)
