package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"tablemigrate/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// SQLite has no schemas, so a collection lives in table
// "<database>__<collection>" with the document kept as JSON TEXT. Field
// indexes are expression indexes over json_extract.
type Repo struct {
	db     *sql.DB
	prefix string
}

func init() {
	storage.Register("sqlite", New)
}

// New opens cfg.DSN, or <database>.db in the working directory when the
// DSN is empty.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	dsn := cfg.DSN
	if dsn == "" {
		if cfg.Database == "" {
			return nil, fmt.Errorf("sqlite: DSN or target database is required")
		}
		dsn = cfg.Database + ".db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, prefix: cfg.Database}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) ReplaceCollection(ctx context.Context, collection string) error {
	t := r.table(collection)
	for _, q := range []string{
		"DROP TABLE IF EXISTS " + sqlIdent(t),
		"CREATE TABLE " + sqlIdent(t) + " (seq INTEGER PRIMARY KEY, doc TEXT NOT NULL)",
	} {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("sqlite: replace %s: %w", collection, err)
		}
	}
	return nil
}

// InsertDocuments inserts docs inside one transaction using a prepared
// statement.
func (r *Repo) InsertDocuments(ctx context.Context, collection string, docs []storage.Document) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+sqlIdent(r.table(collection))+" (doc) VALUES (?)")
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare insert %s: %w", collection, err)
	}
	defer stmt.Close()

	for _, d := range docs {
		b, err := json.Marshal(d)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, string(b)); err != nil {
			return 0, fmt.Errorf("sqlite: insert %s: %w", collection, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (r *Repo) EnsureIndex(ctx context.Context, collection, field string) error {
	if _, err := r.db.ExecContext(ctx, buildIndexSQL(r.table(collection), field)); err != nil {
		return fmt.Errorf("sqlite: index %s.%s: %w", collection, field, err)
	}
	return nil
}

func (r *Repo) CountDocuments(ctx context.Context, collection string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM "+sqlIdent(r.table(collection))).Scan(&n)
	return n, err
}

// Documents reads a collection back in insertion order.
func (r *Repo) Documents(ctx context.Context, collection string) ([]storage.Document, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT doc FROM "+sqlIdent(r.table(collection))+" ORDER BY seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Document
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var d storage.Document
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repo) table(collection string) string {
	if r.prefix == "" {
		return collection
	}
	return r.prefix + "__" + collection
}

func buildIndexSQL(table, field string) string {
	return fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s (json_extract(doc, %s))",
		sqlIdent(table+"_"+field+"_idx"),
		sqlIdent(table),
		sqlLiteral(jsonPath(field)),
	)
}

// jsonPath quotes the key so dots and spaces are not path syntax.
func jsonPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, `\"`) + `"`
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func sqlLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var _ storage.Repository = (*Repo)(nil)
