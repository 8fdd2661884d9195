// Package mongo stores imported documents in MongoDB collections. This is
// the primary target of a migration run.
package mongo

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"tablemigrate/internal/storage"
)

const defaultURI = "mongodb://localhost:27017"

func init() {
	storage.Register("mongo", New)
}

// Repo implements storage.Repository on one Mongo database.
type Repo struct {
	client *mongo.Client
	db     *mongo.Database
	load   storage.LoadOptions
}

// New connects to cfg.DSN (a mongodb:// or mongodb+srv:// URI) and binds
// cfg.Database.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	uri := cfg.DSN
	if uri == "" {
		uri = defaultURI
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongo: target database is required")
	}

	log.Printf("mongo: connecting uri=%s database=%s", maskURI(uri), cfg.Database)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Repo{
		client: client,
		db:     client.Database(cfg.Database),
		load:   cfg.Load,
	}, nil
}

func (r *Repo) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.client.Disconnect(ctx); err != nil {
		log.Printf("mongo: disconnect: %v", err)
	}
}

// ReplaceCollection drops the collection. Mongo recreates it on first insert.
func (r *Repo) ReplaceCollection(ctx context.Context, collection string) error {
	if err := r.db.Collection(collection).Drop(ctx); err != nil {
		return fmt.Errorf("mongo: drop %s: %w", collection, err)
	}
	return nil
}

func (r *Repo) InsertDocuments(ctx context.Context, collection string, docs []storage.Document) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	batch := make([]any, len(docs))
	for i, d := range docs {
		batch[i] = toBSON(d)
	}

	opts := options.InsertMany().
		SetOrdered(r.load.Ordered).
		SetBypassDocumentValidation(r.load.BypassDocumentValidation)

	res, err := r.db.Collection(collection).InsertMany(ctx, batch, opts)
	if err != nil {
		var n int64
		if res != nil {
			n = int64(len(res.InsertedIDs))
		}
		return n, fmt.Errorf("mongo: insert into %s: %w", collection, err)
	}
	return int64(len(res.InsertedIDs)), nil
}

func (r *Repo) EnsureIndex(ctx context.Context, collection, field string) error {
	_, err := r.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: field, Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("mongo: index %s.%s: %w", collection, field, err)
	}
	return nil
}

func (r *Repo) CountDocuments(ctx context.Context, collection string) (int64, error) {
	return r.db.Collection(collection).CountDocuments(ctx, bson.D{})
}

// toBSON keeps field order; bson.D is an ordered document.
func toBSON(d storage.Document) bson.D {
	out := make(bson.D, len(d))
	for i, f := range d {
		out[i] = bson.E{Key: f.Key, Value: f.Value}
	}
	return out
}

// maskURI hides the password of a "user:pass@host" URI for logging.
func maskURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return uri
	}
	userinfo := rest[:at]
	if user, _, hasPass := strings.Cut(userinfo, ":"); hasPass {
		return scheme + "://" + user + ":***" + rest[at:]
	}
	return uri
}

var _ storage.Repository = (*Repo)(nil)
