package store

import (
	"context"
	"fmt"
	"log"
)

// Backend names accepted by Open
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

type OpenOptions struct {
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string
}

// Open connects the named backend. The returned close function releases
// its connections; it is never nil.
func Open(ctx context.Context, backend string, opts OpenOptions) (DocumentStore, func(), error) {
	switch backend {
	case BackendMemory:
		log.Println("[Store] Using in-memory document store")
		return NewMemoryDocumentStore(), func() {}, nil

	case BackendPostgres:
		db, err := ConnectPostgres(opts.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := Migrate(db); err != nil {
			db.Close()
			return nil, nil, err
		}
		ds := NewPostgresDocumentStore(db, opts.DatabaseURL)
		log.Println("[Store] Connected to PostgreSQL")
		return ds, func() {
			ds.Close()
			db.Close()
		}, nil

	case BackendMongo:
		client, err := ConnectMongo(ctx, opts.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("[Store] Connected to MongoDB (%s)", opts.MongoDatabase)
		return NewMongoDocumentStore(client.Database(opts.MongoDatabase)), func() {
			_ = client.Disconnect(context.Background())
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown document store backend %q", backend)
}
