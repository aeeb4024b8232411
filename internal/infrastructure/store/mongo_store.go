package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDocumentStore keeps each document as {_id: path, data: {...}, updated_at}.
// Subscriptions are change streams, so the deployment must be a replica set.
type MongoDocumentStore struct {
	collection *mongo.Collection
}

type mongoDocument struct {
	Path      string    `bson:"_id"`
	Data      bson.M    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type mongoChangeEvent struct {
	OperationType string         `bson:"operationType"`
	DocumentKey   bson.M         `bson:"documentKey"`
	FullDocument  *mongoDocument `bson:"fullDocument"`
}

func NewMongoDocumentStore(db *mongo.Database) *MongoDocumentStore {
	return &MongoDocumentStore{collection: db.Collection("documents")}
}

// ConnectMongo opens a client and verifies it with a ping
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

func (s *MongoDocumentStore) Get(ctx context.Context, path string) (*Document, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	var md mongoDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": path}).Decode(&md)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", path, err)
	}
	return md.toDocument()
}

func (s *MongoDocumentStore) Set(ctx context.Context, path string, value any, merge bool) error {
	if path == "" {
		return ErrInvalidPath
	}
	data, err := toBSON(value)
	if err != nil {
		return err
	}
	now := time.Now()

	if !merge {
		_, err = s.collection.ReplaceOne(ctx,
			bson.M{"_id": path},
			mongoDocument{Path: path, Data: data, UpdatedAt: now},
			options.Replace().SetUpsert(true),
		)
	} else {
		set := bson.M{"updated_at": now}
		for k, v := range data {
			set["data."+k] = v
		}
		_, err = s.collection.UpdateOne(ctx,
			bson.M{"_id": path},
			bson.M{"$set": set},
			options.Update().SetUpsert(true),
		)
	}
	if err != nil {
		return fmt.Errorf("failed to set document %s: %w", path, err)
	}
	return nil
}

func (s *MongoDocumentStore) Delete(ctx context.Context, path string) error {
	if path == "" {
		return ErrInvalidPath
	}
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": path}); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", path, err)
	}
	return nil
}

// List returns the documents under collection, sorted by path
func (s *MongoDocumentStore) List(ctx context.Context, collection string) ([]*Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	cursor, err := s.collection.Find(ctx,
		bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(collection)}},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	docs := make([]*Document, 0)
	for cursor.Next(ctx) {
		var md mongoDocument
		if err := cursor.Decode(&md); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		doc, err := md.toDocument()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, cursor.Err()
}

// Subscribe opens one change stream per subscription
func (s *MongoDocumentStore) Subscribe(ctx context.Context, path string) (Subscription, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}

	var idFilter any = path
	if strings.HasSuffix(path, "/") {
		idFilter = bson.M{"$regex": "^" + regexp.QuoteMeta(path)}
	}
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.M{"documentKey._id": idFilter}}}}

	watchCtx, cancel := context.WithCancel(ctx)
	stream, err := s.collection.Watch(watchCtx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	f := newFeed(path)
	if doc, err := s.Get(ctx, path); err == nil {
		f.offer(Change{Path: path, Document: doc})
	}

	go func() {
		<-f.done
		cancel()
	}()
	go func() {
		defer f.Close()
		defer stream.Close(context.Background())
		for stream.Next(watchCtx) {
			var ev mongoChangeEvent
			if err := stream.Decode(&ev); err != nil {
				log.Printf("[Store] Error decoding change event: %v", err)
				continue
			}
			docPath, _ := ev.DocumentKey["_id"].(string)
			change := Change{Path: docPath}
			switch {
			case ev.OperationType == "delete" || ev.FullDocument == nil:
				change.Deleted = true
			default:
				doc, err := ev.FullDocument.toDocument()
				if err != nil {
					log.Printf("[Store] Error converting changed document %s: %v", docPath, err)
					continue
				}
				change.Document = doc
			}
			f.offer(change)
		}
		if err := stream.Err(); err != nil && watchCtx.Err() == nil {
			log.Printf("[Store] Change stream for %s ended: %v", path, err)
		}
	}()
	return f, nil
}

func (md *mongoDocument) toDocument() (*Document, error) {
	data, err := bson.MarshalExtJSON(md.Data, false, false)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document %s: %w", md.Path, err)
	}
	return &Document{Path: md.Path, Data: data, UpdatedAt: md.UpdatedAt}, nil
}

// toBSON round-trips value through JSON so documents keep their json tags
func toBSON(value any) (bson.M, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.UnmarshalExtJSON(data, false, &m); err != nil {
		return nil, ErrNotAnObject
	}
	return m, nil
}
