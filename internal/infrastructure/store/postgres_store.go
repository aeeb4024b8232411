package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
)

// ChangeChannel is the LISTEN/NOTIFY channel fed by the documents trigger (see migrations)
const ChangeChannel = "document_changes"

// PostgresDocumentStore keeps documents in a JSONB table and turns NOTIFY
// payloads into subscription events.
type PostgresDocumentStore struct {
	db       *sql.DB
	listener *pq.Listener

	mu        sync.Mutex
	feeds     map[*feed]struct{}
	once      sync.Once
	listenErr error
}

type changeNotification struct {
	Path string `json:"path"`
	Op   string `json:"op"`
}

func NewPostgresDocumentStore(db *sql.DB, connStr string) *PostgresDocumentStore {
	listener := pq.NewListener(connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("[Store] Listener event %d: %v", ev, err)
		}
	})
	return &PostgresDocumentStore{
		db:       db,
		listener: listener,
		feeds:    make(map[*feed]struct{}),
	}
}

// Get returns the document stored at path
func (s *PostgresDocumentStore) Get(ctx context.Context, path string) (*Document, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	var doc Document
	err := s.db.QueryRowContext(ctx,
		"SELECT path, data, updated_at FROM documents WHERE path = $1",
		path,
	).Scan(&doc.Path, &doc.Data, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", path, err)
	}
	return &doc, nil
}

// Set upserts the document; merge uses jsonb concatenation, which is a shallow merge
func (s *PostgresDocumentStore) Set(ctx context.Context, path string, value any, merge bool) error {
	if path == "" {
		return ErrInvalidPath
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	query := `INSERT INTO documents (path, data, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (path) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`
	if merge {
		query = `INSERT INTO documents (path, data, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (path) DO UPDATE SET
			data = documents.data || EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`
	}

	if _, err := s.db.ExecContext(ctx, query, path, data, time.Now()); err != nil {
		return fmt.Errorf("failed to set document %s: %w", path, err)
	}
	return nil
}

// Delete removes the document at path
func (s *PostgresDocumentStore) Delete(ctx context.Context, path string) error {
	if path == "" {
		return ErrInvalidPath
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE path = $1", path); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", path, err)
	}
	return nil
}

// List returns the documents under collection using the text_pattern_ops index
func (s *PostgresDocumentStore) List(ctx context.Context, collection string) ([]*Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, data, updated_at FROM documents WHERE path LIKE $1 ESCAPE '\' ORDER BY path`,
		likePrefix(collection),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	docs := make([]*Document, 0)
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.Path, &doc.Data, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}

// Subscribe registers a feed on the shared listener
func (s *PostgresDocumentStore) Subscribe(ctx context.Context, path string) (Subscription, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}

	s.once.Do(func() {
		if s.listenErr = s.listener.Listen(ChangeChannel); s.listenErr == nil {
			go s.dispatch()
		}
	})
	if s.listenErr != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", ChangeChannel, s.listenErr)
	}

	f := newFeed(path)
	s.mu.Lock()
	s.feeds[f] = struct{}{}
	s.mu.Unlock()

	if doc, err := s.Get(ctx, path); err == nil {
		f.offer(Change{Path: path, Document: doc})
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		}
		s.mu.Lock()
		delete(s.feeds, f)
		s.mu.Unlock()
		f.Close()
	}()
	return f, nil
}

func (s *PostgresDocumentStore) dispatch() {
	for n := range s.listener.Notify {
		// nil notification means the connection was re-established; nothing to replay
		if n == nil {
			continue
		}
		var payload changeNotification
		if err := json.Unmarshal([]byte(n.Extra), &payload); err != nil {
			log.Printf("[Store] Malformed change notification: %v", err)
			continue
		}

		change := Change{Path: payload.Path, Deleted: payload.Op == "DELETE"}
		if !change.Deleted {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			doc, err := s.Get(ctx, payload.Path)
			cancel()
			if errors.Is(err, ErrDocumentNotFound) {
				change.Deleted = true
			} else if err != nil {
				log.Printf("[Store] Error loading changed document %s: %v", payload.Path, err)
				continue
			} else {
				change.Document = doc
			}
		}

		s.mu.Lock()
		for f := range s.feeds {
			if Matches(f.path, change.Path) {
				f.offer(change)
			}
		}
		s.mu.Unlock()
	}
}

// Close stops the listener, ending every open subscription
func (s *PostgresDocumentStore) Close() error {
	s.mu.Lock()
	for f := range s.feeds {
		f.Close()
	}
	s.mu.Unlock()
	return s.listener.Close()
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
