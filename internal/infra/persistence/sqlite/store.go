// Package sqlite persists the catalog to an embedded SQLite file by
// snapshotting the in-memory store after every successful mutation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"framegrid/internal/catalog"
	"framegrid/internal/infra/persistence/memory"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ catalog.Store = (*Store)(nil)

// Store persists the in-memory state to a single SQLite table as JSON blobs.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the database at path and hydrates the store
// from any snapshot already present.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "framegrid.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

var sqliteBuckets = []string{"records", "next_id"}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := memory.Snapshot{}
	found := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		found = true
		switch bucket {
		case "records":
			if err := json.Unmarshal(payload, &snapshot.Records); err != nil {
				return fmt.Errorf("decode records: %w", err)
			}
		case "next_id":
			if err := json.Unmarshal(payload, &snapshot.NextID); err != nil {
				return fmt.Errorf("decode next_id: %w", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if found {
		s.ImportState(snapshot)
	}
	return nil
}

// persistLocked writes the current state. Callers hold s.mu.
func (s *Store) persistLocked(ctx context.Context) (retErr error) {
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range sqliteBuckets {
		var data []byte
		switch bucket {
		case "records":
			data, err = json.Marshal(snapshot.Records)
		case "next_id":
			data, err = json.Marshal(snapshot.NextID)
		}
		if err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	return tx.Commit()
}

// mutate applies a change to the in-memory state and persists it. When the
// write fails the in-memory state is restored, so an error leaves the
// catalog as it was.
func (s *Store) mutate(ctx context.Context, apply func() (catalog.Record, error)) (catalog.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.ExportState()
	out, err := apply()
	if err != nil {
		return out, err
	}
	if err := s.persistLocked(ctx); err != nil {
		s.ImportState(before)
		return catalog.Record{}, err
	}
	return out, nil
}

// Create stores the record and snapshots to SQLite.
func (s *Store) Create(ctx context.Context, rec catalog.Record) (catalog.Record, error) {
	return s.mutate(ctx, func() (catalog.Record, error) { return s.Store.Create(ctx, rec) })
}

// Update applies fn and snapshots to SQLite if it succeeds.
func (s *Store) Update(ctx context.Context, id int64, fn func(*catalog.Record) error) (catalog.Record, error) {
	return s.mutate(ctx, func() (catalog.Record, error) { return s.Store.Update(ctx, id, fn) })
}

// Delete removes the record and snapshots to SQLite.
func (s *Store) Delete(ctx context.Context, id int64) (catalog.Record, error) {
	return s.mutate(ctx, func() (catalog.Record, error) { return s.Store.Delete(ctx, id) })
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
