// Package sqlite provides a SQLite-backed SagaStore and append-only saga history.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/sagaflow/pkg/adapters/sqlite/migrations"
	"github.com/aretw0/sagaflow/pkg/domain"
	_ "modernc.org/sqlite"
)

// Store persists saga records and their history in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies embedded migrations.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path)
	}
	dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save upserts the record.
func (s *Store) Save(ctx context.Context, saga *domain.Saga) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(saga.ID) == "" {
		return fmt.Errorf("saga id is required")
	}
	data, err := json.Marshal(saga)
	if err != nil {
		return fmt.Errorf("marshal saga: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO sagas (id, name, status, version, data, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    status = excluded.status,
    version = excluded.version,
    data = excluded.data,
    updated_at = excluded.updated_at`,
		saga.ID, saga.Name, string(saga.Status), saga.Version, data,
		toMillis(saga.CreatedAt), toMillis(saga.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save saga %s: %w", saga.ID, err)
	}
	return nil
}

// Load reads the record.
func (s *Store) Load(ctx context.Context, sagaID string) (*domain.Saga, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.sqlDB.QueryRowContext(ctx, "SELECT data FROM sagas WHERE id = ?", sagaID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSagaNotFound
		}
		return nil, fmt.Errorf("load saga %s: %w", sagaID, err)
	}

	var saga domain.Saga
	if err := json.Unmarshal(data, &saga); err != nil {
		return nil, fmt.Errorf("unmarshal saga %s: %w", sagaID, err)
	}
	return &saga, nil
}

// Delete removes the record. History is kept.
func (s *Store) Delete(ctx context.Context, sagaID string) error {
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM sagas WHERE id = ?", sagaID); err != nil {
		return fmt.Errorf("delete saga %s: %w", sagaID, err)
	}
	return nil
}

// List returns all saga IDs, oldest first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx, "SELECT id FROM sagas ORDER BY created_at, id")
}

// ListByStatus returns the IDs of sagas in the given status, oldest first.
func (s *Store) ListByStatus(ctx context.Context, status domain.Status) ([]string, error) {
	return s.queryIDs(ctx, "SELECT id FROM sagas WHERE status = ? ORDER BY created_at, id", string(status))
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sagas: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan saga id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
