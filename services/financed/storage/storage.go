package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
)

// Snapshot kinds persisted by the daemon.
const (
	KindAMMPool     = "amm_pool"
	KindLendingPool = "lending_pool"
	KindSeries      = "tranche_series"
)

var (
	// ErrPathRequired is returned when the backing store path is missing.
	ErrPathRequired = errors.New("financed storage path must be configured")
	// ErrNotFound is returned when no snapshot exists for a kind and id.
	ErrNotFound = errors.New("snapshot not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    kind       TEXT NOT NULL,
    id         TEXT NOT NULL,
    body       TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (kind, id)
);
`

// Storage persists the latest committed JSON snapshot of every resource.
type Storage struct {
	db  *sql.DB
	now func() time.Time
}

// Record is one stored snapshot.
type Record struct {
	Kind      string
	ID        string
	Body      []byte
	UpdatedAt time.Time
}

// Open initialises the backing store using sqlite-compatible DSN.
func Open(dsn string) (*Storage, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db, now: time.Now}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put upserts the JSON encoding of value under kind and id.
func (s *Storage) Put(ctx context.Context, kind, id string, value any) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	kind, id = strings.TrimSpace(kind), strings.TrimSpace(id)
	if kind == "" || id == "" {
		return fmt.Errorf("snapshot kind and id required")
	}
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", kind, id, err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO snapshots(kind, id, body, updated_at)
        VALUES(?, ?, ?, ?)
        ON CONFLICT(kind, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
    `, kind, id, string(body), s.now().UTC())
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// Get decodes the snapshot stored under kind and id into dst.
func (s *Storage) Get(ctx context.Context, kind, id string, dst any) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM snapshots WHERE kind = ? AND id = ?`, kind, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return nil
}

// List returns every snapshot of kind ordered by id.
func (s *Storage) List(ctx context.Context, kind string) ([]Record, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, body, updated_at FROM snapshots WHERE kind = ? ORDER BY id
    `, kind)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec := Record{Kind: kind}
		var body string
		if err := rows.Scan(&rec.ID, &body, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		rec.Body = []byte(body)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// Delete removes a snapshot. Deleting a missing snapshot is not an error.
func (s *Storage) Delete(ctx context.Context, kind, id string) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE kind = ? AND id = ?`, kind, id); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
