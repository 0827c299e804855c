// Package history keeps a searchable index of every scan across sessions.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	packer_id   TEXT NOT NULL,
	packer_name TEXT NOT NULL,
	code        TEXT NOT NULL,
	photo       TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	station     TEXT NOT NULL DEFAULT '',
	scanned_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS scans_code ON scans(code);
CREATE INDEX IF NOT EXISTS scans_scanned_at ON scans(scanned_at);
`

// Scan is one product barcode processed at a station.
type Scan struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	PackerID   string    `json:"packer_id"`
	PackerName string    `json:"packer_name"`
	Code       string    `json:"code"`
	Photo      string    `json:"photo,omitempty"`
	Source     string    `json:"source,omitempty"`
	Station    string    `json:"station,omitempty"`
	ScannedAt  time.Time `json:"scanned_at"`
}

// Store is a SQLite-backed scan index.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history folder: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	// stdin and HTTP scans may write concurrently
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a scan, assigning an id when empty. The stored scan is
// returned.
func (s *Store) Record(ctx context.Context, scan Scan) (Scan, error) {
	if scan.ID == "" {
		scan.ID = uuid.NewString()
	}
	if scan.ScannedAt.IsZero() {
		scan.ScannedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO scans
		(id, session_id, packer_id, packer_name, code, photo, source, station, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scan.ID, scan.SessionID, scan.PackerID, scan.PackerName, scan.Code,
		scan.Photo, scan.Source, scan.Station, scan.ScannedAt.UTC().Format(timeLayout))
	if err != nil {
		return scan, fmt.Errorf("failed to record scan %s: %w", scan.Code, err)
	}
	return scan, nil
}

// FindByCode returns every scan of code, newest first.
func (s *Store) FindByCode(ctx context.Context, code string) ([]Scan, error) {
	return s.query(ctx, `SELECT id, session_id, packer_id, packer_name, code, photo, source, station, scanned_at
		FROM scans WHERE code = ? ORDER BY scanned_at DESC`, code)
}

// Recent returns the latest n scans, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Scan, error) {
	if n <= 0 {
		n = 20
	}
	return s.query(ctx, `SELECT id, session_id, packer_id, packer_name, code, photo, source, station, scanned_at
		FROM scans ORDER BY scanned_at DESC LIMIT ?`, n)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Scan, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	var out []Scan
	for rows.Next() {
		var sc Scan
		var at string
		if err := rows.Scan(&sc.ID, &sc.SessionID, &sc.PackerID, &sc.PackerName, &sc.Code,
			&sc.Photo, &sc.Source, &sc.Station, &at); err != nil {
			return nil, fmt.Errorf("failed to read scan row: %w", err)
		}
		sc.ScannedAt, err = time.Parse(timeLayout, at)
		if err != nil {
			return nil, fmt.Errorf("bad scanned_at %q: %w", at, err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
