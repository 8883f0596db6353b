package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Kind identifies the operation a record describes.
type Kind string

const (
	KindProvision Kind = "provision"
	KindBackup    Kind = "backup"
	KindToggle    Kind = "toggle"
)

// Record is one journaled operation outcome. Secrets are never journaled.
type Record struct {
	ID        string
	Kind      Kind
	Database  string
	Detail    string
	Status    string
	CreatedAt time.Time
}

// Journal is an append-only local record of operations this tool performed.
// It is strictly advisory: callers treat every journal failure as a warning,
// never as a reason to fail the primary operation.
type Journal struct {
	db   *sql.DB
	path string
}

// DefaultPath places the journal under the user's data directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "pgdev.db"
	}
	return filepath.Join(home, ".local", "share", "pgdev", "pgdev.db")
}

// Open creates (if needed) and opens the journal database.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	// WAL mode so a concurrent invocation never blocks on the journal.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	j := &Journal{db: db, path: path}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug().Str("path", path).Msg("Journal opened")
	return j, nil
}

func (j *Journal) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS operations (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	database TEXT NOT NULL,
	detail TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_operations_created_at ON operations(created_at DESC);`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate journal: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// Append records one operation outcome.
func (j *Journal) Append(kind Kind, database, detail, status string) error {
	_, err := j.db.Exec(
		"INSERT INTO operations (id, kind, database, detail, status, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		uuid.NewString(), string(kind), database, detail, status, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append journal record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(
		"SELECT id, kind, database, detail, status, created_at FROM operations ORDER BY created_at DESC, id LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var kind string
		if err := rows.Scan(&r.ID, &kind, &r.Database, &r.Detail, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal record: %w", err)
		}
		r.Kind = Kind(kind)
		records = append(records, r)
	}
	return records, rows.Err()
}
