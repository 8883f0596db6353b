package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/saltlab/pgdev/internal/config"
)

// Entry is a read-only projection of one tenant database.
type Entry struct {
	Name      string
	Owner     string
	SizeBytes int64
}

// UnavailableError indicates the server catalog could not be queried at all.
// It never wraps a partial result.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("catalog unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// systemDatabases are excluded from every result.
var systemDatabases = map[string]bool{
	"postgres":  true,
	"template0": true,
	"template1": true,
}

// IsSystemDatabase reports whether name is one of the server's built-in
// databases that this tool never lists, backs up, or provisions over.
func IsSystemDatabase(name string) bool {
	return systemDatabases[name]
}

const queryListDatabases = `
SELECT d.datname, r.rolname, pg_database_size(d.oid)
FROM pg_database d
JOIN pg_roles r ON r.oid = d.datdba
WHERE NOT d.datistemplate
  AND d.datname <> 'postgres'
ORDER BY d.datname`

const queryConnectionCounts = `
SELECT datname, count(*)
FROM pg_stat_activity
WHERE datname IS NOT NULL
GROUP BY datname`

// Inspector enumerates tenant databases. Every call opens a fresh
// short-lived connection: results are a point-in-time snapshot, never a
// cache.
type Inspector struct {
	settings *config.Settings
}

func NewInspector(settings *config.Settings) *Inspector {
	return &Inspector{settings: settings}
}

func (i *Inspector) connect(ctx context.Context) (*pgx.Conn, error) {
	return pgx.Connect(ctx, i.settings.AdminConnString("postgres"))
}

// List returns all tenant databases in alphabetical order.
func (i *Inspector) List(ctx context.Context) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, config.GetTimeouts().AdminSQL)
	defer cancel()

	conn, err := i.connect(ctx)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, queryListDatabases)
	if err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("listing databases: %w", err)}
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.Owner, &e.SizeBytes); err != nil {
			return nil, &UnavailableError{Err: fmt.Errorf("scanning database row: %w", err)}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &UnavailableError{Err: err}
	}
	return entries, nil
}

// Exists reports whether a tenant database with the given name exists.
// System databases are never reported as existing.
func (i *Inspector) Exists(ctx context.Context, name string) (bool, error) {
	if IsSystemDatabase(name) {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, config.GetTimeouts().AdminSQL)
	defer cancel()

	conn, err := i.connect(ctx)
	if err != nil {
		return false, &UnavailableError{Err: err}
	}
	defer conn.Close(ctx)

	var found bool
	err = conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&found)
	if err != nil {
		return false, &UnavailableError{Err: fmt.Errorf("checking database %q: %w", name, err)}
	}
	return found, nil
}

// ConnectionCounts returns the number of live connections per database.
func (i *Inspector) ConnectionCounts(ctx context.Context) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, config.GetTimeouts().AdminSQL)
	defer cancel()

	conn, err := i.connect(ctx)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, queryConnectionCounts)
	if err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("querying connection counts: %w", err)}
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, &UnavailableError{Err: fmt.Errorf("scanning activity row: %w", err)}
		}
		counts[name] = n
	}
	if err := rows.Err(); err != nil {
		return nil, &UnavailableError{Err: err}
	}
	return counts, nil
}

// TenantCount returns the number of tenant databases.
func (i *Inspector) TenantCount(ctx context.Context) (int, error) {
	entries, err := i.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Ping checks that the server accepts connections and answers a trivial
// query. Used for service readiness probing.
func (i *Inspector) Ping(ctx context.Context) error {
	conn, err := i.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	var one int
	return conn.QueryRow(ctx, "SELECT 1").Scan(&one)
}

// ServerVersion returns the server version string, best-effort.
func (i *Inspector) ServerVersion(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, config.GetTimeouts().AdminSQL)
	defer cancel()

	conn, err := i.connect(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close(ctx)

	var version string
	if err := conn.QueryRow(ctx, "SHOW server_version").Scan(&version); err != nil {
		return "", fmt.Errorf("querying server version: %w", err)
	}
	return version, nil
}
