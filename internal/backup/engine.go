package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"github.com/saltlab/pgdev/internal/catalog"
	"github.com/saltlab/pgdev/internal/config"
	"github.com/saltlab/pgdev/internal/service"
)

// Artifact is one compressed logical dump on disk.
type Artifact struct {
	Database  string
	Path      string
	SizeBytes int64
	CreatedAt time.Time
}

// Class categorizes a backup failure.
type Class string

const (
	ClassDatabaseMissing Class = "database-missing"
	ClassDumpFailed      Class = "dump-failed"
	ClassEmptyArtifact   Class = "empty-artifact"
	ClassWriteFailed     Class = "write-failed"
)

// Error reports a failed backup attempt. For a missing database, Existing
// lists the databases that do exist so the caller can pick the right name.
type Error struct {
	Class    Class
	Database string
	Existing []string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("backup of %q failed (%s): %v", e.Database, e.Class, e.Err)
	if len(e.Existing) > 0 {
		msg += fmt.Sprintf("; existing databases: %s", strings.Join(e.Existing, ", "))
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Engine produces compressed logical dumps. It never starts the service
// itself: backups are routine operations that should fail loudly rather
// than change system state.
type Engine struct {
	settings  *config.Settings
	inspector *catalog.Inspector
	svc       *service.Controller

	dumpBinary string
	now        func() time.Time
}

func NewEngine(settings *config.Settings, inspector *catalog.Inspector, svc *service.Controller) *Engine {
	return &Engine{
		settings:   settings,
		inspector:  inspector,
		svc:        svc,
		dumpBinary: "pg_dump",
		now:        time.Now,
	}
}

// Backup dumps the named database into dir as a gzip-compressed artifact.
// The dump is streamed through the compressor straight into the file, so
// peak disk usage is bounded by the compressed size. On failure a partial
// artifact is left in place for postmortem inspection.
func (e *Engine) Backup(ctx context.Context, name, dir string) (Artifact, error) {
	if e.svc.State(ctx) != service.StateRunning {
		return Artifact{}, &service.NotRunningError{Op: "backup"}
	}

	exists, err := e.inspector.Exists(ctx, name)
	if err != nil {
		return Artifact{}, err
	}
	if !exists {
		return Artifact{}, &Error{
			Class:    ClassDatabaseMissing,
			Database: name,
			Existing: e.existingNames(ctx),
			Err:      fmt.Errorf("database does not exist"),
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifact{}, &Error{Class: ClassWriteFailed, Database: name, Err: fmt.Errorf("creating target directory: %w", err)}
	}

	createdAt := e.now()
	path := artifactPath(dir, name, createdAt)

	artifact, err := e.dump(ctx, name, path)
	if err != nil {
		return Artifact{}, err
	}
	artifact.CreatedAt = createdAt

	log.Info().Str("database", name).Str("path", artifact.Path).
		Int64("size_bytes", artifact.SizeBytes).Msg("Backup complete")
	return artifact, nil
}

func (e *Engine) dump(ctx context.Context, name, path string) (Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, config.GetTimeouts().Dump)
	defer cancel()

	file, err := os.Create(path)
	if err != nil {
		return Artifact{}, &Error{Class: ClassWriteFailed, Database: name, Err: err}
	}
	defer file.Close()

	args := []string{
		"--host", e.settings.Host,
		"--port", fmt.Sprint(e.settings.Port),
		"--username", e.settings.Superuser,
		"--no-password",
		name,
	}
	cmd := exec.CommandContext(ctx, e.dumpBinary, args...)
	cmd.Env = os.Environ()
	if e.settings.SuperuserPassword != "" {
		cmd.Env = append(cmd.Env, "PGPASSWORD="+e.settings.SuperuserPassword)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Artifact{}, &Error{Class: ClassDumpFailed, Database: name, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return Artifact{}, &Error{Class: ClassDumpFailed, Database: name, Err: fmt.Errorf("starting %s: %w", e.dumpBinary, err)}
	}

	gz := gzip.NewWriter(file)
	written, copyErr := io.Copy(gz, stdout)
	waitErr := cmd.Wait()
	closeErr := closeArtifact(gz, file)

	// Partial artifacts are kept on purpose.
	if waitErr != nil {
		return Artifact{}, &Error{
			Class:    ClassDumpFailed,
			Database: name,
			Err:      fmt.Errorf("%s: %w: %s", e.dumpBinary, waitErr, strings.TrimSpace(stderr.String())),
		}
	}
	if copyErr != nil {
		return Artifact{}, &Error{Class: ClassWriteFailed, Database: name, Err: copyErr}
	}
	if closeErr != nil {
		return Artifact{}, &Error{Class: ClassWriteFailed, Database: name, Err: closeErr}
	}
	// The compressed file always carries gzip framing, so emptiness is
	// judged on the bytes the dump actually produced. A clean exit with no
	// output still means silent truncation.
	if written == 0 {
		return Artifact{}, &Error{Class: ClassEmptyArtifact, Database: name, Err: fmt.Errorf("dump produced no data (artifact %s holds gzip framing only)", path)}
	}

	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, &Error{Class: ClassWriteFailed, Database: name, Err: err}
	}

	return Artifact{Database: name, Path: path, SizeBytes: info.Size()}, nil
}

// closeArtifact flushes the final compressed block and syncs the file.
// Either can fail after a clean dump exit (disk full at the last flush), and
// that must surface as a write failure, not a successful backup.
func closeArtifact(gz *gzip.Writer, file *os.File) error {
	if err := gz.Close(); err != nil {
		return fmt.Errorf("flushing compressed artifact: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("syncing artifact: %w", err)
	}
	return nil
}

func (e *Engine) existingNames(ctx context.Context) []string {
	entries, err := e.inspector.List(ctx)
	if err != nil {
		return nil
	}
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name
	}
	return names
}

// RestoreRecipe returns the shell commands that restore the artifact, first
// into the original database, then into a fresh one.
func (e *Engine) RestoreRecipe(a Artifact) []string {
	psql := fmt.Sprintf("psql --host %s --port %d --username %s", e.settings.Host, e.settings.Port, e.settings.Superuser)
	return []string{
		fmt.Sprintf("gunzip -c %s | %s %s", a.Path, psql, a.Database),
		fmt.Sprintf("createdb --host %s --port %d --username %s %s_restored && gunzip -c %s | %s %s_restored",
			e.settings.Host, e.settings.Port, e.settings.Superuser, a.Database, a.Path, psql, a.Database),
	}
}
