package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/saltlab/pgdev/internal/config"
)

func testSettings() *config.Settings {
	return &config.Settings{
		Host:      "localhost",
		Port:      5432,
		Superuser: "postgres",
	}
}

func TestError_ListsExistingDatabases(t *testing.T) {
	err := &Error{
		Class:    ClassDatabaseMissing,
		Database: "missing",
		Existing: []string{"blog", "shop"},
		Err:      errors.New("database does not exist"),
	}
	msg := err.Error()
	if !strings.Contains(msg, "database-missing") {
		t.Fatalf("expected class in message, got %q", msg)
	}
	if !strings.Contains(msg, "blog, shop") {
		t.Fatalf("expected existing databases in message, got %q", msg)
	}
}

// stubDump writes an executable script that stands in for the dump binary.
func stubDump(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub_dump")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDump_WritesCompressedOutput(t *testing.T) {
	engine := NewEngine(testSettings(), nil, nil)
	engine.dumpBinary = stubDump(t, "#!/bin/sh\nprintf 'CREATE TABLE t ();\\n'\n")
	path := filepath.Join(t.TempDir(), "shop_20260823_143005.sql.gz")

	artifact, err := engine.dump(context.Background(), "shop", path)
	if err != nil {
		t.Fatalf("dump failed: %v", err)
	}
	if artifact.SizeBytes <= 0 {
		t.Fatalf("expected nonzero artifact size, got %d", artifact.SizeBytes)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	gz, err := gzip.NewReader(file)
	if err != nil {
		t.Fatalf("artifact is not valid gzip: %v", err)
	}
	data, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("decompressing artifact: %v", err)
	}
	if string(data) != "CREATE TABLE t ();\n" {
		t.Fatalf("unexpected artifact content %q", data)
	}
}

func TestDump_EmptyOutputIsFailure(t *testing.T) {
	engine := NewEngine(testSettings(), nil, nil)
	engine.dumpBinary = stubDump(t, "#!/bin/sh\nexit 0\n")
	path := filepath.Join(t.TempDir(), "shop_20260823_143005.sql.gz")

	_, err := engine.dump(context.Background(), "shop", path)
	var berr *Error
	if !errors.As(err, &berr) {
		t.Fatalf("expected backup error, got %v", err)
	}
	// A clean exit that produced nothing is still a failure: the file only
	// ever holds gzip framing.
	if berr.Class != ClassEmptyArtifact {
		t.Fatalf("expected class empty-artifact, got %s", berr.Class)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("partial artifact should be left in place: %v", statErr)
	}
}

func TestDump_NonZeroExitIsDumpFailed(t *testing.T) {
	engine := NewEngine(testSettings(), nil, nil)
	engine.dumpBinary = stubDump(t, "#!/bin/sh\necho 'connection refused' >&2\nexit 1\n")
	path := filepath.Join(t.TempDir(), "shop_20260823_143005.sql.gz")

	_, err := engine.dump(context.Background(), "shop", path)
	var berr *Error
	if !errors.As(err, &berr) {
		t.Fatalf("expected backup error, got %v", err)
	}
	if berr.Class != ClassDumpFailed {
		t.Fatalf("expected class dump-failed, got %s", berr.Class)
	}
	if !strings.Contains(berr.Error(), "connection refused") {
		t.Fatalf("expected captured stderr in error, got %q", berr.Error())
	}
}

func TestCloseArtifact_ReportsFlushFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.sql.gz")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	// Opened read-only, so the compressor's final flush cannot be written.
	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	if _, err := io.WriteString(gz, "data"); err != nil {
		t.Fatal(err)
	}
	if err := closeArtifact(gz, file); err == nil {
		t.Fatal("expected flush failure on read-only file")
	}
}

func TestRestoreRecipe(t *testing.T) {
	engine := NewEngine(testSettings(), nil, nil)
	artifact := Artifact{Database: "shop", Path: "/tmp/b/shop_20260823_143005.sql.gz"}

	recipe := engine.RestoreRecipe(artifact)
	if len(recipe) != 2 {
		t.Fatalf("expected two recipe lines, got %d", len(recipe))
	}

	same := recipe[0]
	if !strings.Contains(same, "gunzip -c /tmp/b/shop_20260823_143005.sql.gz") {
		t.Fatalf("same-name recipe missing decompression: %q", same)
	}
	if !strings.HasSuffix(same, "shop") {
		t.Fatalf("same-name recipe must target the original database: %q", same)
	}

	fresh := recipe[1]
	if !strings.Contains(fresh, "createdb") || !strings.Contains(fresh, "shop_restored") {
		t.Fatalf("fresh-database recipe must create shop_restored: %q", fresh)
	}
}
