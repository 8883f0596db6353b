package logging

import (
	"path/filepath"
	"testing"
)

func TestFilePathForJournal(t *testing.T) {
	if got := FilePathForJournal(""); got != DefaultLogFilePath {
		t.Fatalf("expected default path, got %q", got)
	}

	got := FilePathForJournal("/home/dev/.local/share/pgdev/pgdev.db")
	want := filepath.Join("/home/dev/.local/share/pgdev", DefaultLogFilePath)
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
