package catalog

import (
	"errors"
	"strings"
	"testing"
)

func TestIsSystemDatabase(t *testing.T) {
	for _, name := range []string{"postgres", "template0", "template1"} {
		if !IsSystemDatabase(name) {
			t.Fatalf("expected %q to be a system database", name)
		}
	}
	for _, name := range []string{"shop", "templates", "postgres2"} {
		if IsSystemDatabase(name) {
			t.Fatalf("expected %q not to be a system database", name)
		}
	}
}

func TestUnavailableError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &UnavailableError{Err: cause}
	if !strings.Contains(err.Error(), "catalog unavailable") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be unwrapped")
	}
}

func TestQueryListDatabases_OrdersAndExcludes(t *testing.T) {
	// The exclusion and ordering contract lives in the SQL itself.
	if !strings.Contains(queryListDatabases, "ORDER BY d.datname") {
		t.Fatal("list query must order alphabetically")
	}
	if !strings.Contains(queryListDatabases, "NOT d.datistemplate") {
		t.Fatal("list query must exclude template databases")
	}
	if !strings.Contains(queryListDatabases, "d.datname <> 'postgres'") {
		t.Fatal("list query must exclude the postgres maintenance database")
	}
}
