package provision

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		code string
		want Class
	}{
		{sqlstateDuplicateObject, ClassRoleExists},
		{sqlstateDuplicateDatabase, ClassDatabaseExists},
		{sqlstateInsufficientPrivilege, ClassPermissionDenied},
		{"53300", ClassOther},
	}
	for _, tc := range cases {
		err := fmt.Errorf("creating role: %w", &pgconn.PgError{Code: tc.code})
		if got := classify(err); got != tc.want {
			t.Fatalf("code %s: expected class %s, got %s", tc.code, tc.want, got)
		}
	}
}

func TestClassify_NonServerError(t *testing.T) {
	if got := classify(errors.New("connection refused")); got != ClassOther {
		t.Fatalf("expected class other, got %s", got)
	}
}

func TestError_ReportsCompletedSteps(t *testing.T) {
	err := &Error{
		Class:     ClassDatabaseExists,
		Database:  "shop",
		Completed: []string{"role shop_user"},
		Err:       errors.New("database already exists"),
	}
	msg := err.Error()
	if !strings.Contains(msg, "database-exists") {
		t.Fatalf("expected class in message, got %q", msg)
	}
	if !strings.Contains(msg, "role shop_user") {
		t.Fatalf("expected completed steps in message, got %q", msg)
	}
	if !strings.Contains(msg, "manual cleanup") {
		t.Fatalf("expected cleanup hint in message, got %q", msg)
	}
}

func TestError_NoStepsNoCleanupHint(t *testing.T) {
	err := &Error{Class: ClassOther, Database: "shop", Err: errors.New("boom")}
	if strings.Contains(err.Error(), "manual cleanup") {
		t.Fatalf("unexpected cleanup hint in %q", err.Error())
	}
}
