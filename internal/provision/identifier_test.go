package provision

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"shop", "my_app", "_private", "db2", "a"}
	for _, name := range valid {
		if err := ValidateIdentifier(name); err != nil {
			t.Fatalf("expected %q to be valid, got %v", name, err)
		}
	}

	invalid := []string{
		"",
		"Shop",
		"2shop",
		"my-app",
		"my app",
		"shop;drop",
		"postgres",
		"template0",
		"template1",
		strings.Repeat("a", 64),
	}
	for _, name := range invalid {
		err := ValidateIdentifier(name)
		if err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError for %q, got %T", name, err)
		}
	}
}

func TestValidateIdentifier_LeavesRoomForRoleSuffix(t *testing.T) {
	// 58 chars + "_user" = 63, the server's limit.
	if err := ValidateIdentifier(strings.Repeat("a", 58)); err != nil {
		t.Fatalf("expected 58-char name to be valid, got %v", err)
	}
	if err := ValidateIdentifier(strings.Repeat("a", 59)); err == nil {
		t.Fatal("expected 59-char name to be rejected")
	}
}

func TestRoleName(t *testing.T) {
	if got := RoleName("shop"); got != "shop_user" {
		t.Fatalf("expected shop_user, got %q", got)
	}
}
