package provision

import (
	"fmt"
	"regexp"

	"github.com/saltlab/pgdev/internal/catalog"
)

// ValidationError indicates a bad or missing identifier. It is raised
// locally and never escalated to the server.
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("invalid database name: %s", e.Reason)
	}
	return fmt.Sprintf("invalid database name %q: %s", e.Name, e.Reason)
}

// Unquoted SQL identifiers: lowercase letter or underscore first, then
// letters, digits, underscores.
var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// maxIdentifierLen mirrors the server's NAMEDATALEN-1 limit.
const maxIdentifierLen = 63

// ValidateIdentifier checks that name is usable as an unquoted database
// identifier. The derived role name gets a "_user" suffix, so the name must
// also leave room for it.
func ValidateIdentifier(name string) error {
	if name == "" {
		return &ValidationError{Reason: "name must not be empty"}
	}
	if len(name) > maxIdentifierLen-len(roleSuffix) {
		return &ValidationError{Name: name, Reason: fmt.Sprintf("name longer than %d characters", maxIdentifierLen-len(roleSuffix))}
	}
	if !identifierPattern.MatchString(name) {
		return &ValidationError{Name: name, Reason: "must start with a lowercase letter or underscore and contain only lowercase letters, digits, and underscores"}
	}
	if catalog.IsSystemDatabase(name) {
		return &ValidationError{Name: name, Reason: "reserved system database name"}
	}
	return nil
}

const roleSuffix = "_user"

// RoleName derives the dedicated role name for a tenant database.
func RoleName(database string) string {
	return database + roleSuffix
}
