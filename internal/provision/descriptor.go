package provision

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/saltlab/pgdev/internal/config"
)

// WriteDescriptor persists a credential descriptor as .env.<database> under
// dir. The file is written once and never read back by this tool; it exists
// for downstream consumption (docker compose, direnv, application config).
func WriteDescriptor(dir string, settings *config.Settings, t Tenant) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating descriptor directory: %w", err)
	}

	path := filepath.Join(dir, ".env."+t.Database)

	var b strings.Builder
	fmt.Fprintf(&b, "PGHOST=%s\n", settings.Host)
	fmt.Fprintf(&b, "PGPORT=%d\n", settings.Port)
	fmt.Fprintf(&b, "PGDATABASE=%s\n", t.Database)
	fmt.Fprintf(&b, "PGUSER=%s\n", t.Role)
	fmt.Fprintf(&b, "PGPASSWORD=%s\n", t.Secret)
	fmt.Fprintf(&b, "DATABASE_URL=%s\n", settings.TenantConnString(t.Role, t.Secret, t.Database))

	// Contains the secret, so owner-only permissions.
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return "", fmt.Errorf("writing credential descriptor: %w", err)
	}
	return path, nil
}
