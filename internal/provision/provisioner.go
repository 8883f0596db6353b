package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/saltlab/pgdev/internal/config"
	"github.com/saltlab/pgdev/internal/service"
)

// Tenant is an isolated database + dedicated role + secret triple.
type Tenant struct {
	Database string
	Role     string
	Secret   string
}

// Result carries everything Create hands back besides the tenant itself.
type Result struct {
	URI            string
	DescriptorPath string
	AutoStarted    bool
	Warnings       []string
}

// Class categorizes a provisioning failure by its failing statement.
type Class string

const (
	ClassRoleExists       Class = "role-exists"
	ClassDatabaseExists   Class = "database-exists"
	ClassPermissionDenied Class = "permission-denied"
	ClassOther            Class = "other"
)

// Error reports a failed provisioning attempt. Completed lists the DDL
// steps that succeeded before the failure; those objects are NOT rolled
// back and need manual cleanup.
type Error struct {
	Class     Class
	Database  string
	Completed []string
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("provisioning %q failed (%s): %v", e.Database, e.Class, e.Err)
	if len(e.Completed) > 0 {
		msg += fmt.Sprintf("; already created: %s (manual cleanup required)", strings.Join(e.Completed, ", "))
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Provisioner creates tenant database + role pairs with generated secrets.
type Provisioner struct {
	settings *config.Settings
	svc      *service.Controller
}

func NewProvisioner(settings *config.Settings, svc *service.Controller) *Provisioner {
	return &Provisioner{settings: settings, svc: svc}
}

// Create provisions a new tenant. If the service is stopped it is started
// first and the readiness wait is part of the call. When envDir is
// non-empty a credential descriptor is written there; a descriptor write
// failure is reported as a warning in the result, never as an error, since
// the database and role already exist.
func (p *Provisioner) Create(ctx context.Context, name, envDir string) (Tenant, Result, error) {
	var result Result

	if err := ValidateIdentifier(name); err != nil {
		return Tenant{}, result, err
	}
	role := RoleName(name)

	if p.svc.State(ctx) == service.StateStopped {
		if err := p.svc.EnsureRunning(ctx); err != nil {
			return Tenant{}, result, err
		}
		result.AutoStarted = true
	}

	secret, err := GenerateSecret()
	if err != nil {
		return Tenant{}, result, fmt.Errorf("generating secret: %w", err)
	}
	tenant := Tenant{Database: name, Role: role, Secret: secret}

	completed, err := p.runDDL(ctx, tenant)
	if err != nil {
		return Tenant{}, result, &Error{
			Class:     classify(err),
			Database:  name,
			Completed: completed,
			Err:       err,
		}
	}

	result.URI = p.settings.TenantConnString(role, secret, name)
	log.Info().Str("database", name).Str("role", role).Msg("Tenant provisioned")

	if envDir != "" {
		path, err := WriteDescriptor(envDir, p.settings, tenant)
		if err != nil {
			warning := fmt.Sprintf("database and role were created, but the credential file could not be written: %v", err)
			log.Warn().Err(err).Str("database", name).Msg("Credential descriptor write failed")
			result.Warnings = append(result.Warnings, warning)
		} else {
			result.DescriptorPath = path
		}
	}

	return tenant, result, nil
}

// runDDL issues the provisioning statements in order on one admin session,
// then grants schema privileges on a second connection to the new database
// (CREATE DATABASE cannot run inside a transaction block, so the sequence
// is ordered statements, not a transaction). Returns the human-readable
// names of the steps that completed.
func (p *Provisioner) runDDL(ctx context.Context, t Tenant) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 4*config.GetTimeouts().AdminSQL)
	defer cancel()

	var completed []string

	conn, err := pgx.Connect(ctx, p.settings.AdminConnString("postgres"))
	if err != nil {
		return completed, fmt.Errorf("connecting as superuser: %w", err)
	}
	defer conn.Close(ctx)

	dbIdent := pgx.Identifier{t.Database}.Sanitize()
	roleIdent := pgx.Identifier{t.Role}.Sanitize()

	// The secret is alphanumeric only, so the quoted literal cannot break
	// out of the statement.
	steps := []struct {
		name string
		sql  string
	}{
		{"role " + t.Role, fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD '%s'", roleIdent, t.Secret)},
		{"database " + t.Database, fmt.Sprintf("CREATE DATABASE %s OWNER %s", dbIdent, roleIdent)},
		{"database privileges", fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s", dbIdent, roleIdent)},
	}
	for _, step := range steps {
		if _, err := conn.Exec(ctx, step.sql); err != nil {
			return completed, fmt.Errorf("creating %s: %w", step.name, err)
		}
		completed = append(completed, step.name)
	}

	tenantConn, err := pgx.Connect(ctx, p.settings.AdminConnString(t.Database))
	if err != nil {
		return completed, fmt.Errorf("connecting to new database %q: %w", t.Database, err)
	}
	defer tenantConn.Close(ctx)

	if _, err := tenantConn.Exec(ctx, fmt.Sprintf("GRANT ALL ON SCHEMA public TO %s", roleIdent)); err != nil {
		return completed, fmt.Errorf("granting schema privileges: %w", err)
	}
	completed = append(completed, "schema privileges")

	return completed, nil
}

// SQLSTATE codes for the failure classes callers act on.
const (
	sqlstateDuplicateObject       = "42710"
	sqlstateDuplicateDatabase     = "42P04"
	sqlstateInsufficientPrivilege = "42501"
)

func classify(err error) Class {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ClassOther
	}
	switch pgErr.Code {
	case sqlstateDuplicateObject:
		return ClassRoleExists
	case sqlstateDuplicateDatabase:
		return ClassDatabaseExists
	case sqlstateInsufficientPrivilege:
		return ClassPermissionDenied
	default:
		return ClassOther
	}
}
