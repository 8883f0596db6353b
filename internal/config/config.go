package config

import (
	"fmt"
	"net/url"
)

// Settings holds the connection and service parameters for one invocation.
// Values are resolved in main from CLI flags with environment fallbacks.
type Settings struct {
	Host              string
	Port              int
	Superuser         string
	SuperuserPassword string

	// ServiceName is the OS service unit that runs the database server
	// (e.g. "postgresql" under systemd).
	ServiceName string

	// JournalPath is the location of the local operation journal.
	JournalPath string
}

// AdminConnString returns a connection string for the given maintenance
// database using the superuser credentials. An empty password yields a
// passwordless URI (peer/trust authentication).
func (s *Settings) AdminConnString(database string) string {
	return s.connString(s.Superuser, s.SuperuserPassword, database)
}

// TenantConnString composes the connection URI handed back to the caller
// after provisioning.
func (s *Settings) TenantConnString(role, secret, database string) string {
	return s.connString(role, secret, database)
}

func (s *Settings) connString(user, password, database string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", s.Host, s.Port),
		Path:   "/" + database,
	}
	if password != "" {
		u.User = url.UserPassword(user, password)
	} else {
		u.User = url.User(user)
	}
	return u.String()
}
