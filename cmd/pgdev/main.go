package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltlab/pgdev/internal/backup"
	"github.com/saltlab/pgdev/internal/catalog"
	"github.com/saltlab/pgdev/internal/config"
	"github.com/saltlab/pgdev/internal/journal"
	"github.com/saltlab/pgdev/internal/logging"
	"github.com/saltlab/pgdev/internal/provision"
	"github.com/saltlab/pgdev/internal/service"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	host              string
	port              int
	superuser         string
	superuserPassword string
	serviceUnit       string
	journalPath       string
	verbosity         int

	// Timeout flags (advanced)
	controlTimeout time.Duration
	sqlTimeout     time.Duration
	dumpTimeout    time.Duration

	// Per-command flags
	envDir          string
	withConnections bool
	backupDir       string
	historyLimit    int
)

var settings *config.Settings

func main() {
	rootCmd := &cobra.Command{
		Use:   "pgdev",
		Short: "pgdev - local PostgreSQL environment manager",
		Long: `pgdev drives a locally installed PostgreSQL instance through its
administrative surface: service control, per-project database and
credential provisioning, catalog listing, and compressed backups.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&host, "host", "localhost", "Server host (or set PGDEV_HOST)")
	pf.IntVar(&port, "port", 5432, "Server port (or set PGDEV_PORT)")
	pf.StringVar(&superuser, "superuser", "postgres", "Administrative role (or set PGDEV_SUPERUSER)")
	pf.StringVar(&superuserPassword, "superuser-password", "", "Administrative password; empty uses peer/trust auth (or set PGDEV_SUPERUSER_PASSWORD)")
	pf.StringVar(&serviceUnit, "service", "postgresql", "OS service unit name (or set PGDEV_SERVICE)")
	pf.StringVar(&journalPath, "journal", "", "Operation journal path (or set PGDEV_JOURNAL; default ~/.local/share/pgdev/pgdev.db)")
	pf.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	pf.DurationVar(&controlTimeout, "control-timeout", 30*time.Second, "Timeout for service start/stop and readiness wait")
	pf.DurationVar(&sqlTimeout, "sql-timeout", 10*time.Second, "Timeout for a single administrative SQL statement")
	pf.DurationVar(&dumpTimeout, "dump-timeout", 10*time.Minute, "Timeout for a full dump run")

	rootCmd.AddCommand(newServiceCmd(), newDBCmd(), newHistoryCmd())

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pgdev %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup resolves env fallbacks, configures logging, and builds the settings
// shared by every subcommand.
func setup(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("host") {
		if v := os.Getenv("PGDEV_HOST"); v != "" {
			host = v
		}
	}
	if !cmd.Flags().Changed("port") {
		if v := os.Getenv("PGDEV_PORT"); v != "" {
			p, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid PGDEV_PORT %q: %w", v, err)
			}
			port = p
		}
	}
	if !cmd.Flags().Changed("superuser") {
		if v := os.Getenv("PGDEV_SUPERUSER"); v != "" {
			superuser = v
		}
	}
	if superuserPassword == "" {
		superuserPassword = os.Getenv("PGDEV_SUPERUSER_PASSWORD")
	}
	if !cmd.Flags().Changed("service") {
		if v := os.Getenv("PGDEV_SERVICE"); v != "" {
			serviceUnit = v
		}
	}
	if journalPath == "" {
		journalPath = os.Getenv("PGDEV_JOURNAL")
	}
	if journalPath == "" {
		journalPath = journal.DefaultPath()
	}

	logging.Apply(verbosity, logging.FilePathForJournal(journalPath))

	config.SetGlobalTimeouts(&config.TimeoutConfig{
		ServiceControl: controlTimeout,
		AdminSQL:       sqlTimeout,
		Dump:           dumpTimeout,
	})

	settings = &config.Settings{
		Host:              host,
		Port:              port,
		Superuser:         superuser,
		SuperuserPassword: superuserPassword,
		ServiceName:       serviceUnit,
		JournalPath:       journalPath,
	}
	return nil
}

func buildController() (*service.Controller, *catalog.Inspector) {
	inspector := catalog.NewInspector(settings)
	return service.NewController(settings.ServiceName, inspector, inspector), inspector
}

// recordJournal appends an operation outcome best-effort. Journal trouble
// is logged and swallowed so it can never fail the primary operation.
func recordJournal(kind journal.Kind, database, detail, status string) {
	j, err := journal.Open(settings.JournalPath)
	if err != nil {
		log.Warn().Err(err).Msg("Operation journal unavailable; skipping record")
		return
	}
	defer j.Close()
	if err := j.Append(kind, database, detail, status); err != nil {
		log.Warn().Err(err).Msg("Failed to record operation in journal")
	}
}

func newServiceCmd() *cobra.Command {
	serviceCmd := &cobra.Command{
		Use:   "service",
		Short: "Query and toggle the database service",
	}

	serviceCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current service state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, _ := buildController()
			state := ctl.State(cmd.Context())
			fmt.Println(state)
			if state == service.StateRunning {
				printSummary(ctl.Summarize(cmd.Context()))
			}
			return nil
		},
	})

	serviceCmd.AddCommand(&cobra.Command{
		Use:   "toggle",
		Short: "Start the service when stopped, stop it when running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, _ := buildController()
			state, summary, err := ctl.Toggle(cmd.Context())
			if err != nil {
				recordJournal(journal.KindToggle, "", err.Error(), "error")
				return fmt.Errorf("%w; run 'pgdev service status' to check the resulting state", err)
			}
			recordJournal(journal.KindToggle, "", "service now "+string(state), "ok")
			fmt.Println(state)
			if state == service.StateRunning {
				printSummary(summary)
			}
			return nil
		},
	})

	return serviceCmd
}

func printSummary(s service.Summary) {
	if s.Version != "" {
		fmt.Printf("version: %s\n", s.Version)
	}
	fmt.Printf("tenant databases: %d\n", s.TenantCount)
}

func newDBCmd() *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Provision, list, and back up tenant databases",
	}

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an isolated database, role, and secret",
		Args:  cobra.ExactArgs(1),
		RunE:  runCreate,
	}
	createCmd.Flags().StringVar(&envDir, "env-dir", "", "Directory to write the .env.<name> credential file into")
	dbCmd.AddCommand(createCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tenant databases",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	listCmd.Flags().BoolVar(&withConnections, "with-connections", false, "Include live connection counts")
	dbCmd.AddCommand(listCmd)

	backupCmd := &cobra.Command{
		Use:   "backup <name>",
		Short: "Produce a compressed logical dump",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackup,
	}
	backupCmd.Flags().StringVar(&backupDir, "dir", "./backups", "Target directory for the artifact")
	dbCmd.AddCommand(backupCmd)

	return dbCmd
}

func runCreate(cmd *cobra.Command, args []string) error {
	name := args[0]
	ctl, _ := buildController()
	prov := provision.NewProvisioner(settings, ctl)

	tenant, result, err := prov.Create(cmd.Context(), name, envDir)
	if err != nil {
		recordJournal(journal.KindProvision, name, err.Error(), "error")
		return err
	}
	recordJournal(journal.KindProvision, name, "role "+tenant.Role, "ok")

	if result.AutoStarted {
		fmt.Println("service was stopped and has been started")
	}
	fmt.Printf("database: %s\n", tenant.Database)
	fmt.Printf("role:     %s\n", tenant.Role)
	fmt.Printf("uri:      %s\n", result.URI)
	if result.DescriptorPath != "" {
		fmt.Printf("env file: %s\n", result.DescriptorPath)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctl, inspector := buildController()
	if ctl.State(cmd.Context()) != service.StateRunning {
		return &service.NotRunningError{Op: "db list"}
	}

	entries, err := inspector.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no tenant databases")
		return nil
	}

	var counts map[string]int
	if withConnections {
		counts, err = inspector.ConnectionCounts(cmd.Context())
		if err != nil {
			return err
		}
	}

	table := uitable.New()
	if withConnections {
		table.AddRow("NAME", "OWNER", "SIZE", "CONNECTIONS")
	} else {
		table.AddRow("NAME", "OWNER", "SIZE")
	}
	for _, e := range entries {
		size := humanize.IBytes(uint64(e.SizeBytes))
		if withConnections {
			table.AddRow(e.Name, e.Owner, size, counts[e.Name])
		} else {
			table.AddRow(e.Name, e.Owner, size)
		}
	}
	fmt.Println(table)
	return nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	name := args[0]
	ctl, inspector := buildController()
	engine := backup.NewEngine(settings, inspector, ctl)

	artifact, err := engine.Backup(cmd.Context(), name, backupDir)
	if err != nil {
		recordJournal(journal.KindBackup, name, err.Error(), "error")
		return err
	}
	recordJournal(journal.KindBackup, name, artifact.Path, "ok")

	fmt.Printf("artifact: %s (%s)\n", artifact.Path, humanize.IBytes(uint64(artifact.SizeBytes)))
	fmt.Println("restore into the same database:")
	recipe := engine.RestoreRecipe(artifact)
	fmt.Printf("  %s\n", recipe[0])
	fmt.Println("restore into a fresh database:")
	fmt.Printf("  %s\n", recipe[1])
	return nil
}

func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent operations from the local journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := journal.Open(settings.JournalPath)
			if err != nil {
				return fmt.Errorf("opening journal: %w", err)
			}
			defer j.Close()

			records, err := j.Recent(historyLimit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no recorded operations")
				return nil
			}

			table := uitable.New()
			table.MaxColWidth = 80
			table.AddRow("WHEN", "KIND", "DATABASE", "STATUS", "DETAIL")
			for _, r := range records {
				table.AddRow(r.CreatedAt.Local().Format("2006-01-02 15:04:05"), string(r.Kind), r.Database, r.Status, r.Detail)
			}
			fmt.Println(table)
			return nil
		},
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of records to show")
	return historyCmd
}
