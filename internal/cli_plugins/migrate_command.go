package cliplugins

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"drilltrack/internal/util/logger"
	"drilltrack/migrations"
	"drilltrack/pkg/migrator"

	"github.com/spf13/cobra"
)

type MigrateCommand struct {
	cmd *cobra.Command
}

func NewMigrateCommand() *MigrateCommand {
	return &MigrateCommand{}
}

func (m *MigrateCommand) Meta() *cobra.Command {
	if m.cmd != nil {
		return m.cmd
	}
	m.cmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect SQLite schema migrations",
		Long:  "Runs the embedded migrations (or the ones in --path) against a SQLite database.",
	}
	m.cmd.Flags().String("db", "drilltrack.sqlite", "Path to the SQLite database file")
	m.cmd.Flags().String("path", "", "Directory with migrations; embedded migrations when empty")
	m.cmd.Flags().StringP("direction", "d", "up", "Migration direction: up, down, version, rollback or to")
	m.cmd.Flags().Int("version", 0, "Target version for --direction to")
	m.cmd.Flags().Int("steps", 1, "Number of steps to roll back")
	m.cmd.RegisterFlagCompletionFunc("direction", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"up", "down", "version", "rollback", "to"}, cobra.ShellCompDirectiveNoFileComp
	})
	return m.cmd
}

func (m *MigrateCommand) Execute(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	dir, _ := cmd.Flags().GetString("path")
	direction, _ := cmd.Flags().GetString("direction")
	version, _ := cmd.Flags().GetInt("version")
	steps, _ := cmd.Flags().GetInt("steps")

	log, _ := logger.SetupWriter(logger.EnvProd, cmd.ErrOrStderr(), logger.FileConfig{})

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	cfg := migrator.Config{MigrationsPath: dir}
	if dir == "" {
		cfg.FS = migrations.FS
	} else if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("migrations directory: %w", err)
	}

	mg := migrator.NewMigrator(db, cfg, log)

	switch direction {
	case "up":
		err = mg.MigrateUp()
	case "down":
		err = mg.MigrateDown()
	case "rollback":
		err = mg.MigrateDownN(steps)
	case "to":
		if version <= 0 {
			return fmt.Errorf("please specify a target version with --version")
		}
		err = mg.MigrateTo(uint(version))
	case "version":
		v, dirty, err := mg.GetMigrationVersion()
		if err != nil {
			return fmt.Errorf("failed to get migration version: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Current migration version: %d (dirty: %v)\n", v, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migration direction: %s", direction)
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", direction, err)
	}

	log.Info("Migration completed successfully", slog.String("direction", direction))
	return nil
}
