package db

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"

	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// RunMigrateCommand handles the 'migrate' subcommand dispatching. Output
// goes to out.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 || args[0] == "help" {
		PrintMigrateHelp(out)
		if len(args) < 1 {
			return errors.New("missing migrate action")
		}
		return nil
	}

	// Open database connection without running schema initialization
	// (migrations will manage the schema)
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action := args[0]; action {
	case "up":
		if err := database.MigrateUp(MigrationsFS); err != nil {
			return err
		}
		fmt.Fprintln(out, "All migrations applied")
		return printMigrateStatus(out, database)

	case "down":
		if err := database.MigrateDown(MigrationsFS); err != nil {
			return err
		}
		fmt.Fprintln(out, "Rolled back one migration")
		return printMigrateStatus(out, database)

	case "status":
		return printMigrateStatus(out, database)

	case "to", "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: tfluna migrate %s <version_number>", action)
		}
		v, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number %q", args[1])
		}
		if action == "to" {
			err = database.MigrateTo(MigrationsFS, uint(v))
		} else {
			err = database.MigrateForce(MigrationsFS, int(v))
		}
		if err != nil {
			return err
		}
		return printMigrateStatus(out, database)

	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action: %s", action)
	}
}

func printMigrateStatus(out io.Writer, database *DB) error {
	version, dirty, err := database.MigrateVersion(MigrationsFS)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	latest, err := LatestMigrationVersion(MigrationsFS)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Current version: %d\n", version)
	fmt.Fprintf(out, "Latest available: %d\n", latest)
	fmt.Fprintf(out, "Dirty: %v\n", dirty)
	if dirty {
		fmt.Fprintln(out, "A migration failed mid-execution; inspect the database, then run: tfluna migrate force <version>")
	}
	return nil
}

// LatestMigrationVersion returns the highest version in migrationsFS.
func LatestMigrationVersion(migrationsFS fs.FS) (uint, error) {
	source, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations: %w", err)
	}
	defer source.Close()

	version, err := source.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := source.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			return version, nil
		}
		if err != nil {
			return 0, err
		}
		version = next
	}
}

// PrintMigrateHelp displays help for the migrate subcommand
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: tfluna migrate <action> [args]

Actions:
  up               Apply all pending migrations
  down             Roll back the most recent migration
  status           Show the current migration version
  to <version>     Migrate up or down to a specific version
  force <version>  Set the version without running migrations (recovery only)
  help             Show this help
`)
}
