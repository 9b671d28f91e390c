// Command bulkflow-migrate applies the status store schema from a DSN, for
// deployments that run migrations as a separate job.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	// The sqlite driver is registered by golang-migrate's sqlite package.
	_ "github.com/lib/pq"

	"github.com/hashicorp-forge/bulkflow/internal/migrate"
)

func main() {
	driver := flag.String("driver", "postgres", "Database driver (postgres|sqlite)")
	dsn := flag.String("dsn", "", "Database connection string")
	down := flag.Bool("down", false, "Revert every migration")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Apply the bulkflow status store schema.\n\nOPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n\n")
		fmt.Fprintf(os.Stderr, "  %s -driver=postgres -dsn=\"host=localhost user=postgres password=postgres dbname=bulkflow port=5432 sslmode=disable\"\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -driver=sqlite -dsn=\"bulkflow-status.db\"\n", os.Args[0])
	}
	flag.Parse()

	log := hclog.New(&hclog.LoggerOptions{Name: "bulkflow-migrate"})
	if err := run(log, *driver, *dsn, *down); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(log hclog.Logger, driver, dsn string, down bool) error {
	if dsn == "" {
		return fmt.Errorf("-dsn flag is required")
	}
	if driver != "postgres" && driver != "sqlite" {
		return fmt.Errorf("unsupported driver %q (must be postgres or sqlite)", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info("connected to database", "driver", driver)

	if down {
		if err := migrate.Rollback(sqlDB, driver); err != nil {
			return err
		}
		log.Info("reverted all migrations")
		return nil
	}

	if err := migrate.RunMigrations(sqlDB, driver); err != nil {
		return err
	}
	version, dirty, err := migrate.GetMigrationVersion(sqlDB, driver)
	if err != nil {
		return err
	}
	log.Info("migrations complete", "version", version, "dirty", dirty)
	return nil
}
