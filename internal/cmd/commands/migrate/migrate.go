package migrate

import (
	"flag"
	"fmt"

	"gorm.io/gorm"

	"github.com/hashicorp-forge/bulkflow/internal/cmd/base"
	"github.com/hashicorp-forge/bulkflow/internal/migrate"
	"github.com/hashicorp-forge/bulkflow/pkg/bulk/store"
	"github.com/hashicorp-forge/bulkflow/pkg/database"
)

type Command struct {
	*base.Command

	flagConfig string
	flagDown   bool
}

func (c *Command) Synopsis() string {
	return "Apply the status store schema"
}

func (c *Command) Help() string {
	return `Usage: bulkflow migrate [options]

  Apply pending schema migrations to the postgres or sqlite status store.
  The pebble store has no schema and needs no migration.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("migrate", flag.ContinueOnError))
	f.ConfigVar(&c.flagConfig)
	f.BoolVar(&c.flagDown, "down", false, "Revert every migration instead.")
	return f
}

func (c *Command) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := c.LoadConfig(c.flagConfig)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading config: %v", err))
		return 1
	}

	sc := base.StoreConfig(cfg)
	var db *gorm.DB
	switch sc.Driver {
	case store.DriverPostgres:
		db, err = database.Connect(sc.Postgres, c.Log)
	case store.DriverSQLite:
		db, err = database.ConnectSQLite(sc.SQLitePath, c.Log)
	default:
		c.UI.Info(fmt.Sprintf("The %s status store has no schema to migrate", sc.Driver))
		return 0
	}
	if err != nil {
		c.UI.Error(fmt.Sprintf("error connecting to database: %v", err))
		return 1
	}
	defer func() { _ = database.Close(db) }()

	sqlDB, err := db.DB()
	if err != nil {
		c.UI.Error(fmt.Sprintf("error getting database handle: %v", err))
		return 1
	}

	driver := string(sc.Driver)
	if c.flagDown {
		if err := migrate.Rollback(sqlDB, driver); err != nil {
			c.UI.Error(err.Error())
			return 1
		}
		c.UI.Info("Reverted all migrations")
		return 0
	}

	if err := migrate.RunMigrations(sqlDB, driver); err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	version, dirty, err := migrate.GetMigrationVersion(sqlDB, driver)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	c.UI.Info(fmt.Sprintf("Schema at version %d (dirty: %t)", version, dirty))
	return 0
}
