package cli

import (
	"context"
	"database/sql"
	"fmt"

	"competition-service/internal/config"
	"competition-service/internal/infra/migrations"
	"competition-service/internal/infra/sqlite"
	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// NewMigrateCmd applies (or rolls back) database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var rollback bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			setLogLevel(cfg.Log.Level)
			if rollback {
				return rollbackMigrations(cmd.Context(), cfg)
			}
			return runMigrationsWithConfig(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVar(&rollback, "rollback", false, "roll back the last migration group")
	return cmd
}

func openMigrationDB(cfg config.Config) (*bun.DB, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if cfg.Postgres.URL == "" {
			return nil, fmt.Errorf("postgres url not configured")
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		return bun.NewDB(sqldb, pgdialect.New()), nil
	case config.DriverSQLite:
		return sqlite.OpenDB(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("storage driver %q has no schema", cfg.Storage.Driver)
	}
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config) error {
	db, err := openMigrationDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	group, err := migrations.Apply(ctx, db)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Infof("no new migrations")
		return nil
	}
	log.Infof("migrated to %s", group)
	return nil
}

func rollbackMigrations(ctx context.Context, cfg config.Config) error {
	db, err := openMigrationDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	group, err := migrations.Rollback(ctx, db)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Infof("nothing to roll back")
		return nil
	}
	log.Infof("rolled back %s", group)
	return nil
}
