// Package migrations holds the versioned schema shared by the SQLite and Postgres stores.
package migrations

import (
	"context"
	"embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed *.sql
var sqlMigrations embed.FS

var Migrations = migrate.NewMigrations()

func init() {
	if err := Migrations.Discover(sqlMigrations); err != nil {
		panic(err)
	}
}

// Apply creates the bookkeeping tables and runs every pending migration.
func Apply(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator := migrate.NewMigrator(db, Migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, err
	}
	return migrator.Migrate(ctx)
}

// Rollback reverts the last applied migration group.
func Rollback(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator := migrate.NewMigrator(db, Migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, err
	}
	return migrator.Rollback(ctx)
}
