package testutils

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	auditmigrations "github.com/Black-And-White-Club/lastword/app/modules/audit/infrastructure/repositories/migrations"
	ledgermigrations "github.com/Black-And-White-Club/lastword/app/modules/ledger/infrastructure/repositories/migrations"
	roundmigrations "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/repositories/migrations"
	usermigrations "github.com/Black-And-White-Club/lastword/app/modules/user/infrastructure/repositories/migrations"
)

// appTables are truncated between tests.
var appTables = []string{
	"round_winners",
	"round_actions",
	"round_participants",
	"rounds",
	"round_templates",
	"ledger_entries",
	"player_stats",
	"round_audit_log",
	"river_job",
}

// RunMigrations applies River's schema and then every module's migrations,
// each tracked in its own table the way the migration CLI does.
func RunMigrations(ctx context.Context, db *bun.DB, dsn string) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool for River migrations: %w", err)
	}
	defer pool.Close()

	riverMigrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create River migrator: %w", err)
	}
	if _, err := riverMigrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("failed to run River migrations: %w", err)
	}

	modules := []struct {
		name       string
		migrations *migrate.Migrations
	}{
		{"round", roundmigrations.Migrations},
		{"ledger", ledgermigrations.Migrations},
		{"user", usermigrations.Migrations},
		{"audit", auditmigrations.Migrations},
	}
	for _, mod := range modules {
		migrator := migrate.NewMigrator(db, mod.migrations,
			migrate.WithTableName(mod.name+"_bun_migrations"),
			migrate.WithLocksTableName(mod.name+"_bun_migration_locks"),
		)
		if err := migrator.Init(ctx); err != nil {
			return fmt.Errorf("failed to init %s migrations: %w", mod.name, err)
		}
		group, err := migrator.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("failed to run %s migrations: %w", mod.name, err)
		}
		log.Printf("Ran %s migrations group #%d", mod.name, group.ID)
	}
	return nil
}

// TruncateTables empties the application tables and restarts their sequences.
func TruncateTables(ctx context.Context, db *bun.DB) error {
	query := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(appTables, ", "))
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to truncate tables: %w", err)
	}
	return nil
}
