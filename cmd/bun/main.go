package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Black-And-White-Club/lastword/config"
	"github.com/Black-And-White-Club/lastword/db/bundb"
	"github.com/Black-And-White-Club/lastword/pkg/jwt"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"

	auditmigrations "github.com/Black-And-White-Club/lastword/app/modules/audit/infrastructure/repositories/migrations"
	ledgermigrations "github.com/Black-And-White-Club/lastword/app/modules/ledger/infrastructure/repositories/migrations"
	roundmigrations "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/repositories/migrations"
	usermigrations "github.com/Black-And-White-Club/lastword/app/modules/user/infrastructure/repositories/migrations"
)

// moduleMigrator keeps each module's history in its own table so groups roll back per module.
type moduleMigrator struct {
	name     string
	migrator *migrate.Migrator
}

func newMigrators(db *bun.DB) []moduleMigrator {
	sets := []struct {
		name       string
		migrations *migrate.Migrations
	}{
		{"round", roundmigrations.Migrations},
		{"ledger", ledgermigrations.Migrations},
		{"user", usermigrations.Migrations},
		{"audit", auditmigrations.Migrations},
	}
	out := make([]moduleMigrator, 0, len(sets))
	for _, s := range sets {
		out = append(out, moduleMigrator{
			name: s.name,
			migrator: migrate.NewMigrator(db, s.migrations,
				migrate.WithTableName(s.name+"_bun_migrations"),
				migrate.WithLocksTableName(s.name+"_bun_migration_locks"),
			),
		})
	}
	return out
}

func main() {
	cliApp := &cli.App{
		Name:  "bun",
		Usage: "database and operator tooling",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml", Usage: "path to the configuration file"},
		},
		Commands: []*cli.Command{
			newMigrateCommand(),
			newRiverCommand(),
			newTokenCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// withMigrators opens the database for the duration of fn.
func withMigrators(c *cli.Context, fn func([]moduleMigrator) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := bundb.Open(c.Context, cfg.Postgres, nil)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(newMigrators(db))
}

func findMigrator(migrators []moduleMigrator, name string) (*migrate.Migrator, error) {
	for _, m := range migrators {
		if m.name == name {
			return m.migrator, nil
		}
	}
	return nil, fmt.Errorf("invalid module name: %s", name)
}

func newMigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "database migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create migration tables",
				Action: func(c *cli.Context) error {
					return withMigrators(c, func(migrators []moduleMigrator) error {
						for _, m := range migrators {
							fmt.Printf("Initializing migrations for module: %s\n", m.name)
							if err := m.migrator.Init(c.Context); err != nil {
								return fmt.Errorf("init %s: %w", m.name, err)
							}
						}
						return nil
					})
				},
			},
			{
				Name:  "migrate",
				Usage: "migrate database",
				Action: func(c *cli.Context) error {
					return withMigrators(c, func(migrators []moduleMigrator) error {
						for _, m := range migrators {
							if err := m.migrator.Lock(c.Context); err != nil {
								return err
							}
							group, err := m.migrator.Migrate(c.Context)
							_ = m.migrator.Unlock(c.Context)
							if err != nil {
								return fmt.Errorf("migrate %s: %w", m.name, err)
							}
							if group.IsZero() {
								fmt.Printf("No new migrations to run for module: %s\n", m.name)
							} else {
								fmt.Printf("Migrated module: %s to %s\n", m.name, group)
							}
						}
						return nil
					})
				},
			},
			{
				Name:      "rollback",
				Usage:     "rollback the last migration group of one module",
				ArgsUsage: "<module>",
				Action: func(c *cli.Context) error {
					return withMigrators(c, func(migrators []moduleMigrator) error {
						migrator, err := findMigrator(migrators, c.Args().First())
						if err != nil {
							return err
						}
						group, err := migrator.Rollback(c.Context)
						if err != nil {
							return err
						}
						if group.IsZero() {
							fmt.Println("No groups to roll back")
						} else {
							fmt.Printf("Rolled back %s\n", group)
						}
						return nil
					})
				},
			},
			{
				Name:      "create_sql",
				Usage:     "create up and down SQL migrations",
				ArgsUsage: "<module> <name...>",
				Action: func(c *cli.Context) error {
					return withMigrators(c, func(migrators []moduleMigrator) error {
						migrator, err := findMigrator(migrators, c.Args().First())
						if err != nil {
							return err
						}
						files, err := migrator.CreateSQLMigrations(c.Context, strings.Join(c.Args().Tail(), "_"))
						if err != nil {
							return err
						}
						for _, mf := range files {
							fmt.Printf("Created migration %s (%s)\n", mf.Name, mf.Path)
						}
						return nil
					})
				},
			},
			{
				Name:  "status",
				Usage: "print migrations status",
				Action: func(c *cli.Context) error {
					return withMigrators(c, func(migrators []moduleMigrator) error {
						for _, m := range migrators {
							ms, err := m.migrator.MigrationsWithStatus(c.Context)
							if err != nil {
								return err
							}
							fmt.Printf("Migrations for module: %s\n", m.name)
							fmt.Printf("  Applied: %s\n", ms.Applied())
							fmt.Printf("  Unapplied: %s\n", ms.Unapplied())
						}
						return nil
					})
				},
			},
		},
	}
}

// newRiverCommand installs the job tables the transition queue needs.
func newRiverCommand() *cli.Command {
	return &cli.Command{
		Name:  "river",
		Usage: "job queue schema",
		Subcommands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply River migrations",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					ctx, cancel := context.WithTimeout(c.Context, time.Minute)
					defer cancel()

					pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
					if err != nil {
						return fmt.Errorf("failed to create pgx pool: %w", err)
					}
					defer pool.Close()

					migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
					if err != nil {
						return fmt.Errorf("failed to create river migrator: %w", err)
					}
					res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
					if err != nil {
						return fmt.Errorf("river migrate: %w", err)
					}
					for _, v := range res.Versions {
						fmt.Printf("Applied river migration %03d\n", v.Version)
					}
					if len(res.Versions) == 0 {
						fmt.Println("River schema is up to date")
					}
					return nil
				},
			},
		},
	}
}

// newTokenCommand mints a bearer token for the HTTP API.
func newTokenCommand() *cli.Command {
	return &cli.Command{
		Name:      "token",
		Usage:     "issue an API token",
		ArgsUsage: "<user-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "operator", Usage: "grant the operator role"},
			&cli.DurationFlag{Name: "ttl", Usage: "token lifetime; zero uses the configured default"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if cfg.JWT.Secret == "" {
				return fmt.Errorf("jwt secret is not configured (JWT_SECRET)")
			}
			role := jwt.RolePlayer
			if c.Bool("operator") {
				role = jwt.RoleOperator
			}
			token, err := jwt.NewService(cfg.JWT.Secret, cfg.JWT.DefaultTTL, nil).GenerateToken(c.Args().First(), role, c.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}
