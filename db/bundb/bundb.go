// Package bundb opens the Postgres handle every module shares.
package bundb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Black-And-White-Club/lastword/config"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const pingTimeout = 10 * time.Second

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, cfg config.PostgresConfig, logger *slog.Logger) (*bun.DB, error) {
	sqldb, err := pgConn(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := bun.NewDB(sqldb, pgdialect.New())
	if logger != nil {
		logger.InfoContext(ctx, "Database connected",
			attr.Int("max_open_conns", sqldb.Stats().MaxOpenConnections),
		)
	}
	return db, nil
}

func pgConn(ctx context.Context, dsn string) (*sql.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqldb.PingContext(pingCtx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return sqldb, nil
}
