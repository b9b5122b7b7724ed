package containers

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// SetupPostgresContainer starts a Postgres testcontainer and returns the container and connection string.
func SetupPostgresContainer(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("lastword"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		if pgContainer != nil {
			_ = testcontainers.TerminateContainer(pgContainer)
		}
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	log.Println("Postgres container started and ready.")

	connStr, err := pgContainer.ConnectionString(ctx)
	if err != nil {
		_ = testcontainers.TerminateContainer(pgContainer)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	parsedURL, err := url.Parse(connStr)
	if err != nil {
		_ = testcontainers.TerminateContainer(pgContainer)
		return nil, "", fmt.Errorf("failed to parse connection string: %w", err)
	}
	query := parsedURL.Query()
	query.Set("sslmode", "disable")
	parsedURL.RawQuery = query.Encode()

	return pgContainer, parsedURL.String(), nil
}
