package testutils

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/uptrace/bun"

	"github.com/Black-And-White-Club/lastword/config"
	"github.com/Black-And-White-Club/lastword/db/bundb"
	"github.com/Black-And-White-Club/lastword/integration_tests/containers"
	"github.com/Black-And-White-Club/lastword/pkg/eventbus"
)

// TestEnvironment holds all resources needed for integration testing
type TestEnvironment struct {
	Ctx           context.Context
	CancelContext context.CancelFunc
	PgContainer   *postgres.PostgresContainer
	NatsContainer *nats.NATSContainer
	DB            *bun.DB
	EventBus      eventbus.EventBus
	Config        *config.Config
	Logger        *slog.Logger
}

// NewTestEnvironment creates a new test environment with Postgres and NATS containers
func NewTestEnvironment(t *testing.T) (*TestEnvironment, error) {
	ctx, cancel := context.WithCancel(context.Background())
	env := &TestEnvironment{
		Ctx:           ctx,
		CancelContext: cancel,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	pgContainer, pgConnStr, err := containers.SetupPostgresContainer(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to setup postgres container: %w", err)
	}
	env.PgContainer = pgContainer

	natsContainer, natsURL, err := containers.SetupNatsContainer(ctx)
	if err != nil {
		env.Cleanup()
		return nil, fmt.Errorf("failed to setup nats container: %w", err)
	}
	env.NatsContainer = natsContainer

	env.Config = &config.Config{
		Postgres: config.PostgresConfig{DSN: pgConnStr},
		NATS:     config.NATSConfig{URL: natsURL},
	}

	db, err := bundb.Open(ctx, env.Config.Postgres, env.Logger)
	if err != nil {
		env.Cleanup()
		return nil, err
	}
	env.DB = db

	if err := RunMigrations(ctx, db, pgConnStr); err != nil {
		env.Cleanup()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	bus, err := eventbus.NewEventBus(ctx, eventbus.Options{URL: natsURL, AppType: "integration"}, env.Logger)
	if err != nil {
		env.Cleanup()
		return nil, fmt.Errorf("failed to create EventBus: %w", err)
	}
	env.EventBus = bus

	return env, nil
}

// Reset empties every application table between tests.
func (env *TestEnvironment) Reset(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(env.Ctx, 10*time.Second)
	defer cancel()
	if err := TruncateTables(ctx, env.DB); err != nil {
		t.Fatalf("failed to reset database: %v", err)
	}
}

// Cleanup tears down all resources created for testing
func (env *TestEnvironment) Cleanup() {
	log.Println("Cleaning up test environment...")
	if env.CancelContext != nil {
		env.CancelContext()
	}
	if env.EventBus != nil {
		if closer, ok := env.EventBus.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				log.Printf("Error closing EventBus: %v", err)
			}
		}
	}
	if env.DB != nil {
		env.DB.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if env.NatsContainer != nil {
		if err := env.NatsContainer.Terminate(ctx); err != nil {
			log.Printf("Error terminating NATS container: %v", err)
		}
	}
	if env.PgContainer != nil {
		if err := env.PgContainer.Terminate(ctx); err != nil {
			log.Printf("Error terminating Postgres container: %v", err)
		}
	}
	log.Println("Cleanup complete.")
}
