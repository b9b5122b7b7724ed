package usermigrations

import (
	"context"
	"fmt"

	userdb "github.com/Black-And-White-Club/lastword/app/modules/user/infrastructure/repositories"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating player_stats table...")

		_, err := db.NewCreateTable().Model((*userdb.PlayerStats)(nil)).IfNotExists().Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create player_stats table: %w", err)
		}

		fmt.Println("player_stats table created successfully!")
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping player_stats table...")

		_, err := db.NewDropTable().Model((*userdb.PlayerStats)(nil)).IfExists().Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop player_stats table: %w", err)
		}
		return nil
	})
}
