package ledgermigrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating ledger_entries table...")

		_, err := db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS ledger_entries (
				id BIGSERIAL PRIMARY KEY,
				user_id TEXT NOT NULL,
				round_id UUID,
				kind TEXT NOT NULL,
				amount BIGINT NOT NULL,
				idempotency_key TEXT NOT NULL UNIQUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries(user_id);
			CREATE INDEX IF NOT EXISTS idx_ledger_entries_round ON ledger_entries(round_id);
		`)
		if err != nil {
			return fmt.Errorf("failed to create ledger_entries table: %w", err)
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping ledger_entries table...")

		if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS ledger_entries;`); err != nil {
			return fmt.Errorf("failed to drop ledger_entries table: %w", err)
		}
		return nil
	})
}
