package auditmigrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating round_audit_log table...")

		_, err := db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS round_audit_log (
				id BIGSERIAL PRIMARY KEY,
				round_id UUID NOT NULL,
				step TEXT NOT NULL,
				from_status TEXT NOT NULL,
				to_status TEXT NOT NULL,
				actor TEXT NOT NULL,
				detail JSONB,
				created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
			);
			CREATE INDEX IF NOT EXISTS idx_round_audit_log_round ON round_audit_log(round_id, id);
		`)
		if err != nil {
			return fmt.Errorf("failed to create round_audit_log table: %w", err)
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping round_audit_log table...")

		if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS round_audit_log;`); err != nil {
			return fmt.Errorf("failed to drop round_audit_log table: %w", err)
		}
		return nil
	})
}
