package roundmigrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating round store tables...")

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS round_templates (
					id UUID PRIMARY KEY,
					name TEXT NOT NULL,
					entry_fee BIGINT NOT NULL DEFAULT 0 CHECK (entry_fee >= 0),
					sponsored_amount BIGINT NOT NULL DEFAULT 0 CHECK (sponsored_amount >= 0),
					commission_rate NUMERIC(6,5) NOT NULL DEFAULT 0 CHECK (commission_rate >= 0 AND commission_rate < 1),
					winner_count INT NOT NULL CHECK (winner_count >= 1),
					prize_distribution JSONB NOT NULL,
					min_participants INT NOT NULL DEFAULT 0,
					min_participants_action TEXT NOT NULL,
					allow_spectators BOOLEAN NOT NULL DEFAULT FALSE,
					entry_lead_ms BIGINT NOT NULL DEFAULT 0,
					entry_close_lead_ms BIGINT NOT NULL DEFAULT 0,
					live_duration_ms BIGINT NOT NULL,
					activity_window_ms BIGINT NOT NULL DEFAULT 0,
					reset_extension_ms BIGINT NOT NULL DEFAULT 0,
					recurrence_type TEXT NOT NULL DEFAULT 'none',
					recurrence_interval INT NOT NULL DEFAULT 0,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`); err != nil {
				return fmt.Errorf("failed to create round_templates table: %w", err)
			}

			if _, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS rounds (
					id UUID PRIMARY KEY,
					template_id UUID NOT NULL REFERENCES round_templates(id),
					predecessor_id UUID REFERENCES rounds(id),
					name TEXT NOT NULL,
					status TEXT NOT NULL CHECK (status IN ('scheduled','waiting','opening','live','ending','ended','settled','cancelled')),
					entry_open_at TIMESTAMPTZ NOT NULL,
					entry_close_at TIMESTAMPTZ,
					live_start_at TIMESTAMPTZ NOT NULL,
					live_end_at TIMESTAMPTZ NOT NULL,
					activity_window_ms BIGINT NOT NULL DEFAULT 0,
					activity_anchor_at TIMESTAMPTZ,
					entry_fee BIGINT NOT NULL DEFAULT 0,
					pool_value BIGINT NOT NULL DEFAULT 0 CHECK (pool_value >= 0),
					sponsored_amount BIGINT NOT NULL DEFAULT 0,
					commission_rate NUMERIC(6,5) NOT NULL DEFAULT 0,
					winner_count INT NOT NULL,
					prize_distribution JSONB NOT NULL,
					participant_count INT NOT NULL DEFAULT 0 CHECK (participant_count >= 0),
					min_participants INT NOT NULL DEFAULT 0,
					allow_spectators BOOLEAN NOT NULL DEFAULT FALSE,
					min_participants_action TEXT NOT NULL,
					reset_extension_ms BIGINT NOT NULL DEFAULT 0,
					reset_count INT NOT NULL DEFAULT 0,
					recurrence_type TEXT NOT NULL DEFAULT 'none',
					recurrence_interval INT NOT NULL DEFAULT 0,
					ended_at TIMESTAMPTZ,
					end_reason TEXT,
					cancelled_at TIMESTAMPTZ,
					settled_at TIMESTAMPTZ,
					settlement JSONB,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					CHECK (live_end_at > live_start_at)
				);
				CREATE INDEX IF NOT EXISTS idx_rounds_status ON rounds(status);
				CREATE INDEX IF NOT EXISTS idx_rounds_template_status ON rounds(template_id, status);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_rounds_predecessor ON rounds(predecessor_id) WHERE predecessor_id IS NOT NULL;
			`); err != nil {
				return fmt.Errorf("failed to create rounds table: %w", err)
			}

			if _, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS round_participants (
					id UUID PRIMARY KEY,
					round_id UUID NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
					user_id TEXT NOT NULL,
					spectator BOOLEAN NOT NULL DEFAULT FALSE,
					joined_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
					paid_amount BIGINT NOT NULL DEFAULT 0,
					refund_eligible BOOLEAN NOT NULL DEFAULT FALSE,
					refunded_at TIMESTAMPTZ,
					UNIQUE (round_id, user_id)
				);
			`); err != nil {
				return fmt.Errorf("failed to create round_participants table: %w", err)
			}

			if _, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS round_actions (
					seq BIGSERIAL PRIMARY KEY,
					round_id UUID NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
					user_id TEXT NOT NULL,
					body TEXT,
					acted_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
				);
				CREATE INDEX IF NOT EXISTS idx_round_actions_round_seq ON round_actions(round_id, seq);
			`); err != nil {
				return fmt.Errorf("failed to create round_actions table: %w", err)
			}

			if _, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS round_winners (
					round_id UUID NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
					position INT NOT NULL,
					user_id TEXT NOT NULL,
					prize_amount BIGINT NOT NULL CHECK (prize_amount >= 0),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (round_id, position),
					UNIQUE (round_id, user_id)
				);
			`); err != nil {
				return fmt.Errorf("failed to create round_winners table: %w", err)
			}

			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping round store tables...")

		_, err := db.ExecContext(ctx, `
			DROP TABLE IF EXISTS round_winners;
			DROP TABLE IF EXISTS round_actions;
			DROP TABLE IF EXISTS round_participants;
			DROP TABLE IF EXISTS rounds;
			DROP TABLE IF EXISTS round_templates;
		`)
		if err != nil {
			return fmt.Errorf("failed to drop round store tables: %w", err)
		}
		return nil
	})
}
