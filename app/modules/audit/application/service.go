package auditservice

import (
	"context"
	"log/slog"

	auditdb "github.com/Black-And-White-Club/lastword/app/modules/audit/infrastructure/repositories"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Service appends one audit row per lifecycle transition, inside the
// transition's own transaction.
type Service struct {
	repo   auditdb.Repository
	logger *slog.Logger
}

func NewService(repo auditdb.Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// RecordTransition writes the audit row and mirrors it to the structured log.
func (s *Service) RecordTransition(ctx context.Context, db bun.IDB, roundID uuid.UUID, step, from, to, actor string, detail map[string]any) error {
	entry := &auditdb.Entry{
		RoundID:    roundID,
		Step:       step,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Detail:     detail,
	}
	if err := s.repo.Append(ctx, db, entry); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Round transition",
		attr.RoundID("round_id", roundID),
		attr.String("step", step),
		attr.String("from", from),
		attr.String("to", to),
		attr.String("actor", actor),
	)
	return nil
}

// History returns the audit trail of a round.
func (s *Service) History(ctx context.Context, roundID uuid.UUID) ([]auditdb.Entry, error) {
	return s.repo.ListForRound(ctx, nil, roundID)
}
