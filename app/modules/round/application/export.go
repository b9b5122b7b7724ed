package roundservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	rounddb "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/repositories"
	"github.com/Black-And-White-Club/lastword/pkg/utils/results"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet      = "Summary"
	winnersSheet      = "Winners"
	participantsSheet = "Participants"
)

// ExportSettlement renders a finished round's settlement as an xlsx workbook
// with summary, winners and participants sheets.
func (s *RoundService) ExportSettlement(ctx context.Context, roundID uuid.UUID) ([]byte, error) {
	type exportResult = results.OperationResult[[]byte, error]
	return unwrap(withTelemetry(s, ctx, "ExportSettlement", roundID.String(), func(ctx context.Context) (exportResult, error) {
		r, err := s.repo.GetRound(ctx, nil, roundID)
		if err != nil {
			if errors.Is(err, rounddb.ErrNotFound) {
				return results.FailureResult[[]byte, error](ErrRoundNotFound), nil
			}
			return exportResult{}, err
		}
		if !r.Status.IsTerminal() || r.Settlement == nil {
			return results.FailureResult[[]byte, error](ErrRoundNotFinished), nil
		}
		participants, err := s.repo.ListParticipants(ctx, nil, roundID)
		if err != nil {
			return exportResult{}, err
		}
		data, err := buildSettlementWorkbook(r, participants)
		if err != nil {
			return exportResult{}, err
		}
		return results.SuccessResult[[]byte, error](data), nil
	}))
}

func buildSettlementWorkbook(r *rounddomain.Round, participants []*rounddomain.Participant) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("failed to name summary sheet: %w", err)
	}
	st := r.Settlement
	summary := [][]any{
		{"Round", r.Name},
		{"Round ID", r.ID.String()},
		{"Status", string(r.Status)},
		{"Outcome", string(st.Outcome)},
		{"Reason", st.Reason},
		{"End reason", string(r.EndReason)},
		{"Live start", r.LiveStartAt.Format(time.RFC3339)},
		{"Settled at", st.SettledAt.Format(time.RFC3339)},
		{"Pool", st.Pool},
		{"Commission", st.Commission},
		{"Sponsored", st.Sponsored},
		{"Net", st.Net},
		{"Distributed", st.Distributed},
		{"Remainder", st.Remainder},
		{"Refunded", st.Refunded},
		{"Refund count", st.RefundCount},
		{"Refund total", st.RefundTotal},
	}
	if err := writeRows(f, summarySheet, summary); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(winnersSheet); err != nil {
		return nil, fmt.Errorf("failed to add winners sheet: %w", err)
	}
	winners := [][]any{{"Position", "User", "Percent", "Prize", "Last action"}}
	for _, w := range st.Winners {
		winners = append(winners, []any{w.Position, w.UserID, w.Percent, w.PrizeAmount, w.LastActionAt.Format(time.RFC3339Nano)})
	}
	if err := writeRows(f, winnersSheet, winners); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(participantsSheet); err != nil {
		return nil, fmt.Errorf("failed to add participants sheet: %w", err)
	}
	rows := [][]any{{"User", "Spectator", "Joined", "Paid", "Refunded at"}}
	for _, p := range participants {
		refunded := ""
		if p.RefundedAt != nil {
			refunded = p.RefundedAt.Format(time.RFC3339)
		}
		rows = append(rows, []any{p.UserID, p.Spectator, p.JoinedAt.Format(time.RFC3339), p.PaidAmount, refunded})
	}
	if err := writeRows(f, participantsSheet, rows); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
