package roundservice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	rounddb "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/repositories"
	roundtime "github.com/Black-And-White-Club/lastword/app/modules/round/time_utils"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/Black-And-White-Club/lastword/pkg/observability/metrics/roundmetrics"
	"github.com/Black-And-White-Club/lastword/pkg/utils/results"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "RoundService"

// Config holds driver tuning.
type Config struct {
	Lifecycle rounddomain.LifecycleConfig
	// TickBatchSize bounds the rounds one driver pass examines.
	TickBatchSize int
	// SuccessorBatchSize bounds how many missing successors one pass repairs.
	SuccessorBatchSize int
}

// DefaultConfig returns the stock driver tuning.
func DefaultConfig() Config {
	return Config{
		Lifecycle:          rounddomain.DefaultLifecycleConfig(),
		TickBatchSize:      500,
		SuccessorBatchSize: 50,
	}
}

// Ports bundles the collaborators the service calls out to.
type Ports struct {
	Wallet    Wallet
	Identity  Identity
	Audit     AuditLog
	Notifier  Notifier
	Scheduler TransitionScheduler
}

// RoundService implements the Service interface.
type RoundService struct {
	repo      rounddb.Repository
	wallet    Wallet
	identity  Identity
	audit     AuditLog
	notifier  Notifier
	scheduler TransitionScheduler
	parser    *roundtime.Parser
	cfg       Config
	logger    *slog.Logger
	metrics   roundmetrics.RoundMetrics
	tracer    trace.Tracer
	db        *bun.DB
}

// NewRoundService creates a new RoundService.
func NewRoundService(
	repo rounddb.Repository,
	ports Ports,
	cfg Config,
	logger *slog.Logger,
	metrics roundmetrics.RoundMetrics,
	tracer trace.Tracer,
	db *bun.DB,
) *RoundService {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = roundmetrics.NewNoop()
	}
	if ports.Notifier == nil {
		ports.Notifier = noopNotifier{}
	}
	if ports.Scheduler == nil {
		ports.Scheduler = noopScheduler{}
	}
	if ports.Audit == nil {
		ports.Audit = noopAudit{}
	}
	if cfg.TickBatchSize <= 0 {
		cfg.TickBatchSize = DefaultConfig().TickBatchSize
	}
	if cfg.SuccessorBatchSize <= 0 {
		cfg.SuccessorBatchSize = DefaultConfig().SuccessorBatchSize
	}
	return &RoundService{
		repo:      repo,
		wallet:    ports.Wallet,
		identity:  ports.Identity,
		audit:     ports.Audit,
		notifier:  ports.Notifier,
		scheduler: ports.Scheduler,
		parser:    roundtime.NewParser(),
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		tracer:    tracer,
		db:        db,
	}
}

// operationFunc is the signature for service operation functions.
type operationFunc[S any, F any] func(ctx context.Context) (results.OperationResult[S, F], error)

// withTelemetry wraps an operation with tracing, metrics, logging and panic recovery.
func withTelemetry[S any, F any](
	s *RoundService,
	ctx context.Context,
	operationName string,
	identifier string,
	op operationFunc[S, F],
) (result results.OperationResult[S, F], err error) {
	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operationName, trace.WithAttributes(
			attribute.String("operation", operationName),
			attribute.String("identifier", identifier),
		))
	} else {
		span = trace.SpanFromContext(ctx)
	}
	defer span.End()

	s.metrics.RecordOperationAttempt(ctx, operationName, serviceName)

	startTime := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration(ctx, operationName, serviceName, time.Since(startTime))
	}()

	s.logger.InfoContext(ctx, "Operation triggered", attr.ExtractCorrelationID(ctx), attr.String("operation", operationName))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", operationName, r)
			s.logger.ErrorContext(ctx, "Critical panic recovered",
				attr.ExtractCorrelationID(ctx),
				attr.String("identifier", identifier),
				attr.Error(err),
			)
			s.metrics.RecordOperationFailure(ctx, operationName, serviceName)
			span.RecordError(err)
			result = results.OperationResult[S, F]{}
		}
	}()

	result, err = op(ctx)

	if err != nil {
		wrappedErr := fmt.Errorf("%s: %w", operationName, err)
		s.logger.ErrorContext(ctx, "Operation failed with error",
			attr.ExtractCorrelationID(ctx),
			attr.String("operation", operationName),
			attr.String("identifier", identifier),
			attr.Error(wrappedErr),
		)
		s.metrics.RecordOperationFailure(ctx, operationName, serviceName)
		span.RecordError(wrappedErr)
		return result, wrappedErr
	}

	if result.IsFailure() {
		s.logger.WarnContext(ctx, "Operation returned failure result",
			attr.ExtractCorrelationID(ctx),
			attr.String("operation", operationName),
			attr.String("identifier", identifier),
			attr.Any("failure_payload", *result.Failure),
		)
	}

	s.logger.InfoContext(ctx, "Operation completed successfully",
		attr.ExtractCorrelationID(ctx),
		attr.String("operation", operationName),
		attr.String("identifier", identifier),
	)
	s.metrics.RecordOperationSuccess(ctx, operationName, serviceName)

	return result, nil
}

// runInTx ensures the operation runs within a database transaction.
// A failure result rolls the transaction back as well.
func runInTx[S any, F any](
	s *RoundService,
	ctx context.Context,
	fn func(ctx context.Context, db bun.IDB) (results.OperationResult[S, F], error),
) (results.OperationResult[S, F], error) {
	if s.db == nil {
		return fn(ctx, nil)
	}

	var result results.OperationResult[S, F]
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var err error
		result, err = fn(ctx, tx)
		if err != nil {
			return err
		}
		if result.IsFailure() {
			return errFailureRollback
		}
		return nil
	})
	if errors.Is(err, errFailureRollback) {
		return result, nil
	}
	return result, err
}

// unwrap collapses a result into the (value, error) pair callers expect.
func unwrap[S any](result results.OperationResult[S, error], err error) (S, error) {
	var zero S
	if err != nil {
		return zero, err
	}
	if result.IsFailure() {
		return zero, *result.Failure
	}
	if result.Success == nil {
		return zero, nil
	}
	return *result.Success, nil
}

// change is a committed round mutation to announce.
type change struct {
	round    *rounddomain.Round
	previous rounddomain.Status
	cause    string
}

// announce publishes changes and re-arms transition jobs once the
// transaction that produced them has committed. Failures are logged only.
func (s *RoundService) announce(ctx context.Context, changes ...change) {
	for _, c := range changes {
		if c.round == nil {
			continue
		}
		payload := roundevents.RoundChangedPayloadV1{
			RoundID:          c.round.ID,
			Cause:            c.cause,
			Status:           string(c.round.Status),
			ParticipantCount: c.round.ParticipantCount,
			PoolValue:        c.round.PoolValue,
			Round:            roundevents.NewRoundSnapshotV1(c.round),
			ChangedAt:        c.round.UpdatedAt,
		}
		if c.previous != "" && c.previous != c.round.Status {
			payload.PreviousStatus = string(c.previous)
		}
		if err := s.notifier.Publish(ctx, payload); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish round change",
				attr.ExtractCorrelationID(ctx),
				attr.RoundID("round_id", c.round.ID),
				attr.Error(err),
			)
		}
		if err := s.scheduler.ScheduleNext(ctx, c.round); err != nil {
			s.logger.WarnContext(ctx, "Failed to schedule next transition",
				attr.ExtractCorrelationID(ctx),
				attr.RoundID("round_id", c.round.ID),
				attr.Error(err),
			)
		}
	}
}
