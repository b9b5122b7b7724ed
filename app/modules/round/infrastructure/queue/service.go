package roundqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	roundservice "github.com/Black-And-White-Club/lastword/app/modules/round/application"
	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/uptrace/bun"
)

const (
	queueName   = "round"
	serviceName = "river"
)

// Metrics interface (using the round metrics)
type Metrics interface {
	RecordOperationAttempt(ctx context.Context, operation, service string)
	RecordOperationSuccess(ctx context.Context, operation, service string)
	RecordOperationFailure(ctx context.Context, operation, service string)
	RecordOperationDuration(ctx context.Context, operation, service string, duration time.Duration)
}

// QueueService interface defines the contract for job scheduling operations
type QueueService interface {
	roundservice.TransitionScheduler
	// CancelRoundJobs cancels all pending wake-ups for a round
	CancelRoundJobs(ctx context.Context, roundID uuid.UUID) error
	// GetScheduledJobs returns information about jobs for a round (for debugging)
	GetScheduledJobs(ctx context.Context, roundID uuid.UUID) ([]JobInfo, error)
	HealthCheck(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

var _ QueueService = (*Service)(nil)

// Config tunes the River client.
type Config struct {
	MaxWorkers int
	Lifecycle  rounddomain.LifecycleConfig
}

// Service schedules round timer wake-ups with River.
type Service struct {
	client    *river.Client[pgx.Tx]
	pool      *pgxpool.Pool
	logger    *slog.Logger
	db        *bun.DB
	metrics   Metrics
	lifecycle rounddomain.LifecycleConfig
	clock     clockwork.Clock
}

// NewService creates a new River-based queue service for round scheduling
func NewService(ctx context.Context, bunDB *bun.DB, logger *slog.Logger, dsn string, metrics Metrics, publisher message.Publisher, cfg Config, clock clockwork.Clock) (*Service, error) {
	ctxLogger := logger.With(
		attr.String("operation", "new_round_queue_service"),
		attr.String("component", "river_queue"),
	)
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 25
	}

	start := time.Now()
	metrics.RecordOperationAttempt(ctx, "initialize_service", serviceName)

	ctxLogger.Info("Initializing Round queue service")

	// River requires pgx, not database/sql
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		ctxLogger.Error("Failed to parse DSN for River", attr.Error(err))
		metrics.RecordOperationFailure(ctx, "initialize_service", serviceName)
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		ctxLogger.Error("Failed to create pgx pool for River", attr.Error(err))
		metrics.RecordOperationFailure(ctx, "initialize_service", serviceName)
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		ctxLogger.Error("Failed to ping database for River", attr.Error(err))
		metrics.RecordOperationFailure(ctx, "initialize_service", serviceName)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewTransitionWorker(ctxLogger, publisher))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 5},
			queueName:          {MaxWorkers: cfg.MaxWorkers},
		},
		Workers: workers,
		Logger:  logger,
	})
	if err != nil {
		pool.Close()
		ctxLogger.Error("Failed to create River client", attr.Error(err))
		metrics.RecordOperationFailure(ctx, "initialize_service", serviceName)
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	service := &Service{
		client:    riverClient,
		pool:      pool,
		logger:    ctxLogger,
		db:        bunDB,
		metrics:   metrics,
		lifecycle: cfg.Lifecycle,
		clock:     clock,
	}

	metrics.RecordOperationSuccess(ctx, "initialize_service", serviceName)
	metrics.RecordOperationDuration(ctx, "initialize_service", serviceName, time.Since(start))

	ctxLogger.Info("Round queue service initialized successfully")
	return service, nil
}

// Start starts the River queue service
func (s *Service) Start(ctx context.Context) error {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "start_service", serviceName)

	s.logger.Info("Starting Round queue service")

	if err := s.client.Start(ctx); err != nil {
		s.logger.Error("Failed to start River client", attr.Error(err))
		s.metrics.RecordOperationFailure(ctx, "start_service", serviceName)
		return fmt.Errorf("failed to start River client: %w", err)
	}

	s.metrics.RecordOperationSuccess(ctx, "start_service", serviceName)
	s.metrics.RecordOperationDuration(ctx, "start_service", serviceName, time.Since(start))

	s.logger.Info("Round queue service started successfully")
	return nil
}

// Stop stops the River client and releases its pool.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "stop_service", serviceName)

	s.logger.Info("Stopping Round queue service")
	defer s.pool.Close()

	if err := s.client.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop River client", attr.Error(err))
		s.metrics.RecordOperationFailure(ctx, "stop_service", serviceName)
		return fmt.Errorf("failed to stop River client: %w", err)
	}

	s.metrics.RecordOperationSuccess(ctx, "stop_service", serviceName)
	s.metrics.RecordOperationDuration(ctx, "stop_service", serviceName, time.Since(start))

	s.logger.Info("Round queue service stopped successfully")
	return nil
}

// ScheduleNext arms a job at the round's next timer. Finished rounds have no
// timer, so their pending jobs are cancelled instead.
func (s *Service) ScheduleNext(ctx context.Context, r *rounddomain.Round) error {
	job, ok := NextJob(r, s.lifecycle)
	if !ok {
		return s.CancelRoundJobs(ctx, r.ID)
	}

	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "schedule_transition", serviceName)

	ctxLogger := s.logger.With(
		attr.RoundID("round_id", r.ID),
		attr.String("status", job.Status),
		attr.Time("due_at", job.DueAt),
		attr.String("operation", "schedule_transition"),
	)

	opts := &river.InsertOpts{
		Queue:      queueName,
		UniqueOpts: river.UniqueOpts{ByArgs: true},
	}
	// Past-due timers run as soon as a worker is free.
	now := s.clock.Now()
	if job.DueAt.After(now) {
		opts.ScheduledAt = job.DueAt
	}

	jobResult, err := s.client.Insert(ctx, job, opts)
	if err != nil {
		ctxLogger.Error("Failed to schedule transition job", attr.Error(err))
		s.metrics.RecordOperationFailure(ctx, "schedule_transition", serviceName)
		return fmt.Errorf("failed to schedule transition job: %w", err)
	}

	s.metrics.RecordOperationSuccess(ctx, "schedule_transition", serviceName)
	s.metrics.RecordOperationDuration(ctx, "schedule_transition", serviceName, time.Since(start))

	if jobResult.UniqueSkippedAsDuplicate {
		ctxLogger.Debug("Transition job already scheduled", attr.Int64("job_id", jobResult.Job.ID))
		return nil
	}
	ctxLogger.Info("Transition job scheduled",
		attr.Duration("delay", job.DueAt.Sub(now)),
		attr.Int64("job_id", jobResult.Job.ID))
	return nil
}

// NextJob builds the wake-up job for r, if it has a pending timer.
func NextJob(r *rounddomain.Round, cfg rounddomain.LifecycleConfig) (TransitionJob, bool) {
	at, ok := rounddomain.NextTimerAt(r, cfg)
	if !ok {
		return TransitionJob{}, false
	}
	return TransitionJob{
		RoundID: r.ID.String(),
		Status:  string(r.Status),
		DueAt:   at.UTC().Truncate(time.Millisecond),
	}, true
}

type riverJobRow struct {
	ID          int64          `bun:"id"`
	Kind        string         `bun:"kind"`
	State       string         `bun:"state"`
	Args        map[string]any `bun:"args,type:jsonb"`
	ScheduledAt *time.Time     `bun:"scheduled_at"`
	CreatedAt   time.Time      `bun:"created_at"`
	Attempt     int16          `bun:"attempt"`
	MaxAttempts int16          `bun:"max_attempts"`
}

// CancelRoundJobs cancels all pending wake-ups for a round
func (s *Service) CancelRoundJobs(ctx context.Context, roundID uuid.UUID) error {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "cancel_round_jobs", serviceName)

	ctxLogger := s.logger.With(
		attr.RoundID("round_id", roundID),
		attr.String("operation", "cancel_round_jobs"),
	)

	var jobs []riverJobRow
	err := s.db.NewSelect().
		Table("river_job").
		Column("id", "kind", "state").
		Where("kind = ?", TransitionKind).
		Where("state IN (?, ?, ?)", "available", "scheduled", "retryable").
		Where("args->>'round_id' = ?", roundID.String()).
		Scan(ctx, &jobs)
	if err != nil {
		ctxLogger.Error("Failed to query jobs for cancellation", attr.Error(err))
		s.metrics.RecordOperationFailure(ctx, "cancel_round_jobs", serviceName)
		return fmt.Errorf("failed to query jobs for cancellation: %w", err)
	}

	cancelledCount := 0
	for _, job := range jobs {
		if _, err := s.client.JobCancel(ctx, job.ID); err != nil {
			ctxLogger.Warn("Failed to cancel job",
				attr.Int64("job_id", job.ID),
				attr.Error(err))
			continue
		}
		cancelledCount++
	}

	if cancelledCount == len(jobs) {
		s.metrics.RecordOperationSuccess(ctx, "cancel_round_jobs", serviceName)
	} else {
		s.metrics.RecordOperationFailure(ctx, "cancel_round_jobs", serviceName)
	}
	s.metrics.RecordOperationDuration(ctx, "cancel_round_jobs", serviceName, time.Since(start))

	if len(jobs) > 0 {
		ctxLogger.Info("Jobs cancellation completed",
			attr.Int("total_found", len(jobs)),
			attr.Int("cancelled_count", cancelledCount))
	}
	return nil
}

// GetScheduledJobs returns information about jobs for a round (for debugging)
func (s *Service) GetScheduledJobs(ctx context.Context, roundID uuid.UUID) ([]JobInfo, error) {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "get_scheduled_jobs", serviceName)

	var jobs []riverJobRow
	err := s.db.NewSelect().
		Table("river_job").
		Column("id", "kind", "state", "args", "scheduled_at", "created_at", "attempt", "max_attempts").
		Where("kind = ?", TransitionKind).
		Where("args->>'round_id' = ?", roundID.String()).
		Order("scheduled_at ASC NULLS LAST", "created_at ASC").
		Scan(ctx, &jobs)
	if err != nil {
		s.logger.Error("Failed to query scheduled jobs", attr.RoundID("round_id", roundID), attr.Error(err))
		s.metrics.RecordOperationFailure(ctx, "get_scheduled_jobs", serviceName)
		return nil, fmt.Errorf("failed to query scheduled jobs: %w", err)
	}

	result := make([]JobInfo, len(jobs))
	for i, job := range jobs {
		result[i] = toJobInfo(roundID, job)
	}

	s.metrics.RecordOperationSuccess(ctx, "get_scheduled_jobs", serviceName)
	s.metrics.RecordOperationDuration(ctx, "get_scheduled_jobs", serviceName, time.Since(start))
	return result, nil
}

func toJobInfo(roundID uuid.UUID, job riverJobRow) JobInfo {
	info := JobInfo{
		ID:          job.ID,
		Kind:        job.Kind,
		RoundID:     roundID.String(),
		State:       job.State,
		CreatedAt:   job.CreatedAt.Format(time.RFC3339),
		Attempt:     int(job.Attempt),
		MaxAttempts: int(job.MaxAttempts),
	}
	if job.ScheduledAt != nil {
		info.ScheduledAt = job.ScheduledAt.Format(time.RFC3339)
	}
	if status, ok := job.Args["status"].(string); ok {
		info.Status = status
	}
	return info
}

// HealthCheck verifies the queue service is healthy
func (s *Service) HealthCheck(ctx context.Context) error {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "health_check", serviceName)

	if s.client == nil {
		s.metrics.RecordOperationFailure(ctx, "health_check", serviceName)
		return fmt.Errorf("river client is nil")
	}

	var count int
	err := s.db.NewSelect().
		Table("river_job").
		ColumnExpr("COUNT(*)").
		Where("kind = ?", TransitionKind).
		Where("state = ?", "available").
		Scan(ctx, &count)
	if err != nil {
		s.logger.Error("Queue service health check failed", attr.Error(err))
		s.metrics.RecordOperationFailure(ctx, "health_check", serviceName)
		return fmt.Errorf("queue service health check failed: %w", err)
	}

	s.metrics.RecordOperationSuccess(ctx, "health_check", serviceName)
	s.metrics.RecordOperationDuration(ctx, "health_check", serviceName, time.Since(start))

	s.logger.Debug("Queue service health check passed", attr.Int("available_jobs", count))
	return nil
}

// GetClient returns the underlying River client for advanced operations
func (s *Service) GetClient() *river.Client[pgx.Tx] {
	return s.client
}
