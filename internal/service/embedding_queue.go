package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"photo-match/internal/domain"
	"photo-match/internal/metrics"
	"photo-match/internal/repository"
)

var (
	ErrJobNotFound       = errors.New("embedding job not found")
	ErrJobNotFailed      = errors.New("embedding job is not failed")
	ErrJobLeaseLost      = errors.New("embedding job lease lost")
	ErrJobInvalidTarget  = errors.New("embedding job target invalid")
	ErrProfileIncomplete = errors.New("photographer profile incomplete")
)

const defaultMaxAttempts = 3

// EmbeddingQueue envuelve el repositorio de jobs y aplica los efectos sobre el contenido.
type EmbeddingQueue struct {
	logger        *zap.Logger
	jobs          repository.EmbeddingJobRepository
	questions     repository.QuestionRepository
	photographers repository.PhotographerRepository
	maxAttempts   int
	now           func() time.Time
}

func NewEmbeddingQueue(
	logger *zap.Logger,
	jobs repository.EmbeddingJobRepository,
	questions repository.QuestionRepository,
	photographers repository.PhotographerRepository,
	maxAttempts int,
) *EmbeddingQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &EmbeddingQueue{
		logger:        logger,
		jobs:          jobs,
		questions:     questions,
		photographers: photographers,
		maxAttempts:   maxAttempts,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (q *EmbeddingQueue) MaxAttempts() int { return q.maxAttempts }

// Enqueue es idempotente: si el target ya tiene un job pendiente devuelve ese job.
func (q *EmbeddingQueue) Enqueue(ctx context.Context, jobType domain.JobType, targetID string) (domain.EmbeddingJob, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return domain.EmbeddingJob{}, ErrJobInvalidTarget
	}
	if _, err := domain.ParseJobType(string(jobType)); err != nil {
		return domain.EmbeddingJob{}, fmt.Errorf("%w: %v", ErrJobInvalidTarget, err)
	}
	job, created, err := q.jobs.Enqueue(ctx, jobType, targetID)
	if err != nil {
		return domain.EmbeddingJob{}, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}
	if created {
		metrics.EmbeddingJobsEnqueued.WithLabelValues(string(jobType)).Inc()
		q.logger.Debug("embedding job enqueued", zap.String("job_id", job.ID), zap.String("job_type", string(jobType)), zap.String("target_id", targetID))
	}
	return job, nil
}

// EnqueueMany encola un job por target y devuelve los jobs en el mismo orden.
func (q *EmbeddingQueue) EnqueueMany(ctx context.Context, jobType domain.JobType, targetIDs []string) ([]domain.EmbeddingJob, error) {
	jobs := make([]domain.EmbeddingJob, 0, len(targetIDs))
	for _, id := range targetIDs {
		job, err := q.Enqueue(ctx, jobType, id)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (q *EmbeddingQueue) ClaimNext(ctx context.Context) (*domain.EmbeddingJob, error) {
	job, err := q.jobs.ClaimNext(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim embedding job: %w", err)
	}
	return job, nil
}

// Complete cierra el job y limpia la marca de embedding desactualizado del contenido.
// leaseID es el devuelto por ClaimNext; si el job fue reclamado de nuevo devuelve ErrJobLeaseLost.
func (q *EmbeddingQueue) Complete(ctx context.Context, jobID, leaseID string) (domain.EmbeddingJob, error) {
	job, err := q.jobs.Complete(ctx, jobID, leaseID)
	if err != nil {
		return domain.EmbeddingJob{}, mapJobError(err)
	}
	at := q.now()
	switch job.JobType {
	case domain.JobTypePhotographerProfile:
		err = q.photographers.MarkEmbeddingsGenerated(ctx, job.TargetID, at)
	default:
		err = q.questions.MarkEmbedded(ctx, job.JobType, job.TargetID, at)
	}
	if err != nil {
		return job, fmt.Errorf("mark %s %s embedded: %w", job.JobType, job.TargetID, err)
	}
	return job, nil
}

// Fail suma un intento y devuelve el job a pendiente mientras queden intentos.
func (q *EmbeddingQueue) Fail(ctx context.Context, jobID, leaseID, reason string) (domain.EmbeddingJob, error) {
	job, err := q.jobs.Fail(ctx, jobID, leaseID, reason, q.maxAttempts)
	if err != nil {
		return domain.EmbeddingJob{}, mapJobError(err)
	}
	if job.Status == domain.JobStatusFailed {
		q.logger.Warn("embedding job failed permanently",
			zap.String("job_id", job.ID),
			zap.String("job_type", string(job.JobType)),
			zap.String("target_id", job.TargetID),
			zap.Int("attempts", job.Attempts),
			zap.String("reason", job.LastError),
		)
	}
	return job, nil
}

// Requeue es la accion manual del operador sobre un job fallido.
func (q *EmbeddingQueue) Requeue(ctx context.Context, jobID string) (domain.EmbeddingJob, error) {
	job, err := q.jobs.Requeue(ctx, jobID)
	if err != nil {
		return domain.EmbeddingJob{}, mapJobError(err)
	}
	q.logger.Info("embedding job requeued", zap.String("job_id", job.ID), zap.String("target_id", job.TargetID))
	return job, nil
}

func (q *EmbeddingQueue) Get(ctx context.Context, jobID string) (domain.EmbeddingJob, error) {
	job, err := q.jobs.GetByID(ctx, jobID)
	if err != nil {
		return domain.EmbeddingJob{}, mapJobError(err)
	}
	return job, nil
}

func (q *EmbeddingQueue) List(ctx context.Context, filter repository.JobFilter) ([]domain.EmbeddingJob, error) {
	return q.jobs.List(ctx, filter)
}

// Stats cuenta jobs por estado; jobType vacio cuenta todos.
func (q *EmbeddingQueue) Stats(ctx context.Context, jobType domain.JobType) (domain.JobCounts, error) {
	return q.jobs.CountByStatus(ctx, jobType)
}

func (q *EmbeddingQueue) CountByIDs(ctx context.Context, ids []string) (domain.JobCounts, error) {
	return q.jobs.CountByIDs(ctx, ids)
}

// ReleaseStale devuelve a pendiente los jobs tomados hace mas de olderThan.
func (q *EmbeddingQueue) ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error) {
	n, err := q.jobs.ReleaseStale(ctx, q.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("release stale jobs: %w", err)
	}
	if n > 0 {
		q.logger.Warn("released stale embedding jobs", zap.Int("count", n))
	}
	return n, nil
}

func mapJobError(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrJobNotFound
	case errors.Is(err, repository.ErrJobNotFailed):
		return ErrJobNotFailed
	case errors.Is(err, repository.ErrJobNotClaimed):
		return ErrJobLeaseLost
	}
	return err
}
