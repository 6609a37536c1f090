package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"photo-match/internal/domain"
)

var (
	// ErrJobNotClaimed indica que el job existe pero no esta en processing bajo el lease presentado.
	ErrJobNotClaimed = errors.New("job is not processing")
	// ErrJobNotFailed indica que solo los jobs failed pueden reencolarse manualmente.
	ErrJobNotFailed = errors.New("job is not failed")
)

const supersededPrefix = "superseded by pending job: "

type JobFilter struct {
	Status  domain.JobStatus
	JobType domain.JobType
	Limit   int
}

type EmbeddingJobRepository interface {
	// Enqueue crea un job pending o devuelve el pending existente para el mismo target (created=false).
	Enqueue(ctx context.Context, jobType domain.JobType, targetID string) (domain.EmbeddingJob, bool, error)
	// ClaimNext pasa atomicamente el job pending mas antiguo a processing. Devuelve nil si no hay.
	ClaimNext(ctx context.Context) (*domain.EmbeddingJob, error)
	// Complete y Fail solo aplican si el job sigue en processing con el lease devuelto por ClaimNext.
	Complete(ctx context.Context, id, leaseID string) (domain.EmbeddingJob, error)
	Fail(ctx context.Context, id, leaseID, reason string, maxAttempts int) (domain.EmbeddingJob, error)
	Requeue(ctx context.Context, id string) (domain.EmbeddingJob, error)
	GetByID(ctx context.Context, id string) (domain.EmbeddingJob, error)
	List(ctx context.Context, filter JobFilter) ([]domain.EmbeddingJob, error)
	CountByStatus(ctx context.Context, jobType domain.JobType) (domain.JobCounts, error)
	CountByIDs(ctx context.Context, ids []string) (domain.JobCounts, error)
	ReleaseStale(ctx context.Context, lockedBefore time.Time) (int, error)
}

type PgEmbeddingJobRepository struct {
	pool *pgxpool.Pool
}

func NewPgEmbeddingJobRepository(pool *pgxpool.Pool) *PgEmbeddingJobRepository {
	return &PgEmbeddingJobRepository{pool: pool}
}

const jobColumns = `id, job_type, target_id, status, attempts, last_error, created_at, updated_at, locked_at, lease_id, completed_at`

func (r *PgEmbeddingJobRepository) Enqueue(ctx context.Context, jobType domain.JobType, targetID string) (domain.EmbeddingJob, bool, error) {
	const insert = `
		INSERT INTO embedding_jobs (id, job_type, target_id, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', 0, $4, $4)
		ON CONFLICT (job_type, target_id) WHERE status = 'pending' DO NOTHING
		RETURNING ` + jobColumns
	const existing = `
		SELECT ` + jobColumns + `
		FROM embedding_jobs
		WHERE job_type = $1 AND target_id = $2 AND status = 'pending'
	`

	// El pending existente puede ser reclamado entre el insert y el select; se reintenta una vez.
	for attempt := 0; attempt < 2; attempt++ {
		now := time.Now().UTC()
		job, err := scanJob(r.pool.QueryRow(ctx, insert, uuid.NewString(), string(jobType), targetID, now))
		if err == nil {
			return job, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.EmbeddingJob{}, false, err
		}
		job, err = scanJob(r.pool.QueryRow(ctx, existing, string(jobType), targetID))
		if err == nil {
			return job, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.EmbeddingJob{}, false, err
		}
	}
	return domain.EmbeddingJob{}, false, fmt.Errorf("enqueue %s/%s: pending job vanished twice", jobType, targetID)
}

func (r *PgEmbeddingJobRepository) ClaimNext(ctx context.Context) (*domain.EmbeddingJob, error) {
	const query = `
		UPDATE embedding_jobs
		SET status = 'processing', locked_at = $1, updated_at = $1, lease_id = $2
		WHERE id = (
			SELECT id FROM embedding_jobs
			WHERE status = 'pending'
			ORDER BY created_at, id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns
	job, err := scanJob(r.pool.QueryRow(ctx, query, time.Now().UTC(), uuid.NewString()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *PgEmbeddingJobRepository) Complete(ctx context.Context, id, leaseID string) (domain.EmbeddingJob, error) {
	const query = `
		UPDATE embedding_jobs
		SET status = 'completed', completed_at = $2, updated_at = $2, locked_at = NULL, lease_id = '', last_error = ''
		WHERE id = $1 AND status = 'processing' AND lease_id = $3
		RETURNING ` + jobColumns
	job, err := scanJob(r.pool.QueryRow(ctx, query, id, time.Now().UTC(), leaseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EmbeddingJob{}, r.notClaimed(ctx, id)
	}
	return job, err
}

func (r *PgEmbeddingJobRepository) Fail(ctx context.Context, id, leaseID, reason string, maxAttempts int) (domain.EmbeddingJob, error) {
	const query = `
		WITH sibling AS (
			SELECT EXISTS (
				SELECT 1 FROM embedding_jobs p, embedding_jobs j
				WHERE j.id = $1 AND p.job_type = j.job_type AND p.target_id = j.target_id
					AND p.status = 'pending' AND p.id <> j.id
			) AS pending
		)
		UPDATE embedding_jobs j
		SET attempts = j.attempts + 1,
			updated_at = $4,
			locked_at = NULL,
			lease_id = '',
			status = CASE
				WHEN j.attempts + 1 >= $3 THEN 'failed'
				WHEN (SELECT pending FROM sibling) THEN 'failed'
				ELSE 'pending'
			END,
			last_error = CASE
				WHEN j.attempts + 1 < $3 AND (SELECT pending FROM sibling) THEN $5 || $2
				ELSE $2
			END
		WHERE j.id = $1 AND j.status = 'processing' AND j.lease_id = $6
		RETURNING ` + jobColumns
	job, err := scanJob(r.pool.QueryRow(ctx, query, id, reason, maxAttempts, time.Now().UTC(), supersededPrefix, leaseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EmbeddingJob{}, r.notClaimed(ctx, id)
	}
	return job, err
}

func (r *PgEmbeddingJobRepository) Requeue(ctx context.Context, id string) (domain.EmbeddingJob, error) {
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return domain.EmbeddingJob{}, err
	}
	if job.Status != domain.JobStatusFailed {
		return domain.EmbeddingJob{}, ErrJobNotFailed
	}

	const query = `
		UPDATE embedding_jobs
		SET status = 'pending', attempts = 0, last_error = '', updated_at = $2, locked_at = NULL, lease_id = ''
		WHERE id = $1 AND status = 'failed'
		RETURNING ` + jobColumns
	requeued, err := scanJob(r.pool.QueryRow(ctx, query, id, time.Now().UTC()))
	if err == nil {
		return requeued, nil
	}
	// Ya hay un pending para el mismo target: ese job cubre el trabajo.
	if isUniqueViolation(err) {
		pending, _, enqErr := r.Enqueue(ctx, job.JobType, job.TargetID)
		return pending, enqErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EmbeddingJob{}, ErrJobNotFailed
	}
	return domain.EmbeddingJob{}, err
}

func (r *PgEmbeddingJobRepository) GetByID(ctx context.Context, id string) (domain.EmbeddingJob, error) {
	const query = `SELECT ` + jobColumns + ` FROM embedding_jobs WHERE id = $1`
	return scanJob(r.pool.QueryRow(ctx, query, id))
}

func (r *PgEmbeddingJobRepository) List(ctx context.Context, filter JobFilter) ([]domain.EmbeddingJob, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `
		SELECT ` + jobColumns + `
		FROM embedding_jobs
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR job_type = $2)
		ORDER BY created_at DESC, id
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, string(filter.Status), string(filter.JobType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.EmbeddingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *PgEmbeddingJobRepository) CountByStatus(ctx context.Context, jobType domain.JobType) (domain.JobCounts, error) {
	const query = `
		SELECT status, count(*)
		FROM embedding_jobs
		WHERE ($1 = '' OR job_type = $1)
		GROUP BY status
	`
	rows, err := r.pool.Query(ctx, query, string(jobType))
	if err != nil {
		return nil, err
	}
	return scanCounts(rows)
}

func (r *PgEmbeddingJobRepository) CountByIDs(ctx context.Context, ids []string) (domain.JobCounts, error) {
	if len(ids) == 0 {
		return domain.JobCounts{}, nil
	}
	const query = `
		SELECT status, count(*)
		FROM embedding_jobs
		WHERE id = ANY($1)
		GROUP BY status
	`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	return scanCounts(rows)
}

func (r *PgEmbeddingJobRepository) ReleaseStale(ctx context.Context, lockedBefore time.Time) (int, error) {
	const query = `
		UPDATE embedding_jobs j
		SET status = 'pending', locked_at = NULL, lease_id = '', updated_at = now()
		WHERE j.status = 'processing' AND j.locked_at < $1
			AND NOT EXISTS (
				SELECT 1 FROM embedding_jobs p
				WHERE p.job_type = j.job_type AND p.target_id = j.target_id AND p.status = 'pending'
			)
	`
	tag, err := r.pool.Exec(ctx, query, lockedBefore)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PgEmbeddingJobRepository) notClaimed(ctx context.Context, id string) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrJobNotClaimed
}

func scanJob(row pgx.Row) (domain.EmbeddingJob, error) {
	var job domain.EmbeddingJob
	var jobType, status string
	err := row.Scan(
		&job.ID,
		&jobType,
		&job.TargetID,
		&status,
		&job.Attempts,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.LockedAt,
		&job.LeaseID,
		&job.CompletedAt,
	)
	if err != nil {
		return domain.EmbeddingJob{}, err
	}
	job.JobType = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	return job, nil
}

func scanCounts(rows pgx.Rows) (domain.JobCounts, error) {
	defer rows.Close()
	counts := domain.JobCounts{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.JobStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}
