package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"photo-match/internal/domain"
)

// MemoryEmbeddingJobRepository guarda los jobs en memoria; todas las transiciones ocurren bajo un mutex,
// lo que da el mismo claim atomico que SKIP LOCKED dentro de un solo proceso.
type MemoryEmbeddingJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*domain.EmbeddingJob
	seq  int64
	now  func() time.Time
}

func NewMemoryEmbeddingJobRepository() *MemoryEmbeddingJobRepository {
	return &MemoryEmbeddingJobRepository{
		jobs: make(map[string]*domain.EmbeddingJob),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// nextTime garantiza created_at estrictamente creciente para que el orden FIFO sea estable.
func (r *MemoryEmbeddingJobRepository) nextTime() time.Time {
	r.seq++
	return r.now().Add(time.Duration(r.seq) * time.Nanosecond)
}

func (r *MemoryEmbeddingJobRepository) pendingFor(jobType domain.JobType, targetID, exceptID string) *domain.EmbeddingJob {
	for _, j := range r.jobs {
		if j.ID != exceptID && j.JobType == jobType && j.TargetID == targetID && j.Status == domain.JobStatusPending {
			return j
		}
	}
	return nil
}

func (r *MemoryEmbeddingJobRepository) Enqueue(_ context.Context, jobType domain.JobType, targetID string) (domain.EmbeddingJob, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.pendingFor(jobType, targetID, ""); existing != nil {
		return *existing, false, nil
	}
	now := r.nextTime()
	job := &domain.EmbeddingJob{
		ID:        uuid.NewString(),
		JobType:   jobType,
		TargetID:  targetID,
		Status:    domain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.jobs[job.ID] = job
	return *job, true, nil
}

func (r *MemoryEmbeddingJobRepository) ClaimNext(_ context.Context) (*domain.EmbeddingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var next *domain.EmbeddingJob
	for _, j := range r.jobs {
		if j.Status != domain.JobStatusPending {
			continue
		}
		if next == nil || j.CreatedAt.Before(next.CreatedAt) || (j.CreatedAt.Equal(next.CreatedAt) && j.ID < next.ID) {
			next = j
		}
	}
	if next == nil {
		return nil, nil
	}
	now := r.now()
	next.Status = domain.JobStatusProcessing
	next.LockedAt = &now
	next.LeaseID = uuid.NewString()
	next.UpdatedAt = now
	claimed := *next
	return &claimed, nil
}

func (r *MemoryEmbeddingJobRepository) Complete(_ context.Context, id, leaseID string) (domain.EmbeddingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.EmbeddingJob{}, pgx.ErrNoRows
	}
	if !holdsLease(j, leaseID) {
		return domain.EmbeddingJob{}, ErrJobNotClaimed
	}
	now := r.now()
	j.Status = domain.JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.LockedAt = nil
	j.LeaseID = ""
	j.LastError = ""
	return *j, nil
}

func (r *MemoryEmbeddingJobRepository) Fail(_ context.Context, id, leaseID, reason string, maxAttempts int) (domain.EmbeddingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.EmbeddingJob{}, pgx.ErrNoRows
	}
	if !holdsLease(j, leaseID) {
		return domain.EmbeddingJob{}, ErrJobNotClaimed
	}
	j.Attempts++
	j.UpdatedAt = r.now()
	j.LockedAt = nil
	j.LeaseID = ""
	j.LastError = reason
	switch {
	case j.Attempts >= maxAttempts:
		j.Status = domain.JobStatusFailed
	case r.pendingFor(j.JobType, j.TargetID, j.ID) != nil:
		j.Status = domain.JobStatusFailed
		j.LastError = supersededPrefix + reason
	default:
		j.Status = domain.JobStatusPending
	}
	return *j, nil
}

func (r *MemoryEmbeddingJobRepository) Requeue(_ context.Context, id string) (domain.EmbeddingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.EmbeddingJob{}, pgx.ErrNoRows
	}
	if j.Status != domain.JobStatusFailed {
		return domain.EmbeddingJob{}, ErrJobNotFailed
	}
	if existing := r.pendingFor(j.JobType, j.TargetID, j.ID); existing != nil {
		return *existing, nil
	}
	j.Status = domain.JobStatusPending
	j.Attempts = 0
	j.LastError = ""
	j.UpdatedAt = r.now()
	return *j, nil
}

func (r *MemoryEmbeddingJobRepository) GetByID(_ context.Context, id string) (domain.EmbeddingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.EmbeddingJob{}, pgx.ErrNoRows
	}
	return *j, nil
}

func (r *MemoryEmbeddingJobRepository) List(_ context.Context, filter JobFilter) ([]domain.EmbeddingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []domain.EmbeddingJob
	for _, j := range r.jobs {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.JobType != "" && j.JobType != filter.JobType {
			continue
		}
		out = append(out, *j)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryEmbeddingJobRepository) CountByStatus(_ context.Context, jobType domain.JobType) (domain.JobCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := domain.JobCounts{}
	for _, j := range r.jobs {
		if jobType != "" && j.JobType != jobType {
			continue
		}
		counts[j.Status]++
	}
	return counts, nil
}

func (r *MemoryEmbeddingJobRepository) CountByIDs(_ context.Context, ids []string) (domain.JobCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := domain.JobCounts{}
	for _, id := range ids {
		if j, ok := r.jobs[id]; ok {
			counts[j.Status]++
		}
	}
	return counts, nil
}

func (r *MemoryEmbeddingJobRepository) ReleaseStale(_ context.Context, lockedBefore time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	released := 0
	for _, j := range r.jobs {
		if j.Status != domain.JobStatusProcessing || j.LockedAt == nil || !j.LockedAt.Before(lockedBefore) {
			continue
		}
		if r.pendingFor(j.JobType, j.TargetID, j.ID) != nil {
			continue
		}
		j.Status = domain.JobStatusPending
		j.LockedAt = nil
		j.LeaseID = ""
		j.UpdatedAt = r.now()
		released++
	}
	return released, nil
}

// holdsLease es falso si el job fue liberado y reclamado por otro worker desde el claim original.
func holdsLease(j *domain.EmbeddingJob, leaseID string) bool {
	return j.Status == domain.JobStatusProcessing && j.LeaseID == leaseID
}
