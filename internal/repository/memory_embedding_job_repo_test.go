package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"photo-match/internal/domain"
)

func TestMemoryJobRepoEnqueueIsIdempotentForPendingTarget(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEmbeddingJobRepository()

	first, created, err := repo.Enqueue(ctx, domain.JobTypeChoice, "choice-1")
	if err != nil || !created {
		t.Fatalf("expected first enqueue to create, created=%v err=%v", created, err)
	}
	second, created, err := repo.Enqueue(ctx, domain.JobTypeChoice, "choice-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created {
		t.Fatalf("expected second enqueue to reuse pending job")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same job id, got %s and %s", first.ID, second.ID)
	}

	// Otro tipo con el mismo target es un job distinto.
	if _, created, _ := repo.Enqueue(ctx, domain.JobTypeImage, "choice-1"); !created {
		t.Fatalf("expected different job type to create a new job")
	}

	counts, _ := repo.CountByStatus(ctx, domain.JobTypeChoice)
	if counts[domain.JobStatusPending] != 1 {
		t.Fatalf("expected 1 pending choice job, got %d", counts[domain.JobStatusPending])
	}
}

func TestMemoryJobRepoEnqueueWhileProcessingCreatesNewPending(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEmbeddingJobRepository()

	first, _, _ := repo.Enqueue(ctx, domain.JobTypeQuestion, "q-1")
	if _, err := repo.ClaimNext(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	second, created, _ := repo.Enqueue(ctx, domain.JobTypeQuestion, "q-1")
	if !created || second.ID == first.ID {
		t.Fatalf("expected a fresh pending job while the first one is processing")
	}
}

func TestMemoryJobRepoClaimIsAtomicAcrossWorkers(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEmbeddingJobRepository()
	const jobs = 200
	for i := 0; i < jobs; i++ {
		if _, _, err := repo.Enqueue(ctx, domain.JobTypePhotographerProfile, fmt.Sprintf("p-%03d", i)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := repo.ClaimNext(ctx)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != jobs {
		t.Fatalf("expected %d distinct claims, got %d", jobs, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("job %s claimed %d times", id, n)
		}
	}
}

func TestMemoryJobRepoClaimIsFIFO(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEmbeddingJobRepository()
	a, _, _ := repo.Enqueue(ctx, domain.JobTypeChoice, "a")
	b, _, _ := repo.Enqueue(ctx, domain.JobTypeChoice, "b")

	first, _ := repo.ClaimNext(ctx)
	second, _ := repo.ClaimNext(ctx)
	if first.ID != a.ID || second.ID != b.ID {
		t.Fatalf("expected FIFO order a,b got %s,%s", first.TargetID, second.TargetID)
	}
	if first.Status != domain.JobStatusProcessing || first.LockedAt == nil {
		t.Fatalf("expected claimed job to be processing with lock time, got %+v", first)
	}
	none, err := repo.ClaimNext(ctx)
	if err != nil || none != nil {
		t.Fatalf("expected empty queue, got %+v err=%v", none, err)
	}
}

func TestMemoryJobRepoFailRetriesUntilCeiling(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEmbeddingJobRepository()
	job, _, _ := repo.Enqueue(ctx, domain.JobTypeImage, "img-1")

	for attempt := 1; attempt <= 3; attempt++ {
		claimed, _ := repo.ClaimNext(ctx)
		if claimed == nil || claimed.ID != job.ID {
			t.Fatalf("attempt %d: expected to claim job again", attempt)
		}
		failed, err := repo.Fail(ctx, job.ID, claimed.LeaseID, "embedder timeout", 3)
		if err != nil {
			t.Fatalf("fail: %v", err)
		}
		if failed.Attempts != attempt {
			t.Fatalf("expected attempts=%d, got %d", attempt, failed.Attempts)
		}
		want := domain.JobStatusPending
		if attempt == 3 {
			want = domain.JobStatusFailed
		}
		if failed.Status != want {
			t.Fatalf("attempt %d: expected status %s, got %s", attempt, want, failed.Status)
		}
	}

	if next, _ := repo.ClaimNext(ctx); next != nil {
		t.Fatalf("expected no automatic retry after ceiling")
	}
}

func TestMemoryJobRepoFailSupersededByPendingJob(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEmbeddingJobRepository()
	first, _, _ := repo.Enqueue(ctx, domain.JobTypeChoice, "c-1")
	claimed, _ := repo.ClaimNext(ctx)
	second, _, _ := repo.Enqueue(ctx, domain.JobTypeChoice, "c-1")

	failed, err := repo.Fail(ctx, first.ID, claimed.LeaseID, "boom", 3)
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if failed.Status != domain.JobStatusFailed || !strings.HasPrefix(failed.LastError, supersededPrefix) {
		t.Fatalf("expected superseded failure, got %+v", failed)
	}
	counts, _ := repo.CountByIDs(ctx, []string{first.ID, second.ID})
	if counts[domain.JobStatusPending] != 1 {
		t.Fatalf("expected exactly one pending job, got %v", counts)
	}
}

func TestMemoryJobRepoCompleteAndFailRequireClaim(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEmbeddingJobRepository()
	job, _, _ := repo.Enqueue(ctx, domain.JobTypeChoice, "c-1")

	if _, err := repo.Complete(ctx, job.ID, ""); !errors.Is(err, ErrJobNotClaimed) {
		t.Fatalf("expected ErrJobNotClaimed, got %v", err)
	}
	if _, err := repo.Fail(ctx, job.ID, "", "x", 3); !errors.Is(err, ErrJobNotClaimed) {
		t.Fatalf("expected ErrJobNotClaimed, got %v", err)
	}
	if _, err := repo.Complete(ctx, "missing", ""); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}

	claimed, _ := repo.ClaimNext(ctx)
	if claimed.LeaseID == "" {
		t.Fatalf("expected claim to carry a lease id")
	}
	if _, err := repo.Complete(ctx, job.ID, "other-lease"); !errors.Is(err, ErrJobNotClaimed) {
		t.Fatalf("expected ErrJobNotClaimed for wrong lease, got %v", err)
	}
	done, err := repo.Complete(ctx, job.ID, claimed.LeaseID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.JobStatusCompleted || done.LeaseID != "" {
		t.Fatalf("expected completed job with cleared lease, got %+v", done)
	}
}

func TestMemoryJobRepoReleasedClaimRejectsFirstWorker(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEmbeddingJobRepository()
	job, _, _ := repo.Enqueue(ctx, domain.JobTypePhotographerProfile, "p-1")

	first, _ := repo.ClaimNext(ctx)
	if released, err := repo.ReleaseStale(ctx, first.LockedAt.Add(time.Hour)); err != nil || released != 1 {
		t.Fatalf("expected lock released, released=%d err=%v", released, err)
	}
	second, _ := repo.ClaimNext(ctx)
	if second == nil || second.ID != job.ID {
		t.Fatalf("expected released job to be claimed again")
	}
	if second.LeaseID == first.LeaseID {
		t.Fatalf("expected a fresh lease on re-claim")
	}

	if _, err := repo.Fail(ctx, job.ID, first.LeaseID, "late failure", 3); !errors.Is(err, ErrJobNotClaimed) {
		t.Fatalf("expected stale Fail to be rejected, got %v", err)
	}
	if _, err := repo.Complete(ctx, job.ID, first.LeaseID); !errors.Is(err, ErrJobNotClaimed) {
		t.Fatalf("expected stale Complete to be rejected, got %v", err)
	}
	current, _ := repo.GetByID(ctx, job.ID)
	if current.Status != domain.JobStatusProcessing || current.Attempts != 0 || current.LeaseID != second.LeaseID {
		t.Fatalf("expected second claim untouched, got %+v", current)
	}
	if next, _ := repo.ClaimNext(ctx); next != nil {
		t.Fatalf("expected no third claim while the second worker holds the job")
	}

	done, err := repo.Complete(ctx, job.ID, second.LeaseID)
	if err != nil || done.Status != domain.JobStatusCompleted {
		t.Fatalf("expected second worker to complete, got %+v err=%v", done, err)
	}
}

func TestMemoryJobRepoRequeue(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEmbeddingJobRepository()
	job, _, _ := repo.Enqueue(ctx, domain.JobTypeQuestion, "q-1")

	if _, err := repo.Requeue(ctx, job.ID); !errors.Is(err, ErrJobNotFailed) {
		t.Fatalf("expected ErrJobNotFailed for pending job, got %v", err)
	}

	claimed, _ := repo.ClaimNext(ctx)
	if _, err := repo.Fail(ctx, job.ID, claimed.LeaseID, "boom", 1); err != nil {
		t.Fatalf("fail: %v", err)
	}
	requeued, err := repo.Requeue(ctx, job.ID)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if requeued.Status != domain.JobStatusPending || requeued.Attempts != 0 || requeued.LastError != "" {
		t.Fatalf("expected reset pending job, got %+v", requeued)
	}
}

func TestMemoryJobRepoRequeueReturnsExistingPending(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEmbeddingJobRepository()
	job, _, _ := repo.Enqueue(ctx, domain.JobTypeQuestion, "q-1")
	claimed, _ := repo.ClaimNext(ctx)
	_, _ = repo.Fail(ctx, job.ID, claimed.LeaseID, "boom", 1)
	pending, _, _ := repo.Enqueue(ctx, domain.JobTypeQuestion, "q-1")

	got, err := repo.Requeue(ctx, job.ID)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if got.ID != pending.ID {
		t.Fatalf("expected existing pending job %s, got %s", pending.ID, got.ID)
	}
}

func TestMemoryJobRepoReleaseStale(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEmbeddingJobRepository()
	_, _, _ = repo.Enqueue(ctx, domain.JobTypeChoice, "c-1")
	claimed, _ := repo.ClaimNext(ctx)

	released, err := repo.ReleaseStale(ctx, claimed.LockedAt.Add(-time.Second))
	if err != nil || released != 0 {
		t.Fatalf("expected fresh lock to stay, released=%d err=%v", released, err)
	}
	released, err = repo.ReleaseStale(ctx, claimed.LockedAt.Add(time.Second))
	if err != nil || released != 1 {
		t.Fatalf("expected stale lock released, released=%d err=%v", released, err)
	}
	again, _ := repo.ClaimNext(ctx)
	if again == nil || again.ID != claimed.ID {
		t.Fatalf("expected released job to be claimable again")
	}
}

func TestMemoryJobRepoListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEmbeddingJobRepository()
	_, _, _ = repo.Enqueue(ctx, domain.JobTypeChoice, "c-1")
	_, _, _ = repo.Enqueue(ctx, domain.JobTypeImage, "i-1")
	_, _, _ = repo.Enqueue(ctx, domain.JobTypeImage, "i-2")

	images, err := repo.List(ctx, JobFilter{JobType: domain.JobTypeImage})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(images) != 2 || images[0].TargetID != "i-2" {
		t.Fatalf("expected newest-first image jobs, got %+v", images)
	}
	limited, _ := repo.List(ctx, JobFilter{Status: domain.JobStatusPending, Limit: 1})
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}
