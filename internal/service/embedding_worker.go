package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"photo-match/internal/domain"
	"photo-match/internal/llm"
	"photo-match/internal/metrics"
	"photo-match/internal/repository"
)

var (
	errEmptyEmbedding = errors.New("embedder returned an empty vector")
	errEmptyText      = errors.New("content has no text to embed")
)

// WorkerOptions agrupa los intervalos del pipeline de embeddings.
// JobTimeout siempre queda por debajo de StaleAfter: un job no puede seguir
// corriendo cuando el liberador ya lo considera huerfano.
type WorkerOptions struct {
	PollInterval      time.Duration
	BatchPollInterval time.Duration
	BatchTimeout      time.Duration
	StaleAfter        time.Duration
	JobTimeout        time.Duration
}

func (o WorkerOptions) withDefaults() WorkerOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.BatchPollInterval <= 0 {
		o.BatchPollInterval = 3 * time.Second
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = 5 * time.Minute
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 2 * time.Minute
	}
	if o.JobTimeout <= 0 || o.JobTimeout >= o.StaleAfter {
		o.JobTimeout = o.StaleAfter * 3 / 4
	}
	return o
}

// EmbeddingWorker toma jobs de la cola, genera los vectores y los persiste.
type EmbeddingWorker struct {
	id            string
	logger        *zap.Logger
	queue         *EmbeddingQueue
	embedder      llm.Embedder
	vectors       repository.VectorStore
	questions     repository.QuestionRepository
	photographers repository.PhotographerRepository
	opts          WorkerOptions
}

func NewEmbeddingWorker(
	logger *zap.Logger,
	queue *EmbeddingQueue,
	embedder llm.Embedder,
	vectors repository.VectorStore,
	questions repository.QuestionRepository,
	photographers repository.PhotographerRepository,
	opts WorkerOptions,
) *EmbeddingWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()[:8]
	return &EmbeddingWorker{
		id:            id,
		logger:        logger.With(zap.String("worker_id", id)),
		queue:         queue,
		embedder:      embedder,
		vectors:       vectors,
		questions:     questions,
		photographers: photographers,
		opts:          opts.withDefaults(),
	}
}

// ProcessNext procesa un job si hay alguno. Los errores del embedder quedan registrados en el job;
// solo se devuelven errores de la propia cola.
func (w *EmbeddingWorker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.queue.ClaimNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	started := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, w.opts.JobTimeout)
	procErr := w.safeProcess(jobCtx, *job)
	cancel()
	metrics.EmbeddingJobDuration.WithLabelValues(string(job.JobType)).Observe(time.Since(started).Seconds())

	// El resultado se registra aunque el contexto del worker se haya cancelado.
	finishCtx := context.WithoutCancel(ctx)
	if procErr != nil {
		failed, err := w.queue.Fail(finishCtx, job.ID, job.LeaseID, procErr.Error())
		if errors.Is(err, ErrJobLeaseLost) {
			w.leaseLost(*job)
			return true, nil
		}
		if err != nil {
			return true, fmt.Errorf("record failure of job %s: %w", job.ID, err)
		}
		outcome := "retry"
		if failed.Status == domain.JobStatusFailed {
			outcome = "failed"
		}
		metrics.EmbeddingJobsProcessed.WithLabelValues(string(job.JobType), outcome).Inc()
		w.logger.Warn("embedding job attempt failed",
			zap.String("job_id", job.ID),
			zap.String("job_type", string(job.JobType)),
			zap.String("target_id", job.TargetID),
			zap.Int("attempts", failed.Attempts),
			zap.String("status", string(failed.Status)),
			zap.Error(procErr),
		)
		return true, nil
	}

	if _, err := w.queue.Complete(finishCtx, job.ID, job.LeaseID); err != nil {
		if errors.Is(err, ErrJobLeaseLost) {
			w.leaseLost(*job)
			return true, nil
		}
		return true, fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	metrics.EmbeddingJobsProcessed.WithLabelValues(string(job.JobType), "completed").Inc()
	w.logger.Debug("embedding job completed",
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.JobType)),
		zap.String("target_id", job.TargetID),
		zap.Duration("elapsed", time.Since(started)),
	)
	return true, nil
}

// leaseLost registra un resultado descartado porque otro worker reclamo el job despues de una liberacion.
func (w *EmbeddingWorker) leaseLost(job domain.EmbeddingJob) {
	metrics.EmbeddingJobsProcessed.WithLabelValues(string(job.JobType), "lease_lost").Inc()
	w.logger.Warn("embedding job lease lost, result discarded",
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.JobType)),
		zap.String("target_id", job.TargetID),
	)
}

// Run consulta la cola en cada tick y la vacia antes de esperar el siguiente. Termina con el contexto.
func (w *EmbeddingWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	w.logger.Info("embedding worker started", zap.Duration("poll_interval", w.opts.PollInterval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("embedding worker stopped")
			return nil
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *EmbeddingWorker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			w.logger.Warn("embedding queue error", zap.Error(err))
			return
		}
		if !processed {
			return
		}
	}
}

func (w *EmbeddingWorker) safeProcess(ctx context.Context, job domain.EmbeddingJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("embedding job panic", zap.String("job_id", job.ID), zap.Any("panic", r))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.process(ctx, job)
}

func (w *EmbeddingWorker) process(ctx context.Context, job domain.EmbeddingJob) error {
	texts, err := w.resolveTexts(ctx, job)
	if err != nil {
		return err
	}
	vectors := make(repository.EntityVectors, len(texts))
	for _, facet := range orderedFacets(texts) {
		emb, err := w.embedder.CreateEmbedding(ctx, texts[facet])
		if err != nil {
			return fmt.Errorf("embed %s: %w", facetLabel(facet), err)
		}
		if len(emb) == 0 {
			return fmt.Errorf("embed %s: %w", facetLabel(facet), errEmptyEmbedding)
		}
		vectors[facet] = pgvector.NewVector(emb)
	}
	if err := w.vectors.Put(ctx, job.JobType, job.TargetID, vectors); err != nil {
		return fmt.Errorf("store vectors: %w", err)
	}
	return nil
}

// resolveTexts devuelve el texto a embeber por faceta.
func (w *EmbeddingWorker) resolveTexts(ctx context.Context, job domain.EmbeddingJob) (map[string]string, error) {
	var text string
	switch job.JobType {
	case domain.JobTypeQuestion:
		q, err := w.questions.GetByID(ctx, job.TargetID)
		if err != nil {
			return nil, targetError(job, err)
		}
		text = q.Text
	case domain.JobTypeChoice:
		c, err := w.questions.GetChoice(ctx, job.TargetID)
		if err != nil {
			return nil, targetError(job, err)
		}
		text = c.Label
	case domain.JobTypeImage:
		img, err := w.questions.GetImage(ctx, job.TargetID)
		if err != nil {
			return nil, targetError(job, err)
		}
		text = img.EmbeddingText()
	case domain.JobTypePhotographerProfile:
		p, err := w.photographers.GetByID(ctx, job.TargetID)
		if err != nil {
			return nil, targetError(job, err)
		}
		if !p.IsComplete() {
			return nil, ErrProfileIncomplete
		}
		texts := make(map[string]string, len(domain.AllDimensions))
		for _, d := range domain.AllDimensions {
			texts[d.String()] = strings.TrimSpace(p.Descriptions[d])
		}
		return texts, nil
	default:
		return nil, fmt.Errorf("unknown job type %q", job.JobType)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errEmptyText
	}
	return map[string]string{repository.FacetDefault: text}, nil
}

func targetError(job domain.EmbeddingJob, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s not found", job.JobType, job.TargetID)
	}
	return fmt.Errorf("load %s %s: %w", job.JobType, job.TargetID, err)
}

func orderedFacets(texts map[string]string) []string {
	if _, ok := texts[repository.FacetDefault]; ok {
		return []string{repository.FacetDefault}
	}
	out := make([]string, 0, len(texts))
	for _, d := range domain.AllDimensions {
		if _, ok := texts[d.String()]; ok {
			out = append(out, d.String())
		}
	}
	return out
}

func facetLabel(facet string) string {
	if facet == repository.FacetDefault {
		return "text"
	}
	return facet
}

// WorkerPool corre N workers y un liberador de jobs huerfanos bajo un mismo errgroup.
type WorkerPool struct {
	logger  *zap.Logger
	queue   *EmbeddingQueue
	workers []*EmbeddingWorker
	opts    WorkerOptions
}

func NewWorkerPool(logger *zap.Logger, queue *EmbeddingQueue, opts WorkerOptions, workers ...*EmbeddingWorker) *WorkerPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{logger: logger, queue: queue, workers: workers, opts: opts.withDefaults()}
}

func (p *WorkerPool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		w := w
		g.Go(func() error { return w.Run(gctx) })
	}
	g.Go(func() error {
		ticker := time.NewTicker(p.opts.StaleAfter / 2)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if _, err := p.queue.ReleaseStale(gctx, p.opts.StaleAfter); err != nil {
					p.logger.Warn("release stale jobs failed", zap.Error(err))
				}
			}
		}
	})
	p.logger.Info("embedding worker pool started", zap.Int("workers", len(p.workers)))
	return g.Wait()
}

// Start lanza el pool en segundo plano.
func (p *WorkerPool) Start(ctx context.Context) {
	go func() {
		if err := p.Run(ctx); err != nil {
			p.logger.Error("embedding worker pool exited", zap.Error(err))
		}
	}()
}

const (
	BatchStatusComplete = "complete"
	BatchStatusPartial  = "partial"
)

// BatchResult describe hasta donde llego un lote cuando se dejo de consultar.
// Partial no es un error: los workers siguen procesando lo que quedo pendiente.
type BatchResult struct {
	Status    string        `json:"status"`
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Pending   int           `json:"pending"`
	Skipped   []string      `json:"skipped,omitempty"`
	JobIDs    []string      `json:"job_ids"`
	Elapsed   time.Duration `json:"elapsed"`
}

// RunBatch encola un job por target y consulta su estado cada BatchPollInterval hasta que no quede
// trabajo o venza BatchTimeout. Los perfiles incompletos se omiten.
func (w *EmbeddingWorker) RunBatch(ctx context.Context, jobType domain.JobType, targetIDs []string) (BatchResult, error) {
	started := time.Now()
	ids, skipped, err := w.batchTargets(ctx, jobType, targetIDs)
	if err != nil {
		return BatchResult{}, err
	}
	jobs, err := w.queue.EnqueueMany(ctx, jobType, ids)
	if err != nil {
		return BatchResult{}, err
	}
	result := BatchResult{Total: len(jobs), Skipped: skipped, JobIDs: make([]string, len(jobs))}
	for i, j := range jobs {
		result.JobIDs[i] = j.ID
	}
	w.logger.Info("embedding batch enqueued",
		zap.String("job_type", string(jobType)),
		zap.Int("jobs", len(jobs)),
		zap.Int("skipped", len(skipped)),
	)

	deadline := time.NewTimer(w.opts.BatchTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(w.opts.BatchPollInterval)
	defer ticker.Stop()

	for {
		if err := w.refreshBatch(ctx, &result); err != nil {
			return result, err
		}
		if result.Pending == 0 {
			result.Status = BatchStatusComplete
			break
		}
		var stop bool
		select {
		case <-ctx.Done():
			result.Status = BatchStatusPartial
			result.Elapsed = time.Since(started)
			return result, ctx.Err()
		case <-deadline.C:
			if err := w.refreshBatch(ctx, &result); err != nil {
				return result, err
			}
			result.Status = BatchStatusPartial
			if result.Pending == 0 {
				result.Status = BatchStatusComplete
			}
			stop = true
		case <-ticker.C:
		}
		if stop {
			break
		}
	}

	result.Elapsed = time.Since(started)
	metrics.EmbeddingBatches.WithLabelValues(result.Status).Inc()
	w.logger.Info("embedding batch finished polling",
		zap.String("status", result.Status),
		zap.Int("total", result.Total),
		zap.Int("completed", result.Completed),
		zap.Int("failed", result.Failed),
		zap.Int("pending", result.Pending),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

func (w *EmbeddingWorker) refreshBatch(ctx context.Context, result *BatchResult) error {
	counts, err := w.queue.CountByIDs(ctx, result.JobIDs)
	if err != nil {
		return fmt.Errorf("poll batch status: %w", err)
	}
	result.Completed = counts[domain.JobStatusCompleted]
	result.Failed = counts[domain.JobStatusFailed]
	result.Pending = counts[domain.JobStatusPending] + counts[domain.JobStatusProcessing]
	return nil
}

func (w *EmbeddingWorker) batchTargets(ctx context.Context, jobType domain.JobType, targetIDs []string) ([]string, []string, error) {
	seen := make(map[string]struct{}, len(targetIDs))
	var ids, skipped []string
	for _, raw := range targetIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if jobType == domain.JobTypePhotographerProfile {
			p, err := w.photographers.GetByID(ctx, id)
			if errors.Is(err, pgx.ErrNoRows) {
				skipped = append(skipped, id)
				continue
			}
			if err != nil {
				return nil, nil, fmt.Errorf("load photographer %s: %w", id, err)
			}
			if !p.IsComplete() {
				skipped = append(skipped, id)
				continue
			}
		}
		ids = append(ids, id)
	}
	return ids, skipped, nil
}
