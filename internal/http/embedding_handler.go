package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"photo-match/internal/domain"
	"photo-match/internal/repository"
	"photo-match/internal/service"
)

// EmbeddingHandler da visibilidad y control de operador sobre la cola de embeddings.
type EmbeddingHandler struct {
	logger        *zap.Logger
	queue         *service.EmbeddingQueue
	batch         *service.EmbeddingWorker
	photographers repository.PhotographerRepository
}

func NewEmbeddingHandler(logger *zap.Logger, queue *service.EmbeddingQueue, batch *service.EmbeddingWorker, photographers repository.PhotographerRepository) *EmbeddingHandler {
	return &EmbeddingHandler{logger: logger, queue: queue, batch: batch, photographers: photographers}
}

// ListJobs maneja GET /admin/embeddings/jobs?status=&job_type=&limit=.
func (h *EmbeddingHandler) ListJobs(c *gin.Context) {
	var filter repository.JobFilter
	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseJobStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Status = status
	}
	if raw := c.Query("job_type"); raw != "" {
		jobType, err := domain.ParseJobType(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.JobType = jobType
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	jobs, err := h.queue.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("list embedding jobs failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list jobs"})
		return
	}
	if jobs == nil {
		jobs = []domain.EmbeddingJob{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// GetJob maneja GET /admin/embeddings/jobs/:id.
func (h *EmbeddingHandler) GetJob(c *gin.Context) {
	job, err := h.queue.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeJobError(c, "get embedding job failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

// RequeueJob maneja POST /admin/embeddings/jobs/:id/requeue.
func (h *EmbeddingHandler) RequeueJob(c *gin.Context) {
	job, err := h.queue.Requeue(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeJobError(c, "requeue embedding job failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

// Stats maneja GET /admin/embeddings/stats?job_type=.
func (h *EmbeddingHandler) Stats(c *gin.Context) {
	var jobType domain.JobType
	if raw := c.Query("job_type"); raw != "" {
		parsed, err := domain.ParseJobType(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		jobType = parsed
	}
	counts, err := h.queue.Stats(c.Request.Context(), jobType)
	if err != nil {
		h.logger.Error("embedding stats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load stats"})
		return
	}
	for _, s := range []domain.JobStatus{domain.JobStatusPending, domain.JobStatusProcessing, domain.JobStatusCompleted, domain.JobStatusFailed} {
		if _, ok := counts[s]; !ok {
			counts[s] = 0
		}
	}
	c.JSON(http.StatusOK, gin.H{"job_type": jobType, "counts": counts})
}

// RunBatch maneja POST /admin/embeddings/batch. Responde cuando el lote termina o vence el limite;
// un lote parcial responde 202.
func (h *EmbeddingHandler) RunBatch(c *gin.Context) {
	var req struct {
		JobType   string   `json:"job_type" binding:"required"`
		TargetIDs []string `json:"target_ids"`
		All       bool     `json:"all"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid batch request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	jobType, err := domain.ParseJobType(req.JobType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	targets := req.TargetIDs
	if req.All {
		if jobType != domain.JobTypePhotographerProfile {
			c.JSON(http.StatusBadRequest, gin.H{"error": "all is only supported for photographer_profile"})
			return
		}
		targets, err = h.photographers.ListIDs(c.Request.Context(), true)
		if err != nil {
			h.logger.Error("list photographers failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list photographers"})
			return
		}
	}
	if len(targets) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no targets"})
		return
	}

	result, err := h.batch.RunBatch(c.Request.Context(), jobType, targets)
	if err != nil {
		h.logger.Warn("embedding batch interrupted", zap.Error(err))
		if result.Total == 0 {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not run batch"})
			return
		}
	}
	status := http.StatusOK
	if result.Status != service.BatchStatusComplete {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"batch": result})
}

func (h *EmbeddingHandler) writeJobError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, service.ErrJobNotFailed):
		c.JSON(http.StatusConflict, gin.H{"error": "only failed jobs can be requeued"})
	default:
		h.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not process job"})
	}
}
