package domain

import (
	"fmt"
	"time"
)

type JobType string

const (
	JobTypeQuestion            JobType = "question"
	JobTypeChoice              JobType = "choice"
	JobTypeImage               JobType = "image"
	JobTypePhotographerProfile JobType = "photographer_profile"
)

func ParseJobType(raw string) (JobType, error) {
	switch t := JobType(raw); t {
	case JobTypeQuestion, JobTypeChoice, JobTypeImage, JobTypePhotographerProfile:
		return t, nil
	}
	return "", fmt.Errorf("unknown job type %q", raw)
}

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func ParseJobStatus(raw string) (JobStatus, error) {
	switch s := JobStatus(raw); s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return s, nil
	}
	return "", fmt.Errorf("unknown job status %q", raw)
}

// EmbeddingJob es una solicitud persistida de regenerar el vector de una entidad.
type EmbeddingJob struct {
	ID          string     `json:"id"`
	JobType     JobType    `json:"job_type"`
	TargetID    string     `json:"target_id"`
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LockedAt    *time.Time `json:"locked_at,omitempty"`
	// LeaseID identifica el claim vigente; Complete y Fail deben presentarlo.
	LeaseID     string     `json:"lease_id,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobCounts agrupa cantidad de jobs por estado para visibilidad del operador.
type JobCounts map[JobStatus]int
