package domain

import (
	"fmt"
	"time"
)

// JobStatus represents the status of a background processing job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobKind selects the handler for a job
type JobKind string

const (
	JobKindDocument JobKind = "document"
	JobKindReport   JobKind = "report"
)

// ProcessingJob is a queued background unit for a document or report
type ProcessingJob struct {
	ID          string
	Kind        JobKind
	TargetID    string
	Status      JobStatus
	Retries     int32
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewProcessingJob creates a pending job for a target record
func NewProcessingJob(id string, kind JobKind, targetID string, createdAt time.Time) *ProcessingJob {
	return &ProcessingJob{
		ID:        id,
		Kind:      kind,
		TargetID:  targetID,
		Status:    JobStatusPending,
		CreatedAt: createdAt,
	}
}

// ValidateProcessingJob validates a ProcessingJob instance
func ValidateProcessingJob(j *ProcessingJob) error {
	if j == nil {
		return fmt.Errorf("processing job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("processing job ID is required")
	}

	if j.TargetID == "" {
		return fmt.Errorf("processing job TargetID is required")
	}

	if !isValidJobKind(j.Kind) {
		return ErrInvalidJobKind
	}

	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}

	if j.Retries < 0 {
		return fmt.Errorf("processing job Retries cannot be negative")
	}

	return nil
}

func isValidJobKind(k JobKind) bool {
	switch k {
	case JobKindDocument, JobKindReport:
		return true
	}
	return false
}

func isValidJobStatus(s JobStatus) bool {
	switch s {
	case JobStatusPending, JobStatusProcessing,
		JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}
