package jobs

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/logger"
	"github.com/cloo-solutions/meddocs/internal/metrics"
	"github.com/cloo-solutions/meddocs/internal/telemetry"
)

const (
	// DefaultMaxRetries is the number of attempts before a job is failed
	DefaultMaxRetries = 3
	defaultBatchSize  = 10
)

// JobRepository defines the interface for processing job persistence
type JobRepository interface {
	// ClaimPending marks up to limit pending jobs as processing and returns them
	ClaimPending(ctx context.Context, limit int) ([]*domain.ProcessingJob, error)

	// UpdateStatus updates the status of a job
	UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg string) error

	// IncrementRetries increments the retry count for a job
	IncrementRetries(ctx context.Context, jobID string) error
}

// JobHandler runs the work behind one kind of job.
type JobHandler interface {
	Handle(ctx context.Context, targetID string) error
	// Fail records a permanent failure on the job's target record.
	Fail(ctx context.Context, targetID string, reason string) error
}

type WorkerConfig struct {
	MaxRetries  int32
	Concurrency int
	BatchSize   int
}

// ProcessingWorker dispatches claimed jobs to their handlers
type ProcessingWorker struct {
	repo     JobRepository
	handlers map[domain.JobKind]JobHandler
	cfg      WorkerConfig
	log      *logger.Logger
}

// NewProcessingWorker creates a new ProcessingWorker instance
func NewProcessingWorker(repo JobRepository, handlers map[domain.JobKind]JobHandler, cfg WorkerConfig) *ProcessingWorker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &ProcessingWorker{
		repo:     repo,
		handlers: handlers,
		cfg:      cfg,
		log:      logger.New("jobs"),
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *ProcessingWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.ClaimPending(ctx, w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	w.log.Info("processing pending jobs", "count", len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			if err := w.processJob(gctx, job); err != nil {
				w.log.Error("error processing job", "job_id", job.ID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (w *ProcessingWorker) processJob(ctx context.Context, job *domain.ProcessingJob) error {
	ctx, span := telemetry.StartSpan(ctx, "job.process", telemetry.SpanAttributes{
		JobID:     job.ID,
		Operation: string(job.Kind),
	})
	defer span.End()

	start := time.Now()
	handler, ok := w.handlers[job.Kind]
	if !ok {
		metrics.CaptureJobMetrics(string(job.Kind), string(domain.JobStatusFailed), time.Since(start))
		err := fmt.Errorf("no handler for job kind %q", job.Kind)
		span.SetError(err)
		if uerr := w.repo.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, err.Error()); uerr != nil {
			return fmt.Errorf("failed to update job status to failed: %w", uerr)
		}
		return err
	}

	w.log.Debug("processing job", "job_id", job.ID, "kind", job.Kind, "target_id", job.TargetID)
	if err := handler.Handle(ctx, job.TargetID); err != nil {
		span.SetError(err)
		metrics.CaptureJobMetrics(string(job.Kind), string(domain.JobStatusFailed), time.Since(start))
		return w.handleJobFailure(ctx, job, handler, err)
	}
	metrics.CaptureJobMetrics(string(job.Kind), string(domain.JobStatusCompleted), time.Since(start))

	if err := w.repo.UpdateStatus(ctx, job.ID, domain.JobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	w.log.Info("job completed", "job_id", job.ID, "kind", job.Kind, "duration", time.Since(start))
	return nil
}

// handleJobFailure handles a failed job with retry logic
func (w *ProcessingWorker) handleJobFailure(ctx context.Context, job *domain.ProcessingJob, handler JobHandler, jobErr error) error {
	w.log.Warn("job failed", "job_id", job.ID, "kind", job.Kind, "error", jobErr)
	telemetry.AddBreadcrumb(ctx, "job", fmt.Sprintf("%s job %s attempt %d failed", job.Kind, job.ID, job.Retries+1))

	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if job.Retries+1 >= w.cfg.MaxRetries {
		w.log.Error("job exceeded max retries", "job_id", job.ID, "max_retries", w.cfg.MaxRetries)
		telemetry.CaptureError(ctx, fmt.Errorf("%s job %s exhausted retries: %w", job.Kind, job.ID, jobErr))
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		if err := handler.Fail(ctx, job.TargetID, jobErr.Error()); err != nil {
			return fmt.Errorf("failed to mark %s %s failed: %w", job.Kind, job.TargetID, err)
		}
		return nil
	}

	w.log.Info("job will be retried", "job_id", job.ID, "attempt", job.Retries+1, "max_retries", w.cfg.MaxRetries)
	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.repo.UpdateStatus(ctx, job.ID, domain.JobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}

	return nil
}
