package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/logger"
	"github.com/cloo-solutions/meddocs/internal/telemetry"
)

// SectionGenerator produces report sections in request order.
type SectionGenerator interface {
	GenerateSections(ctx context.Context, specs []domain.SectionSpec, documentIDs []string) []domain.SectionResult
}

type ReportService struct {
	reports     ReportRepositoryInterface
	documents   DocumentRepositoryInterface
	files       FileStore
	synthesizer SectionGenerator
	locker      Locker
	txRunner    TxRunner
	notifier    JobNotifier
	uuidGen     UUIDGenerator
	now         func() time.Time
	log         *logger.Logger
}

func NewReportService(
	reports ReportRepositoryInterface,
	documents DocumentRepositoryInterface,
	files FileStore,
	synthesizer SectionGenerator,
	locker Locker,
	txRunner TxRunner,
) *ReportService {
	return &ReportService{
		reports:     reports,
		documents:   documents,
		files:       files,
		synthesizer: synthesizer,
		locker:      locker,
		txRunner:    txRunner,
		uuidGen:     &DefaultUUIDGenerator{},
		now:         func() time.Time { return time.Now().UTC() },
		log:         logger.New("reports"),
	}
}

// WithNotifier sets the worker wakeup used after a report is queued.
func (s *ReportService) WithNotifier(n JobNotifier) *ReportService {
	s.notifier = n
	return s
}

func (s *ReportService) WithUUIDGen(g UUIDGenerator) *ReportService {
	s.uuidGen = g
	return s
}

type CreateReportInput struct {
	Title       string
	Sections    []domain.SectionSpec
	DocumentIDs []string
}

// Create queues a report for background generation.
func (s *ReportService) Create(ctx context.Context, input CreateReportInput) (*domain.Report, error) {
	now := s.now()
	report := &domain.Report{
		ID:          s.uuidGen.NewString(),
		Title:       strings.TrimSpace(input.Title),
		Sections:    input.Sections,
		DocumentIDs: input.DocumentIDs,
		Status:      domain.StatusPending,
		Metadata:    map[string]any{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := domain.ValidateReport(report); err != nil {
		return nil, err
	}

	for _, id := range input.DocumentIDs {
		if _, err := s.documents.GetByID(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to resolve document %s: %w", id, err)
		}
	}

	job := domain.NewProcessingJob(s.uuidGen.NewString(), domain.JobKindReport, report.ID, now)
	if err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Reports().Create(ctx, report); err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}
		if err := repos.Jobs().Create(ctx, job); err != nil {
			return fmt.Errorf("failed to create report job: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.Trigger()
	}
	s.log.Info("report queued", "report_id", report.ID, "sections", len(report.Sections))
	return report, nil
}

// Handle generates the sections of a queued report, renders it and stores
// the Markdown export. It is the job handler for report jobs.
func (s *ReportService) Handle(ctx context.Context, reportID string) error {
	unlock, err := s.locker.Lock(ctx, "report:"+reportID)
	if err != nil {
		return err
	}
	defer unlock()

	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, domain.ErrReportNotFound) {
			s.log.Warn("report vanished before generation", "report_id", reportID)
			return nil
		}
		return err
	}
	if report.Status == domain.StatusCompleted {
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "report.generate", telemetry.SpanAttributes{ReportID: reportID})
	defer span.End()

	if err := s.reports.UpdateStatus(ctx, reportID, domain.StatusGenerating, ""); err != nil {
		span.SetError(err)
		return fmt.Errorf("failed to mark report generating: %w", err)
	}

	if err := s.generate(ctx, report); err != nil {
		span.SetError(err)
		if uerr := s.reports.UpdateStatus(ctx, reportID, domain.StatusFailed, err.Error()); uerr != nil {
			s.log.Error("failed to record report failure", "report_id", reportID, "error", uerr)
		}
		return err
	}
	return nil
}

func (s *ReportService) generate(ctx context.Context, report *domain.Report) error {
	results := s.synthesizer.GenerateSections(ctx, report.Sections, report.DocumentIDs)

	failed := 0
	for _, r := range results {
		if r.Failed {
			failed++
		}
	}

	markdown := RenderMarkdown(report, results, s.citedDocuments(ctx, results), s.now())
	key := reportKey(report.ID)
	if err := s.files.Put(ctx, key, strings.NewReader(markdown), int64(len(markdown)), "text/markdown; charset=utf-8"); err != nil {
		return domain.Wrap(domain.ErrStorageOperationFail, err)
	}

	if err := s.reports.MarkCompleted(ctx, report.ID, results, key); err != nil {
		return fmt.Errorf("failed to mark report completed: %w", err)
	}
	s.log.Info("report generated", "report_id", report.ID, "sections", len(results), "failed_sections", failed)
	return nil
}

func (s *ReportService) citedDocuments(ctx context.Context, results []domain.SectionResult) map[string]*domain.Document {
	docs := make(map[string]*domain.Document)
	seen := make(map[string]bool)
	for _, r := range results {
		for _, c := range r.Citations {
			if seen[c.DocumentID] {
				continue
			}
			seen[c.DocumentID] = true
			d, err := s.documents.GetByID(ctx, c.DocumentID)
			if err != nil {
				s.log.Debug("cited document not resolvable", "document_id", c.DocumentID, "error", err)
				continue
			}
			docs[c.DocumentID] = d
		}
	}
	return docs
}

// Fail marks a report as failed after its job exhausted its retries.
func (s *ReportService) Fail(ctx context.Context, reportID string, reason string) error {
	return s.reports.UpdateStatus(ctx, reportID, domain.StatusFailed, reason)
}

func (s *ReportService) Get(ctx context.Context, reportID string) (*domain.Report, error) {
	return s.reports.GetByID(ctx, reportID)
}

func (s *ReportService) List(ctx context.Context, limit int) ([]*domain.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.reports.List(ctx, limit)
}

// Delete removes the stored export and the report record.
func (s *ReportService) Delete(ctx context.Context, reportID string) error {
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return err
	}
	if report.FilePath != "" {
		if err := s.files.Delete(ctx, report.FilePath); err != nil && !errors.Is(err, domain.ErrFileNotFound) {
			return domain.Wrap(domain.ErrStorageOperationFail, err)
		}
	}
	return s.reports.Delete(ctx, reportID)
}

// Download opens the Markdown export of a completed report.
func (s *ReportService) Download(ctx context.Context, reportID string) (io.ReadCloser, *domain.Report, error) {
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, nil, err
	}
	if report.Status != domain.StatusCompleted || report.FilePath == "" {
		return nil, nil, domain.ErrReportNotReady
	}
	body, err := s.files.Get(ctx, report.FilePath)
	if err != nil {
		return nil, nil, err
	}
	return body, report, nil
}

func reportKey(reportID string) string {
	return "reports/" + reportID + ".md"
}
