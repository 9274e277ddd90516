package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/logger"
	"github.com/cloo-solutions/meddocs/internal/pagination"
	"github.com/cloo-solutions/meddocs/internal/telemetry"
)

// DocumentIndex is the write side of the embedding index.
type DocumentIndex interface {
	Upsert(ctx context.Context, documentID string, chunks []domain.Chunk) error
	Delete(ctx context.Context, documentID string) error
	Stats(ctx context.Context) (domain.IndexStats, error)
}

type DocumentServiceConfig struct {
	MaxUploadBytes int64
	TempDir        string
}

// DocumentService ingests source files and turns them into indexed passages.
type DocumentService struct {
	documents DocumentRepositoryInterface
	chunks    ChunkRepositoryInterface
	files     FileStore
	extractor Extractor
	chunker   *Chunker
	index     DocumentIndex
	locker    Locker
	txRunner  TxRunner
	drive     DriveSource
	notifier  JobNotifier
	uuidGen   UUIDGenerator
	cfg       DocumentServiceConfig
	now       func() time.Time
	log       *logger.Logger
}

func NewDocumentService(
	documents DocumentRepositoryInterface,
	chunks ChunkRepositoryInterface,
	files FileStore,
	extractor Extractor,
	chunker *Chunker,
	index DocumentIndex,
	locker Locker,
	txRunner TxRunner,
	cfg DocumentServiceConfig,
) *DocumentService {
	return &DocumentService{
		documents: documents,
		chunks:    chunks,
		files:     files,
		extractor: extractor,
		chunker:   chunker,
		index:     index,
		locker:    locker,
		txRunner:  txRunner,
		uuidGen:   &DefaultUUIDGenerator{},
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logger.New("documents"),
	}
}

// WithDrive enables ImportFromDrive.
func (s *DocumentService) WithDrive(src DriveSource) *DocumentService {
	s.drive = src
	return s
}

func (s *DocumentService) WithNotifier(n JobNotifier) *DocumentService {
	s.notifier = n
	return s
}

func (s *DocumentService) WithUUIDGen(g UUIDGenerator) *DocumentService {
	s.uuidGen = g
	return s
}

type UploadInput struct {
	Filename    string
	ContentType string
	Body        io.Reader
	Metadata    map[string]any
}

// Upload stores a file and queues it for processing.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*domain.Document, error) {
	return s.ingest(ctx, ingestInput{
		UploadInput: input,
		source:      domain.SourceUpload,
	})
}

// ImportFromDrive downloads a Drive file and queues it like an upload.
func (s *DocumentService) ImportFromDrive(ctx context.Context, fileID string) (*domain.Document, error) {
	if s.drive == nil {
		return nil, domain.ErrDriveUnavailable
	}
	body, file, err := s.drive.Download(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to download drive file %s: %w", fileID, err)
	}
	defer body.Close()

	meta := map[string]any{}
	if !file.ModifiedTime.IsZero() {
		meta["drive_modified_time"] = file.ModifiedTime.UTC().Format(time.RFC3339)
	}
	return s.ingest(ctx, ingestInput{
		UploadInput: UploadInput{
			Filename:    file.Name,
			ContentType: file.MimeType,
			Body:        body,
			Metadata:    meta,
		},
		source:   domain.SourceGoogleDrive,
		driveID:  file.ID,
		driveURL: file.WebViewLink,
	})
}

type ingestInput struct {
	UploadInput
	source   domain.DocumentSource
	driveID  string
	driveURL string
}

func (s *DocumentService) ingest(ctx context.Context, input ingestInput) (*domain.Document, error) {
	name := filepath.Base(strings.TrimSpace(input.Filename))
	fileType, err := domain.DetectFileType(name)
	if err != nil {
		return nil, err
	}

	spool, size, err := s.spool(input.Body)
	if err != nil {
		return nil, err
	}
	defer removeTemp(spool)

	now := s.now()
	doc := &domain.Document{
		ID:               s.uuidGen.NewString(),
		Filename:         name,
		OriginalFilename: input.Filename,
		FileType:         fileType,
		FileSize:         size,
		ContentType:      input.ContentType,
		Source:           input.source,
		DriveFileID:      input.driveID,
		DriveURL:         input.driveURL,
		Status:           domain.StatusPending,
		Metadata:         maps.Clone(input.Metadata),
		UploadedAt:       now,
		UpdatedAt:        now,
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	doc.StorageKey = documentKey(doc.ID, name)
	if err := domain.ValidateDocument(doc); err != nil {
		return nil, err
	}

	if err := s.files.Put(ctx, doc.StorageKey, spool, size, input.ContentType); err != nil {
		return nil, domain.Wrap(domain.ErrStorageOperationFail, err)
	}

	job := domain.NewProcessingJob(s.uuidGen.NewString(), domain.JobKindDocument, doc.ID, now)
	if err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Documents().Create(ctx, doc); err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		if err := repos.Jobs().Create(ctx, job); err != nil {
			return fmt.Errorf("failed to create document job: %w", err)
		}
		return nil
	}); err != nil {
		if derr := s.files.Delete(ctx, doc.StorageKey); derr != nil {
			s.log.Warn("failed to remove orphaned upload", "key", doc.StorageKey, "error", derr)
		}
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.Trigger()
	}
	s.log.Info("document queued", "document_id", doc.ID, "filename", doc.Filename, "source", doc.Source, "size", size)
	return doc, nil
}

// spool copies body to a temp file, enforcing the upload limit, and rewinds it.
func (s *DocumentService) spool(body io.Reader) (*os.File, int64, error) {
	f, err := os.CreateTemp(s.cfg.TempDir, "meddocs-upload-*")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	src := body
	if s.cfg.MaxUploadBytes > 0 {
		src = io.LimitReader(body, s.cfg.MaxUploadBytes+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		removeTemp(f)
		return nil, 0, fmt.Errorf("failed to read upload: %w", err)
	}
	if s.cfg.MaxUploadBytes > 0 && n > s.cfg.MaxUploadBytes {
		removeTemp(f)
		return nil, 0, domain.ErrFileTooLarge
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		removeTemp(f)
		return nil, 0, fmt.Errorf("failed to rewind upload: %w", err)
	}
	return f, n, nil
}

// Handle extracts, chunks and indexes a queued document. It is the job
// handler for document jobs; any error leaves the document failed and is
// returned so the job can be retried.
func (s *DocumentService) Handle(ctx context.Context, documentID string) error {
	unlock, err := s.locker.Lock(ctx, "document:"+documentID)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			s.log.Warn("document vanished before processing", "document_id", documentID)
			return nil
		}
		return err
	}

	ctx, span := telemetry.StartSpan(ctx, "document.process", telemetry.SpanAttributes{DocumentID: documentID})
	defer span.End()

	if err := s.documents.UpdateStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		span.SetError(err)
		return fmt.Errorf("failed to mark document processing: %w", err)
	}

	if err := s.process(ctx, doc); err != nil {
		span.SetError(err)
		if uerr := s.documents.UpdateStatus(ctx, documentID, domain.StatusFailed, err.Error()); uerr != nil {
			s.log.Error("failed to record document failure", "document_id", documentID, "error", uerr)
		}
		return err
	}
	return nil
}

func (s *DocumentService) process(ctx context.Context, doc *domain.Document) error {
	path, cleanup, err := s.fetch(ctx, doc)
	if err != nil {
		return err
	}
	defer cleanup()

	ext, err := s.extractor.Extract(ctx, path, doc.FileType)
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", doc.Filename, err)
	}

	docMeta := map[string]any{
		"filename": doc.OriginalFilename,
		"source":   string(doc.Source),
	}
	if doc.DriveURL != "" {
		docMeta["drive_url"] = doc.DriveURL
	}
	chunks := s.chunker.BuildChunks(doc.ID, doc.FileType, ext, docMeta)
	if len(chunks) == 0 {
		return domain.ErrNoExtractableContent
	}

	if err := s.chunks.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := s.index.Upsert(ctx, doc.ID, chunks); err != nil {
		return err
	}

	meta := maps.Clone(doc.Metadata)
	if meta == nil {
		meta = map[string]any{}
	}
	maps.Copy(meta, domain.NormalizeMetadata(ext.Metadata))
	meta["tables"] = len(ext.Tables)
	meta["images"] = len(ext.Images)
	if err := s.documents.MarkCompleted(ctx, doc.ID, len(chunks), meta); err != nil {
		return fmt.Errorf("failed to mark document completed: %w", err)
	}

	s.log.Info("document processed", "document_id", doc.ID, "chunks", len(chunks), "tables", len(ext.Tables), "images", len(ext.Images))
	return nil
}

// fetch downloads the stored file to a temp path carrying its extension.
func (s *DocumentService) fetch(ctx context.Context, doc *domain.Document) (string, func(), error) {
	body, err := s.files.Get(ctx, doc.StorageKey)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open stored file: %w", err)
	}
	defer body.Close()

	f, err := os.CreateTemp(s.cfg.TempDir, "meddocs-doc-*"+filepath.Ext(doc.Filename))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		removeTemp(f)
		return "", nil, fmt.Errorf("failed to download stored file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", nil, err
	}
	return f.Name(), func() { _ = os.Remove(f.Name()) }, nil
}

// Fail marks a document as failed after its job exhausted its retries.
func (s *DocumentService) Fail(ctx context.Context, documentID string, reason string) error {
	return s.documents.UpdateStatus(ctx, documentID, domain.StatusFailed, reason)
}

func (s *DocumentService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.documents.GetByID(ctx, documentID)
}

// List returns one newest-first page of documents.
func (s *DocumentService) List(ctx context.Context, filter domain.DocumentFilter) (*pagination.PageResult[*domain.Document], error) {
	if filter.Status != "" && !domain.IsValidDocumentStatus(filter.Status) {
		return nil, domain.ErrInvalidDocumentStatus
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	limit := filter.Limit
	filter.Limit = limit + 1
	docs, err := s.documents.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return pagination.NewPage(docs, limit,
		func(d *domain.Document) string { return d.ID },
		func(d *domain.Document) time.Time { return d.UploadedAt },
	), nil
}

func (s *DocumentService) ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	if _, err := s.documents.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.chunks.ListByDocument(ctx, documentID)
}

// Delete removes a document from the index, the file store and the database.
func (s *DocumentService) Delete(ctx context.Context, documentID string) error {
	unlock, err := s.locker.Lock(ctx, "document:"+documentID)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.index.Delete(ctx, documentID); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, doc.StorageKey); err != nil && !errors.Is(err, domain.ErrFileNotFound) {
		return domain.Wrap(domain.ErrStorageOperationFail, err)
	}
	if err := s.documents.Delete(ctx, documentID); err != nil {
		return err
	}
	s.log.Info("document deleted", "document_id", documentID)
	return nil
}

// Reprocess sends a document back through the processing pipeline.
func (s *DocumentService) Reprocess(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	job := domain.NewProcessingJob(s.uuidGen.NewString(), domain.JobKindDocument, doc.ID, s.now())
	if err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Documents().UpdateStatus(ctx, doc.ID, domain.StatusPending, ""); err != nil {
			return fmt.Errorf("failed to reset document: %w", err)
		}
		if err := repos.Jobs().Create(ctx, job); err != nil {
			return fmt.Errorf("failed to create document job: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.Trigger()
	}
	doc.Status = domain.StatusPending
	doc.Error = ""
	return doc, nil
}

type Stats struct {
	Index     domain.IndexStats
	Documents map[domain.ProcessingStatus]int
}

func (s *DocumentService) Stats(ctx context.Context) (*Stats, error) {
	idx, err := s.index.Stats(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.documents.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	return &Stats{Index: idx, Documents: counts}, nil
}

func documentKey(documentID, filename string) string {
	return "documents/" + documentID + "/" + filename
}

func removeTemp(f *os.File) {
	_ = f.Close()
	_ = os.Remove(f.Name())
}
