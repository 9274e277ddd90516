package service

import (
	"context"
	"io"

	"github.com/cloo-solutions/meddocs/internal/domain"
)

// DocumentRepositoryInterface defines persistence for documents
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.ProcessingStatus, errMsg string) error
	MarkCompleted(ctx context.Context, id string, chunkCount int, metadata map[string]any) error
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[domain.ProcessingStatus]int, error)
}

// ChunkRepositoryInterface defines persistence for the relational copy of chunks
type ChunkRepositoryInterface interface {
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error
	ListByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error)
}

// ProcessingJobRepositoryInterface defines persistence for background jobs
type ProcessingJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.ProcessingJob) error
}

// ReportRepositoryInterface defines persistence for reports
type ReportRepositoryInterface interface {
	Create(ctx context.Context, r *domain.Report) error
	GetByID(ctx context.Context, id string) (*domain.Report, error)
	List(ctx context.Context, limit int) ([]*domain.Report, error)
	UpdateStatus(ctx context.Context, id string, status domain.ProcessingStatus, errMsg string) error
	MarkCompleted(ctx context.Context, id string, content []domain.SectionResult, filePath string) error
	Delete(ctx context.Context, id string) error
}

// ConversationRepositoryInterface defines persistence for chat sessions
type ConversationRepositoryInterface interface {
	Create(ctx context.Context, c *domain.Conversation) error
	GetBySessionID(ctx context.Context, sessionID string) (*domain.Conversation, error)
	Touch(ctx context.Context, id string) error
	CreateMessage(ctx context.Context, m *domain.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error)
}

// FileStore keeps uploaded documents and generated reports.
type FileStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Extractor turns a local file into text, tables and images.
type Extractor interface {
	Extract(ctx context.Context, path string, fileType domain.FileType) (*domain.Extraction, error)
}

// DriveSource fetches files from a cloud drive.
type DriveSource interface {
	Download(ctx context.Context, fileID string) (io.ReadCloser, *domain.DriveFile, error)
}

// JobNotifier wakes the background worker.
type JobNotifier interface {
	Trigger()
}
