package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/meddocs/internal/domain"
)

type documentFixture struct {
	documents *MockDocumentRepository
	chunks    *MockChunkRepository
	jobs      *MockJobRepository
	files     *MockFileStore
	extractor *MockExtractor
	index     *MockDocumentIndex
	locker    *MockLocker
	drive     *MockDriveSource
	tx        *testTxRunner
	notifier  *MockNotifier
	svc       *DocumentService
}

func newDocumentFixture(t *testing.T, maxBytes int64, ids ...string) *documentFixture {
	f := &documentFixture{
		documents: new(MockDocumentRepository),
		chunks:    new(MockChunkRepository),
		jobs:      new(MockJobRepository),
		files:     new(MockFileStore),
		extractor: new(MockExtractor),
		index:     new(MockDocumentIndex),
		locker:    new(MockLocker),
		drive:     new(MockDriveSource),
		notifier:  &MockNotifier{},
	}
	f.tx = &testTxRunner{repos: &testTxRepos{documents: f.documents, jobs: f.jobs}}
	f.svc = NewDocumentService(
		f.documents, f.chunks, f.files, f.extractor,
		NewChunker(ChunkConfig{Size: 200, Overlap: 20}),
		f.index, f.locker, f.tx,
		DocumentServiceConfig{MaxUploadBytes: maxBytes, TempDir: t.TempDir()},
	).WithNotifier(f.notifier).WithUUIDGen(NewMockUUIDGenerator(ids...))
	f.svc.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	return f
}

func TestDocumentService_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("stores file and queues job", func(t *testing.T) {
		f := newDocumentFixture(t, 1024, "doc-1", "job-1")
		f.files.On("Put", ctx, "documents/doc-1/notes.txt", int64(11), "text/plain").Return(nil)
		f.documents.On("Create", ctx, mock.MatchedBy(func(d *domain.Document) bool {
			return d.ID == "doc-1" && d.FileType == domain.FileTypeTXT && d.Status == domain.StatusPending &&
				d.Source == domain.SourceUpload && d.FileSize == 11
		})).Return(nil)
		f.jobs.On("Create", ctx, mock.MatchedBy(func(j *domain.ProcessingJob) bool {
			return j.ID == "job-1" && j.Kind == domain.JobKindDocument && j.TargetID == "doc-1"
		})).Return(nil)

		doc, err := f.svc.Upload(ctx, UploadInput{
			Filename:    "notes.txt",
			ContentType: "text/plain",
			Body:        strings.NewReader("hello world"),
		})

		require.NoError(t, err)
		assert.Equal(t, "documents/doc-1/notes.txt", doc.StorageKey)
		assert.Equal(t, "hello world", f.files.puts["documents/doc-1/notes.txt"])
		assert.Equal(t, 1, f.notifier.triggered)
		f.documents.AssertExpectations(t)
		f.jobs.AssertExpectations(t)
	})

	t.Run("strips directories from filename", func(t *testing.T) {
		f := newDocumentFixture(t, 1024, "doc-1", "job-1")
		f.files.On("Put", ctx, "documents/doc-1/scan.pdf", mock.Anything, mock.Anything).Return(nil)
		f.documents.On("Create", ctx, mock.Anything).Return(nil)
		f.jobs.On("Create", ctx, mock.Anything).Return(nil)

		doc, err := f.svc.Upload(ctx, UploadInput{Filename: "../../etc/scan.pdf", Body: strings.NewReader("%PDF")})
		require.NoError(t, err)
		assert.Equal(t, "scan.pdf", doc.Filename)
		assert.Equal(t, "../../etc/scan.pdf", doc.OriginalFilename)
	})

	t.Run("rejects unsupported type", func(t *testing.T) {
		f := newDocumentFixture(t, 1024, "doc-1")
		_, err := f.svc.Upload(ctx, UploadInput{Filename: "archive.zip", Body: strings.NewReader("x")})
		assert.ErrorIs(t, err, domain.ErrUnsupportedInput)
		f.files.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects oversized file", func(t *testing.T) {
		f := newDocumentFixture(t, 4, "doc-1")
		_, err := f.svc.Upload(ctx, UploadInput{Filename: "a.txt", Body: strings.NewReader("12345")})
		assert.ErrorIs(t, err, domain.ErrFileTooLarge)
		assert.False(t, f.tx.called)
	})

	t.Run("file at the limit is accepted", func(t *testing.T) {
		f := newDocumentFixture(t, 5, "doc-1", "job-1")
		f.files.On("Put", ctx, mock.Anything, int64(5), mock.Anything).Return(nil)
		f.documents.On("Create", ctx, mock.Anything).Return(nil)
		f.jobs.On("Create", ctx, mock.Anything).Return(nil)

		_, err := f.svc.Upload(ctx, UploadInput{Filename: "a.txt", Body: strings.NewReader("12345")})
		assert.NoError(t, err)
	})

	t.Run("transaction failure removes stored file", func(t *testing.T) {
		f := newDocumentFixture(t, 1024, "doc-1", "job-1")
		f.files.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.files.On("Delete", ctx, "documents/doc-1/a.txt").Return(nil)
		f.tx.err = errors.New("db down")

		_, err := f.svc.Upload(ctx, UploadInput{Filename: "a.txt", Body: strings.NewReader("x")})
		assert.EqualError(t, err, "db down")
		f.files.AssertCalled(t, "Delete", ctx, "documents/doc-1/a.txt")
		assert.Equal(t, 0, f.notifier.triggered)
	})
}

func TestDocumentService_ImportFromDrive(t *testing.T) {
	ctx := context.Background()

	t.Run("not configured", func(t *testing.T) {
		svc := NewDocumentService(nil, nil, nil, nil, NewChunker(DefaultChunkConfig()), nil, nil, nil, DocumentServiceConfig{})
		_, err := svc.ImportFromDrive(ctx, "file-1")
		assert.ErrorIs(t, err, domain.ErrDriveUnavailable)
	})

	t.Run("imports with drive provenance", func(t *testing.T) {
		f := newDocumentFixture(t, 1024, "doc-1", "job-1")
		f.svc.WithDrive(f.drive)
		f.drive.On("Download", ctx, "file-1").Return("Lab results", &domain.DriveFile{
			ID:           "file-1",
			Name:         "labs.docx",
			MimeType:     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			WebViewLink:  "https://drive.google.com/file/d/file-1/view",
			ModifiedTime: time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC),
		}, nil)
		f.files.On("Put", ctx, "documents/doc-1/labs.docx", int64(11), mock.Anything).Return(nil)
		f.documents.On("Create", ctx, mock.MatchedBy(func(d *domain.Document) bool {
			return d.Source == domain.SourceGoogleDrive && d.DriveFileID == "file-1" &&
				d.DriveURL == "https://drive.google.com/file/d/file-1/view" &&
				d.Metadata["drive_modified_time"] == "2024-04-01T08:00:00Z"
		})).Return(nil)
		f.jobs.On("Create", ctx, mock.Anything).Return(nil)

		doc, err := f.svc.ImportFromDrive(ctx, "file-1")
		require.NoError(t, err)
		assert.Equal(t, domain.FileTypeDOCX, doc.FileType)
		f.documents.AssertExpectations(t)
	})

	t.Run("download failure", func(t *testing.T) {
		f := newDocumentFixture(t, 1024)
		f.svc.WithDrive(f.drive)
		f.drive.On("Download", ctx, "file-1").Return(nil, nil, errors.New("403"))
		_, err := f.svc.ImportFromDrive(ctx, "file-1")
		assert.ErrorContains(t, err, "403")
	})
}

func TestDocumentService_Handle(t *testing.T) {
	ctx := context.Background()
	doc := &domain.Document{
		ID:               "doc-1",
		Filename:         "notes.txt",
		OriginalFilename: "notes.txt",
		StorageKey:       "documents/doc-1/notes.txt",
		FileType:         domain.FileTypeTXT,
		Source:           domain.SourceUpload,
		Status:           domain.StatusPending,
		Metadata:         map[string]any{"department": "cardiology"},
	}

	t.Run("extracts chunks and indexes", func(t *testing.T) {
		f := newDocumentFixture(t, 0)
		f.locker.On("Lock", ctx, "document:doc-1").Return(noopUnlock, nil)
		f.documents.On("GetByID", mock.Anything, "doc-1").Return(doc, nil)
		f.documents.On("UpdateStatus", mock.Anything, "doc-1", domain.StatusProcessing, "").Return(nil)
		f.files.On("Get", mock.Anything, "documents/doc-1/notes.txt").Return("Diagnosis: hypertension", nil)

		var extractedPath string
		f.extractor.On("Extract", mock.Anything, mock.AnythingOfType("string"), domain.FileTypeTXT).
			Run(func(args mock.Arguments) { extractedPath = args.String(1) }).
			Return(&domain.Extraction{
				Text:     "Diagnosis:\nhypertension",
				Tables:   []domain.Table{{Name: "Vitals", Rows: [][]string{{"BP", "150/95"}}}},
				Metadata: map[string]any{"page_count": 1},
			}, nil)

		var stored []domain.Chunk
		f.chunks.On("ReplaceChunks", mock.Anything, "doc-1", mock.Anything).
			Run(func(args mock.Arguments) { stored = args.Get(2).([]domain.Chunk) }).
			Return(nil)
		f.index.On("Upsert", mock.Anything, "doc-1", mock.Anything).Return(nil)
		f.documents.On("MarkCompleted", mock.Anything, "doc-1", 2, mock.MatchedBy(func(m map[string]any) bool {
			return m["department"] == "cardiology" && m["page_count"] == 1 && m["tables"] == 1 && m["images"] == 0
		})).Return(nil)

		require.NoError(t, f.svc.Handle(ctx, "doc-1"))

		require.Len(t, stored, 2)
		assert.Equal(t, "Diagnosis:\nhypertension", stored[0].Content)
		assert.Equal(t, "Diagnosis", stored[0].SectionTitle)
		assert.Equal(t, "notes.txt", stored[0].Metadata["filename"])
		assert.Equal(t, domain.ChunkTypeTable, stored[1].ChunkType)
		assert.Equal(t, 1, stored[1].ChunkIndex)
		assert.True(t, strings.HasSuffix(extractedPath, ".txt"))
		assert.NoFileExists(t, extractedPath)
		f.documents.AssertExpectations(t)
	})

	t.Run("empty extraction fails document", func(t *testing.T) {
		f := newDocumentFixture(t, 0)
		f.locker.On("Lock", ctx, "document:doc-1").Return(noopUnlock, nil)
		f.documents.On("GetByID", mock.Anything, "doc-1").Return(doc, nil)
		f.documents.On("UpdateStatus", mock.Anything, "doc-1", domain.StatusProcessing, "").Return(nil)
		f.files.On("Get", mock.Anything, mock.Anything).Return("   ", nil)
		f.extractor.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return(&domain.Extraction{Text: "   "}, nil)
		f.documents.On("UpdateStatus", mock.Anything, "doc-1", domain.StatusFailed, mock.AnythingOfType("string")).Return(nil)

		err := f.svc.Handle(ctx, "doc-1")
		assert.ErrorIs(t, err, domain.ErrNoExtractableContent)
		f.chunks.AssertNotCalled(t, "ReplaceChunks", mock.Anything, mock.Anything, mock.Anything)
		f.documents.AssertExpectations(t)
	})

	t.Run("index failure fails document", func(t *testing.T) {
		f := newDocumentFixture(t, 0)
		f.locker.On("Lock", ctx, "document:doc-1").Return(noopUnlock, nil)
		f.documents.On("GetByID", mock.Anything, "doc-1").Return(doc, nil)
		f.documents.On("UpdateStatus", mock.Anything, "doc-1", domain.StatusProcessing, "").Return(nil)
		f.files.On("Get", mock.Anything, mock.Anything).Return("text", nil)
		f.extractor.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return(&domain.Extraction{Text: "text"}, nil)
		f.chunks.On("ReplaceChunks", mock.Anything, "doc-1", mock.Anything).Return(nil)
		f.index.On("Upsert", mock.Anything, "doc-1", mock.Anything).Return(domain.ErrEmbeddingFailure)
		f.documents.On("UpdateStatus", mock.Anything, "doc-1", domain.StatusFailed, mock.AnythingOfType("string")).Return(nil)

		err := f.svc.Handle(ctx, "doc-1")
		assert.ErrorIs(t, err, domain.ErrEmbeddingFailure)
		f.documents.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing document is dropped", func(t *testing.T) {
		f := newDocumentFixture(t, 0)
		f.locker.On("Lock", ctx, "document:gone").Return(noopUnlock, nil)
		f.documents.On("GetByID", mock.Anything, "gone").Return(nil, domain.ErrDocumentNotFound)
		assert.NoError(t, f.svc.Handle(ctx, "gone"))
	})
}

func TestDocumentService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newDocumentFixture(t, 0)
	f.locker.On("Lock", ctx, "document:doc-1").Return(noopUnlock, nil)
	f.documents.On("GetByID", ctx, "doc-1").Return(&domain.Document{ID: "doc-1", StorageKey: "documents/doc-1/a.txt"}, nil)
	f.index.On("Delete", ctx, "doc-1").Return(nil)
	f.files.On("Delete", ctx, "documents/doc-1/a.txt").Return(nil)
	f.documents.On("Delete", ctx, "doc-1").Return(nil)

	require.NoError(t, f.svc.Delete(ctx, "doc-1"))
	f.index.AssertExpectations(t)
	f.files.AssertExpectations(t)
	f.documents.AssertExpectations(t)
}

func TestDocumentService_Reprocess(t *testing.T) {
	ctx := context.Background()
	f := newDocumentFixture(t, 0, "job-2")
	f.documents.On("GetByID", ctx, "doc-1").Return(&domain.Document{ID: "doc-1", Status: domain.StatusFailed, Error: "boom"}, nil)
	f.documents.On("UpdateStatus", ctx, "doc-1", domain.StatusPending, "").Return(nil)
	f.jobs.On("Create", ctx, mock.MatchedBy(func(j *domain.ProcessingJob) bool {
		return j.ID == "job-2" && j.TargetID == "doc-1"
	})).Return(nil)

	doc, err := f.svc.Reprocess(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, doc.Status)
	assert.Empty(t, doc.Error)
	assert.Equal(t, 1, f.notifier.triggered)
}

func TestDocumentService_ListAndStats(t *testing.T) {
	ctx := context.Background()
	f := newDocumentFixture(t, 0)

	_, err := f.svc.List(ctx, domain.DocumentFilter{Status: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidDocumentStatus)

	f.documents.On("List", ctx, domain.DocumentFilter{Status: domain.StatusCompleted, Limit: 101}).
		Return([]*domain.Document{{ID: "doc-1"}}, nil)
	page, err := f.svc.List(ctx, domain.DocumentFilter{Status: domain.StatusCompleted})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)

	uploaded := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	f.documents.On("List", ctx, domain.DocumentFilter{Limit: 3}).
		Return([]*domain.Document{{ID: "d1", UploadedAt: uploaded}, {ID: "d2", UploadedAt: uploaded}, {ID: "d3"}}, nil)
	page, err = f.svc.List(ctx, domain.DocumentFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	assert.NotEmpty(t, page.Cursor)

	f.index.On("Stats", ctx).Return(domain.IndexStats{TotalPassages: 12, IndexName: "pgvector"}, nil)
	f.documents.On("CountByStatus", ctx).Return(map[domain.ProcessingStatus]int{domain.StatusCompleted: 3}, nil)
	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, stats.Index.TotalPassages)
	assert.Equal(t, 3, stats.Documents[domain.StatusCompleted])
}
