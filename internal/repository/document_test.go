//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/pagination"
	"github.com/cloo-solutions/meddocs/internal/testutil"
)

func newDocument(name string, uploadedAt time.Time) *domain.Document {
	id := uuid.NewString()
	ts := uploadedAt.UTC().Truncate(time.Microsecond)
	return &domain.Document{
		ID:               id,
		Filename:         name,
		OriginalFilename: name,
		StorageKey:       "documents/" + id + "/" + name,
		FileType:         domain.FileTypePDF,
		FileSize:         2048,
		ContentType:      "application/pdf",
		Source:           domain.SourceUpload,
		Status:           domain.StatusPending,
		Metadata:         map[string]any{"department": "cardiology"},
		UploadedAt:       ts,
		UpdatedAt:        ts,
	}
}

func TestDocumentRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewDocumentRepository(pool)

	doc := newDocument("discharge.pdf", time.Now())
	doc.Source = domain.SourceGoogleDrive
	doc.DriveFileID = "drive-123"
	doc.DriveURL = "https://drive.google.com/file/d/drive-123/view"
	require.NoError(t, repo.Create(ctx, doc))

	got, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Filename, got.Filename)
	assert.Equal(t, doc.StorageKey, got.StorageKey)
	assert.Equal(t, domain.FileTypePDF, got.FileType)
	assert.Equal(t, domain.SourceGoogleDrive, got.Source)
	assert.Equal(t, "drive-123", got.DriveFileID)
	assert.Equal(t, doc.DriveURL, got.DriveURL)
	assert.Equal(t, "cardiology", got.Metadata["department"])
	assert.Empty(t, got.Error)
	assert.Nil(t, got.ProcessedAt)
	assert.True(t, doc.UploadedAt.Equal(got.UploadedAt))

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestDocumentRepository_StatusLifecycle(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewDocumentRepository(pool)
	doc := newDocument("labs.pdf", time.Now())
	require.NoError(t, repo.Create(ctx, doc))

	require.NoError(t, repo.UpdateStatus(ctx, doc.ID, domain.StatusProcessing, ""))
	got, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)
	assert.Nil(t, got.ProcessedAt)

	require.NoError(t, repo.UpdateStatus(ctx, doc.ID, domain.StatusFailed, "no extractable content"))
	got, err = repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "no extractable content", got.Error)
	assert.NotNil(t, got.ProcessedAt)

	require.NoError(t, repo.MarkCompleted(ctx, doc.ID, 7, map[string]any{"pages": 3}))
	got, err = repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Empty(t, got.Error)
	assert.Equal(t, 7, got.ChunkCount)
	assert.EqualValues(t, 3, got.Metadata["pages"])

	assert.ErrorIs(t, repo.UpdateStatus(ctx, uuid.NewString(), domain.StatusFailed, "x"), domain.ErrDocumentNotFound)
	assert.ErrorIs(t, repo.MarkCompleted(ctx, uuid.NewString(), 1, nil), domain.ErrDocumentNotFound)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.StatusCompleted])

	require.NoError(t, repo.Delete(ctx, doc.ID))
	assert.ErrorIs(t, repo.Delete(ctx, doc.ID), domain.ErrDocumentNotFound)
}

func TestDocumentRepository_List(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewDocumentRepository(pool)

	base := time.Now().Add(-time.Hour)
	var docs []*domain.Document
	for i := range 4 {
		d := newDocument("doc.pdf", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, d))
		docs = append(docs, d)
	}
	require.NoError(t, repo.UpdateStatus(ctx, docs[0].ID, domain.StatusFailed, "boom"))

	all, err := repo.List(ctx, domain.DocumentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, docs[3].ID, all[0].ID)
	assert.Equal(t, docs[0].ID, all[3].ID)

	failed, err := repo.List(ctx, domain.DocumentFilter{Status: domain.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, docs[0].ID, failed[0].ID)

	page, err := repo.List(ctx, domain.DocumentFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)

	next, err := repo.List(ctx, domain.DocumentFilter{
		Limit:  2,
		Cursor: &pagination.Cursor{LastID: page[1].ID, Timestamp: page[1].UploadedAt},
	})
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, docs[1].ID, next[0].ID)
	assert.Equal(t, docs[0].ID, next[1].ID)
}

func TestChunkRepository_ReplaceChunks(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docs := NewDocumentRepository(pool)
	chunks := NewChunkRepository(pool)

	doc := newDocument("note.pdf", time.Now())
	require.NoError(t, docs.Create(ctx, doc))

	first := []domain.Chunk{
		{DocumentID: doc.ID, ChunkIndex: 0, Content: "old", ChunkType: domain.ChunkTypeText},
	}
	require.NoError(t, chunks.ReplaceChunks(ctx, doc.ID, first))

	second := []domain.Chunk{
		{DocumentID: doc.ID, ChunkIndex: 0, Content: "Chief complaint: chest pain", ChunkType: domain.ChunkTypeText, PageNumber: 1, SectionTitle: "Chief complaint"},
		{DocumentID: doc.ID, ChunkIndex: 1, Content: "HR | 88", ChunkType: domain.ChunkTypeTable, PageNumber: 2, Metadata: map[string]any{"table": "vitals"}},
	}
	require.NoError(t, chunks.ReplaceChunks(ctx, doc.ID, second))

	got, err := chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Chief complaint: chest pain", got[0].Content)
	assert.Equal(t, 1, got[0].PageNumber)
	assert.Equal(t, "Chief complaint", got[0].SectionTitle)
	assert.Equal(t, domain.ChunkTypeTable, got[1].ChunkType)
	assert.Equal(t, "vitals", got[1].Metadata["table"])
	assert.Empty(t, got[1].SectionTitle)

	require.NoError(t, chunks.ReplaceChunks(ctx, doc.ID, nil))
	got, err = chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}
