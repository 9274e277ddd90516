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
	"github.com/cloo-solutions/meddocs/internal/testutil"
)

func TestReportRepository(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewReportRepository(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	rep := &domain.Report{
		ID:          uuid.NewString(),
		Title:       "Cardiology summary",
		Sections:    []domain.SectionSpec{{Name: "Vitals"}, {Name: "Medications", Requirements: "dosages"}},
		DocumentIDs: []string{"doc-1"},
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, repo.Create(ctx, rep))

	got, err := repo.GetByID(ctx, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.Sections, got.Sections)
	assert.Equal(t, []string{"doc-1"}, got.DocumentIDs)
	assert.Nil(t, got.Content)
	assert.Empty(t, got.FilePath)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, repo.UpdateStatus(ctx, rep.ID, domain.StatusGenerating, ""))

	content := []domain.SectionResult{{
		Name:      "Vitals",
		Content:   "BP 150/95.",
		Citations: []domain.Citation{{DocumentID: "doc-1", Pages: []int{2}}},
	}}
	require.NoError(t, repo.MarkCompleted(ctx, rep.ID, content, "reports/"+rep.ID+".md"))

	got, err = repo.GetByID(ctx, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, "reports/"+rep.ID+".md", got.FilePath)
	require.Len(t, got.Content, 1)
	assert.Equal(t, "BP 150/95.", got.Content[0].Content)
	assert.Equal(t, []int{2}, got.Content[0].Citations[0].Pages)
	assert.NotNil(t, got.CompletedAt)

	older := &domain.Report{
		ID: uuid.NewString(), Title: "Older", Sections: []domain.SectionSpec{{Name: "A"}},
		Status: domain.StatusPending, CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour),
	}
	require.NoError(t, repo.Create(ctx, older))

	list, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, rep.ID, list[0].ID)
	assert.Empty(t, list[1].DocumentIDs)

	require.NoError(t, repo.Delete(ctx, older.ID))
	assert.ErrorIs(t, repo.Delete(ctx, older.ID), domain.ErrReportNotFound)
	_, err = repo.GetByID(ctx, older.ID)
	assert.ErrorIs(t, err, domain.ErrReportNotFound)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, older.ID, domain.StatusFailed, "x"), domain.ErrReportNotFound)
}
