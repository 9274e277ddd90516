package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/meddocs/internal/domain"
)

const reportColumns = `id, title, sections, document_ids, content, file_path, status, error, metadata,
	created_at, updated_at, completed_at`

type ReportRepository struct {
	db dbtx
}

func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{db: pool}
}

func NewReportRepositoryWithTx(tx pgx.Tx) *ReportRepository {
	return &ReportRepository{db: tx}
}

func (r *ReportRepository) Create(ctx context.Context, rep *domain.Report) error {
	sections, err := jsonb(rep.Sections)
	if err != nil {
		return err
	}
	docIDs := rep.DocumentIDs
	if docIDs == nil {
		docIDs = []string{}
	}
	documentIDs, err := jsonb(docIDs)
	if err != nil {
		return err
	}
	meta, err := jsonb(rep.Metadata)
	if err != nil {
		return err
	}
	var content []byte
	if rep.Content != nil {
		if content, err = jsonb(rep.Content); err != nil {
			return err
		}
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO reports (`+reportColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rep.ID, rep.Title, sections, documentIDs, content, nullableString(rep.FilePath), rep.Status,
		nullableString(rep.Error), meta, rep.CreatedAt, rep.UpdatedAt, rep.CompletedAt,
	)
	return err
}

func (r *ReportRepository) GetByID(ctx context.Context, id string) (*domain.Report, error) {
	rep, err := scanReport(r.db.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReportNotFound
		}
		return nil, err
	}
	return rep, nil
}

// List returns the most recent reports first.
func (r *ReportRepository) List(ctx context.Context, limit int) ([]*domain.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+reportColumns+` FROM reports ORDER BY created_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := []*domain.Report{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

func (r *ReportRepository) UpdateStatus(ctx context.Context, id string, status domain.ProcessingStatus, errMsg string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE reports SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		status, nullableString(errMsg), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrReportNotFound
	}
	return nil
}

// MarkCompleted stores the rendered sections and the key of the markdown file.
func (r *ReportRepository) MarkCompleted(ctx context.Context, id string, content []domain.SectionResult, filePath string) error {
	body, err := jsonb(content)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE reports
		 SET status = $1, error = NULL, content = $2, file_path = $3, completed_at = $4, updated_at = $4
		 WHERE id = $5`,
		domain.StatusCompleted, body, filePath, now, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrReportNotFound
	}
	return nil
}

func (r *ReportRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrReportNotFound
	}
	return nil
}

func scanReport(row pgx.Row) (*domain.Report, error) {
	var (
		rep                             domain.Report
		sections, docIDs, content, meta []byte
		filePath, errMsg                *string
	)
	if err := row.Scan(&rep.ID, &rep.Title, &sections, &docIDs, &content, &filePath, &rep.Status,
		&errMsg, &meta, &rep.CreatedAt, &rep.UpdatedAt, &rep.CompletedAt); err != nil {
		return nil, err
	}
	rep.FilePath = derefString(filePath)
	rep.Error = derefString(errMsg)

	if err := json.Unmarshal(sections, &rep.Sections); err != nil {
		return nil, fmt.Errorf("failed to decode report sections: %w", err)
	}
	if err := json.Unmarshal(docIDs, &rep.DocumentIDs); err != nil {
		return nil, fmt.Errorf("failed to decode report documents: %w", err)
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &rep.Content); err != nil {
			return nil, fmt.Errorf("failed to decode report content: %w", err)
		}
	}
	var err error
	if rep.Metadata, err = metadataFrom(meta); err != nil {
		return nil, err
	}
	return &rep, nil
}
