package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/meddocs/internal/domain"
)

const documentColumns = `id, filename, original_filename, storage_key, file_type, file_size, content_type,
	source, drive_file_id, drive_url, status, error, chunk_count, metadata, uploaded_at, updated_at, processed_at`

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	meta, err := jsonb(d.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		d.ID, d.Filename, d.OriginalFilename, d.StorageKey, d.FileType, d.FileSize, nullableString(d.ContentType),
		d.Source, nullableString(d.DriveFileID), nullableString(d.DriveURL), d.Status, nullableString(d.Error),
		d.ChunkCount, meta, d.UploadedAt, d.UpdatedAt, d.ProcessedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	d, err := scanDocument(r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return d, nil
}

// List returns documents newest first. filter.Cursor resumes after the row it
// names.
func (r *DocumentRepository) List(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Cursor != nil {
		args = append(args, filter.Cursor.Timestamp, filter.Cursor.LastID)
		where = append(where, fmt.Sprintf("(uploaded_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY uploaded_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.ProcessingStatus, errMsg string) error {
	now := time.Now().UTC()
	var processedAt *time.Time
	if status == domain.StatusCompleted || status == domain.StatusFailed {
		processedAt = &now
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $1, error = $2, processed_at = $3, updated_at = $4 WHERE id = $5`,
		status, nullableString(errMsg), processedAt, now, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// MarkCompleted records a successful processing run.
func (r *DocumentRepository) MarkCompleted(ctx context.Context, id string, chunkCount int, metadata map[string]any) error {
	meta, err := jsonb(metadata)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET status = $1, error = NULL, chunk_count = $2, metadata = $3, processed_at = $4, updated_at = $4
		 WHERE id = $5`,
		domain.StatusCompleted, chunkCount, meta, now, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) CountByStatus(ctx context.Context) (map[domain.ProcessingStatus]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.ProcessingStatus]int)
	for rows.Next() {
		var status domain.ProcessingStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var (
		d                                      domain.Document
		contentType, driveID, driveURL, errMsg *string
		meta                                   []byte
	)
	if err := row.Scan(
		&d.ID, &d.Filename, &d.OriginalFilename, &d.StorageKey, &d.FileType, &d.FileSize, &contentType,
		&d.Source, &driveID, &driveURL, &d.Status, &errMsg, &d.ChunkCount, &meta,
		&d.UploadedAt, &d.UpdatedAt, &d.ProcessedAt,
	); err != nil {
		return nil, err
	}
	d.ContentType = derefString(contentType)
	d.DriveFileID = derefString(driveID)
	d.DriveURL = derefString(driveURL)
	d.Error = derefString(errMsg)

	var err error
	if d.Metadata, err = metadataFrom(meta); err != nil {
		return nil, err
	}
	return &d, nil
}
