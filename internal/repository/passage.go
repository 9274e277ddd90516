package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/meddocs/internal/domain"
)

// PassageStore is the pgvector-backed embedding index. Distances are cosine
// distances computed by the <=> operator.
type PassageStore struct {
	db dbtx
}

func NewPassageStore(pool *pgxpool.Pool) *PassageStore {
	return &PassageStore{db: pool}
}

func (s *PassageStore) Name() string {
	return "pgvector"
}

// Upsert inserts passages or replaces the ones whose id already exists.
func (s *PassageStore) Upsert(ctx context.Context, passages []domain.IndexedPassage) error {
	return upsertPassages(ctx, s.db, passages)
}

// Replace swaps every passage of documentID for passages in one transaction.
// On error the previous passages are left untouched.
func (s *PassageStore) Replace(ctx context.Context, documentID string, passages []domain.IndexedPassage) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := deletePassages(ctx, tx, documentID); err != nil {
			return err
		}
		return upsertPassages(ctx, tx, passages)
	})
	if err != nil {
		return fmt.Errorf("failed to replace passages of %s: %w", documentID, err)
	}
	return nil
}

func upsertPassages(ctx context.Context, db dbtx, passages []domain.IndexedPassage) error {
	if len(passages) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range passages {
		meta, err := jsonb(p.Chunk.Metadata)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO passages (id, document_id, chunk_index, content, chunk_type, page_number, section_title, metadata, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (id) DO UPDATE SET
			     content = EXCLUDED.content,
			     chunk_type = EXCLUDED.chunk_type,
			     page_number = EXCLUDED.page_number,
			     section_title = EXCLUDED.section_title,
			     metadata = EXCLUDED.metadata,
			     embedding = EXCLUDED.embedding`,
			p.ID, p.Chunk.DocumentID, p.Chunk.ChunkIndex, p.Chunk.Content, p.Chunk.ChunkType,
			nullableInt(p.Chunk.PageNumber), nullableString(p.Chunk.SectionTitle), meta,
			pgvector.NewVector(p.Embedding),
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert passages: %w", err)
	}
	return nil
}

// Search returns the nearest passages to vector, closest first. A non-empty
// documentIDs restricts the search to those documents.
func (s *PassageStore) Search(ctx context.Context, vector []float32, limit int, documentIDs []string) ([]domain.PassageMatch, error) {
	if limit <= 0 {
		return []domain.PassageMatch{}, nil
	}

	query := `SELECT id, document_id, chunk_index, content, chunk_type, page_number, section_title, metadata,
	                 embedding <=> $1 AS distance
	          FROM passages`
	args := []any{pgvector.NewVector(vector), limit}
	if len(documentIDs) > 0 {
		query += ` WHERE document_id = ANY($3)`
		args = append(args, documentIDs)
	}
	query += ` ORDER BY distance ASC LIMIT $2`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search passages: %w", err)
	}
	defer rows.Close()

	matches := []domain.PassageMatch{}
	for rows.Next() {
		var (
			m       domain.PassageMatch
			page    *int
			section *string
			meta    []byte
		)
		c := &m.Passage.Chunk
		if err := rows.Scan(&m.Passage.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.ChunkType,
			&page, &section, &meta, &m.Distance); err != nil {
			return nil, err
		}
		c.PageNumber = derefInt(page)
		c.SectionTitle = derefString(section)
		if c.Metadata, err = metadataFrom(meta); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *PassageStore) DeleteDocument(ctx context.Context, documentID string) error {
	return deletePassages(ctx, s.db, documentID)
}

func deletePassages(ctx context.Context, db dbtx, documentID string) error {
	if _, err := db.Exec(ctx, `DELETE FROM passages WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to delete passages: %w", err)
	}
	return nil
}

func (s *PassageStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM passages`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
