package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/meddocs/internal/domain"
)

// ChunkRepository keeps the relational copy of a document's chunks, used for
// inspection and reprocessing independently of the vector index.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// ReplaceChunks deletes existing chunks for a document and inserts new ones.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		meta, err := jsonb(c.Metadata)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO document_chunks (document_id, chunk_index, content, chunk_type, page_number, section_title, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			documentID, c.ChunkIndex, c.Content, c.ChunkType, nullableInt(c.PageNumber), nullableString(c.SectionTitle), meta,
		)
	}
	return r.db.SendBatch(ctx, batch).Close()
}

func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT document_id, chunk_index, content, chunk_type, page_number, section_title, metadata
		 FROM document_chunks WHERE document_id = $1 ORDER BY chunk_index`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := []domain.Chunk{}
	for rows.Next() {
		var (
			c       domain.Chunk
			page    *int
			section *string
			meta    []byte
		)
		if err := rows.Scan(&c.DocumentID, &c.ChunkIndex, &c.Content, &c.ChunkType, &page, &section, &meta); err != nil {
			return nil, err
		}
		c.PageNumber = derefInt(page)
		c.SectionTitle = derefString(section)
		if c.Metadata, err = metadataFrom(meta); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
