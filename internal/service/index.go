package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/logger"
	"github.com/cloo-solutions/meddocs/internal/metrics"
)

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// VectorStore persists passages and answers nearest-neighbour queries by
// cosine distance, closest first. Replace swaps all passages of a document
// and must leave the previous ones in place when it fails.
type VectorStore interface {
	Replace(ctx context.Context, documentID string, passages []domain.IndexedPassage) error
	Search(ctx context.Context, vector []float32, limit int, documentIDs []string) ([]domain.PassageMatch, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Count(ctx context.Context) (int, error)
	Name() string
}

// QueryRequest selects up to K passages at or above MinSimilarity, optionally
// restricted to DocumentIDs.
type QueryRequest struct {
	Text          string
	K             int
	MinSimilarity float64
	DocumentIDs   []string
}

// Index embeds chunks and keeps them searchable.
type Index struct {
	store    VectorStore
	embedder Embedder
	log      *logger.Logger
}

func NewIndex(store VectorStore, embedder Embedder) *Index {
	return &Index{
		store:    store,
		embedder: embedder,
		log:      logger.New("index"),
	}
}

// Upsert replaces every passage of documentID with freshly embedded chunks.
func (ix *Index) Upsert(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		metrics.IncIndexFailure("upsert")
		return domain.Wrap(domain.ErrEmbeddingFailure, fmt.Errorf("no chunks for document %s", documentID))
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := ix.embed(ctx, texts)
	if err != nil {
		metrics.IncIndexFailure("upsert")
		return err
	}

	passages := make([]domain.IndexedPassage, len(chunks))
	for i, c := range chunks {
		c.DocumentID = documentID
		passages[i] = domain.NewIndexedPassage(c, vectors[i])
	}

	if err := ix.store.Replace(ctx, documentID, passages); err != nil {
		metrics.IncIndexFailure("upsert")
		return domain.Wrap(domain.ErrEmbeddingFailure, fmt.Errorf("failed to write passages: %w", err))
	}

	ix.log.Info("indexed document", "document_id", documentID, "passages", len(passages), "store", ix.store.Name())
	return nil
}

// Query returns passages ranked by similarity, closest first.
func (ix *Index) Query(ctx context.Context, req QueryRequest) ([]domain.ScoredPassage, error) {
	if req.MinSimilarity < 0 || req.MinSimilarity > 1 {
		return nil, domain.ErrInvalidSimilarityFloor
	}
	if strings.TrimSpace(req.Text) == "" || req.K <= 0 {
		return []domain.ScoredPassage{}, nil
	}

	vectors, err := ix.embed(ctx, []string{req.Text})
	if err != nil {
		return nil, err
	}

	matches, err := ix.store.Search(ctx, vectors[0], req.K, req.DocumentIDs)
	if err != nil {
		return nil, domain.Wrap(domain.ErrEmbeddingFailure, fmt.Errorf("failed to search passages: %w", err))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if len(matches) > req.K {
		matches = matches[:req.K]
	}

	results := make([]domain.ScoredPassage, 0, len(matches))
	for _, m := range matches {
		sim := domain.SimilarityFromDistance(m.Distance)
		if sim < req.MinSimilarity {
			continue
		}
		results = append(results, domain.ScoredPassage{
			Passage:    m.Passage,
			Similarity: sim,
			Rank:       len(results) + 1,
		})
	}
	return results, nil
}

// Delete removes every passage of a document. Deleting an unknown document
// is not an error.
func (ix *Index) Delete(ctx context.Context, documentID string) error {
	if err := ix.store.DeleteDocument(ctx, documentID); err != nil {
		metrics.IncIndexFailure("delete")
		return domain.Wrap(domain.ErrEmbeddingFailure, fmt.Errorf("failed to delete passages: %w", err))
	}
	return nil
}

func (ix *Index) Stats(ctx context.Context) (domain.IndexStats, error) {
	total, err := ix.store.Count(ctx)
	if err != nil {
		return domain.IndexStats{}, fmt.Errorf("failed to count passages: %w", err)
	}
	return domain.IndexStats{
		TotalPassages:  total,
		IndexName:      ix.store.Name(),
		EmbeddingModel: ix.embedder.ModelName(),
	}, nil
}

func (ix *Index) embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := ix.embedder.Embed(ctx, texts)
	metrics.CaptureExecutionMetrics("embedder", time.Since(start))
	if err != nil {
		return nil, domain.Wrap(domain.ErrEmbeddingFailure, err)
	}
	if len(vectors) != len(texts) {
		return nil, domain.Wrap(domain.ErrEmbeddingFailure,
			fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts)))
	}
	return vectors, nil
}
