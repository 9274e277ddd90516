package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/logger"
	"github.com/cloo-solutions/meddocs/internal/metrics"
)

// PassageIndex is the read side of Index.
type PassageIndex interface {
	Query(ctx context.Context, req QueryRequest) ([]domain.ScoredPassage, error)
}

type RetrieveRequest struct {
	Query         string
	K             int
	MinSimilarity float64
	DocumentIDs   []string
}

// MaxTopK caps how many passages a single retrieval may return.
const MaxTopK = 100

// Retriever wraps index queries and never fails: errors degrade to no passages.
type Retriever struct {
	index PassageIndex
	log   *logger.Logger
}

func NewRetriever(index PassageIndex) *Retriever {
	return &Retriever{
		index: index,
		log:   logger.New("retriever"),
	}
}

func (r *Retriever) Retrieve(ctx context.Context, req RetrieveRequest) []domain.ScoredPassage {
	passages, err := r.index.Query(ctx, QueryRequest{
		Text:          req.Query,
		K:             min(req.K, MaxTopK),
		MinSimilarity: req.MinSimilarity,
		DocumentIDs:   req.DocumentIDs,
	})
	if err != nil {
		metrics.IncIndexFailure("query")
		r.log.Error("retrieval failed", "error", err, "k", req.K)
		return []domain.ScoredPassage{}
	}
	metrics.ObserveRetrieved(len(passages))
	return passages
}

// FormatContext renders passages as labelled blocks separated by "\n---\n".
func FormatContext(passages []domain.ScoredPassage) string {
	blocks := make([]string, 0, len(passages))
	for _, p := range passages {
		c := p.Passage.Chunk

		var b strings.Builder
		b.WriteString("[Document ")
		b.WriteString(c.DocumentID)
		b.WriteString(", Page ")
		if c.PageNumber > 0 {
			b.WriteString(strconv.Itoa(c.PageNumber))
		} else {
			b.WriteString("Unknown")
		}
		if c.SectionTitle != "" {
			b.WriteString(", Section: ")
			b.WriteString(c.SectionTitle)
		}
		b.WriteString("]\n")
		b.WriteString(c.Content)
		b.WriteString("\n")
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n---\n")
}
