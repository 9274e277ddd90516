package domain

import "sort"

// IndexedPassage is a chunk stored in the embedding index with its vector.
type IndexedPassage struct {
	ID        string
	Chunk     Chunk
	Embedding []float32
}

// NewIndexedPassage builds the passage for a chunk keyed by its composite id.
func NewIndexedPassage(c Chunk, embedding []float32) IndexedPassage {
	return IndexedPassage{
		ID:        c.ID(),
		Chunk:     c,
		Embedding: embedding,
	}
}

// PassageMatch is a raw nearest-neighbour hit from a vector store.
// Distance is the store's cosine distance; smaller is closer.
type PassageMatch struct {
	Passage  IndexedPassage
	Distance float64
}

// ScoredPassage is a passage that passed the similarity floor for a query.
type ScoredPassage struct {
	Passage    IndexedPassage
	Similarity float64
	Rank       int // 1-based position in the returned order
}

// SimilarityFromDistance converts a cosine distance into a similarity in [0, 1].
func SimilarityFromDistance(distance float64) float64 {
	return Clamp01(1 - distance)
}

// Citation aggregates the passages of one source document used as evidence.
type Citation struct {
	DocumentID     string   `json:"document_id"`
	Pages          []int    `json:"pages"`
	Sections       []string `json:"sections"`
	PassageCount   int      `json:"passage_count"`
	RelevanceScore float64  `json:"relevance_score"`
}

// BuildCitations groups passages by document in first-seen order.
// Pages are sorted and deduplicated; sections keep first-seen order.
func BuildCitations(passages []ScoredPassage) []Citation {
	type acc struct {
		pages    map[int]struct{}
		sections []string
		seen     map[string]struct{}
		count    int
		sum      float64
	}

	order := make([]string, 0)
	byDoc := make(map[string]*acc)
	for _, p := range passages {
		docID := p.Passage.Chunk.DocumentID
		a, ok := byDoc[docID]
		if !ok {
			a = &acc{pages: map[int]struct{}{}, seen: map[string]struct{}{}}
			byDoc[docID] = a
			order = append(order, docID)
		}
		a.count++
		a.sum += p.Similarity
		if page := p.Passage.Chunk.PageNumber; page > 0 {
			a.pages[page] = struct{}{}
		}
		if section := p.Passage.Chunk.SectionTitle; section != "" {
			if _, dup := a.seen[section]; !dup {
				a.seen[section] = struct{}{}
				a.sections = append(a.sections, section)
			}
		}
	}

	citations := make([]Citation, 0, len(order))
	for _, docID := range order {
		a := byDoc[docID]
		pages := make([]int, 0, len(a.pages))
		for page := range a.pages {
			pages = append(pages, page)
		}
		sort.Ints(pages)
		sections := a.sections
		if sections == nil {
			sections = []string{}
		}
		citations = append(citations, Citation{
			DocumentID:     docID,
			Pages:          pages,
			Sections:       sections,
			PassageCount:   a.count,
			RelevanceScore: a.sum / float64(a.count),
		})
	}
	return citations
}

// DistinctDocuments counts the distinct document ids among passages.
func DistinctDocuments(passages []ScoredPassage) int {
	seen := make(map[string]struct{}, len(passages))
	for _, p := range passages {
		seen[p.Passage.Chunk.DocumentID] = struct{}{}
	}
	return len(seen)
}

// AnswerResult is the grounded answer to a question.
type AnswerResult struct {
	Answer      string
	Citations   []Citation
	Confidence  float64
	SourcesUsed int
	// NoEvidence is set only when retrieval produced no passages and the
	// generator was never consulted.
	NoEvidence bool
}

// SectionElement is a table or image passage passed through into a report section.
type SectionElement struct {
	DocumentID string         `json:"document_id"`
	PageNumber int            `json:"page_number,omitempty"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SectionResult is the synthesized content of one report section.
type SectionResult struct {
	Name      string           `json:"name"`
	Content   string           `json:"content"`
	Citations []Citation       `json:"citations"`
	Tables    []SectionElement `json:"tables"`
	Images    []SectionElement `json:"images"`
	Failed    bool             `json:"failed,omitempty"`
}

// IndexStats describes the embedding index for observability.
type IndexStats struct {
	TotalPassages  int
	IndexName      string
	EmbeddingModel string
}

// Clamp01 bounds v to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
