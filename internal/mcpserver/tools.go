package mcpserver

import (
	"context"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/service"
)

type SearchInput struct {
	Query         string   `json:"query" jsonschema:"free-text clinical question or keywords"`
	K             int      `json:"k,omitempty" jsonschema:"maximum number of passages to return"`
	MinSimilarity *float64 `json:"min_similarity,omitempty" jsonschema:"similarity floor between 0 and 1"`
	DocumentIDs   []string `json:"document_ids,omitempty" jsonschema:"restrict the search to these documents"`
}

type PassageOutput struct {
	ID           string  `json:"id"`
	DocumentID   string  `json:"document_id"`
	PageNumber   int     `json:"page_number,omitempty"`
	SectionTitle string  `json:"section_title,omitempty"`
	ChunkType    string  `json:"chunk_type"`
	Content      string  `json:"content"`
	Similarity   float64 `json:"similarity"`
	Rank         int     `json:"rank"`
}

type SearchOutput struct {
	Passages []PassageOutput `json:"passages"`
	Count    int             `json:"count"`
}

type AskInput struct {
	Question    string   `json:"question" jsonschema:"question to answer from the indexed records"`
	SessionID   string   `json:"session_id,omitempty" jsonschema:"continue an earlier conversation"`
	DocumentIDs []string `json:"document_ids,omitempty" jsonschema:"restrict the evidence to these documents"`
}

type AskOutput struct {
	SessionID   string            `json:"session_id"`
	Answer      string            `json:"answer"`
	Citations   []domain.Citation `json:"citations"`
	Confidence  float64           `json:"confidence"`
	SourcesUsed int               `json:"sources_used"`
	NoEvidence  bool              `json:"no_evidence"`
}

type ListDocumentsInput struct {
	Status string `json:"status,omitempty" jsonschema:"pending, processing, completed or failed"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of documents (default 50)"`
}

type DocumentOutput struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	FileType   string `json:"file_type"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	UploadedAt string `json:"uploaded_at"`
}

type ListDocumentsOutput struct {
	Documents []DocumentOutput `json:"documents"`
	HasMore   bool             `json:"has_more"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_passages",
		Description: "Retrieve the indexed passages most similar to a query, with similarity scores",
	}, s.handleSearch)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question strictly from the indexed medical documents, with citations",
	}, s.handleAsk)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List ingested documents and their processing status",
	}, s.handleListDocuments)
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, SearchOutput{}, domain.ErrEmptyQuestion
	}
	k := in.K
	if k <= 0 {
		k = s.defaults.K
	}
	k = min(k, service.MaxTopK)
	floor := s.defaults.MinSimilarity
	if in.MinSimilarity != nil {
		if *in.MinSimilarity < 0 || *in.MinSimilarity > 1 {
			return nil, SearchOutput{}, domain.ErrInvalidSimilarityFloor
		}
		floor = *in.MinSimilarity
	}

	passages := s.retriever.Retrieve(ctx, service.RetrieveRequest{
		Query:         in.Query,
		K:             k,
		MinSimilarity: floor,
		DocumentIDs:   in.DocumentIDs,
	})

	out := SearchOutput{Passages: make([]PassageOutput, 0, len(passages)), Count: len(passages)}
	for _, p := range passages {
		c := p.Passage.Chunk
		out.Passages = append(out.Passages, PassageOutput{
			ID:           p.Passage.ID,
			DocumentID:   c.DocumentID,
			PageNumber:   c.PageNumber,
			SectionTitle: c.SectionTitle,
			ChunkType:    string(c.EffectiveType()),
			Content:      c.Content,
			Similarity:   p.Similarity,
			Rank:         p.Rank,
		})
	}
	return nil, out, nil
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, AskOutput, error) {
	res, err := s.chat.Ask(ctx, service.AskInput{
		SessionID:   in.SessionID,
		Message:     in.Question,
		DocumentIDs: in.DocumentIDs,
	})
	if err != nil {
		return nil, AskOutput{}, err
	}

	citations := res.Result.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	return nil, AskOutput{
		SessionID:   res.SessionID,
		Answer:      res.Result.Answer,
		Citations:   citations,
		Confidence:  res.Result.Confidence,
		SourcesUsed: res.Result.SourcesUsed,
		NoEvidence:  res.Result.NoEvidence,
	}, nil
}

func (s *Server) handleListDocuments(ctx context.Context, _ *mcp.CallToolRequest, in ListDocumentsInput) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}
	page, err := s.documents.List(ctx, domain.DocumentFilter{
		Status: domain.ProcessingStatus(in.Status),
		Limit:  limit,
	})
	if err != nil {
		return nil, ListDocumentsOutput{}, err
	}

	out := ListDocumentsOutput{Documents: make([]DocumentOutput, 0, len(page.Items)), HasMore: page.HasMore}
	for _, d := range page.Items {
		out.Documents = append(out.Documents, DocumentOutput{
			ID:         d.ID,
			Filename:   d.OriginalFilename,
			FileType:   string(d.FileType),
			Status:     string(d.Status),
			ChunkCount: d.ChunkCount,
			UploadedAt: d.UploadedAt.UTC().Format(time.RFC3339),
		})
	}
	return nil, out, nil
}
