package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerResources() {
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "documents/{documentId}/chunks",
		Name:        "document-chunks",
		Description: "Extracted chunks of one document in index order",
		MIMEType:    "text/markdown",
	}, s.handleChunksResource)
}

func (s *Server) handleChunksResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	documentID := documentIDFromURI(req.Params.URI)
	if documentID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	chunks, err := s.documents.ListChunks(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "## Chunk %d (%s", c.ChunkIndex, c.EffectiveType())
		if c.PageNumber > 0 {
			fmt.Fprintf(&b, ", page %d", c.PageNumber)
		}
		if c.SectionTitle != "" {
			fmt.Fprintf(&b, ", %s", c.SectionTitle)
		}
		b.WriteString(")\n\n")
		b.WriteString(c.Content)
		b.WriteString("\n\n")
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     b.String(),
		}},
	}, nil
}

// documentIDFromURI extracts the id from meddocs://documents/{id}/chunks.
func documentIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, uriScheme+"documents/")
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, "/chunks")
	if !ok || id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}
